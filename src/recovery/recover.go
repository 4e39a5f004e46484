// Package recovery owns the write-ahead log and brings the data file back to
// a consistent state after a crash.
//
// Recovery runs in three passes over the log. The first finds the highest
// page any record touches and truncates the data file to it. The second
// redoes every record of a transaction that is no longer active. The third
// undoes, newest first, every record of a transaction that is still active
// and marks that transaction aborted.
package recovery

import (
	"bytes"
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/MiniDB/src/bufferpool"
	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
	"github.com/Blackdeer1524/MiniDB/src/storage/dataitem"
	"github.com/Blackdeer1524/MiniDB/src/storage/page"
)

var tracer = otel.Tracer("github.com/Blackdeer1524/MiniDB/src/recovery")

type TxnStatus interface {
	IsActive(xid common.TxnID) bool
	Abort(xid common.TxnID) error
}

type PageStore interface {
	GetPage(pgno common.PageNumber) (*bufferpool.Handle, error)
	TruncateByPageNumber(maxPage common.PageNumber) error
}

var _ PageStore = &bufferpool.Manager{}

type Summary struct {
	MaxPage common.PageNumber
	Redone  int
	Undone  int
	Aborted []common.TxnID
}

func Recover(
	ctx context.Context,
	tm TxnStatus,
	wal *TxnLogger,
	pages PageStore,
	log *zap.SugaredLogger,
) (res Summary, err error) {
	ctx, span := tracer.Start(ctx, "recovery.Recover")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log.Info("recovering from the log")

	res.MaxPage, err = truncatePass(ctx, wal, pages)
	if err != nil {
		return res, err
	}
	log.Infow("truncated data file", "pages", res.MaxPage)

	res.Redone, err = redoPass(ctx, tm, wal, pages)
	if err != nil {
		return res, err
	}
	log.Infow("redone finished transactions", "records", res.Redone)

	res.Undone, res.Aborted, err = undoPass(ctx, tm, wal, pages)
	if err != nil {
		return res, err
	}
	log.Infow(
		"undone unfinished transactions",
		"records", res.Undone,
		"transactions", len(res.Aborted),
	)

	span.SetAttributes(
		attribute.Int64("minidb.recovery.max_page", int64(res.MaxPage)),
		attribute.Int("minidb.recovery.redone", res.Redone),
		attribute.Int("minidb.recovery.undone", res.Undone),
	)

	return res, nil
}

func truncatePass(
	ctx context.Context,
	wal *TxnLogger,
	pages PageStore,
) (common.PageNumber, error) {
	_, span := tracer.Start(ctx, "recovery.truncate")
	defer span.End()

	maxPage := common.PageNumber(0)

	iter := newLogRecordIter(wal)
	for {
		ok, err := iter.MoveForward()
		if err != nil {
			return 0, err
		}

		if !ok {
			break
		}

		maxPage = max(maxPage, iter.Record().Page())
	}

	// page 1 always survives
	maxPage = max(maxPage, 1)

	if err := pages.TruncateByPageNumber(maxPage); err != nil {
		return 0, err
	}

	return maxPage, nil
}

func redoPass(
	ctx context.Context,
	tm TxnStatus,
	wal *TxnLogger,
	pages PageStore,
) (int, error) {
	ctx, span := tracer.Start(ctx, "recovery.redo")
	defer span.End()

	redone := 0

	iter := newLogRecordIter(wal)
	for {
		if err := ctx.Err(); err != nil {
			return redone, err
		}

		ok, err := iter.MoveForward()
		if err != nil {
			return redone, err
		}

		if !ok {
			break
		}

		record := iter.Record()
		if tm.IsActive(record.Txn()) {
			continue
		}

		if err := apply(pages, record, true); err != nil {
			return redone, err
		}
		redone++
	}

	span.SetAttributes(attribute.Int("minidb.recovery.redone", redone))

	return redone, nil
}

func undoPass(
	ctx context.Context,
	tm TxnStatus,
	wal *TxnLogger,
	pages PageStore,
) (int, []common.TxnID, error) {
	ctx, span := tracer.Start(ctx, "recovery.undo")
	defer span.End()

	att := NewATT()

	iter := newLogRecordIter(wal)
	for {
		ok, err := iter.MoveForward()
		if err != nil {
			return 0, nil, err
		}

		if !ok {
			break
		}

		if record := iter.Record(); tm.IsActive(record.Txn()) {
			att.Insert(record)
		}
	}

	undone := 0
	aborted := make([]common.TxnID, 0, att.Len())

	var err error
	att.Seq(func(xid common.TxnID, records []LogRecord) bool {
		if err = ctx.Err(); err != nil {
			return false
		}

		for i := len(records) - 1; i >= 0; i-- {
			if err = apply(pages, records[i], false); err != nil {
				return false
			}
			undone++
		}

		if err = tm.Abort(xid); err != nil {
			return false
		}
		aborted = append(aborted, xid)

		return true
	})
	if err != nil {
		return undone, aborted, err
	}

	span.AddEvent("aborted", trace.WithAttributes(
		attribute.Int("minidb.recovery.transactions", len(aborted)),
	))

	return undone, aborted, nil
}

func apply(pages PageStore, record LogRecord, redo bool) error {
	h, err := pages.GetPage(record.Page())
	if err != nil {
		return errors.Wrapf(err, "replay %s of txn %d", record.Tag(), record.Txn())
	}
	defer h.Release()

	p := h.Value()

	switch r := record.(type) {
	case InsertLogRecord:
		raw := r.Raw
		if !redo {
			raw = bytes.Clone(raw)
			dataitem.SetRawInvalid(raw)
		}

		page.RecoverInsert(p, raw, r.Offset)
	case UpdateLogRecord:
		raw := r.NewRaw
		if !redo {
			raw = r.OldRaw
		}

		page.RecoverUpdate(p, raw, r.UID.Offset())
	}

	return nil
}
