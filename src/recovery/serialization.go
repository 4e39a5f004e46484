package recovery

import (
	"bytes"
	"encoding/binary"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
)

const (
	insertHeaderSize = 1 + 8 + 4 + 2
	updateHeaderSize = 1 + 8 + 8
)

// MarshalBinary encodes [type][xid:8][pgno:4][offset:2][raw].
func (r *InsertLogRecord) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(insertHeaderSize + len(r.Raw))
	buf.WriteByte(byte(TypeInsert))

	if err := binary.Write(buf, binary.BigEndian, uint64(r.TxnID)); err != nil {
		return nil, err
	}

	if err := binary.Write(buf, binary.BigEndian, uint32(r.PageNumber)); err != nil {
		return nil, err
	}

	if err := binary.Write(buf, binary.BigEndian, r.Offset); err != nil {
		return nil, err
	}

	buf.Write(r.Raw)

	return buf.Bytes(), nil
}

func (r *InsertLogRecord) UnmarshalBinary(data []byte) error {
	if len(data) < insertHeaderSize {
		return errors.Errorf("insert record is %d bytes long", len(data))
	}

	if data[0] != byte(TypeInsert) {
		return errors.Errorf("invalid type tag for InsertLogRecord: %x", data[0])
	}

	reader := bytes.NewReader(data[1:insertHeaderSize])

	var (
		xid    uint64
		pgno   uint32
		offset uint16
	)

	if err := binary.Read(reader, binary.BigEndian, &xid); err != nil {
		return err
	}

	if err := binary.Read(reader, binary.BigEndian, &pgno); err != nil {
		return err
	}

	if err := binary.Read(reader, binary.BigEndian, &offset); err != nil {
		return err
	}

	r.TxnID = common.TxnID(xid)
	r.PageNumber = common.PageNumber(pgno)
	r.Offset = offset
	r.Raw = bytes.Clone(data[insertHeaderSize:])

	return nil
}

// MarshalBinary encodes [type][xid:8][uid:8][old raw][new raw].
func (r *UpdateLogRecord) MarshalBinary() ([]byte, error) {
	if len(r.OldRaw) != len(r.NewRaw) {
		return nil, errors.Errorf(
			"update images differ in length: %d and %d",
			len(r.OldRaw),
			len(r.NewRaw),
		)
	}

	buf := new(bytes.Buffer)
	buf.Grow(updateHeaderSize + 2*len(r.NewRaw))
	buf.WriteByte(byte(TypeUpdate))

	if err := binary.Write(buf, binary.BigEndian, uint64(r.TxnID)); err != nil {
		return nil, err
	}

	if err := binary.Write(buf, binary.BigEndian, uint64(r.UID)); err != nil {
		return nil, err
	}

	buf.Write(r.OldRaw)
	buf.Write(r.NewRaw)

	return buf.Bytes(), nil
}

func (r *UpdateLogRecord) UnmarshalBinary(data []byte) error {
	if len(data) < updateHeaderSize {
		return errors.Errorf("update record is %d bytes long", len(data))
	}

	if data[0] != byte(TypeUpdate) {
		return errors.Errorf("invalid type tag for UpdateLogRecord: %x", data[0])
	}

	if (len(data)-updateHeaderSize)%2 != 0 {
		return errors.Errorf("update record has odd payload length %d", len(data)-updateHeaderSize)
	}

	reader := bytes.NewReader(data[1:updateHeaderSize])

	var xid, uid uint64
	if err := binary.Read(reader, binary.BigEndian, &xid); err != nil {
		return err
	}

	if err := binary.Read(reader, binary.BigEndian, &uid); err != nil {
		return err
	}

	half := (len(data) - updateHeaderSize) / 2

	r.TxnID = common.TxnID(xid)
	r.UID = common.UID(uid)
	r.OldRaw = bytes.Clone(data[updateHeaderSize : updateHeaderSize+half])
	r.NewRaw = bytes.Clone(data[updateHeaderSize+half:])

	return nil
}

func readLogRecord(data []byte) (LogRecord, error) {
	if len(data) < 1 {
		return nil, errors.New("insufficient data for type tag")
	}

	switch LogRecordTypeTag(data[0]) {
	case TypeInsert:
		var r InsertLogRecord
		if err := r.UnmarshalBinary(data); err != nil {
			return nil, err
		}

		return r, nil
	case TypeUpdate:
		var r UpdateLogRecord
		if err := r.UnmarshalBinary(data); err != nil {
			return nil, err
		}

		return r, nil
	}

	return nil, errors.Errorf("unknown log record type %x", data[0])
}
