package recovery

import (
	"io"
	"sync"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/MiniDB/src/pkg/common"
	"github.com/Blackdeer1524/MiniDB/src/pkg/utils"
)

// Log file layout:
//
//	[checksum:4][record]...[record][bad tail]
//
// where each record is [size:4][checksum:4][data:size]. The header checksum
// folds over every complete record, framing included. A bad tail is whatever
// a crash left half-written after the last valid record.
const (
	seed = 13331

	headerSize         = 4
	recordSizeOffset   = 0
	recordChecksumOffs = 4
	recordDataOffset   = 8
)

var ErrBadLogFile = errors.New("bad log file")

type TxnLogger struct {
	file afero.File
	log  *zap.SugaredLogger

	mu       sync.Mutex
	checksum uint32
	size     int64
	// read position used by Rewind/Next
	position int64
}

func checksum(sum uint32, data []byte) uint32 {
	for _, b := range data {
		// bytes are folded in as signed values
		sum = sum*seed + uint32(int32(int8(b))) //nolint:gosec
	}

	return sum
}

// CreateLog makes a new empty log at path.
func CreateLog(fs afero.Fs, path string, log *zap.SugaredLogger) (*TxnLogger, error) {
	file, err := common.CreateFile(fs, path)
	if err != nil {
		return nil, err
	}

	if _, err := file.WriteAt(make([]byte, headerSize), 0); err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "write log header")
	}

	if err := file.Sync(); err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "sync log header")
	}

	return &TxnLogger{
		file:     file,
		log:      log,
		size:     headerSize,
		position: headerSize,
	}, nil
}

// OpenLog opens an existing log, verifies its checksum and cuts off a bad
// tail if there is one.
func OpenLog(fs afero.Fs, path string, log *zap.SugaredLogger) (*TxnLogger, error) {
	file, err := common.OpenFile(fs, path)
	if err != nil {
		return nil, err
	}

	l := &TxnLogger{file: file, log: log}
	if err := l.init(); err != nil {
		_ = file.Close()
		return nil, err
	}

	return l, nil
}

func (l *TxnLogger) init() error {
	info, err := l.file.Stat()
	if err != nil {
		return errors.Wrap(err, "stat log")
	}

	if info.Size() < headerSize {
		return errors.Wrapf(ErrBadLogFile, "log is %d bytes long", info.Size())
	}

	header := make([]byte, headerSize)
	if _, err := l.file.ReadAt(header, 0); err != nil {
		return errors.Wrap(err, "read log header")
	}

	l.size = info.Size()
	l.checksum = utils.ParseUint32(header)

	l.position = headerSize

	var sum uint32
	for {
		record, err := l.nextRecord()
		if err != nil {
			return err
		}

		if record == nil {
			break
		}

		sum = checksum(sum, record)
	}

	if sum != l.checksum {
		return errors.Wrapf(
			ErrBadLogFile,
			"checksum mismatch: header %d, records %d",
			l.checksum,
			sum,
		)
	}

	if l.position < l.size {
		l.log.Warnw(
			"dropping bad log tail",
			"valid_bytes", l.position,
			"dropped_bytes", l.size-l.position,
		)

		if err := l.file.Truncate(l.position); err != nil {
			return errors.Wrap(err, "truncate bad tail")
		}

		l.size = l.position
	}

	l.position = headerSize

	return nil
}

// nextRecord returns the whole framed record at the read position and
// advances past it. nil means the end of the valid records.
func (l *TxnLogger) nextRecord() ([]byte, error) {
	if l.position+recordDataOffset > l.size {
		return nil, nil
	}

	sizeBuf := make([]byte, 4)
	if _, err := l.file.ReadAt(sizeBuf, l.position+recordSizeOffset); err != nil {
		return nil, errors.Wrapf(err, "read record size at %d", l.position)
	}

	dataSize := int64(utils.ParseUint32(sizeBuf))
	if l.position+recordDataOffset+dataSize > l.size {
		return nil, nil
	}

	record := make([]byte, recordDataOffset+dataSize)
	if _, err := l.file.ReadAt(record, l.position); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrapf(err, "read record at %d", l.position)
	}

	expected := utils.ParseUint32(record[recordChecksumOffs:recordDataOffset])
	if checksum(0, record[recordDataOffset:]) != expected {
		return nil, nil
	}

	l.position += int64(len(record))

	return record, nil
}

func wrap(data []byte) []byte {
	record := make([]byte, recordDataOffset+len(data))
	utils.PutUint32(record[recordSizeOffset:], uint32(len(data))) //nolint:gosec
	utils.PutUint32(record[recordChecksumOffs:], checksum(0, data))
	copy(record[recordDataOffset:], data)

	return record
}

// Append durably adds one record to the end of the log.
func (l *TxnLogger) Append(data []byte) error {
	record := wrap(data)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.WriteAt(record, l.size); err != nil {
		return errors.Wrap(err, "append log record")
	}

	sum := checksum(l.checksum, record)

	header := make([]byte, headerSize)
	utils.PutUint32(header, sum)
	if _, err := l.file.WriteAt(header, 0); err != nil {
		return errors.Wrap(err, "write log checksum")
	}

	if err := l.file.Sync(); err != nil {
		return errors.Wrap(err, "sync log")
	}

	l.checksum = sum
	l.size += int64(len(record))

	return nil
}

// Rewind moves the read position to the first record.
func (l *TxnLogger) Rewind() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.position = headerSize
}

// Next returns the payload of the next record, or false once every valid
// record has been read.
func (l *TxnLogger) Next() ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, err := l.nextRecord()
	if err != nil || record == nil {
		return nil, false, err
	}

	return record[recordDataOffset:], true, nil
}

// Truncate cuts the log file down to size bytes.
func (l *TxnLogger) Truncate(size int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Truncate(size); err != nil {
		return errors.Wrapf(err, "truncate log to %d", size)
	}

	l.size = size
	if l.position > size {
		l.position = size
	}

	return nil
}

// Size reports the length of the log file in bytes.
func (l *TxnLogger) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.size
}

func (l *TxnLogger) Close() error {
	return l.file.Close()
}
