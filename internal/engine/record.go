package engine

import (
	"encoding/binary"
	"io"
)

// enc is the byte order for every length prefix and fixed-width field this
// package writes to disk, matching the teacher's store.go convention.
var enc = binary.BigEndian

// OpKind tags the variant of a LogRecord's operation.
type OpKind uint8

const (
	_ OpKind = iota
	OpSet
	OpRemove
)

// LogRecord is the durable unit of the log: a globally monotonic
// record_index (assigned at append time, stable across compaction) plus the
// Set or Remove operation it represents. Value is unused for OpRemove.
type LogRecord struct {
	RecordIndex uint64
	Op          OpKind
	Key         string
	Value       string
}

// lenWidth is the number of bytes used to prefix both the outer record and
// each inner key/value string, following store.go's length-prefix idiom.
const lenWidth = 8

// encodedSize returns the number of bytes Encode writes for rec, including
// the outer length prefix.
func (rec *LogRecord) encodedSize() uint64 {
	inner := 8 /* record index */ + 1 /* op */ +
		lenWidth + uint64(len(rec.Key)) +
		lenWidth + uint64(len(rec.Value))
	return lenWidth + inner
}

// Encode writes rec to w as `length-prefixed inner payload`, where the inner
// payload is `record_index | op | len(key) key | len(value) value`. This is
// the self-delimiting binary form LogFile persists and Log.iter replays.
func (rec *LogRecord) Encode(w io.Writer) (int, error) {
	inner := make([]byte, rec.encodedSize()-lenWidth)
	off := 0
	enc.PutUint64(inner[off:], rec.RecordIndex)
	off += 8
	inner[off] = byte(rec.Op)
	off++
	enc.PutUint64(inner[off:], uint64(len(rec.Key)))
	off += lenWidth
	off += copy(inner[off:], rec.Key)
	enc.PutUint64(inner[off:], uint64(len(rec.Value)))
	off += lenWidth
	off += copy(inner[off:], rec.Value)

	header := make([]byte, lenWidth)
	enc.PutUint64(header, uint64(len(inner)))
	n, err := w.Write(header)
	if err != nil {
		return n, err
	}
	m, err := w.Write(inner)
	return n + m, err
}

// DecodeLogRecord reads one length-prefixed LogRecord from r. A short read
// or a length prefix that disagrees with the bytes that follow is reported
// as io.ErrUnexpectedEOF / io.EOF, which LogFile.open and LogFile.read
// translate into Corrupt.
func DecodeLogRecord(r io.Reader) (*LogRecord, error) {
	header := make([]byte, lenWidth)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	inner := make([]byte, enc.Uint64(header))
	if _, err := io.ReadFull(r, inner); err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	if len(inner) < 8+1+lenWidth {
		return nil, io.ErrUnexpectedEOF
	}

	rec := &LogRecord{}
	off := 0
	rec.RecordIndex = enc.Uint64(inner[off:])
	off += 8
	rec.Op = OpKind(inner[off])
	off++
	keyLen := enc.Uint64(inner[off:])
	off += lenWidth
	if keyLen > uint64(len(inner)-off) || uint64(len(inner)-off)-keyLen < lenWidth {
		return nil, io.ErrUnexpectedEOF
	}
	rec.Key = string(inner[off : off+int(keyLen)])
	off += int(keyLen)
	valLen := enc.Uint64(inner[off:])
	off += lenWidth
	if valLen > uint64(len(inner)-off) {
		return nil, io.ErrUnexpectedEOF
	}
	rec.Value = string(inner[off : off+int(valLen)])
	return rec, nil
}
