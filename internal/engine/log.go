package engine

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Log is the ordered collection of segments backing one store directory:
// append, random read by record_index, rotation, global compaction, and
// crash recovery. segments is guarded by mu; nextIndex is reserved
// lock-free via atomic.Uint64, per spec section 5's locking order
// (Engine.index -> Log.segments never runs the other way).
type Log struct {
	mu        sync.Mutex
	dir       string
	config    Config
	nextIndex atomic.Uint64
	segments  []*LogFile // ordered by MinIndex ascending; last is active
	logger    *zap.Logger
}

// openLog runs the open protocol of spec section 4.3: read the manifest
// (empty means first boot - create segment 0 as the active tail), open
// every described segment, then set nextIndex from the tail's true maximum.
func openLog(dir string, config Config, logger *zap.Logger) (*Log, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errIo("create store dir", err)
	}

	l := &Log{dir: dir, config: config, logger: logger}

	descriptors, err := readManifest(dir)
	if err != nil {
		return nil, err
	}

	if len(descriptors) == 0 {
		initial := SegmentDescriptor{FileNumber: 0, MinIndex: 0, MaxIndex: ActiveSentinel}
		lf, err := create(segmentPath(dir, initial), initial)
		if err != nil {
			return nil, err
		}
		if err := writeManifest(dir, []SegmentDescriptor{initial}); err != nil {
			lf.close()
			return nil, err
		}
		l.segments = []*LogFile{lf}
		l.nextIndex.Store(0)
		return l, nil
	}

	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].MinIndex < descriptors[j].MinIndex })
	segments := make([]*LogFile, 0, len(descriptors))
	for _, d := range descriptors {
		lf, err := open(segmentPath(dir, d), d)
		if err != nil {
			for _, s := range segments {
				s.close()
			}
			return nil, err
		}
		segments = append(segments, lf)
	}
	l.segments = segments

	tail := segments[len(segments)-1]
	next := tail.descriptor.MinIndex
	if !tail.descriptor.active() {
		next = tail.descriptor.MaxIndex + 1
	}
	// The active tail's descriptor carries the sentinel, so its true
	// maximum comes from the records the open scan found in it.
	for idx := range tail.offsetMap {
		if idx >= next {
			next = idx + 1
		}
	}
	l.nextIndex.Store(next)
	return l, nil
}

// append reserves the next record_index atomically, appends the built
// record to the active segment, and fsyncs it. A failed append leaves a gap
// in the index space (acceptable: indices need only be monotonic, not
// dense) rather than un-reserving idx.
func (l *Log) append(op OpKind, key, value string) (uint64, error) {
	idx := l.nextIndex.Add(1) - 1
	rec := &LogRecord{RecordIndex: idx, Op: op, Key: key, Value: value}

	l.mu.Lock()
	defer l.mu.Unlock()

	active := l.segments[len(l.segments)-1]
	if err := active.append(rec); err != nil {
		return 0, err
	}
	if err := active.flushAndSync(); err != nil {
		return 0, err
	}

	if active.sizeBytes() >= l.config.MaxSegmentBytes {
		if err := l.sealLast(); err != nil {
			return idx, err
		}
	}
	return idx, nil
}

// read locates the segment whose [MinIndex,MaxIndex] contains recordIndex
// via binary search on the ordered segment list, then delegates to it.
func (l *Log) read(recordIndex uint64) (*LogRecord, error) {
	l.mu.Lock()
	segs := l.segments
	l.mu.Unlock()

	i := sort.Search(len(segs), func(i int) bool {
		return segs[i].descriptor.MinIndex > recordIndex
	})
	if i == 0 {
		return nil, newErr(KeyNotFound, fmt.Sprintf("record %d before first segment", recordIndex), nil)
	}
	s := segs[i-1]
	if s.descriptor.MaxIndex != ActiveSentinel && recordIndex > s.descriptor.MaxIndex {
		return nil, newErr(KeyNotFound, fmt.Sprintf("record %d out of range", recordIndex), nil)
	}
	return s.read(recordIndex)
}

// sealLast rotates the active segment: replace its sentinel max_index with
// the true maximum, create a fresh active segment after it, and durably
// rewrite the manifest. Callers must hold l.mu.
func (l *Log) sealLast() error {
	last := l.segments[len(l.segments)-1]
	trueMax := l.nextIndex.Load() - 1
	if trueMax < last.descriptor.MinIndex {
		// Nothing was ever appended to this segment; nothing to seal.
		return nil
	}
	if err := last.seal(trueMax); err != nil {
		return err
	}

	newDescriptor := SegmentDescriptor{
		FileNumber: last.descriptor.FileNumber + 1,
		MinIndex:   trueMax + 1,
		MaxIndex:   ActiveSentinel,
	}
	next, err := create(segmentPath(l.dir, newDescriptor), newDescriptor)
	if err != nil {
		return err
	}
	l.segments = append(l.segments, next)

	if err := l.writeManifestLocked(); err != nil {
		return err
	}
	l.logger.Info("sealed segment, rotated log",
		zap.Uint16("sealed_file", last.descriptor.FileNumber),
		zap.Uint16("new_file", newDescriptor.FileNumber))
	return nil
}

func (l *Log) writeManifestLocked() error {
	entries := make([]SegmentDescriptor, len(l.segments))
	for i, s := range l.segments {
		entries[i] = s.descriptor
	}
	return writeManifest(l.dir, entries)
}

// sizeBytes returns the total on-disk size across all segments.
func (l *Log) sizeBytes() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total uint64
	for _, s := range l.segments {
		total += s.sizeBytes()
	}
	return total
}

// iter calls fn for every record across all segments in record_index order,
// used by the engine to rebuild its Index on open (spec section 4.4).
func (l *Log) iter(fn func(*LogRecord) error) error {
	l.mu.Lock()
	segs := make([]*LogFile, len(l.segments))
	copy(segs, l.segments)
	l.mu.Unlock()

	for _, s := range segs {
		records, err := scanAll(s)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if err := fn(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// scanAll decodes every record currently in s, in record_index order (which
// need not match file order), regardless of whether the segment is active or
// sealed.
func scanAll(s *LogFile) ([]*LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	indexes := make([]uint64, 0, len(s.offsetMap))
	for idx := range s.offsetMap {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	records := make([]*LogRecord, 0, len(indexes))
	for _, idx := range indexes {
		offset := s.offsetMap[idx]
		var r io.Reader
		if s.sealed && s.mapped != nil {
			r = bytes.NewReader(s.mapped[offset:])
		} else {
			if s.buf != nil {
				if err := s.buf.Flush(); err != nil {
					return nil, errIo("flush before scan", err)
				}
			}
			r = io.NewSectionReader(s.file, int64(offset), int64(s.size-offset))
		}
		rec, err := DecodeLogRecord(r)
		if err != nil {
			return nil, errCorrupt(fmt.Sprintf("segment %s: record %d undecodable during scan", s.path, idx), err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// compact runs global compaction: each segment is rewritten in place
// keeping only records predicate accepts, then the manifest is durably
// rewritten. Held across the whole operation is l.mu, which serializes
// compaction with concurrent appends per spec section 5.
func (l *Log) compact(predicate func(*LogRecord) bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	before := uint64(0)
	for _, s := range l.segments {
		before += s.sizeBytes()
	}

	for _, s := range l.segments {
		if err := s.compact(predicate); err != nil {
			return err
		}
	}
	if err := l.writeManifestLocked(); err != nil {
		return err
	}

	after := uint64(0)
	for _, s := range l.segments {
		after += s.sizeBytes()
	}
	l.logger.Info("compaction complete", zap.Uint64("bytes_before", before), zap.Uint64("bytes_after", after))
	return nil
}

func (l *Log) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.segments {
		if err := s.close(); err != nil {
			return err
		}
	}
	return nil
}
