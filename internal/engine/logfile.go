package engine

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/tysonmote/gommap"
)

// LogFile is one append-only segment file: a descriptor, an in-memory map
// from record_index to the byte offset it was written at, and the backing
// file handle. Unlike the teacher's store+index pair, offsetMap has no
// on-disk counterpart - it is entirely rebuilt by scanning the file on
// open, per spec section 4.1.
//
// The active (unsealed) segment is written through a buffered writer and
// read back with pread, since it keeps growing. Once sealed, the file is
// immutable, so reads switch to a memory-mapped view the same way the
// teacher's index.go mmaps its (fixed-size) index file - just applied here
// to the segment's own data instead of a side index.
type LogFile struct {
	mu         sync.Mutex
	descriptor SegmentDescriptor
	offsetMap  map[uint64]uint64
	file       *os.File
	buf        *bufio.Writer
	path       string
	size       uint64
	sealed     bool
	mapped     gommap.MMap
}

// create makes a new, empty segment file for descriptor at path.
func create(path string, descriptor SegmentDescriptor) (*LogFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errIo("create segment file", err)
	}
	return &LogFile{
		descriptor: descriptor,
		offsetMap:  make(map[uint64]uint64),
		file:       f,
		buf:        bufio.NewWriter(f),
		path:       path,
	}, nil
}

// open opens an existing segment file at path and rebuilds its offsetMap by
// scanning every record from offset 0. A truncated trailing record is
// reported as Corrupt (spec section 9's default, non-repairing choice).
func open(path string, descriptor SegmentDescriptor) (*LogFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, errIo("open segment file", err)
	}
	lf := &LogFile{
		descriptor: descriptor,
		offsetMap:  make(map[uint64]uint64),
		file:       f,
		path:       path,
	}

	r := bufio.NewReader(f)
	var offset uint64
	var maxSeen uint64
	sawAny := false
	for {
		rec, err := DecodeLogRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			f.Close()
			return nil, errCorrupt(fmt.Sprintf("segment %s: partial record at offset %d", path, offset), err)
		}
		lf.offsetMap[rec.RecordIndex] = offset
		if !sawAny || rec.RecordIndex > maxSeen {
			maxSeen = rec.RecordIndex
			sawAny = true
		}
		offset += rec.encodedSize()
	}
	lf.size = offset

	if !descriptor.active() {
		// The descriptor's max_index should already be correct for a
		// sealed segment; reconcile from the scan anyway so a crash
		// between steps (i) and (iii) of rotation is absorbed.
		if sawAny && maxSeen > lf.descriptor.MaxIndex {
			lf.descriptor.MaxIndex = maxSeen
		}
		if err := lf.sealReads(); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		if _, err := f.Seek(int64(lf.size), io.SeekStart); err != nil {
			f.Close()
			return nil, errIo("seek active segment to end", err)
		}
		lf.buf = bufio.NewWriter(f)
	}
	return lf, nil
}

// sealReads marks the segment read-only and, if it holds any bytes,
// memory-maps it for fast repeated reads.
func (lf *LogFile) sealReads() error {
	lf.sealed = true
	if lf.size == 0 {
		return nil
	}
	m, err := gommap.Map(lf.file.Fd(), gommap.PROT_READ, gommap.MAP_SHARED)
	if err != nil {
		return errIo("mmap sealed segment", err)
	}
	lf.mapped = m
	return nil
}

// read returns the LogRecord stored at recordIndex. A miss in offsetMap is
// NotFound without ever scanning the file linearly.
func (lf *LogFile) read(recordIndex uint64) (*LogRecord, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	offset, ok := lf.offsetMap[recordIndex]
	if !ok {
		return nil, newErr(KeyNotFound, fmt.Sprintf("record %d not in segment", recordIndex), nil)
	}

	var r io.Reader
	if lf.sealed && lf.mapped != nil {
		r = bytes.NewReader(lf.mapped[offset:])
	} else {
		if lf.buf != nil {
			if err := lf.buf.Flush(); err != nil {
				return nil, errIo("flush before read", err)
			}
		}
		r = io.NewSectionReader(lf.file, int64(offset), int64(lf.size-offset))
	}
	rec, err := DecodeLogRecord(r)
	if err != nil {
		return nil, errCorrupt(fmt.Sprintf("segment %s: record %d undecodable", lf.path, recordIndex), err)
	}
	return rec, nil
}

// append writes rec to the end of the file. Durability (fsync) is the Log's
// responsibility, not LogFile's.
func (lf *LogFile) append(rec *LogRecord) error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.sealed {
		return errIo("append to sealed segment", nil)
	}

	offset := lf.size
	n, err := rec.Encode(lf.buf)
	if err != nil {
		return errIo("append record", err)
	}
	lf.offsetMap[rec.RecordIndex] = offset
	lf.size += uint64(n)
	if rec.RecordIndex > lf.descriptor.MaxIndex {
		lf.descriptor.MaxIndex = rec.RecordIndex
	}
	return nil
}

// flushAndSync flushes the buffered writer and fsyncs the underlying file.
func (lf *LogFile) flushAndSync() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.buf != nil {
		if err := lf.buf.Flush(); err != nil {
			return errIo("flush segment", err)
		}
	}
	if err := lf.file.Sync(); err != nil {
		return errIo("fsync segment", err)
	}
	return nil
}

func (lf *LogFile) sizeBytes() uint64 {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.size
}

// seal flips the segment to read-only, replacing the active sentinel with
// its true max_index, flushing and mmapping it for reads.
func (lf *LogFile) seal(trueMaxIndex uint64) error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.buf != nil {
		if err := lf.buf.Flush(); err != nil {
			return errIo("flush segment before seal", err)
		}
	}
	if err := lf.file.Sync(); err != nil {
		return errIo("fsync segment before seal", err)
	}
	lf.descriptor.MaxIndex = trueMaxIndex
	return lf.sealReads()
}

func (lf *LogFile) close() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.mapped != nil {
		_ = lf.mapped.UnsafeUnmap()
		lf.mapped = nil
	}
	if lf.buf != nil {
		if err := lf.buf.Flush(); err != nil {
			lf.file.Close()
			return errIo("flush on close", err)
		}
	}
	return lf.file.Close()
}

// compact rewrites the segment, keeping only records for which predicate
// returns true, preserving their original record_index values. It writes to
// a sibling temp file and atomically renames it over the original; until
// the rename, the original file is untouched, so a crash mid-compaction
// loses nothing.
func (lf *LogFile) compact(predicate func(*LogRecord) bool) error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.buf != nil {
		if err := lf.buf.Flush(); err != nil {
			return errIo("flush before compact", err)
		}
	}

	tmpPath := lf.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errIo("create compaction temp file", err)
	}
	w := bufio.NewWriter(tmp)

	newOffsets := make(map[uint64]uint64)
	var newSize uint64

	r := bufio.NewReader(io.NewSectionReader(lf.file, 0, int64(lf.size)))
	for {
		rec, derr := DecodeLogRecord(r)
		if derr == io.EOF {
			break
		}
		if derr != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return errCorrupt("segment undecodable during compaction", derr)
		}
		if !predicate(rec) {
			continue
		}
		n, werr := rec.Encode(w)
		if werr != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return errIo("write compacted record", werr)
		}
		newOffsets[rec.RecordIndex] = newSize
		newSize += uint64(n)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errIo("flush compaction temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errIo("fsync compaction temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errIo("close compaction temp file", err)
	}

	if lf.mapped != nil {
		_ = lf.mapped.UnsafeUnmap()
		lf.mapped = nil
	}
	if err := lf.file.Close(); err != nil {
		return errIo("close segment before compaction rename", err)
	}
	if err := os.Rename(tmpPath, lf.path); err != nil {
		return errIo("rename compacted segment", err)
	}

	f, err := os.OpenFile(lf.path, os.O_RDWR, 0644)
	if err != nil {
		return errIo("reopen compacted segment", err)
	}
	lf.file = f
	lf.offsetMap = newOffsets
	lf.size = newSize
	if lf.sealed {
		lf.buf = nil
		if newSize > 0 {
			m, merr := gommap.Map(f.Fd(), gommap.PROT_READ, gommap.MAP_SHARED)
			if merr != nil {
				return errIo("remap compacted sealed segment", merr)
			}
			lf.mapped = m
		}
	} else {
		lf.buf = bufio.NewWriter(f)
		if _, err := f.Seek(int64(newSize), io.SeekStart); err != nil {
			return errIo("seek compacted active segment", err)
		}
	}
	return nil
}

func segmentPath(dir string, d SegmentDescriptor) string {
	return filepath.Join(dir, d.fileName())
}
