package engine

import (
	"sync"

	"go.uber.org/zap"
)

// Engine is the small polymorphic interface spec section 9 calls out as the
// drop-in boundary for an alternate backend (see boltengine.go). The
// segmented-log implementation below, KVEngine, is the default.
type Engine interface {
	Set(key, value string) error
	Get(key string) (string, bool, error)
	Remove(key string) error
	Close() error
}

// KVEngine is the default Engine: a segmented append-only Log plus an
// in-memory Index mapping key to the record_index of its most recent Set.
// Engine.index and Log.segments are distinct mutexes; every path that needs
// both acquires them in the order Engine.index -> Log.segments (spec
// section 5) to avoid deadlock against Log's own internal locking.
type KVEngine struct {
	mu     sync.Mutex
	index  map[string]uint64
	log    *Log
	logger *zap.Logger
}

// Open opens (or creates) a KVEngine rooted at dir, replaying the log to
// rebuild the in-memory index per spec section 4.4.
func Open(dir string, config Config, logger *zap.Logger) (*KVEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log, err := openLog(dir, config.withDefaults(), logger)
	if err != nil {
		return nil, err
	}
	e := &KVEngine{
		index:  make(map[string]uint64),
		log:    log,
		logger: logger,
	}
	if err := log.iter(func(rec *LogRecord) error {
		switch rec.Op {
		case OpSet:
			e.index[rec.Key] = rec.RecordIndex
		case OpRemove:
			delete(e.index, rec.Key)
		}
		return nil
	}); err != nil {
		log.close()
		return nil, err
	}
	return e, nil
}

// Set appends a Set record, updates the index, and may trigger compaction.
func (e *KVEngine) Set(key, value string) error {
	e.mu.Lock()
	idx, err := e.log.append(OpSet, key, value)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.index[key] = idx
	e.mu.Unlock()

	return e.maybeCompact()
}

// Get looks up key in the index, then resolves its record_index to a value
// via the log. A Remove record found where a Set is expected means the
// index is out of sync with the log - Corrupt, per spec section 4.5.
func (e *KVEngine) Get(key string) (string, bool, error) {
	e.mu.Lock()
	idx, ok := e.index[key]
	e.mu.Unlock()
	if !ok {
		return "", false, nil
	}

	rec, err := e.log.read(idx)
	if err != nil {
		return "", false, err
	}
	if rec.Op != OpSet {
		return "", false, errCorrupt("index points at a non-Set record", nil)
	}
	return rec.Value, true, nil
}

// Remove appends a tombstone for key and erases it from the index.
// Removing an absent key surfaces KeyNotFound to the caller.
func (e *KVEngine) Remove(key string) error {
	e.mu.Lock()
	if _, ok := e.index[key]; !ok {
		e.mu.Unlock()
		return errKeyNotFound(key)
	}
	_, err := e.log.append(OpRemove, key, "")
	if err != nil {
		e.mu.Unlock()
		return err
	}
	delete(e.index, key)
	e.mu.Unlock()

	return e.maybeCompact()
}

// maybeCompact triggers a global compaction once the log's total size
// exceeds the configured high-water mark. The predicate is built from a
// brief snapshot of the index (spec section 9's cycle-breaking resolution):
// acquire e.mu just long enough to copy key->record_index, then run
// compaction without holding it.
func (e *KVEngine) maybeCompact() error {
	if e.log.sizeBytes() < e.log.config.CompactionThresholdBytes {
		return nil
	}

	e.mu.Lock()
	live := make(map[string]uint64, len(e.index))
	for k, v := range e.index {
		live[k] = v
	}
	e.mu.Unlock()

	predicate := func(rec *LogRecord) bool {
		switch rec.Op {
		case OpSet:
			idx, ok := live[rec.Key]
			return ok && idx == rec.RecordIndex
		case OpRemove:
			_, stillLive := live[rec.Key]
			return !stillLive
		default:
			return false
		}
	}
	return e.log.compact(predicate)
}

func (e *KVEngine) Close() error {
	return e.log.close()
}

// SizeBytes returns the log's total on-disk size, for admin/stats reporting.
func (e *KVEngine) SizeBytes() uint64 {
	return e.log.sizeBytes()
}

// SegmentCount returns the number of segments currently making up the log.
func (e *KVEngine) SegmentCount() int {
	e.log.mu.Lock()
	defer e.log.mu.Unlock()
	return len(e.log.segments)
}

var _ Engine = (*KVEngine)(nil)
