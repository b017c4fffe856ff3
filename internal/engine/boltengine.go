package engine

import (
	"path/filepath"

	"go.etcd.io/bbolt"
)

// boltBucket holds every key this engine manages.
var boltBucket = []byte("kvs")

// BoltEngine is the alternate Engine backend spec section 9 calls a
// "drop-in" collaborator: an embedded ordered key-value store instead of
// the segmented log. Selected with kvs-server --engine bolt. Durability is
// bbolt's own responsibility - every Set/Remove runs inside an
// update transaction, which fsyncs on commit, so the Engine contract's
// durability requirement holds regardless of backend.
type BoltEngine struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) a bbolt-backed store at dir/kvs.db.
func OpenBolt(dir string) (*BoltEngine, error) {
	db, err := bbolt.Open(filepath.Join(dir, "kvs.db"), 0644, nil)
	if err != nil {
		return nil, errIo("open bolt store", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, errIo("create bolt bucket", err)
	}
	return &BoltEngine{db: db}, nil
}

func (b *BoltEngine) Set(key, value string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return errIo("bolt set", err)
	}
	return nil
}

func (b *BoltEngine) Get(key string) (string, bool, error) {
	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(boltBucket).Get([]byte(key))
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return "", false, errIo("bolt get", err)
	}
	if value == nil {
		return "", false, nil
	}
	return string(value), true, nil
}

func (b *BoltEngine) Remove(key string) error {
	var existed bool
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		existed = bucket.Get([]byte(key)) != nil
		if !existed {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
	if err != nil {
		return errIo("bolt remove", err)
	}
	if !existed {
		return errKeyNotFound(key)
	}
	return nil
}

func (b *BoltEngine) Close() error {
	return b.db.Close()
}

// SizeBytes returns bbolt's reported on-disk database size.
func (b *BoltEngine) SizeBytes() uint64 {
	var size int64
	_ = b.db.View(func(tx *bbolt.Tx) error {
		size = tx.Size()
		return nil
	})
	return uint64(size)
}

var _ Engine = (*BoltEngine)(nil)
