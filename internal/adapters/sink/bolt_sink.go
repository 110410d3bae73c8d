package sink

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

const defaultBucket = "haptic_events"

// BoltSink keeps event history in a local bbolt file, keyed by a big-endian
// sequence so cursor order is insertion order. Records already stored under
// the same id are skipped.
type BoltSink struct {
	db      *bbolt.DB
	bucket  []byte
	ids     []byte
	maxKeep int
}

// OpenBoltSink opens (or creates) path. maxKeep > 0 bounds the stored history.
func OpenBoltSink(path, bucket string, maxKeep int) (*BoltSink, error) {
	if bucket == "" {
		bucket = defaultBucket
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("bolt dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	s := &BoltSink{db: db, bucket: []byte(bucket), ids: []byte(bucket + "_ids"), maxKeep: maxKeep}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(s.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(s.ids)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return s, nil
}

func (s *BoltSink) Name() string { return "bolt" }

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func (s *BoltSink) WriteBatch(records []*domain.EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		ids := tx.Bucket(s.ids)
		for _, r := range records {
			id := r.ID[:]
			if ids.Get(id) != nil {
				continue
			}
			body, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("encode record %s: %w", r.ID, err)
			}
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			key := seqKey(seq)
			if err := b.Put(key, body); err != nil {
				return err
			}
			if err := ids.Put(id, key); err != nil {
				return err
			}
		}
		return s.trim(b, ids)
	})
}

// trim deletes the oldest records beyond maxKeep.
func (s *BoltSink) trim(b, ids *bbolt.Bucket) error {
	if s.maxKeep <= 0 {
		return nil
	}
	c := b.Cursor()
	total := 0
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		total++
	}
	excess := total - s.maxKeep
	if excess <= 0 {
		return nil
	}
	var victims [][]byte
	for k, v := c.First(); k != nil && len(victims) < excess; k, v = c.Next() {
		var r domain.EventRecord
		if err := json.Unmarshal(v, &r); err == nil {
			if err := ids.Delete(r.ID[:]); err != nil {
				return err
			}
		}
		victims = append(victims, append([]byte(nil), k...))
	}
	for _, k := range victims {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Recent returns up to n records, newest first.
func (s *BoltSink) Recent(n int) ([]*domain.EventRecord, error) {
	var out []*domain.EventRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, v := c.Last(); k != nil && (n <= 0 || len(out) < n); k, v = c.Prev() {
			var r domain.EventRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode record at %x: %w", k, err)
			}
			out = append(out, &r)
		}
		return nil
	})
	return out, err
}

func (s *BoltSink) Close() error {
	return s.db.Close()
}

var _ ports.Sink = (*BoltSink)(nil)
