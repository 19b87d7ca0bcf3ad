// Package journal persists normalized events in bbolt so the
// synchronizer's dedup set and recent history survive restarts.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/farmtrace/provenance/common/models"
)

var eventsBucket = []byte("events")

// Store is an append-mostly event journal keyed by sequence key. Keys are
// big-endian (block, log index) so bbolt's byte order is ledger order and
// pruning the front removes the oldest events.
type Store struct {
	db       *bolt.DB
	capacity int
}

// Open opens or creates the journal file. Capacity bounds the number of
// retained events; older entries are pruned as new ones append.
func Open(path string, capacity int) (*Store, error) {
	if capacity < 1 {
		capacity = 1
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(eventsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal bucket: %w", err)
	}

	return &Store{db: db, capacity: capacity}, nil
}

func seqKeyBytes(k models.SequenceKey) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint64(buf[:8], k.BlockNumber)
	binary.BigEndian.PutUint32(buf[8:], k.LogIndex)
	return buf
}

// Append stores one event and prunes the oldest entries beyond capacity.
// Appending an already-journaled sequence key overwrites in place.
func (s *Store) Append(event models.DomainEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.SequenceKey, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(eventsBucket)
		if err := b.Put(seqKeyBytes(event.SequenceKey), payload); err != nil {
			return fmt.Errorf("failed to journal event %s: %w", event.SequenceKey, err)
		}

		count := 0
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			count++
		}
		for count > s.capacity {
			k, _ := c.First()
			if k == nil {
				break
			}
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("failed to prune journal: %w", err)
			}
			count--
		}
		return nil
	})
}

// Has reports whether a sequence key is journaled.
func (s *Store) Has(key models.SequenceKey) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(eventsBucket).Get(seqKeyBytes(key)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to read journal: %w", err)
	}
	return found, nil
}

// Recent returns up to limit journaled events, newest first.
func (s *Store) Recent(limit int) ([]models.DomainEvent, error) {
	if limit < 1 {
		return nil, nil
	}

	var events []models.DomainEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(eventsBucket).Cursor()
		for k, v := c.Last(); k != nil && len(events) < limit; k, v = c.Prev() {
			var event models.DomainEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return fmt.Errorf("failed to decode journaled event: %w", err)
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Size returns the number of journaled events.
func (s *Store) Size() (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(eventsBucket).ForEach(func(_, _ []byte) error {
			count++
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to size journal: %w", err)
	}
	return count, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}
