// Package bbolt implements the ports.LedgerStore interface using bbolt
// (embedded B+ tree). The whole ledger lives as one JSON document under the
// "ledger" bucket. Writes are transactional: a crash mid-write cannot
// corrupt the previously committed document.
package bbolt

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/corey/thoughts/internal/ports"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// Bucket keys
var (
	bucketLedger = []byte("ledger")
	keyDocument  = []byte("document")
)

// Store implements ports.LedgerStore backed by bbolt.
type Store struct {
	db  *bolt.DB
	log *zap.Logger
}

// NewStore opens (or creates) a bbolt database at the given path.
// A nil logger disables corruption warnings.
func NewStore(path string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path()
}

// Load retrieves the ledger document. A missing or malformed document yields
// an empty ledger; only a failing database is reported as an error.
func (s *Store) Load() (ports.Ledger, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLedger)
		if b == nil {
			return nil
		}
		// Copy bytes out of the transaction (bbolt slices are only valid within tx)
		if v := b.Get(keyDocument); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return ports.Ledger{}, fmt.Errorf("read ledger: %w", err)
	}
	return s.decode(data), nil
}

func (s *Store) decode(data []byte) ports.Ledger {
	l := ports.Ledger{}
	if len(data) == 0 {
		return l
	}
	if err := json.Unmarshal(data, &l); err != nil {
		s.log.Warn("ledger document corrupt, starting empty", zap.Error(err), zap.Int("bytes", len(data)))
		return ports.Ledger{}
	}
	// "null" author entries carry nothing; drop them so callers never see nil maps.
	for id, tm := range l {
		if tm == nil {
			delete(l, id)
		}
	}
	return l
}

// Save overwrites the ledger document in one transaction.
func (s *Store) Save(l ports.Ledger) error {
	if l == nil {
		l = ports.Ledger{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketLedger)
		if err != nil {
			return err
		}
		return b.Put(keyDocument, data)
	})
}

// Wipe removes the ledger bucket.
// Idempotent: wiping an empty database is not an error.
func (s *Store) Wipe() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketLedger); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		return nil
	})
}
