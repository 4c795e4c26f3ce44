package draft

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Slot is a key-value persistence slot
type Slot interface {
	// Get returns the stored value, or nil and no error if the key is absent
	Get(key string) ([]byte, error)

	// Put stores value under key, replacing any previous value
	Put(key string, value []byte) error
}

var bucketDrafts = []byte("drafts")

// lockTimeout bounds the wait for another process's lock on the file
const lockTimeout = 5 * time.Second

// ErrClosed is returned by a BoltSlot after Close
var ErrClosed = errors.New("draft storage closed")

// BoltSlot implements Slot using BoltDB. The file is opened for the
// duration of each Get or Put only, so "serve" and the CLI commands can
// share one draft file.
type BoltSlot struct {
	mu     sync.Mutex
	path   string
	closed bool
}

// OpenBoltSlot creates the BoltDB file at path if needed and checks it opens
func OpenBoltSlot(path string) (*BoltSlot, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	s := &BoltSlot{path: path}
	err := s.update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketDrafts); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketDrafts, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *BoltSlot) open(readOnly bool) (*bolt.DB, error) {
	if s.closed {
		return nil, ErrClosed
	}

	db, err := bolt.Open(s.path, 0600, &bolt.Options{
		Timeout:  lockTimeout,
		ReadOnly: readOnly,
	})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("failed to open database: %s is locked by another process", s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func (s *BoltSlot) update(fn func(tx *bolt.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(fn)
}

// Get returns the value stored under key
func (s *BoltSlot) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.open(true)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var value []byte
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDrafts)
		if b == nil {
			return nil
		}
		if data := b.Get([]byte(key)); data != nil {
			// bbolt memory is only valid inside the transaction
			value = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	return value, nil
}

// Put stores value under key
func (s *BoltSlot) Put(key string, value []byte) error {
	return s.update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketDrafts)
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketDrafts, err)
		}
		if err := b.Put([]byte(key), value); err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
		return nil
	})
}

// Path returns the database file path
func (s *BoltSlot) Path() string {
	return s.path
}

// Close makes further Get and Put calls fail with ErrClosed
func (s *BoltSlot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// MemorySlot is a Slot kept in process memory
type MemorySlot struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemorySlot creates an empty in-memory slot
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{values: make(map[string][]byte)}
}

// Get returns the value stored under key
func (s *MemorySlot) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// Put stores value under key
func (s *MemorySlot) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = append([]byte(nil), value...)
	return nil
}
