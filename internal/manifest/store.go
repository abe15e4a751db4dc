package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketManifest = []byte("manifest")
	keyManifest    = []byte("gallery_manifest")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore creates a new BoltDB-backed manifest store.
func NewBoltStore(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketManifest)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{db: db, path: path}, nil
}

// Save replaces the stored manifest.
func (s *BoltStore) Save(m *Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketManifest)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Put(keyManifest, data)
	})
}

// Load returns the stored manifest, or (nil, nil) when none exists.
func (s *BoltStore) Load() (*Manifest, error) {
	var m Manifest
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketManifest)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		data := b.Get(keyManifest)
		if data == nil {
			return nil
		}

		found = true
		return json.Unmarshal(data, &m)
	})
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, nil
	}

	return &m, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// FileStore implements Store using a plain JSON file, matching the manifest
// interchange format consumed by external tooling.
type FileStore struct {
	path string
}

// NewFileStore creates a new file-based manifest store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save writes the manifest as indented JSON.
func (s *FileStore) Save(m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	return os.WriteFile(s.path, data, 0644)
}

// Load reads the manifest file. A missing file is not an error; a present
// but unparsable file is, so the staleness comparator can report corruption.
func (s *FileStore) Load() (*Manifest, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}

	return &m, nil
}

// Close is a no-op for FileStore.
func (s *FileStore) Close() error {
	return nil
}

// MemoryStore implements Store using in-memory storage.
type MemoryStore struct {
	m *Manifest
}

// NewMemoryStore creates a new in-memory manifest store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save stores the manifest in memory.
func (s *MemoryStore) Save(m *Manifest) error {
	s.m = m
	return nil
}

// Load returns the stored manifest.
func (s *MemoryStore) Load() (*Manifest, error) {
	return s.m, nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}
