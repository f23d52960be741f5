package cache

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// bucketName is the single bucket holding all cache entries.
var bucketName = []byte("hookstorm")

// Bolt is a Backend persisted to a bbolt database file. A single Bolt may be
// shared by concurrent contexts; bbolt serializes writers internally.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (creating if needed) a bbolt-backed cache at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &Bolt{db: db}, nil
}

// Get implements Backend.
func (b *Bolt) Get(key string) ([]byte, bool, error) {
	var data []byte
	var found bool

	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("cache get %q: %w", key, err)
	}
	return data, found, nil
}

// Set implements Backend.
func (b *Bolt) Set(key string, data []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

// Delete implements Backend.
func (b *Bolt) Delete(key string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("cache delete %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (b *Bolt) Close() error {
	return b.db.Close()
}
