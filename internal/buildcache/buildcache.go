// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package buildcache records the outcome of function builds so repeated
// builds can tell unchanged units from rebuilt ones and keep their
// archives stable.
package buildcache

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// DefaultFilename is the cache database file name inside a work directory.
const DefaultFilename = "build.db"

// Entry records one unit's last successful build.
type Entry struct {
	// SourceHash is the unit's source tree checksum from the bundle
	// manifest.
	SourceHash string `json:"source_hash"`

	// Archive is the path of the archive written for the unit.
	Archive string `json:"archive"`

	BuiltAt time.Time `json:"built_at"`
}

// Cache is a bolt-backed store of build entries with one bucket per
// deployment and one key per unit.
type Cache struct {
	db *bolt.DB
}

// Open opens or creates the cache database at path. The database is
// locked for the lifetime of the cache; a second Open of the same path
// fails after a short timeout instead of blocking forever.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("cannot open build cache %s: %w", path, err)
	}
	return &Cache{db: db}, nil
}

// Close releases the database file.
func (c *Cache) Close() error {
	return c.db.Close()
}

func deploymentBucket(project, environment string) []byte {
	return []byte(project + "/" + environment)
}

// Lookup returns the recorded entry for a unit, if any.
func (c *Cache) Lookup(project, environment, unit string) (Entry, bool, error) {
	var entry Entry
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(deploymentBucket(project, environment))
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(unit))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("corrupt build cache entry for %q: %w", unit, err)
		}
		found = true
		return nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	return entry, found, nil
}

// Record stores a unit's build entry.
func (c *Cache) Record(project, environment, unit string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(deploymentBucket(project, environment))
		if err != nil {
			return err
		}
		return b.Put([]byte(unit), raw)
	})
}

// Forget removes a unit's entry, if present.
func (c *Cache) Forget(project, environment, unit string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(deploymentBucket(project, environment))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(unit))
	})
}

// Entries returns every recorded entry for a deployment, keyed by unit
// name.
func (c *Cache) Entries(project, environment string) (map[string]Entry, error) {
	entries := make(map[string]Entry)
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(deploymentBucket(project, environment))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("corrupt build cache entry for %q: %w", string(k), err)
			}
			entries[string(k)] = entry
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
