// Package journal persists published opmon snapshots to a local bbolt file
// so operators can inspect recent monitoring history without the upstream
// backend.
package journal

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/alessandrothea/daqmod/pkg/opmon"
)

var bucketSnapshots = []byte("snapshots")

// journalTimeFormat is RFC3339 with fixed-width nanoseconds so keys sort
// lexicographically by time.
const journalTimeFormat = "2006-01-02T15:04:05.000000000Z"

// Journal is an append-only bbolt store of opmon snapshots.
// It is safe for concurrent use.
type Journal struct {
	db     *bolt.DB
	path   string
	retain time.Duration
}

// Open opens (or creates) the journal database at path. retain is the age
// beyond which Prune deletes entries; zero keeps everything.
func Open(path string, retain time.Duration) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: init bucket: %w", err)
	}

	return &Journal{db: db, path: path, retain: retain}, nil
}

// Append stores one snapshot. Keys are timestamp-prefixed so a cursor scan
// yields chronological order.
func (j *Journal) Append(s opmon.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("journal: marshal snapshot: %w", err)
	}
	key := snapshotKey(s)
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put(key, data)
	})
}

// Recent returns up to n snapshots, newest first. n <= 0 returns nil.
func (j *Journal) Recent(n int) ([]opmon.Snapshot, error) {
	if n <= 0 {
		return nil, nil
	}
	var out []opmon.Snapshot
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSnapshots).Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var s opmon.Snapshot
			if err := json.Unmarshal(v, &s); err != nil {
				// Skip undecodable entries rather than failing the scan.
				continue
			}
			out = append(out, s)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal: scan: %w", err)
	}
	return out, nil
}

// Prune deletes snapshots older than the retention window. A zero window
// makes Prune a no-op.
func (j *Journal) Prune() error {
	if j.retain <= 0 {
		return nil
	}
	cutoff := []byte(time.Now().UTC().Add(-j.retain).Format(journalTimeFormat))
	return j.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSnapshots).Cursor()
		for k, _ := c.First(); k != nil && keyBefore(k, cutoff); k, _ = c.First() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

// DBPath returns the filesystem path of the database file.
func (j *Journal) DBPath() string { return j.path }

// Close closes the underlying database.
func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("journal: close: %w", err)
	}
	return nil
}

// snapshotKey builds "timestamp|session|module" so entries sort by time and
// never collide across modules collected at the same tick.
func snapshotKey(s opmon.Snapshot) []byte {
	return []byte(fmt.Sprintf("%s|%s|%s",
		s.CollectedAt.UTC().Format(journalTimeFormat), s.Session, s.Module))
}

// keyBefore reports whether key's timestamp prefix sorts before cutoff.
func keyBefore(key, cutoff []byte) bool {
	end := len(key)
	for i, b := range key {
		if b == '|' {
			end = i
			break
		}
	}
	return string(key[:end]) < string(cutoff)
}
