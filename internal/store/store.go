// Package store provides a thin bbolt wrapper for epiflux's local state: a
// merge-provenance ledger recording which publication snapshots have already
// been folded into the diff artifact, and a cache of district/state
// master-data rows.
//
// Design philosophy: the store is an intentional accumulator of the
// pipeline's own run history, not a transparent cache of upstream data. A
// merge is recorded explicitly by the diff command after it succeeds; this
// ledger is what lets `epiflux diff` refuse to double-apply a publication
// date that already went into the artifact.
//
// Buckets:
//
//	merges     — one entry per publication date successfully merged
//	districts  — district/state master-data cache (refreshed on demand)
//	_meta      — internal: schema version, created_at
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/dheyman/epiflux/internal/model"
)

// Current schema version. Bump when bucket layout or key format changes.
const schemaVersion = 1

var (
	bucketMerges    = []byte("merges")
	bucketDistricts = []byte("districts")
	bucketInternal  = []byte("_meta")
)

// AllBuckets lists every top-level bucket for stats and clear operations.
var AllBuckets = []string{"merges", "districts"}

// Store wraps a bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the bbolt database at path. Parent directories are
// created automatically. Runs schema migrations on every open.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.db.Path()
}

// ─── Migrations ───────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMerges, bucketDistricts, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion))); err != nil {
				return err
			}
			return meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339)))
		}
		return nil
	})
}

// ─── Merge ledger ─────────────────────────────────────────────────────────────

// MergeRecord is one entry in the merge-provenance ledger: proof that a
// given publication snapshot has already been folded into the diff
// artifact.
type MergeRecord struct {
	PublicationDate time.Time `json:"publication_date"`
	SnapshotPath    string    `json:"snapshot_path"`
	RecordCount     int       `json:"record_count"`
	MergedAt        time.Time `json:"merged_at"`
}

func mergeKey(t time.Time) []byte {
	return []byte(t.Format("2006-01-02"))
}

// PutMergeRecord records that publicationDate has been merged, stamping
// MergedAt. Callers should write this only after MergeSnapshot and the
// artifact rewrite both succeed.
func (s *Store) PutMergeRecord(rec MergeRecord) error {
	rec.MergedAt = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding merge record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMerges).Put(mergeKey(rec.PublicationDate), data)
	})
}

// HasMerged reports whether publicationDate already has a recorded merge.
func (s *Store) HasMerged(publicationDate time.Time) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketMerges).Get(mergeKey(publicationDate)) != nil
		return nil
	})
	return found, err
}

// ListMergeRecords returns every recorded merge, sorted by publication date.
func (s *Store) ListMergeRecords() ([]MergeRecord, error) {
	var recs []MergeRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMerges).ForEach(func(k, v []byte) error {
			var r MergeRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			recs = append(recs, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].PublicationDate.Before(recs[j].PublicationDate) })
	return recs, nil
}

// ─── District / state cache ───────────────────────────────────────────────────

func districtKey(id model.DistrictID) []byte {
	return []byte(fmt.Sprintf("%d", id))
}

// PutDistrictsBatch replaces the cached district master-data table in a
// single write transaction.
func (s *Store) PutDistrictsBatch(districts []model.District) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketDistricts)
		for _, d := range districts {
			data, err := json.Marshal(d)
			if err != nil {
				return fmt.Errorf("encoding district %d: %w", d.ID, err)
			}
			if err := bucket.Put(districtKey(d.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetDistrict retrieves a cached district by id.
func (s *Store) GetDistrict(id model.DistrictID) (model.District, bool, error) {
	var d model.District
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketDistricts).Get(districtKey(id))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &d)
	})
	if err != nil {
		return d, false, err
	}
	return d, d.ID != 0, nil
}

// ListDistricts returns every cached district, sorted by id.
func (s *Store) ListDistricts() ([]model.District, error) {
	var districts []model.District
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDistricts).ForEach(func(k, v []byte) error {
			var d model.District
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			districts = append(districts, d)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(districts, func(i, j int) bool { return districts[i].ID < districts[j].ID })
	return districts, nil
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

// BucketStats holds row count and byte size for a single bucket.
type BucketStats struct {
	Name  string
	Count int
	Bytes int64
}

// Stats returns row counts and approximate sizes for all buckets.
func (s *Store) Stats() ([]BucketStats, error) {
	buckets := map[string][]byte{
		"merges":    bucketMerges,
		"districts": bucketDistricts,
	}

	var stats []BucketStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for name, bname := range buckets {
			b := tx.Bucket(bname)
			if b == nil {
				continue
			}
			var count int
			var bytes int64
			b.ForEach(func(k, v []byte) error {
				count++
				bytes += int64(len(k) + len(v))
				return nil
			})
			stats = append(stats, BucketStats{Name: name, Count: count, Bytes: bytes})
		}
		return nil
	})
	return stats, err
}

// ClearBucket deletes all entries in the named bucket by drop-and-recreate.
// The database file does not shrink automatically; use Compact to reclaim
// disk space.
func (s *Store) ClearBucket(name string) error {
	bname := []byte(name)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bname); err != nil {
			return fmt.Errorf("clearing bucket %s: %w", name, err)
		}
		_, err := tx.CreateBucket(bname)
		return err
	})
}

// ClearAll deletes all entries from every user-facing bucket.
func (s *Store) ClearAll() error {
	for _, name := range AllBuckets {
		if err := s.ClearBucket(name); err != nil {
			return err
		}
	}
	return nil
}

// Compact rewrites the entire database to a new file, reclaiming disk space
// freed by prior deletions. The operation is safe: all live data is copied
// to a temporary file first, then the original is atomically replaced.
func (s *Store) Compact() (beforeBytes, afterBytes int64, err error) {
	path := s.db.Path()
	tmpPath := path + ".compact.tmp"

	if fi, err2 := os.Stat(path); err2 == nil {
		beforeBytes = fi.Size()
	}

	dst, err := bolt.Open(tmpPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return beforeBytes, 0, fmt.Errorf("opening temp db for compaction: %w", err)
	}

	if err = bolt.Compact(dst, s.db, 0); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return beforeBytes, 0, fmt.Errorf("compacting db: %w", err)
	}
	dst.Close()

	if err = s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return beforeBytes, 0, fmt.Errorf("closing db before compaction swap: %w", err)
	}

	if err = os.Rename(tmpPath, path); err != nil {
		s.db, _ = bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
		return beforeBytes, 0, fmt.Errorf("replacing db with compacted copy: %w", err)
	}

	s.db, err = bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return beforeBytes, 0, fmt.Errorf("reopening compacted db: %w", err)
	}

	if fi, err2 := os.Stat(path); err2 == nil {
		afterBytes = fi.Size()
	}

	return beforeBytes, afterBytes, nil
}
