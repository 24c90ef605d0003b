package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dheyman/epiflux/internal/model"
	"github.com/dheyman/epiflux/internal/store"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// testDB opens a fresh isolated database in t.TempDir(). It is closed
// automatically when the test ends. This is the only pattern used — no test
// ever touches a production database.
func testDB(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// ─── Open / Path ──────────────────────────────────────────────────────────────

func TestOpenCreatesDB(t *testing.T) {
	s := testDB(t)
	if s.Path() == "" {
		t.Error("Path() should return the db path after open")
	}
}

func TestOpenCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c", "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open with nested path: %v", err)
	}
	defer s.Close()
	if s.Path() != path {
		t.Errorf("Path: expected %q, got %q", path, s.Path())
	}
}

func TestCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
}

// ─── Merge ledger ─────────────────────────────────────────────────────────────

func TestPutHasMergeRecord(t *testing.T) {
	s := testDB(t)
	rec := store.MergeRecord{
		PublicationDate: date("2021-03-01"),
		SnapshotPath:    "snapshots/2021-03-01.csv",
		RecordCount:     431,
	}
	if err := s.PutMergeRecord(rec); err != nil {
		t.Fatalf("PutMergeRecord: %v", err)
	}

	found, err := s.HasMerged(date("2021-03-01"))
	if err != nil {
		t.Fatalf("HasMerged: %v", err)
	}
	if !found {
		t.Error("expected HasMerged true after PutMergeRecord")
	}
}

func TestHasMergedFalseForUnrecorded(t *testing.T) {
	s := testDB(t)
	found, err := s.HasMerged(date("2021-03-01"))
	if err != nil {
		t.Fatalf("HasMerged: %v", err)
	}
	if found {
		t.Error("expected HasMerged false for a date never merged")
	}
}

func TestPutMergeRecordStampsMergedAt(t *testing.T) {
	s := testDB(t)
	before := time.Now().Add(-time.Second)
	_ = s.PutMergeRecord(store.MergeRecord{PublicationDate: date("2021-03-01")})
	after := time.Now().Add(time.Second)

	recs, err := s.ListMergeRecords()
	if err != nil {
		t.Fatalf("ListMergeRecords: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].MergedAt.Before(before) || recs[0].MergedAt.After(after) {
		t.Errorf("MergedAt %v outside expected range [%v, %v]", recs[0].MergedAt, before, after)
	}
}

func TestListMergeRecordsSortedByDate(t *testing.T) {
	s := testDB(t)
	_ = s.PutMergeRecord(store.MergeRecord{PublicationDate: date("2021-03-03")})
	_ = s.PutMergeRecord(store.MergeRecord{PublicationDate: date("2021-03-01")})
	_ = s.PutMergeRecord(store.MergeRecord{PublicationDate: date("2021-03-02")})

	recs, err := s.ListMergeRecords()
	if err != nil {
		t.Fatalf("ListMergeRecords: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if !recs[i].PublicationDate.After(recs[i-1].PublicationDate) {
			t.Errorf("records not sorted: %v before %v", recs[i-1].PublicationDate, recs[i].PublicationDate)
		}
	}
}

func TestListMergeRecordsEmpty(t *testing.T) {
	s := testDB(t)
	recs, err := s.ListMergeRecords()
	if err != nil {
		t.Fatalf("ListMergeRecords on empty db: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected 0 records on fresh db, got %d", len(recs))
	}
}

// ─── District cache ───────────────────────────────────────────────────────────

func TestPutGetDistrict(t *testing.T) {
	s := testDB(t)
	d := model.District{ID: 9162, StateID: 9, Name: "Augsburg", Population: 300000}

	if err := s.PutDistrictsBatch([]model.District{d}); err != nil {
		t.Fatalf("PutDistrictsBatch: %v", err)
	}

	got, found, err := s.GetDistrict(9162)
	if err != nil {
		t.Fatalf("GetDistrict: %v", err)
	}
	if !found {
		t.Fatal("expected to find district after put")
	}
	if got.Name != "Augsburg" {
		t.Errorf("Name: expected Augsburg, got %q", got.Name)
	}
}

func TestGetDistrictNotFound(t *testing.T) {
	s := testDB(t)
	_, found, err := s.GetDistrict(99999)
	if err != nil {
		t.Fatalf("GetDistrict: %v", err)
	}
	if found {
		t.Error("expected not found for missing district")
	}
}

func TestPutDistrictsBatchOverwrites(t *testing.T) {
	s := testDB(t)
	_ = s.PutDistrictsBatch([]model.District{{ID: 9162, Name: "Old Name"}})
	_ = s.PutDistrictsBatch([]model.District{{ID: 9162, Name: "New Name"}})

	got, found, err := s.GetDistrict(9162)
	if err != nil || !found {
		t.Fatalf("GetDistrict: err=%v found=%v", err, found)
	}
	if got.Name != "New Name" {
		t.Errorf("expected overwrite: got %q", got.Name)
	}
}

func TestListDistrictsSortedByID(t *testing.T) {
	s := testDB(t)
	_ = s.PutDistrictsBatch([]model.District{
		{ID: 11000, Name: "Berlin"},
		{ID: 1001, Name: "Flensburg"},
		{ID: 9162, Name: "Augsburg"},
	})

	districts, err := s.ListDistricts()
	if err != nil {
		t.Fatalf("ListDistricts: %v", err)
	}
	if len(districts) != 3 {
		t.Fatalf("expected 3 districts, got %d", len(districts))
	}
	for i := 1; i < len(districts); i++ {
		if districts[i].ID < districts[i-1].ID {
			t.Errorf("districts not sorted: %d before %d", districts[i-1].ID, districts[i].ID)
		}
	}
}

func TestListDistrictsEmpty(t *testing.T) {
	s := testDB(t)
	districts, err := s.ListDistricts()
	if err != nil {
		t.Fatalf("ListDistricts on empty db: %v", err)
	}
	if len(districts) != 0 {
		t.Errorf("expected 0 districts on fresh db, got %d", len(districts))
	}
}

// ─── Stats ────────────────────────────────────────────────────────────────────

func TestStatsEmpty(t *testing.T) {
	s := testDB(t)
	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	for _, bs := range stats {
		if bs.Count != 0 {
			t.Errorf("bucket %q: expected 0 rows on fresh db, got %d", bs.Name, bs.Count)
		}
	}
}

func TestStatsCountsRows(t *testing.T) {
	s := testDB(t)
	_ = s.PutMergeRecord(store.MergeRecord{PublicationDate: date("2021-03-01")})
	_ = s.PutMergeRecord(store.MergeRecord{PublicationDate: date("2021-03-02")})
	_ = s.PutDistrictsBatch([]model.District{{ID: 9162, Name: "Augsburg"}})

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}

	byName := make(map[string]int)
	for _, bs := range stats {
		byName[bs.Name] = bs.Count
	}
	if byName["merges"] != 2 {
		t.Errorf("merges: expected 2, got %d", byName["merges"])
	}
	if byName["districts"] != 1 {
		t.Errorf("districts: expected 1, got %d", byName["districts"])
	}
}

// ─── ClearBucket / ClearAll ───────────────────────────────────────────────────

func TestClearBucket(t *testing.T) {
	s := testDB(t)
	_ = s.PutMergeRecord(store.MergeRecord{PublicationDate: date("2021-03-01")})
	_ = s.PutMergeRecord(store.MergeRecord{PublicationDate: date("2021-03-02")})

	if err := s.ClearBucket("merges"); err != nil {
		t.Fatalf("ClearBucket: %v", err)
	}

	recs, _ := s.ListMergeRecords()
	if len(recs) != 0 {
		t.Errorf("expected 0 records after ClearBucket, got %d", len(recs))
	}
}

func TestClearBucketLeavesOthersIntact(t *testing.T) {
	s := testDB(t)
	_ = s.PutMergeRecord(store.MergeRecord{PublicationDate: date("2021-03-01")})
	_ = s.PutDistrictsBatch([]model.District{{ID: 9162, Name: "Augsburg"}})

	_ = s.ClearBucket("merges")

	_, found, err := s.GetDistrict(9162)
	if err != nil {
		t.Fatalf("GetDistrict after ClearBucket(merges): %v", err)
	}
	if !found {
		t.Error("districts bucket should be intact after clearing merges")
	}
}

func TestClearAll(t *testing.T) {
	s := testDB(t)
	_ = s.PutMergeRecord(store.MergeRecord{PublicationDate: date("2021-03-01")})
	_ = s.PutDistrictsBatch([]model.District{{ID: 9162, Name: "Augsburg"}})

	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	recs, _ := s.ListMergeRecords()
	districts, _ := s.ListDistricts()
	if len(recs) != 0 || len(districts) != 0 {
		t.Errorf("ClearAll: recs=%d districts=%d (both should be 0)", len(recs), len(districts))
	}
}

// ─── Isolation ────────────────────────────────────────────────────────────────

func TestEachTestGetsIsolatedDB(t *testing.T) {
	s1 := testDB(t)
	_ = s1.PutMergeRecord(store.MergeRecord{PublicationDate: date("2021-03-01")})

	s2 := testDB(t)
	found, err := s2.HasMerged(date("2021-03-01"))
	if err != nil {
		t.Fatalf("HasMerged on s2: %v", err)
	}
	if found {
		t.Error("s2 should not see data written to s1 — databases are not isolated")
	}
}
