package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func openBackends(t *testing.T) map[string]Database {
	t.Helper()
	dir := t.TempDir()
	level, err := NewLevelDB(filepath.Join(dir, "level"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	bolt, err := NewBoltDB(filepath.Join(dir, "stele.db"), nil)
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	dbs := map[string]Database{
		BackendMemory:  NewMemDB(),
		BackendLevelDB: level,
		BackendBolt:    bolt,
	}
	t.Cleanup(func() {
		for _, db := range dbs {
			db.Close()
		}
	})
	return dbs
}

func TestDatabaseGetMissingReturnsErrNotFound(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			ok, err := db.Has([]byte("missing"))
			if err != nil {
				t.Fatalf("has: %v", err)
			}
			if ok {
				t.Fatalf("expected missing key")
			}
		})
	}
}

func TestDatabaseBatchAppliesAllWrites(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			if err := db.Put([]byte("stale"), []byte("x")); err != nil {
				t.Fatalf("put: %v", err)
			}
			batch := db.NewBatch()
			batch.Put([]byte("a"), []byte("1"))
			batch.Put([]byte("b"), []byte("2"))
			batch.Delete([]byte("stale"))
			if batch.Len() != 3 {
				t.Fatalf("expected 3 staged ops, got %d", batch.Len())
			}
			if ok, _ := db.Has([]byte("a")); ok {
				t.Fatalf("batch must not be visible before Write")
			}
			if err := batch.Write(); err != nil {
				t.Fatalf("write: %v", err)
			}
			got, err := db.Get([]byte("b"))
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if string(got) != "2" {
				t.Fatalf("unexpected value %q", got)
			}
			if ok, _ := db.Has([]byte("stale")); ok {
				t.Fatalf("expected stale key deleted")
			}
		})
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	if _, err := Open("rocks", t.TempDir()); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
