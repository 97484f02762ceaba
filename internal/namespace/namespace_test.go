package namespace

import (
	"testing"

	pebblestore "github.com/appirio-tech/arena-farm-client/internal/storage/pebble"
)

func openDB(t *testing.T) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEnsureNamespaceIdempotent(t *testing.T) {
	db := openDB(t)
	m1, err := EnsureNamespace(db, "CL1")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	m2, err := EnsureNamespace(db, "CL1")
	if err != nil {
		t.Fatalf("ensure2: %v", err)
	}
	if m1.Name != m2.Name || m1.CreatedAtMs != m2.CreatedAtMs {
		t.Fatalf("not idempotent: %+v vs %+v", m1, m2)
	}
	if _, err := EnsureNamespace(db, ""); err == nil {
		t.Fatalf("expected error for empty client")
	}
}

func TestSetPriorityAndList(t *testing.T) {
	db := openDB(t)
	p := 0
	if _, err := SetPriority(db, "CL2", &p); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := EnsureNamespace(db, "CL1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	m, ok, err := Get(db, "CL2")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if m.Priority == nil || *m.Priority != 0 {
		t.Fatalf("priority not stored: %+v", m)
	}

	all, err := List(db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].Name != "CL1" || all[1].Name != "CL2" {
		t.Fatalf("unexpected list %+v", all)
	}

	if _, err := SetPriority(db, "CL2", nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if m, _, _ := Get(db, "CL2"); m.Priority != nil {
		t.Fatalf("priority not cleared")
	}
	if _, ok, _ := Get(db, "nobody"); ok {
		t.Fatalf("unexpected record for unknown client")
	}
}
