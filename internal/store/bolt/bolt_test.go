package bolt

import (
	"path/filepath"
	"testing"

	"github.com/dshills/gridsync/internal/store/storetest"
)

func TestStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "gridsync.db"))
	if err != nil {
		t.Fatalf("Open error = %v", err)
	}
	defer s.Close()
	storetest.Run(t, s)
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridsync.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	storetest.Run(t, s)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	snap, err := s.Snapshot(t.Context(), "doc")
	if err != nil || snap.RevisionID != "snap1" {
		t.Errorf("Snapshot after reopen = %+v, %v", snap, err)
	}
}
