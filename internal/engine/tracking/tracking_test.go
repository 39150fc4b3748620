package tracking

import (
	"reflect"
	"testing"

	"github.com/dshills/gridsync/internal/command"
)

func seeded() *State {
	s := NewState()
	s.Set(Path{"sheets", "s1", "name"}, "Sheet1")
	s.Set(Path{"sheets", "s1", "cells", "A1"}, "1")
	return s
}

func TestSetGet(t *testing.T) {
	s := seeded()
	if got := s.GetString(Path{"sheets", "s1", "name"}); got != "Sheet1" {
		t.Errorf("name = %q, want Sheet1", got)
	}
	if got := s.Keys(Path{"sheets", "s1"}); !reflect.DeepEqual(got, []string{"cells", "name"}) {
		t.Errorf("Keys() = %v", got)
	}
	if s.Get(Path{"sheets", "s1", "name", "deeper"}) != nil {
		t.Error("Get through a leaf should return nil")
	}
}

func TestSetNilPrunesEmptyParents(t *testing.T) {
	s := seeded()
	s.Set(Path{"sheets", "s1", "cells", "A1"}, nil)
	if s.Has(Path{"sheets", "s1", "cells"}) {
		t.Error("empty cells map should be pruned")
	}
	if !s.Has(Path{"sheets", "s1", "name"}) {
		t.Error("sibling should survive")
	}
}

func TestRecordAndRevert(t *testing.T) {
	s := seeded()
	before := s.Export()
	rec := NewRecorder(s)

	r := rec.Record(func() {
		rec.AddCommand(command.UpdateCell{SheetID: "s1", Content: "2"})
		s.Set(Path{"sheets", "s1", "cells", "A1"}, "2")
		s.Set(Path{"sheets", "s1", "cells", "B1"}, "3")
		s.Set(Path{"sheets", "s2"}, map[string]any{"name": "Sheet2"})
		s.Set(Path{"sheets", "s1", "name"}, nil)
	})
	if len(r.Commands) != 1 {
		t.Errorf("recorded %d commands, want 1", len(r.Commands))
	}
	if len(r.Changes) != 4 {
		t.Fatalf("recorded %d changes, want 4", len(r.Changes))
	}

	r.Changes.Revert(s)
	if got := s.Export(); !reflect.DeepEqual(got, before) {
		t.Errorf("after revert state = %v, want %v", got, before)
	}
}

func TestChangesAreMinimal(t *testing.T) {
	s := seeded()
	rec := NewRecorder(s)
	r := rec.Record(func() {
		s.Set(Path{"sheets", "s1", "cells", "A1"}, "5")
		s.Set(Path{"sheets", "s1", "cells", "A1"}, "6")
		s.Set(Path{"sheets", "s1", "name"}, "tmp")
		s.Set(Path{"sheets", "s1", "name"}, "Sheet1")
	})
	want := Changes{{Path: Path{"sheets", "s1", "cells", "A1"}, Before: "1", After: "6"}}
	if !reflect.DeepEqual(r.Changes, want) {
		t.Errorf("Changes = %+v, want %+v", r.Changes, want)
	}
}

func TestNoOpKeptWhenPathsOverlap(t *testing.T) {
	s := seeded()
	before := s.Export()
	rec := NewRecorder(s)
	r := rec.Record(func() {
		s.Set(Path{"sheets", "s1", "cells", "A1"}, "9")
		s.Set(Path{"sheets", "s1"}, nil)
		s.Set(Path{"sheets", "s1", "cells", "A1"}, "1")
	})
	r.Changes.Revert(s)
	if got := s.Export(); !reflect.DeepEqual(got, before) {
		t.Errorf("after revert state = %v, want %v", got, before)
	}
}

func TestNestedFramesAreIsolated(t *testing.T) {
	s := seeded()
	rec := NewRecorder(s)
	var inner Recording
	outer := rec.Record(func() {
		s.Set(Path{"a"}, "outer")
		inner = rec.Record(func() {
			rec.AddCommand(command.ClearCell{SheetID: "s1"})
			s.Set(Path{"b"}, "inner")
		})
	})
	if len(outer.Changes) != 1 || outer.Changes[0].Path.String() != "a" {
		t.Errorf("outer changes = %+v", outer.Changes)
	}
	if len(inner.Changes) != 1 || len(inner.Commands) != 1 {
		t.Errorf("inner = %+v", inner)
	}
	if len(outer.Commands) != 0 {
		t.Errorf("outer commands = %+v, want none", outer.Commands)
	}
}

func TestRecordedValuesDoNotAlias(t *testing.T) {
	s := NewState()
	rec := NewRecorder(s)
	r := rec.Record(func() {
		s.Set(Path{"m"}, map[string]any{"k": "v"})
		s.Set(Path{"m", "k"}, "w")
	})
	if r.Changes[0].After.(map[string]any)["k"] != "v" {
		t.Error("recorded value should not see later writes")
	}
}

func TestRecordRevertsOnPanic(t *testing.T) {
	s := NewState()
	s.Set(Path{"a"}, "before")
	rec := NewRecorder(s)
	func() {
		defer func() { _ = recover() }()
		rec.Record(func() {
			s.Set(Path{"a"}, "partial")
			s.Set(Path{"b", "c"}, 1)
			panic("boom")
		})
	}()
	if rec.Recording() {
		t.Error("frame left open after panic")
	}
	if got := s.GetString(Path{"a"}); got != "before" {
		t.Errorf("a = %q, want before", got)
	}
	if s.Has(Path{"b"}) {
		t.Error("b should have been reverted")
	}
}

func TestStateRecording(t *testing.T) {
	s := NewState()
	if s.Recording() {
		t.Error("state without recorder reports recording")
	}
	rec := NewRecorder(s)
	if s.Recording() {
		t.Error("recording before any frame")
	}
	var inside bool
	rec.Record(func() { inside = s.Recording() })
	if !inside {
		t.Error("not recording inside a frame")
	}
	if s.Recording() {
		t.Error("still recording after the frame closed")
	}
}

func TestSnapshotRestore(t *testing.T) {
	s := seeded()
	snap := NewSnapshot("r1", s)
	s.Set(Path{"sheets", "s1", "name"}, "changed")
	snap.Restore(s)
	if got := s.GetString(Path{"sheets", "s1", "name"}); got != "Sheet1" {
		t.Errorf("restored name = %q, want Sheet1", got)
	}

	sm := NewSnapshotManager()
	sm.Put("doc", snap)
	if got, ok := sm.Get("doc"); !ok || got.RevisionID != "r1" {
		t.Errorf("Get() = %+v, %v", got, ok)
	}
	sm.Delete("doc")
	if _, ok := sm.Get("doc"); ok {
		t.Error("snapshot should be deleted")
	}
}
