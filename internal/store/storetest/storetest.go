// Package storetest provides a conformance suite for store.Store
// implementations.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dshills/gridsync/internal/command"
	"github.com/dshills/gridsync/internal/engine/tracking"
	"github.com/dshills/gridsync/internal/session"
	"github.com/dshills/gridsync/internal/store"
)

// Run exercises s. The store must be empty for the documents it uses.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("empty document", func(t *testing.T) {
		msgs, err := s.Messages(ctx, "empty")
		if err != nil {
			t.Fatalf("Messages error = %v", err)
		}
		if len(msgs) != 0 {
			t.Errorf("Messages = %v, want none", msgs)
		}
		if _, err := s.Snapshot(ctx, "empty"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Snapshot error = %v, want ErrNotFound", err)
		}
		head, err := store.Head(ctx, s, "empty")
		if err != nil || head != session.DefaultRevisionID {
			t.Errorf("Head = %q, %v", head, err)
		}
	})

	t.Run("append and read", func(t *testing.T) {
		first := session.Message{
			Type:             session.MessageRemoteRevision,
			Version:          session.MessageVersion,
			ServerRevisionID: session.DefaultRevisionID,
			NextRevisionID:   "r1",
			ClientID:         "alice",
			Commands: command.List{
				command.UpdateCell{SheetID: "s1", Col: 1, Row: 2, Content: "hello"},
			},
		}
		second := session.Message{
			Type:             session.MessageRevisionUndone,
			Version:          session.MessageVersion,
			ServerRevisionID: "r1",
			NextRevisionID:   "r2",
			UndoneRevisionID: "r1",
		}
		for _, m := range []session.Message{first, second} {
			if err := s.Append(ctx, "doc", m); err != nil {
				t.Fatalf("Append error = %v", err)
			}
		}

		msgs, err := s.Messages(ctx, "doc")
		if err != nil {
			t.Fatalf("Messages error = %v", err)
		}
		if len(msgs) != 2 {
			t.Fatalf("len(Messages) = %d, want 2", len(msgs))
		}
		if msgs[0].NextRevisionID != "r1" || msgs[1].UndoneRevisionID != "r1" {
			t.Errorf("Messages = %+v", msgs)
		}
		u, ok := msgs[0].Commands[0].(command.UpdateCell)
		if !ok || u.Content != "hello" || u.Row != 2 {
			t.Errorf("command = %#v", msgs[0].Commands[0])
		}
		if head, _ := store.Head(ctx, s, "doc"); head != "r2" {
			t.Errorf("Head = %q, want r2", head)
		}
	})

	t.Run("snapshot clears log", func(t *testing.T) {
		snap := &tracking.Snapshot{
			RevisionID: "snap1",
			Timestamp:  time.Now().UTC().Truncate(time.Millisecond),
			Data:       map[string]any{"sheets": map[string]any{"s1": map[string]any{"name": "Sheet1"}}},
		}
		if err := s.SaveSnapshot(ctx, "doc", snap); err != nil {
			t.Fatalf("SaveSnapshot error = %v", err)
		}
		msgs, err := s.Messages(ctx, "doc")
		if err != nil || len(msgs) != 0 {
			t.Errorf("Messages after snapshot = %v, %v", msgs, err)
		}
		got, err := s.Snapshot(ctx, "doc")
		if err != nil {
			t.Fatalf("Snapshot error = %v", err)
		}
		if got.RevisionID != "snap1" {
			t.Errorf("RevisionID = %q", got.RevisionID)
		}
		st := tracking.NewState()
		got.Restore(st)
		if name := st.GetString(tracking.Path{"sheets", "s1", "name"}); name != "Sheet1" {
			t.Errorf("restored name = %q", name)
		}
		if head, _ := store.Head(ctx, s, "doc"); head != "snap1" {
			t.Errorf("Head = %q, want snap1", head)
		}
	})
}
