package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/gridsync/internal/session"
	"github.com/dshills/gridsync/internal/store"
	"github.com/dshills/gridsync/internal/store/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, store.NewMemory())
}

func TestMemoryClosed(t *testing.T) {
	m := store.NewMemory()
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	err := m.Append(context.Background(), "doc", session.Message{Type: session.MessageClientLeft})
	if !errors.Is(err, store.ErrClosed) {
		t.Errorf("Append after Close error = %v, want ErrClosed", err)
	}
}
