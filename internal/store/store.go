// Package store persists the server side of collaborative documents: the
// revision messages accepted by the relay and the latest snapshot.
//
// Three implementations are provided: Memory for tests and single-process
// use, bolt for an embedded file and postgres for shared deployments. A
// snapshot replaces the document log: only the messages accepted after it
// are kept.
package store

import (
	"context"
	"errors"

	"github.com/dshills/gridsync/internal/engine/tracking"
	"github.com/dshills/gridsync/internal/session"
)

// Store errors.
var (
	// ErrNotFound indicates a document without snapshot.
	ErrNotFound = errors.New("store: not found")

	// ErrClosed indicates a store used after Close.
	ErrClosed = errors.New("store: closed")
)

// Store persists revision logs and snapshots per document.
type Store interface {
	// Append adds an accepted message to the log of docID.
	Append(ctx context.Context, docID string, msg session.Message) error

	// Messages returns the log of docID since its last snapshot.
	Messages(ctx context.Context, docID string) ([]session.Message, error)

	// SaveSnapshot stores snap and clears the log of docID.
	SaveSnapshot(ctx context.Context, docID string, snap *tracking.Snapshot) error

	// Snapshot returns the latest snapshot of docID, or ErrNotFound.
	Snapshot(ctx context.Context, docID string) (*tracking.Snapshot, error)

	// Close releases the resources of the store.
	Close() error
}

// Head returns the revision id the log of docID ends with.
func Head(ctx context.Context, s Store, docID string) (string, error) {
	msgs, err := s.Messages(ctx, docID)
	if err != nil {
		return "", err
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].NextRevisionID != "" {
			return msgs[i].NextRevisionID, nil
		}
	}
	snap, err := s.Snapshot(ctx, docID)
	switch {
	case errors.Is(err, ErrNotFound):
		return session.DefaultRevisionID, nil
	case err != nil:
		return "", err
	}
	return snap.RevisionID, nil
}
