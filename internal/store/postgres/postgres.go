// Package postgres implements store.Store on PostgreSQL through a pgx
// connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dshills/gridsync/internal/engine/tracking"
	"github.com/dshills/gridsync/internal/session"
	"github.com/dshills/gridsync/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS gridsync_messages (
	doc_id   TEXT        NOT NULL,
	seq      BIGSERIAL   PRIMARY KEY,
	revision TEXT        NOT NULL DEFAULT '',
	body     JSONB       NOT NULL,
	created  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS gridsync_messages_doc ON gridsync_messages (doc_id, seq);
CREATE TABLE IF NOT EXISTS gridsync_snapshots (
	doc_id   TEXT        PRIMARY KEY,
	revision TEXT        NOT NULL,
	taken    TIMESTAMPTZ NOT NULL,
	data     JSONB       NOT NULL
);`

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and creates the schema if needed.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Append implements store.Store.
func (s *Store) Append(ctx context.Context, docID string, msg session.Message) error {
	body, err := msg.Encode()
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO gridsync_messages (doc_id, revision, body) VALUES ($1, $2, $3)`,
		docID, msg.NextRevisionID, body)
	if err != nil {
		return fmt.Errorf("append to %s: %w", docID, err)
	}
	return nil
}

// Messages implements store.Store.
func (s *Store) Messages(ctx context.Context, docID string) ([]session.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT body FROM gridsync_messages WHERE doc_id = $1 ORDER BY seq`, docID)
	if err != nil {
		return nil, fmt.Errorf("read log of %s: %w", docID, err)
	}
	bodies, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("read log of %s: %w", docID, err)
	}
	msgs := make([]session.Message, 0, len(bodies))
	for _, body := range bodies {
		msg, err := session.DecodeMessage(body)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// SaveSnapshot implements store.Store.
func (s *Store) SaveSnapshot(ctx context.Context, docID string, snap *tracking.Snapshot) error {
	data, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM gridsync_messages WHERE doc_id = $1`, docID); err != nil {
			return fmt.Errorf("clear log of %s: %w", docID, err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO gridsync_snapshots (doc_id, revision, taken, data)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (doc_id) DO UPDATE
			SET revision = EXCLUDED.revision, taken = EXCLUDED.taken, data = EXCLUDED.data`,
			docID, snap.RevisionID, snap.Timestamp, data)
		if err != nil {
			return fmt.Errorf("save snapshot of %s: %w", docID, err)
		}
		return nil
	})
}

// Snapshot implements store.Store.
func (s *Store) Snapshot(ctx context.Context, docID string) (*tracking.Snapshot, error) {
	var (
		snap tracking.Snapshot
		data []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT revision, taken, data FROM gridsync_snapshots WHERE doc_id = $1`, docID).
		Scan(&snap.RevisionID, &snap.Timestamp, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: snapshot of %s", store.ErrNotFound, docID)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot of %s: %w", docID, err)
	}
	if err := json.Unmarshal(data, &snap.Data); err != nil {
		return nil, fmt.Errorf("decode snapshot of %s: %w", docID, err)
	}
	return &snap, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
