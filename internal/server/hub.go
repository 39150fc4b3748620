package server

import (
	"context"
	"errors"
	"io"
	"maps"
	"slices"
	"sync"

	"github.com/dshills/gridsync/internal/relay"
)

// Opener opens the document docID.
type Opener func(ctx context.Context, docID string) (relay.Document, error)

// Hub holds the documents served by a server, opened on first use.
type Hub struct {
	open   Opener
	logger Logger

	mu      sync.Mutex
	docs    map[string]relay.Document
	clients map[string]int
}

// NewHub creates a hub opening documents with open.
func NewHub(open Opener, logger Logger) *Hub {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Hub{
		open:    open,
		logger:  logger,
		docs:    make(map[string]relay.Document),
		clients: make(map[string]int),
	}
}

// Document returns the document docID, opening it if needed.
func (h *Hub) Document(ctx context.Context, docID string) (relay.Document, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if doc, ok := h.docs[docID]; ok {
		return doc, nil
	}
	doc, err := h.open(ctx, docID)
	if err != nil {
		return nil, err
	}
	h.docs[docID] = doc
	h.logger.Debug("document opened", "doc", docID)
	return doc, nil
}

// Documents returns the ids of the open documents.
func (h *Hub) Documents() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Sorted(maps.Keys(h.docs))
}

// Clients returns the number of connections to docID.
func (h *Hub) Clients(docID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients[docID]
}

func (h *Hub) connected(docID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[docID]++
}

func (h *Hub) disconnected(docID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[docID]--; h.clients[docID] <= 0 {
		delete(h.clients, docID)
	}
}

// Close closes the documents that hold resources.
func (h *Hub) Close() error {
	h.mu.Lock()
	docs := h.docs
	h.docs = make(map[string]relay.Document)
	h.mu.Unlock()

	var errs []error
	for _, id := range slices.Sorted(maps.Keys(docs)) {
		if c, ok := docs[id].(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
