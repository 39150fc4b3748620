package tracking

import (
	"sync"
	"time"
)

// Snapshot is a full copy of the document state at a revision.
// Snapshots are immutable once created.
type Snapshot struct {
	// RevisionID is the revision the snapshot was taken at.
	RevisionID string `json:"revisionId"`

	// Timestamp when this snapshot was created.
	Timestamp time.Time `json:"timestamp"`

	// Data is the exported state.
	Data map[string]any `json:"data"`
}

// NewSnapshot exports s at revisionID.
func NewSnapshot(revisionID string, s *State) *Snapshot {
	return &Snapshot{
		RevisionID: revisionID,
		Timestamp:  time.Now(),
		Data:       s.Export(),
	}
}

// Restore replaces the content of s with the snapshot.
func (snap *Snapshot) Restore(s *State) {
	s.Import(snap.Data)
}

// SnapshotManager keeps the latest snapshot of each document.
// All operations are thread-safe.
type SnapshotManager struct {
	mu    sync.RWMutex
	byDoc map[string]*Snapshot
}

// NewSnapshotManager creates a new snapshot manager.
func NewSnapshotManager() *SnapshotManager {
	return &SnapshotManager{byDoc: make(map[string]*Snapshot)}
}

// Put stores snap as the latest snapshot of docID.
func (sm *SnapshotManager) Put(docID string, snap *Snapshot) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.byDoc[docID] = snap
}

// Get returns the latest snapshot of docID.
func (sm *SnapshotManager) Get(docID string) (*Snapshot, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	snap, ok := sm.byDoc[docID]
	return snap, ok
}

// Delete forgets the snapshot of docID.
func (sm *SnapshotManager) Delete(docID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.byDoc, docID)
}
