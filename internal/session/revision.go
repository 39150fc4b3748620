package session

import (
	"slices"

	"github.com/dshills/gridsync/internal/command"
	"github.com/dshills/gridsync/internal/engine/history"
	"github.com/dshills/gridsync/internal/engine/ot"
	"github.com/dshills/gridsync/internal/engine/tracking"
)

// Revision is one entry of the revision log: the core commands of one
// dispatch and the writes they made.
type Revision struct {
	ID            string           `json:"id"`
	PredecessorID string           `json:"predecessorId,omitempty"`
	ClientID      string           `json:"clientId,omitempty"`
	Commands      command.List     `json:"commands"`
	Changes       tracking.Changes `json:"changes,omitempty"`
}

// RevisionLog is the selective history of revisions.
type RevisionLog = history.SelectiveHistory[Revision]

// ReplayFunc replays one core command.
type ReplayFunc func(cmd command.Command)

// NewRevisionLog creates the revision log of a document at initialID.
// Revisions are applied by replaying their commands inside a frame of rec
// and reverted from the recorded changes.
func NewRevisionLog(initialID string, rec *tracking.Recorder, replay ReplayFunc) *RevisionLog {
	return history.New(initialID, history.Config[Revision]{
		Apply: func(r Revision) Revision {
			recording := rec.Record(func() {
				for _, cmd := range r.Commands {
					replay(cmd)
				}
			})
			r.Changes = recording.Changes
			return r
		},
		Revert: func(r Revision) {
			r.Changes.Revert(rec.State())
		},
		BuildEmpty: func(id string) Revision {
			return Revision{ID: id}
		},
		Transformations: revisionTransformations{},
	})
}

type revisionTransformations struct{}

func (revisionTransformations) With(executed Revision) history.Transformation[Revision] {
	return func(r Revision) Revision {
		r.Commands = ot.TransformAll(r.Commands, executed.Commands)
		r.Changes = nil
		return r
	}
}

func (revisionTransformations) Without(cancelled Revision) history.Transformation[Revision] {
	inverse := ot.InverseAll(cancelled.Commands)
	return func(r Revision) Revision {
		r.Commands = ot.TransformAll(r.Commands, inverse)
		r.Changes = nil
		return r
	}
}

// Clone returns a copy of r sharing no slices with it.
func (r Revision) Clone() Revision {
	r.Commands = slices.Clone(r.Commands)
	r.Changes = slices.Clone(r.Changes)
	return r
}
