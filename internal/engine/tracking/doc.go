// Package tracking holds the document state and records every change made
// to it.
//
// The state is a tree of nested maps addressed by paths such as
// sheets/s1/cells/B2. Core plugins write to it with Set. While a Recorder
// frame is open, every write is captured as a Change holding the value
// before and after the write:
//
//	rec := tracking.NewRecorder(state)
//	r := rec.Record(func() {
//		state.Set(tracking.Path{"sheets", "s1", "name"}, "Budget")
//	})
//	r.Changes.Revert(state) // back to the exact previous state
//
// Changes are coalesced per path: the first Before and the last After are
// kept and writes that end where they started are removed, so the recorded
// set is the minimal diff from the state before the frame.
//
// Frames nest. Changes belong to the innermost open frame only.
//
// # Snapshots
//
// A Snapshot is a full copy of the state tagged with the revision it was
// taken at. Restoring a snapshot replaces the state and is never recorded.
package tracking
