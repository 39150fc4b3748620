// Package engine groups the consistency core of a gridsync document.
//
// # Architecture
//
// The engine is built on three sub-packages:
//
//   - tracking: the document state tree, change recording and snapshots
//   - history: selective undo/redo over transformable operations
//   - ot: operational transformation of commands against each other
//
// None of them are safe for concurrent use. A model.Model serializes access
// to the state, and its session to the revision log.
//
// # Data Flow
//
// A local command is handled by the plugins, which write to the
// tracking.State. The tracking.Recorder collects the writes into a
// revision. The session keeps revisions in a history.SelectiveHistory so
// that one can be undone later, even after remote revisions arrived on top
// of it. Pending local commands are transformed with ot.TransformAll
// against every revision inserted before them.
package engine
