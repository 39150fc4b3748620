// Package history provides selective undo/redo over a sequence of
// transformable operations.
//
// Unlike a linear undo stack, a SelectiveHistory can cancel any past
// operation while keeping every later operation in effect, and can insert an
// operation in the past. Both are done by reverting the state back to the
// affected point, changing the sequence, then replaying what follows with
// each operation transformed to account for the change.
//
// # Operations
//
// An Operation is an immutable (id, data) pair. The data type is generic;
// the history never inspects it. Applying, reverting and transforming data is
// injected through Config:
//
//	h := history.New("root", history.Config[Revision]{
//		Apply:           apply,
//		Revert:          revert,
//		BuildEmpty:      func(id string) Revision { return Revision{ID: id} },
//		Transformations: factory,
//	})
//
// # Branches
//
// Operations live in an arena and are addressed by handles. The execution
// path is a chain of branches: inserting an operation in the past ends the
// current branch with the new operation and moves the following operations,
// transformed, to a new continuation branch.
//
// # Undo and redo
//
// Undo(id, undoID, after) cancels id and records an empty marker operation
// undoID after the operation after. Markers are kept: they give replicas a
// common id to refer to the undo step.
//
// # Stack
//
// Stack is a bounded pair of undo/redo id stacks for callers that keep a
// per-user view of what can be undone.
package history
