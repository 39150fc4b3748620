package handler

import (
	"fmt"
	"slices"
	"strings"
)

// Reason explains why a command was refused.
type Reason uint8

const (
	// ReasonReadonly indicates a mutating command on a read-only model.
	ReasonReadonly Reason = iota + 1
	// ReasonInvalidSheetID indicates a command on an unknown sheet.
	ReasonInvalidSheetID
	// ReasonTargetOutOfSheet indicates a cell or zone outside the sheet.
	ReasonTargetOutOfSheet
	// ReasonDuplicatedSheetID indicates a sheet creation reusing an id.
	ReasonDuplicatedSheetID
	// ReasonDuplicatedSheetName indicates a sheet name already in use.
	ReasonDuplicatedSheetName
	// ReasonNotEnoughSheets indicates removal of the last sheet.
	ReasonNotEnoughSheets
	// ReasonNotEnoughElements indicates removal of every column or row.
	ReasonNotEnoughElements
	// ReasonInvalidQuantity indicates a non-positive insertion quantity.
	ReasonInvalidQuantity
	// ReasonMergeOverlap indicates a merge overlapping another merge.
	ReasonMergeOverlap
	// ReasonEmptyUndoStack indicates an undo with nothing to undo.
	ReasonEmptyUndoStack
	// ReasonEmptyRedoStack indicates a redo with nothing to redo.
	ReasonEmptyRedoStack
	// ReasonWaitingSessionConfirmation indicates an undo or redo while the
	// previous one is not acknowledged yet.
	ReasonWaitingSessionConfirmation
	// ReasonCancelledByHook indicates a pre-dispatch hook vetoed the command.
	ReasonCancelledByHook
	// ReasonHandlerPanic indicates a handler panicked; the command was
	// rolled back.
	ReasonHandlerPanic
	// ReasonScriptRejected indicates a scripted handler refused the command.
	ReasonScriptRejected
)

var reasonNames = map[Reason]string{
	ReasonReadonly:                   "readonly",
	ReasonInvalidSheetID:             "invalid-sheet-id",
	ReasonTargetOutOfSheet:           "target-out-of-sheet",
	ReasonDuplicatedSheetID:          "duplicated-sheet-id",
	ReasonDuplicatedSheetName:        "duplicated-sheet-name",
	ReasonNotEnoughSheets:            "not-enough-sheets",
	ReasonNotEnoughElements:          "not-enough-elements",
	ReasonInvalidQuantity:            "invalid-quantity",
	ReasonMergeOverlap:               "merge-overlap",
	ReasonEmptyUndoStack:             "empty-undo-stack",
	ReasonEmptyRedoStack:             "empty-redo-stack",
	ReasonWaitingSessionConfirmation: "waiting-session-confirmation",
	ReasonCancelledByHook:            "cancelled-by-hook",
	ReasonHandlerPanic:               "handler-panic",
	ReasonScriptRejected:             "script-rejected",
}

// String returns a string representation of the reason.
func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return "unknown"
}

// Result is the immutable outcome of a dispatch. A result without reasons is
// a success.
type Result struct {
	reasons []Reason

	// Err carries the recovered panic of a ReasonHandlerPanic result.
	Err error
}

// Success returns a successful result.
func Success() Result {
	return Result{}
}

// Failure returns a result refused for the given reasons. Duplicates are
// removed and order is preserved.
func Failure(reasons ...Reason) Result {
	var out []Reason
	for _, r := range reasons {
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return Result{reasons: out}
}

// Errorf returns a ReasonHandlerPanic failure carrying a formatted error.
func Errorf(format string, args ...any) Result {
	return Result{reasons: []Reason{ReasonHandlerPanic}, Err: fmt.Errorf(format, args...)}
}

// IsSuccessful returns true if the command was accepted.
func (r Result) IsSuccessful() bool {
	return len(r.reasons) == 0
}

// Reasons returns a copy of the refusal reasons.
func (r Result) Reasons() []Reason {
	return slices.Clone(r.reasons)
}

// IsCancelledBecause reports whether reason is among the refusal reasons.
func (r Result) IsCancelledBecause(reason Reason) bool {
	return slices.Contains(r.reasons, reason)
}

// String returns "success" or the comma-separated reasons.
func (r Result) String() string {
	if r.IsSuccessful() {
		return "success"
	}
	names := make([]string, len(r.reasons))
	for i, reason := range r.reasons {
		names[i] = reason.String()
	}
	return strings.Join(names, ",")
}
