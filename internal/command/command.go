// Package command defines the commands that flow through the dispatcher.
//
// Commands are plain value structs. Core commands mutate the document and
// are recorded, synchronized and transformed; transient commands only affect
// the local replica (selection, viewport, undo requests).
package command

// Kind identifies the type of a command. It is also the "type" field of the
// wire encoding.
type Kind string

// Core command kinds.
const (
	KindUpdateCell           Kind = "UPDATE_CELL"
	KindUpdateCellPosition   Kind = "UPDATE_CELL_POSITION"
	KindClearCell            Kind = "CLEAR_CELL"
	KindSetBorder            Kind = "SET_BORDER"
	KindSortCells            Kind = "SORT_CELLS"
	KindDeleteContent        Kind = "DELETE_CONTENT"
	KindSetFormatting        Kind = "SET_FORMATTING"
	KindClearFormatting      Kind = "CLEAR_FORMATTING"
	KindSetDecimal           Kind = "SET_DECIMAL"
	KindAddConditionalFormat Kind = "ADD_CONDITIONAL_FORMAT"
	KindAddMerge             Kind = "ADD_MERGE"
	KindRemoveMerge          Kind = "REMOVE_MERGE"
	KindAddColumnsRows       Kind = "ADD_COLUMNS_ROWS"
	KindRemoveColumnsRows    Kind = "REMOVE_COLUMNS_ROWS"
	KindResizeColumnsRows    Kind = "RESIZE_COLUMNS_ROWS"
	KindCreateSheet          Kind = "CREATE_SHEET"
	KindDeleteSheet          Kind = "DELETE_SHEET"
	KindRenameSheet          Kind = "RENAME_SHEET"
)

// Transient command kinds.
const (
	KindStart             Kind = "START"
	KindRequestUndo       Kind = "REQUEST_UNDO"
	KindRequestRedo       Kind = "REQUEST_REDO"
	KindActivateSheet     Kind = "ACTIVATE_SHEET"
	KindSelectCell        Kind = "SELECT_CELL"
	KindSetViewportOffset Kind = "SET_VIEWPORT_OFFSET"
	KindEvaluateCells     Kind = "EVALUATE_CELLS"
)

var coreKinds = map[Kind]bool{
	KindUpdateCell:           true,
	KindUpdateCellPosition:   true,
	KindClearCell:            true,
	KindSetBorder:            true,
	KindSortCells:            true,
	KindDeleteContent:        true,
	KindSetFormatting:        true,
	KindClearFormatting:      true,
	KindSetDecimal:           true,
	KindAddConditionalFormat: true,
	KindAddMerge:             true,
	KindRemoveMerge:          true,
	KindAddColumnsRows:       true,
	KindRemoveColumnsRows:    true,
	KindResizeColumnsRows:    true,
	KindCreateSheet:          true,
	KindDeleteSheet:          true,
	KindRenameSheet:          true,
}

// readonlyAllowed lists the commands accepted while the model is read-only.
var readonlyAllowed = map[Kind]bool{
	KindStart:             true,
	KindActivateSheet:     true,
	KindSelectCell:        true,
	KindSetViewportOffset: true,
	KindEvaluateCells:     true,
}

// Command is a request to the dispatcher.
type Command interface {
	Kind() Kind
}

// IsCore reports whether cmd mutates the document.
func IsCore(cmd Command) bool {
	return cmd != nil && coreKinds[cmd.Kind()]
}

// AllowedInReadonly reports whether cmd may run on a read-only model.
func AllowedInReadonly(cmd Command) bool {
	return cmd != nil && readonlyAllowed[cmd.Kind()]
}

// Dimension selects columns or rows.
type Dimension string

const (
	DimensionCol Dimension = "COL"
	DimensionRow Dimension = "ROW"
)

// InsertPosition places inserted columns or rows relative to the base.
type InsertPosition string

const (
	Before InsertPosition = "before"
	After  InsertPosition = "after"
)

// Sheeted is implemented by every command scoped to one sheet.
type Sheeted interface {
	Command
	Sheet() string
}

// Positioned is implemented by commands addressing a single cell.
type Positioned interface {
	Sheeted
	Position() (col, row int)
	WithPosition(col, row int) Command
}

// Targeted is implemented by commands addressing a list of zones.
type Targeted interface {
	Sheeted
	Targets() []Zone
	WithTargets(target []Zone) Command
}

// Zoned is implemented by commands addressing exactly one zone.
type Zoned interface {
	Sheeted
	Area() Zone
	WithArea(zone Zone) Command
}
