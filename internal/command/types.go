package command

import "slices"

// UpdateCell sets the content and optional format of one cell.
type UpdateCell struct {
	SheetID string `json:"sheetId"`
	Col     int    `json:"col"`
	Row     int    `json:"row"`
	Content string `json:"content"`
	Format  string `json:"format,omitempty"`
}

func (UpdateCell) Kind() Kind             { return KindUpdateCell }
func (c UpdateCell) Sheet() string        { return c.SheetID }
func (c UpdateCell) Position() (int, int) { return c.Col, c.Row }
func (c UpdateCell) WithPosition(col, row int) Command {
	c.Col, c.Row = col, row
	return c
}

// UpdateCellPosition moves a cell object to a new coordinate.
type UpdateCellPosition struct {
	SheetID string `json:"sheetId"`
	Col     int    `json:"col"`
	Row     int    `json:"row"`
	CellID  string `json:"cellId"`
}

func (UpdateCellPosition) Kind() Kind             { return KindUpdateCellPosition }
func (c UpdateCellPosition) Sheet() string        { return c.SheetID }
func (c UpdateCellPosition) Position() (int, int) { return c.Col, c.Row }
func (c UpdateCellPosition) WithPosition(col, row int) Command {
	c.Col, c.Row = col, row
	return c
}

// ClearCell removes the content and format of one cell.
type ClearCell struct {
	SheetID string `json:"sheetId"`
	Col     int    `json:"col"`
	Row     int    `json:"row"`
}

func (ClearCell) Kind() Kind             { return KindClearCell }
func (c ClearCell) Sheet() string        { return c.SheetID }
func (c ClearCell) Position() (int, int) { return c.Col, c.Row }
func (c ClearCell) WithPosition(col, row int) Command {
	c.Col, c.Row = col, row
	return c
}

// SetBorder sets the border description of one cell.
type SetBorder struct {
	SheetID string `json:"sheetId"`
	Col     int    `json:"col"`
	Row     int    `json:"row"`
	Border  string `json:"border"`
}

func (SetBorder) Kind() Kind             { return KindSetBorder }
func (c SetBorder) Sheet() string        { return c.SheetID }
func (c SetBorder) Position() (int, int) { return c.Col, c.Row }
func (c SetBorder) WithPosition(col, row int) Command {
	c.Col, c.Row = col, row
	return c
}

// SortCells sorts a zone by the column of the anchor cell.
type SortCells struct {
	SheetID   string `json:"sheetId"`
	Col       int    `json:"col"`
	Row       int    `json:"row"`
	Zone      Zone   `json:"zone"`
	Direction string `json:"sortDirection"`
}

func (SortCells) Kind() Kind             { return KindSortCells }
func (c SortCells) Sheet() string        { return c.SheetID }
func (c SortCells) Position() (int, int) { return c.Col, c.Row }
func (c SortCells) WithPosition(col, row int) Command {
	c.Col, c.Row = col, row
	return c
}
func (c SortCells) Area() Zone { return c.Zone }
func (c SortCells) WithArea(z Zone) Command {
	c.Zone = z
	return c
}

// DeleteContent clears the content of every cell of the target.
type DeleteContent struct {
	SheetID string `json:"sheetId"`
	Target  []Zone `json:"target"`
}

func (DeleteContent) Kind() Kind        { return KindDeleteContent }
func (c DeleteContent) Sheet() string   { return c.SheetID }
func (c DeleteContent) Targets() []Zone { return c.Target }
func (c DeleteContent) WithTargets(t []Zone) Command {
	c.Target = t
	return c
}

// SetFormatting applies a style to every cell of the target.
type SetFormatting struct {
	SheetID string `json:"sheetId"`
	Target  []Zone `json:"target"`
	Style   string `json:"style,omitempty"`
	Format  string `json:"format,omitempty"`
}

func (SetFormatting) Kind() Kind        { return KindSetFormatting }
func (c SetFormatting) Sheet() string   { return c.SheetID }
func (c SetFormatting) Targets() []Zone { return c.Target }
func (c SetFormatting) WithTargets(t []Zone) Command {
	c.Target = t
	return c
}

// ClearFormatting removes style and format from the target.
type ClearFormatting struct {
	SheetID string `json:"sheetId"`
	Target  []Zone `json:"target"`
}

func (ClearFormatting) Kind() Kind        { return KindClearFormatting }
func (c ClearFormatting) Sheet() string   { return c.SheetID }
func (c ClearFormatting) Targets() []Zone { return c.Target }
func (c ClearFormatting) WithTargets(t []Zone) Command {
	c.Target = t
	return c
}

// SetDecimal changes the number of displayed decimals by Step.
type SetDecimal struct {
	SheetID string `json:"sheetId"`
	Target  []Zone `json:"target"`
	Step    int    `json:"step"`
}

func (SetDecimal) Kind() Kind        { return KindSetDecimal }
func (c SetDecimal) Sheet() string   { return c.SheetID }
func (c SetDecimal) Targets() []Zone { return c.Target }
func (c SetDecimal) WithTargets(t []Zone) Command {
	c.Target = t
	return c
}

// AddConditionalFormat attaches a conditional format rule to the target.
type AddConditionalFormat struct {
	SheetID string `json:"sheetId"`
	ID      string `json:"id"`
	Rule    string `json:"rule"`
	Target  []Zone `json:"target"`
}

func (AddConditionalFormat) Kind() Kind        { return KindAddConditionalFormat }
func (c AddConditionalFormat) Sheet() string   { return c.SheetID }
func (c AddConditionalFormat) Targets() []Zone { return c.Target }
func (c AddConditionalFormat) WithTargets(t []Zone) Command {
	c.Target = t
	return c
}

// AddMerge merges every zone of the target.
type AddMerge struct {
	SheetID string `json:"sheetId"`
	Target  []Zone `json:"target"`
	Force   bool   `json:"force,omitempty"`
}

func (AddMerge) Kind() Kind        { return KindAddMerge }
func (c AddMerge) Sheet() string   { return c.SheetID }
func (c AddMerge) Targets() []Zone { return c.Target }
func (c AddMerge) WithTargets(t []Zone) Command {
	c.Target = t
	return c
}

// RemoveMerge unmerges every zone of the target.
type RemoveMerge struct {
	SheetID string `json:"sheetId"`
	Target  []Zone `json:"target"`
}

func (RemoveMerge) Kind() Kind        { return KindRemoveMerge }
func (c RemoveMerge) Sheet() string   { return c.SheetID }
func (c RemoveMerge) Targets() []Zone { return c.Target }
func (c RemoveMerge) WithTargets(t []Zone) Command {
	c.Target = t
	return c
}

// AddColumnsRows inserts Quantity columns or rows before or after Base.
type AddColumnsRows struct {
	SheetID   string         `json:"sheetId"`
	Dimension Dimension      `json:"dimension"`
	Base      int            `json:"base"`
	Quantity  int            `json:"quantity"`
	Position  InsertPosition `json:"position"`
}

func (AddColumnsRows) Kind() Kind      { return KindAddColumnsRows }
func (c AddColumnsRows) Sheet() string { return c.SheetID }

// InsertionPoint returns the index after which the new elements are placed.
// A value of -1 means the elements are inserted at the very start.
func (c AddColumnsRows) InsertionPoint() int {
	if c.Position == Before {
		return c.Base - 1
	}
	return c.Base
}

// RemoveColumnsRows deletes the listed columns or rows.
type RemoveColumnsRows struct {
	SheetID   string    `json:"sheetId"`
	Dimension Dimension `json:"dimension"`
	Elements  []int     `json:"elements"`
}

func (RemoveColumnsRows) Kind() Kind      { return KindRemoveColumnsRows }
func (c RemoveColumnsRows) Sheet() string { return c.SheetID }

// Sorted returns the removed elements ascending and deduplicated.
func (c RemoveColumnsRows) Sorted() []int {
	s := slices.Clone(c.Elements)
	slices.Sort(s)
	return slices.Compact(s)
}

// ResizeColumnsRows sets the size of the listed columns or rows.
type ResizeColumnsRows struct {
	SheetID   string    `json:"sheetId"`
	Dimension Dimension `json:"dimension"`
	Elements  []int     `json:"elements"`
	Size      int       `json:"size"`
}

func (ResizeColumnsRows) Kind() Kind      { return KindResizeColumnsRows }
func (c ResizeColumnsRows) Sheet() string { return c.SheetID }

// CreateSheet adds a sheet.
type CreateSheet struct {
	SheetID  string `json:"sheetId"`
	Name     string `json:"name,omitempty"`
	Position int    `json:"position"`
	Cols     int    `json:"cols,omitempty"`
	Rows     int    `json:"rows,omitempty"`
}

func (CreateSheet) Kind() Kind      { return KindCreateSheet }
func (c CreateSheet) Sheet() string { return c.SheetID }

// DeleteSheet removes a sheet and everything on it.
type DeleteSheet struct {
	SheetID string `json:"sheetId"`
}

func (DeleteSheet) Kind() Kind      { return KindDeleteSheet }
func (c DeleteSheet) Sheet() string { return c.SheetID }

// RenameSheet changes the display name of a sheet.
type RenameSheet struct {
	SheetID string `json:"sheetId"`
	Name    string `json:"name"`
}

func (RenameSheet) Kind() Kind      { return KindRenameSheet }
func (c RenameSheet) Sheet() string { return c.SheetID }

// Start is dispatched once when a model finishes loading.
type Start struct{}

func (Start) Kind() Kind { return KindStart }

// RequestUndo asks the local history to undo the last local revision.
type RequestUndo struct{}

func (RequestUndo) Kind() Kind { return KindRequestUndo }

// RequestRedo asks the local history to redo the last undone revision.
type RequestRedo struct{}

func (RequestRedo) Kind() Kind { return KindRequestRedo }

// ActivateSheet switches the visible sheet.
type ActivateSheet struct {
	SheetIDFrom string `json:"sheetIdFrom"`
	SheetIDTo   string `json:"sheetIdTo"`
}

func (ActivateSheet) Kind() Kind { return KindActivateSheet }

// SelectCell moves the local selection.
type SelectCell struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

func (SelectCell) Kind() Kind { return KindSelectCell }

// SetViewportOffset scrolls the local viewport.
type SetViewportOffset struct {
	OffsetX int `json:"offsetX"`
	OffsetY int `json:"offsetY"`
}

func (SetViewportOffset) Kind() Kind { return KindSetViewportOffset }

// EvaluateCells asks evaluation plugins to recompute.
type EvaluateCells struct{}

func (EvaluateCells) Kind() Kind { return KindEvaluateCells }
