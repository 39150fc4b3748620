// Package sheet is the reference core plugin: sheets, cell contents and
// formats, merges and header sizes.
//
// Everything lives in the shared state under sheets/<id>:
//
//	name, cols, rows
//	cells/<col>/<row>/{content,format,style,border}
//	merges/<A1:B2>
//	sizes/<COL|ROW>/<index>
//
// The sheet order is the list at sheetOrder.
package sheet

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/dshills/gridsync/internal/command"
	"github.com/dshills/gridsync/internal/dispatcher/handler"
	"github.com/dshills/gridsync/internal/engine/tracking"
	"github.com/dshills/gridsync/internal/model"
)

// Default sheet dimensions.
const (
	DefaultCols = 26
	DefaultRows = 100
)

// DefaultSheetID is the id of the sheet of DefaultData.
const DefaultSheetID = "sheet1"

var orderPath = tracking.Path{"sheetOrder"}

// Spec returns the plugin spec.
func Spec() model.PluginSpec {
	return model.PluginSpec{
		Name:  "sheet",
		Layer: handler.LayerCore,
		New: func(env model.Env) (handler.Handler, error) {
			return New(env), nil
		},
		Getters: []string{
			"SheetIDs", "SheetName", "SheetSize",
			"CellContent", "CellFormat", "CellStyle", "CellBorder",
			"Merges", "HeaderSize",
		},
	}
}

// DefaultData returns a document holding one empty sheet.
func DefaultData() map[string]any {
	return map[string]any{
		"sheetOrder": []any{DefaultSheetID},
		"sheets": map[string]any{
			DefaultSheetID: map[string]any{
				"name": "Sheet1",
				"cols": DefaultCols,
				"rows": DefaultRows,
			},
		},
	}
}

// Plugin handles the core sheet commands.
type Plugin struct {
	state    *tracking.State
	dispatch func(command.Command) handler.Result
}

// New creates the plugin.
func New(env model.Env) *Plugin {
	return &Plugin{state: env.State, dispatch: env.Dispatch}
}

func sheetPath(id string, rest ...string) tracking.Path {
	return append(tracking.Path{"sheets", id}, rest...)
}

func cellPath(id string, col, row int, field string) tracking.Path {
	return sheetPath(id, "cells", strconv.Itoa(col), strconv.Itoa(row), field)
}

func reasons(r ...handler.Reason) []handler.Reason { return r }

// AllowDispatch implements handler.Handler.
func (p *Plugin) AllowDispatch(cmd command.Command) []handler.Reason {
	if c, ok := cmd.(command.CreateSheet); ok {
		switch {
		case c.SheetID == "":
			return reasons(handler.ReasonInvalidSheetID)
		case p.exists(c.SheetID):
			return reasons(handler.ReasonDuplicatedSheetID)
		case c.Name != "" && p.nameTaken(c.Name, ""):
			return reasons(handler.ReasonDuplicatedSheetName)
		case c.Cols < 0 || c.Rows < 0:
			return reasons(handler.ReasonInvalidQuantity)
		}
		return nil
	}

	sc, ok := cmd.(command.Sheeted)
	if !ok || !command.IsCore(cmd) {
		return nil
	}
	if !p.exists(sc.Sheet()) {
		return reasons(handler.ReasonInvalidSheetID)
	}
	cols, rows := p.SheetSize(sc.Sheet())

	switch c := cmd.(type) {
	case command.DeleteSheet:
		if len(p.SheetIDs()) <= 1 {
			return reasons(handler.ReasonNotEnoughSheets)
		}
	case command.RenameSheet:
		if c.Name == "" || p.nameTaken(c.Name, c.SheetID) {
			return reasons(handler.ReasonDuplicatedSheetName)
		}
	case command.AddColumnsRows:
		if c.Quantity <= 0 {
			return reasons(handler.ReasonInvalidQuantity)
		}
		if c.Base < 0 || c.Base >= count(c.Dimension, cols, rows) {
			return reasons(handler.ReasonTargetOutOfSheet)
		}
	case command.RemoveColumnsRows:
		n := count(c.Dimension, cols, rows)
		removed := c.Sorted()
		if len(removed) == 0 || removed[0] < 0 || removed[len(removed)-1] >= n {
			return reasons(handler.ReasonTargetOutOfSheet)
		}
		if len(removed) >= n {
			return reasons(handler.ReasonNotEnoughElements)
		}
	case command.ResizeColumnsRows:
		if c.Size < 0 {
			return reasons(handler.ReasonInvalidQuantity)
		}
		n := count(c.Dimension, cols, rows)
		for _, e := range c.Elements {
			if e < 0 || e >= n {
				return reasons(handler.ReasonTargetOutOfSheet)
			}
		}
	case command.Positioned:
		col, row := c.Position()
		if col < 0 || row < 0 || col >= cols || row >= rows {
			return reasons(handler.ReasonTargetOutOfSheet)
		}
	case command.Targeted:
		for _, z := range c.Targets() {
			if !z.Valid() || z.Right >= cols || z.Bottom >= rows {
				return reasons(handler.ReasonTargetOutOfSheet)
			}
		}
		if m, ok := cmd.(command.AddMerge); ok && !m.Force && p.mergeOverlaps(m) {
			return reasons(handler.ReasonMergeOverlap)
		}
	}
	return nil
}

// BeforeHandle implements handler.Handler.
func (p *Plugin) BeforeHandle(command.Command) {}

// Handle implements handler.Handler.
func (p *Plugin) Handle(cmd command.Command) {
	switch c := cmd.(type) {
	case command.CreateSheet:
		p.createSheet(c)
	case command.DeleteSheet:
		p.state.Set(sheetPath(c.SheetID), nil)
		order := slices.DeleteFunc(p.order(), func(v any) bool { return v == c.SheetID })
		p.state.Set(orderPath, order)
	case command.RenameSheet:
		p.state.Set(sheetPath(c.SheetID, "name"), c.Name)
	case command.UpdateCell:
		p.setCell(c.SheetID, c.Col, c.Row, "content", c.Content)
		if c.Format != "" {
			p.setCell(c.SheetID, c.Col, c.Row, "format", c.Format)
		}
	case command.ClearCell:
		p.dispatch(command.UpdateCell{SheetID: c.SheetID, Col: c.Col, Row: c.Row})
		p.setCell(c.SheetID, c.Col, c.Row, "format", "")
		p.setCell(c.SheetID, c.Col, c.Row, "style", "")
		p.setCell(c.SheetID, c.Col, c.Row, "border", "")
	case command.SetBorder:
		p.setCell(c.SheetID, c.Col, c.Row, "border", c.Border)
	case command.DeleteContent:
		p.eachCell(c.SheetID, c.Target, func(col, row int) {
			if p.CellContent(c.SheetID, col, row) != "" {
				p.dispatch(command.UpdateCell{SheetID: c.SheetID, Col: col, Row: row})
			}
		})
	case command.SetFormatting:
		for _, z := range c.Target {
			for col := z.Left; col <= z.Right; col++ {
				for row := z.Top; row <= z.Bottom; row++ {
					if c.Style != "" {
						p.setCell(c.SheetID, col, row, "style", c.Style)
					}
					if c.Format != "" {
						p.setCell(c.SheetID, col, row, "format", c.Format)
					}
				}
			}
		}
	case command.ClearFormatting:
		p.eachCell(c.SheetID, c.Target, func(col, row int) {
			p.setCell(c.SheetID, col, row, "style", "")
			p.setCell(c.SheetID, col, row, "format", "")
		})
	case command.AddMerge:
		if c.Force {
			for _, z := range p.Merges(c.SheetID) {
				if slices.ContainsFunc(c.Target, z.Overlaps) {
					p.state.Set(sheetPath(c.SheetID, "merges", z.String()), nil)
				}
			}
		}
		for _, z := range c.Target {
			p.state.Set(sheetPath(c.SheetID, "merges", z.String()), true)
		}
	case command.RemoveMerge:
		for _, z := range c.Target {
			p.state.Set(sheetPath(c.SheetID, "merges", z.String()), nil)
		}
	case command.AddColumnsRows:
		p.addColumnsRows(c)
	case command.RemoveColumnsRows:
		p.removeColumnsRows(c)
	case command.ResizeColumnsRows:
		for _, e := range c.Elements {
			p.state.Set(sheetPath(c.SheetID, "sizes", string(c.Dimension), strconv.Itoa(e)), c.Size)
		}
	}
}

// Finalize implements handler.Handler.
func (p *Plugin) Finalize() {}

func (p *Plugin) createSheet(c command.CreateSheet) {
	name := c.Name
	for i := len(p.SheetIDs()) + 1; name == ""; i++ {
		if candidate := fmt.Sprintf("Sheet%d", i); !p.nameTaken(candidate, "") {
			name = candidate
		}
	}
	cols, rows := c.Cols, c.Rows
	if cols == 0 {
		cols = DefaultCols
	}
	if rows == 0 {
		rows = DefaultRows
	}
	p.state.Set(sheetPath(c.SheetID), map[string]any{
		"name": name,
		"cols": cols,
		"rows": rows,
	})
	order := p.order()
	pos := min(max(c.Position, 0), len(order))
	p.state.Set(orderPath, slices.Insert(order, pos, any(c.SheetID)))
}

func (p *Plugin) setCell(id string, col, row int, field, value string) {
	if value == "" {
		p.state.Set(cellPath(id, col, row, field), nil)
		return
	}
	p.state.Set(cellPath(id, col, row, field), value)
}

// eachCell calls fn for every non-empty cell inside the zones.
func (p *Plugin) eachCell(id string, zones []command.Zone, fn func(col, row int)) {
	for _, colKey := range p.state.Keys(sheetPath(id, "cells")) {
		col, _ := strconv.Atoi(colKey)
		for _, rowKey := range p.state.Keys(sheetPath(id, "cells", colKey)) {
			row, _ := strconv.Atoi(rowKey)
			if slices.ContainsFunc(zones, func(z command.Zone) bool { return z.Contains(col, row) }) {
				fn(col, row)
			}
		}
	}
}

func (p *Plugin) exists(id string) bool {
	return id != "" && p.state.Has(sheetPath(id))
}

func (p *Plugin) nameTaken(name, except string) bool {
	for _, id := range p.SheetIDs() {
		if id != except && p.SheetName(id) == name {
			return true
		}
	}
	return false
}

func (p *Plugin) mergeOverlaps(m command.AddMerge) bool {
	for _, z := range p.Merges(m.SheetID) {
		if slices.ContainsFunc(m.Target, z.Overlaps) {
			return true
		}
	}
	return false
}

// order returns a copy of the sheet order.
func (p *Plugin) order() []any {
	order, _ := p.state.Get(orderPath).([]any)
	return slices.Clone(order)
}

func count(dim command.Dimension, cols, rows int) int {
	if dim == command.DimensionCol {
		return cols
	}
	return rows
}

// SheetIDs returns the sheet ids in display order.
func (p *Plugin) SheetIDs() []string {
	order := p.order()
	ids := make([]string, 0, len(order))
	for _, v := range order {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// SheetName returns the name of a sheet.
func (p *Plugin) SheetName(id string) string {
	return p.state.GetString(sheetPath(id, "name"))
}

// SheetSize returns the number of columns and rows of a sheet.
func (p *Plugin) SheetSize(id string) (cols, rows int) {
	return p.state.GetInt(sheetPath(id, "cols")), p.state.GetInt(sheetPath(id, "rows"))
}

// CellContent returns the content of a cell.
func (p *Plugin) CellContent(id string, col, row int) string {
	return p.state.GetString(cellPath(id, col, row, "content"))
}

// CellFormat returns the number format of a cell.
func (p *Plugin) CellFormat(id string, col, row int) string {
	return p.state.GetString(cellPath(id, col, row, "format"))
}

// CellStyle returns the style of a cell.
func (p *Plugin) CellStyle(id string, col, row int) string {
	return p.state.GetString(cellPath(id, col, row, "style"))
}

// CellBorder returns the border of a cell.
func (p *Plugin) CellBorder(id string, col, row int) string {
	return p.state.GetString(cellPath(id, col, row, "border"))
}

// Merges returns the merged zones of a sheet, sorted by position.
func (p *Plugin) Merges(id string) []command.Zone {
	var out []command.Zone
	for _, ref := range p.state.Keys(sheetPath(id, "merges")) {
		if z, err := command.ParseZone(ref); err == nil {
			out = append(out, z)
		}
	}
	slices.SortFunc(out, func(a, b command.Zone) int {
		if a.Top != b.Top {
			return a.Top - b.Top
		}
		return a.Left - b.Left
	})
	return out
}

// HeaderSize returns the size set on a column or row, or 0.
func (p *Plugin) HeaderSize(id string, dim command.Dimension, index int) int {
	return p.state.GetInt(sheetPath(id, "sizes", string(dim), strconv.Itoa(index)))
}
