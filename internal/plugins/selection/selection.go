// Package selection is the reference UI plugin. It keeps the active sheet
// and the selected cell of the local client, follows structural changes
// made locally or by other clients, and publishes the position as
// presence.
package selection

import (
	"slices"

	"github.com/dshills/gridsync/internal/command"
	"github.com/dshills/gridsync/internal/dispatcher/handler"
	"github.com/dshills/gridsync/internal/model"
	"github.com/dshills/gridsync/internal/session"
)

// Spec returns the plugin spec. The sheet plugin must come first.
func Spec() model.PluginSpec {
	return model.PluginSpec{
		Name:    "selection",
		Layer:   handler.LayerUI,
		Getters: []string{"ActiveSheet", "Selection"},
		New: func(env model.Env) (handler.Handler, error) {
			p, err := New(env)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
	}
}

// Plugin tracks the local selection.
type Plugin struct {
	handler.Base

	sheetIDs  func() []string
	sheetSize func(string) (int, int)
	presence  func(session.ClientPosition)

	active   string
	col, row int
	moved    bool
}

// New creates the plugin. It needs the SheetIDs and SheetSize getters.
func New(env model.Env) (*Plugin, error) {
	ids, err := model.Lookup[func() []string](env.Getters, "SheetIDs")
	if err != nil {
		return nil, err
	}
	size, err := model.Lookup[func(string) (int, int)](env.Getters, "SheetSize")
	if err != nil {
		return nil, err
	}
	return &Plugin{sheetIDs: ids, sheetSize: size, presence: env.Presence}, nil
}

// AllowDispatch implements handler.Handler.
func (p *Plugin) AllowDispatch(cmd command.Command) []handler.Reason {
	switch c := cmd.(type) {
	case command.ActivateSheet:
		if !slices.Contains(p.sheetIDs(), c.SheetIDTo) {
			return []handler.Reason{handler.ReasonInvalidSheetID}
		}
	case command.SelectCell:
		cols, rows := p.sheetSize(p.active)
		if c.Col < 0 || c.Row < 0 || c.Col >= cols || c.Row >= rows {
			return []handler.Reason{handler.ReasonTargetOutOfSheet}
		}
	}
	return nil
}

// Handle implements handler.Handler.
func (p *Plugin) Handle(cmd command.Command) {
	switch c := cmd.(type) {
	case command.Start:
		if ids := p.sheetIDs(); len(ids) > 0 {
			p.activate(ids[0])
		}
	case command.ActivateSheet:
		p.activate(c.SheetIDTo)
	case command.SelectCell:
		p.col, p.row = c.Col, c.Row
		p.moved = true
	case command.DeleteSheet:
		if c.SheetID == p.active {
			p.active = ""
		}
	case command.AddColumnsRows:
		if c.SheetID != p.active {
			return
		}
		point := c.InsertionPoint()
		if c.Dimension == command.DimensionCol && p.col > point {
			p.col += c.Quantity
			p.moved = true
		} else if c.Dimension == command.DimensionRow && p.row > point {
			p.row += c.Quantity
			p.moved = true
		}
	case command.RemoveColumnsRows:
		if c.SheetID != p.active {
			return
		}
		removed := c.Sorted()
		shift := func(i int) int {
			n, _ := slices.BinarySearch(removed, i)
			return max(i-n, 0)
		}
		if c.Dimension == command.DimensionCol {
			p.col = shift(p.col)
		} else {
			p.row = shift(p.row)
		}
		p.moved = true
	}
}

// Finalize implements handler.Handler. It reactivates a sheet when the
// active one was deleted and publishes the position if it changed.
func (p *Plugin) Finalize() {
	if p.active == "" {
		if ids := p.sheetIDs(); len(ids) > 0 {
			p.activate(ids[0])
		}
	}
	cols, rows := p.sheetSize(p.active)
	p.col = min(p.col, max(cols-1, 0))
	p.row = min(p.row, max(rows-1, 0))
	if p.moved && p.presence != nil && p.active != "" {
		p.presence(session.ClientPosition{SheetID: p.active, Col: p.col, Row: p.row})
	}
	p.moved = false
}

func (p *Plugin) activate(id string) {
	p.active = id
	p.col, p.row = 0, 0
	p.moved = true
}

// ActiveSheet returns the id of the active sheet.
func (p *Plugin) ActiveSheet() string {
	return p.active
}

// Selection returns the selected cell.
func (p *Plugin) Selection() (col, row int) {
	return p.col, p.row
}
