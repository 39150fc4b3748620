package sheet

import (
	"slices"
	"strconv"

	"github.com/dshills/gridsync/internal/command"
	"github.com/dshills/gridsync/internal/engine/tracking"
)

// move maps a column or row index to its new index, or reports that the
// element is gone.
type move func(index int) (int, bool)

func (p *Plugin) addColumnsRows(c command.AddColumnsRows) {
	point := c.InsertionPoint()
	shift := func(i int) (int, bool) {
		if i > point {
			return i + c.Quantity, true
		}
		return i, true
	}
	p.remap(c.SheetID, c.Dimension, shift)
	p.remapMerges(c.SheetID, c.Dimension, func(start, end int) (int, int, bool) {
		s, _ := shift(start)
		e, _ := shift(end)
		return s, e, true
	})
	p.resize(c.SheetID, c.Dimension, c.Quantity)
}

func (p *Plugin) removeColumnsRows(c command.RemoveColumnsRows) {
	removed := c.Sorted()
	below := func(i int) int {
		n, _ := slices.BinarySearch(removed, i)
		return n
	}
	p.remap(c.SheetID, c.Dimension, func(i int) (int, bool) {
		if _, found := slices.BinarySearch(removed, i); found {
			return 0, false
		}
		return i - below(i), true
	})
	p.remapMerges(c.SheetID, c.Dimension, func(start, end int) (int, int, bool) {
		// Elements removed inside the merge shrink it.
		s := start - below(start)
		e := end - below(end+1)
		return s, e, e >= s
	})
	p.resize(c.SheetID, c.Dimension, -len(removed))
}

func (p *Plugin) resize(id string, dim command.Dimension, delta int) {
	key := "cols"
	if dim == command.DimensionRow {
		key = "rows"
	}
	path := sheetPath(id, key)
	p.state.Set(path, p.state.GetInt(path)+delta)
}

// remap moves the cells and header sizes of a sheet along dim.
func (p *Plugin) remap(id string, dim command.Dimension, fn move) {
	cellsPath := sheetPath(id, "cells")
	if cells, ok := p.state.Get(cellsPath).(map[string]any); ok {
		out := make(map[string]any)
		for colKey, v := range cells {
			rows, _ := v.(map[string]any)
			col, _ := strconv.Atoi(colKey)
			for rowKey, cell := range rows {
				row, _ := strconv.Atoi(rowKey)
				if dim == command.DimensionCol {
					if c, ok := fn(col); ok {
						put(out, strconv.Itoa(c), rowKey, cell)
					}
				} else if r, ok := fn(row); ok {
					put(out, colKey, strconv.Itoa(r), cell)
				}
			}
		}
		p.replace(cellsPath, out)
	}

	sizesPath := sheetPath(id, "sizes", string(dim))
	if sizes, ok := p.state.Get(sizesPath).(map[string]any); ok {
		out := make(map[string]any, len(sizes))
		for k, size := range sizes {
			i, _ := strconv.Atoi(k)
			if j, ok := fn(i); ok {
				out[strconv.Itoa(j)] = size
			}
		}
		p.replace(sizesPath, out)
	}
}

func (p *Plugin) remapMerges(id string, dim command.Dimension, fn func(start, end int) (int, int, bool)) {
	path := sheetPath(id, "merges")
	merges := p.Merges(id)
	if len(merges) == 0 {
		return
	}
	out := make(map[string]any, len(merges))
	for _, z := range merges {
		start, end := z.Bounds(dim)
		s, e, ok := fn(start, end)
		if !ok {
			continue
		}
		z = z.WithBounds(dim, s, e)
		if z.Left == z.Right && z.Top == z.Bottom {
			continue
		}
		out[z.String()] = true
	}
	p.replace(path, out)
}

// replace writes m at path, or deletes the entry when m is empty.
func (p *Plugin) replace(path tracking.Path, m map[string]any) {
	if len(m) == 0 {
		p.state.Set(path, nil)
		return
	}
	p.state.Set(path, m)
}

func put(m map[string]any, outer, inner string, v any) {
	sub, ok := m[outer].(map[string]any)
	if !ok {
		sub = make(map[string]any)
		m[outer] = sub
	}
	sub[inner] = v
}
