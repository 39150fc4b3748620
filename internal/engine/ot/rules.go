package ot

import (
	"slices"
	"sort"

	"github.com/dshills/gridsync/internal/command"
)

// afterRemove rewrites victim after columns or rows were deleted.
func afterRemove(victim command.Command, m command.RemoveColumnsRows) (command.Command, bool) {
	removed := m.Sorted()

	switch v := victim.(type) {
	case command.RemoveColumnsRows:
		if v.Dimension != m.Dimension {
			return v, true
		}
		v.Elements = shiftElementsOnRemove(v.Elements, removed)
		return v, len(v.Elements) > 0
	case command.ResizeColumnsRows:
		if v.Dimension != m.Dimension {
			return v, true
		}
		v.Elements = shiftElementsOnRemove(v.Elements, removed)
		return v, len(v.Elements) > 0
	case command.AddColumnsRows:
		if v.Dimension != m.Dimension {
			return v, true
		}
		if _, found := slices.BinarySearch(removed, v.Base); found {
			return nil, false
		}
		v.Base -= countBelow(removed, v.Base)
		return v, true
	}

	var cur command.Command = victim
	if p, ok := cur.(command.Positioned); ok {
		col, row := p.Position()
		idx := col
		if m.Dimension == command.DimensionRow {
			idx = row
		}
		if _, found := slices.BinarySearch(removed, idx); found {
			return nil, false
		}
		idx -= countBelow(removed, idx)
		if m.Dimension == command.DimensionCol {
			cur = p.WithPosition(idx, row)
		} else {
			cur = p.WithPosition(col, idx)
		}
	}
	if t, ok := cur.(command.Targeted); ok {
		var target []command.Zone
		for _, z := range t.Targets() {
			if reduced, ok := reduceZoneOnDeletion(z, m.Dimension, removed); ok {
				target = append(target, reduced)
			}
		}
		if len(target) == 0 {
			return nil, false
		}
		cur = t.WithTargets(target)
	}
	if z, ok := cur.(command.Zoned); ok {
		reduced, ok := reduceZoneOnDeletion(z.Area(), m.Dimension, removed)
		if !ok {
			return nil, false
		}
		cur = z.WithArea(reduced)
	}
	return cur, true
}

// afterAdd rewrites victim after columns or rows were inserted.
func afterAdd(victim command.Command, m command.AddColumnsRows) command.Command {
	point := m.InsertionPoint()
	q := m.Quantity

	switch v := victim.(type) {
	case command.AddColumnsRows:
		if v.Dimension != m.Dimension {
			return v
		}
		// Same insertion point: the executed insertion goes first.
		if v.InsertionPoint() >= point {
			v.Base += q
		}
		return v
	case command.RemoveColumnsRows:
		if v.Dimension != m.Dimension {
			return v
		}
		v.Elements = shiftElementsOnAdd(v.Elements, point, q)
		return v
	case command.ResizeColumnsRows:
		if v.Dimension != m.Dimension {
			return v
		}
		v.Elements = shiftElementsOnAdd(v.Elements, point, q)
		return v
	}

	var cur command.Command = victim
	if p, ok := cur.(command.Positioned); ok {
		col, row := p.Position()
		if m.Dimension == command.DimensionCol && col > point {
			cur = p.WithPosition(col+q, row)
		} else if m.Dimension == command.DimensionRow && row > point {
			cur = p.WithPosition(col, row+q)
		}
	}
	if t, ok := cur.(command.Targeted); ok {
		target := make([]command.Zone, len(t.Targets()))
		for i, z := range t.Targets() {
			target[i] = expandZoneOnInsertion(z, m.Dimension, point, q)
		}
		cur = t.WithTargets(target)
	}
	if z, ok := cur.(command.Zoned); ok {
		cur = z.WithArea(expandZoneOnInsertion(z.Area(), m.Dimension, point, q))
	}
	return cur
}

// afterMerge drops the merges of victim overlapping an executed merge.
func afterMerge(victim command.Command, m command.AddMerge) (command.Command, bool) {
	v, ok := victim.(command.AddMerge)
	if !ok {
		return victim, true
	}
	var target []command.Zone
	for _, z := range v.Target {
		overlaps := slices.ContainsFunc(m.Target, z.Overlaps)
		if !overlaps {
			target = append(target, z)
		}
	}
	if len(target) == 0 {
		return nil, false
	}
	v.Target = target
	return v, true
}

// reduceZoneOnDeletion shrinks zone along dim after the sorted elements were
// removed. ok is false when the whole zone was removed.
func reduceZoneOnDeletion(zone command.Zone, dim command.Dimension, removed []int) (command.Zone, bool) {
	start, end := zone.Bounds(dim)
	newStart, newEnd := start, end
	for _, el := range slices.Backward(removed) {
		if start <= el && end >= el {
			newEnd--
		} else if start > el {
			newStart--
			newEnd--
		}
	}
	if newStart > newEnd {
		return command.Zone{}, false
	}
	return zone.WithBounds(dim, newStart, newEnd), true
}

// expandZoneOnInsertion grows or shifts zone along dim after q elements were
// inserted after point.
func expandZoneOnInsertion(zone command.Zone, dim command.Dimension, point, q int) command.Zone {
	start, end := zone.Bounds(dim)
	switch {
	case point < start:
		return zone.WithBounds(dim, start+q, end+q)
	case point < end:
		return zone.WithBounds(dim, start, end+q)
	}
	return zone
}

// shiftElementsOnRemove drops the removed elements from els and shifts the
// remaining ones down.
func shiftElementsOnRemove(els, removed []int) []int {
	var out []int
	for _, el := range els {
		if _, found := slices.BinarySearch(removed, el); found {
			continue
		}
		out = append(out, el-countBelow(removed, el))
	}
	return out
}

func shiftElementsOnAdd(els []int, point, q int) []int {
	out := make([]int, len(els))
	for i, el := range els {
		if el > point {
			el += q
		}
		out[i] = el
	}
	return out
}

// countBelow returns how many sorted elements are strictly less than n.
func countBelow(sorted []int, n int) int {
	return sort.SearchInts(sorted, n)
}
