// Package ot rewrites commands so they remain meaningful after other
// commands have already been applied.
//
// Transform(victim, mover) answers the question: mover has been executed,
// what should victim become? The result is either a rewritten command or
// nothing at all (the second return value is false) when the thing victim
// addressed no longer exists.
//
// Transformations are local: a command scoped to one sheet is never changed
// by a command scoped to another sheet.
package ot

import (
	"slices"

	"github.com/dshills/gridsync/internal/command"
)

// Transform returns victim rewritten to apply after mover.
// ok is false when victim must be dropped.
func Transform(victim, mover command.Command) (result command.Command, ok bool) {
	vs, vok := victim.(command.Sheeted)
	ms, mok := mover.(command.Sheeted)
	if !vok || !mok || vs.Sheet() != ms.Sheet() {
		return victim, true
	}

	switch m := mover.(type) {
	case command.DeleteSheet:
		return nil, false
	case command.RemoveColumnsRows:
		return afterRemove(victim, m)
	case command.AddColumnsRows:
		return afterAdd(victim, m), true
	case command.AddMerge:
		return afterMerge(victim, m)
	}
	return victim, true
}

// TransformAll rewrites every victim against the executed commands, in
// order, and drops the victims that vanish.
func TransformAll(victims, executed []command.Command) []command.Command {
	out := make([]command.Command, 0, len(victims))
	for _, v := range victims {
		cur, ok := v, true
		for _, e := range executed {
			if cur, ok = Transform(cur, e); !ok {
				break
			}
		}
		if ok {
			out = append(out, cur)
		}
	}
	return out
}

// Inverse returns the commands undoing the positional effect of cmd.
// Commands without positional effect have no inverse.
func Inverse(cmd command.Command) []command.Command {
	switch c := cmd.(type) {
	case command.AddColumnsRows:
		start := c.InsertionPoint() + 1
		elements := make([]int, c.Quantity)
		for i := range elements {
			elements[i] = start + i
		}
		return []command.Command{command.RemoveColumnsRows{
			SheetID:   c.SheetID,
			Dimension: c.Dimension,
			Elements:  elements,
		}}
	case command.RemoveColumnsRows:
		var out []command.Command
		for _, group := range consecutiveGroups(c.Sorted()) {
			out = append(out, command.AddColumnsRows{
				SheetID:   c.SheetID,
				Dimension: c.Dimension,
				Base:      group[0],
				Quantity:  len(group),
				Position:  command.Before,
			})
		}
		return out
	case command.CreateSheet:
		return []command.Command{command.DeleteSheet{SheetID: c.SheetID}}
	}
	return nil
}

// InverseAll returns the inverse of a command sequence: the inverses of
// each command, last command first.
func InverseAll(cmds []command.Command) []command.Command {
	var out []command.Command
	for _, cmd := range slices.Backward(cmds) {
		out = append(out, Inverse(cmd)...)
	}
	return out
}

// consecutiveGroups splits sorted elements into runs of consecutive values.
func consecutiveGroups(sorted []int) [][]int {
	var groups [][]int
	for i, el := range sorted {
		if i > 0 && el == sorted[i-1]+1 {
			groups[len(groups)-1] = append(groups[len(groups)-1], el)
			continue
		}
		groups = append(groups, []int{el})
	}
	return groups
}
