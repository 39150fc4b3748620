package script

import (
	"reflect"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/gridsync/internal/command"
)

func TestToGoValue(t *testing.T) {
	s := NewState()
	defer s.Close()
	b := NewBridge(s.L)

	tests := []struct {
		name string
		code string
		want any
	}{
		{"integer", `return 3`, 3},
		{"float", `return 1.5`, 1.5},
		{"string", `return "x"`, "x"},
		{"bool", `return true`, true},
		{"nil", `return nil`, nil},
		{"array", `return {1, "a", false}`, []any{1, "a", false}},
		{"map", `return {a = 1, b = {c = "d"}}`, map[string]any{"a": 1, "b": map[string]any{"c": "d"}}},
		{"sparse", `return {[1] = "a", [3] = "c"}`, map[string]any{"1": "a", "3": "c"}},
		{"function", `return function() end`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.DoString(`function value() ` + tt.code + ` end`); err != nil {
				t.Fatal(err)
			}
			ret, err := s.Call("value")
			if err != nil {
				t.Fatal(err)
			}
			var got any
			if len(ret) > 0 {
				got = b.ToGoValue(ret[0])
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ToGoValue() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestToGoValueCycle(t *testing.T) {
	s := NewState()
	defer s.Close()
	b := NewBridge(s.L)

	tbl := s.L.NewTable()
	tbl.RawSetString("self", tbl)
	got := b.ToGoValue(tbl)
	want := map[string]any{"self": nil}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ToGoValue() = %#v, want %#v", got, want)
	}
}

func TestCommandTable(t *testing.T) {
	s := NewState()
	defer s.Close()
	b := NewBridge(s.L)

	cmd := command.AddMerge{SheetID: "s1", Target: []command.Zone{command.MustZone("A1:B2")}, Force: true}
	tbl, err := b.CommandTable(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if got := tbl.RawGetString("type"); got != lua.LString(command.KindAddMerge) {
		t.Errorf("type = %v", got)
	}
	target, ok := tbl.RawGetString("target").(*lua.LTable)
	if !ok || target.Len() != 1 {
		t.Fatalf("target = %v", tbl.RawGetString("target"))
	}

	back, err := b.TableCommand(tbl)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, cmd) {
		t.Errorf("TableCommand() = %#v, want %#v", back, cmd)
	}

	if _, err := b.TableCommand(s.L.NewTable()); err == nil {
		t.Error("TableCommand() accepted a table without type")
	}
}

func TestToLuaValueFallsBackToJSON(t *testing.T) {
	s := NewState()
	defer s.Close()
	b := NewBridge(s.L)

	v := b.ToLuaValue([]command.Zone{{Top: 1, Bottom: 2, Left: 3, Right: 4}})
	tbl, ok := v.(*lua.LTable)
	if !ok || tbl.Len() != 1 {
		t.Fatalf("ToLuaValue() = %v", v)
	}
	zone := tbl.RawGetInt(1).(*lua.LTable)
	if got := zone.RawGetString("right"); got != lua.LNumber(4) {
		t.Errorf("right = %v", got)
	}
	if got := b.ToLuaValue(command.DimensionCol); got != lua.LString("COL") {
		t.Errorf("ToLuaValue(DimensionCol) = %v", got)
	}
}
