package script

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/gridsync/internal/command"
)

// Bridge converts values between Go and Lua.
type Bridge struct {
	L *lua.LState
}

// NewBridge creates a Bridge for L.
func NewBridge(L *lua.LState) *Bridge {
	return &Bridge{L: L}
}

// ToGoValue converts a Lua value. Integral numbers become int, tables with
// keys 1..n become []any and other tables map[string]any. Functions and
// cycles convert to nil.
func (b *Bridge) ToGoValue(lv lua.LValue) any {
	return b.toGo(lv, make(map[*lua.LTable]bool))
}

func (b *Bridge) toGo(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int(f)) {
			return int(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		defer delete(visited, v)
		return b.tableToGo(v, visited)
	case *lua.LUserData:
		return v.Value
	}
	return nil
}

func (b *Bridge) tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	n, count := 0, 0
	isArray := true
	t.ForEach(func(k, _ lua.LValue) {
		count++
		if kn, ok := k.(lua.LNumber); ok && float64(kn) == float64(int(kn)) && kn > 0 {
			n = max(n, int(kn))
			return
		}
		isArray = false
	})

	if isArray && n > 0 && n == count {
		arr := make([]any, n)
		for i := 1; i <= n; i++ {
			arr[i-1] = b.toGo(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = strconv.FormatFloat(float64(kv), 'f', -1, 64)
		default:
			key = k.String()
		}
		m[key] = b.toGo(v, visited)
	})
	return m
}

// ToLuaValue converts a Go value. State values (maps, slices, scalars) and
// anything JSON-encodable are supported.
func (b *Bridge) ToLuaValue(v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		t := b.L.CreateTable(len(val), 0)
		for _, item := range val {
			t.Append(b.ToLuaValue(item))
		}
		return t
	case []string:
		t := b.L.CreateTable(len(val), 0)
		for _, item := range val {
			t.Append(lua.LString(item))
		}
		return t
	case map[string]any:
		t := b.L.CreateTable(0, len(val))
		for k, item := range val {
			t.RawSetString(k, b.ToLuaValue(item))
		}
		return t
	case lua.LValue:
		return val
	}
	data, err := json.Marshal(v)
	if err != nil {
		return lua.LNil
	}
	return b.FromJSON(gjson.ParseBytes(data))
}

// FromJSON converts a parsed JSON value.
func (b *Bridge) FromJSON(r gjson.Result) lua.LValue {
	switch {
	case r.IsArray():
		items := r.Array()
		t := b.L.CreateTable(len(items), 0)
		for _, item := range items {
			t.Append(b.FromJSON(item))
		}
		return t
	case r.IsObject():
		t := b.L.NewTable()
		r.ForEach(func(k, v gjson.Result) bool {
			t.RawSetString(k.String(), b.FromJSON(v))
			return true
		})
		return t
	}
	switch r.Type {
	case gjson.String:
		return lua.LString(r.Str)
	case gjson.Number:
		return lua.LNumber(r.Num)
	case gjson.True:
		return lua.LTrue
	case gjson.False:
		return lua.LFalse
	}
	return lua.LNil
}

// CommandTable converts cmd to a table holding its JSON fields and its kind
// under "type".
func (b *Bridge) CommandTable(cmd command.Command) (*lua.LTable, error) {
	data, err := command.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	t, ok := b.FromJSON(gjson.ParseBytes(data)).(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an object", command.ErrMalformed, cmd.Kind())
	}
	return t, nil
}

// TableCommand converts a table built like the ones of CommandTable.
func (b *Bridge) TableCommand(t *lua.LTable) (command.Command, error) {
	data, err := json.Marshal(b.ToGoValue(t))
	if err != nil {
		return nil, fmt.Errorf("encode command table: %w", err)
	}
	return command.Unmarshal(data)
}
