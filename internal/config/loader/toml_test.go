package loader

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"
)

func TestTOMLLoader_Load(t *testing.T) {
	fsys := fstest.MapFS{
		"gridsync.toml": {Data: []byte(`
[server]
addr = ":9000"
allowedOrigins = ["https://a.example", "https://b.example"]

[session]
readOnly = true
document = "budget"
`)},
	}

	m, err := NewTOMLLoaderFS(fsys, "gridsync.toml").Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	server, ok := m["server"].(map[string]any)
	if !ok {
		t.Fatalf("server section missing: %v", m)
	}
	if server["addr"] != ":9000" {
		t.Errorf("server.addr = %v, want :9000", server["addr"])
	}
	if origins, _ := server["allowedOrigins"].([]any); len(origins) != 2 {
		t.Errorf("server.allowedOrigins = %v", server["allowedOrigins"])
	}
	session := m["session"].(map[string]any)
	if session["readOnly"] != true || session["document"] != "budget" {
		t.Errorf("session = %v", session)
	}
}

func TestTOMLLoader_Missing(t *testing.T) {
	for _, path := range []string{"", "missing.toml"} {
		m, err := NewTOMLLoaderFS(fstest.MapFS{}, path).Load()
		if err != nil {
			t.Errorf("Load(%q) error = %v", path, err)
		}
		if m != nil {
			t.Errorf("Load(%q) = %v, want nil", path, m)
		}
	}
}

func TestTOMLLoader_SyntaxError(t *testing.T) {
	fsys := fstest.MapFS{"bad.toml": {Data: []byte("[store]\ndriver = \n")}}

	_, err := NewTOMLLoaderFS(fsys, "bad.toml").Load()
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Load() error = %v, want *ParseError", err)
	}
	if pe.Source != "bad.toml" || pe.Line != 2 {
		t.Errorf("ParseError = %+v, want line 2 of bad.toml", pe)
	}
	if !strings.HasPrefix(pe.Error(), "bad.toml:2:") {
		t.Errorf("Error() = %q, want a bad.toml:2: prefix", pe.Error())
	}
}

func TestParse_Integers(t *testing.T) {
	m, err := Parse("<test>", []byte("[redis]\ndb = 1"))
	if err != nil {
		t.Fatal(err)
	}
	if db := m["redis"].(map[string]any)["db"]; db != int64(1) {
		t.Errorf("redis.db = %#v, want int64(1)", db)
	}
}

func TestDeepMerge(t *testing.T) {
	tests := []struct {
		name string
		base map[string]any
		over map[string]any
		want map[string]any
	}{
		{
			name: "nil base",
			over: map[string]any{"log": map[string]any{"level": "debug"}},
			want: map[string]any{"log": map[string]any{"level": "debug"}},
		},
		{
			name: "nil override",
			base: map[string]any{"log": map[string]any{"level": "info"}},
			want: map[string]any{"log": map[string]any{"level": "info"}},
		},
		{
			name: "sections merge key by key",
			base: map[string]any{"store": map[string]any{"driver": "memory", "path": "gridsync.db"}},
			over: map[string]any{"store": map[string]any{"driver": "bolt"}},
			want: map[string]any{"store": map[string]any{"driver": "bolt", "path": "gridsync.db"}},
		},
		{
			name: "lists are replaced",
			base: map[string]any{"server": map[string]any{"allowedOrigins": []any{"a", "b"}}},
			over: map[string]any{"server": map[string]any{"allowedOrigins": []any{"*"}}},
			want: map[string]any{"server": map[string]any{"allowedOrigins": []any{"*"}}},
		},
		{
			name: "new sections are added",
			base: map[string]any{"log": map[string]any{"level": "info"}},
			over: map[string]any{"redis": map[string]any{"enabled": true}},
			want: map[string]any{
				"log":   map[string]any{"level": "info"},
				"redis": map[string]any{"enabled": true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeepMerge(tt.base, tt.over)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DeepMerge() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeepMerge_LeavesArgumentsAlone(t *testing.T) {
	base := map[string]any{"store": map[string]any{"driver": "memory"}}
	over := map[string]any{"store": map[string]any{"driver": "bolt"}}

	merged := DeepMerge(base, over)
	merged["store"].(map[string]any)["path"] = "x.db"

	if base["store"].(map[string]any)["driver"] != "memory" {
		t.Error("DeepMerge modified its base")
	}
	if _, ok := over["store"].(map[string]any)["path"]; ok {
		t.Error("merged map shares sections with the override")
	}
}

func TestClone(t *testing.T) {
	original := map[string]any{
		"log":    map[string]any{"level": "info"},
		"server": map[string]any{"allowedOrigins": []any{"a", "b"}},
	}

	cloned := Clone(original)
	original["log"].(map[string]any)["level"] = "debug"
	original["server"].(map[string]any)["allowedOrigins"].([]any)[0] = "z"

	if cloned["log"].(map[string]any)["level"] != "info" {
		t.Error("nested map shared with the original")
	}
	if cloned["server"].(map[string]any)["allowedOrigins"].([]any)[0] != "a" {
		t.Error("list shared with the original")
	}
	if Clone(nil) != nil {
		t.Error("Clone(nil) should return nil")
	}
}

func TestStatic(t *testing.T) {
	src := map[string]any{"log": map[string]any{"level": "warn"}}
	l := Static(src)

	m, err := l.Load()
	if err != nil {
		t.Fatal(err)
	}
	m["log"].(map[string]any)["level"] = "error"

	again, _ := l.Load()
	if again["log"].(map[string]any)["level"] != "warn" {
		t.Error("Static returned a shared map")
	}
}
