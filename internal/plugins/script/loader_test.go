package script

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/gridsync/internal/dispatcher/handler"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "zeta.lua"), `function handle(cmd) end`)
	writeFile(t, filepath.Join(dir, "notes.txt"), `ignored`)
	writeFile(t, filepath.Join(dir, "alpha", "init.lua"), `function handle(cmd) end`)
	writeFile(t, filepath.Join(dir, "audit", ManifestFile), `{"name": "audit-log", "version": "1.2.0", "main": "main.lua", "layer": "core"}`)
	writeFile(t, filepath.Join(dir, "audit", "main.lua"), `function handle(cmd) end`)

	manifests, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	var names []string
	for _, m := range manifests {
		names = append(names, m.Name)
	}
	want := []string{"alpha", "audit-log", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("Discover() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("plugin %d = %s, want %s", i, names[i], want[i])
		}
	}

	specs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(specs) != 3 || specs[0].Name != "audit-log" || specs[0].Layer != handler.LayerCore {
		t.Errorf("LoadDir() did not put the core plugin first: %+v", specs)
	}
	if specs[1].Layer != handler.LayerUI {
		t.Errorf("default layer = %s", specs[1].Layer)
	}
}

func TestDiscoverMissingDir(t *testing.T) {
	manifests, err := Discover(filepath.Join(t.TempDir(), "none"))
	if err != nil || len(manifests) != 0 {
		t.Errorf("Discover() = %v, %v", manifests, err)
	}
}

func TestDiscoverErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  error
	}{
		{"no entry point", map[string]string{"empty/readme.md": "x"}, ErrNoEntryPoint},
		{"bad json", map[string]string{"p/plugin.json": "{"}, ErrInvalidManifest},
		{"bad name", map[string]string{"p/plugin.json": `{"name": "Bad Name"}`}, ErrInvalidManifest},
		{"bad version", map[string]string{"p/plugin.json": `{"name": "p", "version": "one"}`}, ErrInvalidManifest},
		{"bad main", map[string]string{"p/plugin.json": `{"name": "p", "main": "../escape.lua"}`}, ErrInvalidManifest},
		{"bad layer", map[string]string{"p/plugin.json": `{"name": "p", "layer": "history"}`}, ErrInvalidManifest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, filepath.Join(dir, name), content)
			}
			if _, err := Discover(dir); !errors.Is(err, tt.want) {
				t.Errorf("Discover() error = %v, want %v", err, tt.want)
			}
		})
	}
}
