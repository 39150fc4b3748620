package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dshills/gridsync/internal/dispatcher/handler"
	"github.com/dshills/gridsync/internal/model"
)

// Discover finds the plugins of dir: files name.lua, and directories with a
// plugin.json, an init.lua or a plugin.lua. Plugins are sorted by name. A
// missing directory holds no plugins.
func Discover(dir string) ([]*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("discover plugins: %w", err)
	}

	var out []*Manifest
	for _, entry := range entries {
		if !entry.IsDir() {
			if filepath.Ext(entry.Name()) == ".lua" {
				name := strings.TrimSuffix(entry.Name(), ".lua")
				out = append(out, newManifestMinimal(name, dir, entry.Name()))
			}
			continue
		}
		m, err := inspect(entry.Name(), filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b *Manifest) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func inspect(name, dir string) (*Manifest, error) {
	manifest := filepath.Join(dir, ManifestFile)
	if _, err := os.Stat(manifest); err == nil {
		return LoadManifest(manifest)
	}
	for _, main := range []string{"init.lua", "plugin.lua"} {
		if _, err := os.Stat(filepath.Join(dir, main)); err == nil {
			return newManifestMinimal(name, dir, main), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoEntryPoint, dir)
}

// LoadDir returns the specs of the plugins of dir, core plugins first.
func LoadDir(dir string, opts ...StateOption) ([]model.PluginSpec, error) {
	manifests, err := Discover(dir)
	if err != nil {
		return nil, err
	}
	var core, ui []model.PluginSpec
	for _, m := range manifests {
		layer, err := m.HandlerLayer()
		if err != nil {
			return nil, err
		}
		source, err := os.ReadFile(m.MainPath())
		if err != nil {
			return nil, fmt.Errorf("load plugin %s: %w", m.Name, err)
		}
		spec := Spec(m.Name, string(source), layer, opts...)
		if layer == handler.LayerCore {
			core = append(core, spec)
		} else {
			ui = append(ui, spec)
		}
	}
	return append(core, ui...), nil
}
