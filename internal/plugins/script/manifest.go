package script

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/dshills/gridsync/internal/dispatcher/handler"
)

// ManifestFile is the name of the manifest of a directory plugin.
const ManifestFile = "plugin.json"

// Manifest describes a script plugin.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`

	// Main is the entry file, relative to the plugin directory.
	Main string `json:"main"`

	// Layer is "core" or "ui". Defaults to "ui".
	Layer string `json:"layer"`

	path string
}

var (
	namePattern   = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$|^[a-z]$`)
	semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)
)

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, path, err)
	}
	m.path = filepath.Dir(path)
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// newManifestMinimal describes a plugin without manifest.
func newManifestMinimal(name, dir, main string) *Manifest {
	m := &Manifest{Name: name, Main: main, path: dir}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Main == "" {
		m.Main = "init.lua"
	}
	if m.Version == "" {
		m.Version = "0.0.0"
	}
	if m.Layer == "" {
		m.Layer = handler.LayerUI.String()
	}
}

// Validate checks the manifest.
func (m *Manifest) Validate() error {
	switch {
	case !namePattern.MatchString(m.Name):
		return fmt.Errorf("%w: name %q", ErrInvalidManifest, m.Name)
	case !semverPattern.MatchString(m.Version):
		return fmt.Errorf("%w: version %q", ErrInvalidManifest, m.Version)
	case filepath.Ext(m.Main) != ".lua" || !filepath.IsLocal(m.Main):
		return fmt.Errorf("%w: main %q", ErrInvalidManifest, m.Main)
	}
	if _, err := m.HandlerLayer(); err != nil {
		return err
	}
	return nil
}

// HandlerLayer returns the dispatcher layer of the plugin.
func (m *Manifest) HandlerLayer() (handler.Layer, error) {
	switch m.Layer {
	case handler.LayerCore.String():
		return handler.LayerCore, nil
	case handler.LayerUI.String():
		return handler.LayerUI, nil
	}
	return 0, fmt.Errorf("%w: layer %q", ErrInvalidManifest, m.Layer)
}

// MainPath returns the path of the entry file.
func (m *Manifest) MainPath() string {
	return filepath.Join(m.path, m.Main)
}
