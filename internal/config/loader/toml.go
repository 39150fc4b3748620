package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// TOMLLoader reads a TOML configuration file.
type TOMLLoader struct {
	path     string
	readFile func(string) ([]byte, error)
}

// NewTOMLLoader reads path from the operating system.
func NewTOMLLoader(path string) *TOMLLoader {
	return &TOMLLoader{path: path, readFile: os.ReadFile}
}

// NewTOMLLoaderFS reads path from fsys.
func NewTOMLLoaderFS(fsys fs.FS, path string) *TOMLLoader {
	return &TOMLLoader{
		path: path,
		readFile: func(name string) ([]byte, error) {
			return fs.ReadFile(fsys, name)
		},
	}
}

// Load implements Loader. An empty path or a missing file loads as nil.
func (l *TOMLLoader) Load() (map[string]any, error) {
	if l.path == "" {
		return nil, nil
	}
	data, err := l.readFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.path, err)
	}
	return Parse(l.path, data)
}

// Parse decodes the TOML document data read from source.
func Parse(source string, data []byte) (map[string]any, error) {
	var m map[string]any
	err := toml.Unmarshal(data, &m)
	if err == nil {
		return m, nil
	}
	pe := &ParseError{Source: source, Err: err}
	var de *toml.DecodeError
	if errors.As(err, &de) {
		pe.Line, pe.Column = de.Position()
	}
	return nil, pe
}

// ParseError is a syntax error in a configuration file. Line and Column
// are zero when the position is unknown.
type ParseError struct {
	Source string
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("%s:%d:%d: %v", e.Source, e.Line, e.Column, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("%s:%d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
