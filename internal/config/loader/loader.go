// Package loader reads gridsync configuration sources into nested maps:
// TOML files and GRIDSYNC_* environment variables. Maps from several
// sources are combined with DeepMerge before being decoded.
package loader

// Loader reads one configuration source. A source that does not exist
// loads as a nil map.
type Loader interface {
	Load() (map[string]any, error)
}

// Func adapts a function to Loader.
type Func func() (map[string]any, error)

// Load implements Loader.
func (f Func) Load() (map[string]any, error) {
	return f()
}

// Static returns a Loader yielding a copy of m.
func Static(m map[string]any) Loader {
	return Func(func() (map[string]any, error) {
		return Clone(m), nil
	})
}

// DeepMerge returns the settings of base overridden by those of over.
// Sections present in both are merged key by key; any other value of over
// replaces the one of base. Neither argument is modified.
func DeepMerge(base, over map[string]any) map[string]any {
	out := Clone(base)
	if out == nil {
		out = make(map[string]any, len(over))
	}
	for key, v := range over {
		section, isSection := v.(map[string]any)
		prev, hadSection := out[key].(map[string]any)
		switch {
		case isSection && hadSection:
			out[key] = DeepMerge(prev, section)
		case isSection:
			out[key] = Clone(section)
		default:
			out[key] = cloneValue(v)
		}
	}
	return out
}

// Clone returns a deep copy of m.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return Clone(v)
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}
