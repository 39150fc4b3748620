package loader

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

// EnvLoader loads configuration from environment variables.
//
// Variables are derived from the leaves of a defaults map: with the prefix
// "GRIDSYNC_", the path session.readOnly is read from
// GRIDSYNC_SESSION_READ_ONLY. A value is parsed after the type of its
// default.
type EnvLoader struct {
	prefix   string            // Environment variable prefix (e.g., "GRIDSYNC_")
	mapping  map[string]string // Env var -> config path
	defaults map[string]any
	lookup   func(string) (string, bool)
}

// NewEnvLoader creates a loader for every leaf of defaults.
// The prefix should include the trailing underscore (e.g., "GRIDSYNC_").
func NewEnvLoader(prefix string, defaults map[string]any) *EnvLoader {
	l := &EnvLoader{
		prefix:   prefix,
		mapping:  make(map[string]string),
		defaults: defaults,
		lookup:   os.LookupEnv,
	}
	walk(defaults, "", func(path string, _ any) {
		l.mapping[EnvName(prefix, path)] = path
	})
	return l
}

// Variables returns the names of the variables read, sorted.
func (l *EnvLoader) Variables() []string {
	return slices.Sorted(maps.Keys(l.mapping))
}

// Load reads environment variables and returns a configuration map.
// Note: Empty string values are treated as valid values, not as unset.
func (l *EnvLoader) Load() (map[string]any, error) {
	config := make(map[string]any)
	for _, env := range l.Variables() {
		raw, ok := l.lookup(env)
		if !ok {
			continue
		}
		path := l.mapping[env]
		like, _ := getByPath(l.defaults, path)
		v, err := parseValue(raw, like)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", env, err)
		}
		setByPath(config, path, v)
	}
	return config, nil
}

// EnvName converts a dotted path to its variable name:
// server.allowedOrigins becomes PREFIX_SERVER_ALLOWED_ORIGINS.
func EnvName(prefix, path string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for i, part := range strings.Split(path, ".") {
		if i > 0 {
			b.WriteByte('_')
		}
		for j, r := range part {
			if j > 0 && unicode.IsUpper(r) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// parseValue parses s after the type of like.
func parseValue(s string, like any) (any, error) {
	switch like.(type) {
	case bool:
		switch strings.ToLower(s) {
		case "true", "yes", "on", "1":
			return true, nil
		case "false", "no", "off", "0", "":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean %q", s)
	case int64:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
		return i, nil
	case float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", s)
		}
		return f, nil
	case []any:
		if strings.HasPrefix(s, "[") {
			var v []any
			if err := json.Unmarshal([]byte(s), &v); err != nil {
				return nil, fmt.Errorf("invalid list %q: %w", s, err)
			}
			return v, nil
		}
		var v []any
		for item := range strings.SplitSeq(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				v = append(v, item)
			}
		}
		return v, nil
	}
	return s, nil
}

// walk calls fn for every leaf of data, tables excluded.
func walk(data map[string]any, prefix string, fn func(path string, value any)) {
	for k, v := range data {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if m, ok := v.(map[string]any); ok {
			walk(m, path, fn)
			continue
		}
		fn(path, v)
	}
}

func getByPath(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	current := data
	for i, part := range parts {
		v, ok := current[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		if current, ok = v.(map[string]any); !ok {
			return nil, false
		}
	}
	return nil, false
}

// setByPath sets a value in a nested map using a dot-separated path.
func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data

	// Navigate/create intermediate maps
	for i := 0; i < len(parts)-1; i++ {
		part := parts[i]
		if next, ok := current[part].(map[string]any); ok {
			current = next
		} else {
			next := make(map[string]any)
			current[part] = next
			current = next
		}
	}

	current[parts[len(parts)-1]] = value
}
