package loader

import (
	"slices"
	"strings"
	"testing"
)

func defaults() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"addr":           ":8080",
			"allowedOrigins": []any{},
		},
		"session": map[string]any{
			"readOnly":   false,
			"maxHistory": int64(99),
		},
		"plugins": map[string]any{
			"ratio": 0.5,
		},
	}
}

func fakeEnv(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestEnvName(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"log.level", "GRIDSYNC_LOG_LEVEL"},
		{"session.readOnly", "GRIDSYNC_SESSION_READ_ONLY"},
		{"server.allowedOrigins", "GRIDSYNC_SERVER_ALLOWED_ORIGINS"},
		{"redis.db", "GRIDSYNC_REDIS_DB"},
	}

	for _, tt := range tests {
		if got := EnvName("GRIDSYNC_", tt.path); got != tt.expected {
			t.Errorf("EnvName(%q) = %q, want %q", tt.path, got, tt.expected)
		}
	}
}

func TestEnvLoader_Variables(t *testing.T) {
	got := NewEnvLoader("GRIDSYNC_", defaults()).Variables()
	want := []string{
		"GRIDSYNC_PLUGINS_RATIO",
		"GRIDSYNC_SERVER_ADDR",
		"GRIDSYNC_SERVER_ALLOWED_ORIGINS",
		"GRIDSYNC_SESSION_MAX_HISTORY",
		"GRIDSYNC_SESSION_READ_ONLY",
	}
	if !slices.Equal(got, want) {
		t.Errorf("Variables() = %v, want %v", got, want)
	}
}

func TestEnvLoader_Load(t *testing.T) {
	loader := NewEnvLoader("GRIDSYNC_", defaults())
	loader.lookup = fakeEnv(map[string]string{
		"GRIDSYNC_SERVER_ADDR":            "12345",
		"GRIDSYNC_SERVER_ALLOWED_ORIGINS": "https://a.example, https://b.example",
		"GRIDSYNC_SESSION_READ_ONLY":      "yes",
		"GRIDSYNC_SESSION_MAX_HISTORY":    "10",
		"GRIDSYNC_PLUGINS_RATIO":          "0.25",
		"GRIDSYNC_TEST_REDIS_ADDR":        "localhost:6379",
	})

	config, err := loader.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		path string
		want any
	}{
		{"server.addr", "12345"},
		{"session.readOnly", true},
		{"session.maxHistory", int64(10)},
		{"plugins.ratio", 0.25},
	}
	for _, tt := range tests {
		if got, ok := getByPath(config, tt.path); !ok || got != tt.want {
			t.Errorf("%s = %v (%T), want %v (%T)", tt.path, got, got, tt.want, tt.want)
		}
	}

	origins, _ := getByPath(config, "server.allowedOrigins")
	if list, ok := origins.([]any); !ok || len(list) != 2 || list[1] != "https://b.example" {
		t.Errorf("server.allowedOrigins = %v", origins)
	}
	if _, ok := config["test"]; ok {
		t.Error("unknown variable was loaded")
	}
}

func TestEnvLoader_LoadUnset(t *testing.T) {
	loader := NewEnvLoader("GRIDSYNC_", defaults())
	loader.lookup = fakeEnv(nil)

	config, err := loader.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(config) != 0 {
		t.Errorf("Load() = %v, want empty", config)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		input   string
		like    any
		want    any
		wantErr bool
	}{
		{"true", false, true, false},
		{"ON", false, true, false},
		{"0", false, false, false},
		{"maybe", false, nil, true},
		{"42", int64(0), int64(42), false},
		{"-10", int64(0), int64(-10), false},
		{"4.2", int64(0), nil, true},
		{"3.14", 0.0, 3.14, false},
		{"x", 0.0, nil, true},
		{"12345", "", "12345", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		got, err := parseValue(tt.input, tt.like)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseValue(%q, %T) error = %v, wantErr %v", tt.input, tt.like, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseValue(%q, %T) = %v (%T), want %v", tt.input, tt.like, got, got, tt.want)
		}
	}
}

func TestParseValue_Lists(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{`["a","b"]`, []string{"a", "b"}},
		{"a, b ,c", []string{"a", "b", "c"}},
		{"", nil},
	}

	for _, tt := range tests {
		got, err := parseValue(tt.input, []any{})
		if err != nil {
			t.Fatalf("parseValue(%q) error = %v", tt.input, err)
		}
		list, _ := got.([]any)
		var strs []string
		for _, v := range list {
			strs = append(strs, v.(string))
		}
		if !slices.Equal(strs, tt.want) {
			t.Errorf("parseValue(%q) = %v, want %v", tt.input, strs, tt.want)
		}
	}

	if _, err := parseValue("[1,", []any{}); err == nil || !strings.Contains(err.Error(), "invalid list") {
		t.Errorf("parseValue(bad json) error = %v", err)
	}
}
