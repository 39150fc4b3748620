package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dshills/gridsync/internal/model"
	"github.com/dshills/gridsync/internal/plugins/selection"
	"github.com/dshills/gridsync/internal/plugins/sheet"
	"github.com/dshills/gridsync/internal/relay"
	"github.com/dshills/gridsync/internal/session"
)

func newTestModel(t *testing.T, tr session.Transport, name string) *model.Model {
	t.Helper()
	m, err := model.New(model.Config{
		Plugins:   []model.PluginSpec{sheet.Spec(), selection.Spec()},
		Transport: tr,
		Client:    &session.Client{ID: name, Name: name},
		Data:      sheet.DefaultData(),
	})
	if err != nil {
		t.Fatalf("model.New: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

// records decodes the JSON lines of out.
func records(t *testing.T, out *bytes.Buffer) []map[string]any {
	t.Helper()
	var recs []map[string]any
	dec := json.NewDecoder(out)
	for dec.More() {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			t.Fatalf("decode output: %v", err)
		}
		recs = append(recs, rec)
	}
	return recs
}

func TestShellExecute(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		event string
		check func(t *testing.T, rec map[string]any)
	}{
		{
			name:  "dispatch",
			line:  `{"type":"UPDATE_CELL","sheetId":"sheet1","col":0,"row":0,"content":"hi"}`,
			event: "result",
			check: func(t *testing.T, rec map[string]any) {
				if rec["ok"] != true || rec["command"] != "UPDATE_CELL" {
					t.Errorf("result = %v", rec)
				}
			},
		},
		{
			name:  "refused",
			line:  `{"type":"UPDATE_CELL","sheetId":"missing","col":0,"row":0,"content":"hi"}`,
			event: "result",
			check: func(t *testing.T, rec map[string]any) {
				if rec["ok"] != false || rec["reasons"] == nil {
					t.Errorf("result = %v, want refusal reasons", rec)
				}
			},
		},
		{
			name:  "unknown kind",
			line:  `{"type":"NOPE"}`,
			event: "result",
			check: func(t *testing.T, rec map[string]any) {
				if rec["command"] != "NOPE" || !strings.Contains(rec["error"].(string), "NOPE") {
					t.Errorf("result = %v", rec)
				}
			},
		},
		{
			name:  "revision",
			line:  "revision",
			event: "revision",
			check: func(t *testing.T, rec map[string]any) {
				v := rec["value"].(map[string]any)
				if v["synchronized"] != true {
					t.Errorf("revision = %v", v)
				}
			},
		},
		{
			name:  "stats",
			line:  "stats",
			event: "stats",
			check: func(t *testing.T, rec map[string]any) {
				v := rec["value"].(map[string]any)
				if _, ok := v["total"].(map[string]any); !ok {
					t.Errorf("stats = %v, want a total", v)
				}
				if _, ok := v["kinds"].([]any); !ok {
					t.Errorf("stats = %v, want kinds", v)
				}
			},
		},
		{
			name:  "readonly",
			line:  "readonly on",
			event: "readonly",
			check: func(t *testing.T, rec map[string]any) {
				if rec["value"] != true {
					t.Errorf("readonly = %v", rec["value"])
				}
			},
		},
		{
			name:  "readonly usage",
			line:  "readonly maybe",
			event: "error",
		},
		{
			name:  "unknown shell command",
			line:  "frobnicate",
			event: "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			sh := newShell(&out)
			m := newTestModel(t, relay.NewLocal("doc"), "a")

			if err := sh.execute(m, tt.line); err != nil {
				t.Fatalf("execute: %v", err)
			}
			recs := records(t, &out)
			if len(recs) != 1 {
				t.Fatalf("got %d records, want 1: %v", len(recs), recs)
			}
			if recs[0]["event"] != tt.event {
				t.Errorf("event = %v, want %s", recs[0]["event"], tt.event)
			}
			if tt.check != nil {
				tt.check(t, recs[0])
			}
		})
	}
}

func TestShellIgnoresBlankAndComments(t *testing.T) {
	var out bytes.Buffer
	sh := newShell(&out)
	m := newTestModel(t, relay.NewLocal("doc"), "a")

	for _, line := range []string{"", "   ", "# comment"} {
		if err := sh.execute(m, line); err != nil {
			t.Errorf("execute(%q): %v", line, err)
		}
	}
	if out.Len() != 0 {
		t.Errorf("output = %q, want nothing", out.String())
	}
}

func TestShellQuit(t *testing.T) {
	sh := newShell(&bytes.Buffer{})
	m := newTestModel(t, relay.NewLocal("doc"), "a")

	for _, line := range []string{"quit", "exit"} {
		if err := sh.execute(m, line); !errors.Is(err, errQuit) {
			t.Errorf("execute(%q) = %v, want errQuit", line, err)
		}
	}
}

func TestShellWatchPrintsRemoteUpdates(t *testing.T) {
	tr := relay.NewLocal("doc")
	a := newTestModel(t, tr, "a")
	b := newTestModel(t, tr, "b")

	var out bytes.Buffer
	sh := newShell(&out)
	stop := sh.watch(b)

	if err := sh.execute(a, `{"type":"UPDATE_CELL","sheetId":"sheet1","col":1,"row":2,"content":"x"}`); err != nil {
		t.Fatalf("execute: %v", err)
	}
	b.Sync()
	stop()

	var remote map[string]any
	for _, rec := range records(t, &out) {
		if rec["event"] == "update" && rec["remote"] != nil {
			remote = rec
		}
	}
	if remote == nil {
		t.Fatalf("no remote update printed: %s", out.String())
	}
	kinds := remote["remote"].([]any)
	if len(kinds) != 1 || kinds[0] != "UPDATE_CELL" {
		t.Errorf("remote = %v, want [UPDATE_CELL]", kinds)
	}
	if changes := remote["changes"].([]any); len(changes) == 0 {
		t.Error("remote update has no changes")
	}
}
