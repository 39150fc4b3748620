package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dshills/gridsync/internal/command"
	"github.com/dshills/gridsync/internal/dispatcher"
	"github.com/dshills/gridsync/internal/engine/tracking"
	"github.com/dshills/gridsync/internal/model"
)

// Output records, one JSON object per line.
type (
	resultRecord struct {
		Event   string   `json:"event"`
		Command string   `json:"command,omitempty"`
		OK      bool     `json:"ok"`
		Reasons []string `json:"reasons,omitempty"`
		Error   string   `json:"error,omitempty"`
	}

	updateRecord struct {
		Event   string           `json:"event"`
		Command string           `json:"command,omitempty"`
		Remote  []string         `json:"remote,omitempty"`
		Changes tracking.Changes `json:"changes"`
	}

	valueRecord struct {
		Event string `json:"event"`
		Value any    `json:"value"`
	}
)

// errQuit ends the shell.
var errQuit = errors.New("quit")

// shell turns input lines into commands of a model and prints what happens
// to the document.
//
// A line starting with "{" is a command as encoded by command.Marshal.
// Other lines are shell commands: export, clients, revision, snapshot,
// stats, readonly on|off and quit.
type shell struct {
	mu  sync.Mutex
	out *json.Encoder
}

func newShell(w io.Writer) *shell {
	return &shell{out: json.NewEncoder(w)}
}

func (s *shell) print(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.out.Encode(v)
}

// watch prints the updates of m. The returned function stops.
func (s *shell) watch(m *model.Model) func() {
	sub := m.OnUpdate(func(u dispatcher.Update) {
		rec := updateRecord{Event: "update", Changes: u.Changes}
		if u.Command != nil {
			rec.Command = string(u.Command.Kind())
		}
		for _, cmd := range u.Remote {
			rec.Remote = append(rec.Remote, string(cmd.Kind()))
		}
		s.print(rec)
	})
	return sub.Cancel
}

// execute runs one input line against m.
func (s *shell) execute(m *model.Model, line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "" || strings.HasPrefix(line, "#"):
		return nil
	case strings.HasPrefix(line, "{"):
		s.dispatch(m, []byte(line))
		return nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "quit", "exit":
		return errQuit
	case "export":
		s.print(valueRecord{Event: "export", Value: m.Export()})
	case "clients":
		s.print(valueRecord{Event: "clients", Value: m.Clients()})
	case "revision":
		s.print(valueRecord{Event: "revision", Value: map[string]any{
			"id":           m.RevisionID(),
			"synchronized": m.IsFullySynchronized(),
		}})
	case "snapshot":
		s.print(resultRecord{Event: "snapshot", OK: m.RequestSnapshot()})
	case "stats":
		metrics := m.Metrics()
		if metrics == nil {
			s.print(resultRecord{Event: "error", Error: "metrics are disabled"})
			return nil
		}
		s.print(valueRecord{Event: "stats", Value: map[string]any{
			"total": metrics.Total(),
			"kinds": metrics.Busiest(-1),
		}})
	case "readonly":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			s.print(resultRecord{Event: "error", Error: "usage: readonly on|off"})
			return nil
		}
		m.SetReadOnly(fields[1] == "on")
		s.print(valueRecord{Event: "readonly", Value: m.ReadOnly()})
	default:
		s.print(resultRecord{Event: "error", Error: fmt.Sprintf("unknown command %q", fields[0])})
	}
	return nil
}

func (s *shell) dispatch(m *model.Model, data []byte) {
	cmd, err := command.Unmarshal(data)
	if err != nil {
		s.print(resultRecord{Event: "result", Command: string(command.PeekKind(data)), Error: err.Error()})
		return
	}
	r := m.Dispatch(cmd)
	rec := resultRecord{Event: "result", Command: string(cmd.Kind()), OK: r.IsSuccessful()}
	for _, reason := range r.Reasons() {
		rec.Reasons = append(rec.Reasons, reason.String())
	}
	s.print(rec)
}
