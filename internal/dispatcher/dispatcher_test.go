package dispatcher_test

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"testing"

	"github.com/dshills/gridsync/internal/command"
	"github.com/dshills/gridsync/internal/dispatcher"
	"github.com/dshills/gridsync/internal/dispatcher/handler"
	"github.com/dshills/gridsync/internal/engine/tracking"
)

// cells is a minimal core handler storing cell contents.
type cells struct {
	state *tracking.State
	d     *dispatcher.Dispatcher
	log   *[]string
}

func (c *cells) AllowDispatch(cmd command.Command) []handler.Reason {
	if u, ok := cmd.(command.UpdateCell); ok && u.SheetID != "s1" {
		return []handler.Reason{handler.ReasonInvalidSheetID}
	}
	return nil
}

func (c *cells) BeforeHandle(cmd command.Command) {
	*c.log = append(*c.log, "core.before:"+string(cmd.Kind()))
}

func (c *cells) Handle(cmd command.Command) {
	*c.log = append(*c.log, "core.handle:"+string(cmd.Kind()))
	switch cmd := cmd.(type) {
	case command.UpdateCell:
		var v any = cmd.Content
		if cmd.Content == "" {
			v = nil
		}
		c.state.Set(tracking.Path{"cells", cmd.SheetID, command.ToXC(cmd.Col, cmd.Row)}, v)
		if cmd.Content == "boom" {
			panic("bad content")
		}
	case command.ClearCell:
		// Clearing is implemented as an update, issued from the core.
		c.d.DispatchFromCore(command.UpdateCell{SheetID: cmd.SheetID, Col: cmd.Col, Row: cmd.Row})
	}
}

func (c *cells) Finalize() {
	*c.log = append(*c.log, "core.finalize")
}

type fixture struct {
	state *tracking.State
	d     *dispatcher.Dispatcher
	log   []string
}

func newFixture(t *testing.T, config dispatcher.Config) *fixture {
	t.Helper()
	f := &fixture{state: tracking.NewState()}
	f.d = dispatcher.New(tracking.NewRecorder(f.state), config)
	f.d.Register(handler.LayerCore, &cells{state: f.state, d: f.d, log: &f.log})
	f.d.Register(handler.LayerUI, handler.Funcs{
		Before:   func(cmd command.Command) { f.log = append(f.log, "ui.before:"+string(cmd.Kind())) },
		OnHandle: func(cmd command.Command) { f.log = append(f.log, "ui.handle:"+string(cmd.Kind())) },
		Final:    func() { f.log = append(f.log, "ui.finalize") },
	})
	return f
}

func cell(col, row int, content string) command.UpdateCell {
	return command.UpdateCell{SheetID: "s1", Col: col, Row: row, Content: content}
}

func TestDispatchOrder(t *testing.T) {
	f := newFixture(t, dispatcher.DefaultConfig())

	result := f.d.Dispatch(cell(0, 0, "hello"))
	if !result.IsSuccessful() {
		t.Fatalf("dispatch failed: %s", result)
	}

	want := []string{
		"core.before:UPDATE_CELL",
		"ui.before:UPDATE_CELL",
		"core.handle:UPDATE_CELL",
		"ui.handle:UPDATE_CELL",
		"core.finalize",
		"ui.finalize",
	}
	if !slices.Equal(f.log, want) {
		t.Errorf("log = %v, want %v", f.log, want)
	}
	if got := f.state.GetString(tracking.Path{"cells", "s1", "A1"}); got != "hello" {
		t.Errorf("A1 = %q, want hello", got)
	}
	if f.d.Status() != dispatcher.StatusReady {
		t.Errorf("status = %s, want ready", f.d.Status())
	}
}

func TestDispatchRefused(t *testing.T) {
	f := newFixture(t, dispatcher.DefaultConfig())
	updates := 0
	f.d.OnUpdate(func(dispatcher.Update) { updates++ })

	result := f.d.Dispatch(command.UpdateCell{SheetID: "nope", Content: "x"})
	if !result.IsCancelledBecause(handler.ReasonInvalidSheetID) {
		t.Fatalf("result = %s, want invalid-sheet-id", result)
	}
	if len(f.log) != 0 {
		t.Errorf("handlers ran for a refused command: %v", f.log)
	}
	if updates != 0 {
		t.Errorf("updates = %d, want 0", updates)
	}
}

func TestReasonsFromAllLayers(t *testing.T) {
	f := newFixture(t, dispatcher.DefaultConfig())
	f.d.Register(handler.LayerHistory, handler.Funcs{
		Allow: func(command.Command) []handler.Reason {
			return []handler.Reason{handler.ReasonInvalidSheetID, handler.ReasonMergeOverlap}
		},
	})

	result := f.d.Dispatch(command.UpdateCell{SheetID: "nope"})
	want := []handler.Reason{handler.ReasonInvalidSheetID, handler.ReasonMergeOverlap}
	if !slices.Equal(result.Reasons(), want) {
		t.Errorf("reasons = %v, want %v", result.Reasons(), want)
	}
}

func TestOneUpdatePerDispatch(t *testing.T) {
	f := newFixture(t, dispatcher.DefaultConfig())
	var updates []dispatcher.Update
	f.d.OnUpdate(func(u dispatcher.Update) { updates = append(updates, u) })

	// A UI handler dispatching nested commands must not add updates.
	f.d.Register(handler.LayerUI, handler.Funcs{
		OnHandle: func(cmd command.Command) {
			if cmd.Kind() == command.KindSelectCell {
				f.d.Dispatch(cell(1, 1, "nested"))
			}
		},
	})

	f.d.Dispatch(command.SelectCell{Col: 1, Row: 1})
	if len(updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(updates))
	}
	if len(updates[0].Changes) != 1 {
		t.Errorf("changes = %+v, want the nested write", updates[0].Changes)
	}
}

func TestCommitReceivesNestedCoreCommands(t *testing.T) {
	f := newFixture(t, dispatcher.DefaultConfig())
	f.d.Register(handler.LayerUI, handler.Funcs{
		OnHandle: func(cmd command.Command) {
			if cmd.Kind() == command.KindSelectCell {
				f.d.Dispatch(cell(0, 0, "a"))
				f.d.Dispatch(command.UpdateCell{SheetID: "bad"})
				f.d.Dispatch(cell(0, 1, "b"))
			}
		},
	})
	var got []tracking.Recording
	f.d.OnCommit(func(_ command.Command, rec tracking.Recording) { got = append(got, rec) })

	f.d.Dispatch(command.SelectCell{})
	if len(got) != 1 {
		t.Fatalf("commits = %d, want 1", len(got))
	}
	kinds := make([]command.Kind, 0, len(got[0].Commands))
	for _, c := range got[0].Commands {
		kinds = append(kinds, c.Kind())
	}
	want := []command.Kind{command.KindUpdateCell, command.KindUpdateCell}
	if !slices.Equal(kinds, want) {
		t.Errorf("recorded kinds = %v, want %v", kinds, want)
	}
	if len(got[0].Changes) != 2 {
		t.Errorf("changes = %+v", got[0].Changes)
	}
}

func TestTransientCommandNotCommitted(t *testing.T) {
	f := newFixture(t, dispatcher.DefaultConfig())
	commits := 0
	f.d.OnCommit(func(command.Command, tracking.Recording) { commits++ })
	f.d.Dispatch(command.SelectCell{Col: 2})
	if commits != 0 {
		t.Errorf("commits = %d, want 0", commits)
	}
}

func TestSubCommandsFromCoreNotRecorded(t *testing.T) {
	f := newFixture(t, dispatcher.DefaultConfig())
	f.d.Dispatch(cell(0, 0, "x"))

	var rec tracking.Recording
	f.d.OnCommit(func(_ command.Command, r tracking.Recording) { rec = r })
	f.log = nil
	f.d.Dispatch(command.ClearCell{SheetID: "s1"})

	if len(rec.Commands) != 1 || rec.Commands[0].Kind() != command.KindClearCell {
		t.Errorf("commands = %v, want only CLEAR_CELL", rec.Commands)
	}
	if f.state.Has(tracking.Path{"cells", "s1", "A1"}) {
		t.Error("A1 should be cleared")
	}
	if !slices.Contains(f.log, "ui.handle:UPDATE_CELL") {
		t.Errorf("UI should see sub-commands outside replay: %v", f.log)
	}
}

func TestHandlerPanicIsAtomic(t *testing.T) {
	f := newFixture(t, dispatcher.Config{CollectMetrics: true, RecoverPanics: true})
	f.d.Dispatch(cell(0, 0, "keep"))
	before := f.state.Export()

	updates := 0
	f.d.OnUpdate(func(dispatcher.Update) { updates++ })
	f.d.Register(handler.LayerUI, handler.Funcs{
		OnHandle: func(command.Command) {
			f.state.Set(tracking.Path{"ui", "x"}, 1)
		},
	})

	result := f.d.Dispatch(cell(0, 0, "boom"))
	if !result.IsCancelledBecause(handler.ReasonHandlerPanic) || result.Err == nil {
		t.Fatalf("result = %s, want handler-panic with error", result)
	}
	if got := f.state.Export(); !reflect.DeepEqual(got, before) {
		t.Errorf("state = %v, want %v", got, before)
	}
	if f.d.Status() != dispatcher.StatusReady {
		t.Errorf("status = %s, want ready", f.d.Status())
	}
	if updates != 0 {
		t.Errorf("updates = %d, want 0", updates)
	}
	if total := f.d.Metrics().Total(); total.Panics != 1 || total.Reasons["handler-panic"] != 1 {
		t.Errorf("total = %+v, want one handler panic", total)
	}

	// The dispatcher stays usable.
	if r := f.d.Dispatch(cell(1, 0, "next")); !r.IsSuccessful() {
		t.Errorf("dispatch after panic = %s", r)
	}
}

func TestHandlerPanicWithoutRecovery(t *testing.T) {
	f := newFixture(t, dispatcher.Config{})
	defer func() {
		if recover() == nil {
			t.Error("expected panic to propagate")
		}
		if f.state.Has(tracking.Path{"cells"}) {
			t.Error("writes should be reverted")
		}
	}()
	f.d.Dispatch(cell(0, 0, "boom"))
}

func TestDispatchFromFinalizePanics(t *testing.T) {
	f := newFixture(t, dispatcher.DefaultConfig())
	f.d.Register(handler.LayerUI, handler.Funcs{
		Final: func() { f.d.Dispatch(command.SelectCell{}) },
	})

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, dispatcher.ErrContractViolation) {
			t.Fatalf("recovered %v, want contract violation", r)
		}
		var ce *dispatcher.ContractError
		if !errors.As(err, &ce) || ce.Status != dispatcher.StatusFinalizing {
			t.Errorf("contract error = %+v", ce)
		}
	}()
	f.d.Dispatch(command.SelectCell{})
	t.Error("dispatch from finalize should panic")
}

func TestDispatchDuringReplayPanics(t *testing.T) {
	f := newFixture(t, dispatcher.DefaultConfig())
	f.d.Register(handler.LayerCore, handler.Funcs{
		OnHandle: func(command.Command) { f.d.Dispatch(command.SelectCell{}) },
	})
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected contract panic")
		}
	}()
	f.d.DispatchCore(cell(0, 0, "x"))
}

func TestDispatchCoreReachesCoreOnly(t *testing.T) {
	f := newFixture(t, dispatcher.DefaultConfig())
	f.d.DispatchCore(command.ClearCell{SheetID: "s1"})

	want := []string{
		"core.before:CLEAR_CELL",
		"core.handle:CLEAR_CELL",
		"core.before:UPDATE_CELL",
		"core.handle:UPDATE_CELL",
	}
	if !slices.Equal(f.log, want) {
		t.Errorf("log = %v, want %v", f.log, want)
	}
	if f.d.Status() != dispatcher.StatusReady || f.d.Replaying() {
		t.Errorf("status = %s replaying = %t after replay", f.d.Status(), f.d.Replaying())
	}
}

func TestNotifyRemote(t *testing.T) {
	f := newFixture(t, dispatcher.DefaultConfig())
	var updates []dispatcher.Update
	f.d.OnUpdate(func(u dispatcher.Update) { updates = append(updates, u) })

	cmds := []command.Command{cell(0, 0, "a"), cell(1, 0, "b")}
	f.d.NotifyRemote(cmds, nil)

	want := []string{
		"ui.before:UPDATE_CELL",
		"ui.handle:UPDATE_CELL",
		"ui.before:UPDATE_CELL",
		"ui.handle:UPDATE_CELL",
		"core.finalize",
		"ui.finalize",
	}
	if !slices.Equal(f.log, want) {
		t.Errorf("log = %v, want %v", f.log, want)
	}
	if len(updates) != 1 || !updates[0].IsRemote() || len(updates[0].Remote) != 2 {
		t.Errorf("updates = %+v", updates)
	}
}

func TestReadOnly(t *testing.T) {
	tests := []struct {
		name string
		cmd  command.Command
		ok   bool
	}{
		{"core command refused", cell(0, 0, "x"), false},
		{"undo refused", command.RequestUndo{}, false},
		{"selection allowed", command.SelectCell{}, true},
		{"sheet activation allowed", command.ActivateSheet{SheetIDFrom: "s1", SheetIDTo: "s2"}, true},
	}

	f := newFixture(t, dispatcher.Config{ReadOnly: true, RecoverPanics: true})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.d.Dispatch(tt.cmd)
			if result.IsSuccessful() != tt.ok {
				t.Errorf("result = %s, want ok=%t", result, tt.ok)
			}
			if !tt.ok && !result.IsCancelledBecause(handler.ReasonReadonly) {
				t.Errorf("result = %s, want readonly", result)
			}
		})
	}

	f.d.SetReadOnly(false)
	if r := f.d.Dispatch(cell(0, 0, "x")); !r.IsSuccessful() {
		t.Errorf("dispatch after SetReadOnly(false) = %s", r)
	}
}

func TestHooks(t *testing.T) {
	f := newFixture(t, dispatcher.DefaultConfig())
	f.d.RegisterPreHook(dispatcher.PreDispatchFunc(func(cmd command.Command) bool {
		return cmd.Kind() != command.KindSetViewportOffset
	}))

	var seen []string
	f.d.RegisterPostHook(dispatcher.PostDispatchFunc(func(cmd command.Command, r handler.Result) {
		seen = append(seen, string(cmd.Kind())+"="+r.String())
	}))

	f.d.Dispatch(command.SetViewportOffset{})
	f.d.Dispatch(command.SelectCell{})

	want := []string{"SET_VIEWPORT_OFFSET=cancelled-by-hook", "SELECT_CELL=success"}
	if !slices.Equal(seen, want) {
		t.Errorf("seen = %v, want %v", seen, want)
	}
}

type debugLog []string

func (l *debugLog) Debug(msg string, kv ...any) {
	*l = append(*l, fmt.Sprint(append([]any{msg}, kv...)...))
}

func TestLoggingHook(t *testing.T) {
	f := newFixture(t, dispatcher.DefaultConfig())
	var log debugLog
	hook := dispatcher.NewLoggingHook(&log)
	f.d.RegisterPreHook(hook)
	f.d.RegisterPostHook(hook)

	f.d.Dispatch(cell(0, 0, "a"))
	f.d.Dispatch(command.UpdateCell{SheetID: "bad"})

	want := []string{
		fmt.Sprint("dispatch", "command", command.KindUpdateCell, "core", true),
		fmt.Sprint("dispatched", "command", command.KindUpdateCell, "result", handler.Success()),
		fmt.Sprint("dispatch", "command", command.KindUpdateCell, "core", true),
		fmt.Sprint("dispatched", "command", command.KindUpdateCell, "result", handler.Failure(handler.ReasonInvalidSheetID)),
	}
	if !slices.Equal(log, want) {
		t.Errorf("log = %q\nwant  %q", log, want)
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, dispatcher.Config{CollectMetrics: true, RecoverPanics: true})
	f.d.Dispatch(cell(0, 0, "a"))
	f.d.Dispatch(cell(0, 0, "b"))
	f.d.Dispatch(command.UpdateCell{SheetID: "bad"})

	f.d.Dispatch(command.SelectCell{})

	m := f.d.Metrics()
	total := m.Total()
	if total.Dispatched != 4 || total.Refused != 1 {
		t.Errorf("total dispatched = %d refused = %d, want 4 and 1", total.Dispatched, total.Refused)
	}
	stats, ok := m.Kind(command.KindUpdateCell)
	if !ok || stats.Dispatched != 3 || stats.Refused != 1 {
		t.Fatalf("UPDATE_CELL stats = %+v", stats)
	}
	if stats.Reasons["invalid-sheet-id"] != 1 {
		t.Errorf("reasons = %v", stats.Reasons)
	}
	if rate := stats.RefusalRate(); rate < 0.33 || rate > 0.34 {
		t.Errorf("refusal rate = %v, want 1/3", rate)
	}
	if stats.Slowest < stats.Average() {
		t.Errorf("slowest %v below average %v", stats.Slowest, stats.Average())
	}

	top := m.Busiest(1)
	if len(top) != 1 || top[0].Kind != command.KindUpdateCell {
		t.Errorf("Busiest(1) = %+v", top)
	}
	if all := m.Busiest(-1); len(all) != 2 {
		t.Errorf("Busiest(-1) returned %d kinds, want 2", len(all))
	}

	stats.Reasons["invalid-sheet-id"] = 99
	if again, _ := m.Kind(command.KindUpdateCell); again.Reasons["invalid-sheet-id"] != 1 {
		t.Error("Kind returned shared reasons")
	}

	m.Reset()
	if _, ok := m.Kind(command.KindUpdateCell); ok || m.Total().Dispatched != 0 {
		t.Error("Reset left counters behind")
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    dispatcher.Status
		event   dispatcher.Event
		want    dispatcher.Status
		wantErr bool
	}{
		{dispatcher.StatusReady, dispatcher.EventStart, dispatcher.StatusRunning, false},
		{dispatcher.StatusRunning, dispatcher.EventStart, dispatcher.StatusRunning, true},
		{dispatcher.StatusRunning, dispatcher.EventFinalize, dispatcher.StatusFinalizing, false},
		{dispatcher.StatusFinalizing, dispatcher.EventFinish, dispatcher.StatusReady, false},
		{dispatcher.StatusFinalizing, dispatcher.EventReplay, dispatcher.StatusFinalizing, true},
		{dispatcher.StatusRunning, dispatcher.EventReplay, dispatcher.StatusRunningCore, false},
		{dispatcher.StatusRunningCore, dispatcher.EventFinalize, dispatcher.StatusRunningCore, true},
		{dispatcher.StatusRunningCore, dispatcher.EventAbort, dispatcher.StatusReady, false},
		{dispatcher.StatusReady, dispatcher.EventAbort, dispatcher.StatusReady, true},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.event.String(), func(t *testing.T) {
			got, err := tt.from.Next(tt.event)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %t", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, dispatcher.ErrInvalidTransition) {
				t.Errorf("err = %v, want ErrInvalidTransition", err)
			}
			if got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
		})
	}
}
