package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	snapshot := m.Snapshot()
	if snapshot.RequestCount != 0 {
		t.Errorf("expected 0 requests, got %d", snapshot.RequestCount)
	}
	if snapshot.MinRequestNs != 0 {
		t.Errorf("expected 0 min request time (sentinel handled), got %d", snapshot.MinRequestNs)
	}
	if snapshot.Goroutines == 0 {
		t.Error("expected goroutine count")
	}
}

func TestMetrics_RecordRequest(t *testing.T) {
	m := NewMetrics()

	m.RecordRequest(10*time.Millisecond, http.StatusOK)
	m.RecordRequest(20*time.Millisecond, http.StatusNotFound)
	m.RecordRequest(6*time.Millisecond, http.StatusInternalServerError)
	m.RecordUpgrade()

	s := m.Snapshot()
	if s.RequestCount != 3 {
		t.Errorf("expected 3 requests, got %d", s.RequestCount)
	}
	if s.MinRequestNs != int64(6*time.Millisecond) {
		t.Errorf("expected min 6ms, got %d ns", s.MinRequestNs)
	}
	if s.MaxRequestNs != int64(20*time.Millisecond) {
		t.Errorf("expected max 20ms, got %d ns", s.MaxRequestNs)
	}
	if s.AvgRequestNs != int64(12*time.Millisecond) {
		t.Errorf("expected avg 12ms, got %d ns", s.AvgRequestNs)
	}
	if s.ClientErrors != 1 || s.ServerErrors != 1 || s.Upgrades != 1 {
		t.Errorf("outcomes = %d/%d/%d, want 1/1/1", s.ClientErrors, s.ServerErrors, s.Upgrades)
	}
	if rate := s.ErrorRate(); rate < 33.3 || rate > 33.4 {
		t.Errorf("ErrorRate = %f, want 33.3", rate)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest(time.Millisecond, http.StatusOK)
	m.RecordPanic()
	m.Reset()

	s := m.Snapshot()
	if s.RequestCount != 0 || s.Panics != 0 || s.MaxRequestNs != 0 {
		t.Errorf("metrics after Reset = %+v", s)
	}
}

func TestMetricsSnapshot_Empty(t *testing.T) {
	var s MetricsSnapshot
	if s.ErrorRate() != 0 {
		t.Errorf("ErrorRate of empty snapshot = %f", s.ErrorRate())
	}
	s.HeapBytes = 3 * 1024 * 1024
	if s.HeapMB() != 3 {
		t.Errorf("HeapMB = %f, want 3", s.HeapMB())
	}
}

func TestMiddleware(t *testing.T) {
	m := NewMetrics()
	logger, buf := quietLogger()
	wrap := func(h http.HandlerFunc) http.Handler {
		return recoverMiddleware(logger, m)(metricsMiddleware(m)(h))
	}

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
	}{
		{"implicit ok", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) }, http.StatusOK},
		{"not found", http.NotFound, http.StatusNotFound},
		{"panic", func(http.ResponseWriter, *http.Request) { panic("boom") }, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			wrap(tt.handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	s := m.Snapshot()
	if s.RequestCount != 2 || s.ClientErrors != 1 || s.Panics != 1 {
		t.Errorf("metrics = %+v", s)
	}
	if got := buf.String(); !strings.Contains(got, "handler panic") || !strings.Contains(got, "panic=boom") {
		t.Errorf("log = %q", got)
	}
}

func TestStatusRecorder_Hijack(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rec.Hijack(); err == nil {
		t.Error("Hijack on a recorder without support succeeded")
	}
	if rec.hijacked {
		t.Error("hijacked set after failure")
	}
}
