package app

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics tracks the HTTP activity of the server.
type Metrics struct {
	// Request timing
	requestCount   atomic.Uint64
	requestTotalNs atomic.Int64
	requestMinNs   atomic.Int64
	requestMaxNs   atomic.Int64
	lastRequestNs  atomic.Int64

	// Outcomes
	clientErrors atomic.Uint64
	serverErrors atomic.Uint64
	panics       atomic.Uint64
	upgrades     atomic.Uint64

	// Start time for uptime calculation
	startTime atomic.Int64
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.Reset()
	return m
}

// RecordUpgrade records a websocket upgrade. Upgraded requests are not
// timed.
func (m *Metrics) RecordUpgrade() {
	m.upgrades.Add(1)
}

// RecordRequest records a completed request.
func (m *Metrics) RecordRequest(duration time.Duration, status int) {
	ns := duration.Nanoseconds()
	m.requestCount.Add(1)
	m.requestTotalNs.Add(ns)
	m.lastRequestNs.Store(ns)

	for {
		old := m.requestMinNs.Load()
		if ns >= old || m.requestMinNs.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.requestMaxNs.Load()
		if ns <= old || m.requestMaxNs.CompareAndSwap(old, ns) {
			break
		}
	}

	switch {
	case status >= 500:
		m.serverErrors.Add(1)
	case status >= 400:
		m.clientErrors.Add(1)
	}
}

// RecordPanic records a panic recovered from a handler.
func (m *Metrics) RecordPanic() {
	m.panics.Add(1)
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	count := m.requestCount.Load()
	var avg int64
	if count > 0 {
		avg = m.requestTotalNs.Load() / int64(count)
	}
	minNs := m.requestMinNs.Load()
	if minNs == 1<<63-1 {
		minNs = 0
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return MetricsSnapshot{
		Uptime:        time.Since(time.Unix(0, m.startTime.Load())),
		RequestCount:  count,
		AvgRequestNs:  avg,
		MinRequestNs:  minNs,
		MaxRequestNs:  m.requestMaxNs.Load(),
		LastRequestNs: m.lastRequestNs.Load(),
		ClientErrors:  m.clientErrors.Load(),
		ServerErrors:  m.serverErrors.Load(),
		Panics:        m.panics.Load(),
		Upgrades:      m.upgrades.Load(),
		HeapBytes:     mem.HeapAlloc,
		Goroutines:    runtime.NumGoroutine(),
	}
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.requestCount.Store(0)
	m.requestTotalNs.Store(0)
	m.requestMinNs.Store(1<<63 - 1)
	m.requestMaxNs.Store(0)
	m.lastRequestNs.Store(0)
	m.clientErrors.Store(0)
	m.serverErrors.Store(0)
	m.panics.Store(0)
	m.upgrades.Store(0)
	m.startTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	Uptime        time.Duration `json:"uptimeNs"`
	RequestCount  uint64        `json:"requests"`
	AvgRequestNs  int64         `json:"avgRequestNs"`
	MinRequestNs  int64         `json:"minRequestNs"`
	MaxRequestNs  int64         `json:"maxRequestNs"`
	LastRequestNs int64         `json:"lastRequestNs"`
	ClientErrors  uint64        `json:"clientErrors"`
	ServerErrors  uint64        `json:"serverErrors"`
	Panics        uint64        `json:"panics"`
	Upgrades      uint64        `json:"websocketUpgrades"`
	HeapBytes     uint64        `json:"heapBytes"`
	Goroutines    int           `json:"goroutines"`

	// Set by the metrics endpoint.
	Connections int `json:"connections"`
	Documents   int `json:"documents"`
}

// ErrorRate returns the percentage of requests answered with a 5xx status.
func (s MetricsSnapshot) ErrorRate() float64 {
	if s.RequestCount == 0 {
		return 0
	}
	return float64(s.ServerErrors) / float64(s.RequestCount) * 100
}

// HeapMB returns heap size in megabytes.
func (s MetricsSnapshot) HeapMB() float64 {
	return float64(s.HeapBytes) / (1024 * 1024)
}

// Metrics returns the application's metrics instance.
func (app *Application) Metrics() *Metrics {
	return app.metrics
}

func (app *Application) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	snap := app.metrics.Snapshot()
	if srv := app.server; srv != nil {
		snap.Connections = srv.Connections()
		snap.Documents = len(srv.Hub().Documents())
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}
