package dispatcher

import (
	"cmp"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dshills/gridsync/internal/command"
	"github.com/dshills/gridsync/internal/dispatcher/handler"
)

// Metrics counts outermost dispatches. Sub-commands and replays are not
// counted.
type Metrics struct {
	mu    sync.Mutex
	kinds map[command.Kind]*KindStats
	total KindStats
}

// KindStats are the counters of one command kind, or of every kind for
// Metrics.Total.
type KindStats struct {
	Kind       command.Kind      `json:"kind,omitempty"`
	Dispatched uint64            `json:"dispatched"`
	Refused    uint64            `json:"refused"`
	Panics     uint64            `json:"panics"`
	Reasons    map[string]uint64 `json:"reasons,omitempty"` // refusals by reason
	Elapsed    time.Duration     `json:"elapsed"`
	Slowest    time.Duration     `json:"slowest"`
	Last       time.Time         `json:"last"`
}

// Average is the mean duration of a dispatch.
func (s KindStats) Average() time.Duration {
	if s.Dispatched == 0 {
		return 0
	}
	return s.Elapsed / time.Duration(s.Dispatched)
}

// RefusalRate is the share of refused dispatches, between 0 and 1.
func (s KindStats) RefusalRate() float64 {
	if s.Dispatched == 0 {
		return 0
	}
	return float64(s.Refused) / float64(s.Dispatched)
}

func (s *KindStats) add(elapsed time.Duration, at time.Time, result handler.Result) {
	s.Dispatched++
	s.Elapsed += elapsed
	s.Slowest = max(s.Slowest, elapsed)
	s.Last = at
	if result.IsSuccessful() {
		return
	}
	s.Refused++
	if s.Reasons == nil {
		s.Reasons = make(map[string]uint64)
	}
	for _, r := range result.Reasons() {
		s.Reasons[r.String()]++
	}
}

func (s KindStats) clone() KindStats {
	s.Reasons = maps.Clone(s.Reasons)
	return s
}

// NewMetrics returns empty metrics.
func NewMetrics() *Metrics {
	return &Metrics{kinds: make(map[command.Kind]*KindStats)}
}

func (m *Metrics) record(kind command.Kind, elapsed time.Duration, result handler.Result) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.kinds[kind]
	if s == nil {
		s = &KindStats{Kind: kind}
		m.kinds[kind] = s
	}
	s.add(elapsed, now, result)
	m.total.add(elapsed, now, result)
}

// recordPanic counts a recovered panic. The dispatch itself is recorded
// separately with its handler-panic result.
func (m *Metrics) recordPanic(kind command.Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.kinds[kind]
	if s == nil {
		s = &KindStats{Kind: kind}
		m.kinds[kind] = s
	}
	s.Panics++
	m.total.Panics++
}

// Total returns the counters of every kind together.
func (m *Metrics) Total() KindStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total.clone()
}

// Kind returns the counters of kind.
func (m *Metrics) Kind(kind command.Kind) (KindStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.kinds[kind]
	if !ok {
		return KindStats{}, false
	}
	return s.clone(), true
}

// Busiest returns the n most dispatched kinds, ties broken by kind.
// A negative n returns them all.
func (m *Metrics) Busiest(n int) []KindStats {
	m.mu.Lock()
	out := make([]KindStats, 0, len(m.kinds))
	for _, s := range m.kinds {
		out = append(out, s.clone())
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b KindStats) int {
		if c := cmp.Compare(b.Dispatched, a.Dispatched); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind, b.Kind)
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Reset clears every counter.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.kinds)
	m.total = KindStats{}
}
