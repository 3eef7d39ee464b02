// Package observability collects in-process counters for conversation
// steps and expert turns.
package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics aggregates step and turn counters. All methods are safe for
// concurrent use.
type Metrics struct {
	stepTotal     atomic.Int64
	stepFailed    atomic.Int64
	deltaTotal    atomic.Int64
	fallbackTotal atomic.Int64

	mu      sync.Mutex
	experts map[string]*expertMetrics
}

type expertMetrics struct {
	turnCount       atomic.Int64
	degradedCount   atomic.Int64
	totalDurationMS atomic.Int64
}

// NewMetrics creates an empty collector.
func NewMetrics() *Metrics {
	return &Metrics{experts: make(map[string]*expertMetrics)}
}

func (m *Metrics) expert(name string) *expertMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	em, ok := m.experts[name]
	if !ok {
		em = &expertMetrics{}
		m.experts[name] = em
	}
	return em
}

// RecordStep counts one conversation step.
func (m *Metrics) RecordStep() {
	m.stepTotal.Add(1)
}

// RecordStepFailure counts a step that returned an error.
func (m *Metrics) RecordStepFailure() {
	m.stepFailed.Add(1)
}

// RecordTurn records one completed expert turn. Degraded turns are those
// whose reply is a provider error placeholder.
func (m *Metrics) RecordTurn(expertName string, duration time.Duration, degraded bool) {
	em := m.expert(expertName)
	em.turnCount.Add(1)
	em.totalDurationMS.Add(duration.Milliseconds())
	if degraded {
		em.degradedCount.Add(1)
	}
}

// RecordDelta counts one streamed fragment.
func (m *Metrics) RecordDelta() {
	m.deltaTotal.Add(1)
}

// RecordFallback counts one turn that switched to the non-streaming path.
func (m *Metrics) RecordFallback() {
	m.fallbackTotal.Add(1)
}

// ExpertSnapshot is the point-in-time view of one expert's counters.
type ExpertSnapshot struct {
	TurnCount         int64 `json:"turnCount"`
	DegradedCount     int64 `json:"degradedCount"`
	AverageDurationMS int64 `json:"averageDurationMs"`
}

// Snapshot is a point-in-time view of all counters.
type Snapshot struct {
	StepTotal     int64                     `json:"stepTotal"`
	StepFailed    int64                     `json:"stepFailed"`
	DeltaTotal    int64                     `json:"deltaTotal"`
	FallbackTotal int64                     `json:"fallbackTotal"`
	Experts       map[string]ExpertSnapshot `json:"experts"`
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	experts := make(map[string]ExpertSnapshot, len(m.experts))
	for name, em := range m.experts {
		count := em.turnCount.Load()
		var avg int64
		if count > 0 {
			avg = em.totalDurationMS.Load() / count
		}
		experts[name] = ExpertSnapshot{
			TurnCount:         count,
			DegradedCount:     em.degradedCount.Load(),
			AverageDurationMS: avg,
		}
	}
	return Snapshot{
		StepTotal:     m.stepTotal.Load(),
		StepFailed:    m.stepFailed.Load(),
		DeltaTotal:    m.deltaTotal.Load(),
		FallbackTotal: m.fallbackTotal.Load(),
		Experts:       experts,
	}
}
