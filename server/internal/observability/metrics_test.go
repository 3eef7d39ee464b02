package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()

	m.RecordStep()
	m.RecordStep()
	m.RecordStepFailure()
	m.RecordDelta()
	m.RecordDelta()
	m.RecordDelta()
	m.RecordFallback()

	m.RecordTurn("Ada", 100*time.Millisecond, false)
	m.RecordTurn("Ada", 300*time.Millisecond, false)
	m.RecordTurn("Linus", 50*time.Millisecond, true)

	snapshot := m.Snapshot()
	assert.Equal(t, int64(2), snapshot.StepTotal)
	assert.Equal(t, int64(1), snapshot.StepFailed)
	assert.Equal(t, int64(3), snapshot.DeltaTotal)
	assert.Equal(t, int64(1), snapshot.FallbackTotal)

	ada := snapshot.Experts["Ada"]
	assert.Equal(t, int64(2), ada.TurnCount)
	assert.Equal(t, int64(0), ada.DegradedCount)
	assert.Equal(t, int64(200), ada.AverageDurationMS)

	linus := snapshot.Experts["Linus"]
	assert.Equal(t, int64(1), linus.TurnCount)
	assert.Equal(t, int64(1), linus.DegradedCount)
}

func TestMetricsZeroValueSnapshot(t *testing.T) {
	snapshot := NewMetrics().Snapshot()
	assert.Zero(t, snapshot.StepTotal)
	assert.Empty(t, snapshot.Experts)
}
