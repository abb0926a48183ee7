package gate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphloom/graphloom/internal/models"
	"github.com/graphloom/graphloom/pkg/gate"
	"github.com/graphloom/graphloom/pkg/metrics"
)

func TestHardStopOnLowEntityYield(t *testing.T) {
	g := gate.NewWithConfig(gate.GateConfig{MinEntitiesPerChunk: 1.0})

	// chunk 1 yielded one entity, chunk 2 yielded none: ratio 0.5.
	m := metrics.Metrics{ChunksProcessed: 2, EntitiesTotal: 1}

	err := g.CheckDocument("doc1", m)

	var violation *gate.ThresholdViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "doc1", violation.DocumentID)
	assert.Equal(t, "entities_per_chunk", violation.Threshold)
	assert.Equal(t, 0.5, violation.Observed)
	assert.Equal(t, 1.0, violation.Limit)
}

func TestHardStopPassesAtThreshold(t *testing.T) {
	g := gate.NewWithConfig(gate.GateConfig{MinEntitiesPerChunk: 1.0})

	assert.NoError(t, g.CheckDocument("doc1", metrics.Metrics{ChunksProcessed: 2, EntitiesTotal: 2}))
	assert.NoError(t, g.CheckDocument("doc1", metrics.Metrics{}), "no chunks processed yet")
}

func TestZeroRelationStreakEscalates(t *testing.T) {
	var warnings []string
	g := gate.NewWithConfig(gate.GateConfig{
		ZeroRelationStreak: 3,
		OnWarn: func(documentID, message string) {
			warnings = append(warnings, message)
		},
	})

	g.ObserveChunk("doc1", 0)
	g.ObserveChunk("doc1", 0)
	assert.Empty(t, warnings, "two zero-relation chunks are just noise")

	g.ObserveChunk("doc1", 0)
	require.Len(t, warnings, 1)

	g.ObserveChunk("doc1", 0)
	assert.Len(t, warnings, 1, "the warning fires once per document")
}

func TestZeroRelationStreakResets(t *testing.T) {
	var warnings []string
	g := gate.NewWithConfig(gate.GateConfig{
		ZeroRelationStreak: 3,
		OnWarn: func(documentID, message string) {
			warnings = append(warnings, message)
		},
	})

	g.ObserveChunk("doc1", 0)
	g.ObserveChunk("doc1", 0)
	g.ObserveChunk("doc1", 5) // streak broken
	g.ObserveChunk("doc1", 0)
	g.ObserveChunk("doc1", 0)

	assert.Empty(t, warnings)
}

func TestCascadeHealthAlert(t *testing.T) {
	var alerts []string
	log := gate.NewAttemptLog(10, 0.10, func(message string) {
		alerts = append(alerts, message)
	})

	// Nine rank-1 successes keep the window healthy.
	for i := 0; i < 9; i++ {
		log.RecordAttempt(models.CascadeAttempt{Rank: 1, Succeeded: true})
	}
	assert.Empty(t, alerts)

	// Two rank-3 successes push the fraction over 10%.
	log.RecordAttempt(models.CascadeAttempt{Rank: 3, Succeeded: true})
	log.RecordAttempt(models.CascadeAttempt{Rank: 3, Succeeded: true})

	require.NotEmpty(t, alerts)
	assert.Contains(t, alerts[0], "rank 3")
}

func TestCascadeHealthIgnoresFailedAttempts(t *testing.T) {
	var alerts []string
	log := gate.NewAttemptLog(10, 0.10, func(message string) {
		alerts = append(alerts, message)
	})

	for i := 0; i < 10; i++ {
		log.RecordAttempt(models.CascadeAttempt{Rank: 3, Succeeded: false})
	}

	assert.Empty(t, alerts, "failed attempts carry no rank-3 success signal")
}

func TestCascadeHealthWindowSlides(t *testing.T) {
	log := gate.NewAttemptLog(5, 0.10, nil)

	for i := 0; i < 12; i++ {
		log.RecordAttempt(models.CascadeAttempt{Rank: 1, Succeeded: true})
	}

	assert.Len(t, log.Attempts(), 5)
}
