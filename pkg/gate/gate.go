// Package gate evaluates extraction metrics against fail-fast and
// soft-warning thresholds.
package gate

import (
	"fmt"
	"sync"

	"github.com/graphloom/graphloom/internal/models"
	"github.com/graphloom/graphloom/pkg/metrics"
)

// ThresholdViolation is fatal for the current document: remaining chunk
// work is cancelled and the document fails rather than silently indexing a
// near-empty graph.
type ThresholdViolation struct {
	DocumentID string
	Threshold  string
	Observed   float64
	Limit      float64
}

func (e *ThresholdViolation) Error() string {
	return fmt.Sprintf("document %s violated threshold %s: observed %.2f, limit %.2f",
		e.DocumentID, e.Threshold, e.Observed, e.Limit)
}

// GateConfig represents the configuration for a quality gate.
type GateConfig struct {
	MinEntitiesPerChunk float64
	ZeroRelationStreak  int
	Rank3AlertFraction  float64
	CascadeWindow       int

	// OnWarn and OnAlert surface non-fatal signals to the operator.
	// Either may be nil.
	OnWarn  func(documentID, message string)
	OnAlert func(message string)
}

// Gate applies the hard-stop, soft-warning and cascade-health rules.
// One Gate instance serves one document's ingestion; the attempt window is
// shared process state and lives in AttemptLog.
type Gate struct {
	config GateConfig

	mu         sync.Mutex
	zeroStreak int
	warned     bool
}

// NewWithConfig creates a new Gate with the given configuration.
func NewWithConfig(config GateConfig) *Gate {
	if config.MinEntitiesPerChunk == 0 {
		config.MinEntitiesPerChunk = 1.0
	}
	if config.ZeroRelationStreak == 0 {
		config.ZeroRelationStreak = 3
	}

	return &Gate{config: config}
}

// CheckDocument applies the hard-stop rule to the merged document metrics.
// Returns a *ThresholdViolation when the entity yield is below the limit.
func (g *Gate) CheckDocument(documentID string, m metrics.Metrics) error {
	if m.ChunksProcessed == 0 {
		return nil
	}
	if observed := m.EntitiesPerChunk(); observed < g.config.MinEntitiesPerChunk {
		return &ThresholdViolation{
			DocumentID: documentID,
			Threshold:  "entities_per_chunk",
			Observed:   observed,
			Limit:      g.config.MinEntitiesPerChunk,
		}
	}
	return nil
}

// ObserveChunk applies the soft-warning rule: one zero-relation chunk is
// noise, three or more consecutive ones escalate to a document-level
// warning. Never fatal.
func (g *Gate) ObserveChunk(documentID string, relationCount int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if relationCount > 0 {
		g.zeroStreak = 0
		return
	}

	g.zeroStreak++
	if g.zeroStreak >= g.config.ZeroRelationStreak && !g.warned {
		g.warned = true
		if g.config.OnWarn != nil {
			g.config.OnWarn(documentID, fmt.Sprintf(
				"%d consecutive chunks produced zero relations", g.zeroStreak))
		}
	}
}

// AttemptLog is an append-only sliding window of cascade attempts feeding
// the operational cascade-health rule.
type AttemptLog struct {
	mu       sync.Mutex
	window   []models.CascadeAttempt
	size     int
	fraction float64
	alert    func(message string)
	alerted  bool
}

// NewAttemptLog creates a sliding window of the given size. The alert
// callback fires when the fraction of successes landing on rank 3 exceeds
// the configured fraction; it never blocks ingestion.
func NewAttemptLog(size int, fraction float64, alert func(message string)) *AttemptLog {
	if size == 0 {
		size = 50
	}
	if fraction == 0 {
		fraction = 0.10
	}
	return &AttemptLog{size: size, fraction: fraction, alert: alert}
}

// RecordAttempt appends one attempt and re-evaluates the window.
func (l *AttemptLog) RecordAttempt(attempt models.CascadeAttempt) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.window = append(l.window, attempt)
	if len(l.window) > l.size {
		l.window = l.window[len(l.window)-l.size:]
	}

	succeeded, rank3 := 0, 0
	for _, a := range l.window {
		if !a.Succeeded {
			continue
		}
		succeeded++
		if a.Rank >= 3 {
			rank3++
		}
	}
	if succeeded == 0 {
		return
	}

	observed := float64(rank3) / float64(succeeded)
	if observed > l.fraction {
		if !l.alerted && l.alert != nil {
			l.alert(fmt.Sprintf(
				"cascade health: %.0f%% of recent successes landed on rank 3; ranks 1/2 are under-performing",
				observed*100))
		}
		l.alerted = true
	} else {
		l.alerted = false
	}
}

// Attempts returns a copy of the current window.
func (l *AttemptLog) Attempts() []models.CascadeAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.CascadeAttempt, len(l.window))
	copy(out, l.window)
	return out
}
