package gleaning

import (
	"context"
	"fmt"

	"github.com/graphloom/graphloom/internal/models"
	"github.com/graphloom/graphloom/internal/types"
)

// ContinuationExtractor runs one continuation pass: given what is already
// known, it asks only for additional non-duplicate relationships.
type ContinuationExtractor interface {
	ExtractAdditionalRelations(ctx context.Context, chunk models.Chunk, entities []models.Entity, known []models.Relationship) ([]models.Relationship, error)
}

// ControllerConfig represents the configuration for a gleaning controller.
type ControllerConfig struct {
	Checker      types.CompletenessChecker
	Continuation ContinuationExtractor
	MaxRounds    int

	// OnCheckError observes completeness-check failures. May be nil.
	OnCheckError func(chunkID string, err error)
}

// Controller drives the iterative completeness-check + continuation loop.
// Rounds are strictly sequential within a chunk. The loop stops when the
// check reports complete or fails, the round limit is reached, or a round
// adds zero new relations (fixpoint guard against a checker that never says
// complete).
type Controller struct {
	config ControllerConfig
}

// NewWithConfig creates a new Controller with the given configuration.
func NewWithConfig(config ControllerConfig) (*Controller, error) {
	if config.Checker == nil {
		return nil, fmt.Errorf("completeness checker is required")
	}
	if config.Continuation == nil {
		return nil, fmt.Errorf("continuation extractor is required")
	}
	if config.MaxRounds == 0 {
		config.MaxRounds = 2
	}

	return &Controller{config: config}, nil
}

// Glean refines the relations for one chunk. It issues at most MaxRounds
// continuation passes and never runs unconditionally: a complete first pass
// costs exactly one completeness check.
func (c *Controller) Glean(ctx context.Context, chunk models.Chunk, entities []models.Entity, relations []models.Relationship) ([]models.Relationship, []models.GleaningRound, error) {
	known := make(map[string]bool, len(relations))
	for _, r := range relations {
		known[r.Key()] = true
	}

	var rounds []models.GleaningRound

	for round := 0; round < c.config.MaxRounds; round++ {
		incomplete, err := c.config.Checker.IsIncomplete(ctx, chunk.Text, entities, relations)
		if err != nil {
			if ctx.Err() != nil {
				return relations, rounds, ctx.Err()
			}
			// A transient check failure never fails the chunk: gleaning
			// stops here and the relations already extracted are kept.
			if c.config.OnCheckError != nil {
				c.config.OnCheckError(chunk.ID, err)
			}
			break
		}
		if !incomplete {
			rounds = append(rounds, models.GleaningRound{RoundIndex: round, IsComplete: true})
			break
		}

		extra, err := c.config.Continuation.ExtractAdditionalRelations(ctx, chunk, entities, relations)
		if err != nil {
			return relations, rounds, fmt.Errorf("continuation pass failed: %w", err)
		}

		added := 0
		for _, r := range extra {
			key := r.Key()
			if known[key] {
				continue
			}
			known[key] = true
			relations = append(relations, r)
			added++
		}

		rounds = append(rounds, models.GleaningRound{RoundIndex: round, NewRelationsFound: added})

		// Fixpoint: a stalled round ends the loop even if the checker
		// keeps claiming incomplete.
		if added == 0 {
			break
		}
	}

	return relations, rounds, nil
}
