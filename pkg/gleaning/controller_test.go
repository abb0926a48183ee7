package gleaning_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphloom/graphloom/internal/models"
	"github.com/graphloom/graphloom/pkg/gleaning"
	"github.com/graphloom/graphloom/pkg/llm"
)

type scriptedChecker struct {
	answers []bool
	calls   int
}

func (c *scriptedChecker) IsIncomplete(ctx context.Context, text string, entities []models.Entity, relations []models.Relationship) (bool, error) {
	answer := true
	if c.calls < len(c.answers) {
		answer = c.answers[c.calls]
	}
	c.calls++
	return answer, nil
}

type erroringChecker struct {
	err error
}

func (c *erroringChecker) IsIncomplete(ctx context.Context, text string, entities []models.Entity, relations []models.Relationship) (bool, error) {
	return false, c.err
}

type scriptedContinuation struct {
	batches [][]models.Relationship
	calls   int
}

func (c *scriptedContinuation) ExtractAdditionalRelations(ctx context.Context, chunk models.Chunk, entities []models.Entity, known []models.Relationship) ([]models.Relationship, error) {
	var batch []models.Relationship
	if c.calls < len(c.batches) {
		batch = c.batches[c.calls]
	}
	c.calls++
	return batch, nil
}

func rel(source, target, typ string) models.Relationship {
	return models.Relationship{Source: source, Target: target, Type: typ, Confidence: 0.5}
}

func TestGleaningStopsWhenComplete(t *testing.T) {
	checker := &scriptedChecker{answers: []bool{false}}
	continuation := &scriptedContinuation{}

	c, err := gleaning.NewWithConfig(gleaning.ControllerConfig{
		Checker: checker, Continuation: continuation, MaxRounds: 3,
	})
	require.NoError(t, err)

	initial := []models.Relationship{rel("a", "b", "OWNS")}
	relations, rounds, err := c.Glean(context.Background(), models.Chunk{ID: "c1"}, nil, initial)

	require.NoError(t, err)
	assert.Len(t, relations, 1)
	require.Len(t, rounds, 1)
	assert.True(t, rounds[0].IsComplete)
	assert.Equal(t, 0, continuation.calls, "gleaning must not run unconditionally")
}

func TestGleaningAddsMissedRelations(t *testing.T) {
	checker := &scriptedChecker{answers: []bool{true, false}}
	continuation := &scriptedContinuation{batches: [][]models.Relationship{
		{rel("b", "c", "PART_OF")},
	}}

	c, err := gleaning.NewWithConfig(gleaning.ControllerConfig{
		Checker: checker, Continuation: continuation, MaxRounds: 3,
	})
	require.NoError(t, err)

	initial := []models.Relationship{rel("a", "b", "OWNS")}
	relations, rounds, err := c.Glean(context.Background(), models.Chunk{ID: "c1"}, nil, initial)

	require.NoError(t, err)
	assert.Len(t, relations, 2)
	require.Len(t, rounds, 2)
	assert.Equal(t, 1, rounds[0].NewRelationsFound)
	assert.True(t, rounds[1].IsComplete)
}

func TestGleaningSkipsDuplicateRelations(t *testing.T) {
	checker := &scriptedChecker{}
	continuation := &scriptedContinuation{batches: [][]models.Relationship{
		{rel("A", "b", "OWNS"), rel("b", "c", "PART_OF")}, // first is a known duplicate modulo casing
	}}

	c, err := gleaning.NewWithConfig(gleaning.ControllerConfig{
		Checker: checker, Continuation: continuation, MaxRounds: 1,
	})
	require.NoError(t, err)

	initial := []models.Relationship{rel("a", "b", "OWNS")}
	relations, rounds, err := c.Glean(context.Background(), models.Chunk{ID: "c1"}, nil, initial)

	require.NoError(t, err)
	assert.Len(t, relations, 2)
	assert.Equal(t, 1, rounds[0].NewRelationsFound)
}

func TestGleaningFixpointOnStalledRound(t *testing.T) {
	// The checker never admits completeness; the continuation keeps
	// returning the same known relation. One stalled round must end it.
	checker := &scriptedChecker{}
	continuation := &scriptedContinuation{batches: [][]models.Relationship{
		{rel("a", "b", "OWNS")},
		{rel("a", "b", "OWNS")},
		{rel("a", "b", "OWNS")},
	}}

	c, err := gleaning.NewWithConfig(gleaning.ControllerConfig{
		Checker: checker, Continuation: continuation, MaxRounds: 10,
	})
	require.NoError(t, err)

	initial := []models.Relationship{rel("a", "b", "OWNS")}
	relations, rounds, err := c.Glean(context.Background(), models.Chunk{ID: "c1"}, nil, initial)

	require.NoError(t, err)
	assert.Len(t, relations, 1)
	require.Len(t, rounds, 1)
	assert.Equal(t, 0, rounds[0].NewRelationsFound)
	assert.Equal(t, 1, continuation.calls)
}

func TestGleaningDegradesOnCheckerTimeout(t *testing.T) {
	// A timed-out completeness check is a recoverable signal: gleaning
	// stops for the chunk and the first-pass relations survive.
	checkErr := fmt.Errorf("completeness check failed: %w", llm.ErrTimeout)

	var notified []string
	c, err := gleaning.NewWithConfig(gleaning.ControllerConfig{
		Checker:      &erroringChecker{err: checkErr},
		Continuation: &scriptedContinuation{},
		MaxRounds:    2,
		OnCheckError: func(chunkID string, err error) {
			notified = append(notified, chunkID)
			assert.ErrorIs(t, err, llm.ErrTimeout)
		},
	})
	require.NoError(t, err)

	initial := []models.Relationship{rel("a", "b", "OWNS")}
	relations, rounds, err := c.Glean(context.Background(), models.Chunk{ID: "c1"}, nil, initial)

	require.NoError(t, err, "a transient check failure must not fail the chunk")
	assert.Len(t, relations, 1, "already-extracted relations are kept")
	assert.Empty(t, rounds)
	assert.Equal(t, []string{"c1"}, notified)
}

func TestGleaningTerminationBound(t *testing.T) {
	const maxRounds = 3

	checker := &scriptedChecker{} // always incomplete
	var batches [][]models.Relationship
	for i := 0; i < 20; i++ {
		batches = append(batches, []models.Relationship{
			rel(fmt.Sprintf("s%d", i), fmt.Sprintf("t%d", i), "OWNS"),
		})
	}
	continuation := &scriptedContinuation{batches: batches}

	c, err := gleaning.NewWithConfig(gleaning.ControllerConfig{
		Checker: checker, Continuation: continuation, MaxRounds: maxRounds,
	})
	require.NoError(t, err)

	_, rounds, err := c.Glean(context.Background(), models.Chunk{ID: "c1"}, nil, nil)

	require.NoError(t, err)
	assert.Len(t, rounds, maxRounds)
	assert.Equal(t, maxRounds, continuation.calls,
		"at most maxRounds continuation passes on top of the initial extraction")
}
