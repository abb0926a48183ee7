package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/graphloom/graphloom/pkg/metrics"
)

func TestRelationRatioRecomputedFromMergedTotals(t *testing.T) {
	// Inputs chosen so sum-then-recompute and naive ratio averaging
	// diverge: merged is 3/4 = 0.75, the per-chunk average would be 0.5.
	chunk1 := metrics.Metrics{ChunksProcessed: 1, EntitiesTotal: 1, RelationsTotal: 0}
	chunk2 := metrics.Metrics{ChunksProcessed: 1, EntitiesTotal: 3, RelationsTotal: 3}

	merged := metrics.Merge(&chunk1, chunk2)

	assert.InDelta(t, 0.75, merged.RelationRatio(), 1e-9)
}

func TestRelationRatioNeverDividesByZero(t *testing.T) {
	var m metrics.Metrics
	assert.Equal(t, 0.0, m.RelationRatio())
	assert.Equal(t, 0.0, m.DuplicationRate())
	assert.InDelta(t, 0.0, m.TypedCoverage(), 1e-9)
}

func TestTypedCoverage(t *testing.T) {
	m := metrics.Metrics{RelationsTotal: 10, GenericRelations: 3}
	assert.InDelta(t, 0.7, m.TypedCoverage(), 1e-9)
}

func TestDuplicationRate(t *testing.T) {
	// chunk1 [A, B] + chunk2 [b, C]: 4 raw, 1 duplicate removed.
	m := metrics.Metrics{EntitiesTotal: 4, DuplicatesRemoved: 1}
	assert.InDelta(t, 0.25, m.DuplicationRate(), 1e-9)
}

func TestMergeIsCommutative(t *testing.T) {
	a := metrics.Metrics{
		ChunksProcessed: 1, EntitiesTotal: 2, RelationsTotal: 1, LatencyMS: 100,
		EntityTypes:   map[string]int{"PERSON": 2},
		RelationTypes: map[string]int{"OWNS": 1},
		RankUsed:      map[int]int{1: 1},
	}
	b := metrics.Metrics{
		ChunksProcessed: 1, EntitiesTotal: 3, RelationsTotal: 4, LatencyMS: 50,
		EntityTypes:   map[string]int{"PERSON": 1, "LOCATION": 2},
		RelationTypes: map[string]int{"LOCATED_IN": 4},
		RankUsed:      map[int]int{2: 1},
	}

	ab := metrics.Merge(&a, b)
	ba := metrics.Merge(&b, a)

	assert.Equal(t, ab, ba)
	assert.Equal(t, 5, ab.EntitiesTotal)
	assert.Equal(t, 3, ab.EntityTypes["PERSON"])
	assert.Equal(t, int64(150), ab.LatencyMS)
}

func TestMergeIsAssociative(t *testing.T) {
	a := metrics.Metrics{ChunksProcessed: 1, EntitiesTotal: 1, RankUsed: map[int]int{1: 1}}
	b := metrics.Metrics{ChunksProcessed: 1, EntitiesTotal: 2, RankUsed: map[int]int{2: 1}}
	c := metrics.Metrics{ChunksProcessed: 1, EntitiesTotal: 3, RankUsed: map[int]int{3: 1}}

	ab := metrics.Merge(&a, b)
	abc1 := metrics.Merge(&ab, c)

	bc := metrics.Merge(&b, c)
	abc2 := metrics.Merge(&a, bc)

	assert.Equal(t, abc1, abc2)
}

func TestMergeWithNilExisting(t *testing.T) {
	m := metrics.Metrics{ChunksProcessed: 1, EntitiesTotal: 2}

	merged := metrics.Merge(nil, m)

	assert.Equal(t, 2, merged.EntitiesTotal)
	assert.NotNil(t, merged.EntityTypes, "maps are always usable after merge")
}
