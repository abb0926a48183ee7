package dedup_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphloom/graphloom/internal/models"
	"github.com/graphloom/graphloom/pkg/dedup"
)

func entity(name, typ, desc, chunkID string, confidence float64) models.Entity {
	return models.Entity{
		Name: name, Type: typ, Description: desc,
		Confidence: confidence, SourceChunkIDs: []string{chunkID},
	}
}

func TestMergeEntitiesAcrossChunks(t *testing.T) {
	// chunk1 yields [A, B], chunk2 yields [b (variant casing), C].
	entities := []models.Entity{
		entity("A", "ORGANIZATION", "first", "c1", 0.8),
		entity("B", "PERSON", "bee", "c1", 0.6),
		entity("b", "PERSON", "bee again", "c2", 0.9),
		entity("C", "LOCATION", "sea", "c2", 0.7),
	}

	result := dedup.Merge(entities, nil)

	assert.Len(t, result.Entities, 3)
	assert.Equal(t, 1, result.EntityDuplicatesRemoved)
	assert.Equal(t, 4, result.RawEntities)

	var b models.Entity
	for _, e := range result.Entities {
		if models.CanonicalName(e.Name) == "b" {
			b = e
		}
	}
	assert.Equal(t, "B", b.Name, "first seen wins")
	assert.Equal(t, "bee", b.Description, "first seen wins for description")
	assert.Equal(t, 0.9, b.Confidence, "confidence rises to the max observed")
	assert.ElementsMatch(t, []string{"c1", "c2"}, b.SourceChunkIDs)
	assert.NotEmpty(t, b.ID, "id is assigned on first merge")
}

func TestMergeDistinguishesSameNameDifferentType(t *testing.T) {
	entities := []models.Entity{
		entity("Mercury", "PLANET", "", "c1", 0.8),
		entity("Mercury", "ELEMENT", "", "c1", 0.8),
	}

	result := dedup.Merge(entities, nil)

	assert.Len(t, result.Entities, 2)
	assert.Equal(t, 0, result.EntityDuplicatesRemoved)
}

func TestMergeRelations(t *testing.T) {
	relations := []models.Relationship{
		{Source: "A", Target: "B", Type: "OWNS", Description: "short", Confidence: 0.9, Unresolved: true},
		{Source: "a", Target: "b", Type: "OWNS", Description: "a much longer description", Confidence: 0.5},
		{Source: "A", Target: "B", Type: "PART_OF", Confidence: 0.4},
	}

	result := dedup.Merge(nil, relations)

	require.Len(t, result.Relations, 2, "same endpoints with different types stay distinct")
	assert.Equal(t, 1, result.RelationDuplicatesRemoved)

	merged := result.Relations[0]
	assert.Equal(t, "a much longer description", merged.Description, "longer description wins")
	assert.Equal(t, 0.9, merged.Confidence)
	assert.False(t, merged.Unresolved, "resolved occurrence resolves the merged edge")
}

func TestMergeIsIdempotent(t *testing.T) {
	entities := []models.Entity{
		entity("A", "ORGANIZATION", "first", "c1", 0.8),
		entity("a", "ORGANIZATION", "second", "c2", 0.9),
	}
	relations := []models.Relationship{
		{Source: "A", Target: "B", Type: "OWNS", Confidence: 0.5},
		{Source: "a", Target: "b", Type: "OWNS", Confidence: 0.7},
	}

	first := dedup.Merge(entities, relations)
	second := dedup.Merge(first.Entities, first.Relations)

	assert.Equal(t, first.Entities, second.Entities)
	assert.Equal(t, first.Relations, second.Relations)
	assert.Equal(t, 0, second.EntityDuplicatesRemoved)
	assert.Equal(t, 0, second.RelationDuplicatesRemoved)
}

func TestMergeIsMonotonic(t *testing.T) {
	inputs := [][]models.Entity{
		nil,
		{entity("A", "", "", "c1", 0.5)},
		{entity("A", "", "", "c1", 0.5), entity("a", "", "", "c1", 0.5), entity("B", "", "", "c2", 0.5)},
	}

	for _, entities := range inputs {
		result := dedup.Merge(entities, nil)
		assert.LessOrEqual(t, len(result.Entities), len(entities))
	}
}
