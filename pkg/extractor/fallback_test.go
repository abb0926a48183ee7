package extractor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphloom/graphloom/pkg/extractor"
)

func TestHeuristicFallbackEntities(t *testing.T) {
	f := extractor.NewHeuristicFallback()

	text := "Yesterday Acme Corp announced a partnership. The deal makes Acme Corp " +
		"and Initech Ltd the largest suppliers in Berlin. Analysts expect Initech Ltd to benefit."

	entities := f.ExtractEntities(text)

	names := make(map[string]bool)
	for _, e := range entities {
		names[e.Name] = true
	}
	assert.True(t, names["Acme Corp"])
	assert.True(t, names["Initech Ltd"])
	// Sentence-initial one-off words are not entities.
	assert.False(t, names["Yesterday"])
	assert.False(t, names["Analysts"])
}

func TestHeuristicFallbackRelations(t *testing.T) {
	f := extractor.NewHeuristicFallback()

	text := "Acme Corp works with Initech Ltd. Acme Corp also works with Initech Ltd."
	entities := f.ExtractEntities(text)
	require.NotEmpty(t, entities)

	relations := f.ExtractRelations(text, entities)

	require.Len(t, relations, 1, "co-occurring pair is emitted once")
	assert.Empty(t, relations[0].Type, "fallback relations stay untyped for the maintainer")
	assert.NotEmpty(t, relations[0].Description)
}

func TestHeuristicFallbackEmptyInput(t *testing.T) {
	f := extractor.NewHeuristicFallback()

	assert.Empty(t, f.ExtractEntities(""))
	assert.Empty(t, f.ExtractRelations("", nil))
}
