// Package dedup merges entities and relationships across chunks and
// gleaning rounds into one canonical set per document.
package dedup

import (
	"github.com/google/uuid"

	"github.com/graphloom/graphloom/internal/models"
)

// Result is the canonical set after one merge pass.
type Result struct {
	Entities  []models.Entity
	Relations []models.Relationship

	RawEntities               int
	EntityDuplicatesRemoved   int
	RawRelations              int
	RelationDuplicatesRemoved int
}

// Merge canonicalizes a raw entity/relation set. Entity merge key is the
// lower-cased trimmed name qualified by type; first seen wins for the
// description, chunk provenance is unioned, confidence rises to the max
// observed. Relation merge key is (source, target, type) after name
// canonicalization; max confidence wins and the longer description is kept.
// Output order follows first appearance, so merging is deterministic for a
// given input order, and re-merging an already-merged set is a no-op.
func Merge(entities []models.Entity, relations []models.Relationship) Result {
	result := Result{
		RawEntities:  len(entities),
		RawRelations: len(relations),
	}

	byKey := make(map[string]int)
	for _, e := range entities {
		key := e.CanonicalKey()
		idx, ok := byKey[key]
		if !ok {
			if e.ID == "" {
				e.ID = uuid.NewString()
			}
			e.SourceChunkIDs = uniqueStrings(e.SourceChunkIDs)
			byKey[key] = len(result.Entities)
			result.Entities = append(result.Entities, e)
			continue
		}

		merged := result.Entities[idx]
		merged.SourceChunkIDs = uniqueStrings(append(merged.SourceChunkIDs, e.SourceChunkIDs...))
		if e.Confidence > merged.Confidence {
			merged.Confidence = e.Confidence
		}
		if merged.Description == "" {
			merged.Description = e.Description
		}
		result.Entities[idx] = merged
	}

	relByKey := make(map[string]int)
	for _, r := range relations {
		key := r.Key()
		idx, ok := relByKey[key]
		if !ok {
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			relByKey[key] = len(result.Relations)
			result.Relations = append(result.Relations, r)
			continue
		}

		merged := result.Relations[idx]
		if r.Confidence > merged.Confidence {
			merged.Confidence = r.Confidence
		}
		if len(r.Description) > len(merged.Description) {
			merged.Description = r.Description
		}
		// An endpoint resolved in any occurrence resolves the merged edge.
		if !r.Unresolved {
			merged.Unresolved = false
		}
		result.Relations[idx] = merged
	}

	result.EntityDuplicatesRemoved = result.RawEntities - len(result.Entities)
	result.RelationDuplicatesRemoved = result.RawRelations - len(result.Relations)

	return result
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
