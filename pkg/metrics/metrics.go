// Package metrics aggregates per-chunk extraction quality and performance
// counters into document-level totals. Counts are summed; ratios are always
// recomputed from the merged totals, never averaged from per-chunk ratios.
package metrics

// GenericFallbackType marks a relation whose type was assigned by the
// generic fallback rather than extracted or inferred.
const GenericFallbackType = "GENERIC_FALLBACK"

// Metrics holds summed counters for one or more chunks. Every field is
// additive, which keeps Merge associative and commutative.
type Metrics struct {
	ChunksProcessed   int
	EntitiesTotal     int
	RelationsTotal    int
	GenericRelations  int // type empty or GenericFallbackType
	UnresolvedTotal   int
	DuplicatesRemoved int
	GleaningRounds    int
	LatencyMS         int64

	EntityTypes   map[string]int
	RelationTypes map[string]int
	RankUsed      map[int]int
}

// Merge combines two metric sets by summing every field. A nil existing
// value behaves as the identity.
func Merge(existing *Metrics, add Metrics) Metrics {
	if existing == nil {
		return cloneMaps(add)
	}

	out := cloneMaps(*existing)
	out.ChunksProcessed += add.ChunksProcessed
	out.EntitiesTotal += add.EntitiesTotal
	out.RelationsTotal += add.RelationsTotal
	out.GenericRelations += add.GenericRelations
	out.UnresolvedTotal += add.UnresolvedTotal
	out.DuplicatesRemoved += add.DuplicatesRemoved
	out.GleaningRounds += add.GleaningRounds
	out.LatencyMS += add.LatencyMS

	for k, v := range add.EntityTypes {
		out.EntityTypes[k] += v
	}
	for k, v := range add.RelationTypes {
		out.RelationTypes[k] += v
	}
	for k, v := range add.RankUsed {
		out.RankUsed[k] += v
	}

	return out
}

// RelationRatio is relations per entity over the merged totals.
func (m Metrics) RelationRatio() float64 {
	return float64(m.RelationsTotal) / float64(max(1, m.EntitiesTotal))
}

// TypedCoverage is the fraction of relations carrying a specific type.
func (m Metrics) TypedCoverage() float64 {
	return float64(m.RelationsTotal-m.GenericRelations) / float64(max(1, m.RelationsTotal))
}

// DuplicationRate is removed duplicates over raw extracted entities.
func (m Metrics) DuplicationRate() float64 {
	return float64(m.DuplicatesRemoved) / float64(max(1, m.EntitiesTotal))
}

// EntitiesPerChunk feeds the quality gate's hard-stop rule.
func (m Metrics) EntitiesPerChunk() float64 {
	return float64(m.EntitiesTotal) / float64(max(1, m.ChunksProcessed))
}

// Report is the per-document record handed to the downstream metrics sink.
type Report struct {
	DocumentID       string         `json:"document_id"`
	ChunksProcessed  int            `json:"chunks_processed"`
	EntitiesTotal    int            `json:"entities_total"`
	EntitiesUnique   int            `json:"entities_unique"`
	RelationsTotal   int            `json:"relations_total"`
	RelationsUnique  int            `json:"relations_unique"`
	RelationRatio    float64        `json:"relation_ratio"`
	TypedCoverage    float64        `json:"typed_coverage"`
	DuplicationRate  float64        `json:"duplication_rate"`
	UnresolvedTotal  int            `json:"unresolved_total"`
	GleaningRounds   int            `json:"gleaning_rounds"`
	LatencyMS        int64          `json:"latency_ms"`
	EntityTypes      map[string]int `json:"entity_types"`
	RelationTypes    map[string]int `json:"relation_types"`
	CascadeRankUsed  map[int]int    `json:"cascade_rank_used"`
}

// Report derives the document-level record from merged totals.
func (m Metrics) Report(documentID string, entitiesUnique, relationsUnique int) Report {
	return Report{
		DocumentID:      documentID,
		ChunksProcessed: m.ChunksProcessed,
		EntitiesTotal:   m.EntitiesTotal,
		EntitiesUnique:  entitiesUnique,
		RelationsTotal:  m.RelationsTotal,
		RelationsUnique: relationsUnique,
		RelationRatio:   m.RelationRatio(),
		TypedCoverage:   m.TypedCoverage(),
		DuplicationRate: m.DuplicationRate(),
		UnresolvedTotal: m.UnresolvedTotal,
		GleaningRounds:  m.GleaningRounds,
		LatencyMS:       m.LatencyMS,
		EntityTypes:     m.EntityTypes,
		RelationTypes:   m.RelationTypes,
		CascadeRankUsed: m.RankUsed,
	}
}

func cloneMaps(m Metrics) Metrics {
	out := m
	out.EntityTypes = make(map[string]int, len(m.EntityTypes))
	for k, v := range m.EntityTypes {
		out.EntityTypes[k] = v
	}
	out.RelationTypes = make(map[string]int, len(m.RelationTypes))
	for k, v := range m.RelationTypes {
		out.RelationTypes[k] = v
	}
	out.RankUsed = make(map[int]int, len(m.RankUsed))
	for k, v := range m.RankUsed {
		out.RankUsed[k] = v
	}
	return out
}
