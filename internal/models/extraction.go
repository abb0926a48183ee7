package models

// CascadeAttempt records a single model call, successful or not. One is
// appended per call; the quality gate's cascade-health rule reads a sliding
// window of them.
type CascadeAttempt struct {
	Rank      int
	ModelID   string
	LatencyMS int64
	Succeeded bool
	ChunkID   string
}

// GleaningRound records one completeness-check + continuation pass.
type GleaningRound struct {
	RoundIndex        int
	NewRelationsFound int
	IsComplete        bool
}
