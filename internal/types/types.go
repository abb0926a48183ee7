package types

import (
	"context"
	"time"

	"github.com/graphloom/graphloom/internal/models"
)

// Core interfaces

// LLM is the outbound model-invocation boundary. Production wiring uses
// langchaingo; tests substitute fakes.
type LLM interface {
	Generate(ctx context.Context, modelID, prompt string, opts GenerateOptions) (*Generation, error)
}

// GenerateOptions bound a single model call.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// Generation is the raw result of one model call.
type Generation struct {
	Text         string
	InputTokens  int
	OutputTokens int
	LatencyMS    int64
}

// CompletenessChecker decides whether relationships are still missing from
// an extraction. Drives the gleaning loop.
type CompletenessChecker interface {
	IsIncomplete(ctx context.Context, text string, entities []models.Entity, relations []models.Relationship) (bool, error)
}

// FallbackExtractor is the rank-3 deterministic extractor. It must not
// perform network calls and always terminates, possibly with an empty set.
type FallbackExtractor interface {
	ExtractEntities(text string) []models.Entity
	ExtractRelations(text string, entities []models.Entity) []models.Relationship
}

// AttemptSink receives one CascadeAttempt per model call.
type AttemptSink interface {
	RecordAttempt(attempt models.CascadeAttempt)
}

// GraphStore is the persistence boundary. Upserts are idempotent: calling
// twice with identical inputs changes nothing on the second call.
//
// The two lock pairs exclude the offline maintainer from live ingestion
// writes: ingest locks are shared (concurrent documents may all hold one),
// the maintenance lock is exclusive against both.
type GraphStore interface {
	UpsertEntities(ctx context.Context, documentID string, entities []models.Entity) error
	UpsertRelations(ctx context.Context, documentID string, relations []models.Relationship) error
	AcquireIngestLock(ctx context.Context) (bool, error)
	ReleaseIngestLock(ctx context.Context) error

	// Maintenance surface.
	UntypedRelations(ctx context.Context) ([]models.Relationship, error)
	UpdateRelationTypes(ctx context.Context, typesByID map[string]string) error
	DeleteRelations(ctx context.Context, ids []string) error
	OrphanEntities(ctx context.Context) ([]models.Entity, error)
	DeleteEntities(ctx context.Context, ids []string) error
	AcquireMaintenanceLock(ctx context.Context) (bool, error)
	ReleaseMaintenanceLock(ctx context.Context) error
}

// ModelDescriptor identifies one rank of the cascade.
type ModelDescriptor struct {
	Rank    int
	ModelID string
	Timeout time.Duration
}
