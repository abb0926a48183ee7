package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/graphloom/graphloom/internal/models"
	"github.com/graphloom/graphloom/internal/types"
	"github.com/graphloom/graphloom/pkg/llm"
)

// FallbackRank is the deterministic final tier of the cascade.
const FallbackRank = 3

// ExtractorConfig represents the configuration for a chunk extractor.
type ExtractorConfig struct {
	Invoker       *llm.Invoker
	Parser        RecordParser
	Fallback      types.FallbackExtractor
	Sink          types.AttemptSink       // optional; receives rank-3 fallback attempts
	Models        []types.ModelDescriptor // network ranks, ordered 1..n
	EntityNameCap int                     // distinct names injected into relation prompts
}

// RecordParser is the slice of the response parser the extractor needs.
type RecordParser interface {
	Parse(raw string) ([]models.RawRecord, bool)
}

// Result is the immutable output of one chunk extraction.
type Result struct {
	Entities  []models.Entity
	Relations []models.Relationship
	RankUsed  int
}

// Extractor runs the model cascade for one chunk: entities first, then
// relations over the extracted entity names.
type Extractor struct {
	config ExtractorConfig
}

// NewWithConfig creates a new Extractor with the given configuration.
func NewWithConfig(config ExtractorConfig) (*Extractor, error) {
	if config.Invoker == nil {
		return nil, fmt.Errorf("invoker is required")
	}
	if config.Parser == nil {
		return nil, fmt.Errorf("parser is required")
	}
	if config.Fallback == nil {
		return nil, fmt.Errorf("fallback extractor is required")
	}
	if config.EntityNameCap == 0 {
		config.EntityNameCap = 30
	}

	return &Extractor{config: config}, nil
}

// ExtractChunk produces entities and relations for one chunk. A cascade
// where every rank comes back empty is not an error; the quality gate reads
// it off the metrics.
func (e *Extractor) ExtractChunk(ctx context.Context, chunk models.Chunk) (Result, error) {
	entities, rankUsed, err := e.extractEntities(ctx, chunk)
	if err != nil {
		return Result{}, err
	}

	relations, err := e.extractRelations(ctx, chunk, entities)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Entities:  entities,
		Relations: flagUnresolved(relations, entities),
		RankUsed:  rankUsed,
	}, nil
}

func (e *Extractor) extractEntities(ctx context.Context, chunk models.Chunk) ([]models.Entity, int, error) {
	prompt := entityPrompt(chunk.Text)

	for _, model := range e.config.Models {
		records, ok, err := e.tryRank(ctx, model, chunk.ID, prompt)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			continue
		}
		// Relation-shaped or otherwise unusable records count as a
		// parse-empty outcome for this pass.
		if entities := recordsToEntities(records, chunk.ID); len(entities) > 0 {
			return entities, model.Rank, nil
		}
	}

	// Deterministic fallback: no network, always terminates, may be empty.
	start := time.Now()
	entities := e.config.Fallback.ExtractEntities(chunk.Text)
	for i := range entities {
		entities[i].SourceChunkIDs = []string{chunk.ID}
	}

	if e.config.Sink != nil {
		e.config.Sink.RecordAttempt(models.CascadeAttempt{
			Rank:      FallbackRank,
			ModelID:   "heuristic-fallback",
			LatencyMS: time.Since(start).Milliseconds(),
			Succeeded: len(entities) > 0,
			ChunkID:   chunk.ID,
		})
	}

	return entities, FallbackRank, nil
}

func (e *Extractor) extractRelations(ctx context.Context, chunk models.Chunk, entities []models.Entity) ([]models.Relationship, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	names := entityNames(entities, e.config.EntityNameCap)
	prompt := relationPrompt(chunk.Text, names)

	for _, model := range e.config.Models {
		records, ok, err := e.tryRank(ctx, model, chunk.ID, prompt)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if relations := recordsToRelations(records); len(relations) > 0 {
			return relations, nil
		}
	}

	return e.config.Fallback.ExtractRelations(chunk.Text, entities), nil
}

// tryRank runs one cascade tier. A timeout or transport error falls through
// to the next rank; parse-empty falls through too. Context cancellation
// aborts the whole cascade.
func (e *Extractor) tryRank(ctx context.Context, model types.ModelDescriptor, chunkID, prompt string) ([]models.RawRecord, bool, error) {
	raw, err := e.config.Invoker.Invoke(ctx, model, chunkID, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		if errors.Is(err, llm.ErrTimeout) || errors.Is(err, llm.ErrTransport) {
			return nil, false, nil
		}
		return nil, false, err
	}

	records, ok := e.config.Parser.Parse(raw)
	if !ok || len(records) == 0 {
		return nil, false, nil
	}
	return records, true, nil
}

// ExtractAdditionalRelations runs the gleaning continuation pass: the model
// is shown what is already known and asked only for new, non-duplicate
// relationships.
func (e *Extractor) ExtractAdditionalRelations(ctx context.Context, chunk models.Chunk, entities []models.Entity, known []models.Relationship) ([]models.Relationship, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	names := entityNames(entities, e.config.EntityNameCap)
	prompt := continuationPrompt(chunk.Text, names, known)

	for _, model := range e.config.Models {
		records, ok, err := e.tryRank(ctx, model, chunk.ID, prompt)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if relations := recordsToRelations(records); len(relations) > 0 {
			return flagUnresolved(relations, entities), nil
		}
	}

	// No fallback tier here: gleaning only refines model output.
	return nil, nil
}

func recordsToEntities(records []models.RawRecord, chunkID string) []models.Entity {
	var entities []models.Entity
	for _, r := range records {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			continue
		}
		confidence := r.Confidence
		if confidence <= 0 || confidence > 1 {
			confidence = 0.5
		}
		entities = append(entities, models.Entity{
			Name:           name,
			Type:           strings.TrimSpace(r.Type),
			Description:    strings.TrimSpace(r.Description),
			Confidence:     confidence,
			SourceChunkIDs: []string{chunkID},
		})
	}
	return entities
}

func recordsToRelations(records []models.RawRecord) []models.Relationship {
	var relations []models.Relationship
	for _, r := range records {
		source := strings.TrimSpace(r.Source)
		target := strings.TrimSpace(r.Target)
		if source == "" || target == "" {
			continue
		}
		confidence := r.Confidence
		if confidence <= 0 || confidence > 1 {
			confidence = 0.5
		}
		relations = append(relations, models.Relationship{
			Source:      source,
			Target:      target,
			Type:        strings.TrimSpace(r.Type),
			Description: strings.TrimSpace(r.Description),
			Confidence:  confidence,
		})
	}
	return relations
}

// flagUnresolved marks relations whose endpoints name no known entity.
// They are kept for a later maintenance pass rather than dropped.
func flagUnresolved(relations []models.Relationship, entities []models.Entity) []models.Relationship {
	known := make(map[string]bool, len(entities))
	for _, e := range entities {
		known[models.CanonicalName(e.Name)] = true
	}
	for i, r := range relations {
		if !known[models.CanonicalName(r.Source)] || !known[models.CanonicalName(r.Target)] {
			relations[i].Unresolved = true
		}
	}
	return relations
}

func entityNames(entities []models.Entity, limit int) []string {
	seen := make(map[string]bool, len(entities))
	var names []string
	for _, e := range entities {
		key := models.CanonicalName(e.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, e.Name)
		if len(names) >= limit {
			break
		}
	}
	return names
}
