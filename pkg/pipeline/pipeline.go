// Package pipeline wires the extraction cascade, gleaning loop,
// deduplicator, metrics and quality gate into a document-level run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/graphloom/graphloom/internal/models"
	"github.com/graphloom/graphloom/internal/types"
	"github.com/graphloom/graphloom/pkg/dedup"
	"github.com/graphloom/graphloom/pkg/extractor"
	"github.com/graphloom/graphloom/pkg/gate"
	"github.com/graphloom/graphloom/pkg/metrics"
)

// ChunkExtractor produces the first entity+relation pass for one chunk.
type ChunkExtractor interface {
	ExtractChunk(ctx context.Context, chunk models.Chunk) (extractor.Result, error)
}

// Gleaner refines a chunk's relations over bounded rounds.
type Gleaner interface {
	Glean(ctx context.Context, chunk models.Chunk, entities []models.Entity, relations []models.Relationship) ([]models.Relationship, []models.GleaningRound, error)
}

// PipelineConfig represents the configuration for a document pipeline.
type PipelineConfig struct {
	Extractor ChunkExtractor
	Gleaner   Gleaner
	Gate      *gate.Gate
	Store     types.GraphStore // optional; nil skips persistence
	Tracker   *ProgressTracker // optional
	Workers   int
}

// Pipeline processes documents chunk by chunk. Chunks run concurrently up
// to the worker limit; the coordinator goroutine owns all merging, so chunk
// workers never touch shared state. Gleaning rounds stay sequential within
// a chunk.
type Pipeline struct {
	config PipelineConfig
}

// NewWithConfig creates a new Pipeline with the given configuration.
func NewWithConfig(config PipelineConfig) (*Pipeline, error) {
	if config.Extractor == nil {
		return nil, fmt.Errorf("chunk extractor is required")
	}
	if config.Gate == nil {
		return nil, fmt.Errorf("quality gate is required")
	}
	if config.Workers == 0 {
		config.Workers = 4
	}

	return &Pipeline{config: config}, nil
}

// chunkResult is the immutable output a worker hands the coordinator.
type chunkResult struct {
	index     int
	chunkID   string
	entities  []models.Entity
	relations []models.Relationship
	rankUsed  int
	rounds    []models.GleaningRound
	latencyMS int64
}

// ProcessDocument extracts, gleans, merges, gates and persists one
// document. A ThresholdViolation cancels the document's remaining chunk
// work; documents processed concurrently by other Pipeline calls are
// unaffected since all state here is per-call.
func (p *Pipeline) ProcessDocument(ctx context.Context, doc models.Document) (*metrics.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if p.config.Tracker != nil {
		p.config.Tracker.StartBatch(doc.ID, len(doc.Chunks))
		defer p.config.Tracker.RemoveBatch(doc.ID)
	}

	chunks := make(chan models.Chunk)
	results := make(chan chunkResult)

	g, workerCtx := errgroup.WithContext(ctx)
	workers := p.config.Workers
	if workers > len(doc.Chunks) && len(doc.Chunks) > 0 {
		workers = len(doc.Chunks)
	}
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return p.worker(workerCtx, chunks, results)
		})
	}

	// The coordinator dispatches chunks itself so a quality-gate abort
	// skips every chunk that has not been handed to a worker yet.
	var (
		total     *metrics.Metrics
		byIndex   = make(map[int]chunkResult)
		violation error
		next      int
		inFlight  int
	)

	dispatch := func() bool {
		select {
		case chunks <- doc.Chunks[next]:
			next++
			inFlight++
			return true
		case <-workerCtx.Done():
			return false
		}
	}

	for next < len(doc.Chunks) && inFlight < workers {
		if !dispatch() {
			break
		}
	}

	for inFlight > 0 {
		var res chunkResult
		select {
		case res = <-results:
		case <-workerCtx.Done():
			inFlight = 0
			continue
		}
		inFlight--
		byIndex[res.index] = res

		if p.config.Tracker != nil {
			p.config.Tracker.Advance(doc.ID)
		}

		if violation != nil {
			continue // drain
		}

		p.config.Gate.ObserveChunk(doc.ID, len(res.relations))

		merged := metrics.Merge(total, chunkMetrics(res))
		total = &merged

		if err := p.config.Gate.CheckDocument(doc.ID, merged); err != nil {
			violation = err
			cancel()
			continue
		}

		if next < len(doc.Chunks) {
			dispatch()
		}
	}
	close(chunks)

	if err := g.Wait(); err != nil && violation == nil && !errors.Is(err, context.Canceled) {
		return nil, err
	}
	if violation != nil {
		return nil, violation
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report, err := p.finish(ctx, doc, total, byIndex)
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (p *Pipeline) worker(ctx context.Context, chunks <-chan models.Chunk, results chan<- chunkResult) error {
	for chunk := range chunks {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		start := time.Now()
		res, err := p.config.Extractor.ExtractChunk(ctx, chunk)
		if err != nil {
			return fmt.Errorf("failed to extract chunk %s: %w", chunk.ID, err)
		}

		relations := res.Relations
		var rounds []models.GleaningRound
		if p.config.Gleaner != nil && len(res.Entities) > 0 {
			relations, rounds, err = p.config.Gleaner.Glean(ctx, chunk, res.Entities, res.Relations)
			if err != nil {
				return fmt.Errorf("failed to glean chunk %s: %w", chunk.ID, err)
			}
		}

		out := chunkResult{
			index:     chunk.Index,
			chunkID:   chunk.ID,
			entities:  res.Entities,
			relations: relations,
			rankUsed:  res.RankUsed,
			rounds:    rounds,
			latencyMS: time.Since(start).Milliseconds(),
		}

		select {
		case results <- out:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// finish merges all chunk results in chunk order, so first-seen-wins
// dedup semantics stay deterministic regardless of completion order.
func (p *Pipeline) finish(ctx context.Context, doc models.Document, total *metrics.Metrics, byIndex map[int]chunkResult) (*metrics.Report, error) {
	indexes := make([]int, 0, len(byIndex))
	for idx := range byIndex {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	var entities []models.Entity
	var relations []models.Relationship
	for _, idx := range indexes {
		entities = append(entities, byIndex[idx].entities...)
		relations = append(relations, byIndex[idx].relations...)
	}

	merged := dedup.Merge(entities, relations)

	var m metrics.Metrics
	if total != nil {
		m = *total
	}
	m.DuplicatesRemoved = merged.EntityDuplicatesRemoved

	if p.config.Store != nil {
		// The shared ingest lock keeps the offline maintainer out of the
		// relation set while documents persist; concurrent ingests share it.
		acquired, err := p.config.Store.AcquireIngestLock(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire ingest lock: %w", err)
		}
		if !acquired {
			return nil, fmt.Errorf("graph maintenance in progress; document %s was not persisted", doc.ID)
		}
		defer p.config.Store.ReleaseIngestLock(ctx)

		if err := p.config.Store.UpsertEntities(ctx, doc.ID, merged.Entities); err != nil {
			return nil, fmt.Errorf("failed to upsert entities: %w", err)
		}
		if err := p.config.Store.UpsertRelations(ctx, doc.ID, merged.Relations); err != nil {
			return nil, fmt.Errorf("failed to upsert relations: %w", err)
		}
	}

	report := m.Report(doc.ID, len(merged.Entities), len(merged.Relations))
	return &report, nil
}

func chunkMetrics(res chunkResult) metrics.Metrics {
	m := metrics.Metrics{
		ChunksProcessed: 1,
		EntitiesTotal:   len(res.entities),
		RelationsTotal:  len(res.relations),
		GleaningRounds:  len(res.rounds),
		LatencyMS:       res.latencyMS,
		EntityTypes:     make(map[string]int),
		RelationTypes:   make(map[string]int),
		RankUsed:        map[int]int{res.rankUsed: 1},
	}

	for _, e := range res.entities {
		if e.Type != "" {
			m.EntityTypes[e.Type]++
		}
	}
	for _, r := range res.relations {
		if r.Type == "" || r.Type == metrics.GenericFallbackType {
			m.GenericRelations++
		} else {
			m.RelationTypes[r.Type]++
		}
		if r.Unresolved {
			m.UnresolvedTotal++
		}
	}

	return m
}
