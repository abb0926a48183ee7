// Package maintain is the offline graph-consistency job: it backfills
// untyped relations by pattern inference over their descriptions, deletes
// relations carrying no signal at all, and prunes entities left without any
// relation or chunk mention. Running it twice in a row changes nothing on
// the second run.
package maintain

import (
	"context"
	"fmt"
	"strings"

	"github.com/graphloom/graphloom/internal/types"
	"github.com/graphloom/graphloom/pkg/metrics"
)

// TypePattern binds one candidate relation type to its description
// patterns. Table order is priority order: when patterns from two types
// both match, the earlier-declared type wins.
type TypePattern struct {
	Type     string
	Patterns []string
}

// DefaultTypeTable is the declared inference order. Matching is
// case-insensitive substring; the first hit within a type short-circuits
// that type's list.
var DefaultTypeTable = []TypePattern{
	{"LOCATED_IN", []string{"headquartered in", "located in", "based in", "situated in"}},
	{"WORKS_FOR", []string{"works for", "works at", "employed by", "employee of", "ceo of", "founder of"}},
	{"PART_OF", []string{"part of", "belongs to", "division of", "subsidiary of", "member of"}},
	{"FOUNDED_BY", []string{"founded by", "established by", "created by", "started by"}},
	{"OWNS", []string{"owns", "acquired", "purchased", "bought"}},
	{"PRODUCES", []string{"produces", "manufactures", "develops", "makes"}},
	{"COLLABORATES_WITH", []string{"partnered with", "partnership with", "collaborates with", "together with"}},
}

// MaintainerConfig represents the configuration for a maintainer run.
type MaintainerConfig struct {
	Store     types.GraphStore
	Table     []TypePattern
	BatchSize int // relation updates per transaction
}

// Report summarizes one maintainer run. In dry-run mode it is the full
// plan; nothing was written.
type Report struct {
	DryRun           bool
	RelationsTyped   int
	TypeAssignments  map[string]int
	RelationsDeleted int
	EntitiesPruned   int
}

// Maintainer repairs previously persisted relations and prunes orphans.
type Maintainer struct {
	config MaintainerConfig
}

// NewWithConfig creates a new Maintainer with the given configuration.
func NewWithConfig(config MaintainerConfig) (*Maintainer, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("graph store is required")
	}
	if len(config.Table) == 0 {
		config.Table = DefaultTypeTable
	}
	if config.BatchSize == 0 {
		config.BatchSize = 500
	}

	return &Maintainer{config: config}, nil
}

// Run executes one maintenance pass. It refuses to start while another
// maintainer or an ingestion writer holds the maintenance lock, so it never
// races live writes to the same relation set.
func (m *Maintainer) Run(ctx context.Context, dryRun bool) (*Report, error) {
	acquired, err := m.config.Store.AcquireMaintenanceLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire maintenance lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("maintenance lock is held; refusing to run concurrently with ingestion")
	}
	defer m.config.Store.ReleaseMaintenanceLock(ctx)

	report := &Report{DryRun: dryRun, TypeAssignments: make(map[string]int)}

	untyped, err := m.config.Store.UntypedRelations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan untyped relations: %w", err)
	}

	assignments := make(map[string]string)
	var deletions []string
	for _, r := range untyped {
		if strings.TrimSpace(r.Description) == "" {
			// No signal to infer from.
			deletions = append(deletions, r.ID)
			continue
		}
		inferred := InferType(m.config.Table, r.Description)
		assignments[r.ID] = inferred
		report.TypeAssignments[inferred]++
	}
	report.RelationsTyped = len(assignments)
	report.RelationsDeleted = len(deletions)

	if !dryRun {
		if err := m.applyAssignments(ctx, assignments); err != nil {
			return nil, err
		}
		if err := m.applyDeletions(ctx, deletions); err != nil {
			return nil, err
		}
	}

	// Orphan pruning runs off the post-deletion state. In dry-run mode the
	// deletions above were not applied, so the orphan count is a lower
	// bound of what a real run would prune.
	orphans, err := m.config.Store.OrphanEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan orphan entities: %w", err)
	}
	report.EntitiesPruned = len(orphans)

	if !dryRun && len(orphans) > 0 {
		ids := make([]string, 0, len(orphans))
		for _, e := range orphans {
			ids = append(ids, e.ID)
		}
		for _, batch := range batches(ids, m.config.BatchSize) {
			if err := m.config.Store.DeleteEntities(ctx, batch); err != nil {
				return nil, fmt.Errorf("failed to prune orphan entities: %w", err)
			}
		}
	}

	return report, nil
}

// applyAssignments writes type backfills in bounded batches. Each batch
// commits independently; a failed batch can be retried without touching
// the already-committed ones because the updates are idempotent.
func (m *Maintainer) applyAssignments(ctx context.Context, assignments map[string]string) error {
	ids := make([]string, 0, len(assignments))
	for id := range assignments {
		ids = append(ids, id)
	}
	for _, batch := range batches(ids, m.config.BatchSize) {
		chunk := make(map[string]string, len(batch))
		for _, id := range batch {
			chunk[id] = assignments[id]
		}
		if err := m.config.Store.UpdateRelationTypes(ctx, chunk); err != nil {
			return fmt.Errorf("failed to backfill relation types: %w", err)
		}
	}
	return nil
}

func (m *Maintainer) applyDeletions(ctx context.Context, ids []string) error {
	for _, batch := range batches(ids, m.config.BatchSize) {
		if err := m.config.Store.DeleteRelations(ctx, batch); err != nil {
			return fmt.Errorf("failed to delete relations: %w", err)
		}
	}
	return nil
}

// InferType evaluates the table in declared order and returns the type of
// the first matching pattern. No match anywhere yields the generic
// fallback type.
func InferType(table []TypePattern, description string) string {
	desc := strings.ToLower(description)
	for _, tp := range table {
		for _, pattern := range tp.Patterns {
			if strings.Contains(desc, strings.ToLower(pattern)) {
				return tp.Type
			}
		}
	}
	return metrics.GenericFallbackType
}

func batches(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
