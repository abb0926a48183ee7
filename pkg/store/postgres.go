// Package store persists the extracted graph in PostgreSQL. Upserts are
// keyed on canonical keys so retries after a write failure cannot create
// duplicates.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/graphloom/graphloom/internal/models"
)

// maintenanceLockKey is the advisory lock shared by the maintainer and the
// ingestion writers.
const maintenanceLockKey = 0x67726c6d // "grlm"

// GraphStoreConfig represents the configuration for a graph store.
type GraphStoreConfig struct {
	ConnString string
	BatchSize  int
}

// GraphStore is the pgx-backed persistence layer.
type GraphStore struct {
	config GraphStoreConfig
	pool   *pgxpool.Pool

	// Advisory locks are connection-scoped, so release must go through the
	// connection that took the lock. lockConn pins the maintainer's
	// exclusive lock; ingestConns pin shared ingest locks, one per holder.
	mu          sync.Mutex
	lockConn    *pgxpool.Conn
	ingestConns []*pgxpool.Conn
}

// NewWithConfig creates a new GraphStore with the given configuration and
// bootstraps the schema.
func NewWithConfig(config GraphStoreConfig) (*GraphStore, error) {
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	gs := &GraphStore{
		config: config,
		pool:   pool,
	}

	if err := gs.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return gs, nil
}

func (gs *GraphStore) initialize() error {
	ctx := context.Background()

	// Untyped relations carry '' rather than NULL so the uniqueness
	// constraint keeps working.
	createEntities := `
		CREATE TABLE IF NOT EXISTS graph_entities (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			canonical_key TEXT NOT NULL,
			name_key TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			description TEXT,
			confidence DOUBLE PRECISION,
			source_chunk_ids TEXT[],
			UNIQUE (document_id, canonical_key)
		)`

	if _, err := gs.pool.Exec(ctx, createEntities); err != nil {
		return fmt.Errorf("failed to create entities table: %v", err)
	}

	createRelations := `
		CREATE TABLE IF NOT EXISTS graph_relations (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			source_key TEXT NOT NULL,
			target_key TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			description TEXT,
			confidence DOUBLE PRECISION,
			unresolved BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE (document_id, source_key, target_key, type)
		)`

	if _, err := gs.pool.Exec(ctx, createRelations); err != nil {
		return fmt.Errorf("failed to create relations table: %v", err)
	}

	createIndex := `
		CREATE INDEX IF NOT EXISTS graph_relations_untyped_idx
		ON graph_relations (type)
		WHERE type = ''`

	if _, err := gs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	return nil
}

// UpsertEntities writes entities in batched transactions.
func (gs *GraphStore) UpsertEntities(ctx context.Context, documentID string, entities []models.Entity) error {
	stmt := `
		INSERT INTO graph_entities (id, document_id, canonical_key, name_key, name, type, description, confidence, source_chunk_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (document_id, canonical_key) DO UPDATE SET
			description = EXCLUDED.description,
			confidence = GREATEST(graph_entities.confidence, EXCLUDED.confidence),
			source_chunk_ids = EXCLUDED.source_chunk_ids`

	for start := 0; start < len(entities); start += gs.config.BatchSize {
		end := start + gs.config.BatchSize
		if end > len(entities) {
			end = len(entities)
		}

		if err := gs.inTx(ctx, func(tx pgx.Tx) error {
			for _, e := range entities[start:end] {
				_, err := tx.Exec(ctx, stmt,
					e.ID, documentID, e.CanonicalKey(), models.CanonicalName(e.Name), e.Name, e.Type,
					e.Description, e.Confidence, e.SourceChunkIDs)
				if err != nil {
					return fmt.Errorf("failed to upsert entity %s: %v", e.Name, err)
				}
			}
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// UpsertRelations writes relations in batched transactions.
func (gs *GraphStore) UpsertRelations(ctx context.Context, documentID string, relations []models.Relationship) error {
	stmt := `
		INSERT INTO graph_relations (id, document_id, source_key, target_key, type, description, confidence, unresolved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (document_id, source_key, target_key, type) DO UPDATE SET
			description = EXCLUDED.description,
			confidence = GREATEST(graph_relations.confidence, EXCLUDED.confidence),
			unresolved = EXCLUDED.unresolved`

	for start := 0; start < len(relations); start += gs.config.BatchSize {
		end := start + gs.config.BatchSize
		if end > len(relations) {
			end = len(relations)
		}

		if err := gs.inTx(ctx, func(tx pgx.Tx) error {
			for _, r := range relations[start:end] {
				_, err := tx.Exec(ctx, stmt,
					r.ID, documentID, models.CanonicalName(r.Source), models.CanonicalName(r.Target),
					r.Type, r.Description, r.Confidence, r.Unresolved)
				if err != nil {
					return fmt.Errorf("failed to upsert relation %s -> %s: %v", r.Source, r.Target, err)
				}
			}
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// UntypedRelations returns every persisted relation without a type.
func (gs *GraphStore) UntypedRelations(ctx context.Context) ([]models.Relationship, error) {
	rows, err := gs.pool.Query(ctx, `
		SELECT id, source_key, target_key, COALESCE(description, ''), COALESCE(confidence, 0)
		FROM graph_relations
		WHERE type = ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to query untyped relations: %v", err)
	}
	defer rows.Close()

	var relations []models.Relationship
	for rows.Next() {
		var r models.Relationship
		if err := rows.Scan(&r.ID, &r.Source, &r.Target, &r.Description, &r.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		relations = append(relations, r)
	}
	return relations, rows.Err()
}

// UpdateRelationTypes backfills inferred types in one transaction.
func (gs *GraphStore) UpdateRelationTypes(ctx context.Context, typesByID map[string]string) error {
	if len(typesByID) == 0 {
		return nil
	}
	return gs.inTx(ctx, func(tx pgx.Tx) error {
		for id, typ := range typesByID {
			if _, err := tx.Exec(ctx,
				`UPDATE graph_relations SET type = $1 WHERE id = $2`, typ, id); err != nil {
				return fmt.Errorf("failed to update relation %s: %v", id, err)
			}
		}
		return nil
	})
}

// DeleteRelations removes relations by id in one transaction.
func (gs *GraphStore) DeleteRelations(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return gs.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM graph_relations WHERE id = ANY($1)`, ids)
		if err != nil {
			return fmt.Errorf("failed to delete relations: %v", err)
		}
		return nil
	})
}

// OrphanEntities returns entities with no remaining relation and no chunk
// mention. The relation join uses the dedicated name_key column so entity
// names containing the canonical-key separator cannot corrupt the match.
func (gs *GraphStore) OrphanEntities(ctx context.Context) ([]models.Entity, error) {
	rows, err := gs.pool.Query(ctx, `
		SELECT e.id, e.name
		FROM graph_entities e
		WHERE (e.source_chunk_ids IS NULL OR cardinality(e.source_chunk_ids) = 0)
		AND NOT EXISTS (
			SELECT 1 FROM graph_relations r
			WHERE r.document_id = e.document_id
			AND (r.source_key = e.name_key OR r.target_key = e.name_key)
		)`)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphan entities: %v", err)
	}
	defer rows.Close()

	var entities []models.Entity
	for rows.Next() {
		var e models.Entity
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// DeleteEntities removes entities by id in one transaction.
func (gs *GraphStore) DeleteEntities(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return gs.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM graph_entities WHERE id = ANY($1)`, ids)
		if err != nil {
			return fmt.Errorf("failed to delete entities: %v", err)
		}
		return nil
	})
}

// AcquireIngestLock takes the advisory lock in shared mode. Concurrent
// document ingests all hold it together; it only fails while the maintainer
// holds the exclusive lock.
func (gs *GraphStore) AcquireIngestLock(ctx context.Context) (bool, error) {
	conn, err := gs.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire connection: %v", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock_shared($1)`, maintenanceLockKey).Scan(&acquired); err != nil {
		conn.Release()
		return false, fmt.Errorf("failed to acquire shared advisory lock: %v", err)
	}
	if !acquired {
		conn.Release()
		return false, nil
	}

	gs.mu.Lock()
	gs.ingestConns = append(gs.ingestConns, conn)
	gs.mu.Unlock()
	return true, nil
}

// ReleaseIngestLock releases one shared hold of the advisory lock.
func (gs *GraphStore) ReleaseIngestLock(ctx context.Context) error {
	gs.mu.Lock()
	if len(gs.ingestConns) == 0 {
		gs.mu.Unlock()
		return nil
	}
	conn := gs.ingestConns[len(gs.ingestConns)-1]
	gs.ingestConns = gs.ingestConns[:len(gs.ingestConns)-1]
	gs.mu.Unlock()

	_, err := conn.Exec(ctx, `SELECT pg_advisory_unlock_shared($1)`, maintenanceLockKey)
	conn.Release()
	if err != nil {
		return fmt.Errorf("failed to release shared advisory lock: %v", err)
	}
	return nil
}

// AcquireMaintenanceLock takes the session-level advisory lock guarding
// the relation set. Returns false without blocking when someone else holds
// it.
func (gs *GraphStore) AcquireMaintenanceLock(ctx context.Context) (bool, error) {
	conn, err := gs.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire connection: %v", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, maintenanceLockKey).Scan(&acquired); err != nil {
		conn.Release()
		return false, fmt.Errorf("failed to acquire advisory lock: %v", err)
	}
	if !acquired {
		conn.Release()
		return false, nil
	}

	gs.lockConn = conn
	return true, nil
}

// ReleaseMaintenanceLock releases the advisory lock.
func (gs *GraphStore) ReleaseMaintenanceLock(ctx context.Context) error {
	if gs.lockConn == nil {
		return nil
	}
	_, err := gs.lockConn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, maintenanceLockKey)
	gs.lockConn.Release()
	gs.lockConn = nil
	if err != nil {
		return fmt.Errorf("failed to release advisory lock: %v", err)
	}
	return nil
}

func (gs *GraphStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := gs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}
	return nil
}

// Close releases the connection pool.
func (gs *GraphStore) Close() {
	if gs.pool != nil {
		gs.pool.Close()
	}
}
