package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/pgvector/pgvector-go"

	"github.com/pedro9bee/rag-qdrant-neo4j/internal/domain/entity"
)

// Collection suffixes. Tables are named {prefix}_{collection}.
const (
	CollectionChunks        = "chunks"
	CollectionEntities      = "entities"
	CollectionRelationships = "relationships"
)

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// VectorRepo stores embeddings and payloads in Postgres with the pgvector
// extension, one table per collection. Cosine distance drives similarity.
type VectorRepo struct {
	db     *sql.DB
	prefix string
	dims   int
	log    *slog.Logger
}

func NewVectorRepo(db *sql.DB, prefix string, dims int, logger *slog.Logger) (*VectorRepo, error) {
	if !identPattern.MatchString(prefix) {
		return nil, fmt.Errorf("invalid collection prefix %q", prefix)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorRepo{
		db:     db,
		prefix: prefix,
		dims:   dims,
		log:    logger.With("component", "vector_store"),
	}, nil
}

func (r *VectorRepo) table(collection string) (string, error) {
	switch collection {
	case CollectionChunks, CollectionEntities, CollectionRelationships:
		return r.prefix + "_" + collection, nil
	}
	return "", fmt.Errorf("unknown collection %q", collection)
}

// EnsureCollections creates the extension, tables and indexes if absent.
func (r *VectorRepo) EnsureCollections(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	for _, collection := range []string{CollectionChunks, CollectionEntities, CollectionRelationships} {
		table, _ := r.table(collection)
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id uuid PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			payload jsonb NOT NULL
		)`, table, r.dims)
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}

		idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx
			ON %s USING hnsw (embedding vector_cosine_ops)`, table, table)
		if _, err := r.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create index on %s: %w", table, err)
		}
		r.log.Debug("ensured collection", "table", table, "dimensions", r.dims)
	}
	return nil
}

// Upsert writes a batch of points in one transaction. Existing ids are
// overwritten, so re-running a stage replaces rather than duplicates.
func (r *VectorRepo) Upsert(ctx context.Context, collection string, points []entity.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	table, err := r.table(collection)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, embedding, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload`, table))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload %s: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, p.ID, pgvector.NewVector(p.Vector), payload); err != nil {
			return fmt.Errorf("upsert %s into %s: %w", p.ID, table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Search returns the nearest points by cosine similarity, highest first.
// Score is 1 - cosine_distance, in [0, 1] for normalized embeddings.
func (r *VectorRepo) Search(ctx context.Context, collection string, vector []float32, limit int) ([]entity.SearchHit, error) {
	table, err := r.table(collection)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, payload, 1 - (embedding <=> $1) AS score
		FROM %s ORDER BY embedding <=> $1 LIMIT $2`, table),
		pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", table, err)
	}
	defer rows.Close()

	var hits []entity.SearchHit
	for rows.Next() {
		var hit entity.SearchHit
		var payload []byte
		if err := rows.Scan(&hit.ID, &payload, &hit.Score); err != nil {
			return nil, fmt.Errorf("scan hit from %s: %w", table, err)
		}
		hit.Payload = json.RawMessage(payload)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hits from %s: %w", table, err)
	}
	return hits, nil
}
