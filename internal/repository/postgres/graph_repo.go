package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pedro9bee/rag-qdrant-neo4j/internal/domain/entity"
)

// Node kinds and structural edge labels.
const (
	KindDocument = "Document"
	KindChunk    = "Chunk"
	KindEntity   = "Entity"

	RelationHasChunk    = "HAS_CHUNK"
	RelationMentionedIn = "MENTIONED_IN"
)

// GraphRepo stores the knowledge graph as node and edge tables in
// Postgres. Nodes are identified by (kind, name); ids are deterministic,
// so repeated merges of the same node or edge are no-ops.
type GraphRepo struct {
	db        *sql.DB
	allowlist map[string]bool
	log       *slog.Logger
}

func NewGraphRepo(db *sql.DB, relationAllowlist []string, logger *slog.Logger) *GraphRepo {
	if logger == nil {
		logger = slog.Default()
	}
	var allow map[string]bool
	if len(relationAllowlist) > 0 {
		allow = make(map[string]bool, len(relationAllowlist))
		for _, rel := range relationAllowlist {
			allow[SanitizeRelation(rel, nil)] = true
		}
	}
	return &GraphRepo{
		db:        db,
		allowlist: allow,
		log:       logger.With("component", "graph_store"),
	}
}

func nodeID(kind, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(fmt.Sprintf("graph:%s:%s", kind, name))).String()
}

// EnsureSchema creates the node and edge tables if absent.
func (r *GraphRepo) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS graph_nodes (
			id uuid PRIMARY KEY,
			kind text NOT NULL,
			name text NOT NULL,
			entity_type text NOT NULL DEFAULT '',
			description text NOT NULL DEFAULT '',
			UNIQUE (kind, name)
		)`,
		`CREATE TABLE IF NOT EXISTS graph_edges (
			source_id uuid NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
			target_id uuid NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
			relation text NOT NULL,
			PRIMARY KEY (source_id, target_id, relation)
		)`,
		`CREATE INDEX IF NOT EXISTS graph_nodes_kind_name_idx ON graph_nodes (kind, name)`,
	}
	for _, ddl := range stmts {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure graph schema: %w", err)
		}
	}
	return nil
}

func (r *GraphRepo) upsertNode(ctx context.Context, kind, name, entityType, description string) (string, error) {
	id := nodeID(kind, name)
	_, err := r.db.ExecContext(ctx, `INSERT INTO graph_nodes (id, kind, name, entity_type, description)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, name) DO UPDATE SET
			entity_type = CASE WHEN EXCLUDED.entity_type <> '' THEN EXCLUDED.entity_type ELSE graph_nodes.entity_type END,
			description = CASE WHEN EXCLUDED.description <> '' THEN EXCLUDED.description ELSE graph_nodes.description END`,
		id, kind, name, entityType, description)
	if err != nil {
		return "", fmt.Errorf("upsert %s node %q: %w", kind, name, err)
	}
	return id, nil
}

func (r *GraphRepo) upsertEdge(ctx context.Context, sourceID, targetID, relation string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO graph_edges (source_id, target_id, relation)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		sourceID, targetID, relation)
	if err != nil {
		return fmt.Errorf("upsert edge %s: %w", relation, err)
	}
	return nil
}

// UpsertDocument merges a document node.
func (r *GraphRepo) UpsertDocument(ctx context.Context, documentID string) error {
	_, err := r.upsertNode(ctx, KindDocument, documentID, "", "")
	return err
}

// UpsertChunk merges a chunk node and links it to its document.
func (r *GraphRepo) UpsertChunk(ctx context.Context, documentID, chunkID string) error {
	docID := nodeID(KindDocument, documentID)
	cID, err := r.upsertNode(ctx, KindChunk, chunkID, "", "")
	if err != nil {
		return err
	}
	return r.upsertEdge(ctx, docID, cID, RelationHasChunk)
}

// UpsertEntity merges an entity node keyed by surface form.
func (r *GraphRepo) UpsertEntity(ctx context.Context, e entity.Entity) error {
	_, err := r.upsertNode(ctx, KindEntity, e.Text, e.Type, e.Description)
	return err
}

// LinkEntityToChunk records that an entity is mentioned in a chunk.
func (r *GraphRepo) LinkEntityToChunk(ctx context.Context, entityName, chunkID string) error {
	return r.upsertEdge(ctx, nodeID(KindEntity, entityName), nodeID(KindChunk, chunkID), RelationMentionedIn)
}

// UpsertRelationship merges both endpoint entity nodes by name and the edge
// between them. The relation label is sanitized before it becomes a
// structural identifier.
func (r *GraphRepo) UpsertRelationship(ctx context.Context, rel entity.Relationship) error {
	sourceID, err := r.upsertNode(ctx, KindEntity, rel.Source, "", "")
	if err != nil {
		return err
	}
	targetID, err := r.upsertNode(ctx, KindEntity, rel.Target, "", "")
	if err != nil {
		return err
	}
	return r.upsertEdge(ctx, sourceID, targetID, SanitizeRelation(rel.Relation, r.allowlist))
}

// SearchEntities finds entity nodes whose name contains the term,
// case-insensitively.
func (r *GraphRepo) SearchEntities(ctx context.Context, term string, limit int) ([]entity.GraphEntity, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, entity_type, description
		FROM graph_nodes
		WHERE kind = $1 AND name ILIKE '%' || $2 || '%'
		ORDER BY name
		LIMIT $3`, KindEntity, term, limit)
	if err != nil {
		return nil, fmt.Errorf("search entities %q: %w", term, err)
	}
	defer rows.Close()

	var entities []entity.GraphEntity
	for rows.Next() {
		var e entity.GraphEntity
		if err := rows.Scan(&e.ID, &e.Name, &e.EntityType, &e.Description); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return entities, nil
}
