package entity

import (
	"encoding/json"
	"fmt"
)

type ResultType string

const (
	ResultChunk        ResultType = "chunk"
	ResultEntity       ResultType = "entity"
	ResultRelationship ResultType = "relationship"
	ResultGraphEntity  ResultType = "graph_entity"
)

type ResultSource string

const (
	SourceVector ResultSource = "vector"
	SourceGraph  ResultSource = "graph"
)

// ChunkPayload is the stored payload of a chunk vector.
type ChunkPayload struct {
	Type          string         `json:"type"`
	DocumentID    string         `json:"document_id"`
	ChunkIndex    int            `json:"chunk_index"`
	Text          string         `json:"text"`
	Metadata      ChunkMetadata  `json:"metadata"`
	Entities      []string       `json:"entities,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
}

// EntityPayload is the stored payload of an entity vector.
type EntityPayload struct {
	Type         string  `json:"type"`
	DocumentID   string  `json:"document_id"`
	Name         string  `json:"name"`
	EntityType   string  `json:"entity_type"`
	Description  string  `json:"description"`
	ChunkIndices []int   `json:"chunk_indices"`
	Score        float64 `json:"score"`
}

// RelationshipPayload is the stored payload of a relationship vector.
type RelationshipPayload struct {
	Type       string `json:"type"`
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	Relation   string `json:"relation"`
	Target     string `json:"target"`
	ChunkIndex int    `json:"chunk_index"`
}

// VectorPoint is one id/vector/payload triple bound for a vector collection.
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload interface{}
}

// SearchHit is one scored row returned by a vector collection search.
// Payload holds the stored JSON document and is decoded per collection.
type SearchHit struct {
	ID      string
	Score   float64
	Payload json.RawMessage
}

// FusedResult is an ephemeral, query-scoped item produced by the fusion
// engine. Exactly one of the per-type payload pointers is set, matching
// Type. RankPosition is the item's 0-based position in the pre-fusion
// concatenation; FinalScore is the fused RRF + boost score.
type FusedResult struct {
	Type         ResultType           `json:"type"`
	Source       ResultSource         `json:"source"`
	RawScore     float64              `json:"raw_score"`
	RankPosition int                  `json:"rank_position"`
	FinalScore   float64              `json:"final_score"`
	Chunk        *ChunkPayload        `json:"chunk,omitempty"`
	Entity       *EntityPayload       `json:"entity,omitempty"`
	Relationship *RelationshipPayload `json:"relationship,omitempty"`
	GraphEntity  *GraphEntity         `json:"graph_entity,omitempty"`
}

// ContentKey returns the text content used for deduplication. Two results
// with the same key are considered the same item regardless of origin.
func (r *FusedResult) ContentKey() string {
	switch r.Type {
	case ResultChunk:
		if r.Chunk != nil {
			return r.Chunk.Text
		}
	case ResultEntity:
		if r.Entity != nil {
			return r.Entity.Name
		}
	case ResultRelationship:
		if r.Relationship != nil {
			return fmt.Sprintf("%s %s %s", r.Relationship.Source, r.Relationship.Relation, r.Relationship.Target)
		}
	case ResultGraphEntity:
		if r.GraphEntity != nil {
			return r.GraphEntity.Name
		}
	}
	return ""
}

// QueryMetadata summarizes a fused result set by type.
type QueryMetadata struct {
	NumSources        int `json:"num_sources"`
	ChunkCount        int `json:"chunk_count"`
	EntityCount       int `json:"entity_count"`
	RelationshipCount int `json:"relationship_count"`
	GraphCount        int `json:"graph_count"`
}

// QueryResponse is the synchronous answer to a retrieval query.
type QueryResponse struct {
	Query    string         `json:"query"`
	Context  string         `json:"context"`
	Results  []*FusedResult `json:"results"`
	Metadata QueryMetadata  `json:"metadata"`
}
