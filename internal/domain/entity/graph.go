package entity

// Entity is a candidate named concept extracted from a chunk. ChunkIndex is
// a weak back-reference; it is -1 when the entity could not be anchored.
type Entity struct {
	Text        string  `json:"text"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
	ChunkIndex  int     `json:"chunk_index"`
}

// Relationship is a candidate (source, relation, target) triple linking two
// entities, anchored to the chunk it was extracted from.
type Relationship struct {
	Source     string `json:"source"`
	Relation   string `json:"relation"`
	Target     string `json:"target"`
	ChunkIndex int    `json:"chunk_index"`
}

// GraphEntity is an entity node returned by a graph-store lookup.
type GraphEntity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	EntityType  string `json:"entity_type"`
	Description string `json:"description"`
}
