package entity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestIDsAreDeterministic(t *testing.T) {
	assert.Equal(t, ChunkID("doc-1", 0), ChunkID("doc-1", 0))
	assert.Equal(t, EntityID("doc-1", "Qdrant", "ORG"), EntityID("doc-1", "Qdrant", "ORG"))
	assert.Equal(t,
		RelationshipID("doc-1", "Qdrant", "STORES", "vectors"),
		RelationshipID("doc-1", "Qdrant", "STORES", "vectors"))
}

func TestIDsDistinguishInputs(t *testing.T) {
	assert.NotEqual(t, ChunkID("doc-1", 0), ChunkID("doc-1", 1))
	assert.NotEqual(t, ChunkID("doc-1", 0), ChunkID("doc-2", 0))
	assert.NotEqual(t, EntityID("doc-1", "Qdrant", "ORG"), EntityID("doc-1", "Qdrant", "PRODUCT"))
	assert.NotEqual(t,
		RelationshipID("doc-1", "A", "USES", "B"),
		RelationshipID("doc-1", "B", "USES", "A"))
}

func TestIDsAreValidUUIDs(t *testing.T) {
	for _, id := range []string{
		ChunkID("doc-1", 3),
		EntityID("doc-1", "Redis", "PRODUCT"),
		RelationshipID("doc-1", "Redis", "CACHES", "jobs"),
	} {
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
	}
}
