package entity

import (
	"fmt"

	"github.com/google/uuid"
)

// Artifact identifiers are deterministic hashes of their content-defining
// fields, so re-running a stage on the same inputs overwrites instead of
// duplicating downstream records.

// ChunkID derives the persistent vector-store id for a chunk.
func ChunkID(documentID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(fmt.Sprintf("%s:chunk:%d", documentID, index))).String()
}

// EntityID derives the persistent id for an entity from its surface form
// and type. Entities with the same (name, type) collapse to one record.
func EntityID(documentID, name, entityType string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(fmt.Sprintf("%s:entity:%s:%s", documentID, name, entityType))).String()
}

// RelationshipID derives the persistent id for a triple.
func RelationshipID(documentID, source, relation, target string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(fmt.Sprintf("%s:rel:%s:%s:%s", documentID, source, relation, target))).String()
}
