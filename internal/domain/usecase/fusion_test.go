package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedro9bee/rag-qdrant-neo4j/internal/domain/entity"
)

func vectorChunk(text string, score float64) *entity.FusedResult {
	return &entity.FusedResult{
		Type:     entity.ResultChunk,
		Source:   entity.SourceVector,
		RawScore: score,
		Chunk:    &entity.ChunkPayload{DocumentID: "doc-1", Text: text},
	}
}

func graphHit(name string) *entity.FusedResult {
	return &entity.FusedResult{
		Type:        entity.ResultGraphEntity,
		Source:      entity.SourceGraph,
		GraphEntity: &entity.GraphEntity{Name: name, EntityType: "ORG"},
	}
}

func TestFuseScoring(t *testing.T) {
	vector := []*entity.FusedResult{
		vectorChunk("a", 0.9),
		vectorChunk("b", 0.5),
	}
	graph := []*entity.FusedResult{graphHit("c")}

	results, context, meta := Fuse(vector, graph, 3)
	require.Len(t, results, 3)

	// Max raw score is clamped at 1.0, so boosts are 0.45, 0.25 and the
	// flat 0.3 for the graph item; the graph boost lifts "c" over "b".
	assert.Equal(t, "a", results[0].Chunk.Text)
	assert.Equal(t, "c", results[1].GraphEntity.Name)
	assert.Equal(t, "b", results[2].Chunk.Text)

	assert.InDelta(t, 1.0/61+0.9*0.5, results[0].FinalScore, 1e-12)
	assert.InDelta(t, 1.0/63+0.3, results[1].FinalScore, 1e-12)
	assert.InDelta(t, 1.0/62+0.5*0.5, results[2].FinalScore, 1e-12)

	assert.Equal(t, 3, meta.NumSources)
	assert.Equal(t, 2, meta.ChunkCount)
	assert.Equal(t, 1, meta.EntityCount)
	assert.Equal(t, 1, meta.GraphCount)
	assert.Equal(t, 0, meta.RelationshipCount)

	assert.Contains(t, context, "[Source 1] (type: chunk, score:")
	assert.Contains(t, context, "[Source 2] (type: graph_entity, score:")
	assert.Contains(t, context, "\n---\n")
}

func TestFuseNormalizesLargeScores(t *testing.T) {
	vector := []*entity.FusedResult{
		vectorChunk("a", 4.0),
		vectorChunk("b", 2.0),
	}

	results, _, _ := Fuse(vector, nil, 2)
	require.Len(t, results, 2)

	// maxRaw = 4.0, so boosts are 0.5 and 0.25.
	assert.InDelta(t, 1.0/61+0.5, results[0].FinalScore, 1e-12)
	assert.InDelta(t, 1.0/62+0.25, results[1].FinalScore, 1e-12)
}

func TestFuseDeduplicatesAcrossSources(t *testing.T) {
	vector := []*entity.FusedResult{vectorChunk("shared text", 0.8)}
	graph := []*entity.FusedResult{graphHit("shared text")}

	results, _, meta := Fuse(vector, graph, 5)

	require.Len(t, results, 1)
	assert.Equal(t, entity.SourceVector, results[0].Source)
	assert.Equal(t, 1, meta.NumSources)
	assert.Equal(t, 0, meta.GraphCount)
}

func TestFuseTruncatesToFinalK(t *testing.T) {
	vector := []*entity.FusedResult{
		vectorChunk("a", 0.9),
		vectorChunk("b", 0.8),
		vectorChunk("c", 0.7),
		vectorChunk("d", 0.6),
	}

	results, _, meta := Fuse(vector, nil, 2)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, meta.NumSources)
	assert.Equal(t, "a", results[0].Chunk.Text)
	assert.Equal(t, "b", results[1].Chunk.Text)
}

func TestFuseDeterministic(t *testing.T) {
	build := func() ([]*entity.FusedResult, []*entity.FusedResult) {
		return []*entity.FusedResult{
				vectorChunk("a", 0.9),
				vectorChunk("b", 0.9),
				vectorChunk("c", 0.2),
			}, []*entity.FusedResult{
				graphHit("d"),
				graphHit("e"),
			}
	}

	v1, g1 := build()
	v2, g2 := build()
	r1, ctx1, _ := Fuse(v1, g1, 5)
	r2, ctx2, _ := Fuse(v2, g2, 5)

	require.Equal(t, len(r1), len(r2))
	for i := range r1 {
		assert.Equal(t, r1[i].ContentKey(), r2[i].ContentKey())
		assert.Equal(t, r1[i].FinalScore, r2[i].FinalScore)
	}
	assert.Equal(t, ctx1, ctx2)

	// Equal raw scores: concatenation order breaks the tie, stably.
	assert.Equal(t, "a", r1[0].Chunk.Text)
	assert.Equal(t, "b", r1[1].Chunk.Text)
}

func TestFuseEmptyInputs(t *testing.T) {
	results, context, meta := Fuse(nil, nil, 5)
	assert.Empty(t, results)
	assert.Empty(t, context)
	assert.Equal(t, 0, meta.NumSources)
}
