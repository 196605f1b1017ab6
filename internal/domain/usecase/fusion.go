package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pedro9bee/rag-qdrant-neo4j/internal/domain/entity"
)

// rrfK is the reciprocal-rank-fusion constant.
const rrfK = 60

// Fuse merges vector-similarity results and graph results into one ranked,
// deduplicated list. Vector results come first in the concatenation, so on
// a text collision the vector-sourced item survives. The output is
// deterministic for identical inputs: scoring depends only on rank position
// and raw scores, and the sort is stable.
func Fuse(vector, graph []*entity.FusedResult, finalK int) ([]*entity.FusedResult, string, entity.QueryMetadata) {
	maxRaw := 1.0
	for _, r := range vector {
		if r.RawScore > maxRaw {
			maxRaw = r.RawScore
		}
	}

	combined := make([]*entity.FusedResult, 0, len(vector)+len(graph))
	combined = append(combined, vector...)
	combined = append(combined, graph...)

	seen := make(map[string]bool, len(combined))
	fused := combined[:0]
	for pos, r := range combined {
		key := r.ContentKey()
		if seen[key] {
			continue
		}
		seen[key] = true

		r.RankPosition = pos
		score := 1.0 / float64(rrfK+pos+1)
		if r.Source == entity.SourceVector {
			score += (r.RawScore / maxRaw) * 0.5
		} else {
			score += 0.3
		}
		r.FinalScore = score
		fused = append(fused, r)
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].FinalScore > fused[j].FinalScore
	})
	if finalK >= 0 && len(fused) > finalK {
		fused = fused[:finalK]
	}

	meta := entity.QueryMetadata{NumSources: len(fused)}
	parts := make([]string, 0, len(fused))
	for i, r := range fused {
		switch r.Type {
		case entity.ResultChunk:
			meta.ChunkCount++
		case entity.ResultEntity:
			meta.EntityCount++
		case entity.ResultRelationship:
			meta.RelationshipCount++
		}
		if r.Source == entity.SourceGraph {
			meta.GraphCount++
			if r.Type == entity.ResultGraphEntity {
				meta.EntityCount++
			}
		}
		parts = append(parts, renderBlock(i+1, r))
	}

	return fused, strings.Join(parts, "\n---\n"), meta
}

// renderBlock formats one fused result as a numbered context block.
func renderBlock(rank int, r *entity.FusedResult) string {
	switch r.Type {
	case entity.ResultChunk:
		return fmt.Sprintf("[Source %d] (type: chunk, score: %.3f)\nDocument: %s\nContent: %s\n",
			rank, r.FinalScore, r.Chunk.DocumentID, r.Chunk.Text)
	case entity.ResultEntity:
		return fmt.Sprintf("[Source %d] (type: entity, score: %.3f)\nEntity: %s (%s)\nDescription: %s\n",
			rank, r.FinalScore, r.Entity.Name, r.Entity.EntityType, r.Entity.Description)
	case entity.ResultRelationship:
		return fmt.Sprintf("[Source %d] (type: relationship, score: %.3f)\nRelationship: %s --[%s]--> %s\n",
			rank, r.FinalScore, r.Relationship.Source, r.Relationship.Relation, r.Relationship.Target)
	case entity.ResultGraphEntity:
		return fmt.Sprintf("[Source %d] (type: graph_entity, score: %.3f)\nEntity: %s (%s)\nDescription: %s\n",
			rank, r.FinalScore, r.GraphEntity.Name, r.GraphEntity.EntityType, r.GraphEntity.Description)
	}
	return fmt.Sprintf("[Source %d] (type: %s, score: %.3f)\n", rank, r.Type, r.FinalScore)
}
