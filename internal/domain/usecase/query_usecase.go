package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/pedro9bee/rag-qdrant-neo4j/internal/domain/entity"
)

const maxGraphTerms = 3

type QueryEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type VectorSearcher interface {
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]entity.SearchHit, error)
}

type GraphSearcher interface {
	SearchEntities(ctx context.Context, term string, limit int) ([]entity.GraphEntity, error)
}

// QueryUseCase serves hybrid retrieval: the query is embedded once, vector
// and graph searches run in parallel, and the fusion engine merges both
// into a ranked context. Per-collection search failures degrade to empty
// results rather than failing the query.
type QueryUseCase struct {
	embedder QueryEmbedder
	vectors  VectorSearcher
	graph    GraphSearcher
	log      *slog.Logger
}

func NewQueryUseCase(embedder QueryEmbedder, vectors VectorSearcher, graph GraphSearcher, logger *slog.Logger) *QueryUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryUseCase{
		embedder: embedder,
		vectors:  vectors,
		graph:    graph,
		log:      logger.With("component", "query"),
	}
}

// Query performs hybrid search and returns the fused, rendered context.
func (u *QueryUseCase) Query(ctx context.Context, query string, topKVector, topKGraph, rerankTopK int) (*entity.QueryResponse, error) {
	if topKVector <= 0 {
		topKVector = 10
	}
	if topKGraph <= 0 {
		topKGraph = 5
	}
	if rerankTopK <= 0 {
		rerankTopK = 5
	}

	vector, err := u.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var (
		wg            sync.WaitGroup
		vectorResults []*entity.FusedResult
		graphResults  []*entity.FusedResult
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorResults = u.vectorSearch(ctx, vector, topKVector)
	}()
	go func() {
		defer wg.Done()
		graphResults = u.graphSearch(ctx, query, topKGraph)
	}()
	wg.Wait()

	fused, contextText, meta := Fuse(vectorResults, graphResults, rerankTopK)
	u.log.Info("hybrid search complete",
		"vector_results", len(vectorResults),
		"graph_results", len(graphResults),
		"fused", len(fused))

	return &entity.QueryResponse{
		Query:    query,
		Context:  contextText,
		Results:  fused,
		Metadata: meta,
	}, nil
}

// vectorSearch queries the three collections (chunks at full topK,
// entities and relationships at half), merges by raw score and truncates
// to topK.
func (u *QueryUseCase) vectorSearch(ctx context.Context, vector []float32, topK int) []*entity.FusedResult {
	var results []*entity.FusedResult
	results = append(results, u.searchCollection(ctx, collectionChunks, vector, topK)...)
	results = append(results, u.searchCollection(ctx, collectionEntities, vector, topK/2)...)
	results = append(results, u.searchCollection(ctx, collectionRelationships, vector, topK/2)...)

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RawScore > results[j].RawScore
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

func (u *QueryUseCase) searchCollection(ctx context.Context, collection string, vector []float32, limit int) []*entity.FusedResult {
	hits, err := u.vectors.Search(ctx, collection, vector, limit)
	if err != nil {
		u.log.Warn("vector search failed", "collection", collection, "error", err)
		return nil
	}

	results := make([]*entity.FusedResult, 0, len(hits))
	for _, hit := range hits {
		r, err := decodeHit(collection, hit)
		if err != nil {
			u.log.Warn("skipping undecodable hit", "collection", collection, "id", hit.ID, "error", err)
			continue
		}
		results = append(results, r)
	}
	return results
}

func decodeHit(collection string, hit entity.SearchHit) (*entity.FusedResult, error) {
	r := &entity.FusedResult{Source: entity.SourceVector, RawScore: hit.Score}
	switch collection {
	case collectionChunks:
		var payload entity.ChunkPayload
		if err := json.Unmarshal(hit.Payload, &payload); err != nil {
			return nil, err
		}
		r.Type = entity.ResultChunk
		r.Chunk = &payload
	case collectionEntities:
		var payload entity.EntityPayload
		if err := json.Unmarshal(hit.Payload, &payload); err != nil {
			return nil, err
		}
		r.Type = entity.ResultEntity
		r.Entity = &payload
	case collectionRelationships:
		var payload entity.RelationshipPayload
		if err := json.Unmarshal(hit.Payload, &payload); err != nil {
			return nil, err
		}
		r.Type = entity.ResultRelationship
		r.Relationship = &payload
	default:
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
	return r, nil
}

// graphSearch guesses entity names from the query (capitalized words) and
// looks each up in the graph.
func (u *QueryUseCase) graphSearch(ctx context.Context, query string, topK int) []*entity.FusedResult {
	var results []*entity.FusedResult
	for _, term := range candidateTerms(query) {
		entities, err := u.graph.SearchEntities(ctx, term, topK)
		if err != nil {
			u.log.Warn("graph search failed", "term", term, "error", err)
			continue
		}
		for i := range entities {
			results = append(results, &entity.FusedResult{
				Type:        entity.ResultGraphEntity,
				Source:      entity.SourceGraph,
				GraphEntity: &entities[i],
			})
		}
	}
	return results
}

// candidateTerms picks up to maxGraphTerms capitalized words longer than
// three characters, with edge punctuation trimmed.
func candidateTerms(query string) []string {
	var terms []string
	for _, word := range strings.Fields(query) {
		if len(word) <= 3 {
			continue
		}
		runes := []rune(word)
		if !unicode.IsUpper(runes[0]) {
			continue
		}
		term := strings.Trim(word, ".,!?")
		if term == "" {
			continue
		}
		terms = append(terms, term)
		if len(terms) == maxGraphTerms {
			break
		}
	}
	return terms
}
