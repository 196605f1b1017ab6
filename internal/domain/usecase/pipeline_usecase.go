package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/pedro9bee/rag-qdrant-neo4j/internal/domain/entity"
)

// Stage names used for task handles and logging.
const (
	StageProcess                = "process"
	StageExtractEntities        = "extract_entities"
	StageExtractRelationships   = "extract_relationships"
	StageVectorizeChunks        = "vectorize_chunks"
	StageVectorizeEntities      = "vectorize_entities"
	StageVectorizeRelationships = "vectorize_relationships"
)

type JobStore interface {
	CreateJob(ctx context.Context, job *entity.Job) error
	GetJob(ctx context.Context, jobID string) (*entity.Job, error)
	UpdateJob(ctx context.Context, jobID string, upd entity.JobUpdate) (*entity.Job, error)
	SaveChunks(ctx context.Context, jobID string, chunks []entity.Chunk) error
	GetChunks(ctx context.Context, jobID string) ([]entity.Chunk, error)
	SaveEntities(ctx context.Context, jobID string, entities []entity.Entity) error
	GetEntities(ctx context.Context, jobID string) ([]entity.Entity, error)
	SaveRelationships(ctx context.Context, jobID string, rels []entity.Relationship) error
	GetRelationships(ctx context.Context, jobID string) ([]entity.Relationship, error)
	ListJobs(ctx context.Context) ([]*entity.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
	DeleteArtifacts(ctx context.Context, jobID string) error
}

type ObjectStorage interface {
	Stat(ctx context.Context, bucket, key string) (int64, error)
	Download(ctx context.Context, bucket, key string) (string, error)
}

type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string, chunkIndex int) ([]entity.Entity, error)
}

type RelationExtractor interface {
	ExtractRelations(ctx context.Context, text string, chunkIndex int, entities []entity.Entity) ([]entity.Relationship, error)
}

type VectorStore interface {
	EnsureCollections(ctx context.Context) error
	Upsert(ctx context.Context, collection string, points []entity.VectorPoint) error
}

type GraphStore interface {
	UpsertDocument(ctx context.Context, documentID string) error
	UpsertChunk(ctx context.Context, documentID, chunkID string) error
	UpsertEntity(ctx context.Context, e entity.Entity) error
	LinkEntityToChunk(ctx context.Context, entityName, chunkID string) error
	UpsertRelationship(ctx context.Context, rel entity.Relationship) error
}

type TaskLauncher interface {
	Submit(jobID, stage string, task func()) error
}

// Vector collection names consumed by the VectorStore.
const (
	collectionChunks        = "chunks"
	collectionEntities      = "entities"
	collectionRelationships = "relationships"
)

type PipelineConfig struct {
	ChunkSize         int
	ChunkOverlap      int
	EmbeddingDims     int
	MaxFileSizeMB     float64
	UpsertBatchSize   int
	RelationBatchSize int
}

// PipelineUseCase drives the six-stage ingestion pipeline. Each stage
// operation validates preconditions against the job store, marks the
// in-progress status, launches the stage body as a detached background
// unit and returns immediately. Failures inside a unit set status=error;
// re-invoking the same stage is the recovery path.
type PipelineUseCase struct {
	jobs      JobStore
	storage   ObjectStorage
	embedder  Embedder
	entities  EntityExtractor
	relations RelationExtractor
	vectors   VectorStore
	graph     GraphStore
	launcher  TaskLauncher
	cfg       PipelineConfig
	log       *slog.Logger
}

func NewPipelineUseCase(
	jobs JobStore,
	storage ObjectStorage,
	embedder Embedder,
	entities EntityExtractor,
	relations RelationExtractor,
	vectors VectorStore,
	graph GraphStore,
	launcher TaskLauncher,
	cfg PipelineConfig,
	logger *slog.Logger,
) *PipelineUseCase {
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = 50
	}
	if cfg.RelationBatchSize <= 0 {
		cfg.RelationBatchSize = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineUseCase{
		jobs:      jobs,
		storage:   storage,
		embedder:  embedder,
		entities:  entities,
		relations: relations,
		vectors:   vectors,
		graph:     graph,
		launcher:  launcher,
		cfg:       cfg,
		log:       logger.With("component", "pipeline"),
	}
}

var statusRank = map[entity.JobStatus]int{
	entity.StatusCreated:                  0,
	entity.StatusProcessing:               1,
	entity.StatusDownloading:              2,
	entity.StatusChunking:                 3,
	entity.StatusChunksReady:              4,
	entity.StatusExtractingEntities:       5,
	entity.StatusEntitiesValidated:        6,
	entity.StatusExtractingRelationships:  7,
	entity.StatusRelationshipsExtracted:   8,
	entity.StatusVectorizingChunks:        9,
	entity.StatusChunksVectorized:         10,
	entity.StatusVectorizingEntities:      11,
	entity.StatusEntitiesVectorized:       12,
	entity.StatusVectorizingRelationships: 13,
	entity.StatusComplete:                 14,
}

func isNotFound(err error) bool {
	return errors.Is(err, entity.ErrJobNotFound)
}

func statusReached(status, target entity.JobStatus) bool {
	rank, ok := statusRank[status]
	targetRank, targetOK := statusRank[target]
	return ok && targetOK && rank >= targetRank
}

// fail records a stage failure on the job. The job is left where it
// failed; artifacts from completed stages stay readable.
func (u *PipelineUseCase) fail(jobID, stage string, err error) {
	u.log.Error("stage failed", "job_id", jobID, "stage", stage, "error", err)
	if _, uerr := u.jobs.UpdateJob(context.Background(), jobID, entity.JobUpdate{Error: err.Error()}); uerr != nil {
		u.log.Error("failed to record job error", "job_id", jobID, "error", uerr)
	}
}

// setStatus marks a stage transition and clears any stale error from a
// previous failed attempt.
func (u *PipelineUseCase) setStatus(ctx context.Context, jobID string, status entity.JobStatus) error {
	_, err := u.jobs.UpdateJob(ctx, jobID, entity.JobUpdate{Status: &status, ClearError: true})
	return err
}

// Process validates the source object, creates the job record and launches
// download + chunking in the background.
func (u *PipelineUseCase) Process(ctx context.Context, bucket, file string, chunkSize, chunkOverlap int) (*entity.Job, error) {
	size, err := u.storage.Stat(ctx, bucket, file)
	if err != nil {
		return nil, err
	}
	sizeMB := float64(size) / (1024 * 1024)
	if sizeMB > u.cfg.MaxFileSizeMB {
		return nil, fmt.Errorf("%w: %.2fMB (max %.0fMB)", entity.ErrFileTooLarge, sizeMB, u.cfg.MaxFileSizeMB)
	}

	if chunkSize <= 0 {
		chunkSize = u.cfg.ChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = u.cfg.ChunkOverlap
	}

	job := entity.NewJob(uuid.NewString(), bucket, file)
	job.Status = entity.StatusProcessing
	job.ChunkSize = chunkSize
	job.ChunkOverlap = chunkOverlap
	job.FileSizeMB = sizeMB

	if err := u.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := u.launcher.Submit(job.JobID, StageProcess, func() {
		u.runProcess(job.JobID, bucket, file, chunkSize, chunkOverlap)
	}); err != nil {
		return nil, err
	}
	u.log.Info("job created", "job_id", job.JobID, "bucket", bucket, "file", file, "size_mb", sizeMB)
	return job, nil
}

func (u *PipelineUseCase) runProcess(jobID, bucket, file string, chunkSize, chunkOverlap int) {
	ctx := context.Background()

	if err := u.setStatus(ctx, jobID, entity.StatusDownloading); err != nil {
		u.fail(jobID, StageProcess, err)
		return
	}
	content, err := u.storage.Download(ctx, bucket, file)
	if err != nil {
		u.fail(jobID, StageProcess, err)
		return
	}

	if err := u.setStatus(ctx, jobID, entity.StatusChunking); err != nil {
		u.fail(jobID, StageProcess, err)
		return
	}
	chunker := NewChunkerUseCase(chunkSize, chunkOverlap, u.log)
	chunks := chunker.Chunk(content, file)

	if err := u.jobs.SaveChunks(ctx, jobID, chunks); err != nil {
		u.fail(jobID, StageProcess, err)
		return
	}

	status := entity.StatusChunksReady
	_, err = u.jobs.UpdateJob(ctx, jobID, entity.JobUpdate{
		Status:   &status,
		Progress: &entity.Progress{Current: len(chunks), Total: len(chunks)},
		Stats:    map[string]interface{}{"chunks": len(chunks)},
	})
	if err != nil {
		u.fail(jobID, StageProcess, err)
		return
	}
	u.log.Info("processing complete", "job_id", jobID, "chunks", len(chunks))
}

// ExtractEntities launches NER over the job's chunks. Requires chunks.
func (u *PipelineUseCase) ExtractEntities(ctx context.Context, jobID string) (*entity.Job, int, error) {
	if _, err := u.jobs.GetJob(ctx, jobID); err != nil {
		return nil, 0, err
	}
	chunks, err := u.requireChunks(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}

	if err := u.setStatus(ctx, jobID, entity.StatusExtractingEntities); err != nil {
		return nil, 0, err
	}
	if err := u.launcher.Submit(jobID, StageExtractEntities, func() {
		u.runExtractEntities(jobID, chunks)
	}); err != nil {
		return nil, 0, err
	}

	job, err := u.jobs.GetJob(ctx, jobID)
	return job, len(chunks), err
}

func (u *PipelineUseCase) runExtractEntities(jobID string, chunks []entity.Chunk) {
	ctx := context.Background()

	var all []entity.Entity
	for i, chunk := range chunks {
		found, err := u.entities.ExtractEntities(ctx, chunk.Text, chunk.Index)
		if err != nil {
			// A bad chunk does not abort the stage.
			u.log.Warn("entity extraction failed for chunk", "job_id", jobID, "chunk_index", chunk.Index, "error", err)
			continue
		}
		all = append(all, found...)

		if (i+1)%10 == 0 || i+1 == len(chunks) {
			if _, err := u.jobs.UpdateJob(ctx, jobID, entity.JobUpdate{
				Progress: &entity.Progress{Current: i + 1, Total: len(chunks)},
			}); err != nil {
				u.fail(jobID, StageExtractEntities, err)
				return
			}
		}
	}

	if err := u.jobs.SaveEntities(ctx, jobID, all); err != nil {
		u.fail(jobID, StageExtractEntities, err)
		return
	}

	status := entity.StatusEntitiesValidated
	_, err := u.jobs.UpdateJob(ctx, jobID, entity.JobUpdate{
		Status: &status,
		Stats: map[string]interface{}{
			"entities_raw":       len(all),
			"entities_validated": len(all),
		},
	})
	if err != nil {
		u.fail(jobID, StageExtractEntities, err)
		return
	}
	u.log.Info("entity extraction complete", "job_id", jobID, "entities", len(all))
}

// ExtractRelationships launches triple extraction. Requires chunks; a job
// with zero entities is still accepted and completes with an empty result.
func (u *PipelineUseCase) ExtractRelationships(ctx context.Context, jobID string) (*entity.Job, int, int, error) {
	if _, err := u.jobs.GetJob(ctx, jobID); err != nil {
		return nil, 0, 0, err
	}
	chunks, err := u.requireChunks(ctx, jobID)
	if err != nil {
		return nil, 0, 0, err
	}
	entities, err := u.optionalEntities(ctx, jobID)
	if err != nil {
		return nil, 0, 0, err
	}

	if err := u.setStatus(ctx, jobID, entity.StatusExtractingRelationships); err != nil {
		return nil, 0, 0, err
	}
	if err := u.launcher.Submit(jobID, StageExtractRelationships, func() {
		u.runExtractRelationships(jobID, chunks, entities)
	}); err != nil {
		return nil, 0, 0, err
	}

	job, err := u.jobs.GetJob(ctx, jobID)
	return job, len(chunks), len(entities), err
}

func (u *PipelineUseCase) runExtractRelationships(jobID string, chunks []entity.Chunk, entities []entity.Entity) {
	ctx := context.Background()

	entsByChunk := make(map[int][]entity.Entity)
	for _, e := range entities {
		entsByChunk[e.ChunkIndex] = append(entsByChunk[e.ChunkIndex], e)
	}

	// Chunks run in small concurrent batches; results land in per-chunk
	// slots so the aggregate order is deterministic.
	results := make([][]entity.Relationship, len(chunks))
	for start := 0; start < len(chunks); start += u.cfg.RelationBatchSize {
		end := start + u.cfg.RelationBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			chunk := chunks[i]
			chunkEnts := entsByChunk[chunk.Index]
			if len(chunkEnts) < 2 {
				continue
			}
			wg.Add(1)
			go func(slot int, chunk entity.Chunk, ents []entity.Entity) {
				defer wg.Done()
				rels, err := u.relations.ExtractRelations(ctx, chunk.Text, chunk.Index, ents)
				if err != nil {
					// Fail soft: the chunk yields nothing.
					u.log.Warn("relationship extraction failed for chunk", "job_id", jobID, "chunk_index", chunk.Index, "error", err)
					return
				}
				results[slot] = rels
			}(i, chunk, chunkEnts)
		}
		wg.Wait()
	}

	all := make([]entity.Relationship, 0)
	for _, rels := range results {
		all = append(all, rels...)
	}

	if err := u.jobs.SaveRelationships(ctx, jobID, all); err != nil {
		u.fail(jobID, StageExtractRelationships, err)
		return
	}

	status := entity.StatusRelationshipsExtracted
	_, err := u.jobs.UpdateJob(ctx, jobID, entity.JobUpdate{
		Status: &status,
		Stats:  map[string]interface{}{"relationships_extracted": len(all)},
	})
	if err != nil {
		u.fail(jobID, StageExtractRelationships, err)
		return
	}
	u.log.Info("relationship extraction complete", "job_id", jobID, "relationships", len(all))
}

// VectorizeChunks embeds chunk texts and upserts them, optionally enriched
// with the entities and relationships anchored to each chunk. The document
// and chunk nodes are mirrored into the graph best-effort.
func (u *PipelineUseCase) VectorizeChunks(ctx context.Context, jobID string, enrich bool) (*entity.Job, int, error) {
	job, err := u.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}
	chunks, err := u.requireChunks(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}

	if err := u.setStatus(ctx, jobID, entity.StatusVectorizingChunks); err != nil {
		return nil, 0, err
	}
	documentID := job.File
	if err := u.launcher.Submit(jobID, StageVectorizeChunks, func() {
		u.runVectorizeChunks(jobID, documentID, chunks, enrich)
	}); err != nil {
		return nil, 0, err
	}

	job, err = u.jobs.GetJob(ctx, jobID)
	return job, len(chunks), err
}

func (u *PipelineUseCase) runVectorizeChunks(jobID, documentID string, chunks []entity.Chunk, enrich bool) {
	ctx := context.Background()

	if err := u.vectors.EnsureCollections(ctx); err != nil {
		u.fail(jobID, StageVectorizeChunks, err)
		return
	}

	entitiesByChunk := make(map[int][]string)
	relsByChunk := make(map[int][]entity.Relationship)
	if enrich {
		entities, err := u.optionalEntities(ctx, jobID)
		if err != nil {
			u.fail(jobID, StageVectorizeChunks, err)
			return
		}
		for _, e := range entities {
			entitiesByChunk[e.ChunkIndex] = append(entitiesByChunk[e.ChunkIndex], e.Text)
		}
		rels, _, err := u.optionalRelationships(ctx, jobID)
		if err != nil {
			u.fail(jobID, StageVectorizeChunks, err)
			return
		}
		for _, r := range rels {
			relsByChunk[r.ChunkIndex] = append(relsByChunk[r.ChunkIndex], r)
		}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := u.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		u.fail(jobID, StageVectorizeChunks, err)
		return
	}
	if err := u.validateDims(vectors, len(chunks)); err != nil {
		u.fail(jobID, StageVectorizeChunks, err)
		return
	}

	points := make([]entity.VectorPoint, len(chunks))
	for i, chunk := range chunks {
		payload := entity.ChunkPayload{
			Type:       string(entity.ResultChunk),
			DocumentID: documentID,
			ChunkIndex: chunk.Index,
			Text:       chunk.Text,
			Metadata:   chunk.Metadata,
		}
		if enrich {
			payload.Entities = entitiesByChunk[chunk.Index]
			payload.Relationships = relsByChunk[chunk.Index]
		}
		points[i] = entity.VectorPoint{
			ID:      entity.ChunkID(documentID, chunk.Index),
			Vector:  vectors[i],
			Payload: payload,
		}
	}

	if err := u.upsertBatches(ctx, jobID, collectionChunks, points); err != nil {
		u.fail(jobID, StageVectorizeChunks, err)
		return
	}

	// Graph mirroring is best-effort; an unreachable graph store does not
	// fail the stage.
	if err := u.graph.UpsertDocument(ctx, documentID); err != nil {
		u.log.Warn("graph document upsert failed", "job_id", jobID, "error", err)
	} else {
		for _, chunk := range chunks {
			if err := u.graph.UpsertChunk(ctx, documentID, entity.ChunkID(documentID, chunk.Index)); err != nil {
				u.log.Warn("graph chunk upsert failed", "job_id", jobID, "chunk_index", chunk.Index, "error", err)
				break
			}
		}
	}

	status := entity.StatusChunksVectorized
	_, err = u.jobs.UpdateJob(ctx, jobID, entity.JobUpdate{
		Status: &status,
		Stats: map[string]interface{}{
			"chunks_vectorized": len(points),
			"chunks_enriched":   enrich,
		},
	})
	if err != nil {
		u.fail(jobID, StageVectorizeChunks, err)
		return
	}
	u.log.Info("chunk vectorization complete", "job_id", jobID, "chunks", len(points))
}

// VectorizeEntities embeds entities as "name (TYPE)" and upserts them,
// optionally creating graph nodes and mention edges.
func (u *PipelineUseCase) VectorizeEntities(ctx context.Context, jobID string, storeGraph bool) (*entity.Job, int, error) {
	job, err := u.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}
	entities, err := u.optionalEntities(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}
	if len(entities) == 0 {
		return nil, 0, entity.Preconditionf("no entities found, run extract-entities first")
	}

	if err := u.setStatus(ctx, jobID, entity.StatusVectorizingEntities); err != nil {
		return nil, 0, err
	}
	documentID := job.File
	if err := u.launcher.Submit(jobID, StageVectorizeEntities, func() {
		u.runVectorizeEntities(jobID, documentID, entities, storeGraph)
	}); err != nil {
		return nil, 0, err
	}

	job, err = u.jobs.GetJob(ctx, jobID)
	return job, len(entities), err
}

func (u *PipelineUseCase) runVectorizeEntities(jobID, documentID string, entities []entity.Entity, storeGraph bool) {
	ctx := context.Background()

	if err := u.vectors.EnsureCollections(ctx); err != nil {
		u.fail(jobID, StageVectorizeEntities, err)
		return
	}

	texts := make([]string, len(entities))
	for i, e := range entities {
		texts[i] = fmt.Sprintf("%s (%s)", e.Text, e.Type)
	}
	vectors, err := u.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		u.fail(jobID, StageVectorizeEntities, err)
		return
	}
	if err := u.validateDims(vectors, len(entities)); err != nil {
		u.fail(jobID, StageVectorizeEntities, err)
		return
	}

	points := make([]entity.VectorPoint, len(entities))
	for i, e := range entities {
		points[i] = entity.VectorPoint{
			ID:     entity.EntityID(documentID, e.Text, e.Type),
			Vector: vectors[i],
			Payload: entity.EntityPayload{
				Type:         string(entity.ResultEntity),
				DocumentID:   documentID,
				Name:         e.Text,
				EntityType:   e.Type,
				Description:  e.Description,
				ChunkIndices: []int{e.ChunkIndex},
				Score:        e.Score,
			},
		}
	}

	if err := u.upsertBatches(ctx, jobID, collectionEntities, points); err != nil {
		u.fail(jobID, StageVectorizeEntities, err)
		return
	}

	graphNodes := 0
	if storeGraph {
		for _, e := range entities {
			if err := u.graph.UpsertEntity(ctx, e); err != nil {
				u.log.Warn("graph entity upsert failed", "job_id", jobID, "entity", e.Text, "error", err)
				continue
			}
			if err := u.graph.LinkEntityToChunk(ctx, e.Text, entity.ChunkID(documentID, e.ChunkIndex)); err != nil {
				u.log.Warn("graph mention edge failed", "job_id", jobID, "entity", e.Text, "error", err)
			}
			graphNodes++
		}
	}

	status := entity.StatusEntitiesVectorized
	_, err = u.jobs.UpdateJob(ctx, jobID, entity.JobUpdate{
		Status: &status,
		Stats: map[string]interface{}{
			"entities_vectorized": len(points),
			"graph_nodes":         graphNodes,
		},
	})
	if err != nil {
		u.fail(jobID, StageVectorizeEntities, err)
		return
	}
	u.log.Info("entity vectorization complete", "job_id", jobID, "entities", len(points), "graph_nodes", graphNodes)
}

// VectorizeRelationships embeds triples as "source relation target" and
// upserts them; it is the terminal stage. A job whose extraction produced
// zero relationships may still run it to reach complete. With cleanup set,
// the staged artifacts are deleted from the job store on success while the
// job record itself stays for status queries.
func (u *PipelineUseCase) VectorizeRelationships(ctx context.Context, jobID string, storeGraph, cleanup bool) (*entity.Job, int, error) {
	job, err := u.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}
	rels, recorded, err := u.optionalRelationships(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}
	// An empty set is acceptable once extraction has actually run: either
	// the status says so, or the (empty) artifact record exists — the
	// latter covers retrying after a failed attempt left the job in error.
	if len(rels) == 0 && !recorded && !statusReached(job.Status, entity.StatusRelationshipsExtracted) {
		return nil, 0, entity.Preconditionf("no relationships found, run extract-relationships first")
	}

	if err := u.setStatus(ctx, jobID, entity.StatusVectorizingRelationships); err != nil {
		return nil, 0, err
	}
	documentID := job.File
	if err := u.launcher.Submit(jobID, StageVectorizeRelationships, func() {
		u.runVectorizeRelationships(jobID, documentID, rels, storeGraph, cleanup)
	}); err != nil {
		return nil, 0, err
	}

	job, err = u.jobs.GetJob(ctx, jobID)
	return job, len(rels), err
}

func (u *PipelineUseCase) runVectorizeRelationships(jobID, documentID string, rels []entity.Relationship, storeGraph, cleanup bool) {
	ctx := context.Background()

	if err := u.vectors.EnsureCollections(ctx); err != nil {
		u.fail(jobID, StageVectorizeRelationships, err)
		return
	}

	texts := make([]string, len(rels))
	for i, r := range rels {
		texts[i] = fmt.Sprintf("%s %s %s", r.Source, r.Relation, r.Target)
	}
	vectors, err := u.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		u.fail(jobID, StageVectorizeRelationships, err)
		return
	}
	if err := u.validateDims(vectors, len(rels)); err != nil {
		u.fail(jobID, StageVectorizeRelationships, err)
		return
	}

	points := make([]entity.VectorPoint, len(rels))
	for i, r := range rels {
		points[i] = entity.VectorPoint{
			ID:     entity.RelationshipID(documentID, r.Source, r.Relation, r.Target),
			Vector: vectors[i],
			Payload: entity.RelationshipPayload{
				Type:       string(entity.ResultRelationship),
				DocumentID: documentID,
				Source:     r.Source,
				Relation:   r.Relation,
				Target:     r.Target,
				ChunkIndex: r.ChunkIndex,
			},
		}
	}

	if err := u.upsertBatches(ctx, jobID, collectionRelationships, points); err != nil {
		u.fail(jobID, StageVectorizeRelationships, err)
		return
	}

	graphEdges := 0
	if storeGraph {
		for _, r := range rels {
			if err := u.graph.UpsertRelationship(ctx, r); err != nil {
				u.log.Warn("graph edge upsert failed", "job_id", jobID, "relation", r.Relation, "error", err)
				continue
			}
			graphEdges++
		}
	}

	cleaned := false
	if cleanup {
		if err := u.jobs.DeleteArtifacts(ctx, jobID); err != nil {
			u.log.Warn("artifact cleanup failed", "job_id", jobID, "error", err)
		} else {
			cleaned = true
		}
	}

	status := entity.StatusComplete
	_, err = u.jobs.UpdateJob(ctx, jobID, entity.JobUpdate{
		Status: &status,
		Stats: map[string]interface{}{
			"relationships_vectorized": len(points),
			"graph_edges":              graphEdges,
			"artifacts_cleaned":        cleaned,
		},
	})
	if err != nil {
		u.fail(jobID, StageVectorizeRelationships, err)
		return
	}
	u.log.Info("pipeline complete", "job_id", jobID, "relationships", len(points), "graph_edges", graphEdges)
}

// Status returns the current job record.
func (u *PipelineUseCase) Status(ctx context.Context, jobID string) (*entity.Job, error) {
	return u.jobs.GetJob(ctx, jobID)
}

// ListJobs returns all live job records.
func (u *PipelineUseCase) ListJobs(ctx context.Context) ([]*entity.Job, error) {
	return u.jobs.ListJobs(ctx)
}

// DeleteJob removes the job record and all staged artifacts.
func (u *PipelineUseCase) DeleteJob(ctx context.Context, jobID string) error {
	return u.jobs.DeleteJob(ctx, jobID)
}

func (u *PipelineUseCase) requireChunks(ctx context.Context, jobID string) ([]entity.Chunk, error) {
	chunks, err := u.jobs.GetChunks(ctx, jobID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, entity.Preconditionf("no chunks found, run process first")
	}
	return chunks, nil
}

func (u *PipelineUseCase) optionalEntities(ctx context.Context, jobID string) ([]entity.Entity, error) {
	entities, err := u.jobs.GetEntities(ctx, jobID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	return entities, nil
}

// optionalRelationships reports, besides the triples themselves, whether
// the relationships record exists at all — an extraction that found
// nothing still writes an empty record, while a job that never ran the
// stage has none.
func (u *PipelineUseCase) optionalRelationships(ctx context.Context, jobID string) ([]entity.Relationship, bool, error) {
	rels, err := u.jobs.GetRelationships(ctx, jobID)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return rels, true, nil
}

// validateDims checks that the embedder returned one vector per input with
// the configured dimensionality. A mismatch is fatal for the stage.
func (u *PipelineUseCase) validateDims(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("embedder returned %d vectors for %d inputs", len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) != u.cfg.EmbeddingDims {
			return fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(v), u.cfg.EmbeddingDims)
		}
	}
	return nil
}

// upsertBatches writes points batch-by-batch; each committed batch is
// visible to readers before the stage finishes.
func (u *PipelineUseCase) upsertBatches(ctx context.Context, jobID, collection string, points []entity.VectorPoint) error {
	for start := 0; start < len(points); start += u.cfg.UpsertBatchSize {
		end := start + u.cfg.UpsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		if err := u.vectors.Upsert(ctx, collection, points[start:end]); err != nil {
			return fmt.Errorf("upsert batch into %s: %w", collection, err)
		}
		u.log.Debug("stored batch", "job_id", jobID, "collection", collection, "count", end-start)
	}
	return nil
}
