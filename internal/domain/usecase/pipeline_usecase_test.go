package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedro9bee/rag-qdrant-neo4j/internal/domain/entity"
)

// fakeJobStore keeps job state in maps, mirroring the four-keys-per-job
// layout of the real store.
type fakeJobStore struct {
	jobs     map[string]*entity.Job
	chunks   map[string][]entity.Chunk
	entities map[string][]entity.Entity
	rels     map[string][]entity.Relationship
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		jobs:     make(map[string]*entity.Job),
		chunks:   make(map[string][]entity.Chunk),
		entities: make(map[string][]entity.Entity),
		rels:     make(map[string][]entity.Relationship),
	}
}

func (s *fakeJobStore) CreateJob(_ context.Context, job *entity.Job) error {
	copied := *job
	s.jobs[job.JobID] = &copied
	return nil
}

func (s *fakeJobStore) GetJob(_ context.Context, jobID string) (*entity.Job, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, entity.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *fakeJobStore) UpdateJob(ctx context.Context, jobID string, upd entity.JobUpdate) (*entity.Job, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, entity.ErrJobNotFound
	}
	upd.Apply(job)
	copied := *job
	return &copied, nil
}

func (s *fakeJobStore) SaveChunks(_ context.Context, jobID string, chunks []entity.Chunk) error {
	s.chunks[jobID] = chunks
	return nil
}

func (s *fakeJobStore) GetChunks(_ context.Context, jobID string) ([]entity.Chunk, error) {
	chunks, ok := s.chunks[jobID]
	if !ok {
		return nil, entity.ErrJobNotFound
	}
	return chunks, nil
}

func (s *fakeJobStore) SaveEntities(_ context.Context, jobID string, entities []entity.Entity) error {
	s.entities[jobID] = entities
	return nil
}

func (s *fakeJobStore) GetEntities(_ context.Context, jobID string) ([]entity.Entity, error) {
	entities, ok := s.entities[jobID]
	if !ok {
		return nil, entity.ErrJobNotFound
	}
	return entities, nil
}

func (s *fakeJobStore) SaveRelationships(_ context.Context, jobID string, rels []entity.Relationship) error {
	s.rels[jobID] = rels
	return nil
}

func (s *fakeJobStore) GetRelationships(_ context.Context, jobID string) ([]entity.Relationship, error) {
	rels, ok := s.rels[jobID]
	if !ok {
		return nil, entity.ErrJobNotFound
	}
	return rels, nil
}

func (s *fakeJobStore) ListJobs(_ context.Context) ([]*entity.Job, error) {
	var jobs []*entity.Job
	for _, job := range s.jobs {
		copied := *job
		jobs = append(jobs, &copied)
	}
	return jobs, nil
}

func (s *fakeJobStore) DeleteJob(_ context.Context, jobID string) error {
	if _, ok := s.jobs[jobID]; !ok {
		return entity.ErrJobNotFound
	}
	delete(s.jobs, jobID)
	delete(s.chunks, jobID)
	delete(s.entities, jobID)
	delete(s.rels, jobID)
	return nil
}

func (s *fakeJobStore) DeleteArtifacts(_ context.Context, jobID string) error {
	delete(s.chunks, jobID)
	delete(s.entities, jobID)
	delete(s.rels, jobID)
	return nil
}

// syncLauncher runs stage units inline so tests observe terminal states.
type syncLauncher struct{}

func (syncLauncher) Submit(_, _ string, task func()) error {
	task()
	return nil
}

type fakeStorage struct {
	size    int64
	content string
	statErr error
}

func (f *fakeStorage) Stat(context.Context, string, string) (int64, error) {
	if f.statErr != nil {
		return 0, f.statErr
	}
	return f.size, nil
}

func (f *fakeStorage) Download(context.Context, string, string) (string, error) {
	return f.content, nil
}

type fakeEmbedder struct {
	dims int
	err  error
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dims)
		out[i][0] = 1
	}
	return out, nil
}

type fakeEntityExtractor struct {
	byChunk map[int][]entity.Entity
}

func (f *fakeEntityExtractor) ExtractEntities(_ context.Context, _ string, chunkIndex int) ([]entity.Entity, error) {
	return f.byChunk[chunkIndex], nil
}

type fakeRelationExtractor struct {
	byChunk map[int][]entity.Relationship
}

func (f *fakeRelationExtractor) ExtractRelations(_ context.Context, _ string, chunkIndex int, _ []entity.Entity) ([]entity.Relationship, error) {
	return f.byChunk[chunkIndex], nil
}

type fakeVectorStore struct {
	upserts   map[string][]entity.VectorPoint
	ensureErr error
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{upserts: make(map[string][]entity.VectorPoint)}
}

func (f *fakeVectorStore) EnsureCollections(context.Context) error { return f.ensureErr }

func (f *fakeVectorStore) Upsert(_ context.Context, collection string, points []entity.VectorPoint) error {
	f.upserts[collection] = append(f.upserts[collection], points...)
	return nil
}

type fakeGraphStore struct {
	documents int
	chunks    int
	entities  int
	mentions  int
	edges     int
}

func (f *fakeGraphStore) UpsertDocument(context.Context, string) error { f.documents++; return nil }
func (f *fakeGraphStore) UpsertChunk(context.Context, string, string) error {
	f.chunks++
	return nil
}
func (f *fakeGraphStore) UpsertEntity(context.Context, entity.Entity) error {
	f.entities++
	return nil
}
func (f *fakeGraphStore) LinkEntityToChunk(context.Context, string, string) error {
	f.mentions++
	return nil
}
func (f *fakeGraphStore) UpsertRelationship(context.Context, entity.Relationship) error {
	f.edges++
	return nil
}

type pipelineFixture struct {
	uc        *PipelineUseCase
	jobs      *fakeJobStore
	storage   *fakeStorage
	embedder  *fakeEmbedder
	extractor *fakeEntityExtractor
	relations *fakeRelationExtractor
	vectors   *fakeVectorStore
	graph     *fakeGraphStore
}

func newPipelineFixture() *pipelineFixture {
	f := &pipelineFixture{
		jobs:      newFakeJobStore(),
		storage:   &fakeStorage{size: 1024, content: threeParagraphDoc()},
		embedder:  &fakeEmbedder{dims: 8},
		extractor: &fakeEntityExtractor{byChunk: map[int][]entity.Entity{}},
		relations: &fakeRelationExtractor{byChunk: map[int][]entity.Relationship{}},
		vectors:   newFakeVectorStore(),
		graph:     &fakeGraphStore{},
	}
	f.uc = NewPipelineUseCase(
		f.jobs, f.storage, f.embedder, f.extractor, f.relations, f.vectors, f.graph,
		syncLauncher{},
		PipelineConfig{
			ChunkSize:     80,
			ChunkOverlap:  20,
			EmbeddingDims: 8,
			MaxFileSizeMB: 50,
		},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f
}

func threeParagraphDoc() string {
	return "First paragraph with some introductory words for the test document.\n\n" +
		"Second paragraph that carries the body of the document onward with detail.\n\n" +
		"Third paragraph closing out the text with a final thought and summary."
}

func TestProcessChunksDocument(t *testing.T) {
	f := newPipelineFixture()
	ctx := context.Background()

	job, err := f.uc.Process(ctx, "docs", "guide.md", 0, -1)
	require.NoError(t, err)

	final, err := f.uc.Status(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusChunksReady, final.Status)
	assert.Empty(t, final.Error)

	chunks := f.jobs.chunks[job.JobID]
	require.GreaterOrEqual(t, len(chunks), 2)
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 80+20+2)
		if i > 0 {
			assert.Greater(t, c.StartChar, chunks[i-1].StartChar)
		}
	}
	assert.EqualValues(t, len(chunks), final.Stats["chunks"])
	assert.InDelta(t, 100.0, final.Progress.Percentage, 1e-9)
}

func TestProcessRejectsMissingObject(t *testing.T) {
	f := newPipelineFixture()
	f.storage.statErr = entity.ErrObjectNotFound

	_, err := f.uc.Process(context.Background(), "docs", "absent.md", 0, -1)
	assert.ErrorIs(t, err, entity.ErrObjectNotFound)
}

func TestProcessRejectsOversizedFile(t *testing.T) {
	f := newPipelineFixture()
	f.storage.size = 51 * 1024 * 1024

	_, err := f.uc.Process(context.Background(), "docs", "huge.md", 0, -1)
	assert.ErrorIs(t, err, entity.ErrFileTooLarge)
}

func TestExtractEntitiesRequiresChunks(t *testing.T) {
	f := newPipelineFixture()
	job := entity.NewJob("job-1", "docs", "guide.md")
	require.NoError(t, f.jobs.CreateJob(context.Background(), job))

	_, _, err := f.uc.ExtractEntities(context.Background(), "job-1")
	var pre *entity.PreconditionError
	assert.ErrorAs(t, err, &pre)
}

func TestStageOnUnknownJob(t *testing.T) {
	f := newPipelineFixture()

	_, _, err := f.uc.ExtractEntities(context.Background(), "nope")
	assert.ErrorIs(t, err, entity.ErrJobNotFound)
}

func TestExtractRelationshipsWithZeroEntities(t *testing.T) {
	f := newPipelineFixture()
	ctx := context.Background()

	job, err := f.uc.Process(ctx, "docs", "guide.md", 0, -1)
	require.NoError(t, err)

	// No entity extraction ran; the stage must still complete empty.
	_, _, _, err = f.uc.ExtractRelationships(ctx, job.JobID)
	require.NoError(t, err)

	final, err := f.uc.Status(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRelationshipsExtracted, final.Status)
	assert.Empty(t, f.jobs.rels[job.JobID])
	assert.EqualValues(t, 0, final.Stats["relationships_extracted"])
}

func TestVectorizeRelationshipsRetryAfterErrorWithEmptySet(t *testing.T) {
	f := newPipelineFixture()
	ctx := context.Background()

	job, err := f.uc.Process(ctx, "docs", "guide.md", 0, -1)
	require.NoError(t, err)
	_, _, _, err = f.uc.ExtractRelationships(ctx, job.JobID)
	require.NoError(t, err)

	// First attempt fails against an unreachable vector store.
	f.vectors.ensureErr = errors.New("vector store unreachable")
	_, _, err = f.uc.VectorizeRelationships(ctx, job.JobID, true, false)
	require.NoError(t, err)

	failed, err := f.uc.Status(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusError, failed.Status)

	// Re-invoking the stage is the recovery path, even with zero triples.
	f.vectors.ensureErr = nil
	_, _, err = f.uc.VectorizeRelationships(ctx, job.JobID, true, false)
	require.NoError(t, err)

	final, err := f.uc.Status(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusComplete, final.Status)
	assert.Empty(t, final.Error)
	assert.EqualValues(t, 0, final.Stats["relationships_vectorized"])
}

func TestVectorizeChunksWrongDimensions(t *testing.T) {
	f := newPipelineFixture()
	ctx := context.Background()

	job, err := f.uc.Process(ctx, "docs", "guide.md", 0, -1)
	require.NoError(t, err)

	f.embedder.dims = 4 // configured dimensionality is 8

	_, _, err = f.uc.VectorizeChunks(ctx, job.JobID, true)
	require.NoError(t, err) // launch succeeds; the unit fails

	final, err := f.uc.Status(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusError, final.Status)
	assert.Contains(t, final.Error, "dimension")
	assert.NotEqual(t, entity.StatusChunksVectorized, final.Status)
	assert.Empty(t, f.vectors.upserts[collectionChunks])
}

func TestStageRetryClearsError(t *testing.T) {
	f := newPipelineFixture()
	ctx := context.Background()

	job, err := f.uc.Process(ctx, "docs", "guide.md", 0, -1)
	require.NoError(t, err)

	f.embedder.err = errors.New("model down")
	_, _, err = f.uc.VectorizeChunks(ctx, job.JobID, false)
	require.NoError(t, err)

	failed, err := f.uc.Status(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusError, failed.Status)

	// Re-invoking the same stage is the recovery path.
	f.embedder.err = nil
	_, _, err = f.uc.VectorizeChunks(ctx, job.JobID, false)
	require.NoError(t, err)

	recovered, err := f.uc.Status(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusChunksVectorized, recovered.Status)
	assert.Empty(t, recovered.Error)
}

func TestVectorizeEntitiesRequiresEntities(t *testing.T) {
	f := newPipelineFixture()
	ctx := context.Background()

	job, err := f.uc.Process(ctx, "docs", "guide.md", 0, -1)
	require.NoError(t, err)

	_, _, err = f.uc.VectorizeEntities(ctx, job.JobID, true)
	var pre *entity.PreconditionError
	assert.ErrorAs(t, err, &pre)
}

func TestDeleteJobRemovesEverything(t *testing.T) {
	f := newPipelineFixture()
	ctx := context.Background()

	job, err := f.uc.Process(ctx, "docs", "guide.md", 0, -1)
	require.NoError(t, err)

	require.NoError(t, f.uc.DeleteJob(ctx, job.JobID))

	_, err = f.uc.Status(ctx, job.JobID)
	assert.ErrorIs(t, err, entity.ErrJobNotFound)
	assert.ErrorIs(t, f.uc.DeleteJob(ctx, job.JobID), entity.ErrJobNotFound)
}

func TestPipelineEndToEnd(t *testing.T) {
	f := newPipelineFixture()
	ctx := context.Background()

	job, err := f.uc.Process(ctx, "docs", "guide.md", 0, -1)
	require.NoError(t, err)
	jobID := job.JobID

	chunks := f.jobs.chunks[jobID]
	require.GreaterOrEqual(t, len(chunks), 2)

	// Two entities in the first chunk, one in the second.
	f.extractor.byChunk = map[int][]entity.Entity{
		0: {
			{Text: "Qdrant", Type: "PRODUCT", Description: "d", Score: 0.9, ChunkIndex: 0},
			{Text: "Acme", Type: "ORG", Description: "d", Score: 0.8, ChunkIndex: 0},
		},
		1: {{Text: "Redis", Type: "PRODUCT", Description: "d", Score: 0.7, ChunkIndex: 1}},
	}
	f.relations.byChunk = map[int][]entity.Relationship{
		0: {{Source: "Acme", Relation: "uses", Target: "Qdrant", ChunkIndex: 0}},
	}

	_, _, err = f.uc.ExtractEntities(ctx, jobID)
	require.NoError(t, err)
	mid, _ := f.uc.Status(ctx, jobID)
	require.Equal(t, entity.StatusEntitiesValidated, mid.Status)
	require.Len(t, f.jobs.entities[jobID], 3)

	_, _, _, err = f.uc.ExtractRelationships(ctx, jobID)
	require.NoError(t, err)
	mid, _ = f.uc.Status(ctx, jobID)
	require.Equal(t, entity.StatusRelationshipsExtracted, mid.Status)
	require.Len(t, f.jobs.rels[jobID], 1)

	_, _, err = f.uc.VectorizeChunks(ctx, jobID, true)
	require.NoError(t, err)
	mid, _ = f.uc.Status(ctx, jobID)
	require.Equal(t, entity.StatusChunksVectorized, mid.Status)
	require.Len(t, f.vectors.upserts[collectionChunks], len(chunks))

	// Enriched payload carries the chunk's entities.
	first := f.vectors.upserts[collectionChunks][0].Payload.(entity.ChunkPayload)
	assert.ElementsMatch(t, []string{"Qdrant", "Acme"}, first.Entities)
	assert.Equal(t, entity.ChunkID("guide.md", 0), f.vectors.upserts[collectionChunks][0].ID)
	assert.Equal(t, 1, f.graph.documents)
	assert.Equal(t, len(chunks), f.graph.chunks)

	_, _, err = f.uc.VectorizeEntities(ctx, jobID, true)
	require.NoError(t, err)
	mid, _ = f.uc.Status(ctx, jobID)
	require.Equal(t, entity.StatusEntitiesVectorized, mid.Status)
	require.Len(t, f.vectors.upserts[collectionEntities], 3)
	assert.Equal(t, 3, f.graph.entities)

	_, _, err = f.uc.VectorizeRelationships(ctx, jobID, true, true)
	require.NoError(t, err)

	final, err := f.uc.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusComplete, final.Status)
	assert.Equal(t, 1, f.graph.edges)
	require.Len(t, f.vectors.upserts[collectionRelationships], 1)
	assert.Equal(t,
		entity.RelationshipID("guide.md", "Acme", "uses", "Qdrant"),
		f.vectors.upserts[collectionRelationships][0].ID)

	// Cleanup removed the staged artifacts but kept the record.
	assert.NotContains(t, f.jobs.chunks, jobID)
	assert.NotContains(t, f.jobs.entities, jobID)
	assert.NotContains(t, f.jobs.rels, jobID)
	assert.EqualValues(t, true, final.Stats["artifacts_cleaned"])

	// Deterministic ids: the stored chunk ids are pure functions of
	// document and index.
	assert.Equal(t, entity.ChunkID("guide.md", 1), f.vectors.upserts[collectionChunks][1].ID)
}
