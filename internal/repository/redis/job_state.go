package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pedro9bee/rag-qdrant-neo4j/internal/domain/entity"
)

const (
	stageMetadata      = "metadata"
	stageChunks        = "chunks"
	stageEntities      = "entities"
	stageRelationships = "relationships"
)

// JobStateRepo persists job records and staged pipeline artifacts in Redis.
// Each job owns four keys (job:{id}:{stage}); every write refreshes the TTL
// so a job's keys expire together after the configured retention window.
type JobStateRepo struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewJobStateRepo(client *redis.Client, ttl time.Duration, logger *slog.Logger) *JobStateRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobStateRepo{
		client: client,
		ttl:    ttl,
		log:    logger.With("component", "job_store"),
	}
}

func key(jobID, stage string) string {
	return "job:" + jobID + ":" + stage
}

func (r *JobStateRepo) setJSON(ctx context.Context, k string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", k, err)
	}
	if err := r.client.SetEx(ctx, k, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", k, err)
	}
	return nil
}

func (r *JobStateRepo) getJSON(ctx context.Context, k string, dst interface{}) error {
	data, err := r.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return entity.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", k, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", k, err)
	}
	return nil
}

func (r *JobStateRepo) CreateJob(ctx context.Context, job *entity.Job) error {
	return r.setJSON(ctx, key(job.JobID, stageMetadata), job)
}

func (r *JobStateRepo) GetJob(ctx context.Context, jobID string) (*entity.Job, error) {
	var job entity.Job
	if err := r.getJSON(ctx, key(jobID, stageMetadata), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJob applies a partial update to the job record using
// read-modify-write. Concurrent stage invocations for the same job are a
// caller-level invariant; the last writer wins.
func (r *JobStateRepo) UpdateJob(ctx context.Context, jobID string, upd entity.JobUpdate) (*entity.Job, error) {
	job, err := r.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	upd.Apply(job)
	if err := r.setJSON(ctx, key(jobID, stageMetadata), job); err != nil {
		return nil, err
	}
	return job, nil
}

func (r *JobStateRepo) SaveChunks(ctx context.Context, jobID string, chunks []entity.Chunk) error {
	return r.setJSON(ctx, key(jobID, stageChunks), chunks)
}

func (r *JobStateRepo) GetChunks(ctx context.Context, jobID string) ([]entity.Chunk, error) {
	var chunks []entity.Chunk
	if err := r.getJSON(ctx, key(jobID, stageChunks), &chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *JobStateRepo) SaveEntities(ctx context.Context, jobID string, entities []entity.Entity) error {
	return r.setJSON(ctx, key(jobID, stageEntities), entities)
}

func (r *JobStateRepo) GetEntities(ctx context.Context, jobID string) ([]entity.Entity, error) {
	var entities []entity.Entity
	if err := r.getJSON(ctx, key(jobID, stageEntities), &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *JobStateRepo) SaveRelationships(ctx context.Context, jobID string, rels []entity.Relationship) error {
	return r.setJSON(ctx, key(jobID, stageRelationships), rels)
}

func (r *JobStateRepo) GetRelationships(ctx context.Context, jobID string) ([]entity.Relationship, error) {
	var rels []entity.Relationship
	if err := r.getJSON(ctx, key(jobID, stageRelationships), &rels); err != nil {
		return nil, err
	}
	return rels, nil
}

// ListJobs scans for metadata keys and loads each job record. Jobs whose
// record expires between the scan and the load are skipped.
func (r *JobStateRepo) ListJobs(ctx context.Context) ([]*entity.Job, error) {
	var jobs []*entity.Job
	iter := r.client.Scan(ctx, 0, key("*", stageMetadata), 100).Iterator()
	for iter.Next(ctx) {
		var job entity.Job
		err := r.getJSON(ctx, iter.Val(), &job)
		if errors.Is(err, entity.ErrJobNotFound) {
			continue
		}
		if err != nil {
			r.log.Warn("skipping unreadable job record", "key", iter.Val(), "error", err)
			continue
		}
		jobs = append(jobs, &job)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan jobs: %w", err)
	}
	return jobs, nil
}

// DeleteJob removes all four keys of a job in a single DEL, so the group
// disappears atomically.
func (r *JobStateRepo) DeleteJob(ctx context.Context, jobID string) error {
	n, err := r.client.Del(ctx,
		key(jobID, stageMetadata),
		key(jobID, stageChunks),
		key(jobID, stageEntities),
		key(jobID, stageRelationships),
	).Result()
	if err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	if n == 0 {
		return entity.ErrJobNotFound
	}
	return nil
}

// DeleteArtifacts removes the staged chunk, entity and relationship keys
// but keeps the job record, so status stays queryable after cleanup.
func (r *JobStateRepo) DeleteArtifacts(ctx context.Context, jobID string) error {
	err := r.client.Del(ctx,
		key(jobID, stageChunks),
		key(jobID, stageEntities),
		key(jobID, stageRelationships),
	).Err()
	if err != nil {
		return fmt.Errorf("delete artifacts of %s: %w", jobID, err)
	}
	return nil
}
