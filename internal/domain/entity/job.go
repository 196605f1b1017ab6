package entity

import (
	"errors"
	"time"
)

type JobStatus string

const (
	StatusCreated                  JobStatus = "created"
	StatusProcessing               JobStatus = "processing"
	StatusDownloading              JobStatus = "downloading"
	StatusChunking                 JobStatus = "chunking"
	StatusChunksReady              JobStatus = "chunks_ready"
	StatusExtractingEntities       JobStatus = "extracting_entities"
	StatusEntitiesValidated        JobStatus = "entities_validated"
	StatusExtractingRelationships  JobStatus = "extracting_relationships"
	StatusRelationshipsExtracted   JobStatus = "relationships_extracted"
	StatusVectorizingChunks        JobStatus = "vectorizing_chunks"
	StatusChunksVectorized         JobStatus = "chunks_vectorized"
	StatusVectorizingEntities      JobStatus = "vectorizing_entities"
	StatusEntitiesVectorized       JobStatus = "entities_vectorized"
	StatusVectorizingRelationships JobStatus = "vectorizing_relationships"
	StatusComplete                 JobStatus = "complete"
	StatusError                    JobStatus = "error"
)

// ErrJobNotFound is returned when a job id has no metadata record, either
// because it never existed or because its retention window expired.
var ErrJobNotFound = errors.New("job not found")

type Progress struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Job tracks one document's passage through the ingestion pipeline.
// The record is mutated only by stage units, one logical writer at a time,
// and expires from the job store after the retention window.
type Job struct {
	JobID        string                 `json:"job_id"`
	Bucket       string                 `json:"bucket"`
	File         string                 `json:"file"`
	Status       JobStatus              `json:"status"`
	ChunkSize    int                    `json:"chunk_size"`
	ChunkOverlap int                    `json:"chunk_overlap"`
	FileSizeMB   float64                `json:"file_size_mb"`
	Progress     Progress               `json:"progress"`
	Stats        map[string]interface{} `json:"stats"`
	Error        string                 `json:"error,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// NewJob builds a fresh job record in the created state.
func NewJob(jobID, bucket, file string) *Job {
	now := time.Now().UTC()
	return &Job{
		JobID:     jobID,
		Bucket:    bucket,
		File:      file,
		Status:    StatusCreated,
		Stats:     make(map[string]interface{}),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobUpdate describes a partial mutation of a job record. Nil fields are
// left untouched; Stats entries are merged into the existing map.
type JobUpdate struct {
	Status     *JobStatus
	Progress   *Progress
	Stats      map[string]interface{}
	Error      string
	ClearError bool
}

// Apply merges the update into the job in place and refreshes UpdatedAt.
// Setting Error forces the status to StatusError; progress percentage is
// recomputed whenever the total is known.
func (u JobUpdate) Apply(job *Job) {
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.Progress != nil {
		job.Progress.Current = u.Progress.Current
		job.Progress.Total = u.Progress.Total
		if job.Progress.Total > 0 {
			job.Progress.Percentage = float64(job.Progress.Current) / float64(job.Progress.Total) * 100
		}
	}
	if len(u.Stats) > 0 {
		if job.Stats == nil {
			job.Stats = make(map[string]interface{}, len(u.Stats))
		}
		for k, v := range u.Stats {
			job.Stats[k] = v
		}
	}
	if u.ClearError {
		job.Error = ""
	}
	if u.Error != "" {
		job.Error = u.Error
		job.Status = StatusError
	}
	job.UpdatedAt = time.Now().UTC()
}
