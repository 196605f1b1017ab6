package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pedro9bee/rag-qdrant-neo4j/internal/domain/entity"
)

type PipelineUseCase interface {
	Process(ctx context.Context, bucket, file string, chunkSize, chunkOverlap int) (*entity.Job, error)
	ExtractEntities(ctx context.Context, jobID string) (*entity.Job, int, error)
	ExtractRelationships(ctx context.Context, jobID string) (*entity.Job, int, int, error)
	VectorizeChunks(ctx context.Context, jobID string, enrich bool) (*entity.Job, int, error)
	VectorizeEntities(ctx context.Context, jobID string, storeGraph bool) (*entity.Job, int, error)
	VectorizeRelationships(ctx context.Context, jobID string, storeGraph, cleanup bool) (*entity.Job, int, error)
	Status(ctx context.Context, jobID string) (*entity.Job, error)
	ListJobs(ctx context.Context) ([]*entity.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
}

type PipelineHandler struct {
	UseCase PipelineUseCase
}

func NewPipelineHandler(u PipelineUseCase) *PipelineHandler {
	return &PipelineHandler{UseCase: u}
}

// writeError maps domain errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	var pre *entity.PreconditionError
	switch {
	case errors.Is(err, entity.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, entity.ErrObjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found in storage"})
	case errors.Is(err, entity.ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.As(err, &pre):
		c.JSON(http.StatusBadRequest, gin.H{"error": pre.Reason})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type processRequest struct {
	Bucket       string `json:"bucket" binding:"required"`
	File         string `json:"file" binding:"required"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap *int   `json:"chunk_overlap"`
}

func (h *PipelineHandler) Process(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Pointer so an explicit 0 is distinguishable from an absent field.
	overlap := -1 // fall back to the configured default
	if req.ChunkOverlap != nil {
		overlap = *req.ChunkOverlap
	}

	job, err := h.UseCase.Process(c.Request.Context(), req.Bucket, req.File, req.ChunkSize, overlap)
	if err != nil {
		writeError(c, err)
		return
	}
	estimated := 0
	if job.ChunkSize > 0 {
		estimated = int(job.FileSizeMB*1024*1024)/job.ChunkSize + 1
	}
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":           job.JobID,
		"status":           job.Status,
		"file_size_mb":     job.FileSizeMB,
		"estimated_chunks": estimated,
		"message":          "Processing started in background. Use /status to monitor progress.",
	})
}

type jobRequest struct {
	JobID string `json:"job_id" binding:"required"`
}

func (h *PipelineHandler) ExtractEntities(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, chunks, err := h.UseCase.ExtractEntities(c.Request.Context(), req.JobID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id":       job.JobID,
		"status":       job.Status,
		"chunks_total": chunks,
		"message":      "Entity extraction started in background. Use /status to monitor progress.",
	})
}

func (h *PipelineHandler) ExtractRelationships(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, chunks, entities, err := h.UseCase.ExtractRelationships(c.Request.Context(), req.JobID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id":         job.JobID,
		"status":         job.Status,
		"chunks_total":   chunks,
		"entities_total": entities,
		"message":        "Relationship extraction started in background. Use /status to monitor progress.",
	})
}

type vectorizeChunksRequest struct {
	JobID  string `json:"job_id" binding:"required"`
	Enrich *bool  `json:"enrich"`
}

func (h *PipelineHandler) VectorizeChunks(c *gin.Context) {
	var req vectorizeChunksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	enrich := req.Enrich == nil || *req.Enrich

	job, chunks, err := h.UseCase.VectorizeChunks(c.Request.Context(), req.JobID, enrich)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id":       job.JobID,
		"status":       job.Status,
		"chunks_count": chunks,
		"enrich":       enrich,
		"message":      "Chunk vectorization started in background. Use /status to monitor progress.",
	})
}

type vectorizeEntitiesRequest struct {
	JobID      string `json:"job_id" binding:"required"`
	StoreGraph *bool  `json:"store_graph"`
}

func (h *PipelineHandler) VectorizeEntities(c *gin.Context) {
	var req vectorizeEntitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	storeGraph := req.StoreGraph == nil || *req.StoreGraph

	job, entities, err := h.UseCase.VectorizeEntities(c.Request.Context(), req.JobID, storeGraph)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id":         job.JobID,
		"status":         job.Status,
		"entities_count": entities,
		"store_graph":    storeGraph,
		"message":        "Entity vectorization started in background. Use /status to monitor progress.",
	})
}

type vectorizeRelationshipsRequest struct {
	JobID      string `json:"job_id" binding:"required"`
	StoreGraph *bool  `json:"store_graph"`
	Cleanup    bool   `json:"cleanup"`
}

func (h *PipelineHandler) VectorizeRelationships(c *gin.Context) {
	var req vectorizeRelationshipsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	storeGraph := req.StoreGraph == nil || *req.StoreGraph

	job, rels, err := h.UseCase.VectorizeRelationships(c.Request.Context(), req.JobID, storeGraph, req.Cleanup)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id":              job.JobID,
		"status":              job.Status,
		"relationships_count": rels,
		"store_graph":         storeGraph,
		"cleanup":             req.Cleanup,
		"message":             "Relationship vectorization started in background. Use /status to monitor progress.",
	})
}

func (h *PipelineHandler) Status(c *gin.Context) {
	job, err := h.UseCase.Status(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *PipelineHandler) ListJobs(c *gin.Context) {
	jobs, err := h.UseCase.ListJobs(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if jobs == nil {
		jobs = []*entity.Job{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

func (h *PipelineHandler) DeleteJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if err := h.UseCase.DeleteJob(c.Request.Context(), jobID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "message": "job deleted"})
}
