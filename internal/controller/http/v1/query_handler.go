package v1

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pedro9bee/rag-qdrant-neo4j/internal/domain/entity"
)

type QueryUseCase interface {
	Query(ctx context.Context, query string, topKVector, topKGraph, rerankTopK int) (*entity.QueryResponse, error)
}

type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type QueryHandler struct {
	UseCase  QueryUseCase
	Embedder TextEmbedder
}

func NewQueryHandler(u QueryUseCase, e TextEmbedder) *QueryHandler {
	return &QueryHandler{UseCase: u, Embedder: e}
}

type queryRequest struct {
	Query      string `json:"query" binding:"required"`
	TopKVector int    `json:"top_k_vector"`
	TopKGraph  int    `json:"top_k_graph"`
	RerankTopK int    `json:"rerank_top_k"`
}

func (h *QueryHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.UseCase.Query(c.Request.Context(), req.Query, req.TopKVector, req.TopKGraph, req.RerankTopK)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

type embedRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *QueryHandler) Embed(c *gin.Context) {
	var req embedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vector, err := h.Embedder.EmbedText(c.Request.Context(), req.Text)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"embedding": vector, "dimensions": len(vector)})
}

func (h *QueryHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "rag-qdrant-neo4j"})
}
