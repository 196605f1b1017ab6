package ollama

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	embeddingBatchSize = 50
	miniBatchSize      = 10
)

// Embedder generates embeddings through an OpenAI-compatible endpoint such
// as Ollama. Batches that fail are retried in mini-batches; a mini-batch
// that still fails yields zero vectors so the caller keeps positional
// alignment with its input texts.
type Embedder struct {
	embed func(ctx context.Context, texts []string) ([][]float32, error)
	dims  int
	log   *slog.Logger
}

func NewEmbedder(baseURL, model string, dims int, logger *slog.Logger) (*Embedder, error) {
	// "none" satisfies clients of local services that skip authentication.
	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken("none"),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{
		embed: embedder.EmbedDocuments,
		dims:  dims,
		log:   logger.With("component", "embedder"),
	}, nil
}

// EmbedText embeds a single string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vector")
	}
	return vectors[0], nil
}

// EmbedTexts embeds a slice of strings, preserving order and length. The
// returned slice always has exactly len(texts) entries.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vectors, err := e.embed(ctx, batch)
		if err == nil {
			all = append(all, vectors...)
			continue
		}
		e.log.Warn("embedding batch failed, retrying in mini-batches",
			"batch_start", start, "batch_size", len(batch), "error", err)
		all = append(all, e.embedMini(ctx, batch)...)
	}
	return all, nil
}

func (e *Embedder) embedMini(ctx context.Context, batch []string) [][]float32 {
	out := make([][]float32, 0, len(batch))
	for start := 0; start < len(batch); start += miniBatchSize {
		end := start + miniBatchSize
		if end > len(batch) {
			end = len(batch)
		}
		mini := batch[start:end]

		vectors, err := e.embed(ctx, mini)
		if err != nil {
			e.log.Error("mini-batch failed, substituting zero vectors",
				"size", len(mini), "error", err)
			for range mini {
				out = append(out, make([]float32, e.dims))
			}
			continue
		}
		out = append(out, vectors...)
	}
	return out
}
