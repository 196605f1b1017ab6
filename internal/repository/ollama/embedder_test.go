package ollama

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEmbedder(embed func(ctx context.Context, texts []string) ([][]float32, error)) *Embedder {
	return &Embedder{embed: embed, dims: 4, log: testLogger()}
}

func constantVectors(dims int) func(ctx context.Context, texts []string) ([][]float32, error) {
	return func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = make([]float32, dims)
			out[i][0] = 1
		}
		return out, nil
	}
}

func TestEmbedTextsPreservesLength(t *testing.T) {
	e := testEmbedder(constantVectors(4))

	texts := make([]string, 123)
	for i := range texts {
		texts[i] = "text"
	}

	vectors, err := e.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vectors, 123)
}

func TestEmbedTextsMiniBatchRecovery(t *testing.T) {
	calls := 0
	embed := func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		// First call is the full batch; fail it so mini-batches run.
		if len(texts) > miniBatchSize {
			return nil, errors.New("model overloaded")
		}
		return constantVectors(4)(ctx, texts)
	}

	e := testEmbedder(embed)
	texts := make([]string, 25)
	for i := range texts {
		texts[i] = "text"
	}

	vectors, err := e.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 25)
	assert.Greater(t, calls, 1)
	for _, v := range vectors {
		assert.Equal(t, float32(1), v[0], "recovered batches must carry real vectors")
	}
}

func TestEmbedTextsZeroVectorFallback(t *testing.T) {
	embed := func(_ context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("model down")
	}

	e := testEmbedder(embed)
	vectors, err := e.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, v := range vectors {
		assert.Equal(t, make([]float32, 4), v)
	}
}

func TestEmbedTextsEmptyInput(t *testing.T) {
	e := testEmbedder(constantVectors(4))
	vectors, err := e.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}
