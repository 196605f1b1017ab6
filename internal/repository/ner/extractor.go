package ner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/pedro9bee/rag-qdrant-neo4j/internal/domain/entity"
)

const defaultDescription = "Entity extracted from context"

// Extractor runs a local ONNX token-classification model to pull named
// entities from chunk text. Labels outside the configured set and
// predictions below the score threshold are dropped.
type Extractor struct {
	session   *hugot.Session
	run       func(texts []string) ([][]nerEntity, error)
	labels    map[string]bool
	threshold float32
	log       *slog.Logger
}

type nerEntity struct {
	Label string
	Word  string
	Score float32
}

// PrepareModel downloads the ONNX model into modelDir if it is not already
// present and returns the resolved path.
func PrepareModel(modelName, modelDir string) (string, error) {
	modelPath := filepath.Join(modelDir, strings.ReplaceAll(modelName, "/", "_"))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	}

	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory: %w", err)
	}
	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = "onnx/model.onnx"
	downloaded, err := hugot.DownloadModel(modelName, modelDir, opts)
	if err != nil {
		return "", fmt.Errorf("download model %s: %w", modelName, err)
	}
	return downloaded, nil
}

// NewExtractor loads the model at modelPath into a Go-backend hugot
// session. Close must be called to release the session.
func NewExtractor(modelPath string, labels []string, threshold float32, logger *slog.Logger) (*Extractor, error) {
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("create hugot session: %w", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "ner-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("create NER pipeline: %w", err)
	}

	labelSet := make(map[string]bool, len(labels))
	for _, l := range labels {
		labelSet[strings.ToUpper(l)] = true
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		session: session,
		run: func(texts []string) ([][]nerEntity, error) {
			result, err := nerPipeline.RunPipeline(texts)
			if err != nil {
				return nil, err
			}
			out := make([][]nerEntity, len(result.Entities))
			for i, doc := range result.Entities {
				for _, e := range doc {
					out[i] = append(out[i], nerEntity{Label: e.Entity, Word: e.Word, Score: e.Score})
				}
			}
			return out, nil
		},
		labels:    labelSet,
		threshold: threshold,
		log:       logger.With("component", "entity_extractor"),
	}, nil
}

// ExtractEntities runs NER over one chunk's text and tags each surviving
// prediction with the chunk index.
func (x *Extractor) ExtractEntities(ctx context.Context, text string, chunkIndex int) ([]entity.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs, err := x.run([]string{text})
	if err != nil {
		return nil, fmt.Errorf("run NER on chunk %d: %w", chunkIndex, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	var entities []entity.Entity
	for _, p := range docs[0] {
		if p.Score < x.threshold {
			continue
		}
		label := normalizeLabel(p.Label)
		if len(x.labels) > 0 && !x.labels[label] {
			continue
		}
		word := strings.TrimSpace(p.Word)
		if word == "" {
			continue
		}
		entities = append(entities, entity.Entity{
			Text:        word,
			Type:        label,
			Description: defaultDescription,
			Score:       float64(p.Score),
			ChunkIndex:  chunkIndex,
		})
	}
	return entities, nil
}

// Close releases the underlying model session.
func (x *Extractor) Close() error {
	if x.session == nil {
		return nil
	}
	return x.session.Destroy()
}

// normalizeLabel strips BIO tagging prefixes and uppercases the label.
func normalizeLabel(label string) string {
	label = strings.TrimPrefix(label, "B-")
	label = strings.TrimPrefix(label, "I-")
	return strings.ToUpper(label)
}
