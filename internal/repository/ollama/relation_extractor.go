package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/pedro9bee/rag-qdrant-neo4j/internal/domain/entity"
	"github.com/pedro9bee/rag-qdrant-neo4j/pkg/utils"
)

const (
	maxPromptText     = 2000
	maxPromptEntities = 30
)

// RelationExtractor asks a chat model for (source, relation, target)
// triples connecting known entities within a chunk. Extraction is fail-soft:
// a response that cannot be parsed yields zero relationships, not an error.
type RelationExtractor struct {
	model    llms.Model
	generate func(ctx context.Context, prompt string) (string, error)
	log      *slog.Logger
}

func NewRelationExtractor(baseURL, model string, logger *slog.Logger) (*RelationExtractor, error) {
	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken("none"),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create relation extraction client: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	e := &RelationExtractor{
		model: client,
		log:   logger.With("component", "relation_extractor"),
	}
	e.generate = func(ctx context.Context, prompt string) (string, error) {
		// Zero temperature keeps the JSON output stable.
		return llms.GenerateFromSinglePrompt(ctx, e.model, prompt, llms.WithTemperature(0.0))
	}
	return e, nil
}

type rawRelation struct {
	Source   string `json:"source"`
	Relation string `json:"relation"`
	Target   string `json:"target"`
}

// ExtractRelations finds triples among the given entities in one chunk's
// text. Returns an empty slice when the model output does not parse.
func (e *RelationExtractor) ExtractRelations(ctx context.Context, text string, chunkIndex int, entities []entity.Entity) ([]entity.Relationship, error) {
	if len(entities) < 2 {
		return nil, nil
	}

	if len(text) > maxPromptText {
		text = text[:maxPromptText]
	}
	listed := entities
	if len(listed) > maxPromptEntities {
		listed = listed[:maxPromptEntities]
	}
	names := make([]string, 0, len(listed))
	for _, ent := range listed {
		names = append(names, fmt.Sprintf("%s (%s)", ent.Text, ent.Type))
	}

	prompt := fmt.Sprintf(`Identify relationships between these entities based on the text.
TEXT: %s
ENTITIES: %s
Format: JSON list of objects with 'source', 'target', 'relation'.
`, text, strings.Join(names, ", "))

	response, err := e.generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("relation extraction chunk %d: %w", chunkIndex, err)
	}

	var raw []rawRelation
	if !utils.ExtractJSONArray(response, &raw) {
		e.log.Warn("unparseable relation response, dropping",
			"chunk_index", chunkIndex, "response_length", len(response))
		return nil, nil
	}

	rels := make([]entity.Relationship, 0, len(raw))
	for _, r := range raw {
		if r.Source == "" || r.Target == "" {
			continue
		}
		rels = append(rels, entity.Relationship{
			Source:     r.Source,
			Relation:   r.Relation,
			Target:     r.Target,
			ChunkIndex: chunkIndex,
		})
	}
	return rels, nil
}
