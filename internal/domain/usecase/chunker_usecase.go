package usecase

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/pedro9bee/rag-qdrant-neo4j/internal/domain/entity"
)

var headingPattern = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.+)$`)

type heading struct {
	level    int
	title    string
	position int
}

// ChunkerUseCase splits markdown text into overlapping, hierarchy-aware
// chunks. Each call recomputes fully; the result is deterministic for a
// given input.
type ChunkerUseCase struct {
	ChunkSize    int
	ChunkOverlap int
	log          *slog.Logger
}

func NewChunkerUseCase(chunkSize, chunkOverlap int, logger *slog.Logger) *ChunkerUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChunkerUseCase{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		log:          logger.With("component", "chunker"),
	}
}

// extractHierarchy scans for markdown heading markers and records
// (level, title, byte offset) triples in document order.
func extractHierarchy(text string) []heading {
	var headings []heading
	for _, m := range headingPattern.FindAllStringSubmatchIndex(text, -1) {
		headings = append(headings, heading{
			level:    m[3] - m[2],
			title:    strings.TrimSpace(text[m[4]:m[5]]),
			position: m[0],
		})
	}
	return headings
}

// contextPath returns the heading titles enclosing the given offset, from
// the outermost level down. A level stack pops headings whose level is
// greater than or equal to the incoming one before pushing it.
func contextPath(headings []heading, position int) []string {
	var path []string
	var levels []int

	for _, h := range headings {
		if h.position >= position {
			break
		}
		for len(levels) > 0 && levels[len(levels)-1] >= h.level {
			levels = levels[:len(levels)-1]
			path = path[:len(path)-1]
		}
		levels = append(levels, h.level)
		path = append(path, h.title)
	}

	return path
}

// Chunk splits text into ordered chunks. Paragraphs (blank-line delimited)
// are accumulated greedily; when the next paragraph would push the buffer
// past ChunkSize the buffer is closed, tagged with the header path at its
// start offset, and the trailing ChunkOverlap bytes seed the next buffer.
// A single paragraph longer than ChunkSize is emitted as its own chunk,
// unmodified; no recursive sub-splitting is attempted.
func (c *ChunkerUseCase) Chunk(text, source string) []entity.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	headings := extractHierarchy(text)

	var chunks []entity.Chunk
	var current string
	currentStart := 0
	searchPos := 0

	closeChunk := func() {
		end := currentStart + len(current)
		path := contextPath(headings, currentStart)
		section := "Root"
		if len(path) > 0 {
			section = path[len(path)-1]
		}
		chunks = append(chunks, entity.Chunk{
			Index:     len(chunks),
			Text:      current,
			StartChar: currentStart,
			EndChar:   end,
			Metadata: entity.ChunkMetadata{
				HeaderHierarchy: path,
				Section:         section,
				Source:          source,
			},
		})
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if current == "" {
			// Anchor offsets by locating the paragraph no earlier than the
			// end of text already consumed, so repeated substrings resolve
			// to their own occurrence.
			currentStart = indexFrom(text, para, searchPos)
			current = para
			searchPos = currentStart + len(current)
			continue
		}

		if len(current)+len("\n\n")+len(para) <= c.ChunkSize {
			current += "\n\n" + para
			searchPos = currentStart + len(current)
			continue
		}

		closeChunk()
		end := currentStart + len(current)

		if c.ChunkOverlap > 0 {
			overlap := current
			if len(overlap) > c.ChunkOverlap {
				overlap = overlap[len(overlap)-c.ChunkOverlap:]
			}
			current = overlap + "\n\n" + para
			currentStart = end - len(overlap)
			if currentStart < 0 {
				currentStart = 0
			}
		} else {
			currentStart = indexFrom(text, para, searchPos)
			current = para
		}
		searchPos = currentStart + len(current)
	}

	if current != "" {
		closeChunk()
	}

	c.log.Debug("chunked document",
		"source", source,
		"chunks", len(chunks),
		"characters", len(text))

	return chunks
}

func indexFrom(text, sub string, from int) int {
	if from < 0 || from > len(text) {
		from = 0
	}
	if i := strings.Index(text[from:], sub); i >= 0 {
		return from + i
	}
	// Fall back to a global search; the paragraph was trimmed so its
	// exact bytes always occur somewhere in the source.
	if i := strings.Index(text, sub); i >= 0 {
		return i
	}
	return from
}
