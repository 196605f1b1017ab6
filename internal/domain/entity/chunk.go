package entity

// ChunkMetadata carries the header context a chunk was cut from plus the
// source locator of the original document.
type ChunkMetadata struct {
	HeaderHierarchy []string `json:"header_hierarchy"`
	Section         string   `json:"section"`
	Source          string   `json:"source"`
}

// Chunk is a contiguous, bounded-length segment of a document's text.
// Chunks are produced once by the chunker and immutable thereafter;
// StartChar/EndChar are byte offsets into the source document.
type Chunk struct {
	Index     int           `json:"index"`
	Text      string        `json:"text"`
	StartChar int           `json:"start_char"`
	EndChar   int           `json:"end_char"`
	Metadata  ChunkMetadata `json:"metadata"`
}
