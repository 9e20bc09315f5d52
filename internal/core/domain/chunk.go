package domain

import "time"

// TextChunk is a bounded slice of extracted text.
// (ContentID, ChunkIndex) is unique.
type TextChunk struct {
	ContentID  string
	ChunkIndex int
	Page       int
	Text       string
	TokenCount int
	TextHash   string
}

// Embedding is the vector for one chunk.
type Embedding struct {
	ContentID  string
	ChunkIndex int
	Model      string
	Dimensions int
	Vector     []float32
	Filename   string
	CreatedAt  time.Time
}
