package domain

import (
	"cmp"
	"strconv"
)

// Category is one of the fixed content folders under the data root.
type Category string

const (
	CategoryJournal Category = "journal"
	CategoryGoals   Category = "goals"
	CategoryNotes   Category = "notes"
)

// DefaultCategories returns the folders scanned when none are configured.
func DefaultCategories() []Category {
	return []Category{CategoryJournal, CategoryGoals, CategoryNotes}
}

// Document represents a single text file loaded from a category folder.
type Document struct {
	ID       string // slash-separated path relative to the data root
	Category Category
	Text     string
	Hash     string // hex SHA-256 of Text
}

// ChunkID identifies a chunk by its source document and position.
type ChunkID struct {
	DocumentID string
	Seq        int
}

func (id ChunkID) String() string {
	return id.DocumentID + "#" + strconv.Itoa(id.Seq)
}

// Compare orders ids by document id, then by sequence number.
func (id ChunkID) Compare(other ChunkID) int {
	if c := cmp.Compare(id.DocumentID, other.DocumentID); c != 0 {
		return c
	}
	return cmp.Compare(id.Seq, other.Seq)
}

// Chunk is a window of a document's text. Start and End are character
// (rune) offsets into the document, End exclusive.
type Chunk struct {
	ID       ChunkID
	Category Category
	Text     string
	Start    int
	End      int
}

// IndexEntry pairs a chunk with its embedding.
type IndexEntry struct {
	Chunk  Chunk
	Vector []float32
}

// SearchResult represents a matching chunk with its cosine similarity.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Answer is the generated reply together with the chunks it was grounded on.
type Answer struct {
	Text    string
	Sources []SearchResult
}
