package chunker

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"meos/internal/domain"
)

// RecursiveChunker splits text on the coarsest separator that keeps pieces
// within the size limit (paragraph, then sentence, then whitespace, then
// raw characters) and packs the pieces into overlapping windows.
// Sizes and offsets are counted in characters (runes).
type RecursiveChunker struct {
	chunkSize int
	overlap   int
}

// NewRecursiveChunker requires 0 <= overlap < chunkSize.
func NewRecursiveChunker(chunkSize, overlap int) (*RecursiveChunker, error) {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk_size=%d overlap=%d", domain.ErrInvalidChunkParams, chunkSize, overlap)
	}
	return &RecursiveChunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Chunk returns the document's windows in order. Whitespace-only documents
// produce no chunks.
func (c *RecursiveChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(document.Text) == "" {
		return nil, nil
	}

	text := []rune(document.Text)
	bounds := c.boundaries(text)

	var chunks []domain.Chunk
	for _, w := range c.windows(text, bounds) {
		chunks = append(chunks, domain.Chunk{
			ID:       domain.ChunkID{DocumentID: document.ID, Seq: len(chunks)},
			Category: document.Category,
			Text:     string(text[w[0]:w[1]]),
			Start:    w[0],
			End:      w[1],
		})
	}
	return chunks, nil
}

type separator func(text []rune, s, e int) []int

var separators = []separator{paragraphCuts, sentenceCuts, whitespaceCuts}

// boundaries returns sorted piece boundaries, including 0 and len(text);
// no two consecutive boundaries are more than chunkSize apart.
func (c *RecursiveChunker) boundaries(text []rune) []int {
	cuts := []int{0}
	c.split(text, 0, len(text), 0, &cuts)
	return append(cuts, len(text))
}

func (c *RecursiveChunker) split(text []rune, s, e, level int, cuts *[]int) {
	if e-s <= c.chunkSize {
		return
	}

	if level >= len(separators) {
		for p := s + c.chunkSize; p < e; p += c.chunkSize {
			*cuts = append(*cuts, p)
		}
		return
	}

	points := separators[level](text, s, e)
	if len(points) == 0 {
		c.split(text, s, e, level+1, cuts)
		return
	}

	prev := s
	for _, p := range append(points, e) {
		c.split(text, prev, p, level+1, cuts)
		if p != e {
			*cuts = append(*cuts, p)
		}
		prev = p
	}
}

// windows packs pieces greedily. Each window ends on a boundary; the next
// one starts up to overlap characters earlier, preferring a word start.
func (c *RecursiveChunker) windows(text []rune, bounds []int) [][2]int {
	n := len(text)

	var out [][2]int
	start := 0
	for {
		j := sort.SearchInts(bounds, start+c.chunkSize+1) - 1
		end := bounds[j]
		out = append(out, [2]int{start, end})
		if end == n {
			return out
		}

		next := bounds[j+1]
		lo := max(end-c.overlap, next-c.chunkSize, start+1)
		start = overlapStart(text, lo, end)
	}
}

func overlapStart(text []rune, lo, end int) int {
	for p := lo; p < end; p++ {
		if unicode.IsSpace(text[p-1]) && !unicode.IsSpace(text[p]) {
			return p
		}
	}
	return lo
}

// paragraphCuts cuts after each blank-line run.
func paragraphCuts(text []rune, s, e int) []int {
	var cuts []int
	for i := s; i < e; i++ {
		if text[i] != '\n' {
			continue
		}
		j := i + 1
		for j < e && (text[j] == ' ' || text[j] == '\t' || text[j] == '\r') {
			j++
		}
		if j >= e || text[j] != '\n' {
			continue
		}
		for j < e && unicode.IsSpace(text[j]) {
			j++
		}
		if j < e {
			cuts = append(cuts, j)
		}
		i = j - 1
	}
	return cuts
}

// sentenceCuts cuts after terminal punctuation (and any closing quotes or
// brackets) followed by whitespace.
func sentenceCuts(text []rune, s, e int) []int {
	var cuts []int
	for i := s; i < e; i++ {
		if !isTerminal(text[i]) {
			continue
		}
		j := i + 1
		for j < e && isCloser(text[j]) {
			j++
		}
		if j >= e || !unicode.IsSpace(text[j]) {
			continue
		}
		for j < e && unicode.IsSpace(text[j]) {
			j++
		}
		if j < e {
			cuts = append(cuts, j)
		}
		i = j - 1
	}
	return cuts
}

// whitespaceCuts cuts after each whitespace run.
func whitespaceCuts(text []rune, s, e int) []int {
	var cuts []int
	for i := s; i < e; i++ {
		if !unicode.IsSpace(text[i]) {
			continue
		}
		j := i
		for j < e && unicode.IsSpace(text[j]) {
			j++
		}
		if j < e {
			cuts = append(cuts, j)
		}
		i = j - 1
	}
	return cuts
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '»':
		return true
	}
	return false
}
