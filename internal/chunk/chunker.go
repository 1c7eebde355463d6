// Package chunk splits document text into overlapping passages sized for
// embedding and retrieval.
//
// Boundaries are fixed rune windows: chunking is deterministic, chunks cover
// the whole text with no gaps, and each adjacent pair shares exactly the
// configured overlap. Offsets are rune offsets into the parent text, so any
// chunk's text is reconstructible from the parent alone.
package chunk

import (
	"errors"
	"fmt"
)

// ErrBadWindow indicates size/overlap values that cannot produce a
// terminating, covering chunk sequence.
var ErrBadWindow = errors.New("chunk overlap must be smaller than chunk size")

// Chunk is a contiguous span of a document's text, the unit of embedding
// and retrieval.
type Chunk struct {
	Index int    // position in the document's chunk sequence, 0-based
	Text  string // the span itself
	Start int    // rune offset of the first rune, inclusive
	End   int    // rune offset past the last rune, exclusive
}

// Splitter produces overlapping chunks with fixed-size windows.
type Splitter struct {
	size    int // max chunk length in runes
	overlap int // runes shared between consecutive chunks
}

// NewSplitter creates a Splitter. size must be positive and overlap must be
// non-negative and strictly smaller than size.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrBadWindow, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size %d, overlap %d", ErrBadWindow, size, overlap)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split chunks text into overlapping windows. Identical input always yields
// identical boundaries. Empty text yields no chunks; text no longer than the
// chunk size yields exactly one chunk equal to the full text.
func (s *Splitter) Split(text string) []Chunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	step := s.size - s.overlap
	chunks := make([]Chunk, 0, (n+step-1)/step)

	for start := 0; ; start += step {
		end := start + s.size
		if end > n {
			end = n
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})
		if end == n {
			break
		}
	}

	return chunks
}

// Size returns the configured window size in runes.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the configured overlap in runes.
func (s *Splitter) Overlap() int { return s.overlap }

// Reassemble reconstructs the original text from a chunk sequence produced
// by Split with the same overlap. Used by tests to verify lossless chunking.
func Reassemble(chunks []Chunk, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}
	out := []rune(chunks[0].Text)
	for _, c := range chunks[1:] {
		r := []rune(c.Text)
		if len(r) > overlap {
			out = append(out, r[overlap:]...)
		}
	}
	return string(out)
}
