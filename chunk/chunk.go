// Package chunk splits extracted document text into overlapping pieces, the
// unit both graph extraction and vector retrieval operate on.
package chunk

import "fmt"

const (
	defaultSize    = 800
	defaultOverlap = 120
)

// Chunk is an immutable, ordered slice of document text. Start and End are
// rune offsets into the source text.
type Chunk struct {
	ID       string
	Text     string
	Sequence int
	Start    int
	End      int
}

// Splitter produces fixed-size chunks with overlap. Splitting is
// deterministic: the same text always yields the same boundaries, and ids are
// derived from the session id plus the sequence number so re-chunking the
// same text under a different session never collides.
type Splitter struct {
	size    int
	overlap int
}

func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = defaultSize
	}
	if overlap < 0 {
		overlap = defaultOverlap
	}
	if overlap >= size {
		overlap = size / 4
	}

	return &Splitter{size: size, overlap: overlap}
}

func (s *Splitter) Split(sessionID, text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := s.size - s.overlap
	chunks := make([]Chunk, 0, len(runes)/step+1)

	for start, seq := 0, 0; start < len(runes); start, seq = start+step, seq+1 {
		end := start + s.size
		if end > len(runes) {
			end = len(runes)
		}

		chunks = append(chunks, Chunk{
			ID:       ChunkID(sessionID, seq),
			Text:     string(runes[start:end]),
			Sequence: seq,
			Start:    start,
			End:      end,
		})

		if end == len(runes) {
			break
		}
	}

	return chunks
}

// ChunkID builds the stable identifier for the seq-th chunk of a session.
func ChunkID(sessionID string, seq int) string {
	return fmt.Sprintf("%s-chunk-%d", sessionID, seq)
}
