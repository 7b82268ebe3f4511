package chunker

import (
	"github.com/google/uuid"

	types "github.com/yungbote/deepmed-backend/internal/domain"
)

// Chunks splits text and wraps each segment as a chunk record of docID with contiguous 0-based
// sequence indices. Callers fill in knowledge base, generation and availability before persisting.
func Chunks(docID uuid.UUID, text string, maxChunkSize int) []*types.Chunk {
	parts := Split(text, maxChunkSize)
	out := make([]*types.Chunk, 0, len(parts))
	for i, p := range parts {
		out = append(out, &types.Chunk{
			ID:            uuid.New(),
			DocumentID:    docID,
			SequenceIndex: i,
			Text:          p,
			SizeHint:      len(p),
		})
	}
	return out
}
