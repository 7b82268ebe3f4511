package retrieval

import (
	"sort"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 20

	fallbackBM25Score      = 0.5
	fallbackVectorScore    = 0.0
	fallbackCompositeScore = 0.5
)

// Candidate is one ranked chunk for a single query. It is never persisted.
type Candidate struct {
	ChunkID        uuid.UUID `json:"chunkId"`
	DocID          uuid.UUID `json:"docId"`
	DocName        string    `json:"docName"`
	Text           string    `json:"text"`
	BM25Score      float64   `json:"bm25Score"`
	VectorScore    float64   `json:"vectorScore"`
	CompositeScore float64   `json:"compositeScore"`
}

// rank orders by composite score, best first, and truncates to limit. Equal scores keep their input
// order.
func rank(cands []Candidate, limit int) []Candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].CompositeScore > cands[j].CompositeScore
	})
	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}
	return cands
}
