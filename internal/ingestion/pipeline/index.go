package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	types "github.com/yungbote/deepmed-backend/internal/domain"
	"github.com/yungbote/deepmed-backend/internal/ingestion/chunker"
	"github.com/yungbote/deepmed-backend/internal/ingestion/extractor"
	"github.com/yungbote/deepmed-backend/internal/jobs/queue"
	"github.com/yungbote/deepmed-backend/internal/jobs/runtime"
	"github.com/yungbote/deepmed-backend/internal/pkg/dbctx"
	"github.com/yungbote/deepmed-backend/internal/platform/qdrant"
)

var embedBatchSize = 64

// IndexResult is stored as the document-indexing job result and forwarded in the complete event.
type IndexResult struct {
	DocumentID string `json:"documentId"`
	Chunks     int    `json:"chunks"`
	Generation int    `json:"generation"`
	Retired    int    `json:"retired"`
	Vectors    int    `json:"vectors"`
}

// IndexHandler consumes document-indexing: markdown is flattened to text, chunked, embedded and
// upserted to the vector index, then swapped in as the document's available chunk set. Vectors of the
// retired set are deleted last.
type IndexHandler struct {
	d Deps
}

func NewIndexHandler(d Deps) *IndexHandler { return &IndexHandler{d: d} }

func (h *IndexHandler) Queue() queue.Name { return queue.DocumentIndexing }

func (h *IndexHandler) vectorsEnabled() bool { return h.d.Embedder != nil && h.d.Vectors != nil }

func (h *IndexHandler) Handle(jc *runtime.Context) queue.Result {
	docID, err := jc.DocumentID()
	if err != nil {
		return queue.Fatal(err)
	}
	ctx := jc.Ctx
	dbc := dbctx.Context{Ctx: ctx}

	doc, err := h.d.Docs.GetByID(dbc, docID)
	if err != nil {
		return classify(fmt.Errorf("load document: %w", err))
	}
	kb, err := h.d.KBs.GetByID(dbc, doc.KnowledgeBaseID)
	if err != nil {
		return classify(fmt.Errorf("load knowledge base: %w", err))
	}
	if doc.Markdown == "" {
		return queue.Fatal(fmt.Errorf("document %s has not been converted: %w", docID, extractor.ErrEmpty))
	}
	if err := h.d.Progress.Started(ctx, docID, types.DocumentStatusIndexing, "indexing "+doc.Name); err != nil {
		return classify(err)
	}

	text := extractor.MarkdownToText(doc.Markdown)
	chunks := chunker.Chunks(docID, text, kb.MaxChunkSize)
	if len(chunks) == 0 {
		return queue.Fatal(fmt.Errorf("document %s: %w", docID, extractor.ErrEmpty))
	}
	// Ids are stable per target generation so a retried attempt overwrites its own vectors.
	nextGen := doc.Generation + 1
	for _, c := range chunks {
		c.ID = chunkID(docID, nextGen, c.SequenceIndex)
	}
	if err := h.d.Progress.Progress(ctx, docID, 0.2, fmt.Sprintf("split into %d chunks", len(chunks))); err != nil {
		return classify(err)
	}

	ns := kb.ID.String()
	vectors := 0
	if h.vectorsEnabled() {
		n, err := h.embed(jc, kb.OwnerUserID, ns, doc, nextGen, chunks)
		if err != nil {
			h.discardGeneration(jc, ns, docID, nextGen)
			return queue.Retry(err)
		}
		vectors = n
	}

	res, err := h.d.Chunks.ReplaceForDocument(dbc, docID, chunks)
	if err != nil {
		h.discardGeneration(jc, ns, docID, nextGen)
		return classify(fmt.Errorf("replace chunks: %w", err))
	}

	if h.d.Vectors != nil && len(res.Retired) > 0 {
		ids := make([]string, 0, len(res.Retired))
		for _, id := range res.Retired {
			ids = append(ids, id.String())
		}
		// retired chunks are already unavailable, so a stale vector can only cost a wasted match
		if err := h.d.Vectors.DeleteIDs(ctx, ns, ids); err != nil {
			jc.Log.Warn("delete retired vectors failed (continuing)", "document_id", docID, "count", len(ids), "error", err)
		}
	}

	jc.Log.Info("document indexed", "document_id", docID, "chunks", len(chunks), "generation", res.Generation, "retired", len(res.Retired), "vectors", vectors)
	return queue.Success(IndexResult{
		DocumentID: docID.String(),
		Chunks:     len(chunks),
		Generation: res.Generation,
		Retired:    len(res.Retired),
		Vectors:    vectors,
	})
}

// embed writes one vector per chunk, reporting progress between 0.2 and 0.9.
func (h *IndexHandler) embed(jc *runtime.Context, userID uuid.UUID, ns string, doc *types.Document, generation int, chunks []*types.Chunk) (int, error) {
	total := 0
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, 0, len(batch))
		for _, c := range batch {
			texts = append(texts, c.Text)
		}
		vecs, err := h.d.Embedder.EmbedBatch(jc.Ctx, userID, texts)
		if err != nil {
			return total, fmt.Errorf("embed chunks: %w", err)
		}
		if len(vecs) != len(batch) {
			return total, fmt.Errorf("embed chunks: embedding count mismatch (got %d want %d)", len(vecs), len(batch))
		}

		pv := make([]qdrant.Vector, 0, len(batch))
		for i, c := range batch {
			pv = append(pv, qdrant.Vector{
				ID:     c.ID.String(),
				Values: vecs[i],
				Payload: map[string]any{
					"document_id":       doc.ID.String(),
					"knowledge_base_id": doc.KnowledgeBaseID.String(),
					"sequence_index":    c.SequenceIndex,
					"generation":        generation,
				},
			})
		}
		if err := h.d.Vectors.Upsert(jc.Ctx, ns, pv); err != nil {
			return total, fmt.Errorf("upsert vectors: %w", err)
		}
		total += len(pv)

		pct := 0.2 + 0.7*float64(end)/float64(len(chunks))
		if err := h.d.Progress.Progress(jc.Ctx, doc.ID, pct, fmt.Sprintf("embedded %d/%d chunks", end, len(chunks))); err != nil {
			return total, err
		}
	}
	return total, nil
}

// discardGeneration removes vectors written for a generation that never became available. A later
// attempt rewrites the same ids, so a failed delete only logs.
func (h *IndexHandler) discardGeneration(jc *runtime.Context, ns string, docID uuid.UUID, generation int) {
	if h.d.Vectors == nil {
		return
	}
	filter := qdrant.Filter{Must: []qdrant.Condition{
		qdrant.Match("document_id", docID.String()),
		qdrant.Match("generation", generation),
	}}
	if err := h.d.Vectors.DeleteByFilter(context.WithoutCancel(jc.Ctx), ns, filter); err != nil {
		jc.Log.Warn("discard unswapped vectors failed", "document_id", docID, "generation", generation, "error", err)
	}
}

func chunkID(docID uuid.UUID, generation, seq int) uuid.UUID {
	return uuid.NewSHA1(docID, []byte(strconv.Itoa(generation)+":"+strconv.Itoa(seq)))
}
