package pipeline

import (
	"fmt"

	types "github.com/yungbote/deepmed-backend/internal/domain"
	"github.com/yungbote/deepmed-backend/internal/ingestion/extractor"
	"github.com/yungbote/deepmed-backend/internal/jobs/queue"
	"github.com/yungbote/deepmed-backend/internal/jobs/runtime"
	"github.com/yungbote/deepmed-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/deepmed-backend/internal/pkg/errors"
)

// ConvertResult is stored as the job result of both conversion queues.
type ConvertResult struct {
	DocumentID    string `json:"documentId"`
	Kind          string `json:"kind"`
	MarkdownBytes int    `json:"markdownBytes"`
	IndexJobID    string `json:"indexJobId"`
}

// converter is shared by the generic and the pdf conversion handlers. A non-empty only restricts the
// accepted file kind.
type converter struct {
	d    Deps
	only extractor.Kind
}

func (c *converter) run(jc *runtime.Context) queue.Result {
	docID, err := jc.DocumentID()
	if err != nil {
		return queue.Fatal(err)
	}
	ctx := jc.Ctx
	dbc := dbctx.Context{Ctx: ctx}

	doc, err := c.d.Docs.GetByID(dbc, docID)
	if err != nil {
		return classify(fmt.Errorf("load document: %w", err))
	}
	if err := c.d.Progress.Started(ctx, docID, types.DocumentStatusConverting, "converting "+doc.Name); err != nil {
		return classify(err)
	}

	kind, md, err := c.convert(jc, doc)
	if err != nil {
		return classify(err)
	}
	if err := c.d.Progress.Progress(ctx, docID, 0.5, "converted to markdown"); err != nil {
		return classify(err)
	}

	if err := c.d.Docs.SetMarkdown(dbc, docID, md); err != nil {
		return classify(fmt.Errorf("store markdown: %w", err))
	}
	if err := c.d.Progress.Status(ctx, docID, types.DocumentStatusConverted, "queued for indexing"); err != nil {
		return classify(err)
	}

	jobID, err := c.d.Enqueuer.Enqueue(ctx, queue.DocumentIndexingPayload{DocumentID: docID.String()})
	if err != nil {
		return queue.Retry(fmt.Errorf("enqueue indexing: %w", err))
	}
	jc.Log.Info("document converted", "document_id", docID, "kind", kind, "markdown_bytes", len(md), "index_job_id", jobID)
	return queue.Success(ConvertResult{
		DocumentID:    docID.String(),
		Kind:          string(kind),
		MarkdownBytes: len(md),
		IndexJobID:    jobID,
	})
}

func (c *converter) convert(jc *runtime.Context, doc *types.Document) (extractor.Kind, string, error) {
	rc, err := c.d.Objects.Open(jc.Ctx, doc.StorageKey)
	if err != nil {
		return "", "", fmt.Errorf("open %q: %w", doc.StorageKey, err)
	}
	defer rc.Close()

	data, err := c.d.Extractor.ReadAll(rc)
	if err != nil {
		return "", "", err
	}
	if c.only != "" {
		if k := extractor.ClassifyKind(doc.Name, doc.MimeType, data); k != c.only {
			return "", "", fmt.Errorf("%s is %s, want %s: %w", doc.Name, k, c.only, extractor.ErrUnsupported)
		}
	}
	md, kind, err := c.d.Extractor.ToMarkdown(jc.Ctx, doc.Name, doc.MimeType, data)
	if err != nil {
		return kind, "", err
	}
	return kind, md, nil
}

// ConvertHandler consumes document-convert-to-markdown.
type ConvertHandler struct{ c *converter }

func NewConvertHandler(d Deps) *ConvertHandler {
	return &ConvertHandler{c: &converter{d: d}}
}

func (h *ConvertHandler) Queue() queue.Name { return queue.ConvertToMarkdown }

func (h *ConvertHandler) Handle(jc *runtime.Context) queue.Result { return h.c.run(jc) }

// PDFHandler consumes pdf-processing. convert_to_markdown is the only operation.
type PDFHandler struct{ c *converter }

func NewPDFHandler(d Deps) *PDFHandler {
	return &PDFHandler{c: &converter{d: d, only: extractor.KindPDF}}
}

func (h *PDFHandler) Queue() queue.Name { return queue.PDFProcessing }

func (h *PDFHandler) Handle(jc *runtime.Context) queue.Result {
	p, ok := jc.Payload.(queue.PDFProcessingPayload)
	if !ok {
		return queue.Fatal(fmt.Errorf("unexpected payload %T: %w", jc.Payload, pkgerrors.ErrInvalidArgument))
	}
	if p.Operation != queue.OperationConvertToMarkdown {
		return queue.Fatal(fmt.Errorf("operation %q: %w", p.Operation, pkgerrors.ErrInvalidArgument))
	}
	return h.c.run(jc)
}
