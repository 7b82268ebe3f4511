package queue

import (
	"fmt"

	pkgerrors "github.com/yungbote/deepmed-backend/internal/pkg/errors"
)

// Name identifies one of the fixed queues. Each queue has its own keys and worker pool.
type Name string

const (
	PDFProcessing     Name = "pdf-processing"
	ConvertToMarkdown Name = "document-convert-to-markdown"
	DocumentIndexing  Name = "document-indexing"
)

func Names() []Name {
	return []Name{PDFProcessing, ConvertToMarkdown, DocumentIndexing}
}

func ParseName(s string) (Name, error) {
	for _, n := range Names() {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("%q: %w", s, pkgerrors.ErrUnknownQueue)
}

func (n Name) String() string { return string(n) }
