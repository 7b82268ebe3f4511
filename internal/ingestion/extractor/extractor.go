// Package extractor turns raw uploaded files into Markdown, and Markdown into the plain text the
// chunker splits.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

var (
	// ErrUnsupported means the file kind has no converter; retrying cannot help.
	ErrUnsupported = errors.New("unsupported document type")
	// ErrCorrupt means the file could not be parsed as its declared kind.
	ErrCorrupt = errors.New("corrupt document")
	// ErrEmpty means conversion succeeded but produced no text.
	ErrEmpty = errors.New("document has no extractable text")
	// ErrTooLarge means the file exceeds the configured size cap.
	ErrTooLarge = errors.New("document too large")
)

// Permanent reports whether err describes the input itself rather than a transient failure.
func Permanent(err error) bool {
	return errors.Is(err, ErrUnsupported) || errors.Is(err, ErrCorrupt) ||
		errors.Is(err, ErrEmpty) || errors.Is(err, ErrTooLarge)
}

const DefaultMaxBytes int64 = 64 << 20

type Options struct {
	// MaxBytes caps how much of a file is read; 0 means DefaultMaxBytes.
	MaxBytes int64
	// TempDir hosts pdf scratch directories; empty means os.TempDir.
	TempDir string
}

type Extractor struct {
	log      *logger.Logger
	maxBytes int64
	tempDir  string
}

func New(log *logger.Logger, opts Options) *Extractor {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	return &Extractor{
		log:      log.With("component", "Extractor"),
		maxBytes: opts.MaxBytes,
		tempDir:  opts.TempDir,
	}
}

// ReadAll reads r up to the size cap.
func (e *Extractor) ReadAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, e.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if int64(len(data)) > e.maxBytes {
		return nil, fmt.Errorf("over %d bytes: %w", e.maxBytes, ErrTooLarge)
	}
	return data, nil
}

// ToMarkdown converts a raw file to Markdown according to its kind. Unknown kinds that look like text
// are passed through as text.
func (e *Extractor) ToMarkdown(ctx context.Context, name, mime string, data []byte) (string, Kind, error) {
	kind := ClassifyKind(name, mime, data)
	var (
		out string
		err error
	)
	switch kind {
	case KindPDF:
		out, err = e.PDFToMarkdown(ctx, data)
	case KindHTML:
		out, err = HTMLToMarkdown(string(data))
	case KindMarkdown, KindText:
		out = tidyMarkdown(string(data))
	default:
		if !looksLikeText(data) {
			return "", kind, fmt.Errorf("%s (mime=%q): %w", name, mime, ErrUnsupported)
		}
		kind = KindText
		out = tidyMarkdown(string(data))
	}
	if err != nil {
		return "", kind, err
	}
	if out == "" {
		return "", kind, fmt.Errorf("%s: %w", name, ErrEmpty)
	}
	e.log.Debug("document converted", "name", name, "kind", kind, "markdown_bytes", len(out))
	return out, kind, nil
}
