package extractor

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// -------------------- small shared helpers --------------------

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

func sanitizeUTF8(s string) string {
	if s == "" {
		return s
	}
	if utf8.ValidString(s) {
		return s
	}
	// Replace invalid byte sequences with a space (keeps words separated)
	return strings.ToValidUTF8(s, " ")
}

var blankRun = regexp.MustCompile(`\n{3,}`)

// tidyMarkdown normalizes line endings, strips trailing spaces and collapses runs of blank lines to one.
func tidyMarkdown(s string) string {
	s = sanitizeUTF8(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	s = strings.Join(lines, "\n")
	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// looksLikeText reports whether data is mostly printable runes.
func looksLikeText(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	if bytes.IndexByte(sample, 0) >= 0 {
		return false
	}
	printable, total := 0, 0
	for _, r := range string(sample) {
		total++
		if r == '\n' || r == '\r' || r == '\t' || r == ' ' {
			printable++
			continue
		}
		if r >= 32 && r != 127 && r != utf8.RuneError {
			printable++
		}
	}
	return total > 0 && float64(printable)/float64(total) > 0.90
}

// -------------------- Kind detection --------------------

type Kind string

const (
	KindPDF      Kind = "pdf"
	KindHTML     Kind = "html"
	KindMarkdown Kind = "markdown"
	KindText     Kind = "text"
	KindUnknown  Kind = "unknown"
)

// ClassifyKind decides how a raw file is converted. Declared mime type wins, then the extension, then
// the leading bytes.
func ClassifyKind(name, mime string, head []byte) Kind {
	m := strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	ext := strings.ToLower(filepath.Ext(name))

	switch {
	case m == "application/pdf" || ext == ".pdf" || isPDFHeader(head):
		return KindPDF
	case m == "text/html" || m == "application/xhtml+xml" || ext == ".html" || ext == ".htm" || ext == ".xhtml":
		return KindHTML
	case m == "text/markdown" || m == "text/x-markdown" || ext == ".md" || ext == ".markdown":
		return KindMarkdown
	case strings.HasPrefix(m, "text/") || ext == ".txt" || ext == ".csv" || ext == ".log":
		return KindText
	case isHTMLHeader(head):
		return KindHTML
	}
	return KindUnknown
}

func isPDFHeader(b []byte) bool {
	if len(b) < 5 {
		return false
	}
	return string(b[:5]) == "%PDF-"
}

func isHTMLHeader(b []byte) bool {
	if len(b) > 512 {
		b = b[:512]
	}
	s := strings.ToLower(strings.TrimSpace(string(b)))
	return strings.HasPrefix(s, "<!doctype html") || strings.HasPrefix(s, "<html")
}
