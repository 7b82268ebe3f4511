// Package chunker splits extracted document text into bounded, ordered segments.
//
// Output is deterministic for a given input and size so that reprocessing a document yields the same
// chunk sequence.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const DefaultMaxChunkSize = 1000

// Split greedily packs sentences into chunks of at most maxChunkSize bytes. A single sentence longer
// than maxChunkSize is emitted on its own and never split further. Empty or whitespace-only input
// yields no chunks.
func Split(text string, maxChunkSize int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	out := make([]string, 0)
	var buf strings.Builder
	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			out = append(out, s)
		}
		buf.Reset()
	}
	for _, sentence := range Sentences(text) {
		if buf.Len() > 0 && buf.Len()+len(sentence) > maxChunkSize {
			flush()
		}
		buf.WriteString(sentence)
		buf.WriteByte(' ')
	}
	flush()
	return out
}

// Sentences breaks text after '.', '!' or '?' when followed by whitespace. The terminator stays with
// its sentence; the whitespace run after it is dropped. Whitespace-only pieces are skipped.
func Sentences(text string) []string {
	sentences := make([]string, 0)
	start := 0
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i
		j := end
		for j < len(text) {
			ws, wsSize := utf8.DecodeRuneInString(text[j:])
			if !unicode.IsSpace(ws) {
				break
			}
			j += wsSize
		}
		if j == end {
			continue
		}
		if s := text[start:end]; strings.TrimSpace(s) != "" {
			sentences = append(sentences, s)
		}
		start = j
		i = j
	}
	if start < len(text) {
		if s := text[start:]; strings.TrimSpace(s) != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
