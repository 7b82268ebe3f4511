package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var contentPageFile = regexp.MustCompile(`Content_page_(\d+)`)

// PDFPage is the text recovered from one page's content streams.
type PDFPage struct {
	Number int
	Text   string
}

// PDFPages extracts per-page text. pdfcpu works on files, so data is staged in a private temp dir that
// is removed before returning.
func (e *Extractor) PDFPages(ctx context.Context, data []byte) ([]PDFPage, error) {
	if !isPDFHeader(data) {
		return nil, fmt.Errorf("not a pdf: %w", ErrUnsupported)
	}
	dir, err := os.MkdirTemp(e.tempDir, "deepmed-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("create pdf workdir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, fmt.Errorf("stage pdf: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pdfCtx, err := api.ReadContextFile(in)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %v: %w", err, ErrCorrupt)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(dir, "pages")
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return nil, fmt.Errorf("create page dir: %w", err)
	}
	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(in, outDir, nil, conf); err != nil {
		return nil, fmt.Errorf("extract pdf content: %v: %w", err, ErrCorrupt)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("list page content: %w", err)
	}
	texts := make(map[int]string, len(files))
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		m := contentPageFile.FindStringSubmatch(f.Name())
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		raw, err := os.ReadFile(filepath.Join(outDir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("read page %d content: %w", n, err)
		}
		// a page may have several content streams
		texts[n] = strings.TrimSpace(texts[n] + "\n" + ContentStreamText(raw))
	}

	nums := make([]int, 0, len(texts))
	for n := range texts {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	pages := make([]PDFPage, 0, len(nums))
	for _, n := range nums {
		pages = append(pages, PDFPage{Number: n, Text: texts[n]})
	}
	e.log.Debug("pdf pages extracted", "page_count", pageCount, "pages_with_content", len(pages))
	return pages, nil
}

// PDFToMarkdown joins the page texts, one paragraph per text line run, pages separated by blank lines.
func (e *Extractor) PDFToMarkdown(ctx context.Context, data []byte) (string, error) {
	pages, err := e.PDFPages(ctx, data)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p.Text)
	}
	return tidyMarkdown(b.String()), nil
}

// ContentStreamText pulls the shown strings out of a decoded PDF content stream. It understands the
// text-showing operators (Tj, TJ, ', ") and treats line moves (T*, Td/TD with a vertical offset, ET) as
// line breaks. Glyphs in fonts with custom encodings come out as whatever bytes the stream holds.
func ContentStreamText(content []byte) string {
	var (
		lines   []string
		line    strings.Builder
		pending []string
		nums    []float64
		inArray bool
	)
	newline := func() {
		if s := collapseWhitespace(line.String()); s != "" {
			lines = append(lines, s)
		}
		line.Reset()
	}
	show := func() {
		for _, s := range pending {
			line.WriteString(s)
		}
	}

	i := 0
	for i < len(content) {
		c := content[i]
		switch {
		case c == '%':
			for i < len(content) && content[i] != '\n' && content[i] != '\r' {
				i++
			}
		case c == '(':
			s, n := readLiteral(content[i:])
			pending = append(pending, s)
			i += n
		case c == '<' && i+1 < len(content) && content[i+1] == '<':
			i += 2
		case c == '>' && i+1 < len(content) && content[i+1] == '>':
			i += 2
		case c == '<':
			s, n := readHexString(content[i:])
			pending = append(pending, s)
			i += n
		case c == '[':
			inArray = true
			i++
		case c == ']':
			inArray = false
			i++
		case c == '/':
			i += tokenLen(content[i+1:]) + 1
		case isPDFSpace(c) || c == '{' || c == '}' || c == ')' || c == '>':
			i++
		default:
			n := tokenLen(content[i:])
			if n == 0 {
				i++
				continue
			}
			tok := string(content[i : i+n])
			i += n
			if f, err := strconv.ParseFloat(tok, 64); err == nil {
				// large negative kerning inside TJ is an inter-word gap
				if inArray && f < -200 {
					pending = append(pending, " ")
				}
				nums = append(nums, f)
				continue
			}
			switch tok {
			case "Tj", "TJ":
				show()
			case "'", `"`:
				newline()
				show()
			case "T*", "ET":
				newline()
			case "Td", "TD":
				if len(nums) >= 2 && nums[len(nums)-1] != 0 {
					newline()
				} else {
					line.WriteByte(' ')
				}
			case "ID":
				// inline image data runs until EI
				if end := indexEI(content[i:]); end >= 0 {
					i += end + 2
				} else {
					i = len(content)
				}
			}
			pending = pending[:0]
			nums = nums[:0]
		}
	}
	newline()
	return sanitizeUTF8(strings.Join(lines, "\n"))
}

func isPDFSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isPDFDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func tokenLen(b []byte) int {
	n := 0
	for n < len(b) && !isPDFSpace(b[n]) && !isPDFDelim(b[n]) {
		n++
	}
	return n
}

func indexEI(b []byte) int {
	for j := 0; j+2 <= len(b); j++ {
		if b[j] == 'E' && b[j+1] == 'I' && (j == 0 || isPDFSpace(b[j-1])) && (j+2 == len(b) || isPDFSpace(b[j+2])) {
			return j
		}
	}
	return -1
}

// readLiteral decodes a (...) string starting at b[0] and returns it with the bytes consumed. Bytes are
// read as PDFDocEncoding, approximated by Latin-1.
func readLiteral(b []byte) (string, int) {
	var out []rune
	depth := 0
	i := 0
	for i < len(b) {
		c := b[i]
		switch {
		case c == '(':
			if depth > 0 {
				out = append(out, '(')
			}
			depth++
			i++
		case c == ')':
			depth--
			i++
			if depth == 0 {
				return string(out), i
			}
			out = append(out, ')')
		case c == '\\' && i+1 < len(b):
			i++
			e := b[i]
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b', 'f':
			case '\r':
				if i+1 < len(b) && b[i+1] == '\n' {
					i++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v, n := 0, 0
					for n < 3 && i+n < len(b) && b[i+n] >= '0' && b[i+n] <= '7' {
						v = v*8 + int(b[i+n]-'0')
						n++
					}
					out = append(out, rune(v&0xff))
					i += n
					continue
				}
				out = append(out, rune(e))
			}
			i++
		default:
			out = append(out, rune(c))
			i++
		}
	}
	return string(out), i
}

// readHexString decodes <...>. Two-byte glyph ids cannot be mapped without the font, so only printable
// ASCII bytes are kept.
func readHexString(b []byte) (string, int) {
	end := 1
	for end < len(b) && b[end] != '>' {
		end++
	}
	digits := make([]byte, 0, end)
	for _, c := range b[1:min(end, len(b))] {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	var out strings.Builder
	for j := 0; j+1 < len(digits); j += 2 {
		v, _ := strconv.ParseUint(string(digits[j:j+2]), 16, 8)
		if v >= 0x20 && v < 0x7f {
			out.WriteByte(byte(v))
		}
	}
	consumed := end + 1
	if consumed > len(b) {
		consumed = len(b)
	}
	return out.String(), consumed
}
