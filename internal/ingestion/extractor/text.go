package extractor

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// MarkdownToText renders Markdown as plain prose for chunking: markup is dropped, block boundaries
// become blank lines, table cells are joined by spaces and raw HTML is skipped.
func MarkdownToText(src string) string {
	source := []byte(tidyMarkdown(src))
	if len(source) == 0 {
		return ""
	}
	root := markdown.Parser().Parse(text.NewReader(source))

	var buf bytes.Buffer
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch v := n.(type) {
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					buf.Write(seg.Value(source))
				}
				paragraphBreak(&buf)
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				buf.Write(v.Segment.Value(source))
				switch {
				case v.HardLineBreak():
					buf.WriteByte('\n')
				case v.SoftLineBreak():
					buf.WriteByte(' ')
				}
			}
			return ast.WalkContinue, nil
		case *ast.String:
			if entering {
				buf.Write(v.Value)
			}
			return ast.WalkContinue, nil
		}

		if entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case east.KindTableCell:
			buf.WriteByte(' ')
		case east.KindTableRow, east.KindTableHeader, ast.KindTextBlock, ast.KindListItem:
			lineBreak(&buf)
		case ast.KindParagraph, ast.KindHeading, ast.KindBlockquote, ast.KindList, east.KindTable, ast.KindThematicBreak:
			paragraphBreak(&buf)
		}
		return ast.WalkContinue, nil
	})

	out := blankRun.ReplaceAllString(buf.String(), "\n\n")
	lines := strings.Split(out, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func lineBreak(buf *bytes.Buffer) {
	if b := buf.Bytes(); len(b) > 0 && b[len(b)-1] != '\n' {
		buf.WriteByte('\n')
	}
}

func paragraphBreak(buf *bytes.Buffer) {
	lineBreak(buf)
	buf.WriteByte('\n')
}
