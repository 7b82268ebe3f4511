package extractor

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// Elements that never carry document content.
const htmlNoise = "script, style, noscript, iframe, svg, template, nav, footer, form, button"

// HTMLToMarkdown strips page chrome and converts the remaining body to Markdown. The page title becomes
// a top-level heading when the body does not start with one.
func HTMLToMarkdown(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sanitizeUTF8(html)))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	title := collapseWhitespace(doc.Find("title").First().Text())
	doc.Find(htmlNoise).Remove()

	var src string
	if body := doc.Find("body"); body.Length() > 0 {
		src, err = body.Html()
	} else {
		src, err = doc.Html()
	}
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}

	converter := md.NewConverter("", true, nil)
	out, err := converter.ConvertString(src)
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	out = tidyMarkdown(out)
	if title != "" && !strings.HasPrefix(out, "# ") {
		if out == "" {
			return "# " + title, nil
		}
		out = "# " + title + "\n\n" + out
	}
	return out, nil
}
