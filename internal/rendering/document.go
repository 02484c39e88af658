package rendering

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// DefaultStylesheet is injected into every prepared document.
const DefaultStylesheet = `body { font-family: "Times New Roman", serif; font-size: 11pt; line-height: 1.4; color: #000; }
h1, h2, h3 { margin: 12px 0 6px; }
table { page-break-inside: avoid; }
ul { margin: 4px 0 4px 18px; padding: 0; }`

var (
	contentPolicyOnce sync.Once
	contentPolicy     *bluemonday.Policy

	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Sanitize strips scripts, event handlers and other active content from
// merged contract HTML while keeping formatting markup and inline styles.
func Sanitize(content string) string {
	return contentSanitizer().Sanitize(content)
}

func contentSanitizer() *bluemonday.Policy {
	contentPolicyOnce.Do(func() {
		policy := bluemonday.UGCPolicy()
		policy.AllowAttrs("style").Globally()
		policy.AllowAttrs("align", "colspan", "rowspan", "width").OnElements("td", "th")
		policy.AllowElements("u", "s", "font", "center")
		contentPolicy = policy
	})
	return contentPolicy
}

// PrepareDocument wraps a merged HTML fragment into a complete document with
// a title and the default stylesheet. Fragments that are already complete
// documents keep their own head content.
func PrepareDocument(title, fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", &RenderError{Message: "failed to parse HTML", Cause: err}
	}

	head := doc.Find("head").First()
	if title != "" && head.Find("title").Length() == 0 {
		head.AppendHtml("<title>" + html.EscapeString(title) + "</title>")
	}
	head.PrependHtml(`<meta charset="utf-8">`)
	head.AppendHtml("<style>" + DefaultStylesheet + "</style>")

	out, err := doc.Html()
	if err != nil {
		return "", &RenderError{Message: "failed to serialize HTML", Cause: err}
	}
	return "<!DOCTYPE html>\n" + out, nil
}

// PlainText extracts readable text from HTML, collapsing whitespace.
func PlainText(content string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find("script, style, head").Remove()

	// Keep list items and cells apart once tags are gone
	doc.Find("li, td, th, p, br, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	text := whitespacePattern.ReplaceAllString(doc.Text(), " ")
	return strings.TrimSpace(text), nil
}
