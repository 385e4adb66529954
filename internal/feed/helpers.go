package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"mvdan.cc/xurls/v2"
)

// NormalizeBlogURL extracts the first URL with an explicit scheme from a
// member's stored blog field. The field is free text in practice; members
// paste addresses with trailing punctuation or surrounding words.
func NormalizeBlogURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	found := xurls.Strict().FindString(raw)
	if found == "" {
		return ""
	}

	return strings.TrimSuffix(strings.TrimSpace(found), "/")
}

// PlainText reduces an HTML entry body to whitespace-normalized text so the
// summarization prompt carries prose instead of markup. Input that is not
// HTML passes through unchanged apart from whitespace collapsing.
func PlainText(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return strings.Join(strings.Fields(content), " ")
	}

	text := doc.Text()

	return strings.Join(strings.Fields(text), " ")
}
