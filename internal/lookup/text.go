package lookup

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlainText renders an HTML fragment as whitespace-normalized text. It is used
// when a backend reports markup without a rendered text form.
func PlainText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript").Remove()
	return normalizeSpace(doc.Text())
}
