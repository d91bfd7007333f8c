// Package htmltext flattens source HTML fragments into plain text suitable
// for the normalized description field.
package htmltext

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var blankRuns = regexp.MustCompile(`(?:\s*\n)+`)

// Strip removes all markup from the fragment: the head is dropped, <br> and
// block boundaries become newlines, every other tag is reduced to its text,
// and runs of blank lines collapse to one newline. Unparseable input falls
// back to the raw string.
func Strip(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	doc.Find("head").Remove()
	doc.Find("br").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithHtml("\n")
	})
	// goquery decodes entities while parsing, so Text() is already unescaped.
	text := doc.Text()
	text = blankRuns.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}
