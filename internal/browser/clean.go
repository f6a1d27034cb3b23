package browser

import (
	"regexp"
	"strings"
)

// cleanDescription sanitises listing-description HTML and converts it to
// markdown-ish text for classification and storage. Listing descriptions
// are seller-controlled HTML, so they are sanitised before conversion.
func (s *Session) cleanDescription(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	safe := s.sanitize.Sanitize(html)
	text, err := s.md.ConvertString(safe)
	if err != nil || strings.TrimSpace(text) == "" {
		return collapseWhitespace(stripTags(safe))
	}
	return strings.TrimSpace(text)
}

var (
	multiSpaceRe = regexp.MustCompile(`[ \t]+`)
	multiLineRe  = regexp.MustCompile(`\n{3,}`)
	tagRe        = regexp.MustCompile(`<[^>]*>`)
)

// collapseWhitespace normalises runs of spaces and blank lines while
// keeping paragraph breaks.
func collapseWhitespace(s string) string {
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = multiLineRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func stripTags(s string) string {
	return tagRe.ReplaceAllString(s, " ")
}
