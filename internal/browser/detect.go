package browser

import "strings"

// blockIndicators are phrases that mark a verification/challenge page.
// "verify" alone is deliberately broad: marketplaces rotate challenge
// wording, and a false pause costs less than a banned session.
var blockIndicators = []string{
	"captcha",
	"verify",
	"pardon our interruption",
	"unusual traffic",
}

// looksBlocked reports whether visible page text reads like a block /
// verification page rather than search results.
func looksBlocked(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, ind := range blockIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}
