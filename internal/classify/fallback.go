package classify

import (
	"strings"

	"github.com/hazyhaar/lockhunt/hunt"
)

// Keyword sets for the deterministic fallback. Matching is a plain
// case-insensitive substring check over title+description.
var (
	activationKeywords = []string{
		"activation lock", "icloud lock", "locked", "can't unlock",
		"previous owner", "for parts", "as-is",
	}
	exclusionKeywords = []string{
		"broken screen", "bad battery", "cracked", "not working",
		"damaged screen", "dead battery",
	}
)

// Fallback is the deterministic safety net used when the backend is
// unusable: keyword-match the listing text against fixed activation-lock
// and exclusion sets. Confidence is always 0.5 to mark the verdict as
// heuristic.
func Fallback(title, description string) hunt.Verdict {
	text := strings.ToLower(title + " " + description)

	hasActivation := false
	for _, kw := range activationKeywords {
		if strings.Contains(text, kw) {
			hasActivation = true
			break
		}
	}

	var exclusions []string
	for _, kw := range exclusionKeywords {
		if strings.Contains(text, kw) {
			exclusions = append(exclusions, kw)
		}
	}

	lockType := hunt.LockNone
	if hasActivation {
		lockType = hunt.LockImplicit
	}

	return hunt.Verdict{
		Matches:          hasActivation && len(exclusions) == 0,
		LockMentioned:    hasActivation,
		LockType:         lockType,
		HasExclusions:    len(exclusions) > 0,
		ExclusionReasons: exclusions,
		Confidence:       0.5,
		Reasoning:        "fallback keyword analysis after backend failure",
	}
}
