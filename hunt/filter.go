package hunt

import "strings"

// FilterConfig is the immutable rule set shared by every agent in one
// search. It must not be mutated after the search starts.
type FilterConfig struct {
	Targets     []string
	Exclusions  []string
	RequireLock bool
}

// Filter decides whether a classified listing belongs in the results.
type Filter struct {
	targets     []string // uppercased
	exclusions  []string // lowercased
	requireLock bool
}

// NewFilter builds a Filter from the given config, normalising case once
// so per-listing decisions are cheap.
func NewFilter(cfg FilterConfig) *Filter {
	f := &Filter{requireLock: cfg.RequireLock}
	for _, t := range cfg.Targets {
		t = strings.TrimSpace(t)
		if t != "" {
			f.targets = append(f.targets, strings.ToUpper(t))
		}
	}
	for _, e := range cfg.Exclusions {
		e = strings.TrimSpace(e)
		if e != "" {
			f.exclusions = append(f.exclusions, strings.ToLower(e))
		}
	}
	return f
}

// ShouldInclude applies the inclusion rules in fixed precedence order and
// returns the decision with a human-readable reason. Exclusions are
// checked before any inclusion criterion so a damaged unit is never
// accepted regardless of other signals.
func (f *Filter) ShouldInclude(l Listing, v Verdict) (bool, string) {
	if v.HasExclusions {
		return false, "contains exclusions: " + strings.Join(v.ExclusionReasons, ", ")
	}

	if f.requireLock && !v.LockMentioned {
		return false, "no activation lock mentioned"
	}

	if len(f.targets) > 0 && !f.matchesTarget(l, v) {
		return false, "model number mismatch (looking for: " + strings.Join(f.targets, ", ") + ")"
	}

	if !v.Matches {
		reason := v.Reasoning
		if reason == "" {
			reason = "classifier indicates no match"
		}
		return false, reason
	}

	return true, "matches all criteria"
}

// matchesTarget checks the verdict's extracted model number against the
// configured targets with a bidirectional substring match, then falls
// back to searching for each target inside title+description. The
// substring match is deliberately permissive ("A17" matches "A1706").
func (f *Filter) matchesTarget(l Listing, v Verdict) bool {
	model := strings.ToUpper(strings.TrimSpace(v.ModelNumber))
	if model != "" {
		for _, t := range f.targets {
			if strings.Contains(model, t) || strings.Contains(t, model) {
				return true
			}
		}
	}

	text := strings.ToUpper(l.Title + " " + l.Description)
	for _, t := range f.targets {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// ExclusionsIn returns the configured exclusion terms found in text.
func (f *Filter) ExclusionsIn(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, e := range f.exclusions {
		if strings.Contains(lower, e) {
			found = append(found, e)
		}
	}
	return found
}
