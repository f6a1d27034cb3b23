package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hazyhaar/lockhunt/hunt"
)

// maxDescriptionLen bounds the prompt cost per listing.
const maxDescriptionLen = 2000

const systemInstruction = "You are an expert at analyzing marketplace listings for MacBooks. " +
	"Analyze listings carefully and respond in valid JSON format only."

const promptTemplate = `Analyze this marketplace listing for a MacBook:

Title: %s
Description: %s%s

Determine the following and respond in valid JSON format:
{
  "matches": true/false,
  "activation_lock_mentioned": true/false,
  "activation_lock_type": "explicit" | "implicit" | "none",
  "model_number": "string or null",
  "has_exclusions": true/false,
  "exclusion_reasons": ["reason1", "reason2"],
  "price": "string or null",
  "condition": "string or null",
  "confidence": 0.0-1.0,
  "reasoning": "brief explanation"
}

Important:
- Activation lock can be mentioned explicitly ("activation lock", "iCloud locked") or implicitly ("can't unlock", "previous owner", "for parts", "as-is", "locked to owner")
- Exclude if it mentions: broken screen, bad battery, cracked, not working, damaged screen, dead battery
- Include if it mentions activation lock (explicit or implicit) AND doesn't have exclusions
- Be conservative: if unsure, set matches to false`

func buildPrompt(title, description, target string) string {
	if len(description) > maxDescriptionLen {
		description = description[:maxDescriptionLen]
	}
	targetContext := ""
	if target != "" {
		targetContext = "\n\nTarget model number: " + target
	}
	return fmt.Sprintf(promptTemplate, title, description, targetContext)
}

// rawVerdict mirrors the JSON schema the backend is asked to produce,
// with nullable fields as pointers.
type rawVerdict struct {
	Matches          bool     `json:"matches"`
	LockMentioned    bool     `json:"activation_lock_mentioned"`
	LockType         string   `json:"activation_lock_type"`
	ModelNumber      *string  `json:"model_number"`
	HasExclusions    bool     `json:"has_exclusions"`
	ExclusionReasons []string `json:"exclusion_reasons"`
	Price            *string  `json:"price"`
	Condition        *string  `json:"condition"`
	Confidence       float64  `json:"confidence"`
	Reasoning        string   `json:"reasoning"`
}

// parseVerdict decodes the backend response. Models sometimes wrap JSON
// in a fenced code block; one unwrap-and-reparse is attempted before
// giving up on the response.
func parseVerdict(raw string) (hunt.Verdict, error) {
	var rv rawVerdict
	if err := json.Unmarshal([]byte(raw), &rv); err != nil {
		stripped := stripFence(raw)
		if stripped == raw {
			return hunt.Verdict{}, fmt.Errorf("classify: parse response: %w", err)
		}
		if err := json.Unmarshal([]byte(stripped), &rv); err != nil {
			return hunt.Verdict{}, fmt.Errorf("classify: parse fenced response: %w", err)
		}
	}

	v := hunt.Verdict{
		Matches:          rv.Matches,
		LockMentioned:    rv.LockMentioned,
		LockType:         rv.LockType,
		HasExclusions:    rv.HasExclusions,
		ExclusionReasons: rv.ExclusionReasons,
		Confidence:       rv.Confidence,
		Reasoning:        rv.Reasoning,
	}
	if rv.ModelNumber != nil {
		v.ModelNumber = *rv.ModelNumber
	}
	if rv.Price != nil {
		v.Price = *rv.Price
	}
	if rv.Condition != nil {
		v.Condition = *rv.Condition
	}
	if v.LockType == "" {
		v.LockType = hunt.LockNone
	}
	return v, nil
}

// stripFence removes a surrounding ```json ... ``` (or bare ```) wrapper.
// Returns the input unchanged when no fence is present.
func stripFence(s string) string {
	trimmed := strings.TrimSpace(s)
	start := strings.Index(trimmed, "```")
	if start < 0 {
		return s
	}
	rest := trimmed[start+3:]
	if strings.HasPrefix(rest, "json") {
		rest = rest[4:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}
