// internal/engine/repair/repair.go
package repair

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrParseFailed means the model reply could not be coerced into the expected
// shape. Callers decide which degraded tier to fall to.
var ErrParseFailed = errors.New("MALFORMED_MODEL_OUTPUT")

// StripFences removes a markdown code fence wrapping, with or without a
// language tag, and trims surrounding whitespace. Models wrap JSON in fences
// often enough that every decode goes through this first.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		// drop the language tag line ("json", "JSON", anything)
		first := strings.TrimSpace(s[:idx])
		if first != "" && !strings.ContainsAny(first, "{}[]") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Decode strips fences and unmarshals into target. A reply that is not valid
// JSON for the target returns ErrParseFailed; a reply that parses but is
// semantically empty is the caller's problem to detect.
func Decode(raw string, target interface{}) error {
	cleaned := StripFences(raw)
	if cleaned == "" {
		return ErrParseFailed
	}
	if err := json.Unmarshal([]byte(cleaned), target); err != nil {
		// second chance: the object may be embedded in prose
		if extracted, ok := extractObject(cleaned); ok {
			if err := json.Unmarshal([]byte(extracted), target); err == nil {
				return nil
			}
		}
		return ErrParseFailed
	}
	return nil
}

// Object decodes a reply into a generic map.
func Object(raw string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := Decode(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// extractObject pulls the outermost {...} span out of surrounding prose.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// QuestionLines extracts lines ending in a question mark from free-form text.
// Used as the middle repair tier when structured parsing fails but the model
// still produced usable questions.
func QuestionLines(raw string) []string {
	var out []string
	for _, line := range strings.Split(StripFences(raw), "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. )")
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, "?") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Label coerces a free-form model reply to one of the allowed labels by
// case-insensitive containment, first match wins. Returns false when no
// allowed label appears.
func Label(raw string, allowed []string) (string, bool) {
	lowered := strings.ToLower(StripFences(raw))
	for _, label := range allowed {
		if strings.Contains(lowered, strings.ToLower(label)) {
			return label, true
		}
	}
	return "", false
}
