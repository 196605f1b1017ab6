package utils

import (
	"encoding/json"
	"strings"
)

// ExtractJSONArray pulls a JSON array out of free-form model output and
// unmarshals it into dst (a pointer to a slice). It strips markdown code
// fences, slices from the first '[' to the last ']', and also accepts an
// object wrapping the array under the "relationships" key. Output that
// still fails to parse yields an empty result, never an error: malformed
// model output is treated the same as "nothing found".
func ExtractJSONArray(raw string, dst interface{}) bool {
	text := strings.TrimSpace(raw)

	if strings.Contains(text, "```") {
		parts := strings.SplitN(text, "```", 3)
		if len(parts) >= 2 {
			text = strings.TrimPrefix(parts[1], "json")
			text = strings.TrimSpace(text)
		}
	}

	if start, end := strings.Index(text, "["), strings.LastIndex(text, "]"); start != -1 && end > start {
		if json.Unmarshal([]byte(text[start:end+1]), dst) == nil {
			return true
		}
	}

	// Some models wrap the list in an object.
	var wrapper struct {
		Relationships json.RawMessage `json:"relationships"`
	}
	if err := json.Unmarshal([]byte(text), &wrapper); err == nil && len(wrapper.Relationships) > 0 {
		if json.Unmarshal(wrapper.Relationships, dst) == nil {
			return true
		}
	}

	return false
}
