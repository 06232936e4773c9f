package resolver

import (
	"encoding/json"
	"strings"
)

func decodeJSON(raw string, v interface{}) error {
	return json.Unmarshal([]byte(raw), v)
}

// containsLine reports whether name appears verbatim anywhere in text —
// used to post-validate an LLM's returned name against the list that
// prompted the question (spec §9: "never trust the LLM to echo accurately").
func containsLine(text, name string) bool {
	if name == "" {
		return false
	}
	return strings.Contains(text, name)
}
