// Package jsonextract pulls a JSON object out of LLM prose. Every resolver
// response is passed through this before json.Unmarshal: never trust an
// assistant to obey "JSON only" (spec §4.4, §9).
package jsonextract

import "strings"

// StripCodeBlock removes a leading/trailing markdown code fence, tolerating
// an optional language tag up to the first newline and a missing closing
// fence. Bare JSON (no fence) passes through unchanged save for trimming.
func StripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	rest := s[3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		// Fence with no body at all.
		return ""
	}
	if idx := strings.LastIndex(rest, "```"); idx >= 0 {
		rest = rest[:idx]
	}
	return strings.TrimSpace(rest)
}

// ExtractJSONObject finds the first balanced {...} substring in s, honoring
// nested braces and braces inside string literals, and returns it. ok is
// false if no balanced object is found.
func ExtractJSONObject(s string) (string, bool) {
	return extractBalanced(s, '{', '}')
}

// ExtractJSONArray finds the first balanced [...] substring in s.
func ExtractJSONArray(s string) (string, bool) {
	return extractBalanced(s, '[', ']')
}

func extractBalanced(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// ExtractFirstObjectAfter scans s starting at offset for a balanced object
// and returns both the object text and the index just past it, so callers
// can repeatedly advance past found objects (used by the available_elements
// scan in the element resolver).
func ExtractFirstObjectAfter(s string, offset int) (obj string, endIdx int, ok bool) {
	if offset > len(s) {
		return "", len(s), false
	}
	sub := s[offset:]
	found, ok := ExtractJSONObject(sub)
	if !ok {
		return "", len(s), false
	}
	idx := strings.Index(sub, found)
	return found, offset + idx + len(found), true
}

// FromProse applies the full documented pipeline: fence-strip then
// balanced-object scan, returning the raw JSON text ready for
// json.Unmarshal.
func FromProse(s string) (string, bool) {
	return ExtractJSONObject(StripCodeBlock(s))
}
