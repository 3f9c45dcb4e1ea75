package extraction

import (
	"strings"
)

// maxRepairAttempts bounds how many closing braces are appended to a
// truncated object before giving up.
const maxRepairAttempts = 6

// stripFences removes Markdown code fences the model was told not to emit.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// extractObject returns the first balanced {...} in s, honouring string
// literals and escapes. When the text ends before the braces balance, the
// candidate runs from the first '{' to end-of-text and truncated is true.
func extractObject(s string) (candidate string, truncated bool, found bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false, false
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], false, true
			}
		}
	}
	return s[start:], true, true
}

// openString reports whether s ends inside a string literal.
func openString(s string) bool {
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
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
		if c == '"' {
			inString = true
		}
	}
	return inString
}

// repairCandidates yields the truncated text closed off with one to
// maxRepairAttempts braces. A dangling string literal, escape or trailing
// comma/colon is tidied first since no number of braces fixes those.
func repairCandidates(s string) []string {
	base := strings.TrimRight(s, " \t\r\n")
	if openString(base) {
		base = strings.TrimSuffix(base, "\\") + `"`
	}
	base = strings.TrimRight(base, " \t\r\n,:")

	out := make([]string, 0, maxRepairAttempts)
	for i := 1; i <= maxRepairAttempts; i++ {
		out = append(out, base+strings.Repeat("}", i))
	}
	return out
}
