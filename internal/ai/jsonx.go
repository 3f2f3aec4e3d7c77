package ai

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a model response contains no balanced JSON object.
var ErrNoJSON = errors.New("ai: no JSON object in response")

var fenceOpen = regexp.MustCompile("(?i)```json\\s*")

// ExtractJSON returns the first balanced {…} object in text, after stripping
// Markdown fence markers. Extraction is idempotent: running it on its own
// output returns the same bytes.
func ExtractJSON(text string) ([]byte, error) {
	cleaned := fenceOpen.ReplaceAllString(text, "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.IndexByte(cleaned, '{')
	if start < 0 {
		return nil, ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(cleaned); i++ {
		c := cleaned[i]
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
				return []byte(cleaned[start : i+1]), nil
			}
		}
	}
	return nil, ErrNoJSON
}
