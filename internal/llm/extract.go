package llm

import (
	"errors"
	"strings"
)

// ExtractJSONObject finds the first balanced JSON object in model output.
// Models sometimes wrap JSON in prose or markdown fences, so this scans
// rather than requiring the whole response to parse. Braces inside string
// literals are ignored.
func ExtractJSONObject(s string) (string, error) {
	s = strings.TrimSpace(s)
	if inner, ok := stripCodeFence(s); ok {
		s = strings.TrimSpace(inner)
	}

	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		if out, ok := balancedObjectFrom(s, i); ok {
			return out, nil
		}
	}
	return "", errors.New("no balanced JSON object found")
}

// stripCodeFence unwraps a leading ``` or ~~~ fenced block, tolerating an
// optional language tag on the opening line.
func stripCodeFence(s string) (string, bool) {
	trim := strings.TrimLeft(s, "\n\r\t ")
	fence := ""
	switch {
	case strings.HasPrefix(trim, "```"):
		fence = "```"
	case strings.HasPrefix(trim, "~~~"):
		fence = "~~~"
	default:
		return "", false
	}
	rest := trim[len(fence):]
	nl := strings.IndexByte(rest, '\n')
	if nl == -1 {
		return "", false
	}
	rest = rest[nl+1:]
	if end := strings.Index(rest, fence); end != -1 {
		return rest[:end], true
	}
	return "", false
}

func balancedObjectFrom(s string, start int) (string, bool) {
	depth := 0
	inString := false
	escape := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
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
				return s[start : i+1], true
			}
			if depth < 0 {
				return "", false
			}
		}
	}
	return "", false
}
