package partjson

import (
	"strings"
)

// CompleteJSON turns a JSON document truncated at an arbitrary byte into the
// longest valid document it can: an open string is closed (dropping a
// dangling escape), then trailing separators, partial literals, incomplete
// number tails and object keys left without a value are trimmed, and finally
// open arrays and objects are closed in reverse order.
//
// Text that is not a prefix of valid JSON is returned in an unspecified but
// still invalid form; callers re-parse the result.
func CompleteJSON(text string) string {
	var (
		closers []byte

		// stringStarts maps the index of each closing quote to the index of
		// its opening quote.
		stringStarts = map[int]int{}

		inString    bool
		stringStart int
		escapeStart = -1
		hexLeft     int
	)

	for i := 0; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case hexLeft > 0:
				hexLeft--
				if hexLeft == 0 || !isHex(c) {
					hexLeft = 0
					escapeStart = -1
				}
			case escapeStart >= 0:
				if c == 'u' {
					hexLeft = 4
				} else {
					escapeStart = -1
				}
			case c == '\\':
				escapeStart = i
			case c == '"':
				inString = false
				stringStarts[i] = stringStart
			}
			continue
		}

		switch c {
		case '"':
			inString = true
			stringStart = i
		case '{':
			closers = append(closers, '}')
		case '[':
			closers = append(closers, ']')
		case '}', ']':
			if len(closers) > 0 {
				closers = closers[:len(closers)-1]
			}
		}
	}

	out := text
	if inString {
		if escapeStart >= 0 {
			out = out[:escapeStart]
		}
		stringStarts[len(out)] = stringStart
		out += `"`
	}

	inObject := len(closers) > 0 && closers[len(closers)-1] == '}'
	out = trimIncomplete(out, stringStarts, inObject)

	var sb strings.Builder
	sb.Grow(len(out) + len(closers))
	sb.WriteString(out)
	for i := len(closers) - 1; i >= 0; i-- {
		sb.WriteByte(closers[i])
	}

	return sb.String()
}

// trimIncomplete repeatedly strips trailing tokens that cannot end a value
// inside the innermost open container.
func trimIncomplete(s string, stringStarts map[int]int, inObject bool) string {
	for {
		s = strings.TrimRight(s, " \t\r\n")
		if s == "" {
			return s
		}

		last := len(s) - 1
		switch c := s[last]; {
		case c == ',' || c == ':':
			s = s[:last]

		case c == '"':
			start, ok := stringStarts[last]
			if !ok || !inObject || !isKeyPosition(s, start) {
				return s
			}
			// An object key with no value yet.
			s = s[:start]

		case c >= 'a' && c <= 'z':
			j := last
			for j > 0 && s[j-1] >= 'a' && s[j-1] <= 'z' {
				j--
			}
			switch s[j:] {
			case "true", "false", "null":
				return s
			}
			s = s[:j]

		case c == '.' || c == 'E' || c == '+' || c == '-':
			s = s[:last]

		default:
			return s
		}
	}
}

// isKeyPosition reports whether the string opening at start follows "{" or
// "," and therefore names an object member.
func isKeyPosition(s string, start int) bool {
	prev := strings.TrimRight(s[:start], " \t\r\n")
	if prev == "" {
		return false
	}

	c := prev[len(prev)-1]
	return c == '{' || c == ','
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
