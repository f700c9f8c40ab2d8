package discovery

import "strings"

// sanitized is configuration text with comments removed and every string
// literal collapsed to an empty pair of its own quote character.
// literals maps the byte offset of each placeholder's opening quote to the
// literal's original contents so quoted-name rules can recover them.
type sanitized struct {
	text     string
	literals map[int]string
}

// literalAt returns the contents of the string literal whose placeholder
// starts at offset.
func (s *sanitized) literalAt(offset int) (string, bool) {
	lit, ok := s.literals[offset]
	return lit, ok
}

// sanitize strips line and block comments and empties string literals in a
// single pass, so comment markers inside strings and quotes inside comments
// are both handled. Single-line literals that are never closed end at the
// line break; triple-quoted literals may span lines.
func sanitize(text string) *sanitized {
	var out strings.Builder
	out.Grow(len(text))
	literals := make(map[int]string)

	i := 0
	for i < len(text) {
		c := text[i]

		switch {
		case c == '/' && i+1 < len(text) && text[i+1] == '/':
			// Line comment: keep the newline so line structure survives.
			end := strings.IndexByte(text[i:], '\n')
			if end < 0 {
				i = len(text)
			} else {
				i += end
			}

		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				i = len(text)
			} else {
				i += 2 + end + 2
			}
			out.WriteByte(' ')

		case c == '"' || c == '\'':
			content, next := readLiteral(text, i)
			literals[out.Len()] = content
			out.WriteByte(c)
			out.WriteByte(c)
			i = next

		default:
			out.WriteByte(c)
			i++
		}
	}

	return &sanitized{text: out.String(), literals: literals}
}

// readLiteral reads the string literal opening at text[start] and returns its
// contents and the index just past the closing delimiter.
func readLiteral(text string, start int) (string, int) {
	quote := text[start]
	triple := strings.Repeat(string(quote), 3)

	if strings.HasPrefix(text[start:], triple) {
		body := start + 3
		end := strings.Index(text[body:], triple)
		if end < 0 {
			return text[body:], len(text)
		}
		return text[body : body+end], body + end + 3
	}

	var content strings.Builder
	i := start + 1
	for i < len(text) {
		c := text[i]
		switch {
		case c == '\\' && i+1 < len(text):
			content.WriteByte(c)
			content.WriteByte(text[i+1])
			i += 2
		case c == quote:
			return content.String(), i + 1
		case c == '\n':
			return content.String(), i
		default:
			content.WriteByte(c)
			i++
		}
	}
	return content.String(), i
}

// blockBodies returns the [start, end) byte ranges of the bodies of every
// `name {` block in text. Braces are balanced; an unclosed block runs to the
// end of text. text must already be sanitized so braces inside strings and
// comments cannot unbalance the count.
func blockBodies(text string, openers [][]int) [][2]int {
	var bodies [][2]int
	for _, loc := range openers {
		bodyStart := loc[1]
		depth := 1
		end := len(text)
		for i := bodyStart; i < len(text); i++ {
			switch text[i] {
			case '{':
				depth++
			case '}':
				depth--
			}
			if depth == 0 {
				end = i
				break
			}
		}
		bodies = append(bodies, [2]int{bodyStart, end})
	}
	return bodies
}
