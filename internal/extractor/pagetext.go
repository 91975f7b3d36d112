package extractor

import (
	"strings"
)

// decodePageText recovers readable text from a decoded PDF content stream by
// walking its text-showing operators (Tj, ', ", TJ). This is deliberately
// heuristic: positioning operators become line breaks. Exact extraction
// fidelity for malformed or exotic PDFs is out of scope.
func decodePageText(content []byte) string {
	if len(content) == 0 {
		return ""
	}

	var out strings.Builder
	var token strings.Builder
	pendingNewline := false

	flushToken := func() {
		switch token.String() {
		case "Td", "TD", "T*", "ET", "'", "\"":
			pendingNewline = true
		}
		token.Reset()
	}

	write := func(s string) {
		if s == "" {
			return
		}
		if pendingNewline && out.Len() > 0 {
			out.WriteByte('\n')
		}
		pendingNewline = false
		out.WriteString(s)
	}

	i := 0
	for i < len(content) {
		c := content[i]
		switch {
		case c == '(':
			flushToken()
			s, next := parseLiteralString(content, i)
			write(s)
			i = next
		case c == '<' && i+1 < len(content) && content[i+1] != '<':
			flushToken()
			s, next := parseHexString(content, i)
			write(s)
			i = next
		case c == '[':
			flushToken()
			i++
		case c == ']':
			flushToken()
			i++
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			flushToken()
			i++
		default:
			token.WriteByte(c)
			i++
		}
	}
	flushToken()
	return out.String()
}

// parseLiteralString decodes a PDF literal string starting at the opening
// paren. It returns the decoded text and the index just past the closing
// paren. Balanced nested parens and backslash escapes are honored.
func parseLiteralString(content []byte, start int) (string, int) {
	var sb strings.Builder
	depth := 0
	i := start
	for i < len(content) {
		c := content[i]
		switch c {
		case '\\':
			if i+1 >= len(content) {
				return sb.String(), i + 1
			}
			next := content[i+1]
			switch next {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'b', 'f':
				// Ignore backspace/formfeed.
			case '(', ')', '\\':
				sb.WriteByte(next)
			default:
				if next >= '0' && next <= '7' {
					code, consumed := parseOctal(content, i+1)
					sb.WriteByte(code)
					i += consumed - 1
				}
				// Unknown escapes are dropped.
			}
			i += 2
		case '(':
			if depth > 0 {
				sb.WriteByte(c)
			}
			depth++
			i++
		case ')':
			depth--
			if depth == 0 {
				return sb.String(), i + 1
			}
			sb.WriteByte(c)
			i++
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), i
}

// parseOctal reads up to three octal digits starting at i.
func parseOctal(content []byte, i int) (byte, int) {
	var v int
	n := 0
	for n < 3 && i+n < len(content) {
		c := content[i+n]
		if c < '0' || c > '7' {
			break
		}
		v = v*8 + int(c-'0')
		n++
	}
	return byte(v), n
}

// parseHexString decodes a PDF hex string starting at '<'. Odd trailing
// digits are padded with zero per the PDF spec.
func parseHexString(content []byte, start int) (string, int) {
	var digits []byte
	i := start + 1
	for i < len(content) && content[i] != '>' {
		c := content[i]
		if isHexDigit(c) {
			digits = append(digits, c)
		}
		i++
	}
	if i < len(content) {
		i++ // consume '>'
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	var sb strings.Builder
	for j := 0; j+1 < len(digits); j += 2 {
		b := hexVal(digits[j])<<4 | hexVal(digits[j+1])
		// Hex strings frequently carry glyph IDs rather than character
		// codes; keep printable ASCII and drop the rest.
		if b >= 0x20 && b < 0x7f {
			sb.WriteByte(b)
		}
	}
	return sb.String(), i
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
