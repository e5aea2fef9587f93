// Package term strips terminal escape sequences and control bytes from
// child-process output so that callers can match against plain text.
package term

import "regexp"

// Escape sequence families emitted by common terminals. Order matters:
// the string-terminated forms (OSC, DCS, PM, APC) must be removed before
// the catch-all two-byte form.
var escapeSeqs = []*regexp.Regexp{
	regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]`),       // CSI
	regexp.MustCompile(`\x1b\].*?(?:\x07|\x1b\\)`),      // OSC
	regexp.MustCompile(`\x1b[P^_k].*?\x1b\\`),           // DCS / PM / APC / old title
	regexp.MustCompile(`\x1b[()][0-9A-Za-z]`),           // charset selection
	regexp.MustCompile(`\x1b[=>]`),                      // keypad modes
	regexp.MustCompile(`\x1b.`),                         // any remaining escape
}

// Strip removes ANSI escape sequences and non-printing control bytes.
// Carriage returns are dropped, backspaces erase the preceding byte, and
// newlines and tabs survive.
func Strip(s string) string {
	for _, re := range escapeSeqs {
		s = re.ReplaceAllString(s, "")
	}

	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case ch == '\r':
		case ch == '\b':
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		case (ch < 0x20 || ch == 0x7f) && ch != '\n' && ch != '\t':
		default:
			out = append(out, ch)
		}
	}
	return string(out)
}
