package term

import "testing"

func TestStrip(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"csi color", "\x1b[31mred\x1b[0m text", "red text"},
		{"csi cursor", "\x1b[2J\x1b[1;1Hcleared", "cleared"},
		{"osc title bel", "\x1b]0;my title\x07prompt$ ", "prompt$ "},
		{"osc title st", "\x1b]2;title\x1b\\done", "done"},
		{"charset", "\x1b(Btext", "text"},
		{"keypad", "\x1b=app\x1b>normal", "appnormal"},
		{"bare escape", "\x1bMup", "up"},
		{"carriage return", "line1\r\nline2\r", "line1\nline2"},
		{"backspace erases", "abc\b\bX", "aX"},
		{"backspace at start", "\bX", "X"},
		{"keeps tab and newline", "a\tb\nc", "a\tb\nc"},
		{"drops other control", "a\x00b\x1fc\x7fd", "abcd"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Strip(c.in); got != c.want {
				t.Errorf("Strip(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}
