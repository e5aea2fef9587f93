package expect

import (
	"errors"
	"regexp"
	"testing"
)

// TestCompilePatternsKinds feeds a string, a precompiled regexp, and both
// sentinels through CompilePatterns and checks the resulting kinds.
func TestCompilePatternsKinds(t *testing.T) {
	patterns, err := CompilePatterns(`ab+c`, regexp.MustCompile(`\d+`), EOF, Timeout)
	if err != nil {
		t.Fatalf("CompilePatterns: %v", err)
	}
	want := []Kind{KindRegexp, KindRegexp, KindEOF, KindTimeout}
	if len(patterns) != len(want) {
		t.Fatalf("expected %d patterns, got %d", len(want), len(patterns))
	}
	for i, k := range want {
		if patterns[i].Kind() != k {
			t.Errorf("pattern %d: expected kind %v, got %v", i, k, patterns[i].Kind())
		}
	}
}

func TestCompilePatternsBadRegexp(t *testing.T) {
	_, err := CompilePatterns(`valid`, `[unclosed`)
	if !errors.Is(err, ErrPattern) {
		t.Fatalf("expected ErrPattern for malformed regexp, got %v", err)
	}
}

func TestCompilePatternsUnsupportedType(t *testing.T) {
	_, err := CompilePatterns(42)
	if !errors.Is(err, ErrPattern) {
		t.Fatalf("expected ErrPattern for int item, got %v", err)
	}
}

// TestExactPatternsLiteral verifies that ExactPatterns keeps regexp
// metacharacters as plain text.
func TestExactPatternsLiteral(t *testing.T) {
	patterns, err := ExactPatterns(`a.*b`, EOF)
	if err != nil {
		t.Fatalf("ExactPatterns: %v", err)
	}
	if patterns[0].Kind() != KindLiteral || patterns[0].String() != `a.*b` {
		t.Errorf("expected literal a.*b, got kind %v source %q", patterns[0].Kind(), patterns[0].String())
	}
	if patterns[1].Kind() != KindEOF {
		t.Errorf("expected EOF sentinel to pass through, got kind %v", patterns[1].Kind())
	}

	// "a.*b" must not match "axxb" when treated literally.
	if _, ok := scan("axxb", patterns); ok {
		t.Error("literal pattern matched as if it were a regexp")
	}
	if res, ok := scan("za.*bz", patterns); !ok || res.index != 0 {
		t.Errorf("literal pattern failed to match its own text: ok=%v res=%+v", ok, res)
	}
}

func TestExactPatternsRejectsRegexp(t *testing.T) {
	_, err := ExactPatterns(Re(regexp.MustCompile(`x`)))
	if !errors.Is(err, ErrPattern) {
		t.Fatalf("expected ErrPattern for regexp pattern in exact set, got %v", err)
	}
}

func TestPatternString(t *testing.T) {
	cases := []struct {
		p    Pattern
		want string
	}{
		{Exact("hello"), "hello"},
		{Re(regexp.MustCompile(`\d+`)), `\d+`},
		{EOF, "<EOF>"},
		{Timeout, "<TIMEOUT>"},
	}
	for _, c := range cases {
		if got := c.p.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}
