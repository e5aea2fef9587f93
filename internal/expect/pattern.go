package expect

import (
	"fmt"
	"regexp"
)

// Kind identifies the variant held by a Pattern.
type Kind int

const (
	// KindLiteral matches a substring with no metacharacter interpretation.
	KindLiteral Kind = iota
	// KindRegexp matches a compiled regular expression with search semantics.
	KindRegexp
	// KindEOF fires when the transport reports terminal closure.
	KindEOF
	// KindTimeout fires when the deadline elapses with no content match.
	KindTimeout
)

// Labels exposed through Session.After when a sentinel fires.
const (
	eofLabel     = "<EOF>"
	timeoutLabel = "<TIMEOUT>"
)

// Pattern is one match target in a pattern set: a literal string, a
// compiled regular expression, or one of the two sentinels. The zero value
// is an empty literal.
type Pattern struct {
	kind Kind
	lit  string
	re   *regexp.Regexp
}

// Sentinel patterns. Registering them in a pattern set turns end-of-stream
// or deadline expiry into an ordinary match result instead of an error.
var (
	EOF     = Pattern{kind: KindEOF}
	Timeout = Pattern{kind: KindTimeout}
)

// Exact builds a literal pattern; s is matched byte-for-byte.
func Exact(s string) Pattern {
	return Pattern{kind: KindLiteral, lit: s}
}

// Re wraps a precompiled regular expression.
func Re(re *regexp.Regexp) Pattern {
	return Pattern{kind: KindRegexp, re: re}
}

// Kind returns the variant of this pattern.
func (p Pattern) Kind() Kind { return p.kind }

// String returns the pattern source, or the sentinel label.
func (p Pattern) String() string {
	switch p.kind {
	case KindLiteral:
		return p.lit
	case KindRegexp:
		return p.re.String()
	case KindEOF:
		return eofLabel
	default:
		return timeoutLabel
	}
}

// CompilePatterns normalizes the arguments of an Expect call. Strings are
// compiled as regular expressions (eagerly, so a malformed expression
// fails here rather than mid-scan), *regexp.Regexp values pass through,
// and Pattern values of any kind are kept as-is.
func CompilePatterns(items ...any) ([]Pattern, error) {
	out := make([]Pattern, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case string:
			re, err := regexp.Compile(v)
			if err != nil {
				return nil, fmt.Errorf("%w: item %d: %v", ErrPattern, i, err)
			}
			out = append(out, Re(re))
		case *regexp.Regexp:
			out = append(out, Re(v))
		case Pattern:
			out = append(out, v)
		default:
			return nil, fmt.Errorf("%w: item %d: unsupported type %T", ErrPattern, i, item)
		}
	}
	return out, nil
}

// ExactPatterns normalizes the arguments of an ExpectExact call. Strings
// stay literal; no escaping or regexp interpretation happens. Sentinel
// Patterns pass through, but regexp Patterns are rejected so that the two
// entry points never silently reinterpret each other's arguments.
func ExactPatterns(items ...any) ([]Pattern, error) {
	out := make([]Pattern, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, Exact(v))
		case Pattern:
			if v.kind == KindRegexp {
				return nil, fmt.Errorf("%w: item %d: regexp pattern in exact set", ErrPattern, i)
			}
			out = append(out, v)
		default:
			return nil, fmt.Errorf("%w: item %d: unsupported type %T", ErrPattern, i, item)
		}
	}
	return out, nil
}
