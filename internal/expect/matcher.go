package expect

import "strings"

// matchResult identifies the winning pattern of one scan: its position in
// the pattern set, the matched span within the buffer, and any regexp
// submatches.
type matchResult struct {
	index  int
	start  int
	end    int
	groups []string
}

// scan evaluates every content pattern against the entire buffer content
// with search semantics. The winner is the match that starts earliest in
// the buffer; several matches starting at the same position are broken by
// pattern-set order, which the iteration order gives for free (a later
// pattern only displaces the current best on a strictly earlier start).
// Sentinels never match content and never compete on position.
func scan(content string, patterns []Pattern) (matchResult, bool) {
	best := matchResult{index: -1}
	for i, p := range patterns {
		var loc []int
		switch p.kind {
		case KindLiteral:
			if j := strings.Index(content, p.lit); j >= 0 {
				loc = []int{j, j + len(p.lit)}
			}
		case KindRegexp:
			loc = p.re.FindStringSubmatchIndex(content)
		default:
			continue
		}
		if loc == nil {
			continue
		}
		if best.index == -1 || loc[0] < best.start {
			best = matchResult{
				index:  i,
				start:  loc[0],
				end:    loc[1],
				groups: submatches(content, loc),
			}
		}
	}
	return best, best.index >= 0
}

// submatches expands a FindStringSubmatchIndex result to strings. The
// first entry is the full match; unmatched optional groups become "".
func submatches(content string, loc []int) []string {
	groups := make([]string, 0, len(loc)/2)
	for i := 0; i < len(loc); i += 2 {
		if loc[i] < 0 {
			groups = append(groups, "")
			continue
		}
		groups = append(groups, content[loc[i]:loc[i+1]])
	}
	return groups
}
