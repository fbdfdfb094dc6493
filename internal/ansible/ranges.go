package ansible

import (
	"fmt"
	"strconv"
	"strings"
)

// ExpandHostPattern expands inventory host ranges such as web[01:03] or
// db-[a:c], including an optional step (web[0:10:5]). Names without a range
// are returned unchanged.
func ExpandHostPattern(pattern string) ([]string, error) {
	open := strings.Index(pattern, "[")
	if open < 0 {
		return []string{pattern}, nil
	}
	end := strings.Index(pattern[open:], "]")
	if end < 0 {
		return nil, fmt.Errorf("invalid host range %q: missing ]", pattern)
	}
	end += open
	inner := pattern[open+1 : end]
	if !strings.Contains(inner, ":") {
		return []string{pattern}, nil
	}
	head, tail := pattern[:open], pattern[end+1:]

	parts := strings.Split(inner, ":")
	if len(parts) > 3 {
		return nil, fmt.Errorf("invalid host range %q", pattern)
	}
	step := 1
	if len(parts) == 3 && parts[2] != "" {
		s, err := strconv.Atoi(parts[2])
		if err != nil || s < 1 {
			return nil, fmt.Errorf("invalid host range step in %q", pattern)
		}
		step = s
	}
	seq, err := rangeSequence(parts[0], parts[1], step)
	if err != nil {
		return nil, fmt.Errorf("invalid host range %q: %w", pattern, err)
	}

	var result []string
	for _, s := range seq {
		rest, err := ExpandHostPattern(tail)
		if err != nil {
			return nil, err
		}
		for _, r := range rest {
			result = append(result, head+s+r)
		}
	}
	return result, nil
}

func rangeSequence(beg, end string, step int) ([]string, error) {
	if beg == "" {
		beg = "0"
	}
	if isAlpha(beg) || isAlpha(end) {
		if len(beg) != 1 || len(end) != 1 || !isAlpha(beg) || !isAlpha(end) {
			return nil, fmt.Errorf("alphabetic ranges take single letters")
		}
		if beg[0] > end[0] {
			return nil, fmt.Errorf("start %v is after end %v", beg, end)
		}
		var seq []string
		for c := int(beg[0]); c <= int(end[0]); c += step {
			seq = append(seq, string(rune(c)))
		}
		return seq, nil
	}
	b, err := strconv.Atoi(beg)
	if err != nil {
		return nil, err
	}
	e, err := strconv.Atoi(end)
	if err != nil {
		return nil, err
	}
	if b > e {
		return nil, fmt.Errorf("start %v is after end %v", b, e)
	}
	width := 0
	if len(beg) > 1 && beg[0] == '0' {
		width = len(beg)
	}
	var seq []string
	for i := b; i <= e; i += step {
		seq = append(seq, fmt.Sprintf("%0*d", width, i))
	}
	return seq, nil
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
