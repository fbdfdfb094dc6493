package ansible

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
)

var subscriptPattern = regexp.MustCompile(`^(.+)\[(-?\d+)(?::(-?\d*))?\]$`)

// ResolveLimit evaluates a host pattern expression the way --limit does:
// patterns separated by ':' or ',', '&' intersects, '!' excludes, globs and
// '~regex' match host and group names, and '@file' reads patterns from a file.
// Patterns that match nothing are not an error.
func (inv *Inventory) ResolveLimit(ctx context.Context, expression string) ([]string, error) {
	if err := inv.Load(ctx); err != nil {
		return nil, err
	}
	patterns, err := expandPatternFiles(SplitPatterns(expression))
	if err != nil {
		return nil, err
	}
	var plain, intersect, exclude []string
	for _, p := range patterns {
		switch {
		case strings.HasPrefix(p, "!"):
			exclude = append(exclude, p[1:])
		case strings.HasPrefix(p, "&"):
			intersect = append(intersect, p[1:])
		default:
			plain = append(plain, p)
		}
	}
	if len(plain) == 0 {
		plain = []string{GroupAll}
	}

	selected := map[string]bool{}
	for _, p := range plain {
		for _, h := range inv.matchPattern(p) {
			selected[h] = true
		}
	}
	for _, p := range intersect {
		keep := map[string]bool{}
		for _, h := range inv.matchPattern(p) {
			keep[h] = true
		}
		for h := range selected {
			if !keep[h] {
				delete(selected, h)
			}
		}
	}
	for _, p := range exclude {
		for _, h := range inv.matchPattern(p) {
			delete(selected, h)
		}
	}

	var result []string
	for _, h := range inv.order {
		if selected[h] {
			result = append(result, h)
		}
	}
	return result, nil
}

// SplitPatterns splits a limit expression on ',' or, when there is no comma,
// on ':' outside of brackets.
func SplitPatterns(expression string) []string {
	var parts []string
	if strings.Contains(expression, ",") {
		parts = strings.Split(expression, ",")
	} else {
		depth, last := 0, 0
		for i, c := range expression {
			switch c {
			case '[':
				depth++
			case ']':
				depth--
			case ':':
				if depth == 0 {
					parts = append(parts, expression[last:i])
					last = i + 1
				}
			}
		}
		parts = append(parts, expression[last:])
	}
	var result []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

func expandPatternFiles(patterns []string) ([]string, error) {
	var result []string
	for _, p := range patterns {
		if !strings.HasPrefix(p, "@") {
			result = append(result, p)
			continue
		}
		raw, err := os.ReadFile(p[1:])
		if err != nil {
			return nil, fmt.Errorf("error reading limit file: %w", err)
		}
		for _, line := range strings.Split(string(raw), "\n") {
			if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "#") {
				result = append(result, line)
			}
		}
	}
	return result, nil
}

// matchPattern resolves a single pattern to hosts in inventory order.
func (inv *Inventory) matchPattern(pattern string) []string {
	if m := subscriptPattern.FindStringSubmatch(pattern); m != nil && !strings.HasPrefix(pattern, "~") {
		if hosts := inv.matchName(m[1]); len(hosts) > 0 {
			return subscript(hosts, m[2], m[3], strings.Contains(pattern[len(m[1]):], ":"))
		}
	}
	hosts := inv.matchName(pattern)
	if len(hosts) == 0 {
		log.Debug("limit pattern matched no hosts", "pattern", pattern)
	}
	return hosts
}

func (inv *Inventory) matchName(pattern string) []string {
	if pattern == GroupAll || pattern == "*" {
		return inv.hostsOf(GroupAll)
	}
	if _, ok := inv.groups[pattern]; ok {
		return inv.hostsOf(pattern)
	}
	if _, ok := inv.hosts[pattern]; ok {
		return []string{pattern}
	}

	var match func(string) bool
	switch {
	case strings.HasPrefix(pattern, "~"):
		re, err := regexp.Compile(pattern[1:])
		if err != nil {
			log.Warn("invalid limit regex", "pattern", pattern, "error", err)
			return nil
		}
		match = re.MatchString
	case strings.ContainsAny(pattern, "*?["):
		if !doublestar.ValidatePattern(pattern) {
			log.Warn("invalid limit glob", "pattern", pattern)
			return nil
		}
		match = func(name string) bool {
			ok, _ := doublestar.Match(pattern, name)
			return ok
		}
	default:
		return nil
	}

	selected := map[string]bool{}
	for name := range inv.groups {
		if match(name) {
			for _, h := range inv.hostsOf(name) {
				selected[h] = true
			}
		}
	}
	for _, h := range inv.order {
		if match(h) {
			selected[h] = true
		}
	}
	var result []string
	for _, h := range inv.order {
		if selected[h] {
			result = append(result, h)
		}
	}
	return result
}

// subscript picks hosts[i] or the inclusive slice hosts[i:j]. Negative
// indexes count from the end.
func subscript(hosts []string, start, end string, isRange bool) []string {
	n := len(hosts)
	index := func(s string, def int) int {
		if s == "" {
			return def
		}
		i, _ := strconv.Atoi(s)
		if i < 0 {
			i += n
		}
		return i
	}
	i := index(start, 0)
	if !isRange {
		if i < 0 || i >= n {
			return nil
		}
		return []string{hosts[i]}
	}
	j := min(index(end, n-1), n-1)
	if i < 0 || i > j {
		return nil
	}
	return slices.Clone(hosts[i : j+1])
}
