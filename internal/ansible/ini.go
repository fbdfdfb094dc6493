package ansible

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"gopkg.in/ini.v1"
)

const (
	sectionVars     = "vars"
	sectionChildren = "children"
)

// parseINI reads the INI inventory layout. Host and children sections are
// not key=value pairs, so they are handed back raw by the ini parser and
// tokenised here; [group:vars] sections are regular ini sections.
func (inv *Inventory) parseINI(raw []byte, source string) error {
	var unparseable []string
	for _, name := range sectionNames(raw) {
		if _, kind, _ := strings.Cut(name, ":"); kind != sectionVars {
			unparseable = append(unparseable, name)
		}
	}
	unparseable = append(unparseable, GroupUngrouped)
	data := append([]byte("["+GroupUngrouped+"]\n"), raw...)

	f, err := ini.LoadSources(ini.LoadOptions{
		UnparseableSections:      unparseable,
		AllowBooleanKeys:         true,
		SpaceBeforeInlineComment: true,
	}, data)
	if err != nil {
		return err
	}

	// Children are linked after every section is read since a
	// [group:children] section may name groups defined further down.
	type edge struct{ parent, child string }
	var edges []edge
	for _, sec := range f.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection {
			continue
		}
		group, kind, _ := strings.Cut(name, ":")
		switch kind {
		case "":
			if err := inv.parseINIHosts(group, sec.Body(), source); err != nil {
				return fmt.Errorf("section [%v]: %w", name, err)
			}
		case sectionChildren:
			inv.addGroup(group)
			for _, line := range bodyLines(sec.Body()) {
				edges = append(edges, edge{group, strings.Fields(line)[0]})
			}
		case sectionVars:
			g := inv.addGroup(group)
			for _, key := range sec.Keys() {
				g.Vars[key.Name()] = parseINIValue(key.Value())
			}
		default:
			return fmt.Errorf("section [%v]: unknown section type %q", name, kind)
		}
	}
	for _, e := range edges {
		inv.addChild(e.parent, e.child)
	}
	return nil
}

func (inv *Inventory) parseINIHosts(group, body, source string) error {
	inv.addGroup(group)
	for _, line := range bodyLines(body) {
		tokens, err := shlex.Split(line)
		if err != nil {
			return fmt.Errorf("error parsing host line %q: %w", line, err)
		}
		if len(tokens) == 0 {
			continue
		}
		vars := map[string]any{}
		for _, tok := range tokens[1:] {
			k, v, ok := strings.Cut(tok, "=")
			if !ok {
				return fmt.Errorf("expected key=value host variable, got %q", tok)
			}
			vars[k] = parseINIValue(v)
		}
		names, err := ExpandHostPattern(tokens[0])
		if err != nil {
			return err
		}
		for _, h := range names {
			inv.addHost(h, source, vars)
			if group == GroupUngrouped {
				continue
			}
			inv.addHostToGroup(group, h)
		}
	}
	return nil
}

func sectionNames(raw []byte) []string {
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			names = append(names, strings.TrimSpace(line[1:len(line)-1]))
		}
	}
	return names
}

func bodyLines(body string) []string {
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// parseINIValue turns literal looking values into numbers, booleans or nil
// and leaves everything else a string.
func parseINIValue(s string) any {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && strings.ContainsAny(s, ".eE") {
		return f
	}
	switch s {
	case "True":
		return true
	case "False":
		return false
	case "None":
		return nil
	}
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
