package templates

import (
	"bytes"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/charmbracelet/log"
	"github.com/s-hell/ansible-cmdb/pkg/records"
	"golang.org/x/text/encoding/unicode"
)

// HostsVar is the name the host records are bound to inside templates.
const HostsVar = "hosts"

const maxIncludeDepth = 32

// Engine renders declarative templates with text/template.
type Engine struct {
	resolver *Resolver
	macros   MacroMap
}

func NewEngine(r *Resolver, snippets []*Snippet) *Engine {
	snips := make(map[string]*Snippet, len(snippets))
	for _, s := range snippets {
		snips[s.Name] = s
	}
	return &Engine{
		resolver: r,
		macros:   loadDefaultMacros(snips),
	}
}

func (e *Engine) Render(path string, store *records.Store, vars map[string]any) ([]byte, error) {
	data := make(map[string]any, len(vars)+1)
	maps.Copy(data, vars)
	if _, ok := data[HostsVar]; ok {
		log.Warn("template variable shadowed by host records", "var", HostsVar)
	}
	data[HostsVar] = store.Hosts()

	out, err := e.execute(path, data, data, 0)
	if err != nil {
		return nil, err
	}
	return decodeUTF8(out), nil
}

func (e *Engine) execute(path string, data any, vars map[string]any, depth int) ([]byte, error) {
	if depth > maxIncludeDepth {
		return nil, fmt.Errorf("include depth exceeded rendering %v", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading template %v: %w", path, err)
	}
	funcs := e.macros(vars)
	funcs["include"] = func(name string, data any) (string, error) {
		incPath, err := e.lookupInclude(name, filepath.Dir(path))
		if err != nil {
			return "", err
		}
		res, err := e.execute(incPath, data, vars, depth+1)
		return string(res), err
	}
	tmpl, err := template.New(filepath.Base(path)).Option("missingkey=zero").Funcs(funcs).Parse(string(decodeUTF8(raw)))
	if err != nil {
		return nil, fmt.Errorf("error parsing template %v: %w", path, err)
	}
	result := bytes.NewBuffer([]byte{})
	if err := tmpl.Execute(result, data); err != nil {
		return nil, fmt.Errorf("error rendering template %v: %w", path, err)
	}
	return result.Bytes(), nil
}

// lookupInclude finds an included template next to the including file first,
// then in the template roots, with or without the .tpl suffix.
func (e *Engine) lookupInclude(name, currentDir string) (string, error) {
	dirs := append([]string{currentDir}, e.resolver.Dirs()...)
	names := []string{name}
	if !strings.HasSuffix(name, ExtTemplate) {
		names = append(names, name+ExtTemplate)
	}
	for _, d := range dirs {
		for _, n := range names {
			p := n
			if !filepath.IsAbs(n) {
				p = filepath.Join(d, n)
			}
			if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("%w: include %v", ErrTemplateNotFound, name)
}

// decodeUTF8 replaces invalid UTF-8 sequences with U+FFFD.
func decodeUTF8(b []byte) []byte {
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return []byte(strings.ToValidUTF8(string(b), "\uFFFD"))
	}
	return out
}
