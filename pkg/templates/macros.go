package templates

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"text/template"

	"github.com/BurntSushi/toml"
	"github.com/s-hell/ansible-cmdb/pkg/records"
	"github.com/yuin/goldmark"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

type MacroMap func(vars map[string]any) template.FuncMap

// Snippet is a named, parameterised template fragment usable from any
// template through the snippet function.
type Snippet struct {
	Name       string
	Parameters []string
	Body       *template.Template
}

func NewSnippet(name, body string, params []string) (*Snippet, error) {
	t, err := template.New(name).Parse(body)
	if err != nil {
		return nil, fmt.Errorf("error parsing snippet %v: %w", name, err)
	}
	return &Snippet{
		Name:       name,
		Parameters: params,
		Body:       t,
	}, nil
}

func loadDefaultMacros(snippets map[string]*Snippet) MacroMap {
	titler := cases.Title(language.English)
	return func(vars map[string]any) template.FuncMap {
		return template.FuncMap{
			"exists": func(arg string) bool {
				_, ok := vars[arg]
				return ok
			},
			"var": func(arg string, def any) any {
				val, ok := vars[arg]
				if ok && !empty(val) {
					return val
				}
				return def
			},
			"default": func(def, val any) any {
				if empty(val) {
					return def
				}
				return val
			},
			"dig":        dig,
			"join":       join,
			"sortedKeys": sortedKeys,
			"list": func(items ...any) []any {
				return items
			},
			"dict": func(pairs ...any) (map[string]any, error) {
				if len(pairs)%2 != 0 {
					return nil, errors.New("dict needs key/value pairs")
				}
				m := make(map[string]any, len(pairs)/2)
				for i := 0; i < len(pairs); i += 2 {
					m[fmt.Sprint(pairs[i])] = pairs[i+1]
				}
				return m, nil
			},
			"toJSON": func(v any) (string, error) {
				b, err := json.Marshal(v)
				return string(b), err
			},
			"toPrettyJSON": func(v any) (string, error) {
				b, err := json.MarshalIndent(v, "", "  ")
				return string(b), err
			},
			"toYAML": func(v any) (string, error) {
				b, err := yaml.Marshal(v)
				return string(b), err
			},
			"toTOML": func(v any) (string, error) {
				buf := new(bytes.Buffer)
				err := toml.NewEncoder(buf).Encode(v)
				return buf.String(), err
			},
			"markdown": func(src string) (string, error) {
				buf := new(bytes.Buffer)
				if err := goldmark.Convert([]byte(src), buf); err != nil {
					return "", err
				}
				return buf.String(), nil
			},
			"csv": func(fields ...any) (string, error) {
				row := make([]string, len(fields))
				for i, f := range fields {
					row[i] = toString(f)
				}
				buf := new(bytes.Buffer)
				w := csv.NewWriter(buf)
				if err := w.Write(row); err != nil {
					return "", err
				}
				w.Flush()
				return strings.TrimRight(buf.String(), "\n"), w.Error()
			},
			"title":     titler.String,
			"lower":     strings.ToLower,
			"upper":     strings.ToUpper,
			"trim":      strings.TrimSpace,
			"replace":   strings.ReplaceAll,
			"contains":  strings.Contains,
			"hasPrefix": strings.HasPrefix,
			"split":     strings.Split,
			"str":       toString,
			"pad": func(width int, v any) string {
				return fmt.Sprintf("%-*s", width, toString(v))
			},
			"snippet": func(name string, args ...string) (string, error) {
				s, ok := snippets[name]
				if !ok {
					return "", fmt.Errorf("snippet %v not found", name)
				}
				if len(args) < len(s.Parameters) {
					return "", fmt.Errorf("snippet %v needs %v arguments", name, len(s.Parameters))
				}
				snipVars := make(map[string]string, len(s.Parameters))
				for k, v := range s.Parameters {
					snipVars[v] = args[k]
				}
				result := bytes.NewBuffer([]byte{})
				err := s.Body.Execute(result, snipVars)
				return result.String(), err
			},
		}
	}
}

func empty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(v)
	}
}

// dig walks a dotted path through mappings, host records and sequences and
// returns nil when any step is missing.
func dig(path string, v any) any {
	cur := v
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		switch t := cur.(type) {
		case *records.Host:
			cur = t.Get(part)
		case map[string]any:
			cur = t[part]
		case map[string]string:
			cur = t[part]
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(t) {
				return nil
			}
			cur = t[i]
		case []string:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(t) {
				return nil
			}
			cur = t[i]
		default:
			return nil
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}

func join(sep string, v any) string {
	switch t := v.(type) {
	case []string:
		return strings.Join(t, sep)
	case []any:
		parts := make([]string, len(t))
		for i, p := range t {
			parts[i] = toString(p)
		}
		return strings.Join(parts, sep)
	case nil:
		return ""
	default:
		return toString(v)
	}
}

func sortedKeys(v any) []string {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return []string{}
	}
	keys := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, fmt.Sprint(k.Interface()))
	}
	slices.Sort(keys)
	return keys
}
