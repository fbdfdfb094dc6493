package facts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/s-hell/ansible-cmdb/pkg/records"
	"gopkg.in/yaml.v3"
)

// KeyFacts is the record field gathered facts are stored under.
const KeyFacts = "ansible_facts"

var factExtensions = []string{".json", ".yml", ".yaml"}

// Loader reads fact files produced by earlier collection runs, such as the
// output of `ansible -m setup --tree <dir>` or a fact cache directory. Each
// file holds the facts of the host it is named after.
type Loader struct {
	dirs []string
}

func NewLoader(dirs []string) *Loader {
	return &Loader{dirs: dirs}
}

func (l *Loader) Load(ctx context.Context, store *records.Store) error {
	dirs, err := l.expandDirs()
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("error reading fact dir %v: %w", dir, err)
		}
		for _, e := range entries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			path := filepath.Join(dir, e.Name())
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("error reading fact file %v: %w", path, err)
			}
			facts, err := ParseFacts(raw, e.Name())
			if err != nil {
				log.Warn("skipping unparseable fact file", "file", path, "error", err)
				continue
			}
			hostname := HostnameFromFile(e.Name())
			for k, v := range facts {
				store.Merge(hostname, k, v)
			}
			log.Debug("loaded facts", "host", hostname, "file", path)
		}
	}
	return nil
}

// expandDirs resolves glob patterns in the configured fact dirs.
func (l *Loader) expandDirs() ([]string, error) {
	var result []string
	for _, d := range l.dirs {
		if !strings.ContainsAny(d, "*?[{") {
			result = append(result, d)
			continue
		}
		matches, err := doublestar.FilepathGlob(d)
		if err != nil {
			return nil, fmt.Errorf("invalid fact dir pattern %v: %w", d, err)
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.IsDir() {
				result = append(result, m)
			}
		}
	}
	return result, nil
}

// HostnameFromFile strips a known data extension. Bare names are kept as is
// since host names often contain dots.
func HostnameFromFile(name string) string {
	for _, ext := range factExtensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

// ParseFacts decodes a fact file. Setup tree output already nests facts under
// ansible_facts; fact cache files are bare fact maps and get wrapped.
func ParseFacts(raw []byte, name string) (map[string]any, error) {
	var facts map[string]any
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty fact file")
	}
	ext := filepath.Ext(name)
	if ext == ".yml" || ext == ".yaml" || trimmed[0] != '{' {
		if err := yaml.Unmarshal(trimmed, &facts); err != nil {
			return nil, err
		}
	} else {
		if err := json.Unmarshal(trimmed, &facts); err != nil {
			return nil, err
		}
	}
	if facts == nil {
		return nil, fmt.Errorf("no facts found")
	}
	if _, ok := facts[KeyFacts]; ok {
		return facts, nil
	}
	return map[string]any{KeyFacts: facts}, nil
}
