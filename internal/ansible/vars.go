package ansible

import (
	"context"
	"errors"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/s-hell/ansible-cmdb/internal/varsfile"
)

const (
	groupVarsDir = "group_vars"
	hostVarsDir  = "host_vars"
)

// loadVarsFiles reads group_vars and host_vars beside every source. Later
// sources override earlier ones.
func (inv *Inventory) loadVarsFiles(ctx context.Context) error {
	inv.groupFileVars = map[string]map[string]any{}
	inv.hostFileVars = map[string]map[string]any{}
	for _, dir := range inv.varsDirs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := inv.readVarsDir(filepath.Join(dir, groupVarsDir), inv.groupFileVars, slices.Collect(maps.Keys(inv.groups))); err != nil {
			return err
		}
		if err := inv.readVarsDir(filepath.Join(dir, hostVarsDir), inv.hostFileVars, inv.order); err != nil {
			return err
		}
	}
	return nil
}

func (inv *Inventory) readVarsDir(dir string, into map[string]map[string]any, names []string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := varsFileStem(e.Name())
		if !slices.Contains(names, name) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		var vars map[string]any
		if e.IsDir() {
			vars, err = inv.readVarsTree(path)
		} else if varsfile.IsVarsFile(e.Name()) || name == e.Name() {
			vars, err = inv.decoder.DecodeFile(path)
		} else {
			continue
		}
		if err != nil {
			return err
		}
		if into[name] == nil {
			into[name] = map[string]any{}
		}
		maps.Copy(into[name], vars)
	}
	return nil
}

// readVarsTree merges every vars file below dir in lexical path order.
func (inv *Inventory) readVarsTree(dir string) (map[string]any, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), "**", doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	slices.Sort(matches)
	result := map[string]any{}
	for _, m := range matches {
		if !varsfile.IsVarsFile(m) || strings.Contains(m, "/.") {
			continue
		}
		vars, err := inv.decoder.DecodeFile(filepath.Join(dir, filepath.FromSlash(m)))
		if err != nil {
			return nil, err
		}
		maps.Copy(result, vars)
	}
	return result, nil
}

// varsFileStem strips the vars file extensions, so web.yml.age names web.
func varsFileStem(name string) string {
	name = strings.TrimSuffix(name, ".age")
	for _, ext := range []string{".yml", ".yaml", ".json", ".toml"} {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}
