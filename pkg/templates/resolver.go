package templates

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

var ErrTemplateNotFound = errors.New("template not found")

const (
	ExtTemplate = ".tpl"
	ExtModule   = ".py"
)

// Resolver finds templates by name across an ordered list of template roots.
type Resolver struct {
	dirs []string
}

func NewResolver(dirs []string) *Resolver {
	return &Resolver{dirs: slices.Clone(dirs)}
}

func (r *Resolver) Dirs() []string {
	return slices.Clone(r.dirs)
}

// Candidates lists the paths tried for name, in order: name itself, then
// <dir>/<name>.tpl and <dir>/<name>.py for every root.
func (r *Resolver) Candidates(name string) []string {
	result := make([]string, 0, 1+2*len(r.dirs))
	result = append(result, realpath(name))
	for _, d := range r.dirs {
		result = append(result,
			realpath(filepath.Join(d, name+ExtTemplate)),
			realpath(filepath.Join(d, name+ExtModule)),
		)
	}
	return result
}

// Resolve returns the first candidate that is a regular file.
func (r *Resolver) Resolve(name string) (string, error) {
	for _, c := range r.Candidates(name) {
		info, err := os.Stat(c)
		if err != nil {
			continue
		}
		if info.Mode().IsRegular() {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %v", ErrTemplateNotFound, name)
}

func realpath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
