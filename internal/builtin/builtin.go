// Package builtin carries the report templates shipped with the binary.
package builtin

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/s-hell/ansible-cmdb/pkg/templates"
)

// DefaultTemplate is rendered when no template is configured.
const DefaultTemplate = "html_fancy"

//go:embed templates/*.tpl
var shipped embed.FS

func FS() fs.FS {
	sub, err := fs.Sub(shipped, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// Names lists the shipped templates that can be rendered directly. Names
// starting with an underscore are include fragments and are left out.
func Names() []string {
	entries, err := fs.ReadDir(FS(), ".")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), templates.ExtTemplate)
		if !strings.HasPrefix(name, "_") {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Install writes the shipped templates into dir, replacing what an earlier
// run left there, so the resolver can find them as regular files.
func Install(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("error clearing template dir %v: %w", dir, err)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return err
	}
	if err := os.CopyFS(dir, FS()); err != nil {
		return fmt.Errorf("error installing templates into %v: %w", dir, err)
	}
	log.Debug("installed shipped templates", "dir", dir)
	return nil
}
