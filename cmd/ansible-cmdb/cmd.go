package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/s-hell/ansible-cmdb/pkg/records"
	"github.com/sergi/go-diff/diffmatchpatch"
	"gopkg.in/yaml.v3"
)

// parseParams turns key=value pairs into params.* config keys.
func parseParams(pairs []string, cliflags map[string]any) error {
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid param %q, expected key=value", p)
		}
		cliflags["params."+key] = value
	}
	return nil
}

func writeHosts(w io.Writer, store *records.Store, format string) error {
	switch format {
	case "json", "":
		out, err := json.MarshalIndent(store, "", "  ")
		if err != nil {
			return fmt.Errorf("error converting to json: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", out)
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(store.Hosts()); err != nil {
			return fmt.Errorf("error converting to yaml: %w", err)
		}
		return enc.Close()
	case "toml":
		hosts := make(map[string]any, store.Len())
		for name, h := range store.Hosts() {
			hosts[name] = h.Map()
		}
		if err := toml.NewEncoder(w).Encode(hosts); err != nil {
			return fmt.Errorf("error converting to toml: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// showDiff prints the changes between the report at path and out.
func showDiff(w io.Writer, path string, out []byte) error {
	if path == "" {
		return errors.New("--diff needs an output file to compare against")
	}
	previous, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info("no previous report to compare", "output", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("error reading previous report: %w", err)
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(previous), string(out), false)
	if len(diffs) == 0 || (len(diffs) == 1 && diffs[0].Type == diffmatchpatch.DiffEqual) {
		fmt.Fprintln(w, "No changes")
		return nil
	}
	diffs = dmp.DiffCleanupSemantic(diffs)
	fmt.Fprintf(w, "Diffs:\n%v\n", dmp.DiffPrettyText(diffs))
	return nil
}

func writeReport(path string, out []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(out)
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("error writing report: %w", err)
	}
	log.Debug("wrote report", "output", path, "bytes", len(out))
	return nil
}
