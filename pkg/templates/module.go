package templates

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/s-hell/ansible-cmdb/pkg/records"
)

var ErrExecDisabled = errors.New("executable template modules are disabled")

const defaultInterpreter = "python3"

// execBootstrap loads the module file named by its first argument, decodes
// an ExecRequest from stdin and writes the result of the module's
// render(hosts, vars, tpl_dirs) to stdout.
//
//go:embed exec_bootstrap.py
var execBootstrap string

// Module renders host records programmatically. Modules receive the template
// roots so they can resolve and render sub-templates themselves.
type Module interface {
	Render(ctx context.Context, hosts map[string]*records.Host, vars map[string]any, tplDirs []string) ([]byte, error)
}

type ModuleFunc func(ctx context.Context, hosts map[string]*records.Host, vars map[string]any, tplDirs []string) ([]byte, error)

func (f ModuleFunc) Render(ctx context.Context, hosts map[string]*records.Host, vars map[string]any, tplDirs []string) ([]byte, error) {
	return f(ctx, hosts, vars, tplDirs)
}

// ModuleLoader turns a resolved module file into a Module. It is the only way
// module files are turned into code.
type ModuleLoader interface {
	LoadModule(path string) (Module, error)
}

// Registry serves in-process modules registered under the module file's stem,
// so <root>/inventory.py is served by the module registered as "inventory".
type Registry struct {
	modules  map[string]Module
	fallback ModuleLoader
}

func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

func (r *Registry) Register(name string, m Module) {
	r.modules[name] = m
}

// WithFallback sets the loader used for modules that aren't registered.
func (r *Registry) WithFallback(l ModuleLoader) *Registry {
	r.fallback = l
	return r
}

func (r *Registry) LoadModule(path string) (Module, error) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if m, ok := r.modules[stem]; ok {
		return m, nil
	}
	if r.fallback != nil {
		return r.fallback.LoadModule(path)
	}
	return nil, fmt.Errorf("%w: no module registered for %v", ErrExecDisabled, stem)
}

// ExecLoader loads module files in an external interpreter and calls their
// render(hosts, vars, tpl_dirs) function. The request is written as JSON to
// the interpreter's stdin and the value render returns is the output. A
// module without a callable render, or a render returning None, is an error.
// Interpreter defaults to python3.
type ExecLoader struct {
	Interpreter string
	Timeout     time.Duration
}

type ExecRequest struct {
	Hosts   map[string]*records.Host `json:"hosts"`
	Vars    map[string]any           `json:"vars"`
	TplDirs []string                 `json:"tpl_dirs"`
}

func (l *ExecLoader) LoadModule(path string) (Module, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("module %v is not a regular file", path)
	}
	interpreter := l.Interpreter
	if interpreter == "" {
		interpreter = defaultInterpreter
	}
	return &execModule{
		path:        path,
		interpreter: interpreter,
		timeout:     l.Timeout,
	}, nil
}

type execModule struct {
	path        string
	interpreter string
	timeout     time.Duration
}

func (m *execModule) Render(ctx context.Context, hosts map[string]*records.Host, vars map[string]any, tplDirs []string) ([]byte, error) {
	req, err := json.Marshal(ExecRequest{
		Hosts:   hosts,
		Vars:    vars,
		TplDirs: tplDirs,
	})
	if err != nil {
		return nil, fmt.Errorf("error encoding module request: %w", err)
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, m.interpreter, "-c", execBootstrap, m.path)
	cmd.Dir = filepath.Dir(m.path)
	cmd.Stdin = bytes.NewReader(req)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	log.Debug("running template module", "module", m.path, "interpreter", m.interpreter)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("error running module %v: %w: %v", m.path, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
