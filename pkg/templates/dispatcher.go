package templates

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/s-hell/ansible-cmdb/pkg/records"
)

var ErrUnknownTemplateKind = errors.New("don't know how to render template")

type Kind uint

const (
	KindUnknown Kind = iota
	KindDeclarative
	KindModule
)

func (k Kind) String() string {
	switch k {
	case KindDeclarative:
		return "template"
	case KindModule:
		return "module"
	default:
		return "unknown"
	}
}

// KindOf picks the rendering strategy from the file suffix alone.
func KindOf(path string) Kind {
	switch filepath.Ext(path) {
	case ExtTemplate:
		return KindDeclarative
	case ExtModule:
		return KindModule
	default:
		return KindUnknown
	}
}

type Dispatcher struct {
	resolver *Resolver
	engine   *Engine
	modules  ModuleLoader
}

// NewDispatcher builds a dispatcher over the resolver's roots. A nil loader
// leaves executable modules disabled.
func NewDispatcher(r *Resolver, modules ModuleLoader, snippets []*Snippet) *Dispatcher {
	if modules == nil {
		modules = NewRegistry()
	}
	return &Dispatcher{
		resolver: r,
		engine:   NewEngine(r, snippets),
		modules:  modules,
	}
}

// RenderName resolves name against the template roots and renders it.
func (d *Dispatcher) RenderName(ctx context.Context, name string, store *records.Store, vars map[string]any) ([]byte, error) {
	path, err := d.resolver.Resolve(name)
	if err != nil {
		return nil, err
	}
	log.Debug("resolved template", "name", name, "path", path, "kind", KindOf(path))
	return d.Render(ctx, path, store, vars)
}

func (d *Dispatcher) Render(ctx context.Context, path string, store *records.Store, vars map[string]any) ([]byte, error) {
	if vars == nil {
		vars = map[string]any{}
	}
	switch KindOf(path) {
	case KindDeclarative:
		return d.engine.Render(path, store, vars)
	case KindModule:
		m, err := d.modules.LoadModule(path)
		if err != nil {
			return nil, fmt.Errorf("error loading module %v: %w", path, err)
		}
		return m.Render(ctx, store.Hosts(), vars, d.resolver.Dirs())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplateKind, path)
	}
}
