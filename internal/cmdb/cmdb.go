package cmdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/s-hell/ansible-cmdb/internal/ansible"
	"github.com/s-hell/ansible-cmdb/internal/builtin"
	"github.com/s-hell/ansible-cmdb/internal/source"
	"github.com/s-hell/ansible-cmdb/internal/varsfile"
	"github.com/s-hell/ansible-cmdb/pkg/facts"
	"github.com/s-hell/ansible-cmdb/pkg/inventory"
	"github.com/s-hell/ansible-cmdb/pkg/records"
	"github.com/s-hell/ansible-cmdb/pkg/templates"
)

// CMDB runs the collection phases and renders the result.
type CMDB struct {
	config     *Config
	source     source.Source
	provider   inventory.Provider
	loader     *inventory.Loader
	facts      *facts.Loader
	resolver   *templates.Resolver
	dispatcher *templates.Dispatcher
}

type Option func(*options)

type options struct {
	provider inventory.Provider
	modules  *templates.Registry
}

// WithProvider replaces the Ansible inventory reader.
func WithProvider(p inventory.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithModules registers in-process render modules served for .py templates.
func WithModules(r *templates.Registry) Option {
	return func(o *options) { o.modules = r }
}

func New(c *Config, opts ...Option) (*CMDB, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	m := &CMDB{config: c}

	base := ""
	if c.SourceConfig != nil {
		src, err := source.New(c.SourceConfig, c.GitConfig, c.SourceDir())
		if err != nil {
			return nil, fmt.Errorf("invalid source: %w", err)
		}
		m.source = src
		base = c.SourceDir()
	}

	m.provider = o.provider
	if m.provider == nil && len(c.Inventories) > 0 {
		decoder, err := varsfile.NewDecoderFromConfig(c.Secrets)
		if err != nil {
			return nil, fmt.Errorf("error loading secrets: %w", err)
		}
		invOpts := []ansible.Option{ansible.WithDecoder(decoder)}
		if c.PlaybookDir != "" {
			invOpts = append(invOpts, ansible.WithPlaybookDir(c.PlaybookDir))
		}
		m.provider = ansible.New(resolvePaths(base, c.Inventories), invOpts...)
	}
	if m.provider != nil {
		m.loader = inventory.NewLoader(m.provider, *c.Inventory)
	}
	if len(c.FactDirs) > 0 {
		m.facts = facts.NewLoader(resolvePaths(base, c.FactDirs))
	}

	snippets, err := c.snippets()
	if err != nil {
		return nil, err
	}
	modules := o.modules
	if modules == nil {
		modules = templates.NewRegistry()
	}
	if c.Templates.AllowExec {
		modules = modules.WithFallback(&templates.ExecLoader{
			Interpreter: c.Templates.Interpreter,
			Timeout:     c.Templates.Timeout,
		})
	}
	m.resolver = templates.NewResolver(c.TemplateRoots())
	m.dispatcher = templates.NewDispatcher(m.resolver, modules, snippets)
	return m, nil
}

func (c *Config) snippets() ([]*templates.Snippet, error) {
	var result []*templates.Snippet
	for _, name := range slices.Sorted(maps.Keys(c.Snippets)) {
		sc := c.Snippets[name]
		s, err := templates.NewSnippet(name, sc.Body, sc.Parameters)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}

// resolvePaths anchors relative paths below base when a source is synced.
func resolvePaths(base string, paths []string) []string {
	if base == "" {
		return paths
	}
	result := make([]string, len(paths))
	for i, p := range paths {
		if filepath.IsAbs(p) {
			result[i] = p
		} else {
			result[i] = filepath.Join(base, p)
		}
	}
	return result
}

func (m *CMDB) Resolver() *templates.Resolver {
	return m.resolver
}

// SetVaultSecret hands a vault passphrase to the inventory provider if it
// can use one.
func (m *CMDB) SetVaultSecret(id string, secret []byte) {
	if sp, ok := m.provider.(inventory.SecretProvider); ok {
		sp.SetVaultSecret(id, secret)
	}
}

// Setup creates the cache, installs the shipped templates and syncs the
// inventory source unless told not to.
func (m *CMDB) Setup(ctx context.Context) error {
	err := os.MkdirAll(m.config.CacheDir, 0o755)
	if err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("error creating cache dir: %w", err)
	}
	if err := builtin.Install(m.config.BuiltinTemplateDir()); err != nil {
		return err
	}
	if m.source == nil {
		return nil
	}
	if m.config.SourceConfig.NoSync {
		log.Debug("skipping source update on request")
		return nil
	}
	log.Debug("updating configured source cache")
	if err := m.source.Sync(ctx); err != nil {
		return fmt.Errorf("error syncing source: %w", err)
	}
	return nil
}

// Collect builds the host records: inventory first, then facts, then the
// limit.
func (m *CMDB) Collect(ctx context.Context) (*records.Store, error) {
	store := records.NewStore()
	if m.loader != nil {
		if err := m.loader.Load(ctx, store); err != nil {
			return nil, err
		}
	}
	if m.facts != nil {
		if err := m.facts.Load(ctx, store); err != nil {
			return nil, fmt.Errorf("error loading facts: %w", err)
		}
	}
	if m.loader != nil {
		if err := m.loader.ApplyLimit(ctx, store); err != nil {
			return nil, err
		}
	} else if m.config.Inventory.Limit != "" {
		log.Warn("limit ignored without an inventory", "limit", m.config.Inventory.Limit)
	}
	log.Debug("collected host records", "hosts", store.Len())
	return store, nil
}

// Render renders the configured template over store.
func (m *CMDB) Render(ctx context.Context, store *records.Store) ([]byte, error) {
	return m.dispatcher.RenderName(ctx, m.config.Template, store, m.config.Params)
}

// Clean removes the synced source and the installed templates.
func (m *CMDB) Clean() error {
	if m.source != nil {
		if err := m.source.Clean(); err != nil {
			return fmt.Errorf("error cleaning source: %w", err)
		}
	}
	return os.RemoveAll(m.config.BuiltinTemplateDir())
}
