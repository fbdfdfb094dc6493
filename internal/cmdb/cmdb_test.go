package cmdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/s-hell/ansible-cmdb/pkg/records"
	"github.com/s-hell/ansible-cmdb/pkg/templates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, values map[string]any) *Config {
	t.Helper()
	k := koanf.New(".")
	require.NoError(t, k.Load(confmap.Provider(values, "."), nil))
	c, err := NewConfig(k)
	require.NoError(t, err)
	return c
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "inventory", "hosts"), `
[webservers]
web1 http_port=80
web2

[databases]
db1

[webservers:vars]
services=["nginx"]
`)
	writeFile(t, filepath.Join(dir, "inventory", "group_vars", "all.yml"), "dc: ams\n")
	writeFile(t, filepath.Join(dir, "out", "web1"), `{"ansible_facts": {"ansible_distribution": "Debian"}}`)
	writeFile(t, filepath.Join(dir, "out", "stray"), `{"ansible_distribution": "Alpine"}`)
	writeFile(t, filepath.Join(dir, "tpl", "names.tpl"), `{{ range $name, $h := .hosts }}{{ $name }} {{ end }}`)
	return dir
}

func Test_NewConfig(t *testing.T) {
	c := testConfig(t, map[string]any{
		"inventory":         []string{"hosts"},
		"params.title":      "Fleet",
		"params.limits.max": 3,
		"templates.timeout": "10s",
		"snippets.box.body": "[{{ .x }}]",
		"keep_ansible_vars": true,
	})
	assert.Equal(t, []string{"hosts"}, c.Inventories)
	assert.Equal(t, "html_fancy", c.Template)
	assert.Equal(t, "python3", c.Templates.Interpreter)
	assert.Equal(t, 10*time.Second, c.Templates.Timeout)
	assert.Equal(t, "Fleet", c.Params["title"])
	assert.Equal(t, map[string]any{"max": 3}, c.Params["limits"])
	assert.Equal(t, "[{{ .x }}]", c.Snippets["box"].Body)
	assert.True(t, c.Inventory.KeepInternalVars)
	assert.Nil(t, c.SourceConfig)
	assert.NotEmpty(t, c.CacheDir)
	assert.NoError(t, c.Validate())
}

func Test_ConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]any
		wantErr bool
	}{
		{
			name:    "nothing to read",
			values:  map[string]any{},
			wantErr: true,
		},
		{
			name:   "facts only",
			values: map[string]any{"fact_dirs": []string{"out"}},
		},
		{
			name:    "bad source",
			values:  map[string]any{"inventory": []string{"hosts"}, "source.url": "nowhere"},
			wantErr: true,
		},
		{
			name:    "missing vault password file",
			values:  map[string]any{"inventory": []string{"hosts"}, "vault.password_file": "/nonexistent/pass"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testConfig(t, tt.values).Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func Test_Collect(t *testing.T) {
	ctx := context.Background()
	dir := testTree(t)
	c := testConfig(t, map[string]any{
		"inventory": []string{filepath.Join(dir, "inventory", "hosts")},
		"fact_dirs": []string{filepath.Join(dir, "out")},
		"cache_dir": filepath.Join(dir, "cache"),
	})
	m, err := New(c)
	require.NoError(t, err)
	require.NoError(t, m.Setup(ctx))

	store, err := m.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"db1", "stray", "web1", "web2"}, store.Names())

	web1, ok := store.Get("web1")
	require.True(t, ok)
	assert.Equal(t, []string{"webservers"}, web1.Groups())
	assert.Equal(t, 80, web1.Hostvars()["http_port"])
	assert.Equal(t, "ams", web1.Hostvars()["dc"])
	assert.NotContains(t, web1.Hostvars(), "services")
	assert.Equal(t, "web1", web1.Hostvars()["inventory_hostname"])
	assert.Equal(t, map[string]any{"ansible_distribution": "Debian"}, web1.Get("ansible_facts"))

	stray, ok := store.Get("stray")
	require.True(t, ok)
	assert.Empty(t, stray.Groups())
}

func Test_CollectLimit(t *testing.T) {
	ctx := context.Background()
	dir := testTree(t)
	c := testConfig(t, map[string]any{
		"inventory": []string{filepath.Join(dir, "inventory", "hosts")},
		"fact_dirs": []string{filepath.Join(dir, "out")},
		"cache_dir": filepath.Join(dir, "cache"),
		"limit":     "webservers:!web2",
	})
	m, err := New(c)
	require.NoError(t, err)
	store, err := m.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"web1"}, store.Names())
}

func Test_Render(t *testing.T) {
	ctx := context.Background()
	dir := testTree(t)
	c := testConfig(t, map[string]any{
		"inventory":     []string{filepath.Join(dir, "inventory", "hosts")},
		"cache_dir":     filepath.Join(dir, "cache"),
		"template_dirs": []string{filepath.Join(dir, "tpl")},
		"template":      "names",
	})
	m, err := New(c)
	require.NoError(t, err)
	require.NoError(t, m.Setup(ctx))
	store, err := m.Collect(ctx)
	require.NoError(t, err)

	out, err := m.Render(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "db1 web1 web2 ", string(out))

	path, err := m.Resolver().Resolve("csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cache", "templates", "csv.tpl"), path)
}

func Test_RenderModule(t *testing.T) {
	ctx := context.Background()
	dir := testTree(t)
	writeFile(t, filepath.Join(dir, "tpl", "count.py"), "# served in-process\n")
	c := testConfig(t, map[string]any{
		"fact_dirs":     []string{filepath.Join(dir, "out")},
		"cache_dir":     filepath.Join(dir, "cache"),
		"template_dirs": []string{filepath.Join(dir, "tpl")},
		"template":      "count",
	})
	reg := templates.NewRegistry()
	reg.Register("count", templates.ModuleFunc(func(_ context.Context, hosts map[string]*records.Host, _ map[string]any, _ []string) ([]byte, error) {
		return []byte{byte('0' + len(hosts))}, nil
	}))
	m, err := New(c, WithModules(reg))
	require.NoError(t, err)
	store, err := m.Collect(ctx)
	require.NoError(t, err)
	out, err := m.Render(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "2", string(out))
}

func Test_RenderUnknownTemplate(t *testing.T) {
	ctx := context.Background()
	dir := testTree(t)
	c := testConfig(t, map[string]any{
		"fact_dirs": []string{filepath.Join(dir, "out")},
		"cache_dir": filepath.Join(dir, "cache"),
		"template":  "nope",
	})
	m, err := New(c)
	require.NoError(t, err)
	require.NoError(t, m.Setup(ctx))
	_, err = m.Render(ctx, records.NewStore())
	assert.ErrorIs(t, err, templates.ErrTemplateNotFound)
}
