package ansible

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/s-hell/ansible-cmdb/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const iniInventory = `ungrouped1 ansible_host=10.0.0.9

[webservers]
web[01:03].example.com http_port=80
db-special ansible_port=2222 note="hello world"

[databases]
db[a:b]

# comment lines are skipped
[prod:children]
webservers
databases

[webservers:vars]
http_port=8080
tier=frontend

[all:vars]
ntp=ntp.example.com
debug=True
`

func writeTree(t *testing.T, base string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(base, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func iniFixture(t *testing.T) (*Inventory, string) {
	t.Helper()
	base := t.TempDir()
	writeTree(t, base, map[string]string{
		"hosts":                           iniInventory,
		"group_vars/webservers.yml":       "tier: web\n",
		"group_vars/all/ntp.yml":          "ntp: ntp.internal\n",
		"group_vars/all/.hidden.yml":      "ntp: hidden\n",
		"group_vars/nosuchgroup.yml":      "ignored: true\n",
		"host_vars/web01.example.com":     "http_port: 9000\n",
		"host_vars/dba/main.yml":          "role: primary\n",
		"host_vars/dba/extra/replica.yml": "replicas: [dbb]\n",
	})
	return New([]string{filepath.Join(base, "hosts")}, WithPlaybookDir(base)), base
}

func Test_INIHosts(t *testing.T) {
	ctx := context.Background()
	inv, _ := iniFixture(t)

	hosts, err := inv.ListHosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"ungrouped1", "web01.example.com", "web02.example.com", "web03.example.com",
		"db-special", "dba", "dbb",
	}, hosts)

	groups, err := inv.GroupNames(ctx, "web02.example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"prod", "webservers"}, groups)

	groups, err = inv.GroupNames(ctx, "ungrouped1")
	require.NoError(t, err)
	assert.Empty(t, groups)

	_, err = inv.GroupNames(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownHost)
}

func Test_ResolvedVarsPrecedence(t *testing.T) {
	ctx := context.Background()
	inv, base := iniFixture(t)

	tests := []struct {
		host string
		want map[string]any
	}{
		{
			host: "web01.example.com",
			want: map[string]any{"http_port": 9000, "tier": "web", "ntp": "ntp.internal", "debug": true},
		},
		{
			host: "web02.example.com",
			want: map[string]any{"http_port": 80, "tier": "web", "ntp": "ntp.internal"},
		},
		{
			host: "db-special",
			want: map[string]any{"ansible_port": 2222, "note": "hello world", "http_port": 8080},
		},
		{
			host: "dba",
			want: map[string]any{"role": "primary", "replicas": []any{"dbb"}, "ntp": "ntp.internal"},
		},
		{
			host: "ungrouped1",
			want: map[string]any{"ansible_host": "10.0.0.9", "ntp": "ntp.internal"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			vars, err := inv.ResolvedVars(ctx, tt.host)
			require.NoError(t, err)
			for k, v := range tt.want {
				assert.Equal(t, v, vars[k], k)
			}
			assert.NotContains(t, vars, "ignored")
			assert.Equal(t, tt.host, vars["inventory_hostname"])
			assert.Equal(t, strings.Split(tt.host, ".")[0], vars["inventory_hostname_short"])
			assert.Equal(t, filepath.Join(base, "hosts"), vars["inventory_file"])
			assert.Equal(t, base, vars["inventory_dir"])
			assert.Equal(t, base, vars["playbook_dir"])
			assert.True(t, strings.HasPrefix(vars["omit"].(string), "__omit_place_holder__"))
			assert.Equal(t, defaultPython, vars["ansible_playbook_python"])
		})
	}

	vars, err := inv.ResolvedVars(ctx, "dbb")
	require.NoError(t, err)
	assert.Equal(t, []string{"databases", "prod"}, vars["group_names"])
	groups := vars["groups"].(map[string]any)
	assert.Equal(t, []string{"dba", "dbb"}, groups["databases"])
	assert.Equal(t, []string{"ungrouped1"}, groups["ungrouped"])
	assert.Len(t, groups["all"], 7)
}

func Test_YAMLInventory(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	writeTree(t, base, map[string]string{
		"inventory/hosts.yml": `all:
  vars:
    env: prod
  hosts:
    bastion:
  children:
    web:
      hosts:
        web[1:2]:
          http_port: 80
      vars:
        role: web
    app:
      children:
        web:
      vars:
        role: app
        tier: app
`,
		"inventory/extra.yaml":    "staging:\n  hosts:\n    web2:\n",
		"inventory/README.md":     "not an inventory",
		"inventory/.hidden.yml":   "broken: [",
		"inventory/group_vars/web": "owner: team-web\n",
	})
	inv := New([]string{filepath.Join(base, "inventory")})

	hosts, err := inv.ListHosts(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bastion", "web1", "web2"}, hosts)

	groups, err := inv.GroupNames(ctx, "web2")
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "staging", "web"}, groups)

	vars, err := inv.ResolvedVars(ctx, "web1")
	require.NoError(t, err)
	assert.Equal(t, "web", vars["role"])
	assert.Equal(t, "app", vars["tier"])
	assert.Equal(t, "prod", vars["env"])
	assert.Equal(t, 80, vars["http_port"])
	assert.Equal(t, "team-web", vars["owner"])

	groups, err = inv.GroupNames(ctx, "bastion")
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func Test_YAMLInventoryErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown group key", content: "web:\n  host:\n    a:\n"},
		{name: "group not a mapping", content: "web: [a, b]\n"},
		{name: "hosts not a mapping", content: "web:\n  hosts: [a]\n"},
		{name: "bad range", content: "web:\n  hosts:\n    a[3:1]:\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := t.TempDir()
			writeTree(t, base, map[string]string{"hosts.yml": tt.content})
			_, err := New([]string{filepath.Join(base, "hosts.yml")}).ListHosts(context.Background())
			assert.Error(t, err)
		})
	}
}

func Test_LoadErrors(t *testing.T) {
	_, err := New(nil).ListHosts(context.Background())
	assert.ErrorIs(t, err, ErrNoSources)

	_, err = New([]string{filepath.Join(t.TempDir(), "missing")}).ListHosts(context.Background())
	assert.Error(t, err)
}

func Test_VaultVars(t *testing.T) {
	ctx := context.Background()
	enc, err := vault.Encrypt([]byte("hunter2"), []byte("pw"), "")
	require.NoError(t, err)
	var scalar strings.Builder
	scalar.WriteString("db_password: !vault |\n")
	for _, line := range strings.Split(strings.TrimSpace(string(enc)), "\n") {
		scalar.WriteString("  " + line + "\n")
	}
	whole, err := vault.Encrypt([]byte("api_key: abc\n"), []byte("pw"), "")
	require.NoError(t, err)

	base := t.TempDir()
	writeTree(t, base, map[string]string{
		"hosts":                    "[databases]\ndb1\n",
		"group_vars/databases.yml": scalar.String(),
		"host_vars/db1/vault.yml":  string(whole),
		"host_vars/db1/plain.yml":  "port: 5432\n",
	})

	locked := New([]string{filepath.Join(base, "hosts")})
	_, err = locked.ListHosts(ctx)
	assert.ErrorIs(t, err, vault.ErrNoSecret)

	inv := New([]string{filepath.Join(base, "hosts")})
	inv.SetVaultSecret(vault.DefaultID, []byte("pw"))
	vars, err := inv.ResolvedVars(ctx, "db1")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", vars["db_password"])
	assert.Equal(t, "abc", vars["api_key"])
	assert.Equal(t, 5432, vars["port"])
}
