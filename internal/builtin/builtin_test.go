package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/s-hell/ansible-cmdb/pkg/records"
	"github.com/s-hell/ansible-cmdb/pkg/templates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reportStore() *records.Store {
	s := records.NewStore()
	s.Merge("web1", records.KeyGroups, records.Set("webservers", "prod"))
	s.Merge("web1", records.KeyHostvars, map[string]any{"http_port": 8080, "owner": "<ops>"})
	s.Merge("web1", "ansible_facts", map[string]any{
		"ansible_distribution":         "Ubuntu",
		"ansible_distribution_version": "24.04",
		"ansible_default_ipv4":         map[string]any{"address": "10.0.0.1"},
		"ansible_memtotal_mb":          2048,
		"ansible_processor_vcpus":      2,
	})
	s.Merge("db1", records.KeyGroups, records.Set("databases"))
	return s
}

func installed(t *testing.T) *templates.Dispatcher {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "templates")
	require.NoError(t, Install(dir))
	return templates.NewDispatcher(templates.NewResolver([]string{dir}), nil, nil)
}

func Test_Names(t *testing.T) {
	assert.Equal(t, []string{"csv", "html_fancy", "json", "markdown", "txt_table"}, Names())
	assert.Contains(t, Names(), DefaultTemplate)
}

func Test_InstallReplaces(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "templates")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.tpl"), []byte("x"), 0o644))
	require.NoError(t, Install(dir))
	assert.NoFileExists(t, filepath.Join(dir, "old.tpl"))
	assert.FileExists(t, filepath.Join(dir, "_host_detail.tpl"))
	require.NoError(t, Install(dir))
}

func Test_RenderCSV(t *testing.T) {
	out, err := installed(t).RenderName(context.Background(), "csv", reportStore(), nil)
	require.NoError(t, err)
	assert.Equal(t, "name,groups,os,ip,mem_mb,cpus\ndb1,databases,,,,\nweb1,prod webservers,Ubuntu,10.0.0.1,2048,2\n", string(out))
}

func Test_RenderJSON(t *testing.T) {
	out, err := installed(t).RenderName(context.Background(), "json", reportStore(), nil)
	require.NoError(t, err)
	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, []any{"prod", "webservers"}, decoded["web1"]["groups"])
	assert.Equal(t, "db1", decoded["db1"]["name"])
}

func Test_RenderTextTable(t *testing.T) {
	out, err := installed(t).RenderName(context.Background(), "txt_table", reportStore(), nil)
	require.NoError(t, err)
	assert.Contains(t, string(out), "Ubuntu 24.04")
	assert.Contains(t, string(out), "prod,webservers")
}

func Test_RenderMarkdown(t *testing.T) {
	out, err := installed(t).RenderName(context.Background(), "markdown", reportStore(), map[string]any{"title": "Fleet"})
	require.NoError(t, err)
	assert.Contains(t, string(out), "# Fleet\n")
	assert.Contains(t, string(out), "| web1 | prod, webservers | Ubuntu | 10.0.0.1 |")
	assert.Contains(t, string(out), "* `http_port`: 8080")
	assert.Contains(t, string(out), "No host variables.")
}

func Test_RenderHTML(t *testing.T) {
	vars := map[string]any{"title": "Fleet <prod>", "description": "Managed by **ops**"}
	out, err := installed(t).RenderName(context.Background(), DefaultTemplate, reportStore(), vars)
	require.NoError(t, err)
	html := string(out)
	assert.Contains(t, html, "<title>Fleet &lt;prod&gt;</title>")
	assert.Contains(t, html, "<strong>ops</strong>")
	assert.Contains(t, html, `<section class="host" id="host-web1">`)
	assert.Contains(t, html, `<section class="host" id="host-db1">`)
	assert.Contains(t, html, `&#34;\u003cops\u003e&#34;`)
	assert.NotContains(t, html, "<ops>")
}
