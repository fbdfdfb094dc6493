package varsfile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"
	"github.com/s-hell/ansible-cmdb/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_IsVarsFile(t *testing.T) {
	for name, want := range map[string]bool{
		"all":          true,
		"all.yml":      true,
		"web.yaml":     true,
		"db.json":      true,
		"prod.toml":    true,
		"secrets.age":  true,
		".hidden.yml":  false,
		"notes.txt":    false,
		"script.py":    false,
		"vault.yml.gz": false,
	} {
		assert.Equal(t, want, IsVarsFile(name), name)
	}
}

func Test_Decode(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		raw     string
		want    map[string]any
		wantErr bool
	}{
		{
			name: "yaml",
			file: "all.yml",
			raw:  "ntp_server: ntp.example.com\nports: [80, 443]\n",
			want: map[string]any{"ntp_server": "ntp.example.com", "ports": []any{80, 443}},
		},
		{
			name: "bare name is yaml",
			file: "web",
			raw:  "http_port: 8080\n",
			want: map[string]any{"http_port": 8080},
		},
		{
			name: "json",
			file: "db.json",
			raw:  `{"db_port": 5432, "replicas": ["db2"]}`,
			want: map[string]any{"db_port": float64(5432), "replicas": []any{"db2"}},
		},
		{
			name: "toml",
			file: "prod.toml",
			raw:  "env = \"prod\"\n[backup]\nenabled = true\n",
			want: map[string]any{"env": "prod", "backup": map[string]any{"enabled": true}},
		},
		{
			name: "unsafe tag",
			file: "all.yml",
			raw:  "template_literal: !unsafe '{{ not_rendered }}'\n",
			want: map[string]any{"template_literal": "{{ not_rendered }}"},
		},
		{
			name: "empty yaml",
			file: "all.yml",
			raw:  "---\n",
			want: map[string]any{},
		},
		{
			name: "empty json",
			file: "all.json",
			raw:  "",
			want: map[string]any{},
		},
		{
			name:    "yaml list",
			file:    "all.yml",
			raw:     "- a\n- b\n",
			wantErr: true,
		},
		{
			name:    "broken toml",
			file:    "prod.toml",
			raw:     "env = ",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewDecoder(nil).Decode([]byte(tt.raw), tt.file)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_DecodeVaultFile(t *testing.T) {
	enc, err := vault.Encrypt([]byte("db_password: hunter2\n"), []byte("pw"), "")
	require.NoError(t, err)

	secrets := vault.NewSecrets()
	secrets.Add(vault.DefaultID, []byte("pw"))
	got, err := NewDecoder(secrets).Decode(enc, "vault.yml")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"db_password": "hunter2"}, got)

	_, err = NewDecoder(nil).Decode(enc, "vault.yml")
	assert.ErrorIs(t, err, vault.ErrNoSecret)
}

func Test_DecodeVaultScalar(t *testing.T) {
	enc, err := vault.Encrypt([]byte("s3cret"), []byte("pw"), "")
	require.NoError(t, err)
	var doc strings.Builder
	doc.WriteString("user: admin\npassword: !vault |\n")
	for _, line := range strings.Split(strings.TrimSpace(string(enc)), "\n") {
		doc.WriteString("  " + line + "\n")
	}

	secrets := vault.NewSecrets()
	secrets.Add("", []byte("pw"))
	got, err := NewDecoder(secrets).Decode([]byte(doc.String()), "all.yml")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"user": "admin", "password": "s3cret"}, got)

	wrong := vault.NewSecrets()
	wrong.Add("", []byte("nope"))
	_, err = NewDecoder(wrong).Decode([]byte(doc.String()), "all.yml")
	assert.ErrorIs(t, err, vault.ErrIntegrity)
}

func Test_DecodeAge(t *testing.T) {
	dir := t.TempDir()
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	keyfile := filepath.Join(dir, "keys.txt")
	require.NoError(t, os.WriteFile(keyfile, []byte(identity.String()+"\n"), 0o600))

	buf := new(bytes.Buffer)
	w, err := age.Encrypt(buf, identity.Recipient())
	require.NoError(t, err)
	_, err = w.Write([]byte("api_token = \"abc\"\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	vaultfile := filepath.Join(dir, "secrets.toml.age")
	require.NoError(t, os.WriteFile(vaultfile, buf.Bytes(), 0o600))

	d := NewDecoder(nil)
	_, err = d.DecodeFile(vaultfile)
	assert.ErrorIs(t, err, ErrNoAgeIdentity)

	require.NoError(t, d.LoadAgeIdentities(keyfile))
	got, err := d.DecodeFile(vaultfile)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"api_token": "abc"}, got)
}

func Test_DecodeSopsWithoutKeys(t *testing.T) {
	raw := "password: ENC[AES256_GCM,data:abc=,iv:abc=,tag:abc=,type:str]\nsops:\n  mac: ENC[AES256_GCM,data:abc=,iv:abc=,tag:abc=,type:str]\n  version: 3.9.0\n"
	_, err := NewDecoder(nil).Decode([]byte(raw), "secrets.yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sops")
}
