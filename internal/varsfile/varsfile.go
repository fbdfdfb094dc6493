package varsfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/getsops/sops/v3/decrypt"
	"github.com/s-hell/ansible-cmdb/internal/vault"
	"gopkg.in/yaml.v3"
)

const (
	tagVault  = "!vault"
	tagUnsafe = "!unsafe"
	sopsKey   = "sops"
)

var (
	ErrNoAgeIdentity = errors.New("no age identity configured")
	ErrNotMapping    = errors.New("vars file is not a mapping")
)

// Extensions lists the file suffixes recognised as vars files. The empty
// suffix is read as YAML.
var Extensions = []string{"", ".yml", ".yaml", ".json", ".toml", ".age"}

func IsVarsFile(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	ext := filepath.Ext(name)
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Decoder reads vars files in any of the supported formats, opening Ansible
// Vault, age and sops encryption on the way.
type Decoder struct {
	vault      *vault.Secrets
	identities []age.Identity
}

func NewDecoder(secrets *vault.Secrets) *Decoder {
	if secrets == nil {
		secrets = vault.NewSecrets()
	}
	return &Decoder{vault: secrets}
}

func (d *Decoder) Secrets() *vault.Secrets {
	return d.vault
}

// LoadAgeIdentities reads an age identity file, as written by age-keygen.
func (d *Decoder) LoadAgeIdentities(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	idents, err := age.ParseIdentities(f)
	if err != nil {
		return fmt.Errorf("error parsing age identities %v: %w", path, err)
	}
	if len(idents) == 0 {
		return errors.New("need at least one age identity")
	}
	d.identities = append(d.identities, idents...)
	return nil
}

func (d *Decoder) DecodeFile(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	vars, err := d.Decode(raw, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("error decoding vars file %v: %w", path, err)
	}
	return vars, nil
}

// Decode parses raw according to the extension of name.
func (d *Decoder) Decode(raw []byte, name string) (map[string]any, error) {
	ext := filepath.Ext(name)
	if ext == ".age" {
		plain, err := d.openAge(raw)
		if err != nil {
			return nil, err
		}
		return d.Decode(plain, strings.TrimSuffix(name, ext))
	}
	if vault.IsEncrypted(raw) {
		plain, err := d.vault.Decrypt(raw)
		if err != nil {
			return nil, err
		}
		raw = plain
	}
	switch ext {
	case ".json":
		return d.decodeJSON(raw)
	case ".toml":
		return decodeTOML(raw)
	default:
		return d.decodeYAML(raw)
	}
}

func (d *Decoder) openAge(raw []byte) ([]byte, error) {
	if len(d.identities) == 0 {
		return nil, ErrNoAgeIdentity
	}
	r, err := age.Decrypt(bytes.NewReader(raw), d.identities...)
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Decoder) decodeJSON(raw []byte) (map[string]any, error) {
	var result map[string]any
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	if _, ok := result[sopsKey]; ok {
		plain, err := decrypt.Data(raw, "json")
		if err != nil {
			return nil, fmt.Errorf("error decrypting sops data: %w", err)
		}
		result = nil
		if err := json.Unmarshal(plain, &result); err != nil {
			return nil, err
		}
	}
	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}

func decodeTOML(raw []byte) (map[string]any, error) {
	result := map[string]any{}
	if _, err := toml.Decode(string(raw), &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (d *Decoder) decodeYAML(raw []byte) (map[string]any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return map[string]any{}, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
			return map[string]any{}, nil
		}
		return nil, ErrNotMapping
	}
	if hasKey(root, sopsKey) {
		plain, err := decrypt.Data(raw, "yaml")
		if err != nil {
			return nil, fmt.Errorf("error decrypting sops data: %w", err)
		}
		return d.decodeYAML(plain)
	}
	if err := d.openTagged(root); err != nil {
		return nil, err
	}
	result := map[string]any{}
	if err := root.Decode(&result); err != nil {
		return nil, err
	}
	return result, nil
}

// openTagged replaces !vault scalars with their plaintext and drops the
// !unsafe marker, leaving plain strings behind.
func (d *Decoder) openTagged(n *yaml.Node) error {
	switch n.Tag {
	case tagVault:
		plain, err := d.vault.Decrypt([]byte(n.Value))
		if err != nil {
			log.Debug("could not open vault value", "line", n.Line, "error", err)
			return fmt.Errorf("line %v: %w", n.Line, err)
		}
		n.Tag = "!!str"
		n.Style = 0
		n.Value = string(plain)
	case tagUnsafe:
		n.Tag = "!!str"
	}
	for _, c := range n.Content {
		if err := d.openTagged(c); err != nil {
			return err
		}
	}
	return nil
}

func hasKey(n *yaml.Node, key string) bool {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return true
		}
	}
	return false
}
