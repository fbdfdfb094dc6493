package varsfile

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/v2"
	"github.com/s-hell/ansible-cmdb/internal/vault"
)

type Config struct {
	AgeKeyfile        string `toml:"age_keyfile"`
	VaultPasswordFile string `toml:"vault_password_file"`
}

func NewConfig(k *koanf.Koanf) (*Config, error) {
	return &Config{
		AgeKeyfile:        k.String("age.keyfile"),
		VaultPasswordFile: k.String("vault.password_file"),
	}, nil
}

func (c Config) Validate() error {
	for _, p := range []string{c.AgeKeyfile, c.VaultPasswordFile} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("invalid secrets file: %w", err)
		}
	}
	return nil
}

func (c Config) String() string {
	var result string
	result += fmt.Sprintf("Age keyfile: %v\n", c.AgeKeyfile)
	result += fmt.Sprintf("Vault password file: %v\n", c.VaultPasswordFile)
	return result
}

// NewDecoderFromConfig loads the configured age identities and vault
// password into a fresh decoder.
func NewDecoderFromConfig(c *Config) (*Decoder, error) {
	d := NewDecoder(vault.NewSecrets())
	if c == nil {
		return d, nil
	}
	if c.AgeKeyfile != "" {
		if err := d.LoadAgeIdentities(c.AgeKeyfile); err != nil {
			return nil, err
		}
	}
	if c.VaultPasswordFile != "" {
		raw, err := os.ReadFile(c.VaultPasswordFile)
		if err != nil {
			return nil, fmt.Errorf("error reading vault password file: %w", err)
		}
		d.Secrets().Add(vault.DefaultID, []byte(strings.TrimRight(string(raw), "\r\n")))
	}
	return d, nil
}
