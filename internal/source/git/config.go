package git

import (
	"errors"
	"fmt"

	"github.com/knadh/koanf/v2"
)

type Config struct {
	Branch     string `toml:"branch" json:"branch" yaml:"branch"`
	PrivateKey string `koanf:"private_key" toml:"private_key" json:"private_key" yaml:"private_key"`
	Username   string `toml:"username" json:"username" yaml:"username"`
	Password   string `toml:"password" json:"password" yaml:"password"`
	KnownHosts string `toml:"known_hosts" json:"known_hosts" yaml:"known_hosts"`
	Insecure   bool   `koanf:"insecure" toml:"insecure" json:"insecure" yaml:"insecure"`
}

func NewConfig(k *koanf.Koanf) (*Config, error) {
	var c Config
	c.Branch = k.String("git.branch")
	c.PrivateKey = k.String("git.private_key")
	c.Insecure = k.Bool("git.insecure")
	c.Username = k.String("git.username")
	c.Password = k.String("git.password")
	c.KnownHosts = k.String("git.known_hosts")
	return &c, nil
}

func (c *Config) Validate() error {
	if c.PrivateKey != "" && c.Username != "" {
		return errors.New("git private key and username auth are mutually exclusive")
	}
	if c.Password != "" && c.Username == "" {
		return errors.New("git password set without a username")
	}
	return nil
}

func (c *Config) String() string {
	var result string
	result += fmt.Sprintf("Branch: %v\n", c.Branch)
	result += fmt.Sprintf("KnownHosts: %v\n", c.KnownHosts)
	result += fmt.Sprintf("Allow Insecure: %v\n", c.Insecure)
	if c.PrivateKey != "" {
		result += fmt.Sprintf("PrivateKey file: %v\n", c.PrivateKey)
	}
	if c.Username != "" {
		result += fmt.Sprintf("Username: %v\n", c.Username)
	}
	return result
}
