package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/v2"
	"github.com/s-hell/ansible-cmdb/internal/source/file"
	"github.com/s-hell/ansible-cmdb/internal/source/git"
)

var ErrUnknownScheme = errors.New("unsupported source scheme")

type Source interface {
	Sync(context.Context) error
	Clean() error
}

type Config struct {
	URL    string `toml:"url" json:"url" yaml:"url"`
	NoSync bool   `toml:"no_sync" json:"no_sync" yaml:"no_sync"`
}

func NewConfig(k *koanf.Koanf) (*Config, error) {
	return &Config{
		URL:    k.String("source.url"),
		NoSync: k.Bool("source.no_sync"),
	}, nil
}

func (c Config) String() string {
	return fmt.Sprintf("URL: %v\nNo Sync: %v\n", c.URL, c.NoSync)
}

func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("need source URL")
	}
	if _, _, ok := strings.Cut(c.URL, "://"); !ok {
		return fmt.Errorf("source URL %q has no scheme", c.URL)
	}
	return nil
}

// New picks a source implementation by URL scheme. The git:// prefix only
// marks a repository; what follows it is handed to git unchanged, so
// git://git@example.com:ops/inventory.git clones over ssh.
func New(c *Config, gitConfig *git.Config, dest string) (Source, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	scheme, rest, _ := strings.Cut(c.URL, "://")
	switch scheme {
	case "file":
		return file.NewFileSource(dest, rest)
	case "git":
		return git.NewGitSource(dest, rest, gitConfig)
	case "https", "http", "ssh":
		return git.NewGitSource(dest, c.URL, gitConfig)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownScheme, scheme)
	}
}
