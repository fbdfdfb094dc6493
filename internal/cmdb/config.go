package cmdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/s-hell/ansible-cmdb/internal/builtin"
	"github.com/s-hell/ansible-cmdb/internal/source"
	"github.com/s-hell/ansible-cmdb/internal/source/git"
	"github.com/s-hell/ansible-cmdb/internal/varsfile"
	"github.com/s-hell/ansible-cmdb/pkg/inventory"
)

const (
	defaultInterpreter = "python3"
	defaultExecTimeout = time.Minute
)

type TemplatesConfig struct {
	AllowExec   bool          `toml:"allow_exec"`
	Interpreter string        `toml:"interpreter"`
	Timeout     time.Duration `toml:"timeout"`
}

type SnippetConfig struct {
	Body       string   `toml:"body"`
	Parameters []string `toml:"parameters"`
}

type Config struct {
	Debug        bool
	UseStdout    bool
	Diff         bool
	Inventories  []string
	FactDirs     []string
	Template     string
	TemplateDirs []string
	Output       string
	CacheDir     string
	PlaybookDir  string
	Params       map[string]any
	Inventory    *inventory.Options
	Templates    TemplatesConfig
	Snippets     map[string]SnippetConfig
	Secrets      *varsfile.Config
	SourceConfig *source.Config
	GitConfig    *git.Config
}

func NewConfig(k *koanf.Koanf) (*Config, error) {
	var c Config
	var err error
	c.Debug = k.Bool("debug")
	c.UseStdout = k.Bool("stdout")
	c.Diff = k.Bool("diff")
	c.Inventories = stringList(k, "inventory")
	c.FactDirs = stringList(k, "fact_dirs")
	c.Template = k.String("template")
	c.TemplateDirs = stringList(k, "template_dirs")
	c.Output = k.String("output")
	c.CacheDir = k.String("cache_dir")
	c.PlaybookDir = k.String("playbook_dir")
	c.Inventory = inventory.NewOptions(k)

	c.Params = map[string]any{}
	if k.Exists("params") {
		c.Params = k.Cut("params").Raw()
	}

	c.Templates.AllowExec = k.Bool("templates.allow_exec")
	c.Templates.Interpreter = k.String("templates.interpreter")
	c.Templates.Timeout = k.Duration("templates.timeout")

	if k.Exists("snippets") {
		c.Snippets = map[string]SnippetConfig{}
		if err := k.Unmarshal("snippets", &c.Snippets); err != nil {
			return nil, fmt.Errorf("error reading snippets: %w", err)
		}
	}

	c.Secrets, err = varsfile.NewConfig(k)
	if err != nil {
		return nil, err
	}
	if k.Exists("source") {
		c.SourceConfig, err = source.NewConfig(k)
		if err != nil {
			return nil, err
		}
	}
	if k.Exists("git") {
		c.GitConfig, err = git.NewConfig(k)
		if err != nil {
			return nil, err
		}
	}

	// calculate defaults
	if c.Template == "" {
		c.Template = builtin.DefaultTemplate
	}
	if c.Templates.Interpreter == "" {
		c.Templates.Interpreter = defaultInterpreter
	}
	if c.Templates.Timeout == 0 {
		c.Templates.Timeout = defaultExecTimeout
	}
	if c.CacheDir == "" {
		cache, err := os.UserCacheDir()
		if err != nil {
			cache = os.TempDir()
		}
		c.CacheDir = filepath.Join(cache, "ansible-cmdb")
	}
	return &c, nil
}

// stringList accepts a list or a comma separated string, so list options can
// be set from the environment.
func stringList(k *koanf.Koanf, key string) []string {
	if s, ok := k.Get(key).(string); ok {
		return strings.FieldsFunc(s, func(r rune) bool { return r == ',' })
	}
	return k.Strings(key)
}

func (c *Config) SourceDir() string {
	return filepath.Join(c.CacheDir, "source")
}

func (c *Config) BuiltinTemplateDir() string {
	return filepath.Join(c.CacheDir, "templates")
}

// TemplateRoots lists the template directories in search order; the
// installed builtin templates come last.
func (c *Config) TemplateRoots() []string {
	return append(slices.Clone(c.TemplateDirs), c.BuiltinTemplateDir())
}

func (c *Config) Validate() error {
	if len(c.Inventories) == 0 && len(c.FactDirs) == 0 {
		return errors.New("need an inventory or at least one fact dir")
	}
	if c.Template == "" {
		return errors.New("need a template")
	}
	if c.CacheDir == "" {
		return errors.New("need cache directory")
	}
	if c.Templates.Timeout < 0 {
		return errors.New("template exec timeout can't be negative")
	}
	if c.SourceConfig != nil {
		if err := c.SourceConfig.Validate(); err != nil {
			return err
		}
	}
	if c.GitConfig != nil {
		if err := c.GitConfig.Validate(); err != nil {
			return err
		}
	}
	return c.Secrets.Validate()
}

func (c *Config) String() string {
	var result string
	result += fmt.Sprintf("Debug mode: %v\n", c.Debug)
	result += fmt.Sprintf("STDOUT: %v\n", c.UseStdout)
	result += fmt.Sprintf("Show Diff: %v\n", c.Diff)
	result += fmt.Sprintf("Inventories: %v\n", c.Inventories)
	result += fmt.Sprintf("Fact dirs: %v\n", c.FactDirs)
	result += fmt.Sprintf("Template: %v\n", c.Template)
	result += fmt.Sprintf("Template dirs: %v\n", c.TemplateDirs)
	result += fmt.Sprintf("Output: %v\n", c.Output)
	result += fmt.Sprintf("Cache dir: %v\n", c.CacheDir)
	result += fmt.Sprintf("Params: %v\n", c.Params)
	result += fmt.Sprintf("Allow exec templates: %v\n", c.Templates.AllowExec)
	result += fmt.Sprintf("Interpreter: %v\n", c.Templates.Interpreter)
	result += fmt.Sprintf("Exec timeout: %v\n", c.Templates.Timeout)
	result += c.Inventory.String()
	result += c.Secrets.String()
	if c.SourceConfig != nil {
		result += c.SourceConfig.String()
	}
	if c.GitConfig != nil {
		result += c.GitConfig.String()
	}
	return result
}
