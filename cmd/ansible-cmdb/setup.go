package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/s-hell/ansible-cmdb/internal/cmdb"
	"github.com/s-hell/ansible-cmdb/internal/vault"
)

const vaultPasswordEnv = "ANSIBLE_VAULT_PASSWORD"

func setupLogger(c *cmdb.Config) {
	if c.UseStdout {
		log.Default().SetOutput(os.Stdout)
	}
	if c.Debug {
		log.Default().SetLevel(log.DebugLevel)
		log.Default().SetReportCaller(true)
	}
}

func loadConfig(ctx context.Context, configFile string, cliflags map[string]any) (*cmdb.Config, error) {
	k, err := LoadConfigs(ctx, configFile, cliflags)
	if err != nil {
		return nil, fmt.Errorf("error generating config blob: %w", err)
	}
	c, err := cmdb.NewConfig(k)
	if err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return c, nil
}

func setup(ctx context.Context, configFile string, cliflags map[string]any) (*cmdb.CMDB, *cmdb.Config, error) {
	c, err := loadConfig(ctx, configFile, cliflags)
	if err != nil {
		return nil, nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, nil, fmt.Errorf("error validating config: %w", err)
	}
	setupLogger(c)

	m, err := cmdb.New(c)
	if err != nil {
		return nil, nil, err
	}
	if pass, ok := os.LookupEnv(vaultPasswordEnv); ok && pass != "" {
		m.SetVaultSecret(vault.DefaultID, []byte(pass))
	}
	if err := m.Setup(ctx); err != nil {
		return nil, nil, err
	}
	return m, c, nil
}

func setupNoSync(ctx context.Context, configFile string, cliflags map[string]any) (*cmdb.CMDB, *cmdb.Config, error) {
	cliflags["source.no_sync"] = true
	return setup(ctx, configFile, cliflags)
}

func LoadConfigs(_ context.Context, configFile string, cliflags map[string]any) (*koanf.Koanf, error) {
	k := koanf.New(".")
	fileConf := koanf.New(".")
	envConf := koanf.New(".")
	cliConf := koanf.New(".")
	if configFile != "" {
		err := fileConf.Load(file.Provider(configFile), toml.Parser())
		if err != nil {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}
	err := envConf.Load(env.Provider("CMDB_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, "CMDB_")), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("error loading config from env: %w", err)
	}
	err = cliConf.Load(confmap.Provider(cliflags, "."), nil)
	if err != nil {
		return nil, err
	}
	err = k.Merge(fileConf)
	if err != nil {
		return nil, fmt.Errorf("error building config: %w", err)
	}
	err = k.Merge(envConf)
	if err != nil {
		return nil, fmt.Errorf("error building config: %w", err)
	}
	err = k.Merge(cliConf)
	if err != nil {
		return nil, fmt.Errorf("error building config: %w", err)
	}

	return k, err
}
