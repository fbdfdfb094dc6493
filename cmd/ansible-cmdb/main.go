package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/s-hell/ansible-cmdb/internal/builtin"
	"github.com/s-hell/ansible-cmdb/pkg/templates"
	"github.com/urfave/cli/v3"
)

var Version string

// applyFlags copies the flags set on the command line into cliflags using
// config key names.
func applyFlags(cCtx *cli.Command, cliflags map[string]any) error {
	strs := map[string]string{
		"template":            "template",
		"limit":               "limit",
		"output":              "output",
		"playbook-dir":        "playbook_dir",
		"vault-password-file": "vault.password_file",
		"age-keyfile":         "age.keyfile",
		"source":              "source.url",
	}
	for flag, key := range strs {
		if cCtx.IsSet(flag) {
			cliflags[key] = cCtx.String(flag)
		}
	}
	lists := map[string]string{
		"inventory":    "inventory",
		"fact-dir":     "fact_dirs",
		"template-dir": "template_dirs",
	}
	for flag, key := range lists {
		if cCtx.IsSet(flag) {
			cliflags[key] = cCtx.StringSlice(flag)
		}
	}
	bools := map[string]string{
		"debug":             "debug",
		"stdout":            "stdout",
		"diff":              "diff",
		"nosync":            "source.no_sync",
		"keep-ansible-vars": "keep_ansible_vars",
		"keep-services-var": "keep_services_var",
		"keep-vault-vars":   "keep_vault_vars",
		"allow-exec":        "templates.allow_exec",
	}
	for flag, key := range bools {
		if cCtx.IsSet(flag) {
			cliflags[key] = cCtx.Bool(flag)
		}
	}
	return parseParams(cCtx.StringSlice("param"), cliflags)
}

// factDirArgs adds positional arguments to the fact dirs.
func factDirArgs(cCtx *cli.Command, cliflags map[string]any) {
	if args := cCtx.Args().Slice(); len(args) > 0 {
		dirs, _ := cliflags["fact_dirs"].([]string)
		cliflags["fact_dirs"] = append(dirs, args...)
	}
}

func main() {
	cliflags := make(map[string]any)
	ctx := context.Background()

	var configFile string

	app := &cli.Command{
		Name:      "ansible-cmdb",
		Usage:     "Generate host overviews from Ansible inventories and facts",
		ArgsUsage: "[fact dir...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "Specifed TOML config file",
				Required:    false,
				Destination: &configFile,
				Aliases:     []string{"c"},
				Sources:     cli.EnvVars("CMDB_CONFIG"),
				Action: func(ctx context.Context, cCtx *cli.Command, v string) error {
					if v == "" {
						return errors.New("config file passed wihout value")
					}
					if _, err := os.Stat(v); err != nil && os.IsNotExist(err) {
						return errors.New("config file not found")
					} else if err != nil {
						return err
					}
					return nil
				},
			},
			&cli.StringSliceFlag{
				Name:    "inventory",
				Aliases: []string{"i"},
				Usage:   "Inventory file or directory, repeatable",
			},
			&cli.StringSliceFlag{
				Name:    "fact-dir",
				Aliases: []string{"f"},
				Usage:   "Directory of gathered facts, repeatable",
			},
			&cli.StringFlag{
				Name:    "template",
				Aliases: []string{"t"},
				Usage:   "Template name or path",
			},
			&cli.StringSliceFlag{
				Name:    "template-dir",
				Aliases: []string{"T"},
				Usage:   "Extra template directory, searched before the builtin templates",
			},
			&cli.StringFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Only include hosts matching this pattern",
			},
			&cli.StringSliceFlag{
				Name:    "param",
				Aliases: []string{"p"},
				Usage:   "Template parameter as key=value, repeatable",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the report to this file instead of stdout",
			},
			&cli.StringFlag{
				Name:  "playbook-dir",
				Usage: "Value of playbook_dir for inventory vars",
			},
			&cli.StringFlag{
				Name:  "vault-password-file",
				Usage: "File holding the Ansible vault password",
			},
			&cli.StringFlag{
				Name:  "age-keyfile",
				Usage: "age identity file for *.age vars files",
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "Sync the inventory tree from this URL (git:// or file://)",
			},
			&cli.BoolFlag{
				Name:  "keep-ansible-vars",
				Usage: "Keep ansible_* variables in host vars",
			},
			&cli.BoolFlag{
				Name:  "keep-services-var",
				Usage: "Keep the services variable in host vars",
			},
			&cli.BoolFlag{
				Name:  "keep-vault-vars",
				Usage: "Keep vault_* variables in host vars",
			},
			&cli.BoolFlag{
				Name:  "allow-exec",
				Usage: "Run .py templates with the configured interpreter",
			},
			&cli.BoolFlag{
				Name:  "diff",
				Usage: "Show changes against the existing output file",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug logging",
				Sources: cli.EnvVars("CMDB_DEBUG"),
			},
			&cli.BoolFlag{
				Name:  "stdout",
				Usage: "Log to stdout instead of stderr",
			},
			&cli.BoolFlag{
				Name:    "nosync",
				Usage:   "Disable syncing the configured source",
				Sources: cli.EnvVars("CMDB_NOSYNC"),
			},
		},
		Action: func(ctx context.Context, cCtx *cli.Command) error {
			if err := applyFlags(cCtx, cliflags); err != nil {
				return cli.Exit(err, 2)
			}
			factDirArgs(cCtx, cliflags)
			m, c, err := setup(ctx, configFile, cliflags)
			if err != nil {
				return err
			}
			store, err := m.Collect(ctx)
			if err != nil {
				return err
			}
			out, err := m.Render(ctx, store)
			if err != nil {
				return fmt.Errorf("error rendering %v: %w", c.Template, err)
			}
			if c.Diff {
				if err := showDiff(os.Stderr, c.Output, out); err != nil {
					return err
				}
			}
			return writeReport(c.Output, out)
		},
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Dump active config",
				Action: func(ctx context.Context, cCtx *cli.Command) error {
					if err := applyFlags(cCtx, cliflags); err != nil {
						return cli.Exit(err, 2)
					}
					c, err := loadConfig(ctx, configFile, cliflags)
					if err != nil {
						log.Fatal(err)
					}
					fmt.Println(c)
					return nil
				},
			},
			{
				Name:  "hosts",
				Usage: "Dump collected host records",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "Control output format. Supports json,yaml,toml",
						Value: "json",
					},
				},
				Action: func(ctx context.Context, cCtx *cli.Command) error {
					if err := applyFlags(cCtx, cliflags); err != nil {
						return cli.Exit(err, 2)
					}
					factDirArgs(cCtx, cliflags)
					m, _, err := setup(ctx, configFile, cliflags)
					if err != nil {
						return err
					}
					store, err := m.Collect(ctx)
					if err != nil {
						return err
					}
					return writeHosts(os.Stdout, store, cCtx.String("format"))
				},
			},
			{
				Name:      "templates",
				Usage:     "List builtin templates or show how a name resolves",
				ArgsUsage: "[name]",
				Action: func(ctx context.Context, cCtx *cli.Command) error {
					name := cCtx.Args().First()
					if name == "" {
						for _, t := range builtin.Names() {
							fmt.Println(t)
						}
						return nil
					}
					if err := applyFlags(cCtx, cliflags); err != nil {
						return cli.Exit(err, 2)
					}
					c, err := loadConfig(ctx, configFile, cliflags)
					if err != nil {
						return err
					}
					if err := builtin.Install(c.BuiltinTemplateDir()); err != nil {
						return err
					}
					r := templates.NewResolver(c.TemplateRoots())
					for _, candidate := range r.Candidates(name) {
						fmt.Printf("candidate: %v\n", candidate)
					}
					path, err := r.Resolve(name)
					if err != nil {
						return cli.Exit(err, 1)
					}
					fmt.Printf("resolved: %v\n", path)
					return nil
				},
			},
			{
				Name:  "clean",
				Usage: "remove the synced source and installed templates",
				Action: func(ctx context.Context, cCtx *cli.Command) error {
					if err := applyFlags(cCtx, cliflags); err != nil {
						return cli.Exit(err, 2)
					}
					m, _, err := setupNoSync(ctx, configFile, cliflags)
					if err != nil {
						return err
					}
					return m.Clean()
				},
			},
			{
				Name:  "version",
				Usage: "show version",
				Action: func(_ context.Context, _ *cli.Command) error {
					fmt.Printf("ansible-cmdb version %v\n", Version)
					return nil
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
