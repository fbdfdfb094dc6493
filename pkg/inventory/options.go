package inventory

import (
	"fmt"
	"slices"
	"strings"

	"github.com/knadh/koanf/v2"
)

const (
	VarHostname   = "inventory_hostname"
	VarGroupNames = "group_names"

	internalPrefix = "ansible_"
	vaultPrefix    = "vault_"
	servicesVar    = "services"
)

var baselineIgnore = []string{
	"ansible_playbook_python",
	"groups",
	"inventory_dir",
	"inventory_file",
	"omit",
	"playbook_dir",
}

type Options struct {
	KeepInternalVars bool   `toml:"keep_ansible_vars"`
	KeepServicesVar  bool   `toml:"keep_services_var"`
	KeepVaultVars    bool   `toml:"keep_vault_vars"`
	Limit            string `toml:"limit"`
}

func NewOptions(k *koanf.Koanf) *Options {
	return &Options{
		KeepInternalVars: k.Bool("keep_ansible_vars"),
		KeepServicesVar:  k.Bool("keep_services_var"),
		KeepVaultVars:    k.Bool("keep_vault_vars"),
		Limit:            k.String("limit"),
	}
}

func (o Options) String() string {
	return fmt.Sprintf("Keep ansible vars: %v\nKeep services var: %v\nKeep vault vars: %v\nLimit: %v\n", o.KeepInternalVars, o.KeepServicesVar, o.KeepVaultVars, o.Limit)
}

// IgnoreSet is the finalized set of variable names never copied into a
// host's hostvars.
type IgnoreSet struct {
	names    map[string]struct{}
	prefixes []string
}

// IgnoreSet evaluates the options once into the keys to strip.
func (o Options) IgnoreSet() IgnoreSet {
	s := IgnoreSet{names: make(map[string]struct{}, len(baselineIgnore)+1)}
	for _, n := range baselineIgnore {
		s.names[n] = struct{}{}
	}
	if !o.KeepInternalVars {
		s.prefixes = append(s.prefixes, internalPrefix)
	}
	if !o.KeepServicesVar {
		s.names[servicesVar] = struct{}{}
	}
	if !o.KeepVaultVars {
		s.prefixes = append(s.prefixes, vaultPrefix)
	}
	return s
}

func (s IgnoreSet) Ignored(key string) bool {
	if _, ok := s.names[key]; ok {
		return true
	}
	return slices.ContainsFunc(s.prefixes, func(p string) bool {
		return strings.HasPrefix(key, p)
	})
}

// Strip removes every ignored key from vars in place.
func (s IgnoreSet) Strip(vars map[string]any) {
	for k := range vars {
		if s.Ignored(k) {
			delete(vars, k)
		}
	}
}
