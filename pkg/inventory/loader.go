package inventory

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/charmbracelet/log"
	"github.com/s-hell/ansible-cmdb/pkg/records"
)

var ErrMissingHostname = errors.New("host vars missing inventory_hostname")

type Loader struct {
	provider Provider
	opts     Options
	ignore   IgnoreSet
}

func NewLoader(p Provider, opts Options) *Loader {
	return &Loader{
		provider: p,
		opts:     opts,
		ignore:   opts.IgnoreSet(),
	}
}

// Load merges every inventory host into store.
func (l *Loader) Load(ctx context.Context, store *records.Store) error {
	hosts, err := l.provider.ListHosts(ctx)
	if err != nil {
		return fmt.Errorf("error listing inventory hosts: %w", err)
	}
	for _, host := range hosts {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := l.loadHost(ctx, store, host); err != nil {
			return err
		}
	}
	log.Debug("loaded inventory", "hosts", len(hosts))
	return nil
}

func (l *Loader) loadHost(ctx context.Context, store *records.Store, host string) error {
	resolved, err := l.provider.ResolvedVars(ctx, host)
	if err != nil {
		return fmt.Errorf("error resolving vars for %v: %w", host, err)
	}
	vars := maps.Clone(resolved)
	if vars == nil {
		vars = make(map[string]any)
	}
	l.ignore.Strip(vars)

	hostname, ok := vars[VarHostname].(string)
	if !ok || hostname == "" {
		return fmt.Errorf("%w: %v", ErrMissingHostname, host)
	}

	groups, err := l.groupNames(ctx, host, vars)
	if err != nil {
		return err
	}
	delete(vars, VarGroupNames)

	store.Merge(hostname, records.KeyName, hostname)
	store.Merge(hostname, records.KeyGroups, records.Set(groups...))
	store.Merge(hostname, records.KeyHostvars, vars)
	return nil
}

// groupNames prefers the group_names var, falling back to asking the provider.
func (l *Loader) groupNames(ctx context.Context, host string, vars map[string]any) ([]string, error) {
	switch g := vars[VarGroupNames].(type) {
	case []string:
		return g, nil
	case []any:
		result := make([]string, 0, len(g))
		for _, v := range g {
			result = append(result, fmt.Sprint(v))
		}
		return result, nil
	}
	groups, err := l.provider.GroupNames(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("error getting groups for %v: %w", host, err)
	}
	return groups, nil
}

// ApplyLimit narrows store to the hosts matched by the limit expression. It
// has to run after every merge pass; records merged later are not filtered.
func (l *Loader) ApplyLimit(ctx context.Context, store *records.Store) error {
	if l.opts.Limit == "" {
		return nil
	}
	limited, err := l.provider.ResolveLimit(ctx, l.opts.Limit)
	if err != nil {
		return fmt.Errorf("error resolving limit %q: %w", l.opts.Limit, err)
	}
	removed := store.Retain(limited)
	log.Debug("applied limit", "limit", l.opts.Limit, "kept", store.Len(), "removed", len(removed))
	return nil
}
