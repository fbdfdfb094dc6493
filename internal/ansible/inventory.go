package ansible

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/s-hell/ansible-cmdb/internal/varsfile"
	"github.com/s-hell/ansible-cmdb/pkg/inventory"
)

const (
	GroupAll       = "all"
	GroupUngrouped = "ungrouped"

	defaultPython = "/usr/bin/python3"
)

var (
	ErrUnknownHost = errors.New("unknown inventory host")
	ErrNoSources   = errors.New("no inventory sources given")
)

var (
	_ inventory.Provider       = (*Inventory)(nil)
	_ inventory.SecretProvider = (*Inventory)(nil)
)

// ignoredExtensions are skipped when reading an inventory directory.
var ignoredExtensions = []string{".pyc", ".pyo", ".swp", ".bak", "~", ".rpm", ".md", ".txt", ".rst", ".orig", ".ini", ".cfg", ".retry"}

type Group struct {
	Name     string
	Vars     map[string]any
	Hosts    []string
	Children []string
	parents  []string
}

type Host struct {
	Name   string
	Vars   map[string]any
	Source string
	groups []string
}

// Inventory reads Ansible inventory sources and resolves host variables the
// way ansible-inventory does. It is safe for concurrent use once loaded.
type Inventory struct {
	mu          sync.Mutex
	sources     []string
	decoder     *varsfile.Decoder
	playbookDir string
	python      string
	omit        string

	loaded        bool
	groups        map[string]*Group
	hosts         map[string]*Host
	order         []string
	varsDirs      []string
	groupFileVars map[string]map[string]any
	hostFileVars  map[string]map[string]any
}

type Option func(*Inventory)

func WithDecoder(d *varsfile.Decoder) Option {
	return func(inv *Inventory) { inv.decoder = d }
}

func WithPlaybookDir(dir string) Option {
	return func(inv *Inventory) { inv.playbookDir = dir }
}

func WithPython(path string) Option {
	return func(inv *Inventory) { inv.python = path }
}

func New(sources []string, opts ...Option) *Inventory {
	inv := &Inventory{
		sources: sources,
		python:  defaultPython,
	}
	for _, o := range opts {
		o(inv)
	}
	if inv.decoder == nil {
		inv.decoder = varsfile.NewDecoder(nil)
	}
	if inv.playbookDir == "" {
		if wd, err := os.Getwd(); err == nil {
			inv.playbookDir = wd
		}
	}
	inv.omit = "__omit_place_holder__" + randomHex(20)
	return inv
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return strings.Repeat("0", 2*n)
	}
	return hex.EncodeToString(b)
}

func (inv *Inventory) SetVaultSecret(id string, secret []byte) {
	inv.decoder.Secrets().Add(id, secret)
}

// Load parses every source. It only does work on the first call.
func (inv *Inventory) Load(ctx context.Context) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.loaded {
		return nil
	}
	if len(inv.sources) == 0 {
		return ErrNoSources
	}
	inv.groups = map[string]*Group{}
	inv.hosts = map[string]*Host{}
	inv.order = nil
	inv.varsDirs = nil
	inv.addGroup(GroupAll)
	inv.addGroup(GroupUngrouped)

	for _, src := range inv.sources {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := inv.loadSource(src); err != nil {
			return err
		}
	}
	inv.link()
	if err := inv.loadVarsFiles(ctx); err != nil {
		return err
	}
	inv.loaded = true
	log.Debug("parsed inventory", "sources", inv.sources, "hosts", len(inv.hosts), "groups", len(inv.groups))
	return nil
}

func (inv *Inventory) loadSource(src string) error {
	path, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error reading inventory source %v: %w", src, err)
	}
	if !info.IsDir() {
		inv.addVarsDir(filepath.Dir(path))
		return inv.parseFile(path)
	}
	inv.addVarsDir(path)
	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || skipInventoryFile(e.Name()) {
			continue
		}
		if err := inv.parseFile(filepath.Join(path, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func skipInventoryFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, ext := range ignoredExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func (inv *Inventory) addVarsDir(dir string) {
	if !slices.Contains(inv.varsDirs, dir) {
		inv.varsDirs = append(inv.varsDirs, dir)
	}
}

func (inv *Inventory) parseFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch filepath.Ext(path) {
	case ".yml", ".yaml", ".json":
		err = inv.parseYAML(raw, path)
	default:
		err = inv.parseINI(raw, path)
	}
	if err != nil {
		return fmt.Errorf("error parsing inventory %v: %w", path, err)
	}
	log.Debug("parsed inventory file", "file", path)
	return nil
}

func (inv *Inventory) addGroup(name string) *Group {
	g, ok := inv.groups[name]
	if !ok {
		g = &Group{Name: name, Vars: map[string]any{}}
		inv.groups[name] = g
	}
	return g
}

func (inv *Inventory) addHost(name, source string, vars map[string]any) *Host {
	h, ok := inv.hosts[name]
	if !ok {
		h = &Host{Name: name, Vars: map[string]any{}, Source: source}
		inv.hosts[name] = h
		inv.order = append(inv.order, name)
	}
	maps.Copy(h.Vars, vars)
	return h
}

func (inv *Inventory) addHostToGroup(group, host string) {
	g := inv.addGroup(group)
	if !slices.Contains(g.Hosts, host) {
		g.Hosts = append(g.Hosts, host)
	}
	h := inv.hosts[host]
	if !slices.Contains(h.groups, group) {
		h.groups = append(h.groups, group)
	}
}

func (inv *Inventory) addChild(parent, child string) {
	p := inv.addGroup(parent)
	inv.addGroup(child)
	if parent != child && !slices.Contains(p.Children, child) {
		p.Children = append(p.Children, child)
	}
}

// link fills in parents, hangs top level groups under all and puts hosts
// without a group into ungrouped.
func (inv *Inventory) link() {
	for _, g := range inv.groups {
		g.parents = nil
	}
	for _, name := range slices.Sorted(maps.Keys(inv.groups)) {
		for _, c := range inv.groups[name].Children {
			child := inv.groups[c]
			child.parents = append(child.parents, name)
		}
	}
	all := inv.groups[GroupAll]
	for _, name := range slices.Sorted(maps.Keys(inv.groups)) {
		if name != GroupAll && len(inv.groups[name].parents) == 0 {
			all.Children = append(all.Children, name)
			inv.groups[name].parents = []string{GroupAll}
		}
	}
	for _, name := range inv.order {
		h := inv.hosts[name]
		if len(h.groups) == 0 {
			inv.addHostToGroup(GroupUngrouped, name)
		}
	}
}

// Groups returns the group tree by name.
func (inv *Inventory) Groups(ctx context.Context) (map[string]*Group, error) {
	if err := inv.Load(ctx); err != nil {
		return nil, err
	}
	return maps.Clone(inv.groups), nil
}

func (inv *Inventory) ListHosts(ctx context.Context) ([]string, error) {
	if err := inv.Load(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(inv.order), nil
}

func (inv *Inventory) GroupNames(ctx context.Context, host string) ([]string, error) {
	if err := inv.Load(ctx); err != nil {
		return nil, err
	}
	if _, ok := inv.hosts[host]; !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownHost, host)
	}
	var names []string
	for _, g := range inv.ancestry(host) {
		if g != GroupAll && g != GroupUngrouped {
			names = append(names, g)
		}
	}
	slices.Sort(names)
	return names, nil
}

// ancestry lists every group host belongs to, directly or through children,
// ordered by depth below all and then by name.
func (inv *Inventory) ancestry(host string) []string {
	depth := map[string]int{}
	var visit func(name string) int
	visit = func(name string) int {
		if d, ok := depth[name]; ok {
			return d
		}
		depth[name] = 0
		d := 0
		for _, p := range inv.groups[name].parents {
			d = max(d, visit(p)+1)
		}
		depth[name] = d
		return d
	}
	for _, g := range inv.hosts[host].groups {
		visit(g)
	}
	names := slices.Collect(maps.Keys(depth))
	slices.SortFunc(names, func(a, b string) int {
		if depth[a] != depth[b] {
			return depth[a] - depth[b]
		}
		return strings.Compare(a, b)
	})
	return names
}

// ResolvedVars layers group vars from all down to the most specific group,
// then host vars, then the magic variables.
func (inv *Inventory) ResolvedVars(ctx context.Context, host string) (map[string]any, error) {
	if err := inv.Load(ctx); err != nil {
		return nil, err
	}
	h, ok := inv.hosts[host]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownHost, host)
	}
	ancestry := inv.ancestry(host)
	vars := map[string]any{}
	for _, g := range ancestry {
		maps.Copy(vars, inv.groups[g].Vars)
	}
	for _, g := range ancestry {
		maps.Copy(vars, inv.groupFileVars[g])
	}
	maps.Copy(vars, h.Vars)
	maps.Copy(vars, inv.hostFileVars[host])

	groupNames, err := inv.GroupNames(ctx, host)
	if err != nil {
		return nil, err
	}
	short, _, _ := strings.Cut(host, ".")
	vars["inventory_hostname"] = host
	vars["inventory_hostname_short"] = short
	vars["group_names"] = groupNames
	vars["groups"] = inv.groupMembers()
	vars["inventory_file"] = h.Source
	vars["inventory_dir"] = filepath.Dir(h.Source)
	vars["playbook_dir"] = inv.playbookDir
	vars["omit"] = inv.omit
	vars["ansible_playbook_python"] = inv.python
	return vars, nil
}

func (inv *Inventory) groupMembers() map[string]any {
	result := make(map[string]any, len(inv.groups))
	for name := range inv.groups {
		result[name] = inv.hostsOf(name)
	}
	return result
}

// hostsOf lists the hosts of a group and its descendants in inventory order.
func (inv *Inventory) hostsOf(group string) []string {
	members := map[string]bool{}
	seen := map[string]bool{}
	var walk func(name string)
	walk = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		g := inv.groups[name]
		for _, h := range g.Hosts {
			members[h] = true
		}
		for _, c := range g.Children {
			walk(c)
		}
	}
	walk(group)
	result := []string{}
	for _, h := range inv.order {
		if members[h] || group == GroupAll {
			result = append(result, h)
		}
	}
	return result
}
