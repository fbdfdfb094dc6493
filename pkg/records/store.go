package records

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

const (
	KeyName     = "name"
	KeyGroups   = "groups"
	KeyHostvars = "hostvars"
)

// Host is the merged record of a single managed host.
type Host struct {
	fields map[string]*Value
}

func newHost(name string) *Host {
	nameValue := Scalar(name)
	hostvars := Mapping(nil)
	groups := Set()
	return &Host{
		fields: map[string]*Value{
			KeyName:     &nameValue,
			KeyHostvars: &hostvars,
			KeyGroups:   &groups,
		},
	}
}

func (h *Host) Name() string {
	v, ok := h.fields[KeyName]
	if !ok {
		return ""
	}
	if s, ok := v.Interface().(string); ok {
		return s
	}
	return fmt.Sprint(v.Interface())
}

// Groups returns the sorted group names of the host.
func (h *Host) Groups() []string {
	v, ok := h.fields[KeyGroups]
	if !ok {
		return []string{}
	}
	switch v.Kind() {
	case KindSet:
		return v.set.Values()
	case KindSequence:
		return stringify(v.seq)
	default:
		return []string{}
	}
}

// Hostvars returns a copy of the host's variables. Records only change
// through Store.Merge.
func (h *Host) Hostvars() map[string]any {
	v, ok := h.fields[KeyHostvars]
	if !ok || v.Kind() != KindMapping {
		return map[string]any{}
	}
	return maps.Clone(v.mapping)
}

// Get returns a copy of the plain form of a record field, nil if it is absent.
func (h *Host) Get(key string) any {
	v, ok := h.fields[key]
	if !ok {
		return nil
	}
	return v.clone().Interface()
}

func (h *Host) Value(key string) (Value, bool) {
	v, ok := h.fields[key]
	if !ok {
		return Value{}, false
	}
	return v.clone(), true
}

func (h *Host) Keys() []string {
	keys := make([]string, 0, len(h.fields))
	for k := range h.fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Map flattens the record into plain Go values.
func (h *Host) Map() map[string]any {
	result := make(map[string]any, len(h.fields))
	for k, v := range h.fields {
		result[k] = v.clone().Interface()
	}
	return result
}

func (h *Host) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Map())
}

func (h *Host) MarshalYAML() (any, error) {
	return h.Map(), nil
}

func (h *Host) merge(key string, in Value) {
	existing, ok := h.fields[key]
	if !ok {
		v := in.clone()
		h.fields[key] = &v
		return
	}
	existing.Merge(in)
}

// Store maps host names to their records. It is filled during a single build
// phase and read-only afterwards, so it carries no locking.
type Store struct {
	hosts map[string]*Host
}

func NewStore() *Store {
	return &Store{hosts: make(map[string]*Host)}
}

// Merge contributes value to field key of the record for hostname, creating
// the record on first reference.
func (s *Store) Merge(hostname, key string, value any) {
	h, ok := s.hosts[hostname]
	if !ok {
		h = newHost(hostname)
		s.hosts[hostname] = h
	}
	h.merge(key, ValueOf(value))
}

func (s *Store) Get(hostname string) (*Host, bool) {
	h, ok := s.hosts[hostname]
	return h, ok
}

// Hosts returns the records keyed by host name. The returned map is a copy;
// the records are shared.
func (s *Store) Hosts() map[string]*Host {
	result := make(map[string]*Host, len(s.hosts))
	for k, v := range s.hosts {
		result[k] = v
	}
	return result
}

func (s *Store) Names() []string {
	names := make([]string, 0, len(s.hosts))
	for k := range s.hosts {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

func (s *Store) Len() int {
	return len(s.hosts)
}

// Retain drops every record whose host is not in keep and returns the dropped
// names in sorted order.
func (s *Store) Retain(keep []string) []string {
	wanted := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		wanted[k] = struct{}{}
	}
	var removed []string
	for name := range s.hosts {
		if _, ok := wanted[name]; !ok {
			removed = append(removed, name)
		}
	}
	slices.Sort(removed)
	for _, name := range removed {
		delete(s.hosts, name)
	}
	return removed
}

func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.hosts)
}
