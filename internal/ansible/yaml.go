package ansible

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
)

// parseYAML reads the YAML inventory layout:
//
//	all:
//	  hosts:
//	    web1:
//	      http_port: 80
//	  vars: {...}
//	  children:
//	    webservers:
//	      hosts: {...}
func (inv *Inventory) parseYAML(raw []byte, source string) error {
	doc, err := inv.decoder.Decode(raw, filepath.Base(source))
	if err != nil {
		return err
	}
	for _, name := range slices.Sorted(maps.Keys(doc)) {
		if err := inv.parseYAMLGroup(name, doc[name], source); err != nil {
			return err
		}
	}
	return nil
}

func (inv *Inventory) parseYAMLGroup(name string, v any, source string) error {
	inv.addGroup(name)
	if v == nil {
		return nil
	}
	body, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("group %v: expected a mapping, got %T", name, v)
	}
	for key, val := range body {
		switch key {
		case "hosts", "vars", "children":
		default:
			return fmt.Errorf("group %v: unknown key %q", name, key)
		}
		if val == nil {
			continue
		}
		if _, ok := val.(map[string]any); !ok {
			return fmt.Errorf("group %v: %v must be a mapping, got %T", name, key, val)
		}
	}

	if hosts, ok := body["hosts"].(map[string]any); ok {
		for _, pattern := range slices.Sorted(maps.Keys(hosts)) {
			var hostVars map[string]any
			if hv := hosts[pattern]; hv != nil {
				if hostVars, ok = hv.(map[string]any); !ok {
					return fmt.Errorf("host %v: vars must be a mapping, got %T", pattern, hv)
				}
			}
			names, err := ExpandHostPattern(pattern)
			if err != nil {
				return err
			}
			for _, h := range names {
				inv.addHost(h, source, hostVars)
				if name != GroupAll {
					inv.addHostToGroup(name, h)
				}
			}
		}
	}
	if vars, ok := body["vars"].(map[string]any); ok {
		maps.Copy(inv.groups[name].Vars, vars)
	}
	if children, ok := body["children"].(map[string]any); ok {
		for _, child := range slices.Sorted(maps.Keys(children)) {
			inv.addChild(name, child)
			if err := inv.parseYAMLGroup(child, children[child], source); err != nil {
				return err
			}
		}
	}
	return nil
}
