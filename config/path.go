package config

import (
	"fmt"
	"sort"
	"strings"
)

// GetPath walks a dotted path and returns the value at the leaf.
func GetPath(cfg Config, dotted string) (any, bool) {
	parts := strings.Split(dotted, ".")
	current := any(cfg)
	for _, part := range parts {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetPath writes a scalar at a dotted path, creating intermediate mappings
// as needed. Overwriting a subtree is rejected: only leaves may be patched.
func SetPath(cfg Config, dotted string, value any) error {
	if _, ok := asMap(value); ok {
		return fmt.Errorf("%w: value for %q is a mapping; overrides must be scalars", ErrInvalidPatch, dotted)
	}

	parts := strings.Split(dotted, ".")
	current := cfg
	for i, part := range parts[:len(parts)-1] {
		next, exists := current[part]
		if !exists {
			child := Config{}
			current[part] = child
			current = child
			continue
		}
		m, ok := asMap(next)
		if !ok {
			return fmt.Errorf("%w: %q is a leaf at %q", ErrInvalidPatch,
				dotted, strings.Join(parts[:i+1], "."))
		}
		current = m
	}

	last := parts[len(parts)-1]
	if existing, exists := current[last]; exists {
		if m, ok := asMap(existing); ok {
			hints := leafPaths(m, dotted)
			return fmt.Errorf("%w: %q names a subtree; override one of its leaves instead: %s",
				ErrInvalidPatch, dotted, strings.Join(hints, ", "))
		}
	}
	current[last] = value
	return nil
}

// Flatten converts the tree into a flat mapping with dotted keys. Only
// leaf values appear; empty subtrees are dropped.
func Flatten(cfg Config) map[string]any {
	flat := make(map[string]any)
	flattenInto(cfg, "", flat)
	return flat
}

func flattenInto(cfg Config, prefix string, flat map[string]any) {
	for k, v := range cfg {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if m, ok := asMap(v); ok {
			flattenInto(m, path, flat)
		} else {
			flat[path] = v
		}
	}
}

// leafPaths lists the dotted leaf descendants of a subtree, sorted.
func leafPaths(cfg Config, prefix string) []string {
	flat := make(map[string]any)
	flattenInto(cfg, prefix, flat)
	paths := make([]string, 0, len(flat))
	for p := range flat {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func asMap(v any) (Config, bool) {
	switch t := v.(type) {
	case Config:
		return t, true
	case map[string]any:
		return Config(t), true
	default:
		return nil, false
	}
}
