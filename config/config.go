// Package config implements the layered configuration model used by
// pipelines: a defaults tree that may contain sentinel values, an optional
// replacement tree, and a flat set of dotted-path overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is a nested mapping of string keys to scalars, sub-mappings, or
// sentinel values.
type Config map[string]any

// Required marks a value that must be supplied by the caller before a run
// can start. Description is shown when validation fails.
type Required struct {
	Description string
}

// MarshalJSON renders the sentinel as the literal PROMPT tag so run logs
// stay JSON round-trippable.
func (r Required) MarshalJSON() ([]byte, error) {
	return json.Marshal("PROMPT")
}

// Internal marks a value filled in by the runtime. It is hidden from diffs
// and never shown in help output.
type Internal struct{}

// MarshalJSON renders the sentinel as a stable tag.
func (Internal) MarshalJSON() ([]byte, error) {
	return json.Marshal("INTERNAL")
}

// ErrInvalidPatch is returned when a dotted override targets a subtree
// instead of a leaf value.
var ErrInvalidPatch = errors.New("invalid config patch")

// ErrMissingRequired is returned when required values remain unresolved
// after the merge.
var ErrMissingRequired = errors.New("missing required config values")

// Merge produces the effective configuration. When replacement is non-nil
// it becomes the base tree; otherwise the defaults are deep-copied. Each
// dotted override is then applied as a leaf write.
func Merge(defaults, replacement Config, patch map[string]string) (Config, error) {
	var cfg Config
	if replacement != nil {
		cfg = DeepCopy(replacement)
	} else {
		cfg = DeepCopy(defaults)
	}

	// Apply overrides in sorted order so failures are deterministic.
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := SetPath(cfg, key, ParseScalar(patch[key])); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Validate reports all unresolved Required sentinels in one error, with
// their descriptions as hints.
func Validate(cfg Config) error {
	flat := Flatten(cfg)
	paths := make([]string, 0, len(flat))
	for path := range flat {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var missing []string
	for _, path := range paths {
		if req, ok := flat[path].(Required); ok {
			missing = append(missing, fmt.Sprintf("%s (%s)", path, req.Description))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}
	return nil
}

// DeepCopy returns a structural copy of the tree. Sentinels and scalars
// are value types and copy as-is.
func DeepCopy(cfg Config) Config {
	if cfg == nil {
		return nil
	}
	out := make(Config, len(cfg))
	for k, v := range cfg {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case Config:
		return DeepCopy(t)
	case map[string]any:
		return DeepCopy(Config(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// ParseScalar converts an override string into a typed scalar. Booleans
// and numbers are recognized; everything else stays a string.
func ParseScalar(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// LoadReplacement reads a full replacement config from a YAML or JSON
// file. YAML is a superset of JSON, so a single decoder covers both.
func LoadReplacement(path string) (Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("read replacement config %s: %w", filepath.Base(path), err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse replacement config %s: %w", filepath.Base(path), err)
	}
	return normalize(raw), nil
}

// normalize rewrites nested map[string]any values as Config so the rest of
// the package sees a uniform tree.
func normalize(raw map[string]any) Config {
	cfg := make(Config, len(raw))
	for k, v := range raw {
		if m, ok := v.(map[string]any); ok {
			cfg[k] = normalize(m)
		} else {
			cfg[k] = v
		}
	}
	return cfg
}
