package realtime

import (
	"errors"
	"fmt"

	"github.com/verdictlab/verdict/dag"
)

// ErrInvalidSession is returned when the resolved session parameters are
// unusable: empty voice, unknown modalities, or an unrecognized
// turn-detection type.
var ErrInvalidSession = errors.New("invalid realtime session settings")

// Built-in session defaults, overridden by model config and context.
var sessionDefaults = map[string]any{
	"voice":          "alloy",
	"modalities":     []any{"text"},
	"turn_detection": map[string]any{"type": "none"},
}

// settings are the validated per-invocation session parameters.
type settings struct {
	Voice         string
	Modalities    []string
	TurnDetection map[string]any
	Instructions  string
}

// settingKeys are the option names subject to the layered resolution.
var settingKeys = []string{"voice", "modalities", "turn_detection", "instructions"}

// resolveSettings applies the option precedence: top-level context value,
// then the context's realtime sub-mapping, then model config, then the
// built-in defaults. Each option takes the whole value of the highest
// layer that defines it; a lower layer never contributes keys to a
// mapping-valued option the winning layer already defines.
func resolveSettings(c *dag.Context, modelConfig map[string]any) (*settings, error) {
	layers := []map[string]any{contextTop(c), contextRealtime(c), pickKeys(modelConfig), sessionDefaults}

	resolved := map[string]any{}
	for _, key := range settingKeys {
		for _, layer := range layers {
			if v, ok := layer[key]; ok && v != nil {
				resolved[key] = v
				break
			}
		}
	}
	return validateSettings(resolved)
}

// pickKeys extracts only the session setting keys from a layer, dropping
// nil values so they do not shadow lower layers.
func pickKeys(layer map[string]any) map[string]any {
	out := map[string]any{}
	for _, key := range settingKeys {
		if v, ok := layer[key]; ok && v != nil {
			out[key] = v
		}
	}
	return out
}

func contextTop(c *dag.Context) map[string]any {
	if c == nil {
		return nil
	}
	out := map[string]any{}
	for _, key := range settingKeys {
		if v, ok := c.Get(key); ok && v != nil {
			out[key] = v
		}
	}
	return out
}

func contextRealtime(c *dag.Context) map[string]any {
	if c == nil {
		return nil
	}
	v, ok := c.Get("realtime")
	if !ok {
		return nil
	}
	sub, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return pickKeys(sub)
}

func validateSettings(resolved map[string]any) (*settings, error) {
	voice, _ := resolved["voice"].(string)
	if voice == "" {
		return nil, fmt.Errorf("%w: voice must be a non-empty string", ErrInvalidSession)
	}

	modalities, err := validateModalities(resolved["modalities"])
	if err != nil {
		return nil, err
	}

	turnDetection, err := validateTurnDetection(resolved["turn_detection"])
	if err != nil {
		return nil, err
	}

	instructions, _ := resolved["instructions"].(string)

	return &settings{
		Voice:         voice,
		Modalities:    modalities,
		TurnDetection: turnDetection,
		Instructions:  instructions,
	}, nil
}

// validateModalities checks the values against the allowed set and
// de-duplicates in first-seen order.
func validateModalities(v any) ([]string, error) {
	items, ok := toStringSlice(v)
	if !ok || len(items) == 0 {
		return nil, fmt.Errorf("%w: modalities must be a non-empty list", ErrInvalidSession)
	}
	allowed := map[string]bool{"text": true, "audio": true}
	seen := map[string]bool{}
	var out []string
	for _, item := range items {
		if !allowed[item] {
			return nil, fmt.Errorf("%w: unsupported modality %q", ErrInvalidSession, item)
		}
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out, nil
}

// turnDetectionKeys lists, per detection type, which keys survive into
// the session frame. Everything else is dropped.
var turnDetectionKeys = map[string][]string{
	"server_vad":   {"threshold", "prefix_padding_ms", "silence_duration_ms", "create_response", "interrupt_response", "type"},
	"semantic_vad": {"eagerness", "create_response", "interrupt_response", "type"},
	"none":         {"type"},
}

func validateTurnDetection(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{"type": "none"}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: turn_detection must be a mapping", ErrInvalidSession)
	}
	kind, _ := m["type"].(string)
	keep, known := turnDetectionKeys[kind]
	if !known {
		return nil, fmt.Errorf("%w: unsupported turn_detection type %q", ErrInvalidSession, kind)
	}
	out := map[string]any{}
	for _, key := range keep {
		if val, exists := m[key]; exists {
			out[key] = val
		}
	}
	return out, nil
}

func toStringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
