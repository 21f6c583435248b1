package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"

	"github.com/verdictlab/verdict/logger"
)

// ErrMisconfigured is returned for unusable model configuration: unknown
// adapter types or malformed descriptor files.
var ErrMisconfigured = errors.New("model misconfigured")

// Descriptor is one entry of the model configuration file. Name and Type
// are required; everything else is adapter-specific and kept in Config.
type Descriptor struct {
	Name   string
	Type   string
	Config map[string]any
}

// Factory builds a model adapter from a descriptor.
type Factory func(desc Descriptor) (Model, error)

var factories = make(map[string]Factory)

// RegisterFactory binds an adapter type tag to its constructor. Adapter
// packages call this from init.
func RegisterFactory(modelType string, factory Factory) {
	factories[modelType] = factory
}

// descriptorSchema validates the shape of the descriptor file before any
// adapter construction is attempted.
const descriptorSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["name", "type"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"type": {"type": "string", "minLength": 1}
		}
	}
}`

// LoadRegistry reads a JSON array of model descriptors, merges per-name
// keys from the credentials file, and constructs an adapter for each
// entry. Credentials are a flat JSON mapping of model name to key.
func LoadRegistry(descriptorsPath, credentialsPath string) (*Registry, error) {
	data, err := os.ReadFile(descriptorsPath) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read model descriptors: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(descriptorSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: parse model descriptors: %v", ErrMisconfigured, err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("%w: model descriptors: %v", ErrMisconfigured, result.Errors())
	}

	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode model descriptors: %v", ErrMisconfigured, err)
	}

	keys := map[string]string{}
	if credentialsPath != "" {
		credData, err := os.ReadFile(credentialsPath) // #nosec G304 -- operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("read credentials: %w", err)
		}
		if err := json.Unmarshal(credData, &keys); err != nil {
			return nil, fmt.Errorf("%w: decode credentials: %v", ErrMisconfigured, err)
		}
	}

	registry := NewRegistry()
	for _, entry := range raw {
		name, _ := entry["name"].(string)
		modelType, _ := entry["type"].(string)

		cfg := make(map[string]any, len(entry))
		for k, v := range entry {
			if k == "name" || k == "type" {
				continue
			}
			cfg[k] = v
		}
		if key, ok := keys[name]; ok {
			cfg["key"] = key
		}

		factory, known := factories[modelType]
		if !known {
			return nil, fmt.Errorf("%w: model %q has unsupported type %q", ErrMisconfigured, name, modelType)
		}
		model, err := factory(Descriptor{Name: name, Type: modelType, Config: cfg})
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", name, err)
		}
		if err := registry.Register(name, model); err != nil {
			return nil, err
		}
		logger.Debug("registered model", "name", name, "type", modelType)
	}
	return registry, nil
}
