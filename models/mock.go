package models

import (
	"context"
	"fmt"

	"github.com/verdictlab/verdict/dag"
)

func init() {
	RegisterFactory("MOCK", func(desc Descriptor) (Model, error) {
		value, _ := desc.Config["value"].(string)
		if value == "" {
			value = fmt.Sprintf("Mock response from %s", desc.Name)
		}
		return &MockModel{name: desc.Name, value: value}, nil
	})
}

// MockModel returns a canned response without any network I/O. It backs
// the MOCK descriptor type for development suites and tests.
type MockModel struct {
	name  string
	value string
}

// NewMockModel creates a mock model with a fixed response.
func NewMockModel(name, value string) *MockModel {
	return &MockModel{name: name, value: value}
}

// Infer returns the configured value regardless of input.
func (m *MockModel) Infer(_ context.Context, _ []Message, _ *dag.Context) (string, error) {
	return m.value, nil
}

// Metadata describes the mock configuration.
func (m *MockModel) Metadata() map[string]any {
	return map[string]any{
		"name":  m.name,
		"type":  "MOCK",
		"value": m.value,
	}
}
