package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDefaults() Config {
	return Config{
		"model": "gpt-test",
		"m": Config{
			"x": 1,
			"y": 2,
		},
		"prompt_file": Required{Description: "path to the system prompt"},
		"run_id":      Internal{},
	}
}

func TestMergeNoChanges(t *testing.T) {
	defaults := sampleDefaults()
	merged, err := Merge(defaults, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, defaults, merged)

	// Deep copy: mutating the merged tree must not touch the defaults.
	merged["m"].(Config)["x"] = 99
	assert.Equal(t, 1, defaults["m"].(Config)["x"])
}

func TestMergeIdempotent(t *testing.T) {
	defaults := sampleDefaults()
	patch := map[string]string{"m.x": "5", "prompt_file": "p.txt"}

	once, err := Merge(defaults, nil, patch)
	require.NoError(t, err)
	twice, err := Merge(once, nil, patch)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestMergeReplacementWins(t *testing.T) {
	replacement := Config{"model": "other"}
	merged, err := Merge(sampleDefaults(), replacement, nil)
	require.NoError(t, err)
	assert.Equal(t, Config{"model": "other"}, merged)
}

func TestMergeSubtreeOverwriteRejected(t *testing.T) {
	defaults := Config{"m": Config{"x": 1, "y": 2}}
	_, err := Merge(defaults, nil, map[string]string{"m": "oops"})
	require.ErrorIs(t, err, ErrInvalidPatch)
	assert.Contains(t, err.Error(), "m.x")
	assert.Contains(t, err.Error(), "m.y")
}

func TestMergeCreatesIntermediates(t *testing.T) {
	merged, err := Merge(Config{}, nil, map[string]string{"a.b.c": "7"})
	require.NoError(t, err)
	v, ok := GetPath(merged, "a.b.c")
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestMergeThroughLeafRejected(t *testing.T) {
	defaults := Config{"a": 1}
	_, err := Merge(defaults, nil, map[string]string{"a.b": "2"})
	assert.ErrorIs(t, err, ErrInvalidPatch)
}

func TestParseScalar(t *testing.T) {
	assert.Equal(t, true, ParseScalar("true"))
	assert.Equal(t, false, ParseScalar("false"))
	assert.Nil(t, ParseScalar("null"))
	assert.Equal(t, 42, ParseScalar("42"))
	assert.Equal(t, 1.5, ParseScalar("1.5"))
	assert.Equal(t, "hello", ParseScalar("hello"))
}

func TestValidate(t *testing.T) {
	cfg := sampleDefaults()
	err := Validate(cfg)
	require.ErrorIs(t, err, ErrMissingRequired)
	assert.Contains(t, err.Error(), "prompt_file")
	assert.Contains(t, err.Error(), "path to the system prompt")

	resolved, err := Merge(cfg, nil, map[string]string{"prompt_file": "p.txt"})
	require.NoError(t, err)
	assert.NoError(t, Validate(resolved))
}

func TestValidateInternalAllowed(t *testing.T) {
	assert.NoError(t, Validate(Config{"run_id": Internal{}}))
}

func TestFlatten(t *testing.T) {
	flat := Flatten(Config{"a": Config{"b": 1}, "c": "x"})
	assert.Equal(t, map[string]any{"a.b": 1, "c": "x"}, flat)
}

func TestDiff(t *testing.T) {
	defaults := sampleDefaults()
	effective, err := Merge(defaults, nil, map[string]string{
		"m.x":         "5",
		"prompt_file": "p.txt",
	})
	require.NoError(t, err)

	entries := Diff(defaults, effective)
	byPath := map[string]DiffEntry{}
	for _, e := range entries {
		byPath[e.Path] = e
	}

	assert.Equal(t, DiffEntry{Path: "m.x", Old: 1, New: 5}, byPath["m.x"])
	assert.Equal(t, DiffEntry{Path: "prompt_file", Old: "PROMPT", New: "p.txt"}, byPath["prompt_file"])
	assert.NotContains(t, byPath, "run_id")
	assert.NotContains(t, byPath, "m.y")
}

func TestLoadReplacement(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: test\nnested:\n  depth: 3\n"), 0o600))

	cfg, err := LoadReplacement(path)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg["model"])
	v, ok := GetPath(cfg, "nested.depth")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestLoadReplacementMissing(t *testing.T) {
	_, err := LoadReplacement(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
