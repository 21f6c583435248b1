package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdictlab/verdict/dag"
)

func TestResolveSettingsDefaults(t *testing.T) {
	cfg, err := resolveSettings(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "alloy", cfg.Voice)
	assert.Equal(t, []string{"text"}, cfg.Modalities)
	assert.Equal(t, map[string]any{"type": "none"}, cfg.TurnDetection)
	assert.Empty(t, cfg.Instructions)
}

func TestResolveSettingsPrecedence(t *testing.T) {
	modelConfig := map[string]any{
		"voice":        "echo",
		"instructions": "from model",
	}

	c := dag.NewContext(map[string]any{"uuid": "u"})
	c.Set("realtime", map[string]any{
		"voice":        "shimmer",
		"instructions": "from realtime block",
	})
	c.Set("voice", "verse")

	cfg, err := resolveSettings(c, modelConfig)
	require.NoError(t, err)
	// Top-level context beats the realtime block beats model config.
	assert.Equal(t, "verse", cfg.Voice)
	assert.Equal(t, "from realtime block", cfg.Instructions)
}

func TestResolveSettingsTurnDetectionWinsWholesale(t *testing.T) {
	modelConfig := map[string]any{
		"turn_detection": map[string]any{"type": "server_vad", "threshold": 0.9},
	}
	c := dag.NewContext(map[string]any{"uuid": "u"})
	c.Set("turn_detection", map[string]any{"type": "server_vad"})

	cfg, err := resolveSettings(c, modelConfig)
	require.NoError(t, err)
	// The context's value wins as a whole; the model config's threshold
	// must not bleed into it.
	assert.Equal(t, map[string]any{"type": "server_vad"}, cfg.TurnDetection)
}

func TestResolveSettingsRealtimeBlockTurnDetectionWholesale(t *testing.T) {
	modelConfig := map[string]any{
		"turn_detection": map[string]any{"type": "server_vad", "threshold": 0.4},
	}
	c := dag.NewContext(map[string]any{"uuid": "u"})
	c.Set("realtime", map[string]any{
		"turn_detection": map[string]any{"type": "none"},
	})

	cfg, err := resolveSettings(c, modelConfig)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "none"}, cfg.TurnDetection)
}

func TestResolveSettingsModelConfigBeatsDefaults(t *testing.T) {
	cfg, err := resolveSettings(nil, map[string]any{"voice": "echo"})
	require.NoError(t, err)
	assert.Equal(t, "echo", cfg.Voice)
}

func TestResolveSettingsIgnoresUnrelatedConfigKeys(t *testing.T) {
	cfg, err := resolveSettings(nil, map[string]any{
		"endpoint": "https://x",
		"key":      "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "alloy", cfg.Voice)
}

func TestValidateModalitiesDeduplicates(t *testing.T) {
	out, err := validateModalities([]any{"audio", "text", "audio"})
	require.NoError(t, err)
	assert.Equal(t, []string{"audio", "text"}, out)
}

func TestValidateModalitiesRejectsUnknown(t *testing.T) {
	_, err := validateModalities([]any{"video"})
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestValidateModalitiesRejectsEmpty(t *testing.T) {
	_, err := validateModalities([]any{})
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestValidateTurnDetectionFiltersServerVAD(t *testing.T) {
	out, err := validateTurnDetection(map[string]any{
		"type":                "server_vad",
		"threshold":           0.5,
		"silence_duration_ms": 200,
		"eagerness":           "high", // semantic_vad key, dropped
		"bogus":               true,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"type":                "server_vad",
		"threshold":           0.5,
		"silence_duration_ms": 200,
	}, out)
}

func TestValidateTurnDetectionFiltersSemanticVAD(t *testing.T) {
	out, err := validateTurnDetection(map[string]any{
		"type":      "semantic_vad",
		"eagerness": "low",
		"threshold": 0.5, // server_vad key, dropped
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"type":      "semantic_vad",
		"eagerness": "low",
	}, out)
}

func TestValidateTurnDetectionNoneDropsEverythingElse(t *testing.T) {
	out, err := validateTurnDetection(map[string]any{
		"type":      "none",
		"threshold": 0.9,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "none"}, out)
}

func TestValidateTurnDetectionUnknownType(t *testing.T) {
	_, err := validateTurnDetection(map[string]any{"type": "psychic"})
	assert.ErrorIs(t, err, ErrInvalidSession)
}
