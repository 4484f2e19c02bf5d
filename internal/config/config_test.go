package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("VOICEGW_OPENAI_API_KEY", "")
	t.Setenv("VOICEGW_DEEPGRAM_API_KEY", "")
	t.Setenv("VOICEGW_ELEVENLABS_API_KEY", "")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	assert.Equal(t, "nova-2", cfg.Deepgram.Model)
	assert.Equal(t, "de", cfg.Deepgram.Language)
	assert.Equal(t, "eleven_flash_v2_5", cfg.ElevenLabs.Model)
	assert.Equal(t, 750, cfg.Tuning.EndOfTurnSilenceMs)
	assert.Equal(t, 600, cfg.Tuning.MinUtteranceMs)
	assert.Equal(t, 15000, cfg.Tuning.MaxUtteranceMs)
	assert.Equal(t, 20, cfg.Tuning.MinAudioBeforeBargein)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("VOICEGW_OPENAI_API_KEY", "test-key-123")
	t.Setenv("VOICEGW_LLM_PROVIDER", "anthropic")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "test-key-123", cfg.OpenAI.APIKey)
	assert.Equal(t, "anthropic", cfg.LLMProvider)
}

func TestGatewayConfigMapsTuningSection(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	gwCfg := cfg.GatewayConfig()
	assert.Equal(t, cfg.Tuning.MinAudioBeforeBargein, gwCfg.MinAudioBeforeBargein)
	assert.Equal(t, cfg.Tuning.MinUtteranceMs, gwCfg.MinUtteranceMs)
	assert.Equal(t, cfg.Tuning.MaxUtteranceMs, gwCfg.MaxUtteranceMs)
	assert.Equal(t, float64(cfg.Tuning.VADEnergyThreshold), gwCfg.VADEnergyThreshold)
	assert.Equal(t, cfg.Tuning.BargeInThresholdMs, gwCfg.VADDebounceMs)
	assert.Equal(t, cfg.Agent.Name, gwCfg.AgentName)
}

func TestNewLLMProviderSelectsAnthropicByName(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	cfg.LLMProvider = "Anthropic"
	cfg.Anthropic.APIKey = "key"
	cfg.Anthropic.Model = "claude-3-5-sonnet-latest"

	provider := cfg.NewLLMProvider(nil)
	assert.Equal(t, "anthropic", provider.Name())
}

func TestNewLLMProviderDefaultsToOpenAI(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	cfg.OpenAI.APIKey = "key"

	provider := cfg.NewLLMProvider(nil)
	assert.Equal(t, "openai", provider.Name())
}
