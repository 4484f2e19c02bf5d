// Package config loads the gateway's runtime configuration with Viper,
// grounded on lookatitude-beluga-ai's config/config.go: defaults set in
// code, an optional YAML file, and environment-variable overrides under
// a single prefix. Concrete numeric defaults are carried over from
// original_source/backend/app/config.py's Settings.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lokutor-ai/voice-gateway/pkg/gateway"
	"github.com/lokutor-ai/voice-gateway/pkg/providers/llm"
	"github.com/lokutor-ai/voice-gateway/pkg/providers/stt"
	"github.com/lokutor-ai/voice-gateway/pkg/providers/tts"
	"github.com/lokutor-ai/voice-gateway/pkg/tools"
)

// envPrefix is the VOICEGW_ prefix every environment variable override
// must carry, e.g. VOICEGW_OPENAI_API_KEY.
const envPrefix = "VOICEGW"

// Config is the fully resolved runtime configuration: provider
// credentials/models plus the turn-taking tunables spec.md §6 names.
type Config struct {
	OpenAI struct {
		APIKey string `mapstructure:"api_key"`
		Model  string `mapstructure:"model"`
	} `mapstructure:"openai"`

	Anthropic struct {
		APIKey string `mapstructure:"api_key"`
		Model  string `mapstructure:"model"`
	} `mapstructure:"anthropic"`

	// LLMProvider selects which of OpenAI/Anthropic backs the gateway's
	// primary LLMProvider; "openai" or "anthropic".
	LLMProvider string `mapstructure:"llm_provider"`

	Deepgram struct {
		APIKey   string `mapstructure:"api_key"`
		Model    string `mapstructure:"model"`
		Language string `mapstructure:"language"`
	} `mapstructure:"deepgram"`

	ElevenLabs struct {
		APIKey  string `mapstructure:"api_key"`
		VoiceID string `mapstructure:"voice_id"`
		Model   string `mapstructure:"model"`
	} `mapstructure:"elevenlabs"`

	Tuning struct {
		EndOfTurnSilenceMs    int `mapstructure:"end_of_turn_silence_ms"`
		MinUtteranceMs        int `mapstructure:"min_utterance_ms"`
		MaxUtteranceMs        int `mapstructure:"max_utterance_ms"`
		BargeInThresholdMs    int `mapstructure:"barge_in_threshold_ms"`
		VADEnergyThreshold    int `mapstructure:"vad_energy_threshold"`
		MinAudioBeforeBargein int `mapstructure:"min_audio_before_bargein"`
		ShortBufferMaxTurns   int `mapstructure:"short_buffer_max_turns"`
		ToolTimeoutMs         int `mapstructure:"tool_timeout_ms"`
		NetworkPlayoutBufferMs int `mapstructure:"network_playout_buffer_ms"`
	} `mapstructure:"tuning"`

	Server struct {
		ListenAddr  string `mapstructure:"listen_addr"`
		MetricsAddr string `mapstructure:"metrics_addr"`
	} `mapstructure:"server"`

	Agent struct {
		Name string `mapstructure:"name"`
	} `mapstructure:"agent"`
}

// Load reads configuration from defaults, an optional ./config.yaml (or
// a path in configPaths), and VOICEGW_-prefixed environment variables,
// in that increasing order of precedence.
func Load(configPaths ...string) (*Config, error) {
	v := viper.New()

	v.SetDefault("llm_provider", "openai")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("anthropic.model", "claude-3-5-sonnet-latest")
	v.SetDefault("deepgram.model", "nova-2")
	v.SetDefault("deepgram.language", "de")
	v.SetDefault("elevenlabs.voice_id", "nGISSznGHAgSTKaMXEPO")
	v.SetDefault("elevenlabs.model", "eleven_flash_v2_5")

	v.SetDefault("tuning.end_of_turn_silence_ms", 750)
	v.SetDefault("tuning.min_utterance_ms", 600)
	v.SetDefault("tuning.max_utterance_ms", 15000)
	v.SetDefault("tuning.barge_in_threshold_ms", 150)
	v.SetDefault("tuning.vad_energy_threshold", 1200)
	v.SetDefault("tuning.min_audio_before_bargein", 20)
	v.SetDefault("tuning.short_buffer_max_turns", 6)
	v.SetDefault("tuning.tool_timeout_ms", 5000)
	v.SetDefault("tuning.network_playout_buffer_ms", 500)

	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("agent.name", gateway.DefaultAgentName)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, nil
}

// GatewayConfig maps the tuning section onto gateway.Config.
func (c *Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		Language:               c.Deepgram.Language,
		MinAudioBeforeBargein:  c.Tuning.MinAudioBeforeBargein,
		NetworkPlayoutBufferMs: c.Tuning.NetworkPlayoutBufferMs,
		ShortBufferMaxTurns:    c.Tuning.ShortBufferMaxTurns,
		ToolTimeout:            time.Duration(c.Tuning.ToolTimeoutMs) * time.Millisecond,
		MinUtteranceMs:         c.Tuning.MinUtteranceMs,
		MaxUtteranceMs:         c.Tuning.MaxUtteranceMs,
		VADEnergyThreshold:     float64(c.Tuning.VADEnergyThreshold),
		VADDebounceMs:          c.Tuning.BargeInThresholdMs,
		AgentName:              c.Agent.Name,
	}
}

// DeepgramConfig maps the deepgram section onto stt.DeepgramConfig.
func (c *Config) DeepgramConfig() stt.DeepgramConfig {
	cfg := stt.DefaultDeepgramConfig(c.Deepgram.APIKey, c.Tuning.EndOfTurnSilenceMs)
	if c.Deepgram.Model != "" {
		cfg.Model = c.Deepgram.Model
	}
	return cfg
}

// ElevenLabsConfig maps the elevenlabs section onto tts.ElevenLabsConfig.
func (c *Config) ElevenLabsConfig() tts.ElevenLabsConfig {
	cfg := tts.DefaultElevenLabsConfig(c.ElevenLabs.APIKey, c.ElevenLabs.VoiceID)
	if c.ElevenLabs.Model != "" {
		cfg.ModelID = c.ElevenLabs.Model
	}
	return cfg
}

// NewLLMProvider constructs the configured primary LLM client. schemas
// advertises tool definitions; ignored for the Anthropic provider since
// it does not support tool calling.
func (c *Config) NewLLMProvider(schemas []tools.Schema) gateway.LLMProvider {
	if strings.EqualFold(c.LLMProvider, "anthropic") {
		return llm.NewAnthropicLLM(c.Anthropic.APIKey, c.Anthropic.Model)
	}
	return llm.NewOpenAILLM(c.OpenAI.APIKey, c.OpenAI.Model, schemas)
}
