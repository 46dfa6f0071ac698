// Package config loads companion settings for the nero binaries from a YAML
// file, a .env file and NERO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/goblincore/nero"
)

// Config holds all application configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir" yaml:"data_dir"`
	LogLevel  string          `mapstructure:"log_level" yaml:"log_level"`
	DB        DBConfig        `mapstructure:"db" yaml:"db"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Voice     VoiceConfig     `mapstructure:"voice" yaml:"voice"`
	Companion CompanionConfig `mapstructure:"companion" yaml:"companion"`
	Features  FeatureConfig   `mapstructure:"features" yaml:"features"`
}

// DBConfig selects the durable store.
type DBConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // sqlite or mysql
	DSN    string `mapstructure:"dsn" yaml:"dsn"`       // file path or mysql DSN; empty = <data_dir>/nero.db
}

// LLMConfig configures reply generation. Keys are normally supplied through
// the environment rather than the file.
type LLMConfig struct {
	Provider      string `mapstructure:"provider" yaml:"provider"` // gemini, openai or empty for auto
	Model         string `mapstructure:"model" yaml:"model"`
	GeminiAPIKey  string `mapstructure:"gemini_api_key" yaml:"gemini_api_key,omitempty"`
	OpenAIAPIKey  string `mapstructure:"openai_api_key" yaml:"openai_api_key,omitempty"`
	OpenAIBaseURL string `mapstructure:"openai_base_url" yaml:"openai_base_url,omitempty"`
}

// VoiceConfig configures spoken replies.
type VoiceConfig struct {
	AutoSpeak bool   `mapstructure:"auto_speak" yaml:"auto_speak"`
	Output    string `mapstructure:"output" yaml:"output"` // file the audio is appended to
}

// CompanionConfig tunes the conversation engine.
type CompanionConfig struct {
	Persona          string        `mapstructure:"persona" yaml:"persona,omitempty"`
	MaxMessageLength int           `mapstructure:"max_message_length" yaml:"max_message_length"`
	ContextWindow    int           `mapstructure:"context_window" yaml:"context_window"`
	LocalMessageCap  int           `mapstructure:"local_message_cap" yaml:"local_message_cap"`
	PatternInterval  time.Duration `mapstructure:"pattern_interval" yaml:"pattern_interval"`
	PollInterval     time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	EnergyCheckAfter time.Duration `mapstructure:"energy_check_after" yaml:"energy_check_after"`
	InsightCooldown  time.Duration `mapstructure:"insight_cooldown" yaml:"insight_cooldown"`
	CheckInMin       time.Duration `mapstructure:"check_in_min" yaml:"check_in_min"`
	CheckInMax       time.Duration `mapstructure:"check_in_max" yaml:"check_in_max"`
	Seed             uint64        `mapstructure:"seed" yaml:"seed,omitempty"`
}

// FeatureConfig switches optional subsystems on or off.
type FeatureConfig struct {
	Patterns     bool `mapstructure:"patterns" yaml:"patterns"`
	Insights     bool `mapstructure:"insights" yaml:"insights"`
	BodyDouble   bool `mapstructure:"body_double" yaml:"body_double"`
	Nudges       bool `mapstructure:"nudges" yaml:"nudges"`
	EnergyChecks bool `mapstructure:"energy_checks" yaml:"energy_checks"`
}

// DefaultDataDir is ~/.nero, or ./data when there is no home directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".nero")
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:  DefaultDataDir(),
		LogLevel: "info",
		DB:       DBConfig{Driver: "sqlite"},
		Companion: CompanionConfig{
			MaxMessageLength: 2000,
			ContextWindow:    20,
			LocalMessageCap:  100,
			PatternInterval:  10 * time.Minute,
			PollInterval:     60 * time.Second,
			EnergyCheckAfter: 4 * time.Hour,
			InsightCooldown:  10 * time.Minute,
			CheckInMin:       8 * time.Minute,
			CheckInMax:       15 * time.Minute,
		},
		Features: FeatureConfig{
			Patterns:     true,
			Insights:     true,
			BodyDouble:   true,
			Nudges:       true,
			EnergyChecks: true,
		},
	}
}

// Load reads configuration from path (or nero.yaml in the working directory
// or the data dir when path is empty), then applies .env and NERO_*
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := DefaultConfig()
	v := viper.New()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("nero")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(cfg.DataDir)
	}

	v.SetEnvPrefix("NERO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The providers' conventional variable names work too.
	_ = v.BindEnv("llm.gemini_api_key", "NERO_LLM_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("llm.openai_api_key", "NERO_LLM_OPENAI_API_KEY", "OPENAI_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("db.driver", cfg.DB.Driver)
	v.SetDefault("db.dsn", cfg.DB.DSN)
	v.SetDefault("llm.provider", cfg.LLM.Provider)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.openai_base_url", "")
	v.SetDefault("voice.auto_speak", cfg.Voice.AutoSpeak)
	v.SetDefault("voice.output", cfg.Voice.Output)

	c := cfg.Companion
	v.SetDefault("companion.persona", c.Persona)
	v.SetDefault("companion.max_message_length", c.MaxMessageLength)
	v.SetDefault("companion.context_window", c.ContextWindow)
	v.SetDefault("companion.local_message_cap", c.LocalMessageCap)
	v.SetDefault("companion.pattern_interval", c.PatternInterval)
	v.SetDefault("companion.poll_interval", c.PollInterval)
	v.SetDefault("companion.energy_check_after", c.EnergyCheckAfter)
	v.SetDefault("companion.insight_cooldown", c.InsightCooldown)
	v.SetDefault("companion.check_in_min", c.CheckInMin)
	v.SetDefault("companion.check_in_max", c.CheckInMax)
	v.SetDefault("companion.seed", c.Seed)

	f := cfg.Features
	v.SetDefault("features.patterns", f.Patterns)
	v.SetDefault("features.insights", f.Insights)
	v.SetDefault("features.body_double", f.BodyDouble)
	v.SetDefault("features.nudges", f.Nudges)
	v.SetDefault("features.energy_checks", f.EnergyChecks)
}

// Save writes cfg as YAML to path. API keys are never written.
func Save(cfg *Config, path string) error {
	out := *cfg
	out.LLM.GeminiAPIKey = ""
	out.LLM.OpenAIAPIKey = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Nero converts the file configuration into engine parameters.
func (c *Config) Nero() nero.Config {
	dsn := c.DB.DSN
	if dsn == "" && c.DB.Driver != "mysql" {
		dsn = filepath.Join(c.DataDir, "nero.db")
	}
	return nero.Config{
		DBDriver:         c.DB.Driver,
		DBPath:           dsn,
		LocalPath:        filepath.Join(c.DataDir, "local.json"),
		Provider:         c.LLM.Provider,
		GeminiAPIKey:     c.LLM.GeminiAPIKey,
		OpenAIAPIKey:     c.LLM.OpenAIAPIKey,
		OpenAIURL:        c.LLM.OpenAIBaseURL,
		Model:            c.LLM.Model,
		Persona:          c.Companion.Persona,
		AutoSpeak:        c.Voice.AutoSpeak,
		MaxMessageLength: c.Companion.MaxMessageLength,
		ContextWindow:    c.Companion.ContextWindow,
		LocalMessageCap:  c.Companion.LocalMessageCap,
		PatternInterval:  c.Companion.PatternInterval,
		PollInterval:     c.Companion.PollInterval,
		EnergyCheckAfter: c.Companion.EnergyCheckAfter,
		InsightCooldown:  c.Companion.InsightCooldown,
		CheckInMin:       c.Companion.CheckInMin,
		CheckInMax:       c.Companion.CheckInMax,
		Seed:             c.Companion.Seed,
		Features: nero.Features{
			DisablePatterns:     !c.Features.Patterns,
			DisableInsights:     !c.Features.Insights,
			DisableBodyDouble:   !c.Features.BodyDouble,
			DisableNudges:       !c.Features.Nudges,
			DisableEnergyChecks: !c.Features.EnergyChecks,
		},
	}
}
