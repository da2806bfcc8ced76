// Package config provides configuration management for the ganochat widget service
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Language   string           `mapstructure:"language"` // active UI language: en, es, fa
	Dictation  DictationConfig  `mapstructure:"dictation"`
	Narration  NarrationConfig  `mapstructure:"narration"`
	Attachment AttachmentConfig `mapstructure:"attachment"`
	Backend    BackendConfig    `mapstructure:"backend"`
	Widget     WidgetConfig     `mapstructure:"widget"`
}

// DictationConfig configures the streaming speech recognizer
type DictationConfig struct {
	Endpoint       string        `mapstructure:"endpoint"` // wss recognizer endpoint
	APIKey         string        `mapstructure:"api_key"`
	SampleRate     int           `mapstructure:"sample_rate"`
	Channels       int           `mapstructure:"channels"`
	InterimResults bool          `mapstructure:"interim_results"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// NarrationConfig configures text-to-speech playback
type NarrationConfig struct {
	EngineBinary string        `mapstructure:"engine_binary"` // speech engine executable
	Rate         float64       `mapstructure:"rate"`          // 1.0, 1.5, 2.0
	Volume       float64       `mapstructure:"volume"`        // 0.0 - 1.0
	RestartDelay time.Duration `mapstructure:"restart_delay"` // pause between cancel and restart
}

// AttachmentConfig configures document analysis uploads
type AttachmentConfig struct {
	MaxSizeBytes int64 `mapstructure:"max_size_bytes"`
}

// BackendConfig configures the conversation AI backend
type BackendConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// WidgetConfig configures the embedded widget transport
type WidgetConfig struct {
	Addr        string        `mapstructure:"addr"`
	TokenSecret string        `mapstructure:"token_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	PongWait    time.Duration `mapstructure:"pong_wait"`
	WriteWait   time.Duration `mapstructure:"write_wait"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Language: "en",
		Dictation: DictationConfig{
			Endpoint:       "wss://api.deepgram.com/v1/listen",
			SampleRate:     16000,
			Channels:       1,
			InterimResults: true,
			Timeout:        30 * time.Second,
		},
		Narration: NarrationConfig{
			EngineBinary: "espeak-ng",
			Rate:         1.0,
			Volume:       1.0,
			RestartDelay: 50 * time.Millisecond,
		},
		Attachment: AttachmentConfig{
			MaxSizeBytes: 10 << 20, // 10 MiB
		},
		Backend: BackendConfig{
			Model:       "gpt-4-turbo",
			MaxTokens:   1024,
			Temperature: 0.7,
			Timeout:     60 * time.Second,
		},
		Widget: WidgetConfig{
			Addr:      ":8080",
			TokenTTL:  1 * time.Hour,
			PongWait:  30 * time.Second,
			WriteWait: 10 * time.Second,
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configDir, err := Dir()
	if err != nil {
		return cfg, err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	// A fresh viper per call: Set overrides outrank the file, so reusing the
	// package global would pin first-run defaults over later file edits.
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	// Environment variable overrides
	v.SetEnvPrefix("GANOCHAT")
	v.AutomaticEnv()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	configDir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	v := viper.New()
	v.Set("language", cfg.Language)
	v.Set("dictation", cfg.Dictation)
	v.Set("narration", cfg.Narration)
	v.Set("attachment", cfg.Attachment)
	v.Set("backend", cfg.Backend)
	v.Set("widget", cfg.Widget)

	return v.WriteConfigAs(filepath.Join(configDir, "config.yaml"))
}

// Dir returns the configuration directory path
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".ganochat"), nil
}

// Path returns the configuration file path
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}
