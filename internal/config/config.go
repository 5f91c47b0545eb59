package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	Chat    ChatConfig    `mapstructure:"chat"`
	Upload  UploadConfig  `mapstructure:"upload"`
	CORS    CORSConfig    `mapstructure:"cors"`
	Log     LogConfig     `mapstructure:"log"`
	Session SessionConfig `mapstructure:"session"`
	Storage StorageConfig `mapstructure:"storage"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

// BackendConfig points at the external secretary backend that owns all
// OCR/LLM/SROI work.
type BackendConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type ChatConfig struct {
	Model              string        `mapstructure:"model"`
	SystemPrompt       string        `mapstructure:"system_prompt"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxHistoryMessages int           `mapstructure:"max_history_messages"`
}

type UploadConfig struct {
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	AutoCompleteAfter time.Duration `mapstructure:"auto_complete_after"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type StorageConfig struct {
	Type    string `mapstructure:"type"`
	DataDir string `mapstructure:"data_dir"`
}

var cfg *Config

func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SECRETARY")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// Config file wins; fall back to the environment for secrets.
	if cfg.Backend.APIKey == "" {
		if apiKey := os.Getenv("SECRETARY_API_KEY"); apiKey != "" {
			cfg.Backend.APIKey = apiKey
		}
	}

	applyDefaults(cfg)

	return cfg, nil
}

func applyDefaults(c *Config) {
	if c.Chat.MaxHistoryMessages <= 0 {
		c.Chat.MaxHistoryMessages = 40
	}
	if c.Chat.Timeout <= 0 {
		c.Chat.Timeout = 60 * time.Second
	}
	if c.Upload.TickInterval <= 0 {
		c.Upload.TickInterval = 500 * time.Millisecond
	}
	if c.Upload.AutoCompleteAfter <= 0 {
		c.Upload.AutoCompleteAfter = 150 * time.Second
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = 24 * time.Hour
	}
	if c.Session.CleanupInterval <= 0 {
		c.Session.CleanupInterval = time.Hour
	}
}

func Get() *Config {
	return cfg
}
