package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Apollo     ApolloConfig     `yaml:"apollo" mapstructure:"apollo"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Campaign   CampaignConfig   `yaml:"campaign" mapstructure:"campaign"`
	Channels   ChannelsConfig   `yaml:"channels" mapstructure:"channels"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ApolloConfig holds directory provider API settings.
type ApolloConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
	Retries     int     `yaml:"retries" mapstructure:"retries"`       // per-round retry budget for transient faults
}

// AnthropicConfig holds intent parser model settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SalesforceConfig holds CRM export settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// SearchConfig configures the agentic search loop.
type SearchConfig struct {
	MaxRounds          int     `yaml:"max_rounds" mapstructure:"max_rounds"`
	RelevanceThreshold int     `yaml:"relevance_threshold" mapstructure:"relevance_threshold"`
	Oversample         float64 `yaml:"oversample" mapstructure:"oversample"`
	DupRateStop        float64 `yaml:"dup_rate_stop" mapstructure:"dup_rate_stop"`
}

// CampaignConfig configures the outreach scheduler.
type CampaignConfig struct {
	ChannelTimeoutSecs int    `yaml:"channel_timeout_secs" mapstructure:"channel_timeout_secs"`
	BridgeURL          string `yaml:"bridge_url" mapstructure:"bridge_url"`
	MessageTemplate    string `yaml:"message_template" mapstructure:"message_template"`
}

// ChannelsConfig points at the per-channel policy file.
type ChannelsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "outreach.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("apollo.base_url", "https://api.apollo.io/v1")
	v.SetDefault("apollo.timeout_secs", 30)
	v.SetDefault("apollo.rate_limit", 2)
	v.SetDefault("apollo.retries", 2)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("search.max_rounds", 4)
	v.SetDefault("search.relevance_threshold", 50)
	v.SetDefault("search.oversample", 2.5)
	v.SetDefault("search.dup_rate_stop", 0.9)
	v.SetDefault("campaign.channel_timeout_secs", 45)
	v.SetDefault("campaign.message_template", "Hi {first_name}, I'd like to connect about how we can help {company}.")
	v.SetDefault("channels.path", "channels.yaml")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
