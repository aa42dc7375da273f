// Config loading: YAML file plus FLEET_* environment overrides, validated by a CUE schema.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// APIConfig points the REST client at the registry.
type APIConfig struct {
	BaseURL     string        `mapstructure:"base_url" json:"base_url" yaml:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	ReadRetries int           `mapstructure:"read_retries" json:"read_retries" yaml:"read_retries"`
}

// ChannelConfig configures the real-time event channel.
type ChannelConfig struct {
	URL               string        `mapstructure:"url" json:"url" yaml:"url"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts" json:"reconnect_attempts" yaml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay" json:"reconnect_delay" yaml:"reconnect_delay"`
}

// ViewConfig bounds the in-memory view.
type ViewConfig struct {
	HistoryLimit int `mapstructure:"history_limit" json:"history_limit" yaml:"history_limit"`
	AlertLimit   int `mapstructure:"alert_limit" json:"alert_limit" yaml:"alert_limit"`
}

// CredentialsConfig locates the token file. An empty path means the user config dir.
type CredentialsConfig struct {
	Path string `mapstructure:"path" json:"path" yaml:"path"`
}

// LogConfig selects slog level and handler.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level"`
	Format string `mapstructure:"format" json:"format" yaml:"format"`
}

// GreptimeConfig addresses the telemetry archive. An empty host disables it.
type GreptimeConfig struct {
	Host     string `mapstructure:"host" json:"host" yaml:"host"`
	Port     int    `mapstructure:"port" json:"port" yaml:"port"`
	Database string `mapstructure:"database" json:"database" yaml:"database"`
	Table    string `mapstructure:"table" json:"table" yaml:"table"`
}

// RecorderConfig enables event recording sinks. Empty values disable a sink.
type RecorderConfig struct {
	File       string         `mapstructure:"file" json:"file" yaml:"file"`
	SQLitePath string         `mapstructure:"sqlite_path" json:"sqlite_path" yaml:"sqlite_path"`
	Greptime   GreptimeConfig `mapstructure:"greptime" json:"greptime" yaml:"greptime"`
}

// DevRegistryConfig configures the in-process development registry.
type DevRegistryConfig struct {
	Addr      string        `mapstructure:"addr" json:"addr" yaml:"addr"`
	Fixture   string        `mapstructure:"fixture" json:"fixture" yaml:"fixture"`
	JWTSecret string        `mapstructure:"jwt_secret" json:"jwt_secret" yaml:"jwt_secret"`
	Tick      time.Duration `mapstructure:"tick" json:"tick" yaml:"tick"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" json:"token_ttl" yaml:"token_ttl"`
}

// Config is the root console configuration.
type Config struct {
	API         APIConfig         `mapstructure:"api" json:"api" yaml:"api"`
	Channel     ChannelConfig     `mapstructure:"channel" json:"channel" yaml:"channel"`
	View        ViewConfig        `mapstructure:"view" json:"view" yaml:"view"`
	Credentials CredentialsConfig `mapstructure:"credentials" json:"credentials" yaml:"credentials"`
	Log         LogConfig         `mapstructure:"log" json:"log" yaml:"log"`
	Recorder    RecorderConfig    `mapstructure:"recorder" json:"recorder" yaml:"recorder"`
	DevRegistry DevRegistryConfig `mapstructure:"devregistry" json:"devregistry" yaml:"devregistry"`
}

// EnvPrefix prefixes environment overrides, e.g. FLEET_API_BASE_URL.
const EnvPrefix = "FLEET"

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("api.read_retries", 2)
	v.SetDefault("channel.url", "ws://localhost:8080/ws")
	v.SetDefault("channel.reconnect_attempts", 5)
	v.SetDefault("channel.reconnect_delay", time.Second)
	v.SetDefault("view.history_limit", 5)
	v.SetDefault("view.alert_limit", 50)
	v.SetDefault("credentials.path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("recorder.file", "")
	v.SetDefault("recorder.sqlite_path", "")
	v.SetDefault("recorder.greptime.host", "")
	v.SetDefault("recorder.greptime.port", 4001)
	v.SetDefault("recorder.greptime.database", "public")
	v.SetDefault("recorder.greptime.table", "drone_telemetry")
	v.SetDefault("devregistry.addr", ":8080")
	v.SetDefault("devregistry.fixture", "")
	v.SetDefault("devregistry.jwt_secret", "dev-secret")
	v.SetDefault("devregistry.tick", time.Second)
	v.SetDefault("devregistry.token_ttl", 12*time.Hour)
}

// Default returns the configuration used when no file or environment is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads configPath (optional; "" searches ./fleetctl.yaml), applies FLEET_*
// environment overrides and validates the result against the CUE schema at
// cueSchemaPath, or the embedded schema when cueSchemaPath is "".
func Load(configPath, cueSchemaPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("fleetctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := ValidateWithCue(&cfg, cueSchemaPath); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// String renders cfg as YAML with secrets masked.
func (c Config) String() string {
	if c.DevRegistry.JWTSecret != "" {
		c.DevRegistry.JWTSecret = "****"
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(b)
}
