package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	SchemaVersion          = 1
	DefaultPath            = "/etc/gohome/lyric.yaml"
	DefaultGRPCAddr        = "0.0.0.0:9010"
	DefaultHTTPAddr        = "0.0.0.0:8090"
	DefaultLogLevel        = "info"
	DefaultPollInterval    = 5 * time.Minute
	DefaultStatePath       = "/var/lib/gohome/lyric-credentials.json"
	DefaultOAuthPrefix     = "gohome/oauth"
	DefaultRefreshInterval = 10 * time.Minute
	DefaultMQTTBaseTopic   = "lyric"
	DefaultMQTTBrokerURL   = "tcp://localhost:1883"

	envPrefix = "LYRIC_"
)

type Config struct {
	SchemaVersion int         `koanf:"schema_version"`
	Core          CoreConfig  `koanf:"core"`
	Lyric         LyricConfig `koanf:"lyric"`
	OAuth         OAuthConfig `koanf:"oauth"`
	MQTT          MQTTConfig  `koanf:"mqtt"`
}

type CoreConfig struct {
	GRPCAddr string `koanf:"grpc_addr"`
	HTTPAddr string `koanf:"http_addr"`
	LogLevel string `koanf:"log_level"`
}

type LyricConfig struct {
	BaseURL       string        `koanf:"base_url"`
	APIKey        string        `koanf:"api_key"`
	APIKeyFile    string        `koanf:"api_key_file"`
	BootstrapFile string        `koanf:"bootstrap_file"`
	StatePath     string        `koanf:"state_path"`
	PollInterval  time.Duration `koanf:"poll_interval"`
}

type OAuthConfig struct {
	BlobEndpoint      string        `koanf:"blob_endpoint"`
	BlobBucket        string        `koanf:"blob_bucket"`
	BlobPrefix        string        `koanf:"blob_prefix"`
	BlobAccessKeyFile string        `koanf:"blob_access_key_file"`
	BlobSecretKeyFile string        `koanf:"blob_secret_key_file"`
	BlobRegion        string        `koanf:"blob_region"`
	RefreshEnabled    *bool         `koanf:"refresh_enabled"`
	RefreshInterval   time.Duration `koanf:"refresh_interval"`
}

type MQTTConfig struct {
	Enabled   bool   `koanf:"enabled"`
	BrokerURL string `koanf:"broker_url"`
	ClientID  string `koanf:"client_id"`
	BaseTopic string `koanf:"base_topic"`
	QoS       byte   `koanf:"qos"`
	Retain    bool   `koanf:"retain"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

// Load reads the YAML or JSON file at path (if non-empty), overlays LYRIC_*
// environment variables, applies defaults, and validates.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKeyTransform(strings.TrimPrefix(key, envPrefix)), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config extension %q", ext)
	}
}

var sections = map[string]bool{"core": true, "lyric": true, "oauth": true, "mqtt": true}

// envKeyTransform maps OAUTH_BLOB_BUCKET to oauth.blob_bucket. Keys outside a
// known section stay top level.
func envKeyTransform(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	section, rest, ok := strings.Cut(key, "_")
	if !ok || rest == "" || !sections[section] {
		return key
	}
	return section + "." + rest
}

func applyDefaults(cfg *Config) {
	if cfg.SchemaVersion == 0 {
		cfg.SchemaVersion = SchemaVersion
	}
	if cfg.Core.GRPCAddr == "" {
		cfg.Core.GRPCAddr = DefaultGRPCAddr
	}
	if cfg.Core.HTTPAddr == "" {
		cfg.Core.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Core.LogLevel == "" {
		cfg.Core.LogLevel = DefaultLogLevel
	}

	if cfg.Lyric.PollInterval == 0 {
		cfg.Lyric.PollInterval = DefaultPollInterval
	}
	if cfg.Lyric.StatePath == "" {
		cfg.Lyric.StatePath = DefaultStatePath
	}

	if cfg.OAuth.BlobPrefix == "" {
		cfg.OAuth.BlobPrefix = DefaultOAuthPrefix
	}
	if cfg.OAuth.RefreshEnabled == nil {
		enabled := true
		cfg.OAuth.RefreshEnabled = &enabled
	}
	if cfg.OAuth.RefreshInterval == 0 {
		cfg.OAuth.RefreshInterval = DefaultRefreshInterval
	}

	if cfg.MQTT.BrokerURL == "" {
		cfg.MQTT.BrokerURL = DefaultMQTTBrokerURL
	}
	if cfg.MQTT.BaseTopic == "" {
		cfg.MQTT.BaseTopic = DefaultMQTTBaseTopic
	}
}

// Validate enforces required invariants beyond typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %d", SchemaVersion)
	}

	if cfg.Core.GRPCAddr == "" {
		return fmt.Errorf("core.grpc_addr is required")
	}
	if cfg.Core.HTTPAddr == "" {
		return fmt.Errorf("core.http_addr is required")
	}

	if cfg.Lyric.APIKey == "" && cfg.Lyric.APIKeyFile == "" {
		return fmt.Errorf("lyric.api_key or lyric.api_key_file is required")
	}
	if cfg.Lyric.BootstrapFile == "" {
		return fmt.Errorf("lyric.bootstrap_file is required")
	}
	if cfg.Lyric.PollInterval < 0 {
		return fmt.Errorf("lyric.poll_interval must not be negative")
	}

	if cfg.OAuth.BlobEndpoint != "" {
		if cfg.OAuth.BlobBucket == "" {
			return fmt.Errorf("oauth.blob_bucket is required")
		}
		if cfg.OAuth.BlobAccessKeyFile == "" {
			return fmt.Errorf("oauth.blob_access_key_file is required")
		}
		if cfg.OAuth.BlobSecretKeyFile == "" {
			return fmt.Errorf("oauth.blob_secret_key_file is required")
		}
	}
	if cfg.OAuth.RefreshInterval < 0 {
		return fmt.Errorf("oauth.refresh_interval must not be negative")
	}

	if cfg.MQTT.Enabled && cfg.MQTT.QoS > 1 {
		return fmt.Errorf("mqtt.qos must be 0 or 1")
	}

	return nil
}

// ResolveAPIKey returns the API key, reading api_key_file when api_key is unset.
func (c LyricConfig) ResolveAPIKey() (string, error) {
	if key := strings.TrimSpace(c.APIKey); key != "" {
		return key, nil
	}
	data, err := os.ReadFile(c.APIKeyFile)
	if err != nil {
		return "", fmt.Errorf("read api key: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("api key file %s is empty", c.APIKeyFile)
	}
	return key, nil
}
