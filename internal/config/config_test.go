package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
core:
  grpc_addr: 127.0.0.1:9999
  log_level: debug
lyric:
  api_key: consumer-key
  bootstrap_file: /run/secrets/lyric-bootstrap.json
  poll_interval: 2m
oauth:
  blob_endpoint: https://s3.example.com
  blob_bucket: homelab
  blob_access_key_file: /run/secrets/s3-access
  blob_secret_key_file: /run/secrets/s3-secret
mqtt:
  enabled: true
  broker_url: tcp://broker:1883
  qos: 1
  retain: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lyric.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, SchemaVersion, cfg.SchemaVersion)
	assert.Equal(t, "127.0.0.1:9999", cfg.Core.GRPCAddr)
	assert.Equal(t, DefaultHTTPAddr, cfg.Core.HTTPAddr)
	assert.Equal(t, "debug", cfg.Core.LogLevel)

	assert.Equal(t, "consumer-key", cfg.Lyric.APIKey)
	assert.Equal(t, 2*time.Minute, cfg.Lyric.PollInterval)
	assert.Equal(t, DefaultStatePath, cfg.Lyric.StatePath)

	assert.Equal(t, "homelab", cfg.OAuth.BlobBucket)
	assert.Equal(t, DefaultOAuthPrefix, cfg.OAuth.BlobPrefix)
	require.NotNil(t, cfg.OAuth.RefreshEnabled)
	assert.True(t, *cfg.OAuth.RefreshEnabled)
	assert.Equal(t, DefaultRefreshInterval, cfg.OAuth.RefreshInterval)

	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.True(t, cfg.MQTT.Retain)
	assert.Equal(t, DefaultMQTTBaseTopic, cfg.MQTT.BaseTopic)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LYRIC_LYRIC_API_KEY", "from-env")
	t.Setenv("LYRIC_LYRIC_POLL_INTERVAL", "30s")
	t.Setenv("LYRIC_OAUTH_BLOB_BUCKET", "other-bucket")
	t.Setenv("LYRIC_OAUTH_REFRESH_ENABLED", "false")
	t.Setenv("LYRIC_MQTT_BASE_TOPIC", "home/lyric")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Lyric.APIKey)
	assert.Equal(t, 30*time.Second, cfg.Lyric.PollInterval)
	assert.Equal(t, "other-bucket", cfg.OAuth.BlobBucket)
	require.NotNil(t, cfg.OAuth.RefreshEnabled)
	assert.False(t, *cfg.OAuth.RefreshEnabled)
	assert.Equal(t, "home/lyric", cfg.MQTT.BaseTopic)
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("LYRIC_LYRIC_API_KEY_FILE", "/run/secrets/lyric-key")
	t.Setenv("LYRIC_LYRIC_BOOTSTRAP_FILE", "/run/secrets/bootstrap.json")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/run/secrets/lyric-key", cfg.Lyric.APIKeyFile)
	assert.Equal(t, DefaultPollInterval, cfg.Lyric.PollInterval)
	assert.Empty(t, cfg.OAuth.BlobEndpoint)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lyric.json")
	body := `{"lyric": {"api_key": "consumer-key", "bootstrap_file": "/run/secrets/bootstrap.json", "poll_interval": "90s"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "consumer-key", cfg.Lyric.APIKey)
	assert.Equal(t, 90*time.Second, cfg.Lyric.PollInterval)
	assert.Equal(t, DefaultGRPCAddr, cfg.Core.GRPCAddr)
}

func TestLoadUnsupportedExtension(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "lyric.toml"))
	assert.ErrorContains(t, err, "unsupported config extension")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{
			Lyric: LyricConfig{APIKey: "key", BootstrapFile: "/bootstrap.json"},
		}
		applyDefaults(cfg)
		return cfg
	}

	tests := map[string]struct {
		mutate  func(*Config)
		wantErr string
	}{
		"valid":            {mutate: func(*Config) {}},
		"schema":           {mutate: func(c *Config) { c.SchemaVersion = 2 }, wantErr: "schema_version"},
		"no api key":       {mutate: func(c *Config) { c.Lyric.APIKey = "" }, wantErr: "lyric.api_key"},
		"no bootstrap":     {mutate: func(c *Config) { c.Lyric.BootstrapFile = "" }, wantErr: "lyric.bootstrap_file"},
		"negative poll":    {mutate: func(c *Config) { c.Lyric.PollInterval = -time.Second }, wantErr: "poll_interval"},
		"blob w/o bucket":  {mutate: func(c *Config) { c.OAuth.BlobEndpoint = "s3.local" }, wantErr: "oauth.blob_bucket"},
		"mqtt qos too big": {mutate: func(c *Config) { c.MQTT.Enabled = true; c.MQTT.QoS = 2 }, wantErr: "mqtt.qos"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	assert.Error(t, Validate(nil))
}

func TestEnvKeyTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"OAUTH_BLOB_BUCKET", "oauth.blob_bucket"},
		{"CORE_GRPC_ADDR", "core.grpc_addr"},
		{"LYRIC_API_KEY_FILE", "lyric.api_key_file"},
		{"MQTT_QOS", "mqtt.qos"},
		{"SCHEMA_VERSION", "schema_version"},
		{"MQTT", "mqtt"},
		{"DEBUG", "debug"},
		{"   ", ""},
	}

	for _, tt := range tests {
		if got := envKeyTransform(tt.in); got != tt.want {
			t.Fatalf("envKeyTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveAPIKey(t *testing.T) {
	key, err := LyricConfig{APIKey: " inline "}.ResolveAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "inline", key)

	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))
	key, err = LyricConfig{APIKeyFile: path}.ResolveAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "from-file", key)

	empty := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = LyricConfig{APIKeyFile: empty}.ResolveAPIKey()
	assert.Error(t, err)
}
