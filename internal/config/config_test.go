package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skosovsky/promptreg"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, envs := range envKeys {
		for _, e := range envs {
			t.Setenv(e, "")
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Empty(t, cfg.TrackingURI)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "sqlite:///promptreg.db", cfg.Server.Store)
	assert.Equal(t, time.Minute, cfg.Server.CacheTTL)

	err = cfg.RequireRegistry()
	require.Error(t, err)
	assert.ErrorIs(t, err, promptreg.ErrConfiguration)
	assert.Contains(t, err.Error(), EnvTrackingURI)

	err = cfg.RequirePromptName()
	require.Error(t, err)
	assert.ErrorIs(t, err, promptreg.ErrConfiguration)
	assert.Contains(t, err.Error(), EnvPromptName)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvTrackingURI, " https://mlflow.example.com ")
	t.Setenv(EnvPromptName, "finance-bot")
	t.Setenv(EnvTrackingToken, "tok")
	t.Setenv("PROMPTREG_TIMEOUT", "5s")
	t.Setenv("PROMPTREG_TAGS", "task=summarize,BU=Risk")
	t.Setenv("PROMPTREG_LOG_FORMAT", "json")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "https://mlflow.example.com", cfg.TrackingURI)
	assert.Equal(t, "finance-bot", cfg.PromptName)
	assert.Equal(t, "tok", cfg.TrackingToken)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "json", cfg.Log.Format)
	tags, err := cfg.TagMap()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"task": "summarize", "BU": "Risk"}, tags)
	require.NoError(t, cfg.RequireRegistry())
	require.NoError(t, cfg.RequirePromptName())
}

func TestLoad_AlternateTrackingURI(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvTrackingURIAlt, "http://localhost:5000")
	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000", cfg.TrackingURI)

	t.Setenv(EnvTrackingURI, "arn:aws:sagemaker:eu-west-1:123456789012:mlflow-tracking-server/x")
	cfg, err = Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:sagemaker:eu-west-1:123456789012:mlflow-tracking-server/x", cfg.TrackingURI,
		"the primary variable wins")
}

func TestLoad_DotEnvDoesNotOverride(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile,
		[]byte("MLFLOW_URI_SMAI=http://from-dotenv:5000\nPROMPT_REGISTRY_ID=dotenv-prompt\n"), 0o600))
	t.Setenv(EnvPromptName, "from-env")
	// godotenv.Load does not override variables that exist, even empty ones.
	require.NoError(t, os.Unsetenv(EnvTrackingURI))

	cfg, err := Load(Options{EnvFiles: []string{envFile, filepath.Join(dir, "missing.env")}})
	require.NoError(t, err)
	assert.Equal(t, "http://from-dotenv:5000", cfg.TrackingURI)
	assert.Equal(t, "from-env", cfg.PromptName)
	require.NoError(t, os.Unsetenv(EnvTrackingURI))
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "promptreg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tracking_uri: sqlite:///prompts.db
prompt_name: finance-bot
timeout: 1m
tags:
  - task=question-and-answering
  - BU=Digital-marketing
log:
  level: debug
server:
  addr: 0.0.0.0:8080
`), 0o600))
	t.Setenv(EnvPromptName, "env-wins")

	cfg, err := Load(Options{ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, "sqlite:///prompts.db", cfg.TrackingURI)
	assert.Equal(t, "env-wins", cfg.PromptName)
	assert.Equal(t, time.Minute, cfg.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	tags, err := cfg.TagMap()
	require.NoError(t, err)
	assert.Equal(t, "Digital-marketing", tags["BU"], "tag keys keep their case")
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(Options{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
	assert.ErrorIs(t, err, promptreg.ErrConfiguration)
}

func TestLoad_FlagsOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvTrackingURI, "http://env:5000")
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("tracking-uri", "", "")
	flags.String("log-level", "", "")
	require.NoError(t, flags.Parse([]string{"--tracking-uri", "memory:"}))

	cfg, err := Load(Options{Flags: flags})
	require.NoError(t, err)
	assert.Equal(t, "memory:", cfg.TrackingURI)
	assert.Equal(t, "info", cfg.Log.Level, "unset flags fall back to defaults")
}

func TestLoad_InvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROMPTREG_TIMEOUT", "-1s")
	_, err := Load(Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, promptreg.ErrConfiguration)

	t.Setenv("PROMPTREG_TIMEOUT", "")
	t.Setenv("PROMPTREG_SERVER_CACHE_TTL", "-5s")
	_, err = Load(Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, promptreg.ErrConfiguration)

	t.Setenv("PROMPTREG_SERVER_CACHE_TTL", "")
	t.Setenv("PROMPTREG_TAGS", "novalue")
	_, err = Load(Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, promptreg.ErrConfiguration)
}

func TestRequirePromptName_Invalid(t *testing.T) {
	cfg := &Config{PromptName: "a/b"}
	err := cfg.RequirePromptName()
	require.Error(t, err)
	assert.ErrorIs(t, err, promptreg.ErrConfiguration)
	assert.ErrorIs(t, err, promptreg.ErrInvalidName)
}

func TestParseTags(t *testing.T) {
	got, err := ParseTags([]string{"a=1", " b = two ", "", "a=3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "3", "b": "two"}, got)

	got, err = ParseTags(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseTags([]string{"=x"})
	require.Error(t, err)
}

func TestRedacted(t *testing.T) {
	cfg := &Config{TrackingToken: "tok", TrackingPassword: "pw", Server: ServerConfig{AuthToken: "srv"}, TrackingUsername: "alice"}
	r := cfg.Redacted()
	assert.Equal(t, "***", r.TrackingToken)
	assert.Equal(t, "***", r.TrackingPassword)
	assert.Equal(t, "***", r.Server.AuthToken)
	assert.Equal(t, "alice", r.TrackingUsername)
	assert.Equal(t, "tok", cfg.TrackingToken, "original untouched")
}
