// Package config loads promptreg settings from flags, environment, an optional .env
// file and an optional YAML config file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/skosovsky/promptreg"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Environment variables read by Load. Where two names are listed the first set one wins.
const (
	EnvTrackingURI      = "MLFLOW_URI_SMAI"
	EnvTrackingURIAlt   = "MLFLOW_TRACKING_URI"
	EnvPromptName       = "PROMPT_REGISTRY_ID"
	EnvTrackingToken    = "MLFLOW_TRACKING_TOKEN"
	EnvTrackingUsername = "MLFLOW_TRACKING_USERNAME"
	EnvTrackingPassword = "MLFLOW_TRACKING_PASSWORD"
)

// Config is the full promptreg configuration. It is passed explicitly; there is no global.
type Config struct {
	TrackingURI      string        `mapstructure:"tracking_uri"`
	PromptName       string        `mapstructure:"prompt_name"`
	TrackingToken    string        `mapstructure:"tracking_token"`
	TrackingUsername string        `mapstructure:"tracking_username"`
	TrackingPassword string        `mapstructure:"tracking_password"`
	AWSProfile       string        `mapstructure:"aws_profile"`
	Timeout          time.Duration `mapstructure:"timeout"`

	// Tags are "key=value" pairs replacing the default registration tags when non-empty.
	Tags   []string     `mapstructure:"tags"`
	Log    LogConfig    `mapstructure:"log"`
	Server ServerConfig `mapstructure:"server"`
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig configures `promptreg serve`.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Store           string        `mapstructure:"store"`
	AuthToken       string        `mapstructure:"auth_token"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// CacheTTL caches loads from a remote store (MLflow or SageMaker). 0 disables it.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Options controls where Load looks.
type Options struct {
	// ConfigFile is an optional YAML file. A missing explicit file is an error.
	ConfigFile string
	// EnvFiles are dotenv files loaded into the process environment without overriding
	// variables that are already set. Missing files are skipped.
	EnvFiles []string
	// Flags, when set, override everything else for the keys in FlagKeys.
	Flags *pflag.FlagSet
}

// FlagKeys maps command-line flag names to config keys.
var FlagKeys = map[string]string{
	"tracking-uri": "tracking_uri",
	"prompt":       "prompt_name",
	"timeout":      "timeout",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"addr":         "server.addr",
	"store":        "server.store",
	"cache-ttl":    "server.cache_ttl",
}

var envKeys = map[string][]string{
	"tracking_uri":            {EnvTrackingURI, EnvTrackingURIAlt},
	"prompt_name":             {EnvPromptName, "PROMPTREG_PROMPT_NAME"},
	"tracking_token":          {EnvTrackingToken},
	"tracking_username":       {EnvTrackingUsername},
	"tracking_password":       {EnvTrackingPassword},
	"aws_profile":             {"PROMPTREG_AWS_PROFILE"},
	"timeout":                 {"PROMPTREG_TIMEOUT"},
	"tags":                    {"PROMPTREG_TAGS"},
	"log.level":               {"PROMPTREG_LOG_LEVEL"},
	"log.format":              {"PROMPTREG_LOG_FORMAT"},
	"server.addr":             {"PROMPTREG_SERVER_ADDR"},
	"server.store":            {"PROMPTREG_SERVER_STORE"},
	"server.auth_token":       {"PROMPTREG_SERVER_TOKEN"},
	"server.shutdown_timeout": {"PROMPTREG_SERVER_SHUTDOWN_TIMEOUT"},
	"server.cache_ttl":        {"PROMPTREG_SERVER_CACHE_TTL"},
}

// Load builds a Config. It does not validate required settings; call
// RequireRegistry / RequirePromptName before the operations that need them.
func Load(opts Options) (*Config, error) {
	for _, f := range opts.EnvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: env file %s: %w", promptreg.ErrConfiguration, f, err)
		}
	}

	v := viper.New()
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("server.addr", "127.0.0.1:5000")
	v.SetDefault("server.store", "sqlite:///promptreg.db")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cache_ttl", time.Minute)

	for key, envs := range envKeys {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("%w: bind %s: %w", promptreg.ErrConfiguration, key, err)
		}
	}
	if opts.Flags != nil {
		for flag, key := range FlagKeys {
			if f := opts.Flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("%w: bind flag %s: %w", promptreg.ErrConfiguration, flag, err)
				}
			}
		}
	}
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", promptreg.ErrConfiguration, opts.ConfigFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", promptreg.ErrConfiguration, err)
	}
	cfg.TrackingURI = strings.TrimSpace(cfg.TrackingURI)
	cfg.PromptName = strings.TrimSpace(cfg.PromptName)
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive, got %s", promptreg.ErrConfiguration, cfg.Timeout)
	}
	if cfg.Server.CacheTTL < 0 {
		return nil, fmt.Errorf("%w: server cache TTL must not be negative, got %s", promptreg.ErrConfiguration, cfg.Server.CacheTTL)
	}
	if _, err := cfg.TagMap(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RequireRegistry fails with ErrConfiguration if no tracking URI is set.
func (c *Config) RequireRegistry() error {
	if c.TrackingURI == "" {
		return fmt.Errorf("%w: %s (or %s) is not set", promptreg.ErrConfiguration, EnvTrackingURI, EnvTrackingURIAlt)
	}
	return nil
}

// RequirePromptName fails with ErrConfiguration if no prompt name is set.
func (c *Config) RequirePromptName() error {
	if c.PromptName == "" {
		return fmt.Errorf("%w: %s is not set", promptreg.ErrConfiguration, EnvPromptName)
	}
	if err := promptreg.ValidateName(c.PromptName); err != nil {
		return fmt.Errorf("%w: %s: %w", promptreg.ErrConfiguration, EnvPromptName, err)
	}
	return nil
}

// TagMap parses Tags. It returns nil when no tags are configured.
func (c *Config) TagMap() (map[string]string, error) {
	return ParseTags(c.Tags)
}

// ParseTags parses "key=value" pairs. Later keys win.
func ParseTags(pairs []string) (map[string]string, error) {
	var out map[string]string
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, val, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: tag %q is not key=value", promptreg.ErrConfiguration, pair)
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[k] = strings.TrimSpace(val)
	}
	return out, nil
}

// Redacted returns a copy of c with secrets masked, for logging.
func (c *Config) Redacted() Config {
	out := *c
	out.Tags = append([]string(nil), c.Tags...)
	for _, s := range []*string{&out.TrackingToken, &out.TrackingPassword, &out.Server.AuthToken} {
		if *s != "" {
			*s = "***"
		}
	}
	return out
}
