// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

// Package config loads formgate settings.
//
// Sources are layered, later ones winning: built-in defaults, a YAML file,
// command-line flags, then a few environment variables that carry secrets.
package config

import (
	"net/url"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/formgate/formgate/internal/xdg"
)

// Backend names.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	NotifyLog       = "log"
	NotifySMTP      = "smtp"
)

// Environment variables that override file and flag values.
const (
	EnvDatabaseURL   = "DATABASE_URL"
	EnvSMTPPassword  = "SMTP_PASSWORD"
	EnvRedisPassword = "REDIS_PASSWORD"
)

// Config is the full set of formgate settings.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	App      AppConfig      `koanf:"app"`
	Storage  StorageConfig  `koanf:"storage"`
	Database DatabaseConfig `koanf:"database"`
	Tokens   TokensConfig   `koanf:"tokens"`
	Redis    RedisConfig    `koanf:"redis"`
	Password PasswordConfig `koanf:"password"`
	Signup   SignupConfig   `koanf:"signup"`
	Notify   NotifyConfig   `koanf:"notify"`
	SMTP     SMTPConfig     `koanf:"smtp"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// AppConfig holds public-facing application settings.
type AppConfig struct {
	BaseURL string `koanf:"base_url"`
}

// StorageConfig selects the account store.
type StorageConfig struct {
	Backend string `koanf:"backend"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// TokensConfig selects the token store and lifetimes.
type TokensConfig struct {
	Backend         string        `koanf:"backend"`
	VerificationTTL time.Duration `koanf:"verification_ttl"`
	ResetTTL        time.Duration `koanf:"reset_ttl"`
	Retention       time.Duration `koanf:"retention"`
}

// RedisConfig configures the Redis token store.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// PasswordConfig holds password rules.
type PasswordConfig struct {
	MinLength int `koanf:"min_length"`
}

// SignupConfig restricts which email domains may register. Patterns are
// globs matched against the domain label by label: "*.example.com" covers
// one subdomain level, "**.example.com" any depth. An empty allow list
// admits every domain not blocked.
type SignupConfig struct {
	AllowedDomains []string `koanf:"allowed_domains"`
	BlockedDomains []string `koanf:"blocked_domains"`
}

// NotifyConfig selects how emails are sent.
type NotifyConfig struct {
	Backend string        `koanf:"backend"`
	Timeout time.Duration `koanf:"timeout"`
	Retries uint64        `koanf:"retries"`
	LogURLs bool          `koanf:"log_urls"`
}

// SMTPConfig configures the mail server.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	TLS      bool   `koanf:"tls"`
}

// defaults are applied before any other source.
var defaults = map[string]any{
	"http.addr":               ":8080",
	"http.shutdown_timeout":   "15s",
	"metrics.addr":            "127.0.0.1:9100",
	"log.format":              "json",
	"log.level":               "info",
	"app.base_url":            "http://localhost:8080",
	"storage.backend":         BackendPostgres,
	"tokens.backend":          BackendPostgres,
	"tokens.verification_ttl": "24h",
	"tokens.reset_ttl":        "1h",
	"tokens.retention":        "24h",
	"redis.addr":              "localhost:6379",
	"redis.db":                0,
	"redis.prefix":            "formgate:tok",
	"password.min_length":     8,
	"notify.backend":          NotifyLog,
	"notify.timeout":          "10s",
	"notify.retries":          2,
	"notify.log_urls":         false,
	"smtp.port":               587,
	"smtp.tls":                false,
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"addr":            "http.addr",
	"metrics-addr":    "metrics.addr",
	"log-format":      "log.format",
	"log-level":       "log.level",
	"base-url":        "app.base_url",
	"storage":         "storage.backend",
	"tokens":          "tokens.backend",
	"redis-addr":      "redis.addr",
	"notify":          "notify.backend",
	"notify-log-urls": "notify.log_urls",
}

// LoadOptions tells Load where to look.
type LoadOptions struct {
	// File is an explicit config path. When empty the XDG default is used
	// if present.
	File string
	// Flags are parsed command-line flags. Only flags the user set override.
	Flags *pflag.FlagSet
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// RegisterFlags adds the config flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("addr", ":8080", "HTTP listen address")
	fs.String("metrics-addr", "127.0.0.1:9100", "metrics and health listen address (empty disables)")
	fs.String("log-format", "json", "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("base-url", "http://localhost:8080", "public base URL used in emailed links")
	fs.String("storage", BackendPostgres, "account storage backend (postgres or memory)")
	fs.String("tokens", BackendPostgres, "token storage backend (postgres, redis or memory)")
	fs.String("redis-addr", "localhost:6379", "redis address for the redis token backend")
	fs.String("notify", NotifyLog, "notification backend (log or smtp)")
	fs.Bool("notify-log-urls", false, "include token links in log notifications (development only)")
}

// Load builds a Config from defaults, file, flags and environment.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	path := opts.File
	if path == "" {
		if p, ok := xdg.DefaultConfigFile(); ok {
			path = p
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", path).Wrap(err)
		}
		if err := ValidateDocument(data); err != nil {
			return nil, oops.With("file", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", path).Wrap(err)
		}
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for env, key := range map[string]string{
		EnvDatabaseURL:   "database.url",
		EnvSMTPPassword:  "smtp.password",
		EnvRedisPassword: "redis.password",
	} {
		if val, ok := lookup(env); ok && val != "" {
			if err := k.Set(key, val); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("env", env).Wrap(err)
			}
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	return &cfg, nil
}

// Validate checks that the settings are consistent.
func (c *Config) Validate() error {
	errb := oops.Code("CONFIG_INVALID")

	if c.HTTP.Addr == "" {
		return errb.Errorf("http.addr is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return errb.With("log.format", c.Log.Format).Errorf("log.format must be json or text")
	}

	u, err := url.Parse(c.App.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errb.With("app.base_url", c.App.BaseURL).Errorf("app.base_url must be an absolute URL")
	}

	switch c.Storage.Backend {
	case BackendPostgres, BackendMemory:
	default:
		return errb.With("storage.backend", c.Storage.Backend).Errorf("storage.backend must be postgres or memory")
	}

	switch c.Tokens.Backend {
	case BackendPostgres:
		if c.Storage.Backend != BackendPostgres {
			return errb.Errorf("tokens.backend postgres requires storage.backend postgres")
		}
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return errb.Errorf("redis.addr is required for the redis token backend")
		}
	default:
		return errb.With("tokens.backend", c.Tokens.Backend).Errorf("tokens.backend must be postgres, redis or memory")
	}

	if c.UsesPostgres() && c.Database.URL == "" {
		return errb.Errorf("%s is required for the postgres backend", EnvDatabaseURL)
	}

	if c.Tokens.VerificationTTL <= 0 || c.Tokens.ResetTTL <= 0 {
		return errb.Errorf("token lifetimes must be positive")
	}
	if c.Password.MinLength < 1 {
		return errb.With("password.min_length", c.Password.MinLength).Errorf("password.min_length must be at least 1")
	}
	if c.Notify.Timeout <= 0 {
		return errb.Errorf("notify.timeout must be positive")
	}

	switch c.Notify.Backend {
	case NotifyLog:
	case NotifySMTP:
		if c.SMTP.Host == "" || c.SMTP.From == "" {
			return errb.Errorf("smtp.host and smtp.from are required for the smtp backend")
		}
	default:
		return errb.With("notify.backend", c.Notify.Backend).Errorf("notify.backend must be log or smtp")
	}

	return nil
}

// UsesPostgres reports whether any store needs a database connection.
func (c *Config) UsesPostgres() bool {
	return c.Storage.Backend == BackendPostgres || c.Tokens.Backend == BackendPostgres
}
