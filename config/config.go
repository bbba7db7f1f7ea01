// Package config loads the host configuration from defaults, a YAML or TOML
// file, a .env file and RPCHOST_* environment variables, in that order.
// Command-line flags are applied on top by the binaries.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RPCHOST_"

const (
	ModeLocal   = "local"
	ModeGateway = "gateway"
)

// Duration is a time.Duration written as a string such as "10s" in files.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config is the full host configuration.
type Config struct {
	// Mode is "local" (dispatch in process) or "gateway" (relay to the
	// plugin host).
	Mode         string   `yaml:"mode" toml:"mode"`
	Listen       string   `yaml:"listen" toml:"listen"`
	MaxBodyBytes int64    `yaml:"max_body_bytes" toml:"max_body_bytes"`
	DrainTimeout Duration `yaml:"drain_timeout" toml:"drain_timeout"`
	CORSOrigins  []string `yaml:"cors_origins" toml:"cors_origins"`
	Plugin       Plugin   `yaml:"plugin" toml:"plugin"`
	Auth         Auth     `yaml:"auth" toml:"auth"`
	Log          Log      `yaml:"log" toml:"log"`
}

// Plugin locates the plugin host channel.
type Plugin struct {
	Network     string   `yaml:"network" toml:"network"`
	Address     string   `yaml:"address" toml:"address"`
	DialTimeout Duration `yaml:"dial_timeout" toml:"dial_timeout"`
}

// Auth holds the Basic authentication credentials. PasswordHash is a bcrypt
// or legacy SHA-256 hex hash, never a clear-text password.
type Auth struct {
	UserName     string `yaml:"username" toml:"username"`
	PasswordHash string `yaml:"password_hash" toml:"password_hash"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Mode:         ModeLocal,
		Listen:       "127.0.0.1:7070",
		MaxBodyBytes: 1 << 20,
		DrainTimeout: Duration(10 * time.Second),
		Plugin: Plugin{
			Network:     "tcp",
			Address:     "127.0.0.1:7071",
			DialTimeout: Duration(5 * time.Second),
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. An empty path skips the file; a missing
// envFile is ignored, as .env files are optional.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if envFile != "" {
		// godotenv does not override variables already set.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := []byte(os.ExpandEnv(string(b)))

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(expanded, c)
	case ".toml":
		err = toml.Unmarshal(expanded, c)
	default:
		return fmt.Errorf("config: %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		if err := dst.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
		}
		return nil
	}

	str("MODE", &c.Mode)
	str("LISTEN", &c.Listen)
	str("PLUGIN_NETWORK", &c.Plugin.Network)
	str("PLUGIN_ADDRESS", &c.Plugin.Address)
	str("AUTH_USERNAME", &c.Auth.UserName)
	str("AUTH_PASSWORD_HASH", &c.Auth.PasswordHash)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok && v != "" {
		c.CORSOrigins = strings.Split(v, ",")
		for i := range c.CORSOrigins {
			c.CORSOrigins[i] = strings.TrimSpace(c.CORSOrigins[i])
		}
	}
	if v, ok := lookup(EnvPrefix + "MAX_BODY_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: %sMAX_BODY_BYTES: %w", EnvPrefix, err)
		}
		c.MaxBodyBytes = n
	}
	return errors.Join(
		dur("DRAIN_TIMEOUT", &c.DrainTimeout),
		dur("PLUGIN_DIAL_TIMEOUT", &c.Plugin.DialTimeout),
	)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeLocal, ModeGateway:
	default:
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModeLocal, ModeGateway, c.Mode))
	}
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max_body_bytes must be positive"))
	}
	if c.DrainTimeout < 0 {
		errs = append(errs, errors.New("drain_timeout must not be negative"))
	}
	switch c.Plugin.Network {
	case "tcp", "unix":
	default:
		errs = append(errs, fmt.Errorf("plugin.network must be tcp or unix, got %q", c.Plugin.Network))
	}
	if c.Mode == ModeGateway && c.Plugin.Address == "" {
		errs = append(errs, errors.New("plugin.address is required in gateway mode"))
	}
	if (c.Auth.UserName == "") != (c.Auth.PasswordHash == "") {
		errs = append(errs, errors.New("auth.username and auth.password_hash must be set together"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

// NewLogger builds the process logger writing to w.
func (l Log) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
