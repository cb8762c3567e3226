// Package config loads the global ~/.omnisync/config.toml, applies .env and
// environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Environment variables that override the file.
const (
	EnvAccessToken = "OMNISYNC_ACCESS_TOKEN"
	EnvAPIURL      = "OMNISYNC_API_URL"
	EnvSocketURL   = "OMNISYNC_SOCKET_URL"
	EnvCompanyID   = "OMNISYNC_COMPANY_ID"
	EnvUserID      = "OMNISYNC_USER_ID"
	EnvLogLevel    = "OMNISYNC_LOG_LEVEL"
)

// Duration is a time.Duration written as a string ("1s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the global config file.
type Config struct {
	DefaultProfile string        `toml:"default_profile" validate:"omitempty,max=64"`
	LogLevel       string        `toml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	API            APIConfig     `toml:"api"`
	Socket         SocketConfig  `toml:"socket"`
	Auth           AuthConfig    `toml:"auth"`
	Outbox         OutboxConfig  `toml:"outbox"`
	Metrics        MetricsConfig `toml:"metrics"`
}

// APIConfig is the REST backend.
type APIConfig struct {
	BaseURL     string   `toml:"base_url" validate:"required,url"`
	MediaOrigin string   `toml:"media_origin" validate:"omitempty,url"`
	Timeout     Duration `toml:"timeout"`
	PageSize    int      `toml:"page_size" validate:"gte=0,lte=1000"`
}

// SocketConfig is the event channel and its retry policy.
type SocketConfig struct {
	URL          string   `toml:"url" validate:"required,url"`
	Path         string   `toml:"path"`
	EIO          int      `toml:"eio" validate:"omitempty,oneof=3 4"`
	Namespace    string   `toml:"namespace"`
	MaxAttempts  int      `toml:"max_attempts" validate:"gte=0"`
	InitialDelay Duration `toml:"initial_delay"`
	MaxDelay     Duration `toml:"max_delay"`
}

// AuthConfig holds the credentials. CompanyID and UserID are optional and
// skip the current-user lookup.
type AuthConfig struct {
	AccessToken string `toml:"access_token" validate:"required"`
	CompanyID   string `toml:"company_id"`
	UserID      string `toml:"user_id"`
}

// OutboxConfig sizes the send worker pool. MatchWindow bounds how long after
// a send the confirming server message may arrive.
type OutboxConfig struct {
	Workers     int      `toml:"workers" validate:"gte=0,lte=64"`
	MatchWindow Duration `toml:"match_window"`
}

// MetricsConfig is the Prometheus listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `toml:"addr" validate:"omitempty,hostname_port"`
}

// Default returns the configuration used for keys the file leaves out.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		API: APIConfig{
			Timeout:  Duration{30 * time.Second},
			PageSize: 500,
		},
		Socket: SocketConfig{
			EIO:          3,
			MaxAttempts:  10,
			InitialDelay: Duration{time.Second},
			MaxDelay:     Duration{5 * time.Second},
		},
		Outbox: OutboxConfig{Workers: 2, MatchWindow: Duration{2 * time.Minute}},
	}
}

// Load reads config from the given path on top of Default. Returns an
// error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Resolve loads path (defaults when it does not exist), applies the .env
// file next to it and the process environment, then validates.
func Resolve(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := cfg.ApplyEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from envFile (optional) and the process
// environment. The process environment wins.
func (c *Config) ApplyEnv(envFile string) error {
	fileVars, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", envFile, err)
	}
	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return strings.TrimSpace(v)
		}
		return strings.TrimSpace(fileVars[key])
	}
	for key, dst := range map[string]*string{
		EnvAccessToken: &c.Auth.AccessToken,
		EnvAPIURL:      &c.API.BaseURL,
		EnvSocketURL:   &c.Socket.URL,
		EnvCompanyID:   &c.Auth.CompanyID,
		EnvUserID:      &c.Auth.UserID,
		EnvLogLevel:    &c.LogLevel,
	} {
		if v := lookup(key); v != "" {
			*dst = v
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
