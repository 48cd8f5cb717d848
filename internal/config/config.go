// Package config loads runtime settings from the environment. A .env file
// in the working directory is honored when present; explicit environment
// variables win.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/softrobotics/wizard/internal/model"
	"github.com/softrobotics/wizard/internal/transport"
)

// Environment variable names.
const (
	EnvServerURL          = "WIZARD_SERVER_URL"
	EnvWebURL             = "WIZARD_WEB_URL"
	EnvLogLevel           = "WIZARD_LOG_LEVEL"
	EnvOperationMode      = "WIZARD_OPERATION_MODE"
	EnvReconnectBaseDelay = "WIZARD_RECONNECT_BASE_DELAY_S"
	EnvMaxReconnects      = "WIZARD_MAX_RECONNECT_ATTEMPTS"
	EnvConnectTimeout     = "WIZARD_CONNECT_TIMEOUT_S"
	EnvKeepaliveInterval  = "WIZARD_KEEPALIVE_INTERVAL_S"
	EnvUserClearGrace     = "WIZARD_USER_CLEAR_GRACE_S"
)

// Defaults.
const (
	DefaultServerURL = "ws://localhost:3000"
	DefaultWebURL    = "http://localhost:3000"
	DefaultLogLevel  = "INFO"
)

var logLevels = map[string]bool{
	"DEBUG":    true,
	"INFO":     true,
	"WARNING":  true,
	"ERROR":    true,
	"CRITICAL": true,
}

// Config is the resolved runtime configuration.
type Config struct {
	// ServerURL is the broker base URL (ws:// or wss://; http(s) is
	// accepted and rewritten).
	ServerURL string
	// WebURL is embedded in the companion web pane; the core never dials it.
	WebURL string
	// LogLevel is one of DEBUG, INFO, WARNING, ERROR, CRITICAL.
	LogLevel string
	// Mode is the initial operation mode.
	Mode model.OperationMode

	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
	ConnectTimeout       time.Duration
	KeepaliveInterval    time.Duration
	UserClearGrace       time.Duration
}

// Load reads the environment, honoring a .env file when one exists.
func Load() (Config, error) {
	// Missing .env is fine; explicit env vars always win.
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv resolves configuration through the given lookup. Tests inject
// their own.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		ServerURL:            DefaultServerURL,
		WebURL:               DefaultWebURL,
		LogLevel:             DefaultLogLevel,
		Mode:                 model.ModeManual,
		ReconnectBaseDelay:   transport.DefaultBackoffBase,
		MaxReconnectAttempts: transport.DefaultMaxAttempts,
		ConnectTimeout:       transport.DefaultConnectTimeout,
		KeepaliveInterval:    30 * time.Second,
		UserClearGrace:       5 * time.Second,
	}

	if v := strings.TrimSpace(getenv(EnvServerURL)); v != "" {
		cfg.ServerURL = v
	}
	if v := strings.TrimSpace(getenv(EnvWebURL)); v != "" {
		cfg.WebURL = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = strings.ToUpper(v)
	}
	if !logLevels[cfg.LogLevel] {
		return Config{}, fmt.Errorf("config: unknown log level %q", cfg.LogLevel)
	}
	if v := strings.TrimSpace(getenv(EnvOperationMode)); v != "" {
		switch mode := model.OperationMode(strings.ToLower(v)); mode {
		case model.ModeManual, model.ModeAutomatic:
			cfg.Mode = mode
		default:
			return Config{}, fmt.Errorf("config: unknown operation mode %q", v)
		}
	}

	var err error
	if cfg.ReconnectBaseDelay, err = seconds(getenv, EnvReconnectBaseDelay, cfg.ReconnectBaseDelay); err != nil {
		return Config{}, err
	}
	if cfg.ConnectTimeout, err = seconds(getenv, EnvConnectTimeout, cfg.ConnectTimeout); err != nil {
		return Config{}, err
	}
	if cfg.KeepaliveInterval, err = seconds(getenv, EnvKeepaliveInterval, cfg.KeepaliveInterval); err != nil {
		return Config{}, err
	}
	if cfg.UserClearGrace, err = seconds(getenv, EnvUserClearGrace, cfg.UserClearGrace); err != nil {
		return Config{}, err
	}
	if v := strings.TrimSpace(getenv(EnvMaxReconnects)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("config: invalid %s: %q", EnvMaxReconnects, v)
		}
		cfg.MaxReconnectAttempts = n
	}

	if _, err := socketURL(cfg.ServerURL, transport.MessageSocketPath); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MessageSocketURL is the full message channel endpoint.
func (c Config) MessageSocketURL() string {
	u, _ := socketURL(c.ServerURL, transport.MessageSocketPath)
	return u
}

// VideoSocketURL is the full video channel endpoint.
func (c Config) VideoSocketURL() string {
	u, _ := socketURL(c.ServerURL, transport.VideoSocketPath)
	return u
}

// Backoff builds the transport reconnection policy.
func (c Config) Backoff() transport.BackoffPolicy {
	return transport.BackoffPolicy{
		Base:        c.ReconnectBaseDelay,
		Cap:         transport.DefaultBackoffCap,
		MaxAttempts: c.MaxReconnectAttempts,
	}
}

// Verbose reports whether debug logging is requested.
func (c Config) Verbose() bool {
	return c.LogLevel == "DEBUG"
}

func seconds(getenv func(string) string, key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return fallback, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("config: invalid %s: %q", key, v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// socketURL joins the broker base URL with a channel path, rewriting
// http(s) schemes to their websocket equivalents.
func socketURL(base, path string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("config: invalid server URL %q: %w", base, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("config: unsupported server URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}
