package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	perrors "partybot-server-go/internal/platform/errors"
)

const (
	defaultConfigPath = "config.yaml"
	envPrefix         = "PARTYBOT_"
)

// Loader reads the YAML file, overlays it on DefaultConfig and then applies
// PARTYBOT_* environment overrides.
type Loader struct {
	useDotEnv bool
	path      string
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader that reads config.yaml (or $PARTYBOT_CONFIG).
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookupEnv: os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath pins the config file. A pinned file that does not exist is an error.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// WithEnv overrides the environment lookup (useful for tests).
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		// .env is optional
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()

	path, pinned := l.path, l.path != ""
	if !pinned {
		if env, ok := l.lookupEnv(envPrefix + "CONFIG"); ok && env != "" {
			path, pinned = env, true
		} else {
			path = defaultConfigPath
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, perrors.Wrap(perrors.KindConfig, "config.load", "parse "+path, err)
		}
	case os.IsNotExist(err) && !pinned:
		path = ""
	default:
		return nil, perrors.Wrap(perrors.KindConfig, "config.load", "read "+path, err)
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: path}, nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"SERVER_IP":         &cfg.Server.IP,
		"LOG_LEVEL":         &cfg.Log.Level,
		"LOG_DIR":           &cfg.Log.Dir,
		"STORAGE_DSN":       &cfg.Storage.DSN,
		"CLIENT_ID":         &cfg.Auth.ClientID,
		"CLIENT_SECRET":     &cfg.Auth.ClientSecret,
		"TOKEN_STORE":       &cfg.Auth.Store.Type,
		"REDIS_ADDR":        &cfg.Auth.Store.Redis.Addr,
		"REDIS_PASSWORD":    &cfg.Auth.Store.Redis.Password,
		"STREAM_ENDPOINT":   &cfg.Stream.Endpoint,
		"STREAM_ADMIN_FROM": &cfg.Stream.AdminSender,
	}
	for key, dst := range strs {
		if v, ok := l.lookupEnv(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SERVER_PORT": &cfg.Server.Port,
		"REDIS_DB":    &cfg.Auth.Store.Redis.DB,
	}
	for key, dst := range ints {
		v, ok := l.lookupEnv(envPrefix + key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return perrors.Wrap(perrors.KindConfig, "config.env", envPrefix+key+" must be an integer", err)
		}
		*dst = n
	}
	return nil
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return perrors.New(perrors.KindConfig, "config.validate", fmt.Sprintf("invalid server port %d", cfg.Server.Port))
	}
	switch strings.ToLower(cfg.Auth.Store.Type) {
	case "", "memory":
	case "redis":
		if cfg.Auth.Store.Redis.Addr == "" {
			return perrors.New(perrors.KindConfig, "config.validate", "redis token store requires an address")
		}
	default:
		return perrors.New(perrors.KindConfig, "config.validate", "unsupported token store "+cfg.Auth.Store.Type)
	}
	if cfg.Auth.ClientID == "" || cfg.Auth.ClientSecret == "" {
		return perrors.New(perrors.KindConfig, "config.validate", "client credentials are required")
	}
	if cfg.Stream.MaxReconnectAttempts <= 0 {
		return perrors.New(perrors.KindConfig, "config.validate", "max_reconnect_attempts must be positive")
	}
	if cfg.Events.Workers <= 0 || cfg.Events.QueueSize <= 0 {
		return perrors.New(perrors.KindConfig, "config.validate", "events workers and queue_size must be positive")
	}
	if cfg.Stream.ConnectTimeout <= 0 {
		return perrors.New(perrors.KindConfig, "config.validate", "connect_timeout must be positive")
	}
	if cfg.Taxi.Level < 0 || cfg.Taxi.Level > 999 {
		return perrors.New(perrors.KindConfig, "config.validate", fmt.Sprintf("invalid taxi level %d", cfg.Taxi.Level))
	}
	return nil
}
