package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultAPIBaseURL is used when neither the file nor LIBRARY_API_URL names a base URL.
	DefaultAPIBaseURL = "http://localhost:5000/api"

	// DefaultAPITimeout bounds a single request.
	DefaultAPITimeout = 10 * time.Second

	// DefaultServerAddr is where the reference server listens.
	DefaultServerAddr = ":5000"
)

// Environment variables.
const (
	EnvConfigFile  = "BOOKSHELF_CONFIG"
	EnvAPIURL      = "LIBRARY_API_URL"
	EnvAPITimeout  = "LIBRARY_API_TIMEOUT"
	EnvLogLevel    = "BOOKSHELF_LOG_LEVEL"
	EnvServerAddr  = "LIBRARY_SERVER_ADDR"
	EnvRepository  = "LIBRARY_REPOSITORY"
	EnvDBAdapter   = "DB_ADAPTER"
	EnvPostgresDSN = "LIBRARY_POSTGRES_DSN"
	EnvCORSOrigins = "LIBRARY_CORS_ORIGINS"
)

// Repository and database adapter choices of the reference server.
const (
	RepositoryMem  = "memory"
	RepositoryPG   = "postgres"
	AdapterPGXPool = "pgx.pool"
	AdapterSQLDB   = "sql.db"
	AdapterSQLXDB  = "sqlx.db"
)

const (
	logLevelDebug   = "debug"
	logLevelInfo    = "info"
	logLevelWarn    = "warn"
	logLevelError   = "error"
	listSeparator   = ","
	configFileLabel = "config file"
)

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConfigFileUnreadable is returned when the named YAML file cannot be read or parsed.
	ErrConfigFileUnreadable = errors.New("config file unreadable")
)

// APIConfig configures the remote data client.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig configures the slog handler of the binaries.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ServerConfig configures the reference server.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
	Repository  string   `yaml:"repository"`
	DBAdapter   string   `yaml:"db_adapter"`
	PostgresDSN string   `yaml:"postgres_dsn"`
}

// Config is the complete configuration.
type Config struct {
	API    APIConfig    `yaml:"api"`
	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL: DefaultAPIBaseURL,
			Timeout: DefaultAPITimeout,
		},
		Log: LogConfig{Level: logLevelInfo},
		Server: ServerConfig{
			Addr:       DefaultServerAddr,
			Repository: RepositoryMem,
			DBAdapter:  AdapterPGXPool,
		},
	}
}

// Load resolves the configuration from defaults, the optional file and the process environment.
func Load() (Config, error) {
	return LoadWith(os.LookupEnv)
}

// LoadWith is Load with an injectable environment lookup.
func LoadWith(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path, ok := lookup(EnvConfigFile); ok && path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// mergeFile overlays the YAML file onto cfg. Keys absent from the file keep their current value.
func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Join(ErrConfigFileUnreadable, err)
	}

	if err := yaml.Unmarshal(raw, c); err != nil {
		return errors.Join(ErrConfigFileUnreadable, fmt.Errorf("%s %s: %w", configFileLabel, path, err))
	}

	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAPIURL); ok && v != "" {
		c.API.BaseURL = v
	}

	if v, ok := lookup(EnvAPITimeout); ok && v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return errors.Join(ErrInvalidConfig, fmt.Errorf("%s: %w", EnvAPITimeout, err))
		}
		c.API.Timeout = timeout
	}

	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}

	if v, ok := lookup(EnvServerAddr); ok && v != "" {
		c.Server.Addr = v
	}

	if v, ok := lookup(EnvRepository); ok && v != "" {
		c.Server.Repository = v
	}

	if v, ok := lookup(EnvDBAdapter); ok && v != "" {
		c.Server.DBAdapter = v
	}

	if v, ok := lookup(EnvPostgresDSN); ok && v != "" {
		c.Server.PostgresDSN = v
		if _, repoSet := lookup(EnvRepository); !repoSet {
			c.Server.Repository = RepositoryPG
		}
	}

	if v, ok := lookup(EnvCORSOrigins); ok && v != "" {
		c.Server.CORSOrigins = splitList(v)
	}

	return nil
}

// Validate checks the resolved configuration.
func (c Config) Validate() error {
	var errs []error

	baseURL, err := url.Parse(c.API.BaseURL)
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		errs = append(errs, fmt.Errorf("api base url %q is not an absolute URL", c.API.BaseURL))
	}

	if c.API.Timeout < 0 {
		errs = append(errs, fmt.Errorf("api timeout must not be negative, got %s", c.API.Timeout))
	}

	switch strings.ToLower(c.Log.Level) {
	case logLevelDebug, logLevelInfo, logLevelWarn, logLevelError:
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}

	switch c.Server.Repository {
	case RepositoryMem:
	case RepositoryPG:
		if c.Server.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("repository %q needs %s", RepositoryPG, EnvPostgresDSN))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown repository %q", c.Server.Repository))
	}

	switch c.Server.DBAdapter {
	case AdapterPGXPool, AdapterSQLDB, AdapterSQLXDB:
	default:
		errs = append(errs, fmt.Errorf("unknown db adapter %q", c.Server.DBAdapter))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}

	return nil
}

// SlogLevel maps the configured level name onto slog.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case logLevelDebug:
		return slog.LevelDebug
	case logLevelWarn:
		return slog.LevelWarn
	case logLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler builds the slog handler the binaries log with.
func (l LogConfig) NewHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if l.JSON {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}

func splitList(v string) []string {
	parts := strings.Split(v, listSeparator)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}
