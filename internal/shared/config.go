package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Lastfm   LastfmConfig   `toml:"lastfm"`
	Engine   EngineConfig   `toml:"engine"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// LastfmConfig contains the scrobbling service credentials and transport limits.
type LastfmConfig struct {
	APIKey            string  `toml:"api_key"`
	APISecret         string  `toml:"api_secret"`
	BaseURL           string  `toml:"base_url"`
	SessionFile       string  `toml:"session_file"`
	Username          string  `toml:"username"`
	SessionKey        string  `toml:"session_key"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	MaxRequestSize    int     `toml:"max_request_size"`
	HTTPTimeout       int     `toml:"http_timeout_seconds"`
}

// EngineConfig contains submission engine timings.
type EngineConfig struct {
	TickIntervalMS  int `toml:"tick_interval_ms"`
	RetryDelay      int `toml:"retry_delay_seconds"`
	ResponseTimeout int `toml:"response_timeout_seconds"`
	BatchSize       int `toml:"batch_size"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains the local ingest HTTP server settings.
type ServerConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Enabled bool   `toml:"enabled"`
}

// LogConfig contains logging settings. File rotation applies only when File is set.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TickInterval returns the polling interval as a [time.Duration].
func (e EngineConfig) TickInterval() time.Duration {
	return time.Duration(e.TickIntervalMS) * time.Millisecond
}

// RetryDelayDuration returns the backoff applied after failed submissions.
func (e EngineConfig) RetryDelayDuration() time.Duration {
	return time.Duration(e.RetryDelay) * time.Second
}

// ResponseTimeoutDuration returns how long the engine waits before declaring a client-side timeout.
func (e EngineConfig) ResponseTimeoutDuration() time.Duration {
	return time.Duration(e.ResponseTimeout) * time.Second
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadOrDefault loads the config at path when it exists and falls back to [DefaultConfig] otherwise.
//
// Environment overrides from [ApplyEnv] are applied in both cases.
func LoadOrDefault(path string) (*Config, error) {
	config := DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if config, err = LoadConfig(path); err != nil {
			return nil, err
		}
	}
	ApplyEnv(config)
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects values the engine and transport cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Engine.BatchSize < 1 || c.Engine.BatchSize > 50:
		return fmt.Errorf("%w: engine.batch_size must be within 1..50, got %d", ErrInvalidConfig, c.Engine.BatchSize)
	case c.Engine.TickIntervalMS <= 0:
		return fmt.Errorf("%w: engine.tick_interval_ms must be positive", ErrInvalidConfig)
	case c.Engine.RetryDelay < 0 || c.Engine.ResponseTimeout <= 0:
		return fmt.Errorf("%w: engine retry/response timings must be positive", ErrInvalidConfig)
	case c.Lastfm.MaxRequestSize <= 0:
		return fmt.Errorf("%w: lastfm.max_request_size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ApplyEnv overlays credentials from the process environment onto the config.
//
// A .env file in the working directory is read first when present; variables already set in the environment win.
func ApplyEnv(c *Config) {
	_ = godotenv.Load()

	for name, target := range map[string]*string{
		"LASTFM_API_KEY":      &c.Lastfm.APIKey,
		"LASTFM_API_SECRET":   &c.Lastfm.APISecret,
		"LASTFM_SESSION_FILE": &c.Lastfm.SessionFile,
		"LASTFM_SESSION_KEY":  &c.Lastfm.SessionKey,
		"LASTFM_USERNAME":     &c.Lastfm.Username,
		"SCROB_DATABASE_PATH": &c.Database.Path,
		"SCROB_LOG_LEVEL":     &c.Log.Level,
	} {
		if v := os.Getenv(name); v != "" {
			*target = v
		}
	}
}
