package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the pagecraft configuration
type Config struct {
	Title    string         `yaml:"title"`
	Server   ServerConfig   `yaml:"server"`
	API      *APIConfig     `yaml:"api,omitempty"`
	Storage  StorageConfig  `yaml:"storage"`
	AutoSave AutoSaveConfig `yaml:"autosave"`
	Editor   EditorConfig   `yaml:"editor"`
	Schemas  SchemasConfig  `yaml:"schemas"`
	Log      LogConfig      `yaml:"log"`
	Browser  BrowserConfig  `yaml:"browser"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port  int    `yaml:"port"`
	Host  string `yaml:"host"`
	Debug bool   `yaml:"debug"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// APIConfig holds REST API configuration
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"` // Enable REST API endpoints (default: false)
	CORS      *CORSConfig      `yaml:"cors,omitempty"`
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
	Auth      *AuthConfig      `yaml:"auth,omitempty"`
}

// AuthConfig holds authentication configuration for the API
type AuthConfig struct {
	// APIKey supports environment variable expansion (e.g., "${PAGECRAFT_API_KEY}")
	APIKey string `yaml:"api_key,omitempty"`
	// HeaderName is the HTTP header carrying the key (default: "X-API-Key").
	// "Authorization" switches to the "Bearer <token>" form.
	HeaderName string `yaml:"header_name,omitempty"`
}

// CORSConfig holds CORS configuration for the API
type CORSConfig struct {
	Origins []string `yaml:"origins,omitempty"` // e.g. ["http://localhost:3000", "*"]
}

// RateLimitConfig holds rate limiting configuration for the API
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // default: 10
	Burst             int     `yaml:"burst,omitempty"`               // default: 20
	MaxTrackedIPs     int     `yaml:"max_tracked_ips,omitempty"`     // default: 10000
}

// GetCORSOrigins returns the configured CORS origins, or nil if not configured
func (c *APIConfig) GetCORSOrigins() []string {
	if c == nil || c.CORS == nil {
		return nil
	}
	return c.CORS.Origins
}

// GetRateLimitRPS returns the rate limit in requests per second (default: 10)
func (c *APIConfig) GetRateLimitRPS() float64 {
	if c == nil || c.RateLimit == nil || c.RateLimit.RequestsPerSecond <= 0 {
		return 10
	}
	return c.RateLimit.RequestsPerSecond
}

// GetRateLimitBurst returns the burst size (default: 20)
func (c *APIConfig) GetRateLimitBurst() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.Burst <= 0 {
		return 20
	}
	return c.RateLimit.Burst
}

// GetMaxTrackedIPs returns how many client IPs the rate limiter tracks (default: 10000)
func (c *APIConfig) GetMaxTrackedIPs() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.MaxTrackedIPs <= 0 {
		return 10000
	}
	return c.RateLimit.MaxTrackedIPs
}

// IsAuthEnabled returns true if API authentication is configured
func (c *APIConfig) IsAuthEnabled() bool {
	if c == nil || c.Auth == nil {
		return false
	}
	return c.Auth.GetAPIKey() != ""
}

// GetAPIKey returns the configured API key with environment variable expansion
func (c *AuthConfig) GetAPIKey() string {
	if c == nil || c.APIKey == "" {
		return ""
	}
	return os.ExpandEnv(c.APIKey)
}

// GetHeaderName returns the header name for authentication (default: "X-API-Key")
func (c *AuthConfig) GetHeaderName() string {
	if c == nil || c.HeaderName == "" {
		return "X-API-Key"
	}
	return c.HeaderName
}

// StorageConfig selects the key-value backend for backups, templates and snapshots.
type StorageConfig struct {
	Driver   string `yaml:"driver"`              // "memory", "sqlite" or "postgres" (default: memory)
	Path     string `yaml:"path,omitempty"`      // sqlite file (default: pagecraft.db)
	DSN      string `yaml:"dsn,omitempty"`       // postgres DSN, env vars expanded; falls back to DATABASE_URL
	Table    string `yaml:"table,omitempty"`     // default: kv
	CacheTTL string `yaml:"cache_ttl,omitempty"` // read cache TTL; empty disables the cache
}

// GetDriver returns the storage driver (default: "memory")
func (c StorageConfig) GetDriver() string {
	if c.Driver == "" {
		return "memory"
	}
	return c.Driver
}

// GetDSN returns the postgres DSN with environment variable expansion
func (c StorageConfig) GetDSN() string {
	return os.ExpandEnv(c.DSN)
}

// IsCacheEnabled returns true if a read cache should front the store
func (c StorageConfig) IsCacheEnabled() bool {
	return c.GetCacheTTL() > 0
}

// GetCacheTTL returns the cache TTL (0 if caching is disabled)
func (c StorageConfig) GetCacheTTL() time.Duration {
	return parseDuration(c.CacheTTL, 0)
}

// AutoSaveConfig configures change coalescing and snapshot persistence.
type AutoSaveConfig struct {
	Debounce      string `yaml:"debounce,omitempty"`       // default: 500ms
	MaxQueue      int    `yaml:"max_queue,omitempty"`      // default: 100
	Timeout       string `yaml:"timeout,omitempty"`        // default: 10s
	RetryAttempts *int   `yaml:"retry_attempts,omitempty"` // default: 3, 0 disables retries
	RetryDelay    string `yaml:"retry_delay,omitempty"`    // default: 1s
}

// GetDebounce returns the debounce interval (default: 500ms)
func (c AutoSaveConfig) GetDebounce() time.Duration {
	return parseDuration(c.Debounce, 500*time.Millisecond)
}

// GetMaxQueue returns the pending change cap (default: 100)
func (c AutoSaveConfig) GetMaxQueue() int {
	if c.MaxQueue <= 0 {
		return 100
	}
	return c.MaxQueue
}

// GetTimeout returns the per-save timeout (default: 10s)
func (c AutoSaveConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

// GetRetryAttempts returns the number of retries after a failed save (default: 3)
func (c AutoSaveConfig) GetRetryAttempts() int {
	if c.RetryAttempts == nil || *c.RetryAttempts < 0 {
		return 3
	}
	return *c.RetryAttempts
}

// GetRetryDelay returns the base retry delay (default: 1s)
func (c AutoSaveConfig) GetRetryDelay() time.Duration {
	return parseDuration(c.RetryDelay, time.Second)
}

// EditorConfig holds element-engine behaviour switches.
type EditorConfig struct {
	AutoFocusDelay string `yaml:"auto_focus_delay,omitempty"` // default: 100ms
	ConfirmDeletes *bool  `yaml:"confirm_deletes,omitempty"`  // default: true
	BackupOnDelete *bool  `yaml:"backup_on_delete,omitempty"` // default: true
	MaxImageSize   int64  `yaml:"max_image_size,omitempty"`   // bytes, default: 5MB
}

// GetAutoFocusDelay returns the delay before focusing a new element (default: 100ms)
func (c EditorConfig) GetAutoFocusDelay() time.Duration {
	return parseDuration(c.AutoFocusDelay, 100*time.Millisecond)
}

// ShouldConfirmDeletes returns whether deletes ask for confirmation (default: true)
func (c EditorConfig) ShouldConfirmDeletes() bool {
	return c.ConfirmDeletes == nil || *c.ConfirmDeletes
}

// ShouldBackupOnDelete returns whether removed elements are backed up (default: true)
func (c EditorConfig) ShouldBackupOnDelete() bool {
	return c.BackupOnDelete == nil || *c.BackupOnDelete
}

// GetMaxImageSize returns the upload limit in bytes (default: 5MB)
func (c EditorConfig) GetMaxImageSize() int64 {
	if c.MaxImageSize <= 0 {
		return 5 * 1024 * 1024
	}
	return c.MaxImageSize
}

// SchemasConfig points at an optional layout-schema file.
type SchemasConfig struct {
	File  string `yaml:"file,omitempty"`
	Watch bool   `yaml:"watch,omitempty"` // reload when the file changes
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level    string `yaml:"level,omitempty"`    // debug, info, warn, error (default: info)
	Encoding string `yaml:"encoding,omitempty"` // console or json (default: console)
}

// GetLevel returns the log level (default: "info")
func (c LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// GetEncoding returns the log encoding (default: "console")
func (c LogConfig) GetEncoding() string {
	if c.Encoding != "json" {
		return "console"
	}
	return c.Encoding
}

// BrowserConfig configures the live-preview styling capability.
type BrowserConfig struct {
	Enabled    bool   `yaml:"enabled"`
	RemoteURL  string `yaml:"remote_url,omitempty"`  // devtools websocket of a running Chrome; empty launches one
	PreviewURL string `yaml:"preview_url,omitempty"` // page to attach to
}

// Validate checks enumerated values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Storage.GetDriver() {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage: unsupported driver %q (use memory, sqlite or postgres)", c.Storage.Driver)
	}
	switch c.Log.GetLevel() {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unsupported level %q", c.Log.Level)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: port %d out of range", c.Server.Port)
	}
	if c.Schemas.Watch && c.Schemas.File == "" {
		return fmt.Errorf("schemas: watch requires a file")
	}
	return nil
}

// IsAPIEnabled returns whether the API is enabled
func (c *Config) IsAPIEnabled() bool {
	return c.API != nil && c.API.Enabled
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Title: "pagecraft",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Driver: "memory",
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
	}
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// Load loads configuration from a YAML file
// If the file doesn't exist, returns the default configuration
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig() // Start with defaults
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// LoadFromDir looks for pagecraft.yaml (then pagecraft.yml) in the given directory
// If none is found, returns the default configuration
func LoadFromDir(dir string) (*Config, error) {
	yml := filepath.Join(dir, "pagecraft.yml")
	if _, err := os.Stat(filepath.Join(dir, "pagecraft.yaml")); os.IsNotExist(err) {
		if _, err := os.Stat(yml); err == nil {
			return Load(yml)
		}
	}
	return Load(filepath.Join(dir, "pagecraft.yaml"))
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
