package gallery

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all scanner configuration.
type Config struct {
	// Root listing URL of the gallery
	RootURL string `json:"root_url" yaml:"root_url"`

	// Host the validator accepts; empty derives it from RootURL
	AllowedHost string `json:"allowed_host" yaml:"allowed_host"`

	// Path prefix the validator accepts; empty derives it from RootURL
	PathPrefix string `json:"path_prefix" yaml:"path_prefix"`

	// Maximum crawl depth
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// Concurrent subfolder fetches; 0 or 1 crawls sequentially
	ProbeConcurrency int `json:"probe_concurrency" yaml:"probe_concurrency"`

	// Request timeouts
	ListingTimeout time.Duration `json:"listing_timeout" yaml:"listing_timeout"`
	ProbeTimeout   time.Duration `json:"probe_timeout" yaml:"probe_timeout"`

	// User agent sent with every request
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// Rate limiting
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`

	// Signed URL issuance
	Token TokenConfig `json:"token" yaml:"token"`

	// Tree cache
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Manifest persistence
	Manifest ManifestConfig `json:"manifest" yaml:"manifest"`

	// Manifest age beyond which the cache counts as stale; 0 disables
	MaxCacheAge time.Duration `json:"max_cache_age" yaml:"max_cache_age"`

	// Cache namespace for multi-tenant deployments
	GroupID string `json:"group_id" yaml:"group_id"`

	// Verbose logging
	Verbose bool `json:"verbose" yaml:"verbose"`

	// Debug mode
	Debug bool `json:"debug" yaml:"debug"`
}

// RateLimitConfig paces outbound requests.
type RateLimitConfig struct {
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `json:"burst" yaml:"burst"`
	DelayBetween      time.Duration `json:"delay_between" yaml:"delay_between"`
}

// TokenConfig configures the signed URL issuer.
type TokenConfig struct {
	// Shared HMAC secret; read from GALLERY_SECRET when unset
	Secret string `json:"-" yaml:"-"`

	// Downstream proxy endpoint signed URLs point at
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Signed URL lifetime
	TTL time.Duration `json:"ttl" yaml:"ttl"`

	// Whether the downstream proxy enforces signatures
	Protected bool `json:"protected" yaml:"protected"`
}

// CacheConfig configures the external tree cache.
type CacheConfig struct {
	// Redis address; empty disables caching
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"-" yaml:"-"`
	DB       int    `json:"db" yaml:"db"`

	KeyPrefix   string        `json:"key_prefix" yaml:"key_prefix"`
	TTL         time.Duration `json:"ttl" yaml:"ttl"`
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout"`
}

// ManifestConfig configures manifest persistence.
type ManifestConfig struct {
	// Backend is "file", "bolt", or "memory"
	Backend string `json:"backend" yaml:"backend"`
	Path    string `json:"path" yaml:"path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxDepth:         5,
		ProbeConcurrency: 1,
		ListingTimeout:   15 * time.Second,
		ProbeTimeout:     10 * time.Second,
		UserAgent:        "galleryscan/1.0",
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 8,
			Burst:             4,
			DelayBetween:      0,
		},
		Token: TokenConfig{
			TTL:       2 * time.Hour,
			Protected: true,
		},
		Cache: CacheConfig{
			KeyPrefix:   "gallery",
			TTL:         5 * time.Minute,
			CallTimeout: 500 * time.Millisecond,
		},
		Manifest: ManifestConfig{
			Backend: "file",
			Path:    "gallery-manifest.json",
		},
		MaxCacheAge: 7 * 24 * time.Hour,
	}
}

// LoadFromFile loads configuration from a file (YAML or JSON).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// FromEnv overlays GALLERY_* environment variables onto the configuration.
func (c *Config) FromEnv() {
	if v := os.Getenv("GALLERY_ROOT_URL"); v != "" {
		c.RootURL = v
	}
	if v := os.Getenv("GALLERY_ALLOWED_HOST"); v != "" {
		c.AllowedHost = v
	}
	if v := os.Getenv("GALLERY_PATH_PREFIX"); v != "" {
		c.PathPrefix = v
	}
	if v := os.Getenv("GALLERY_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxDepth = n
		}
	}
	if v := os.Getenv("GALLERY_SECRET"); v != "" {
		c.Token.Secret = v
	}
	if v := os.Getenv("GALLERY_PROXY_ENDPOINT"); v != "" {
		c.Token.Endpoint = v
	}
	if v := os.Getenv("GALLERY_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Token.TTL = d
		}
	}
	if v := os.Getenv("GALLERY_REDIS_ADDR"); v != "" {
		c.Cache.Addr = v
	}
	if v := os.Getenv("GALLERY_REDIS_PASSWORD"); v != "" {
		c.Cache.Password = v
	}
	if v := os.Getenv("GALLERY_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.DB = n
		}
	}
	if v := os.Getenv("GALLERY_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Cache.TTL = d
		}
	}
	if v := os.Getenv("GALLERY_MANIFEST_PATH"); v != "" {
		c.Manifest.Path = v
	}
	if v := os.Getenv("GALLERY_GROUP_ID"); v != "" {
		c.GroupID = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RootURL == "" {
		return fmt.Errorf("root URL is required")
	}

	u, err := url.Parse(c.RootURL)
	if err != nil {
		return fmt.Errorf("root URL does not parse: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("root URL has no host")
	}

	if c.MaxDepth < 1 {
		return fmt.Errorf("max depth must be at least 1")
	}
	if c.ProbeConcurrency < 0 {
		return fmt.Errorf("probe concurrency must not be negative")
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}

	switch c.Manifest.Backend {
	case "", "file", "bolt", "memory":
	default:
		return fmt.Errorf("unknown manifest backend %q", c.Manifest.Backend)
	}

	return nil
}

// fillDerived completes AllowedHost and PathPrefix from RootURL. Validate
// must have passed.
func (c *Config) fillDerived() {
	u, err := url.Parse(c.RootURL)
	if err != nil {
		return
	}
	if c.AllowedHost == "" {
		c.AllowedHost = u.Host
	}
	if c.PathPrefix == "" {
		prefix := u.EscapedPath()
		if prefix == "" {
			prefix = "/"
		}
		c.PathPrefix = prefix
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := json.Marshal(c)
	clone := &Config{}
	json.Unmarshal(data, clone)
	clone.Token.Secret = c.Token.Secret
	clone.Cache.Password = c.Cache.Password
	return clone
}
