// Package cache wraps an external key-value cache service with sanitized
// keys, hard per-call timeouts, and degrade-to-miss error handling.
package cache

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/metroboards/galleryscan/internal/logger"
)

// Key derivation limits.
const (
	// MaxKeyLength bounds sanitized cache keys.
	MaxKeyLength = 200
	// rootMarker replaces an empty folder so the root tree has a stable key.
	rootMarker = "__root__"
)

var (
	keyCharset   = regexp.MustCompile(`[^A-Za-z0-9/_-]`)
	groupCharset = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// Backend is the minimal surface the client needs from the external cache
// service. *redis.Client satisfies it via redisBackend; tests inject failing
// stubs to exercise the degradation path.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// ErrMiss is returned by backends for an absent key.
var ErrMiss = redis.Nil

// redisBackend adapts *redis.Client to Backend.
type redisBackend struct {
	rdb *redis.Client
}

func (b *redisBackend) Get(ctx context.Context, key string) (string, error) {
	return b.rdb.Get(ctx, key).Result()
}

func (b *redisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.rdb.Set(ctx, key, value, ttl).Err()
}

func (b *redisBackend) Del(ctx context.Context, key string) error {
	return b.rdb.Del(ctx, key).Err()
}

// Config holds cache client configuration.
type Config struct {
	// Addr is the cache service address, e.g. "localhost:6379". Empty
	// leaves the client unavailable; every call becomes a no-op miss.
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces all keys written by this client.
	KeyPrefix string
	// CallTimeout is the hard bound raced against every backend call.
	CallTimeout time.Duration
	// TTL is applied to every write so entries self-expire even when
	// invalidation is skipped.
	TTL time.Duration
}

// DefaultConfig returns cache defaults.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:   "gallery",
		CallTimeout: 500 * time.Millisecond,
		TTL:         5 * time.Minute,
	}
}

// Client is a resilient cache client. All backend failures, including
// timeouts, degrade to a miss for reads and a silent no-op for writes and
// clears; no call ever propagates a backend error.
type Client struct {
	backend   Backend
	available bool
	prefix    string
	timeout   time.Duration
	ttl       time.Duration
	log       *logger.Logger
}

// New creates a cache client backed by Redis. An empty Addr yields an
// unavailable client whose operations are all no-ops, so callers need no
// nil checks.
func New(cfg Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Global()
	}
	c := &Client{
		prefix:  cfg.KeyPrefix,
		timeout: cfg.CallTimeout,
		ttl:     cfg.TTL,
		log:     log.WithComponent("cache"),
	}
	if c.timeout <= 0 {
		c.timeout = 500 * time.Millisecond
	}
	if c.ttl <= 0 {
		c.ttl = 5 * time.Minute
	}

	if cfg.Addr == "" {
		return c
	}

	c.backend = &redisBackend{rdb: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
	c.available = true
	return c
}

// NewWithBackend creates a client around an injected backend.
func NewWithBackend(backend Backend, cfg Config, log *logger.Logger) *Client {
	c := New(Config{
		KeyPrefix:   cfg.KeyPrefix,
		CallTimeout: cfg.CallTimeout,
		TTL:         cfg.TTL,
	}, log)
	c.backend = backend
	c.available = backend != nil
	return c
}

// IsAvailable reports whether a backend was configured at startup. It says
// nothing about current reachability; callers should still treat every get
// and set as potentially a no-op.
func (c *Client) IsAvailable() bool {
	return c.available
}

// Get returns the cached value for a folder, or "" on any miss, timeout, or
// backend failure.
func (c *Client) Get(ctx context.Context, folder, groupID string) string {
	if !c.available {
		return ""
	}

	key := c.Key(folder, groupID)
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	val, err := c.backend.Get(ctx, key)
	if err != nil {
		if err != ErrMiss {
			c.log.WithError(err).Debugf("cache get degraded to miss for %s", key)
		}
		c.log.CacheEvent("get", key, false)
		return ""
	}

	c.log.CacheEvent("get", key, true)
	return val
}

// Set stores a value for a folder with the configured TTL. Failures are
// swallowed; caching is best-effort.
func (c *Client) Set(ctx context.Context, folder, groupID, value string) {
	if !c.available {
		return
	}

	key := c.Key(folder, groupID)
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.backend.Set(ctx, key, value, c.ttl); err != nil {
		c.log.WithError(err).Debugf("cache set dropped for %s", key)
		return
	}
	c.log.CacheEvent("set", key, true)
}

// Clear removes a folder's entry. Failures are swallowed; the TTL bounds how
// long a failed clear can matter.
func (c *Client) Clear(ctx context.Context, folder, groupID string) {
	if !c.available {
		return
	}

	key := c.Key(folder, groupID)
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.backend.Del(ctx, key); err != nil && err != ErrMiss {
		c.log.WithError(err).Debugf("cache clear dropped for %s", key)
		return
	}
	c.log.CacheEvent("clear", key, true)
}

// Key derives the sanitized cache key for a folder and optional group. The
// sanitization prevents key injection and cross-tenant collisions: traversal
// sequences are stripped, the charset is restricted, and the length bounded.
func (c *Client) Key(folder, groupID string) string {
	if folder == "" {
		folder = rootMarker
	}

	folder = strings.ReplaceAll(folder, "..", "")
	folder = keyCharset.ReplaceAllString(folder, "_")

	suffix := ""
	if groupID != "" {
		suffix = ":" + groupCharset.ReplaceAllString(groupID, "_")
	}

	// The folder segment absorbs the truncation so the prefix and group
	// parts survive intact and the assembled key stays within the bound.
	budget := MaxKeyLength - len(c.prefix) - 1 - len(suffix)
	if budget < 1 {
		budget = 1
	}
	if len(folder) > budget {
		folder = folder[:budget]
	}

	return c.prefix + ":" + folder + suffix
}
