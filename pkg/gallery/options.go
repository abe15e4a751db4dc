package gallery

import (
	"time"

	"github.com/metroboards/galleryscan/internal/cache"
	"github.com/metroboards/galleryscan/internal/fetch"
	"github.com/metroboards/galleryscan/internal/logger"
	"github.com/metroboards/galleryscan/internal/manifest"
	"github.com/metroboards/galleryscan/internal/ratelimit"
)

// Option is a functional option for configuring the Scanner.
type Option func(*Scanner) error

// WithConfig replaces the whole configuration.
func WithConfig(cfg *Config) Option {
	return func(s *Scanner) error {
		s.config = cfg
		return nil
	}
}

// WithRootURL sets the gallery root listing URL.
func WithRootURL(url string) Option {
	return func(s *Scanner) error {
		s.config.RootURL = url
		return nil
	}
}

// WithMaxDepth sets the maximum crawl depth.
func WithMaxDepth(depth int) Option {
	return func(s *Scanner) error {
		if depth < 1 {
			depth = 1
		}
		s.config.MaxDepth = depth
		return nil
	}
}

// WithProbeConcurrency caps concurrent subfolder probes.
func WithProbeConcurrency(n int) Option {
	return func(s *Scanner) error {
		if n < 0 {
			n = 0
		}
		s.config.ProbeConcurrency = n
		return nil
	}
}

// WithSecret sets the shared signing secret.
func WithSecret(secret string) Option {
	return func(s *Scanner) error {
		s.config.Token.Secret = secret
		return nil
	}
}

// WithGroupID namespaces cache entries for one tenant.
func WithGroupID(groupID string) Option {
	return func(s *Scanner) error {
		s.config.GroupID = groupID
		return nil
	}
}

// WithMaxCacheAge sets the manifest age past which the cache is stale.
func WithMaxCacheAge(d time.Duration) Option {
	return func(s *Scanner) error {
		s.config.MaxCacheAge = d
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Scanner) error {
		s.log = log
		return nil
	}
}

// WithFetcher injects a fetch client, overriding the configured one.
func WithFetcher(c *fetch.Client) Option {
	return func(s *Scanner) error {
		s.fetcher = c
		return nil
	}
}

// WithValidator injects a URL checker, overriding the derived rules.
func WithValidator(v URLChecker) Option {
	return func(s *Scanner) error {
		s.validator = v
		return nil
	}
}

// WithCacheClient injects a cache client.
func WithCacheClient(c *cache.Client) Option {
	return func(s *Scanner) error {
		s.cache = c
		return nil
	}
}

// WithStore injects a manifest store.
func WithStore(store manifest.Store) Option {
	return func(s *Scanner) error {
		s.store = store
		return nil
	}
}

// WithRateLimiter injects a rate limiter.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(s *Scanner) error {
		s.limiter = l
		return nil
	}
}
