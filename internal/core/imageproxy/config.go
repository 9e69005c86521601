package imageproxy

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

var (
	ErrInvalidCacheMaxMB      = errors.New("CacheMaxMB must be positive")
	ErrInvalidFetchTimeout    = errors.New("FetchTimeout must be positive")
	ErrInvalidMaxSourceSize   = errors.New("MaxSourceSizeMB must be positive")
	ErrMissingCachePath       = errors.New("CachePath is required when proxy is enabled")
	ErrInvalidCacheTTL        = errors.New("CacheTTLHours cannot be negative")
	ErrInvalidCleanupInterval = errors.New("CleanupInterval cannot be negative")
)

// Config holds the configuration for the thumbnail proxy.
type Config struct {
	// Enabled controls whether /img routes are registered.
	Enabled bool

	// CachePath is the directory processed thumbnails are written to.
	CachePath string

	// CacheMaxMB bounds the on-disk cache; LRU eviction trims above it.
	CacheMaxMB int

	// CacheTTLHours expires entries regardless of size. 0 disables TTL cleanup.
	CacheTTLHours int

	// CleanupInterval is how often TTL and LRU cleanup run. 0 disables the job.
	CleanupInterval time.Duration

	// FetchTimeout bounds a whole source fetch across every gateway.
	FetchTimeout time.Duration

	// MaxSourceSizeMB caps the downloaded source image.
	MaxSourceSizeMB int
}

// Validate checks the configuration for invalid values. Numeric limits are always
// checked; CachePath is required only when the proxy is enabled.
func (c Config) Validate() error {
	if c.CacheMaxMB <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidCacheMaxMB, c.CacheMaxMB)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidFetchTimeout, c.FetchTimeout)
	}
	if c.MaxSourceSizeMB <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxSourceSize, c.MaxSourceSizeMB)
	}
	if c.CacheTTLHours < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidCacheTTL, c.CacheTTLHours)
	}
	if c.CleanupInterval < 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidCleanupInterval, c.CleanupInterval)
	}
	if c.Enabled && c.CachePath == "" {
		return ErrMissingCachePath
	}
	return nil
}

// DefaultConfig returns the proxy defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		CachePath:       "/var/cache/kittens/thumbnails",
		CacheMaxMB:      512,
		CacheTTLHours:   24 * 7,
		CleanupInterval: time.Hour,
		FetchTimeout:    20 * time.Second,
		MaxSourceSizeMB: 8,
	}
}

// ConfigFromEnv creates a Config from environment variables, keeping defaults for
// anything missing or malformed.
//
// Environment variables:
//   - IMAGE_PROXY_ENABLED: "true"/"1" or "false"/"0" (default: true)
//   - IMAGE_PROXY_CACHE_PATH: thumbnail directory (default: "/var/cache/kittens/thumbnails")
//   - IMAGE_PROXY_CACHE_MAX_MB: cache size limit (default: 512)
//   - IMAGE_PROXY_CACHE_TTL_HOURS: entry lifetime, 0 disables (default: 168)
//   - IMAGE_PROXY_CLEANUP_INTERVAL_MINUTES: cleanup cadence, 0 disables (default: 60)
//   - IMAGE_PROXY_FETCH_TIMEOUT_SECONDS: source fetch budget (default: 20)
//   - IMAGE_PROXY_MAX_SOURCE_SIZE_MB: source size cap (default: 8)
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("IMAGE_PROXY_ENABLED"); v != "" {
		cfg.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("IMAGE_PROXY_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}

	envInt("IMAGE_PROXY_CACHE_MAX_MB", 1, &cfg.CacheMaxMB)
	envInt("IMAGE_PROXY_CACHE_TTL_HOURS", 0, &cfg.CacheTTLHours)
	envInt("IMAGE_PROXY_MAX_SOURCE_SIZE_MB", 1, &cfg.MaxSourceSizeMB)

	minutes := int(cfg.CleanupInterval.Minutes())
	if envInt("IMAGE_PROXY_CLEANUP_INTERVAL_MINUTES", 0, &minutes) {
		cfg.CleanupInterval = time.Duration(minutes) * time.Minute
	}
	seconds := int(cfg.FetchTimeout.Seconds())
	if envInt("IMAGE_PROXY_FETCH_TIMEOUT_SECONDS", 1, &seconds) {
		cfg.FetchTimeout = time.Duration(seconds) * time.Second
	}

	return cfg
}

// envInt overwrites *dst with the integer value of key when it parses and is >= min.
// It reports whether *dst was changed.
func envInt(key string, min int, dst *int) bool {
	v := os.Getenv(key)
	if v == "" {
		return false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		slog.Warn("[IMAGE-PROXY] invalid "+key+" value, using default",
			"value", v,
			"default", *dst,
			"error", err,
		)
		return false
	}
	*dst = n
	return true
}
