package gallery

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Discovery policy names accepted by GALLERY_DISCOVERY.
const (
	DiscoveryCatalog = "catalog"
	DiscoveryProbe   = "probe"
	DiscoverySupply  = "supply"
)

// Cache backends accepted by GALLERY_CACHE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config validation errors
var (
	// ErrInvalidConcurrency is returned when Concurrency is not positive
	ErrInvalidConcurrency = errors.New("Concurrency must be positive")
	// ErrInvalidTimeout is returned when any timeout is not positive
	ErrInvalidTimeout = errors.New("timeouts must be positive")
	// ErrInvalidCatalogSize is returned when CatalogSize is not positive
	ErrInvalidCatalogSize = errors.New("CatalogSize must be positive")
	// ErrUnknownDiscovery is returned for an unrecognised discovery policy
	ErrUnknownDiscovery = errors.New("unknown discovery policy")
	// ErrUnknownBackend is returned for an unrecognised cache backend
	ErrUnknownBackend = errors.New("unknown cache backend")
)

// Config holds gallery loading settings.
type Config struct {
	// Discovery selects how token IDs are found: catalog, probe or supply.
	Discovery string

	// CacheBackend selects the CacheStore implementation.
	CacheBackend string

	// Concurrency is the worker count for metadata fetches and chain reads.
	Concurrency int

	// CatalogSize is the number of catalog IDs (1..CatalogSize) the catalog policy loads.
	CatalogSize int

	// ProbeWidth is the number of consecutive IDs probed per base.
	ProbeWidth int

	// MaxScan caps how many tokens the supply policy enumerates.
	MaxScan int

	// LoadTimeout bounds a whole load. Expiry cancels every in-flight request.
	LoadTimeout time.Duration

	// ItemTimeout bounds resolving one token's metadata.
	ItemTimeout time.Duration

	// ChainTimeout bounds a single contract read.
	ChainTimeout time.Duration

	// QuickProbe runs a small probe alongside the full load.
	QuickProbe bool
}

// DefaultConfig returns the settings the gallery ships with.
func DefaultConfig() Config {
	return Config{
		Discovery:    DiscoveryCatalog,
		CacheBackend: BackendMemory,
		Concurrency:  6,
		CatalogSize:  12,
		ProbeWidth:   100,
		MaxScan:      2000,
		LoadTimeout:  60 * time.Second,
		ItemTimeout:  30 * time.Second,
		ChainTimeout: 8 * time.Second,
		QuickProbe:   true,
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidConcurrency, c.Concurrency)
	}
	if c.LoadTimeout <= 0 || c.ItemTimeout <= 0 || c.ChainTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.CatalogSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidCatalogSize, c.CatalogSize)
	}
	switch c.Discovery {
	case DiscoveryCatalog, DiscoveryProbe, DiscoverySupply:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDiscovery, c.Discovery)
	}
	switch c.CacheBackend {
	case BackendMemory, BackendBolt, BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.CacheBackend)
	}
	return nil
}

// ConfigFromEnv creates a Config from environment variables, falling back to
// defaults for missing or malformed values.
//
// Environment variables:
//   - GALLERY_CONCURRENCY: worker count (default: 6)
//   - GALLERY_LOAD_TIMEOUT_SECONDS: outer load timeout (default: 60)
//   - GALLERY_ITEM_TIMEOUT_MS: per-token metadata timeout (default: 30000)
//   - GALLERY_CHAIN_TIMEOUT_MS: per contract read timeout (default: 8000)
//   - GALLERY_CATALOG_SIZE: catalog IDs to load (default: 12)
//   - GALLERY_DISCOVERY: catalog, probe or supply (default: catalog)
//   - GALLERY_QUICK_PROBE: "true"/"1" to run the quick probe (default: true)
//   - GALLERY_CACHE_BACKEND: memory, bolt, postgres or redis (default: memory)
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.Concurrency = envInt("GALLERY_CONCURRENCY", cfg.Concurrency)
	cfg.CatalogSize = envInt("GALLERY_CATALOG_SIZE", cfg.CatalogSize)
	cfg.LoadTimeout = time.Duration(envInt("GALLERY_LOAD_TIMEOUT_SECONDS", int(cfg.LoadTimeout/time.Second))) * time.Second
	cfg.ItemTimeout = time.Duration(envInt("GALLERY_ITEM_TIMEOUT_MS", int(cfg.ItemTimeout/time.Millisecond))) * time.Millisecond
	cfg.ChainTimeout = time.Duration(envInt("GALLERY_CHAIN_TIMEOUT_MS", int(cfg.ChainTimeout/time.Millisecond))) * time.Millisecond

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("GALLERY_DISCOVERY"))); v != "" {
		cfg.Discovery = v
	}
	if v := os.Getenv("GALLERY_QUICK_PROBE"); v != "" {
		cfg.QuickProbe = v == "true" || v == "1"
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("GALLERY_CACHE_BACKEND"))); v != "" {
		cfg.CacheBackend = v
	}

	return cfg
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("[GALLERY] invalid "+key+" value, using default",
			"value", v,
			"default", def,
			"error", err,
		)
		return def
	}
	return n
}
