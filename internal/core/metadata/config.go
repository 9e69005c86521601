package metadata

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"Kittens/internal/core/ipfs"
)

// Config validation errors
var (
	// ErrInvalidFetchTimeout is returned when FetchTimeout is not positive
	ErrInvalidFetchTimeout = errors.New("FetchTimeout must be positive")
	// ErrInvalidMaxBody is returned when MaxBodyBytes is not positive
	ErrInvalidMaxBody = errors.New("MaxBodyBytes must be positive")
	// ErrNoGateways is returned when fan-out is enabled without any gateway
	ErrNoGateways = errors.New("at least one gateway is required")
	// ErrInvalidBreaker is returned when breaker settings are negative
	ErrInvalidBreaker = errors.New("breaker threshold and open duration cannot be negative")
)

// Config holds the settings for gateway fetching and metadata memoisation.
type Config struct {
	// DefaultGateway is the single gateway used when fan-out is disabled and for image URLs.
	DefaultGateway string

	// UserAgent is sent with every gateway request.
	UserAgent string

	// Gateways is the ordered fan-out list for IPFS-like URIs.
	Gateways []string

	// Fanout enables one candidate per gateway. When false only DefaultGateway is tried.
	Fanout bool

	// FetchTimeout bounds a single candidate attempt.
	FetchTimeout time.Duration

	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64

	// BreakerThreshold is the number of consecutive failures that opens a gateway's
	// circuit. 0 disables the breaker.
	BreakerThreshold int

	// BreakerOpenDuration is how long an open circuit skips its gateway.
	BreakerOpenDuration time.Duration

	// MemoTTL is how long resolved metadata stays memoised in memory.
	MemoTTL time.Duration
}

// DefaultConfig returns the gateway settings the gallery ships with.
func DefaultConfig() Config {
	gws := make([]string, len(ipfs.Gateways))
	copy(gws, ipfs.Gateways)
	return Config{
		DefaultGateway:      ipfs.DefaultGateway,
		UserAgent:           "KittensGallery/1.0",
		Gateways:            gws,
		Fanout:              true,
		FetchTimeout:        12 * time.Second,
		MaxBodyBytes:        512 * 1024,
		BreakerThreshold:    5,
		BreakerOpenDuration: time.Minute,
		MemoTTL:             time.Hour,
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidFetchTimeout, c.FetchTimeout)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxBody, c.MaxBodyBytes)
	}
	if c.Fanout && len(c.Gateways) == 0 {
		return ErrNoGateways
	}
	if c.BreakerThreshold < 0 || c.BreakerOpenDuration < 0 {
		return ErrInvalidBreaker
	}
	return nil
}

// Resolver returns the gateway resolver described by the configuration.
func (c Config) Resolver() ipfs.Resolver {
	return ipfs.NewResolver(c.DefaultGateway, c.Gateways)
}

// ConfigFromEnv creates a Config from environment variables, falling back to
// defaults for missing or malformed values.
//
// Environment variables:
//   - IPFS_DEFAULT_GATEWAY: single gateway host (default: "ipfs.io")
//   - IPFS_GATEWAYS: comma-separated fan-out list (default: nftstorage.link,…,dweb.link)
//   - IPFS_GATEWAY_FANOUT: "true"/"1" to fan out across gateways (default: true)
//   - METADATA_FETCH_TIMEOUT_MS: per-attempt timeout (default: 12000)
//   - METADATA_MAX_BODY_KB: response size cap (default: 512)
//   - METADATA_BREAKER_THRESHOLD: failures before a gateway is skipped, 0 disables (default: 5)
//   - METADATA_BREAKER_OPEN_SECONDS: skip window for a failing gateway (default: 60)
//   - METADATA_MEMO_TTL_MINUTES: in-memory memo lifetime (default: 60)
//   - METADATA_USER_AGENT: User-Agent header (default: "KittensGallery/1.0")
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("IPFS_DEFAULT_GATEWAY")); v != "" {
		cfg.DefaultGateway = v
	}

	if v := os.Getenv("IPFS_GATEWAYS"); v != "" {
		var gws []string
		for _, g := range strings.Split(v, ",") {
			if g = strings.TrimSpace(g); g != "" {
				gws = append(gws, g)
			}
		}
		if len(gws) > 0 {
			cfg.Gateways = gws
		}
	}

	if v := os.Getenv("IPFS_GATEWAY_FANOUT"); v != "" {
		cfg.Fanout = v == "true" || v == "1"
	}

	if v := os.Getenv("METADATA_FETCH_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FetchTimeout = time.Duration(n) * time.Millisecond
		} else {
			slog.Warn("[METADATA] invalid METADATA_FETCH_TIMEOUT_MS value, using default",
				"value", v,
				"default_ms", cfg.FetchTimeout.Milliseconds(),
				"error", err,
			)
		}
	}

	if v := os.Getenv("METADATA_MAX_BODY_KB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxBodyBytes = int64(n) * 1024
		} else {
			slog.Warn("[METADATA] invalid METADATA_MAX_BODY_KB value, using default",
				"value", v,
				"default_kb", cfg.MaxBodyBytes/1024,
				"error", err,
			)
		}
	}

	if v := os.Getenv("METADATA_BREAKER_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.BreakerThreshold = n
		} else {
			slog.Warn("[METADATA] invalid METADATA_BREAKER_THRESHOLD value, using default",
				"value", v,
				"default", cfg.BreakerThreshold,
				"error", err,
			)
		}
	}

	if v := os.Getenv("METADATA_BREAKER_OPEN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.BreakerOpenDuration = time.Duration(n) * time.Second
		} else {
			slog.Warn("[METADATA] invalid METADATA_BREAKER_OPEN_SECONDS value, using default",
				"value", v,
				"default_seconds", int(cfg.BreakerOpenDuration.Seconds()),
				"error", err,
			)
		}
	}

	if v := os.Getenv("METADATA_MEMO_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MemoTTL = time.Duration(n) * time.Minute
		} else {
			slog.Warn("[METADATA] invalid METADATA_MEMO_TTL_MINUTES value, using default",
				"value", v,
				"default_minutes", int(cfg.MemoTTL.Minutes()),
				"error", err,
			)
		}
	}

	if v := os.Getenv("METADATA_USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}

	return cfg
}
