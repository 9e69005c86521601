package holdings

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds holdings scan settings.
type Config struct {
	// Contracts are scanned in order.
	Contracts []Contract

	// Concurrency is the worker count for per-token reads.
	Concurrency int

	// MaxScan caps the non-enumerable scan.
	MaxScan int

	// ChainTimeout bounds a single contract read.
	ChainTimeout time.Duration

	// ItemTimeout bounds resolving one token's metadata.
	ItemTimeout time.Duration
}

// DefaultConfig returns the scan settings with no contracts.
func DefaultConfig() Config {
	return Config{
		Concurrency:  6,
		MaxScan:      2000,
		ChainTimeout: 8 * time.Second,
		ItemTimeout:  30 * time.Second,
	}
}

// ConfigFromEnv reads HOLDINGS_CONTRACTS, a comma-separated list of
// Name=0xAddress pairs, on top of DefaultConfig.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	contracts, err := ParseContracts(os.Getenv("HOLDINGS_CONTRACTS"))
	if err != nil {
		return cfg, err
	}
	cfg.Contracts = contracts
	return cfg, nil
}

// ParseContracts parses "Name=0xAddress,Other=0xAddress". A bare address gets its
// address as name.
func ParseContracts(s string) ([]Contract, error) {
	var out []Contract
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, addr, found := strings.Cut(part, "=")
		if !found {
			addr, name = name, ""
		}
		name, addr = strings.TrimSpace(name), strings.TrimSpace(addr)
		if addr == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidContractEntry, part)
		}
		if name == "" {
			name = addr
		}
		out = append(out, Contract{Name: name, Address: addr})
	}
	return out, nil
}
