package gallery

import "errors"

var (
	// ErrLoadInProgress is returned when Load is called while a load is running.
	ErrLoadInProgress = errors.New("gallery load already in progress")

	// ErrAlreadyLoaded is returned when Load is called for an address that already
	// finished loading. Reload clears the guard.
	ErrAlreadyLoaded = errors.New("gallery already loaded for address")

	// ErrLoadTimeout is returned when a load exceeds its outer timeout.
	ErrLoadTimeout = errors.New("gallery load timed out")

	// ErrLoadPanic is returned when a producer panicked during a load.
	ErrLoadPanic = errors.New("gallery load panicked")

	// ErrNoBaseURI is returned when neither baseURI() nor tokenURI(1) yields a base.
	ErrNoBaseURI = errors.New("contract exposes no base URI")

	// ErrNoSupply is returned when totalSupply() cannot be read.
	ErrNoSupply = errors.New("contract exposes no total supply")

	// ErrCacheMiss is returned by a CacheStore when the key does not exist.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidAddress is returned for an empty contract address.
	ErrInvalidAddress = errors.New("invalid contract address")

	// ErrNilDependency is returned when a required dependency is nil.
	ErrNilDependency = errors.New("required dependency is nil")
)
