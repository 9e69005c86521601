package holdings

import "errors"

var (
	// ErrInvalidOwner is returned for an empty owner address.
	ErrInvalidOwner = errors.New("invalid owner address")

	// ErrNoContracts is returned when the service has no contracts to scan.
	ErrNoContracts = errors.New("no contracts configured")

	// ErrInvalidContractEntry is returned for a malformed HOLDINGS_CONTRACTS entry.
	ErrInvalidContractEntry = errors.New("invalid contract entry")

	// ErrNilDependency is returned when a required dependency is nil.
	ErrNilDependency = errors.New("required dependency is nil")
)
