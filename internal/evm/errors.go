package evm

import "errors"

var (
	// ErrInvalidAddress is returned for strings that are not 20-byte hex addresses.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrEmptyResult is returned when a call decodes to no values.
	ErrEmptyResult = errors.New("empty call result")

	// ErrIDOverflow is returned when a uint256 token ID or counter does not fit in uint64.
	ErrIDOverflow = errors.New("value does not fit in uint64")

	// ErrNoRPC is returned when no RPC endpoint is configured.
	ErrNoRPC = errors.New("no RPC endpoint configured")
)
