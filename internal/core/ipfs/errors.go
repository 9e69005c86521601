package ipfs

import "errors"

var (
	// ErrInvalidCID is returned when a CID root cannot be decoded as a content identifier.
	ErrInvalidCID = errors.New("invalid CID format")

	// ErrNotIPFS is returned when an operation needs an ipfs:// URI or bare CID and got something else.
	ErrNotIPFS = errors.New("not an IPFS URI")
)
