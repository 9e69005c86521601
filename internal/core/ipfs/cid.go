package ipfs

import (
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
)

// CIDInfo describes the root content identifier of an IPFS reference.
type CIDInfo struct {
	CID           string `json:"cid"`
	V1            string `json:"v1"`
	Path          string `json:"path,omitempty"`
	Version       uint64 `json:"version"`
	Codec         uint64 `json:"codec"`
	MultihashType uint64 `json:"multihashType"`
}

// Inspect decodes the root CID of an ipfs:// URI or bare CID path.
// Unlike IsBareCID it accepts any multibase encoding go-cid understands.
func Inspect(uri string) (CIDInfo, error) {
	s := RepairScheme(Normalize(uri))
	if IsHTTP(s) || strings.HasPrefix(s, "data:") {
		return CIDInfo{}, ErrNotIPFS
	}
	root := CIDRoot(s)
	if root == "" {
		return CIDInfo{}, ErrNotIPFS
	}

	c, err := cid.Decode(root)
	if err != nil {
		return CIDInfo{}, fmt.Errorf("%w: %v", ErrInvalidCID, err)
	}

	rest := strings.TrimPrefix(strings.TrimPrefix(s, "ipfs://"), root)
	return CIDInfo{
		CID:           c.String(),
		V1:            cid.NewCidV1(c.Type(), c.Hash()).String(),
		Path:          strings.TrimPrefix(rest, "/"),
		Version:       c.Version(),
		Codec:         c.Type(),
		MultihashType: c.Prefix().MhType,
	}, nil
}

// ValidateCID checks that s is a single decodable CID with no path component.
func ValidateCID(s string) error {
	if s == "" || strings.ContainsAny(s, "/\\\x00") || strings.Contains(s, "..") {
		return ErrInvalidCID
	}
	if _, err := cid.Decode(s); err != nil {
		return ErrInvalidCID
	}
	return nil
}
