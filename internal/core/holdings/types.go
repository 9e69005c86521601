package holdings

import (
	"context"
	"encoding/json"
)

// ContractReader is the set of ERC721 reads used to enumerate an owner's tokens.
type ContractReader interface {
	Name(ctx context.Context) (string, error)
	Symbol(ctx context.Context) (string, error)
	SupportsEnumerable(ctx context.Context) (bool, error)
	BalanceOf(ctx context.Context, owner string) (uint64, error)
	TokenOfOwnerByIndex(ctx context.Context, owner string, index uint64) (uint64, error)
	TotalSupply(ctx context.Context) (uint64, error)
	TokenByIndex(ctx context.Context, index uint64) (uint64, error)
	TotalMinted(ctx context.Context) (uint64, error)
	OwnerOf(ctx context.Context, id uint64) (string, error)
	TokenURI(ctx context.Context, id uint64) (string, error)
}

// Contract is a named ERC721 contract to scan.
type Contract struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Collectible is one token held by the owner.
type Collectible struct {
	Extra           map[string]json.RawMessage `json:"extra,omitempty"`
	URI             string                     `json:"uri"`
	Owner           string                     `json:"owner"`
	ContractName    string                     `json:"contractName"`
	ContractAddress string                     `json:"contractAddress"`
	Name            string                     `json:"name,omitempty"`
	Description     string                     `json:"description"`
	Image           string                     `json:"image,omitempty"`
	ID              uint64                     `json:"id"`
}

// Holdings is the result of scanning every configured contract for one owner.
type Holdings struct {
	// Labels maps contract address to a display label built from name() and symbol().
	Labels map[string]string `json:"labels"`
	// Errors maps contract address to the error that stopped its scan.
	Errors       map[string]string `json:"errors,omitempty"`
	Owner        string            `json:"owner"`
	Collectibles []Collectible     `json:"collectibles"`
}
