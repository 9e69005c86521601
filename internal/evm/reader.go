// Package evm reads ERC721 token state through go-ethereum contract bindings.
package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// erc721MetaData holds the read-only ERC721 surface, including the optional
// enumerable extension, baseURI() and ERC721A's totalMinted().
var erc721MetaData = &bind.MetaData{
	ABI: `[
{"type":"function","name":"name","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
{"type":"function","name":"symbol","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
{"type":"function","name":"baseURI","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
{"type":"function","name":"tokenURI","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
{"type":"function","name":"ownerOf","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
{"type":"function","name":"balanceOf","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"totalSupply","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"totalMinted","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"tokenByIndex","inputs":[{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"tokenOfOwnerByIndex","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"supportsInterface","inputs":[{"name":"interfaceId","type":"bytes4"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"}
]`,
}

// InterfaceIDEnumerable is the ERC165 identifier of IERC721Enumerable.
var InterfaceIDEnumerable = [4]byte{0x78, 0x0e, 0x9d, 0x63}

// Reader issues read-only ERC721 calls against one contract.
type Reader struct {
	contract *bind.BoundContract
	address  common.Address
}

// NewReader binds a Reader to address using caller (an *ethclient.Client in production).
func NewReader(address string, caller bind.ContractCaller) (*Reader, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	parsed, err := erc721MetaData.GetAbi()
	if err != nil {
		return nil, fmt.Errorf("parse erc721 abi: %w", err)
	}
	addr := common.HexToAddress(address)
	return &Reader{
		contract: bind.NewBoundContract(addr, *parsed, caller, nil, nil),
		address:  addr,
	}, nil
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, ErrNoRPC
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	slog.Info("[EVM] connected to RPC", "url", rpcURL)
	return client, nil
}

// Address returns the checksummed contract address.
func (r *Reader) Address() string {
	return r.address.Hex()
}

func (r *Reader) Name(ctx context.Context) (string, error) {
	return callString(ctx, r, "name")
}

func (r *Reader) Symbol(ctx context.Context) (string, error) {
	return callString(ctx, r, "symbol")
}

func (r *Reader) BaseURI(ctx context.Context) (string, error) {
	return callString(ctx, r, "baseURI")
}

func (r *Reader) TokenURI(ctx context.Context, id uint64) (string, error) {
	return callString(ctx, r, "tokenURI", new(big.Int).SetUint64(id))
}

// OwnerOf returns the owner as a checksummed hex address.
func (r *Reader) OwnerOf(ctx context.Context, id uint64) (string, error) {
	out, err := r.call(ctx, "ownerOf", new(big.Int).SetUint64(id))
	if err != nil {
		return "", err
	}
	return (*abi.ConvertType(out[0], new(common.Address)).(*common.Address)).Hex(), nil
}

func (r *Reader) BalanceOf(ctx context.Context, owner string) (uint64, error) {
	addr, err := parseAddress(owner)
	if err != nil {
		return 0, err
	}
	return callUint(ctx, r, "balanceOf", addr)
}

func (r *Reader) TotalSupply(ctx context.Context) (uint64, error) {
	return callUint(ctx, r, "totalSupply")
}

func (r *Reader) TotalMinted(ctx context.Context) (uint64, error) {
	return callUint(ctx, r, "totalMinted")
}

func (r *Reader) TokenByIndex(ctx context.Context, index uint64) (uint64, error) {
	return callUint(ctx, r, "tokenByIndex", new(big.Int).SetUint64(index))
}

func (r *Reader) TokenOfOwnerByIndex(ctx context.Context, owner string, index uint64) (uint64, error) {
	addr, err := parseAddress(owner)
	if err != nil {
		return 0, err
	}
	return callUint(ctx, r, "tokenOfOwnerByIndex", addr, new(big.Int).SetUint64(index))
}

// SupportsEnumerable asks the contract, through ERC165, whether it implements
// IERC721Enumerable. Contracts without ERC165 report an error.
func (r *Reader) SupportsEnumerable(ctx context.Context) (bool, error) {
	out, err := r.call(ctx, "supportsInterface", InterfaceIDEnumerable)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (r *Reader) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyResult, method)
	}
	return out, nil
}

func callString(ctx context.Context, r *Reader, method string, params ...interface{}) (string, error) {
	out, err := r.call(ctx, method, params...)
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func callUint(ctx context.Context, r *Reader, method string, params ...interface{}) (uint64, error) {
	out, err := r.call(ctx, method, params...)
	if err != nil {
		return 0, err
	}
	v := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	if v == nil || !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s returned %v", ErrIDOverflow, method, v)
	}
	return v.Uint64(), nil
}

func parseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}
