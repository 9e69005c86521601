package evm

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	contractAddr = "0x00000000000000000000000000000000000000aa"
	holder       = "0xF4220e5c9882746f4F52FC61Dcfd1095c5D563e6"
)

var errRevert = errors.New("execution reverted")

// fakeCaller answers eth_call by decoding the selector and packing the handler's
// return values with the contract ABI.
type fakeCaller struct {
	t        *testing.T
	abi      *abi.ABI
	handlers map[string]func(args []interface{}) ([]interface{}, error)
	calls    []string
}

func newFakeCaller(t *testing.T) *fakeCaller {
	t.Helper()
	parsed, err := erc721MetaData.GetAbi()
	require.NoError(t, err)
	return &fakeCaller{t: t, abi: parsed, handlers: map[string]func([]interface{}) ([]interface{}, error){}}
}

func (f *fakeCaller) on(method string, fn func(args []interface{}) ([]interface{}, error)) {
	f.handlers[method] = fn
}

func (f *fakeCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (f *fakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	require.NotNil(f.t, call.To)
	assert.Equal(f.t, common.HexToAddress(contractAddr), *call.To)

	method, err := f.abi.MethodById(call.Data[:4])
	require.NoError(f.t, err)
	f.calls = append(f.calls, method.Name)

	args, err := method.Inputs.Unpack(call.Data[4:])
	require.NoError(f.t, err)

	fn, ok := f.handlers[method.Name]
	if !ok {
		return nil, errRevert
	}
	vals, err := fn(args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(vals...)
}

func newTestReader(t *testing.T) (*Reader, *fakeCaller) {
	t.Helper()
	caller := newFakeCaller(t)
	r, err := NewReader(contractAddr, caller)
	require.NoError(t, err)
	return r, caller
}

func TestNewReader_InvalidAddress(t *testing.T) {
	_, err := NewReader("not-an-address", newFakeCaller(t))
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestReader_StringCalls(t *testing.T) {
	r, caller := newTestReader(t)
	caller.on("name", func([]interface{}) ([]interface{}, error) { return []interface{}{"Kittens"}, nil })
	caller.on("symbol", func([]interface{}) ([]interface{}, error) { return []interface{}{"KIT"}, nil })
	caller.on("baseURI", func([]interface{}) ([]interface{}, error) { return []interface{}{"ipfs://QmBase/"}, nil })
	caller.on("tokenURI", func(args []interface{}) ([]interface{}, error) {
		id := args[0].(*big.Int)
		return []interface{}{"ipfs://QmBase/" + id.String() + ".json"}, nil
	})

	ctx := context.Background()
	name, err := r.Name(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Kittens", name)

	sym, err := r.Symbol(ctx)
	require.NoError(t, err)
	assert.Equal(t, "KIT", sym)

	base, err := r.BaseURI(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://QmBase/", base)

	uri, err := r.TokenURI(ctx, 1_000_005)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://QmBase/1000005.json", uri)
}

func TestReader_OwnerOf(t *testing.T) {
	r, caller := newTestReader(t)
	caller.on("ownerOf", func(args []interface{}) ([]interface{}, error) {
		if args[0].(*big.Int).Uint64() != 7 {
			return nil, errRevert
		}
		return []interface{}{common.HexToAddress(holder)}, nil
	})

	owner, err := r.OwnerOf(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, strings.EqualFold(holder, owner))

	_, err = r.OwnerOf(context.Background(), 8)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ownerOf")
}

func TestReader_Counters(t *testing.T) {
	r, caller := newTestReader(t)
	caller.on("totalSupply", func([]interface{}) ([]interface{}, error) { return []interface{}{big.NewInt(42)}, nil })
	caller.on("totalMinted", func([]interface{}) ([]interface{}, error) { return []interface{}{big.NewInt(40)}, nil })
	caller.on("tokenByIndex", func(args []interface{}) ([]interface{}, error) {
		i := args[0].(*big.Int)
		return []interface{}{new(big.Int).Add(i, big.NewInt(1_000_000))}, nil
	})
	caller.on("balanceOf", func(args []interface{}) ([]interface{}, error) {
		assert.Equal(t, common.HexToAddress(holder), args[0].(common.Address))
		return []interface{}{big.NewInt(2)}, nil
	})
	caller.on("tokenOfOwnerByIndex", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{new(big.Int).Add(args[1].(*big.Int), big.NewInt(10))}, nil
	})

	ctx := context.Background()
	supply, err := r.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), supply)

	minted, err := r.TotalMinted(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), minted)

	id, err := r.TokenByIndex(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_003), id)

	bal, err := r.BalanceOf(ctx, holder)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), bal)

	owned, err := r.TokenOfOwnerByIndex(ctx, holder, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), owned)

	_, err = r.BalanceOf(ctx, "nope")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestReader_Overflow(t *testing.T) {
	r, caller := newTestReader(t)
	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	caller.on("totalSupply", func([]interface{}) ([]interface{}, error) { return []interface{}{huge}, nil })

	_, err := r.TotalSupply(context.Background())
	assert.ErrorIs(t, err, ErrIDOverflow)
}

func TestReader_SupportsEnumerable(t *testing.T) {
	r, caller := newTestReader(t)
	caller.on("supportsInterface", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{args[0].([4]byte) == InterfaceIDEnumerable}, nil
	})

	ok, err := r.SupportsEnumerable(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReader_CancelledContext(t *testing.T) {
	r, _ := newTestReader(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Name(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDial_RequiresURL(t *testing.T) {
	_, err := Dial(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrNoRPC)
}
