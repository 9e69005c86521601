package holdings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Kittens/internal/core/metadata"
)

const (
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
)

var errReverted = errors.New("execution reverted")

// fakeContract is an in-memory ERC721.
type fakeContract struct {
	owners     map[uint64]string // token id -> owner
	uris       map[uint64]string
	order      []uint64 // enumeration order for tokenByIndex
	name       string
	symbol     string
	enumerable bool
	hasSupply  bool
	hasMinted  bool
	ownerCalls int32
}

func (f *fakeContract) Name(ctx context.Context) (string, error) {
	if f.name == "" {
		return "", errReverted
	}
	return f.name, nil
}

func (f *fakeContract) Symbol(ctx context.Context) (string, error) {
	if f.symbol == "" {
		return "", errReverted
	}
	return f.symbol, nil
}

func (f *fakeContract) SupportsEnumerable(ctx context.Context) (bool, error) {
	return f.enumerable, nil
}

func (f *fakeContract) owned(owner string) []uint64 {
	var ids []uint64
	for _, id := range f.order {
		if strings.EqualFold(f.owners[id], owner) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (f *fakeContract) BalanceOf(ctx context.Context, owner string) (uint64, error) {
	return uint64(len(f.owned(owner))), nil
}

func (f *fakeContract) TokenOfOwnerByIndex(ctx context.Context, owner string, index uint64) (uint64, error) {
	ids := f.owned(owner)
	if index >= uint64(len(ids)) {
		return 0, errReverted
	}
	return ids[index], nil
}

func (f *fakeContract) TotalSupply(ctx context.Context) (uint64, error) {
	if !f.hasSupply {
		return 0, errReverted
	}
	return uint64(len(f.order)), nil
}

func (f *fakeContract) TokenByIndex(ctx context.Context, index uint64) (uint64, error) {
	if !f.hasSupply || index >= uint64(len(f.order)) {
		return 0, errReverted
	}
	return f.order[index], nil
}

func (f *fakeContract) TotalMinted(ctx context.Context) (uint64, error) {
	if !f.hasMinted {
		return 0, errReverted
	}
	return uint64(len(f.order)), nil
}

func (f *fakeContract) OwnerOf(ctx context.Context, id uint64) (string, error) {
	atomic.AddInt32(&f.ownerCalls, 1)
	owner, ok := f.owners[id]
	if !ok {
		return "", errReverted
	}
	return owner, nil
}

func (f *fakeContract) TokenURI(ctx context.Context, id uint64) (string, error) {
	uri, ok := f.uris[id]
	if !ok {
		return "", errReverted
	}
	return uri, nil
}

// fakeMetadata resolves URIs from a map and maps ipfs:// onto a fixed gateway.
type fakeMetadata struct {
	docs map[string]metadata.Metadata
}

func (m *fakeMetadata) Resolve(ctx context.Context, rawURI string) (metadata.Metadata, error) {
	md, ok := m.docs[rawURI]
	if !ok {
		return metadata.Metadata{}, metadata.ErrFetchExhausted
	}
	return md, nil
}

func (m *fakeMetadata) ResolveURL(rawURI string) string {
	return strings.Replace(rawURI, "ipfs://", "https://gw.example/ipfs/", 1)
}

func (m *fakeMetadata) ResolveImage(md metadata.Metadata) string {
	return m.ResolveURL(md.Image)
}

func (m *fakeMetadata) Invalidate(string) {}

func newTestService(t *testing.T, contracts map[string]*fakeContract, order []Contract, meta *fakeMetadata) Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Contracts = order
	svc, err := NewService(cfg, func(address string) (ContractReader, error) {
		c, ok := contracts[address]
		if !ok {
			return nil, fmt.Errorf("no contract at %s", address)
		}
		return c, nil
	}, meta)
	require.NoError(t, err)
	return svc
}

func TestHoldings_Enumerable(t *testing.T) {
	kittens := &fakeContract{
		enumerable: true,
		name:       "Kittens",
		symbol:     "KIT",
		order:      []uint64{1, 2, 3},
		owners:     map[uint64]string{1: alice, 2: bob, 3: alice},
		uris:       map[uint64]string{1: "ipfs://QmA/1.json", 2: "ipfs://QmA/2.json", 3: "ipfs://QmA/3.png"},
	}
	meta := &fakeMetadata{docs: map[string]metadata.Metadata{
		"ipfs://QmA/1.json": {Name: "Kitten #1", Image: "ipfs://QmImg/1.png"},
	}}
	svc := newTestService(t, map[string]*fakeContract{"0xK": kittens}, []Contract{{Name: "Kittens", Address: "0xK"}}, meta)

	h, err := svc.Holdings(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, h.Collectibles, 2)

	first := h.Collectibles[0]
	assert.Equal(t, uint64(1), first.ID)
	assert.Equal(t, "Kitten #1", first.Name)
	assert.Equal(t, "https://gw.example/ipfs/QmImg/1.png", first.Image)
	assert.Equal(t, "Kittens", first.ContractName)
	assert.Equal(t, "0xK", first.ContractAddress)

	// Token 3's metadata fails; its token URI looks like an image so it is used directly.
	fallback := h.Collectibles[1]
	assert.Equal(t, "Token #3", fallback.Name)
	assert.Equal(t, "https://gw.example/ipfs/QmA/3.png", fallback.Image)

	assert.Equal(t, "Kittens • Kittens (KIT)", h.Labels["0xK"])
	assert.Empty(t, h.Errors)
	assert.Zero(t, atomic.LoadInt32(&kittens.ownerCalls), "enumerable contracts need no ownerOf scan")
}

func TestHoldings_ScanByTotalSupply(t *testing.T) {
	c := &fakeContract{
		hasSupply: true,
		order:     []uint64{10, 11, 12},
		owners:    map[uint64]string{10: strings.ToUpper(alice[:2]) + strings.ToUpper(alice[2:]), 11: bob, 12: alice},
		uris:      map[uint64]string{10: "https://meta.example/10", 11: "https://meta.example/11", 12: "https://meta.example/12"},
	}
	svc := newTestService(t, map[string]*fakeContract{"0xC": c}, []Contract{{Name: "Plain", Address: "0xC"}}, &fakeMetadata{})

	h, err := svc.Holdings(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, h.Collectibles, 2)
	assert.Equal(t, uint64(10), h.Collectibles[0].ID, "owner comparison is case-insensitive")
	assert.Equal(t, uint64(12), h.Collectibles[1].ID)
	assert.Empty(t, h.Collectibles[0].Image, "a non-image token URI is not used as image")
	assert.Equal(t, "Plain", h.Labels["0xC"])
}

func TestHoldings_ScanByTotalMinted(t *testing.T) {
	c := &fakeContract{
		hasMinted: true,
		order:     []uint64{1, 2},
		owners:    map[uint64]string{1: bob, 2: alice},
		uris:      map[uint64]string{1: "u1", 2: "u2"},
	}
	svc := newTestService(t, map[string]*fakeContract{"0xM": c}, []Contract{{Name: "Minted", Address: "0xM"}}, &fakeMetadata{})

	h, err := svc.Holdings(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, h.Collectibles, 1)
	assert.Equal(t, uint64(2), h.Collectibles[0].ID)
}

func TestHoldings_NoScanPlan(t *testing.T) {
	c := &fakeContract{owners: map[uint64]string{1: alice}}
	svc := newTestService(t, map[string]*fakeContract{"0xN": c}, []Contract{{Name: "None", Address: "0xN"}}, &fakeMetadata{})

	h, err := svc.Holdings(context.Background(), alice)
	require.NoError(t, err)
	assert.Empty(t, h.Collectibles)
}

func TestHoldings_ContractErrorsAreReported(t *testing.T) {
	good := &fakeContract{enumerable: true, order: []uint64{1}, owners: map[uint64]string{1: alice}, uris: map[uint64]string{1: "u1"}}
	svc := newTestService(t,
		map[string]*fakeContract{"0xG": good},
		[]Contract{{Name: "Missing", Address: "0xMISSING"}, {Name: "Good", Address: "0xG"}},
		&fakeMetadata{},
	)

	h, err := svc.Holdings(context.Background(), alice)
	require.NoError(t, err)
	assert.Len(t, h.Collectibles, 1)
	assert.Contains(t, h.Errors["0xMISSING"], "no contract")
}

func TestHoldings_Validation(t *testing.T) {
	svc := newTestService(t, nil, nil, &fakeMetadata{})
	_, err := svc.Holdings(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidOwner)
	_, err = svc.Holdings(context.Background(), alice)
	assert.ErrorIs(t, err, ErrNoContracts)

	_, err = NewService(DefaultConfig(), nil, &fakeMetadata{})
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestParseContracts(t *testing.T) {
	got, err := ParseContracts(" Kittens=0xabc , 0xdef ,")
	require.NoError(t, err)
	assert.Equal(t, []Contract{{Name: "Kittens", Address: "0xabc"}, {Name: "0xdef", Address: "0xdef"}}, got)

	_, err = ParseContracts("Broken=")
	assert.ErrorIs(t, err, ErrInvalidContractEntry)

	got, err = ParseContracts("")
	require.NoError(t, err)
	assert.Empty(t, got)
}
