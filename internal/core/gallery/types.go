package gallery

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"Kittens/internal/core/metadata"
)

// Item is one gallery entry: a token, where its metadata lives, who owns it and
// the interpreted metadata fields.
type Item struct {
	Extra       map[string]json.RawMessage `json:"extra,omitempty"`
	URI         string                     `json:"uri"`
	Owner       string                     `json:"owner"`
	Name        string                     `json:"name,omitempty"`
	Description string                     `json:"description,omitempty"`
	Image       string                     `json:"image,omitempty"`
	ID          uint64                     `json:"id"`
}

// HasDisplayData reports whether the item carries enough metadata to render a card.
func (it Item) HasDisplayData() bool {
	return it.Image != "" || it.Name != ""
}

// CacheEntry is the persisted form of a gallery, keyed by contract address.
type CacheEntry struct {
	Items     []Item `json:"items"`
	Timestamp int64  `json:"timestamp"`
}

// newItem builds an item from resolved metadata. image is the already resolved image URL.
func newItem(id uint64, uri, owner string, md metadata.Metadata, image string) Item {
	return Item{
		ID:          id,
		URI:         uri,
		Owner:       owner,
		Name:        md.Name,
		Description: md.Description,
		Image:       image,
		Extra:       md.Extra,
	}
}

const placeholderSVG = "<svg xmlns='http://www.w3.org/2000/svg' width='400' height='400'>" +
	"<rect width='400' height='400' fill='#262626'/>" +
	"<text x='50%%' y='50%%' dominant-baseline='middle' text-anchor='middle' " +
	"font-family='monospace' font-size='24' fill='#888'>Token #%d</text></svg>"

// FallbackItem is what a token renders as when its metadata cannot be resolved.
// It carries a name and image so cache pruning keeps it.
func FallbackItem(id uint64, uri, owner string) Item {
	svg := fmt.Sprintf(placeholderSVG, id)
	return Item{
		ID:          id,
		URI:         uri,
		Owner:       owner,
		Name:        "Token #" + strconv.FormatUint(id, 10),
		Description: "Metadata unavailable",
		Image:       "data:image/svg+xml," + url.PathEscape(svg),
	}
}

// LoadState is the lifecycle state of a Loader.
type LoadState int

const (
	StateIdle LoadState = iota
	StateLoading
	StateLoaded
)

func (s LoadState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "idle"
	}
}

// MarshalText renders the state by name.
func (s LoadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// LoadStatus is Idle, Loading, or Loaded for Address.
type LoadStatus struct {
	Address string    `json:"address,omitempty"`
	State   LoadState `json:"state"`
}

func (s LoadStatus) String() string {
	if s.State == StateLoaded {
		return fmt.Sprintf("loaded(%s)", s.Address)
	}
	return s.State.String()
}
