package imageproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"Kittens/internal/core/ipfs"
)

// Fetcher retrieves the raw bytes of a source image.
type Fetcher interface {
	// Fetch downloads the image a canonical URI (ipfs://, bare CID or http(s)) points at.
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// GatewayFetcher fetches images through the IPFS gateway list, trying each gateway
// in order until one returns the bytes.
type GatewayFetcher struct {
	client       *http.Client
	resolver     ipfs.Resolver
	userAgent    string
	timeout      time.Duration
	maxSizeBytes int64
}

// DefaultMaxSourceSizeMB is used when maxSizeMB is not positive.
const DefaultMaxSourceSizeMB = 8

// NewGatewayFetcher creates a GatewayFetcher. timeout bounds one Fetch call across
// all gateways.
func NewGatewayFetcher(resolver ipfs.Resolver, timeout time.Duration, maxSizeMB int, userAgent string) *GatewayFetcher {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxSourceSizeMB
	}
	if userAgent == "" {
		userAgent = "Kittens-ImageProxy/1.0"
	}
	return &GatewayFetcher{
		client:       &http.Client{},
		resolver:     resolver,
		userAgent:    userAgent,
		timeout:      timeout,
		maxSizeBytes: int64(maxSizeMB) * 1024 * 1024,
	}
}

// Targets lists the URLs Fetch tries for uri, in order.
func (f *GatewayFetcher) Targets(uri string) ([]string, error) {
	switch {
	case uri == "":
		return nil, ErrEmptySource
	case strings.HasPrefix(strings.ToLower(uri), "data:"):
		return nil, ErrUnsupportedSource
	case ipfs.IsIPFSLike(uri):
		return f.resolver.GatewayURLs(uri)
	case ipfs.IsHTTP(uri):
		return []string{uri}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, uri)
	}
}

// Fetch returns:
//   - ErrImageTooLarge as soon as any gateway serves an oversized body
//   - ErrSourceNotFound if every gateway answered 404
//   - ErrSourceTimeout if the deadline expired first
//   - ErrSourceFetchFailed otherwise
func (f *GatewayFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	targets, err := f.Targets(uri)
	if err != nil {
		return nil, err
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	notFound := 0
	var lastErr error
	for _, target := range targets {
		data, err := f.fetchOne(ctx, target)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, ErrImageTooLarge) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrSourceTimeout, ctx.Err())
		}
		if errors.Is(err, ErrSourceNotFound) {
			notFound++
		}
		lastErr = err
		slog.Debug("[IMAGE-PROXY] gateway attempt failed",
			"url", target,
			"error", err,
		)
	}

	if notFound == len(targets) {
		return nil, ErrSourceNotFound
	}
	return nil, fmt.Errorf("%w: %v", ErrSourceFetchFailed, lastErr)
}

func (f *GatewayFetcher) fetchOne(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrSourceFetchFailed, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceFetchFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrSourceNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrSourceFetchFailed, resp.StatusCode)
	}

	if resp.ContentLength > f.maxSizeBytes {
		return nil, fmt.Errorf("%w: content length %d exceeds maximum %d bytes",
			ErrImageTooLarge, resp.ContentLength, f.maxSizeBytes)
	}

	// Read one byte past the limit to detect bodies without a truthful Content-Length.
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrSourceFetchFailed, err)
	}
	if int64(len(data)) > f.maxSizeBytes {
		return nil, fmt.Errorf("%w: response body exceeds maximum %d bytes", ErrImageTooLarge, f.maxSizeBytes)
	}
	return data, nil
}
