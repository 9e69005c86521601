package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"Kittens/internal/core/ipfs"
)

const filenameParam = "filename"

// Fetcher retrieves the metadata document a token URI points at.
type Fetcher interface {
	// FetchMetadata resolves rawURI, bounding each network attempt by timeout.
	FetchMetadata(ctx context.Context, rawURI string, timeout time.Duration) (Metadata, error)
}

// GatewayFetcher resolves token URIs to metadata documents by trying an ordered list
// of gateway URLs until one returns a JSON object.
type GatewayFetcher struct {
	client       *http.Client
	breaker      *circuitBreaker
	metrics      *Metrics
	now          func() time.Time
	userAgent    string
	resolver     ipfs.Resolver
	fetchTimeout time.Duration
	maxBodyBytes int64
	fanout       bool
}

// NewGatewayFetcher creates a GatewayFetcher from cfg. A nil client gets a default http.Client;
// per-attempt deadlines come from contexts, so the client itself has no timeout.
// metrics may be nil.
func NewGatewayFetcher(cfg Config, client *http.Client, metrics *Metrics) *GatewayFetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &GatewayFetcher{
		client:       client,
		resolver:     cfg.Resolver(),
		fanout:       cfg.Fanout,
		userAgent:    cfg.UserAgent,
		fetchTimeout: cfg.FetchTimeout,
		maxBodyBytes: cfg.MaxBodyBytes,
		breaker:      newCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerOpenDuration),
		metrics:      metrics,
		now:          time.Now,
	}
}

// Resolver returns the gateway resolver the fetcher uses.
func (f *GatewayFetcher) Resolver() ipfs.Resolver {
	return f.resolver
}

// GatewayStats returns the circuit state of every gateway that has failed recently.
func (f *GatewayFetcher) GatewayStats() map[string]GatewayStats {
	return f.breaker.stats()
}

// Candidates returns the ordered URLs FetchMetadata tries for raw before falling
// back to the CID root. Inline and data: URIs yield nil.
func (f *GatewayFetcher) Candidates(raw string) []string {
	s := ipfs.Normalize(raw)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(strings.ToLower(s), "data:") {
		return nil
	}

	var bases []string
	if ipfs.IsIPFSLike(ipfs.RepairScheme(s)) {
		if f.fanout {
			bases, _ = f.resolver.GatewayURLs(s)
		} else {
			bases = []string{f.resolver.Resolve(s)}
		}
	} else {
		bases = []string{f.resolver.Resolve(s)}
	}

	return expandCandidates(bases)
}

// rootCandidates lists the CID-root URLs tried after every regular candidate failed.
func (f *GatewayFetcher) rootCandidates(s string) []string {
	root := ipfs.CIDRoot(s)
	if root == "" {
		return nil
	}
	gateways := []string{f.resolver.DefaultGateway}
	if f.fanout {
		gateways = f.resolver.Gateways
	}
	var out []string
	for _, gw := range gateways {
		base := ipfs.ResolveToHTTP("ipfs://"+root, gw)
		out = append(out, base)
		if v, ok := withFilename(base); ok {
			out = append(out, v)
		}
	}
	return out
}

// expandCandidates follows every base with its filename=metadata.json variant and,
// for directory-style URLs, a trailing-slash-stripped variant. Duplicates are dropped.
func expandCandidates(bases []string) []string {
	seen := make(map[string]struct{}, len(bases)*3)
	out := make([]string, 0, len(bases)*3)
	add := func(u string) {
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	for _, b := range bases {
		add(b)
		if v, ok := withFilename(b); ok {
			add(v)
		}
		if v, ok := withoutTrailingSlash(b); ok {
			add(v)
		}
	}
	return out
}

func withFilename(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "", false
	}
	q := u.Query()
	if q.Has(filenameParam) {
		return "", false
	}
	q.Set(filenameParam, "metadata.json")
	u.RawQuery = q.Encode()
	return u.String(), true
}

func withoutTrailingSlash(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || len(u.Path) < 2 || !strings.HasSuffix(u.Path, "/") {
		return "", false
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String(), true
}

// FetchMetadata resolves raw to a metadata document.
//
// Inline JSON and data:application/json URIs are decoded without network access.
// Otherwise each candidate URL is tried once, bounded by timeout (the configured
// FetchTimeout when timeout <= 0). When every candidate fails for an IPFS-like URI
// the bare CID root is tried across gateways. The returned error wraps
// ErrFetchExhausted together with the last attempt's error.
func (f *GatewayFetcher) FetchMetadata(ctx context.Context, raw string, timeout time.Duration) (Metadata, error) {
	if timeout <= 0 {
		timeout = f.fetchTimeout
	}

	if md, handled, err := parseInline(raw); handled {
		if err != nil {
			return Metadata{}, fmt.Errorf("%w: %w", ErrFetchExhausted, err)
		}
		return md, nil
	}

	s := ipfs.Normalize(raw)
	if s == "" {
		return Metadata{}, ErrEmptyURI
	}

	tried := make(map[string]struct{})
	var lastErr error
	attempt := func(candidates []string) (Metadata, bool, error) {
		for _, target := range candidates {
			if _, dup := tried[target]; dup {
				continue
			}
			tried[target] = struct{}{}

			if err := ctx.Err(); err != nil {
				return Metadata{}, false, err
			}

			md, err := f.fetchOne(ctx, target, timeout)
			if err == nil {
				return md, true, nil
			}
			lastErr = err
			if ctx.Err() != nil {
				return Metadata{}, false, ctx.Err()
			}
			slog.Debug("[METADATA] candidate failed", "url", target, "error", err)
		}
		return Metadata{}, false, nil
	}

	md, ok, ctxErr := attempt(f.Candidates(raw))
	if ok {
		return md, nil
	}
	if ctxErr == nil && ipfs.IsIPFSLike(ipfs.RepairScheme(s)) {
		md, ok, ctxErr = attempt(f.rootCandidates(s))
		if ok {
			return md, nil
		}
	}

	if ctxErr != nil {
		return Metadata{}, fmt.Errorf("%w: %w", ErrFetchExhausted, ctxErr)
	}
	if lastErr == nil {
		return Metadata{}, ErrFetchExhausted
	}
	return Metadata{}, fmt.Errorf("%w: %w", ErrFetchExhausted, lastErr)
}

// fetchOne runs a single attempt against target, consulting and updating the
// gateway's circuit.
func (f *GatewayFetcher) fetchOne(ctx context.Context, target string, timeout time.Duration) (Metadata, error) {
	host := hostOf(target)
	label := f.gatewayLabel(host)

	if host != "" {
		if ok, err := f.breaker.canAttempt(host); !ok {
			f.metrics.observeAttempt(label, outcomeSkipped, 0)
			return Metadata{}, err
		}
	}

	start := f.now()
	md, err := f.fetchJSON(ctx, target, timeout)
	elapsed := time.Since(start)

	outcome := classify(err)
	f.metrics.observeAttempt(label, outcome, elapsed)

	if host != "" {
		switch {
		case err == nil:
			f.breaker.recordSuccess(host)
		case outcome == outcomeCancelled:
		case tripsBreaker(err, outcome):
			f.breaker.recordFailure(host, err)
		}
	}
	return md, err
}

// fetchJSON GETs target with a cache-busting parameter and decodes the body as a
// JSON object.
func (f *GatewayFetcher) fetchJSON(ctx context.Context, target string, timeout time.Duration) (Metadata, error) {
	u, err := url.Parse(target)
	if err != nil {
		return Metadata{}, fmt.Errorf("invalid candidate URL %q: %w", target, err)
	}
	q := u.Query()
	q.Set("_", strconv.FormatInt(f.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain;q=0.9, */*;q=0.8")
	req.Header.Set("Cache-Control", "no-store")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Metadata{}, ctx.Err()
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || isTimeoutError(err) {
			return Metadata{}, fmt.Errorf("%w: %s after %v", ErrTimeout, target, timeout)
		}
		return Metadata{}, fmt.Errorf("request to %s failed: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Metadata{}, &HTTPError{URL: target, StatusCode: resp.StatusCode}
	}

	if resp.ContentLength > f.maxBodyBytes {
		return Metadata{}, fmt.Errorf("%w: content length %d exceeds maximum %d bytes",
			ErrResponseTooLarge, resp.ContentLength, f.maxBodyBytes)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		if ctx.Err() != nil {
			return Metadata{}, ctx.Err()
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || isTimeoutError(err) {
			return Metadata{}, fmt.Errorf("%w: reading %s", ErrTimeout, target)
		}
		return Metadata{}, fmt.Errorf("failed to read response body from %s: %w", target, err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return Metadata{}, fmt.Errorf("%w: response body exceeds maximum %d bytes",
			ErrResponseTooLarge, f.maxBodyBytes)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	var md Metadata
	if strings.Contains(contentType, "application/json") {
		if err := json.Unmarshal(body, &md); err != nil {
			if errors.Is(err, ErrNonJSONResponse) {
				return Metadata{}, err
			}
			return Metadata{}, fmt.Errorf("%w: %s: %v", ErrDecode, target, err)
		}
		return md, nil
	}

	// Gateways often serve metadata as text/plain or octet-stream.
	if err := json.Unmarshal(body, &md); err != nil {
		return Metadata{}, fmt.Errorf("%w: %s (content-type %q)", ErrNonJSONResponse, target, contentType)
	}
	return md, nil
}

func classify(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCancelled
	case errors.Is(err, ErrTimeout):
		return outcomeTimeout
	case errors.Is(err, ErrHTTPStatus):
		return outcomeHTTPError
	case errors.Is(err, ErrNonJSONResponse):
		return outcomeNonJSON
	case errors.Is(err, ErrDecode):
		return outcomeDecode
	case errors.Is(err, ErrResponseTooLarge):
		return outcomeTooLarge
	default:
		return outcomeNetwork
	}
}

// tripsBreaker reports whether a failure says something about gateway health.
// Client errors and malformed bodies are the content's fault, not the gateway's.
func tripsBreaker(err error, outcome string) bool {
	switch outcome {
	case outcomeTimeout, outcomeNetwork:
		return true
	case outcomeHTTPError:
		var httpErr *HTTPError
		return errors.As(err, &httpErr) && httpErr.StatusCode >= 500
	default:
		return false
	}
}

func (f *GatewayFetcher) gatewayLabel(host string) string {
	if host == "" {
		return "other"
	}
	if host == f.resolver.DefaultGateway {
		return host
	}
	for _, gw := range f.resolver.Gateways {
		if gw == host {
			return host
		}
	}
	return "other"
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// isTimeoutError checks if the error is a timeout-related error.
func isTimeoutError(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
