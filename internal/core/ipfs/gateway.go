package ipfs

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultGateway is the single gateway used when a caller does not pick one.
const DefaultGateway = "ipfs.io"

// Gateways is the ordered fan-out list tried when fetching IPFS content.
var Gateways = []string{
	"nftstorage.link",
	"cloudflare-ipfs.com",
	"ipfs.io",
	"gateway.pinata.cloud",
	"dweb.link",
}

var (
	bareCIDPattern   = regexp.MustCompile(`^(bafy\w+|Qm[1-9A-HJ-NP-Za-km-z]{44})(/.*)?$`)
	cidRootPattern   = regexp.MustCompile(`^([A-Za-z0-9]+)(?:/.*)?$`)
	httpSchemePrefix = regexp.MustCompile(`(?i)^https?://`)
	repeatedSlashes  = regexp.MustCompile(`/{2,}`)
)

// IsBareCID reports whether s is a CIDv1 (bafy…) or CIDv0 (Qm + 44 base58 chars),
// optionally followed by a path.
func IsBareCID(s string) bool {
	return bareCIDPattern.MatchString(s)
}

// IsIPFSLike reports whether a canonical URI addresses IPFS content.
func IsIPFSLike(s string) bool {
	return strings.HasPrefix(s, "ipfs://") || IsBareCID(s)
}

// IsHTTP reports whether s carries an http or https scheme.
func IsHTTP(s string) bool {
	return httpSchemePrefix.MatchString(s)
}

// CIDRoot returns the root CID of an ipfs:// URI or CID path, without any sub-path.
// It returns "" when no alphanumeric root segment is present.
func CIDRoot(s string) string {
	s = strings.Replace(RepairScheme(s), "ipfs://", "", 1)
	m := cidRootPattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

// ResolveToHTTP maps a token URI onto an HTTP(S) URL served by gatewayHost.
//
// Bare CIDs and ipfs:// URIs become https://{gateway}/ipfs/{cid}[/path], or
// https://{gateway}/{cid}[/path] when the gateway host already carries an /ipfs
// segment. HTTP URLs only get duplicate path slashes collapsed. Everything else,
// data: URIs included, is returned in normalized form.
func ResolveToHTTP(uri, gatewayHost string) string {
	s := Normalize(uri)
	if s == "" {
		return s
	}
	if gatewayHost == "" {
		gatewayHost = DefaultGateway
	}
	hasIPFSPath := strings.Contains(gatewayHost, "/ipfs")

	if IsBareCID(s) {
		return gatewayURL(gatewayHost, strings.TrimLeft(s, "/"), hasIPFSPath)
	}

	repaired := RepairScheme(s)
	if strings.HasPrefix(repaired, "ipfs://") {
		path := strings.TrimLeft(strings.TrimPrefix(repaired, "ipfs://"), "/")
		return gatewayURL(gatewayHost, path, hasIPFSPath)
	}

	if IsHTTP(s) {
		u, err := url.Parse(s)
		if err != nil {
			return s
		}
		u.Path = repeatedSlashes.ReplaceAllString(u.Path, "/")
		u.RawPath = repeatedSlashes.ReplaceAllString(u.RawPath, "/")
		return u.String()
	}

	return repaired
}

func gatewayURL(host, path string, hasIPFSPath bool) string {
	if hasIPFSPath {
		return "https://" + host + "/" + path
	}
	return "https://" + host + "/ipfs/" + path
}

// Resolver binds gateway resolution to a configured default and fan-out list.
type Resolver struct {
	// DefaultGateway is used by Resolve for single-URL resolution.
	DefaultGateway string
	// Gateways is the fan-out order used by GatewayURLs.
	Gateways []string
}

// NewResolver returns a Resolver, substituting package defaults for empty values.
func NewResolver(defaultGateway string, gateways []string) Resolver {
	if defaultGateway == "" {
		defaultGateway = DefaultGateway
	}
	if len(gateways) == 0 {
		gateways = Gateways
	}
	gws := make([]string, len(gateways))
	copy(gws, gateways)
	return Resolver{DefaultGateway: defaultGateway, Gateways: gws}
}

// Resolve maps uri onto the default gateway.
func (r Resolver) Resolve(uri string) string {
	return ResolveToHTTP(uri, r.DefaultGateway)
}

// GatewayURLs returns one HTTP URL per configured gateway for an IPFS-like URI,
// in fan-out order. Non-IPFS input yields ErrNotIPFS.
func (r Resolver) GatewayURLs(uri string) ([]string, error) {
	s := Normalize(uri)
	if !IsIPFSLike(RepairScheme(s)) {
		return nil, ErrNotIPFS
	}
	urls := make([]string, 0, len(r.Gateways))
	for _, gw := range r.Gateways {
		urls = append(urls, ResolveToHTTP(s, gw))
	}
	return urls, nil
}
