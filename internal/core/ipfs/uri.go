// Package ipfs turns untrusted token URI strings into canonical IPFS/HTTP references
// and maps them onto public HTTP gateways.
//
// Token contracts in the wild return tokenURI values that are quoted, percent-encoded,
// wrapped in array literals or embedded in JSON blobs. Normalize peels those layers in
// a fixed order and never fails; ResolveToHTTP then maps the canonical form to a
// gateway URL.
package ipfs

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var ipfsRefPattern = regexp.MustCompile(`ipfs://[A-Za-z0-9._\-/]+`)

// Normalize returns the canonical form of a raw token URI: an ipfs:// URI, a bare CID,
// a data: URI, or a plain URL, with wrapping quotes, brackets and JSON envelopes removed.
// Empty input yields empty output. Decode failures keep the value seen before decoding.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.Contains(s, "%22") || strings.Contains(s, "%27") {
		if dec, err := url.PathUnescape(s); err == nil && dec != "" {
			s = strings.TrimSpace(dec)
		}
	}

	for i := 0; i < 3; i++ {
		var ok bool
		if s, ok = unquoteOnce(s); !ok {
			break
		}
	}

	if strings.Contains(s, `\"`) {
		s = strings.ReplaceAll(s, `\"`, `"`)
	}
	if strings.Contains(s, `\'`) {
		s = strings.ReplaceAll(s, `\'`, `'`)
	}

	for _, q := range []string{"%22", "%27"} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			s = strings.TrimSpace(s[len(q) : len(s)-len(q)])
		}
	}

	if len(s) >= 2 && strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for i := 0; i < 2; i++ {
		if !strings.HasPrefix(s, "[") && !strings.HasPrefix(s, "{") {
			break
		}
		inner, ok := unwrapJSON(s)
		if !ok {
			break
		}
		s = strings.TrimSpace(inner)
	}

	for i := 0; i < 2; i++ {
		s, _ = unquoteOnce(s)
	}

	for s != "" && strings.ContainsRune(`"'[{(`, rune(s[0])) {
		s = strings.TrimSpace(s[1:])
	}
	for s != "" && strings.ContainsRune(`"'])`, rune(s[len(s)-1])) {
		s = strings.TrimSpace(s[:len(s)-1])
	}

	if strings.Contains(s, "ipfs:/") {
		s = RepairScheme(s)
		if m := ipfsRefPattern.FindString(s); m != "" {
			s = m
		}
	}

	for s != "" && strings.ContainsRune(`)]}"'`, rune(s[len(s)-1])) {
		s = strings.TrimSpace(s[:len(s)-1])
	}

	return s
}

// RepairScheme rewrites every malformed single-slash "ipfs:/x" into "ipfs://x".
func RepairScheme(s string) string {
	const scheme = "ipfs:/"
	if !strings.Contains(s, scheme) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for {
		i := strings.Index(s, scheme)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i+len(scheme)])
		s = s[i+len(scheme):]
		if !strings.HasPrefix(s, "/") {
			b.WriteByte('/')
		}
	}
}

// unquoteOnce strips one layer of symmetric single or double quotes.
func unquoteOnce(s string) (string, bool) {
	if s == "" {
		return s, false
	}
	for _, q := range []byte{'"', '\''} {
		if s[0] == q && s[len(s)-1] == q {
			if len(s) == 1 {
				return "", true
			}
			return strings.TrimSpace(s[1 : len(s)-1]), true
		}
	}
	return s, false
}

// unwrapJSON parses a JSON array or object and pulls out the URI-bearing value:
// element 0 of an array, or uri/url/image (first non-null) of an object.
func unwrapJSON(s string) (string, bool) {
	var parsed any
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return "", false
	}
	switch v := parsed.(type) {
	case []any:
		if len(v) == 0 {
			return "", true
		}
		return stringify(v[0]), true
	case map[string]any:
		for _, key := range []string{"uri", "url", "image"} {
			if val, ok := v[key]; ok && val != nil {
				return stringify(val), true
			}
		}
		return "", true
	default:
		return stringify(v), true
	}
}

// stringify coerces a decoded JSON value to a string. Nested containers are
// re-encoded so a following unwrap pass can descend into them.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
