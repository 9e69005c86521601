package metadata

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var dataURIPattern = regexp.MustCompile(`(?is)^data:application/json(?:;charset=[^;,]+)?(;base64)?,(.*)$`)

// envelopeKeys are the keys of a JSON object that only wraps a URI. Such objects go
// through normalization instead of being treated as inline metadata.
var envelopeKeys = map[string]bool{"uri": true, "url": true}

// parseInline recognises metadata carried inside the token URI itself: a JSON object
// literal or a data:application/json URI. handled is false when raw must be fetched.
//
// Detection runs on the lightly unquoted input because full normalization strips
// trailing braces and would mangle the payload.
func parseInline(raw string) (md Metadata, handled bool, err error) {
	s := strings.TrimSpace(raw)
	for i := 0; i < 3; i++ {
		if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
			s = strings.TrimSpace(s[1 : len(s)-1])
			continue
		}
		break
	}

	if strings.HasPrefix(s, "{") {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(s), &fields); err != nil {
			// Escaped quotes are common in hand-built tokenURIs.
			unescaped := strings.ReplaceAll(s, `\"`, `"`)
			if json.Unmarshal([]byte(unescaped), &fields) != nil {
				return Metadata{}, false, nil
			}
			s = unescaped
		}
		if isEnvelope(fields) {
			return Metadata{}, false, nil
		}
		if err := json.Unmarshal([]byte(s), &md); err != nil {
			return Metadata{}, true, fmt.Errorf("%w: inline metadata: %v", ErrDecode, err)
		}
		return md, true, nil
	}

	if len(s) >= 5 && strings.EqualFold(s[:5], "data:") {
		md, err := decodeDataURI(s)
		return md, true, err
	}

	return Metadata{}, false, nil
}

func isEnvelope(fields map[string]json.RawMessage) bool {
	if len(fields) == 0 {
		return false
	}
	for k := range fields {
		if !envelopeKeys[k] {
			return false
		}
	}
	return true
}

// decodeDataURI decodes a data:application/json URI, base64 or percent-encoded.
func decodeDataURI(s string) (Metadata, error) {
	m := dataURIPattern.FindStringSubmatch(s)
	if m == nil {
		return Metadata{}, fmt.Errorf("%w: unsupported media type", ErrInvalidDataURI)
	}

	var payload []byte
	if m[1] != "" {
		b, err := decodeBase64(m[2])
		if err != nil {
			return Metadata{}, fmt.Errorf("%w: %w: base64 payload: %v", ErrInvalidDataURI, ErrDecode, err)
		}
		payload = b
	} else {
		text, err := url.PathUnescape(m[2])
		if err != nil {
			return Metadata{}, fmt.Errorf("%w: %w: percent-encoded payload: %v", ErrInvalidDataURI, ErrDecode, err)
		}
		payload = []byte(text)
	}

	var md Metadata
	if err := json.Unmarshal(payload, &md); err != nil {
		return Metadata{}, fmt.Errorf("%w: %w", ErrInvalidDataURI, err)
	}
	return md, nil
}

// decodeBase64 accepts padded, unpadded and URL-safe encodings.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
