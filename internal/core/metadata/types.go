package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Metadata is a best-effort view of an ERC721 metadata document. Only name,
// description and image are interpreted; every other field is kept verbatim in Extra.
type Metadata struct {
	Extra       map[string]json.RawMessage `json:"-"`
	Name        string                     `json:"name,omitempty"`
	Description string                     `json:"description,omitempty"`
	Image       string                     `json:"image,omitempty"`
}

// IsEmpty reports whether none of the interpreted fields are set.
func (m Metadata) IsEmpty() bool {
	return m.Name == "" && m.Description == "" && m.Image == "" && len(m.Extra) == 0
}

// UnmarshalJSON accepts any JSON object. Non-string name/description/image values
// (numbers are common) are kept in their literal JSON form.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return fmt.Errorf("%w: expected a JSON object", ErrNonJSONResponse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*m = Metadata{}
	for key, raw := range fields {
		switch key {
		case "name":
			m.Name = rawString(raw)
		case "description":
			m.Description = rawString(raw)
		case "image":
			m.Image = rawString(raw)
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]json.RawMessage)
			}
			m.Extra[key] = raw
		}
	}
	return nil
}

// MarshalJSON writes the interpreted fields alongside Extra.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.Extra)+3)
	for k, v := range m.Extra {
		out[k] = v
	}
	for key, val := range map[string]string{"name": m.Name, "description": m.Description, "image": m.Image} {
		if val == "" {
			continue
		}
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		out[key] = b
	}
	return json.Marshal(out)
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	return string(trimmed)
}
