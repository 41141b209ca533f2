package wordpress

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// EntityRef is the part of a listing item the resolver needs.
type EntityRef struct {
	ID   int    `json:"id"`
	Slug string `json:"slug"`
}

// Settings holds the fields read from /settings.
type Settings struct {
	ShowOnFront string  `json:"show_on_front"`
	PageOnFront FlexInt `json:"page_on_front"`
}

// Entity is a post, page or category as returned by a single-item GET.
// Fields absent for a given collection stay at their zero value.
type Entity struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	Parent      int    `json:"parent"`
	Meta        Meta   `json:"meta"`
}

// Meta keeps raw values so they can be echoed back untouched.
type Meta map[string]json.RawMessage

// UnmarshalJSON accepts an object. WordPress serialises an empty meta as [].
func (m *Meta) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		*m = Meta{}
		return nil
	}
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	*m = raw
	return nil
}

// String returns meta[key] when it holds a string, else "".
func (m Meta) String(key string) string {
	raw, ok := m[key]
	if !ok {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return value
}

// Object returns meta[key] when it holds an object, else nil.
func (m Meta) Object(key string) Meta {
	raw, ok := m[key]
	if !ok {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var obj Meta
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil
	}
	return obj
}

// FlexInt decodes a JSON number or numeric string; anything else is 0.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	trimmed := bytes.Trim(bytes.TrimSpace(data), `"`)
	n, err := strconv.Atoi(string(trimmed))
	if err != nil {
		*f = 0
		return nil
	}
	*f = FlexInt(n)
	return nil
}

// EncodeJSON marshals v without HTML escaping so script tags reach WordPress
// as written.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
