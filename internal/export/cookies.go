package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PayloadKind tags the shape of a stored cookie field.
type PayloadKind int

const (
	// PayloadRaw is text that is not a JSON array or object. It is exported
	// unchanged, except that a JSON string is unquoted when its content is
	// not JSON itself.
	PayloadRaw PayloadKind = iota
	// PayloadList is a JSON array, exported compacted.
	PayloadList
	// PayloadBag is a JSON object, possibly wrapping a "cookies" array.
	PayloadBag
)

// Payload is a parsed cookie field.
type Payload struct {
	Kind PayloadKind
	Text string // PayloadRaw: the export value

	compact []byte                     // PayloadList, PayloadBag
	fields  map[string]json.RawMessage // PayloadBag
}

// Cookie is the normalized cookie shape written to exports.
type Cookie struct {
	Name     any    `json:"name"`
	Value    any    `json:"value"`
	Domain   string `json:"domain"`
	Path     any    `json:"path"`
	HTTPOnly string `json:"httpOnly"`
	Secure   string `json:"secure"`
	Session  string `json:"session"`
	Expires  any    `json:"expires"`
	SameSite string `json:"sameSite"`
}

// ParseCookies classifies a stored cookie field.
func ParseCookies(raw string) Payload {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return Payload{Kind: PayloadRaw, Text: raw}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(trimmed)); err != nil {
		return Payload{Kind: PayloadRaw, Text: raw}
	}

	switch trimmed[0] {
	case '[':
		return Payload{Kind: PayloadList, compact: buf.Bytes()}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
			return Payload{Kind: PayloadRaw, Text: raw}
		}
		return Payload{Kind: PayloadBag, compact: buf.Bytes(), fields: fields}
	case '"':
		// Unquoting JSON content would let a second pass reparse it.
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err == nil && !json.Valid([]byte(strings.TrimSpace(s))) {
			return Payload{Kind: PayloadRaw, Text: s}
		}
	}
	return Payload{Kind: PayloadRaw, Text: raw}
}

// Normalize renders the export value. A bag whose "cookies" array holds
// entries for domain is reduced to those entries in the Cookie shape; every
// other shape is passed through.
func (p Payload) Normalize(domain string) string {
	switch p.Kind {
	case PayloadList:
		return string(p.compact)
	case PayloadBag:
		rawCookies, ok := p.fields["cookies"]
		if !ok {
			return string(p.compact)
		}
		cookies, err := normalizeCookies(rawCookies, domain)
		if err != nil || len(cookies) == 0 {
			return string(p.compact)
		}
		out, err := marshalCompact(cookies)
		if err != nil {
			return string(p.compact)
		}
		return out
	default:
		return p.Text
	}
}

// TransformCookies normalizes a stored cookie field for export. Applying it
// to its own output returns the output unchanged.
func TransformCookies(raw, domain string) string {
	return ParseCookies(raw).Normalize(domain)
}

func normalizeCookies(raw json.RawMessage, domain string) ([]Cookie, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var entries []any
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode cookies: %w", err)
	}

	var out []Cookie
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		d, _ := entry["domain"].(string)
		if d == "" || !strings.Contains(d, domain) {
			continue
		}
		c := Cookie{
			Name:     orEmpty(entry["name"]),
			Value:    orEmpty(entry["value"]),
			Domain:   d,
			Path:     orEmpty(entry["path"]),
			HTTPOnly: flag(entry["httpOnly"]),
			Secure:   flag(entry["secure"]),
			Session:  flag(entry["session"]),
			Expires:  "",
			SameSite: "unspecified",
		}
		if !falsy(entry["expires"]) {
			c.Expires = entry["expires"]
		}
		out = append(out, c)
	}
	return out, nil
}

func marshalCompact(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// falsy mirrors loose truthiness of decoded JSON values.
func falsy(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case string:
		return x == ""
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == 0
	}
	return false
}

func text(v any) string {
	if falsy(v) {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}

// orEmpty keeps a decoded value as-is, or "" when it is falsy.
func orEmpty(v any) any {
	if falsy(v) {
		return ""
	}
	return v
}

// flag stringifies a boolean-ish value as lower-case text, "false" when unset.
func flag(v any) string {
	if falsy(v) {
		return "false"
	}
	return strings.ToLower(text(v))
}
