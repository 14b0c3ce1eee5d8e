package common

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Loose is a decoded JSON object read with alias-tolerant accessors. Each
// accessor takes the accepted key spellings in priority order.
type Loose map[string]any

// DecodeLoose decodes raw into a Loose object, keeping numbers exact.
func DecodeLoose(raw []byte) (Loose, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("json body is null")
	}
	return Loose(obj), nil
}

// DecodeLooseValue decodes raw into any JSON value, keeping numbers exact.
func DecodeLooseValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Value returns the first non-null value among keys.
func (l Loose) Value(keys ...string) any {
	for _, key := range keys {
		if v, ok := l[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// String returns the first non-blank string or number among keys.
func (l Loose) String(keys ...string) string {
	for _, key := range keys {
		switch v := l[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// Money returns the first numeric value among keys rounded half away from
// zero. Numeric strings are accepted; anything else counts as absent.
func (l Loose) Money(keys ...string) (int64, bool) {
	for _, key := range keys {
		if v, ok := LooseNumber(l[key]); ok {
			return v, true
		}
	}
	return 0, false
}

// Object returns the first nested object among keys.
func (l Loose) Object(keys ...string) Loose {
	for _, key := range keys {
		if v, ok := l[key].(map[string]any); ok {
			return Loose(v)
		}
	}
	return nil
}

// List returns the first array among keys.
func (l Loose) List(keys ...string) []any {
	for _, key := range keys {
		if v, ok := l[key].([]any); ok {
			return v
		}
	}
	return nil
}

// LooseNumber converts a JSON number or numeric string to a whole number.
func LooseNumber(v any) (int64, bool) {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	default:
		return 0, false
	}
	if s == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.Round(0).IntPart(), true
}
