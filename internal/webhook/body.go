package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/google/go-github/v57/github"
)

// Body is a decoded webhook payload together with the JSON it was decoded
// from.
type Body struct {
	raw   []byte
	value any
}

// ParseBody decodes a JSON payload. Numbers are kept as json.Number so large
// IDs survive intact.
func ParseBody(raw []byte) (*Body, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid JSON payload: unexpected data after top-level value")
	}
	return &Body{raw: raw, value: value}, nil
}

// Raw returns the JSON bytes the body was decoded from.
func (b *Body) Raw() []byte {
	return b.raw
}

// Value returns the decoded payload.
func (b *Body) Value() any {
	return b.value
}

// Get walks nested objects along path. It returns false as soon as a key is
// missing or an intermediate value is not an object.
func (b *Body) Get(path ...string) (any, bool) {
	if b == nil {
		return nil, false
	}
	current := b.value
	for _, key := range path {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = object[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// String returns the string at path, or "" if absent.
func (b *Body) String(path ...string) string {
	v, _ := b.Get(path...)
	s, _ := v.(string)
	return s
}

// Int64 returns the integer at path.
func (b *Body) Int64(path ...string) (int64, bool) {
	v, ok := b.Get(path...)
	if !ok {
		return 0, false
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return i, true
}

// Decode unmarshals the raw payload into v.
func (b *Body) Decode(v any) error {
	return json.Unmarshal(b.raw, v)
}

// Event decodes the payload into the go-github type for eventType.
func (b *Body) Event(eventType string) (any, error) {
	return github.ParseWebHook(eventType, b.raw)
}
