package webhook

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/google/uuid"
)

var (
	// ErrPayloadTooLarge is returned when the body exceeds the read limit.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrEmptyPayload is returned when the request carries no body.
	ErrEmptyPayload = errors.New("empty payload")
)

var (
	eventTypeHeader    = strings.ToLower(github.EventTypeHeader)
	deliveryIDHeader   = strings.ToLower(github.DeliveryIDHeader)
	signatureHeader    = strings.ToLower(github.SHA1SignatureHeader)
	signature256Header = strings.ToLower(github.SHA256SignatureHeader)
)

// Request is an inbound webhook call. RawBody holds the exact bytes that
// were received; signatures are computed over them, never over Body.
type Request struct {
	Headers map[string]string
	RawBody []byte
	Body    *Body

	deliveryID string
}

// ReadRequest reads at most maxBytes of r's body and decodes it. Form-encoded
// deliveries carry the JSON document in the "payload" field.
func ReadRequest(r *http.Request, maxBytes int64) (*Request, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	if int64(len(raw)) > maxBytes {
		return nil, ErrPayloadTooLarge
	}
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}

	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[strings.ToLower(name)] = values[0]
		}
	}

	document := raw
	mediaType, _, _ := mime.ParseMediaType(headers["content-type"])
	if mediaType == "application/x-www-form-urlencoded" {
		form, err := url.ParseQuery(string(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid form payload: %w", err)
		}
		document = []byte(form.Get("payload"))
	}

	body, err := ParseBody(document)
	if err != nil {
		return nil, err
	}

	deliveryID := headers[deliveryIDHeader]
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}

	return &Request{Headers: headers, RawBody: raw, Body: body, deliveryID: deliveryID}, nil
}

// Header returns the value of a header by case-insensitive name.
func (r *Request) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// EventType returns the X-GitHub-Event header.
func (r *Request) EventType() string {
	return r.Headers[eventTypeHeader]
}

// DeliveryID returns the X-GitHub-Delivery header, or a generated ID when
// the sender did not provide one.
func (r *Request) DeliveryID() string {
	return r.deliveryID
}

// Signature returns the strongest signature header present.
func (r *Request) Signature() string {
	if sig := r.Headers[signature256Header]; sig != "" {
		return sig
	}
	return r.Headers[signatureHeader]
}

// Verify checks the request signature against secret.
func (r *Request) Verify(secret []byte) Verification {
	return Verify(r.RawBody, r.Signature(), secret)
}
