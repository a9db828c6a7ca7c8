package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"
)

const (
	SHA1Prefix   = "sha1="
	SHA256Prefix = "sha256="
)

// Verification is the outcome of checking a payload signature.
type Verification int

const (
	// NoSignature means the sender did not sign the request.
	NoSignature Verification = iota
	Valid
	Invalid
)

func (v Verification) String() string {
	switch v {
	case NoSignature:
		return "no_signature"
	case Valid:
		return "valid"
	default:
		return "invalid"
	}
}

// Verify checks a GitHub webhook signature ("sha1=<hex>" or "sha256=<hex>")
// against the raw payload bytes. An empty signature yields NoSignature.
func Verify(payload []byte, signature string, secret []byte) Verification {
	if signature == "" {
		return NoSignature
	}

	var expected string
	switch {
	case strings.HasPrefix(signature, SHA1Prefix):
		expected = sign(sha1.New, SHA1Prefix, payload, secret)
	case strings.HasPrefix(signature, SHA256Prefix):
		expected = sign(sha256.New, SHA256Prefix, payload, secret)
	default:
		return Invalid
	}

	// Constant-time comparison to prevent timing attacks
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return Invalid
	}
	return Valid
}

// Sign returns the X-Hub-Signature header value for payload.
func Sign(payload, secret []byte) string {
	return sign(sha1.New, SHA1Prefix, payload, secret)
}

// Sign256 returns the X-Hub-Signature-256 header value for payload.
func Sign256(payload, secret []byte) string {
	return sign(sha256.New, SHA256Prefix, payload, secret)
}

func sign(h func() hash.Hash, prefix string, payload, secret []byte) string {
	mac := hmac.New(h, secret)
	mac.Write(payload)
	return prefix + hex.EncodeToString(mac.Sum(nil))
}
