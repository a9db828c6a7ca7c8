// Package webhook authenticates and routes GitHub webhook deliveries.
//
// This package provides:
//   - HMAC signature verification over the raw request bytes (sha1 and sha256)
//   - Request decoding that keeps the exact received bytes next to the parsed body
//   - An immutable registry mapping event types to handlers
//   - A dispatcher that forwards handler results and errors unchanged
//
// Unsigned deliveries are reported as NoSignature rather than rejected. The
// HTTP layer decides whether to let them through.
package webhook
