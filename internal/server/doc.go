// Package server implements the HTTP surface of checkhub.
//
// This package provides:
//   - GitHub webhook endpoint (/api/hook) with HMAC signature verification
//   - Repository and check endpoints authenticated with GitHub tokens
//   - A websocket stream of processed deliveries (/api/events)
//   - Per-IP rate limiting and structured request logging
//
// The server integrates with other packages:
//   - internal/webhook: request decoding, signatures and event dispatch
//   - internal/handler: repository, check and pull request handling
//   - internal/store: SQLite persistence of repositories and deliveries
//   - internal/stream: websocket fan-out of delivery outcomes
//
// Every error returned to a client is rendered as application/problem+json
// with the status code carried by the error.
package server
