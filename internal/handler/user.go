// Package handler implements the repository, check and webhook behaviour
// behind the HTTP API.
package handler

import "checkhub/internal/ghclient"

// User is an authenticated API caller. Client acts on GitHub with the
// caller's own token.
type User struct {
	Login  string
	Client ghclient.Client
}
