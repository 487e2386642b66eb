// Package identity defines the identity fetch collaborator consumed by the
// login form: an asynchronous capability that resolves submitted credentials
// into a user identity payload.
package identity

import "context"

// Credentials are the form field values submitted by the user.
type Credentials struct {
	Username string
	Password string
}

// Identity is the payload resolved by a successful fetch.
// The login form reads only Name.
type Identity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Fetcher resolves credentials into an identity, or fails.
// Implementations must respect ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, creds Credentials) (Identity, error)
}
