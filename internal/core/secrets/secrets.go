// Package secrets defines how configuration secrets are resolved.
package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a reference points at nothing.
var ErrNotFound = errors.New("secret not found")

// Resolver turns a secret reference into its value.
//
// References look like "env://NAME" or "file:///run/secrets/name".
// Anything without a known scheme is returned as-is, so plain values keep
// working in development.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}
