// Package env resolves secret references from environment variables and
// mounted secret files.
package env

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/unifiedui/session-service/internal/core/secrets"
)

const (
	envScheme  = "env://"
	fileScheme = "file://"
)

// Resolver implements secrets.Resolver. Resolved file secrets are memoized;
// environment lookups are not, so tests can change them.
type Resolver struct {
	mu    sync.RWMutex
	files map[string]string
}

// NewResolver creates a new Resolver.
func NewResolver() *Resolver {
	return &Resolver{
		files: make(map[string]string),
	}
}

// Resolve returns the value a reference points at.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, envScheme):
		key := strings.TrimPrefix(ref, envScheme)
		if value := os.Getenv(key); value != "" {
			return value, nil
		}
		return "", fmt.Errorf("%w: %s", secrets.ErrNotFound, key)

	case strings.HasPrefix(ref, fileScheme):
		path := strings.TrimPrefix(ref, fileScheme)
		return r.readFile(path)

	default:
		return ref, nil
	}
}

func (r *Resolver) readFile(path string) (string, error) {
	r.mu.RLock()
	value, ok := r.files[path]
	r.mu.RUnlock()
	if ok {
		return value, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", secrets.ErrNotFound, path)
		}
		return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
	}

	value = strings.TrimSpace(string(data))

	r.mu.Lock()
	r.files[path] = value
	r.mu.Unlock()

	return value, nil
}
