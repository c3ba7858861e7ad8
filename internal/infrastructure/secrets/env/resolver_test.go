package env_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/session-service/internal/core/secrets"
	"github.com/unifiedui/session-service/internal/infrastructure/secrets/env"
)

func TestResolver_Literal(t *testing.T) {
	r := env.NewResolver()

	value, err := r.Resolve(context.Background(), "plain-value")

	assert.NoError(t, err)
	assert.Equal(t, "plain-value", value)
}

func TestResolver_Env(t *testing.T) {
	t.Setenv("TEST_SESSION_SECRET", "from-env")
	r := env.NewResolver()

	value, err := r.Resolve(context.Background(), "env://TEST_SESSION_SECRET")

	assert.NoError(t, err)
	assert.Equal(t, "from-env", value)
}

func TestResolver_EnvMissing(t *testing.T) {
	r := env.NewResolver()

	value, err := r.Resolve(context.Background(), "env://TEST_SESSION_SECRET_MISSING")

	assert.ErrorIs(t, err, secrets.ErrNotFound)
	assert.Empty(t, value)
}

func TestResolver_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(path, []byte("file-secret\n"), 0o600))
	r := env.NewResolver()

	value, err := r.Resolve(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "file-secret", value)

	// Memoized: removing the file does not change the answer.
	require.NoError(t, os.Remove(path))
	value, err = r.Resolve(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "file-secret", value)
}

func TestResolver_FileMissing(t *testing.T) {
	r := env.NewResolver()

	_, err := r.Resolve(context.Background(), "file://"+filepath.Join(t.TempDir(), "nope"))

	assert.ErrorIs(t, err, secrets.ErrNotFound)
}
