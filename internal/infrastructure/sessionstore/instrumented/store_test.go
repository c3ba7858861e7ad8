package instrumented_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/session-service/internal/core/sessionstore"
	"github.com/unifiedui/session-service/internal/core/sessionstore/storetest"
	"github.com/unifiedui/session-service/internal/infrastructure/sessionstore/instrumented"
	"github.com/unifiedui/session-service/internal/infrastructure/sessionstore/memory"
	"github.com/unifiedui/session-service/internal/metrics"
)

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, storetest.Harness{
		New: func(t *testing.T) sessionstore.Store {
			s := instrumented.Wrap(memory.NewStore(memory.Config{CleanupInterval: 10 * time.Millisecond}), "contract")
			t.Cleanup(func() { s.Close() })
			return s
		},
		Advance:  func(t *testing.T, d time.Duration) { time.Sleep(d) },
		ShortTTL: 30 * time.Millisecond,
	})
}

func TestStore_CountsResults(t *testing.T) {
	s := instrumented.Wrap(memory.NewStore(memory.Config{}), "counting")
	defer s.Close()
	ctx := context.Background()

	rec := &sessionstore.Record{ID: "s-1", UserID: "u-1"}
	require.NoError(t, s.Create(ctx, rec, time.Minute))
	assert.ErrorIs(t, s.Create(ctx, &sessionstore.Record{ID: "s-1"}, time.Minute), sessionstore.ErrExists)

	_, err := s.Get(ctx, "s-1")
	require.NoError(t, err)
	_, err = s.Get(ctx, "missing")
	require.NoError(t, err)

	stale := rec.Clone()
	require.NoError(t, s.Save(ctx, rec, time.Minute))
	assert.ErrorIs(t, s.Save(ctx, stale, time.Minute), sessionstore.ErrVersionConflict)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StoreOperations.WithLabelValues("counting", "create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StoreOperations.WithLabelValues("counting", "create", "exists")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StoreOperations.WithLabelValues("counting", "get", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StoreOperations.WithLabelValues("counting", "get", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StoreOperations.WithLabelValues("counting", "save", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StoreOperations.WithLabelValues("counting", "save", "conflict")))
}
