// Package storetest holds the behavioural tests every sessionstore.Store
// implementation must pass.
package storetest

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/session-service/internal/core/sessionstore"
)

// Harness describes a store under test.
type Harness struct {
	// New returns an empty store. Cleanup is the caller's job.
	New func(t *testing.T) sessionstore.Store

	// Advance makes d pass for the store's TTL clock.
	Advance func(t *testing.T, d time.Duration)

	// ShortTTL is the TTL used by expiry tests. It must be honoured by
	// Advance(ShortTTL * 2).
	ShortTTL time.Duration
}

func record(id, userID, payload string) *sessionstore.Record {
	return &sessionstore.Record{ID: id, UserID: userID, Payload: []byte(payload)}
}

// Run runs the whole suite.
func Run(t *testing.T, h Harness) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, h) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, h) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, h) })
	t.Run("CreateKeepsVersion", func(t *testing.T) { testCreateKeepsVersion(t, h) })
	t.Run("SaveBumpsVersion", func(t *testing.T) { testSaveBumpsVersion(t, h) })
	t.Run("SaveConflict", func(t *testing.T) { testSaveConflict(t, h) })
	t.Run("SaveMissing", func(t *testing.T) { testSaveMissing(t, h) })
	t.Run("ConcurrentSave", func(t *testing.T) { testConcurrentSave(t, h) })
	t.Run("Expiry", func(t *testing.T) { testExpiry(t, h) })
	t.Run("Touch", func(t *testing.T) { testTouch(t, h) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, h) })
	t.Run("ListByUser", func(t *testing.T) { testListByUser(t, h) })
	t.Run("DeleteByUser", func(t *testing.T) { testDeleteByUser(t, h) })
	t.Run("Ping", func(t *testing.T) { assert.NoError(t, h.New(t).Ping(context.Background())) })
}

func testCreateAndGet(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	rec := record("s-1", "u-1", "payload")
	require.NoError(t, s.Create(ctx, rec, time.Minute))
	assert.Equal(t, int64(1), rec.Version)

	got, err := s.Get(ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s-1", got.ID)
	assert.Equal(t, "u-1", got.UserID)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, []byte("payload"), got.Payload)
	assert.False(t, got.ExpiresAt.IsZero())

	// Returned records are copies.
	got.Payload[0] = 'X'
	again, err := s.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), again.Payload)
}

func testGetMissing(t *testing.T, h Harness) {
	s := h.New(t)

	got, err := s.Get(context.Background(), "nope")

	assert.NoError(t, err)
	assert.Nil(t, got)
}

func testCreateDuplicate(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, record("s-1", "u-1", "a"), time.Minute))
	err := s.Create(ctx, record("s-1", "u-2", "b"), time.Minute)

	assert.ErrorIs(t, err, sessionstore.ErrExists)

	got, err := s.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got.Payload)
}

func testCreateKeepsVersion(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	rec := record("s-1", "u-1", "a")
	rec.Version = 7
	require.NoError(t, s.Create(ctx, rec, time.Minute))

	got, err := s.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Version)
}

func testSaveBumpsVersion(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	rec := record("s-1", "u-1", "v1")
	require.NoError(t, s.Create(ctx, rec, time.Minute))

	rec.Payload = []byte("v2")
	require.NoError(t, s.Save(ctx, rec, time.Minute))
	assert.Equal(t, int64(2), rec.Version)

	got, err := s.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, []byte("v2"), got.Payload)
}

func testSaveConflict(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, record("s-1", "u-1", "v1"), time.Minute))

	first, err := s.Get(ctx, "s-1")
	require.NoError(t, err)
	second, err := s.Get(ctx, "s-1")
	require.NoError(t, err)

	first.Payload = []byte("first")
	require.NoError(t, s.Save(ctx, first, time.Minute))

	second.Payload = []byte("second")
	err = s.Save(ctx, second, time.Minute)
	assert.ErrorIs(t, err, sessionstore.ErrVersionConflict)
	assert.Equal(t, int64(1), second.Version)

	got, err := s.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got.Payload)
}

func testSaveMissing(t *testing.T, h Harness) {
	s := h.New(t)

	rec := record("nope", "u-1", "x")
	rec.Version = 1
	err := s.Save(context.Background(), rec, time.Minute)

	assert.ErrorIs(t, err, sessionstore.ErrNotFound)
}

func testConcurrentSave(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, record("s-1", "u-1", "v1"), time.Minute))

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	start := make(chan struct{})

	for i := 0; i < writers; i++ {
		rec, err := s.Get(ctx, "s-1")
		require.NoError(t, err)

		wg.Add(1)
		go func(rec *sessionstore.Record) {
			defer wg.Done()
			<-start
			rec.Payload = []byte("writer")
			if err := s.Save(ctx, rec, time.Minute); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(rec)
	}
	close(start)
	wg.Wait()

	// Every writer read version 1; exactly one may win.
	assert.Equal(t, 1, successes)

	got, err := s.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func testExpiry(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, record("s-1", "u-1", "x"), h.ShortTTL))

	h.Advance(t, h.ShortTTL*2)

	got, err := s.Get(ctx, "s-1")
	assert.NoError(t, err)
	assert.Nil(t, got)

	ids, err := s.ListByUser(ctx, "u-1")
	assert.NoError(t, err)
	assert.Empty(t, ids)

	// The ID is free again.
	assert.NoError(t, s.Create(ctx, record("s-1", "u-1", "y"), time.Minute))
}

func testTouch(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, record("s-1", "u-1", "x"), h.ShortTTL))

	ok, err := s.Touch(ctx, "s-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	h.Advance(t, h.ShortTTL*2)

	got, err := s.Get(ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.Version)

	ok, err = s.Touch(ctx, "missing", time.Hour)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func testDelete(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, record("s-1", "u-1", "x"), time.Minute))

	deleted, err := s.Delete(ctx, "s-1")
	assert.NoError(t, err)
	assert.True(t, deleted)

	got, err := s.Get(ctx, "s-1")
	assert.NoError(t, err)
	assert.Nil(t, got)

	deleted, err = s.Delete(ctx, "s-1")
	assert.NoError(t, err)
	assert.False(t, deleted)

	ids, err := s.ListByUser(ctx, "u-1")
	assert.NoError(t, err)
	assert.Empty(t, ids)
}

func testListByUser(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, record("s-1", "u-1", "x"), time.Minute))
	require.NoError(t, s.Create(ctx, record("s-2", "u-1", "x"), time.Minute))
	require.NoError(t, s.Create(ctx, record("s-3", "u-2", "x"), time.Minute))

	ids, err := s.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	sort.Strings(ids)
	assert.Equal(t, []string{"s-1", "s-2"}, ids)

	ids, err = s.ListByUser(ctx, "nobody")
	assert.NoError(t, err)
	assert.Empty(t, ids)
}

func testDeleteByUser(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, record("s-1", "u-1", "x"), time.Minute))
	require.NoError(t, s.Create(ctx, record("s-2", "u-1", "x"), time.Minute))
	require.NoError(t, s.Create(ctx, record("s-3", "u-2", "x"), time.Minute))

	n, err := s.DeleteByUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := s.Get(ctx, "s-3")
	require.NoError(t, err)
	assert.NotNil(t, got)

	n, err = s.DeleteByUser(ctx, "u-1")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
