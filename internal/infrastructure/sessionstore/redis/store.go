package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unifiedui/session-service/internal/core/sessionstore"
)

// DefaultKeyPrefix namespaces every key the store writes.
const DefaultKeyPrefix = "sess:"

// Config holds Redis store configuration.
type Config struct {
	KeyPrefix  string
	DefaultTTL time.Duration

	// IndexTTL is applied to a user's index set whenever a session is
	// created for that user. It must be at least the longest lifetime a
	// session can have, so the index outlives every member. Zero keeps
	// index sets until they are emptied.
	IndexTTL time.Duration
}

// envelope is the stored form of a record.
type envelope struct {
	UserID  string `json:"u"`
	Version int64  `json:"v"`
	Payload []byte `json:"p"`
}

// Store implements sessionstore.Store for Redis.
//
// Layout: "<prefix>s:<id>" holds a JSON envelope with the record TTL;
// "<prefix>u:<userID>" is a set of the user's session IDs.
type Store struct {
	client     *goredis.Client
	prefix     string
	defaultTTL time.Duration
	indexTTL   time.Duration
	ownsClient bool
}

var _ sessionstore.Store = (*Store)(nil)

// NewStore creates a store that owns a new connection.
func NewStore(conn ConnConfig, cfg Config) (*Store, error) {
	client, err := Connect(conn)
	if err != nil {
		return nil, err
	}
	s := NewStoreWithClient(client, cfg)
	s.ownsClient = true
	return s, nil
}

// NewStoreWithClient creates a store on an existing client. Close does not
// close the client.
func NewStoreWithClient(client *goredis.Client, cfg Config) *Store {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{
		client:     client,
		prefix:     prefix,
		defaultTTL: cfg.DefaultTTL,
		indexTTL:   cfg.IndexTTL,
	}
}

func (s *Store) sessionKey(id string) string {
	return s.prefix + "s:" + id
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

func (s *Store) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return s.defaultTTL
	}
	return ttl
}

func encode(rec *sessionstore.Record, version int64) ([]byte, error) {
	data, err := json.Marshal(envelope{UserID: rec.UserID, Version: version, Payload: rec.Payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode session %s: %w", rec.ID, err)
	}
	return data, nil
}

func decode(id string, data []byte) (*sessionstore.Record, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &sessionstore.Record{
		ID:      id,
		UserID:  env.UserID,
		Version: env.Version,
		Payload: env.Payload,
	}, nil
}

// Get retrieves a record together with its remaining TTL.
func (s *Store) Get(ctx context.Context, id string) (*sessionstore.Record, error) {
	key := s.sessionKey(id)

	var (
		get *goredis.StringCmd
		ttl *goredis.DurationCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		get = pipe.Get(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}

	data, err := get.Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}

	rec, err := decode(id, data)
	if err != nil {
		return nil, err
	}
	if remaining := ttl.Val(); remaining > 0 {
		rec.ExpiresAt = time.Now().Add(remaining)
	}
	return rec, nil
}

// Create inserts rec with SET NX and adds it to the user's index.
func (s *Store) Create(ctx context.Context, rec *sessionstore.Record, ttl time.Duration) error {
	version := rec.Version
	if version == 0 {
		version = 1
	}

	data, err := encode(rec, version)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.sessionKey(rec.ID), data, s.ttl(ttl)).Result()
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", rec.ID, err)
	}
	if !ok {
		return sessionstore.ErrExists
	}
	rec.Version = version

	if rec.UserID == "" {
		return nil
	}
	userKey := s.userKey(rec.UserID)
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.SAdd(ctx, userKey, rec.ID)
		if s.indexTTL > 0 {
			pipe.Expire(ctx, userKey, s.indexTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index session %s: %w", rec.ID, err)
	}
	return nil
}

// Save replaces rec under WATCH so a concurrent writer makes it fail with
// ErrVersionConflict instead of being overwritten.
func (s *Store) Save(ctx context.Context, rec *sessionstore.Record, ttl time.Duration) error {
	key := s.sessionKey(rec.ID)
	var next int64

	txf := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return sessionstore.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read session %s: %w", rec.ID, err)
		}

		cur, err := decode(rec.ID, data)
		if err != nil {
			return err
		}
		if cur.Version != rec.Version {
			return sessionstore.ErrVersionConflict
		}

		next = cur.Version + 1
		out, err := encode(rec, next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.ttl(ttl))
			if cur.UserID != rec.UserID {
				if cur.UserID != "" {
					pipe.SRem(ctx, s.userKey(cur.UserID), rec.ID)
				}
				if rec.UserID != "" {
					pipe.SAdd(ctx, s.userKey(rec.UserID), rec.ID)
				}
			}
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, key)
	switch {
	case err == nil:
		rec.Version = next
		return nil
	case errors.Is(err, goredis.TxFailedErr):
		return sessionstore.ErrVersionConflict
	case errors.Is(err, sessionstore.ErrNotFound), errors.Is(err, sessionstore.ErrVersionConflict):
		return err
	default:
		return fmt.Errorf("failed to save session %s: %w", rec.ID, err)
	}
}

// Touch resets the TTL with EXPIRE.
func (s *Store) Touch(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	key := s.sessionKey(id)

	ttl = s.ttl(ttl)
	if ttl <= 0 {
		n, err := s.client.Exists(ctx, key).Result()
		if err != nil {
			return false, fmt.Errorf("failed to touch session %s: %w", id, err)
		}
		return n > 0, nil
	}

	ok, err := s.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to touch session %s: %w", id, err)
	}
	return ok, nil
}

// Delete removes a record and its index entry.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}

	key := s.sessionKey(id)
	var del *goredis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, key)
		if rec != nil && rec.UserID != "" {
			pipe.SRem(ctx, s.userKey(rec.UserID), id)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return del.Val() > 0, nil
}

// ListByUser returns the user's live session IDs and prunes the index.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]string, error) {
	userKey := s.userKey(userID)

	ids, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions of user %s: %w", userID, err)
	}
	if len(ids) == 0 {
		return ids, nil
	}

	gets := make([]*goredis.StringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range ids {
			gets[i] = pipe.Get(ctx, s.sessionKey(id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("failed to list sessions of user %s: %w", userID, err)
	}

	live := make([]string, 0, len(ids))
	var stale []interface{}
	for i, id := range ids {
		data, err := gets[i].Bytes()
		if err != nil {
			stale = append(stale, id)
			continue
		}
		rec, err := decode(id, data)
		if err != nil || rec.UserID != userID {
			stale = append(stale, id)
			continue
		}
		live = append(live, id)
	}

	if len(stale) > 0 {
		if err := s.client.SRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune index of user %s: %w", userID, err)
		}
	}
	return live, nil
}

// DeleteByUser removes every listed session of the user. Only the listed IDs
// leave the index, so a session created meanwhile stays revocable.
func (s *Store) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	ids, err := s.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids))
	members := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.sessionKey(id))
		members = append(members, id)
	}

	var del *goredis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, keys...)
		pipe.SRem(ctx, s.userKey(userID), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions of user %s: %w", userID, err)
	}
	return del.Val(), nil
}

// Ping checks if the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection if the store opened it.
func (s *Store) Close() error {
	if !s.ownsClient {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis connection: %w", err)
	}
	return nil
}

// Client returns the underlying Redis client.
func (s *Store) Client() *goredis.Client {
	return s.client
}
