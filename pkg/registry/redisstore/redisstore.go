// Package redisstore is a Redis registry.Store.
//
// Each record is a JSON value under "<prefix>session:<id>", indexed by
// "<prefix>token:<hash>" and by the set "<prefix>user:<id>" of the user's
// active session ids. Keys expire Retention after the session does.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/sessionkit/pkg/registry"
)

const (
	DefaultPrefix    = "sessionkit:"
	DefaultRetention = 24 * time.Hour
)

// Store persists session records in Redis.
type Store struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

var _ registry.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithRetention sets how long records outlive their expiry. Zero keeps them forever.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// New creates a Store over client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:    client,
		prefix:    DefaultPrefix,
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Create(ctx context.Context, rec registry.Record) error {
	if rec.ID == "" || rec.TokenHash == "" {
		return registry.ErrInvalidRequest
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ttl := s.ttl(rec)

	ok, err := s.client.SetNX(ctx, s.tokenKey(rec.TokenHash), rec.ID, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return registry.ErrDuplicate
	}
	ok, err = s.client.SetNX(ctx, s.sessionKey(rec.ID), data, ttl).Result()
	if err != nil || !ok {
		_ = s.client.Del(ctx, s.tokenKey(rec.TokenHash)).Err()
		if err != nil {
			return err
		}
		return registry.ErrDuplicate
	}

	if rec.Active {
		if err := s.client.SAdd(ctx, s.userKey(rec.UserID), rec.ID).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (registry.Record, error) {
	data, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return registry.Record{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.Record{}, err
	}
	var rec registry.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return registry.Record{}, err
	}
	return rec, nil
}

func (s *Store) GetByTokenHash(ctx context.Context, hash string) (registry.Record, error) {
	id, err := s.client.Get(ctx, s.tokenKey(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return registry.Record{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.Record{}, err
	}
	return s.Get(ctx, id)
}

func (s *Store) Update(ctx context.Context, rec registry.Record) error {
	prev, err := s.Get(ctx, rec.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ttl := s.ttl(rec)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(rec.ID), data, ttl)
		if prev.TokenHash != rec.TokenHash {
			pipe.Del(ctx, s.tokenKey(prev.TokenHash))
		}
		pipe.Set(ctx, s.tokenKey(rec.TokenHash), rec.ID, ttl)
		if rec.Active {
			pipe.SAdd(ctx, s.userKey(rec.UserID), rec.ID)
		} else {
			pipe.SRem(ctx, s.userKey(rec.UserID), rec.ID)
		}
		if prev.UserID != rec.UserID {
			pipe.SRem(ctx, s.userKey(prev.UserID), rec.ID)
		}
		return nil
	})
	return err
}

func (s *Store) ListActiveByUser(ctx context.Context, userID string) ([]registry.Record, error) {
	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var (
		out   []registry.Record
		stale []any
	)
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var rec registry.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, err
		}
		if !rec.Active {
			stale = append(stale, ids[i])
			continue
		}
		out = append(out, rec)
	}
	if len(stale) > 0 {
		_ = s.client.SRem(ctx, s.userKey(userID), stale...).Err()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ttl(rec registry.Record) time.Duration {
	if s.retention <= 0 {
		return 0
	}
	return max(rec.ExpiresAt.Sub(s.now()), 0) + s.retention
}

func (s *Store) sessionKey(id string) string  { return s.prefix + "session:" + id }
func (s *Store) tokenKey(hash string) string  { return s.prefix + "token:" + hash }
func (s *Store) userKey(userID string) string { return s.prefix + "user:" + userID }
