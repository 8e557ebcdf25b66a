package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "restream"

// RedisSessionStore keeps the registry in Redis so several orchestrator
// processes share one view of running sessions. Each session is a JSON
// value under {prefix}:session:{id}; the set {prefix}:sessions indexes ids.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// ConnectRedis parses a redis:// URL and pings the server.
func ConnectRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// NewRedisSessionStore wraps client. A ttl of zero keeps records until they
// are removed.
func NewRedisSessionStore(client *redis.Client, prefix string, ttl time.Duration) *RedisSessionStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisSessionStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSessionStore) sessionKey(id SessionID) string {
	return s.prefix + ":session:" + string(id)
}

func (s *RedisSessionStore) indexKey() string {
	return s.prefix + ":sessions"
}

// Get implements SessionStore.Get.
func (s *RedisSessionStore) Get(ctx context.Context, id SessionID) (*Session, bool, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get session %s: %w", ErrRegistryUnavailable, id, err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, false, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, true, nil
}

// Put implements SessionStore.Put.
func (s *RedisSessionStore) Put(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(sess.ID), data, s.ttl)
		pipe.SAdd(ctx, s.indexKey(), string(sess.ID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: put session %s: %w", ErrRegistryUnavailable, sess.ID, err)
	}
	return nil
}

// Remove implements SessionStore.Remove.
func (s *RedisSessionStore) Remove(ctx context.Context, id SessionID) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(id))
		pipe.SRem(ctx, s.indexKey(), string(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: remove session %s: %w", ErrRegistryUnavailable, id, err)
	}
	return nil
}

// List implements SessionStore.List. Index entries whose record expired are
// pruned on the way.
func (s *RedisSessionStore) List(ctx context.Context) ([]*Session, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %w", ErrRegistryUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(SessionID(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: load sessions: %w", ErrRegistryUnavailable, err)
	}

	out := make([]*Session, 0, len(values))
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var sess Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", ids[i], err)
		}
		out = append(out, &sess)
	}
	if len(stale) > 0 {
		_ = s.client.SRem(ctx, s.indexKey(), stale...).Err()
	}
	return out, nil
}

// Ping reports whether Redis is reachable.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
