package disambig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	keyPrefix  = "growen:disambig:"
	maxRetries = 3
)

// RedisStore shares clarification memory across replicas. Entries are JSON
// values with a PX expiry; flag transitions run in WATCH transactions.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to redisURL and pings it.
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	log.Info().Str("addr", opts.Addr).Msg("🧠 Disambiguation memory backed by Redis")
	return NewRedisStoreFromClient(client, ttl), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

// Close closes the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }

func redisKey(key string) string { return keyPrefix + key }

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, g getter, key string) (Entry, bool, error) {
	raw, err := g.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode entry: %w", err)
	}
	if e.expired(s.now(), s.ttl) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// remaining is the PX expiry left for an entry created at createdAt.
func (s *RedisStore) remaining(createdAt time.Time) time.Duration {
	left := s.ttl - s.now().Sub(createdAt)
	if left < time.Millisecond {
		left = time.Millisecond
	}
	return left
}

// Get returns the entry and records the access. The touch runs under WATCH
// so it never overwrites a concurrent flag transition or revives a cleared key.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool) {
	var out Entry
	var found bool
	err := s.transact(ctx, key, func(tx *redis.Tx) error {
		found = false
		e, ok, err := s.load(ctx, tx, key)
		if err != nil || !ok {
			return err
		}
		e.LastSeen = s.now()
		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey(key), raw, redis.KeepTTL)
			return nil
		}); err != nil {
			return err
		}
		out, found = e, true
		return nil
	})
	if errors.Is(err, redis.TxFailedErr) {
		// Contended: read without touching.
		e, ok, lerr := s.load(ctx, s.client, key)
		if lerr == nil {
			return e, ok
		}
		err = lerr
	}
	if err != nil {
		log.Warn().Str("key", key).Err(err).Msg("Disambiguation lookup failed")
		return Entry{}, false
	}
	return out, found
}

func (s *RedisStore) Set(ctx context.Context, key string, e Entry) {
	now := s.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.LastSeen = now
	raw, err := json.Marshal(e)
	if err != nil {
		log.Warn().Str("key", key).Err(err).Msg("Disambiguation encode failed")
		return
	}
	if err := s.client.Set(ctx, redisKey(key), raw, s.remaining(e.CreatedAt)).Err(); err != nil {
		log.Warn().Str("key", key).Err(err).Msg("Disambiguation store failed")
	}
}

func (s *RedisStore) Clear(ctx context.Context, key string) {
	if err := s.client.Del(ctx, redisKey(key)).Err(); err != nil {
		log.Warn().Str("key", key).Err(err).Msg("Disambiguation clear failed")
	}
}

func (s *RedisStore) MarkPrompted(ctx context.Context, key string) bool {
	var changed bool
	err := s.transact(ctx, key, func(tx *redis.Tx) error {
		changed = false
		e, ok, err := s.load(ctx, tx, key)
		if err != nil || !ok || e.Prompted {
			return err
		}
		e.Prompted = true
		e.LastSeen = s.now()
		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey(key), raw, redis.KeepTTL)
			return nil
		})
		if err == nil {
			changed = true
		}
		return err
	})
	if err != nil {
		log.Warn().Str("key", key).Err(err).Msg("Disambiguation mark-prompted failed")
		return false
	}
	return changed
}

func (s *RedisStore) MarkResolved(ctx context.Context, key string) bool {
	var pending bool
	err := s.transact(ctx, key, func(tx *redis.Tx) error {
		pending = false
		e, ok, err := s.load(ctx, tx, key)
		if err != nil || !ok {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, redisKey(key))
			return nil
		})
		if err == nil {
			pending = e.Pending
		}
		return err
	})
	if err != nil {
		log.Warn().Str("key", key).Err(err).Msg("Disambiguation mark-resolved failed")
		return false
	}
	return pending
}

// transact runs fn under WATCH, retrying when another client modified the key.
func (s *RedisStore) transact(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.client.Watch(ctx, fn, redisKey(key))
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}
