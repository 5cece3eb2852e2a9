package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/connect4-arena/internal/obslog"
)

// RedisStore keeps each match as a JSON document under c4:match:<ID>.
// Updates use WATCH/MULTI on that key so a concurrent writer aborts the
// transaction instead of being overwritten.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore wraps an existing client. ttl 0 keeps records forever.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// OpenRedisStore dials redisURL and verifies the connection.
func OpenRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis store")
	}
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(rdb, ttl), nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Ping checks the connection; used by the health check.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.rdb == nil {
		return fmt.Errorf("redis store not initialized")
	}
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Create(ctx context.Context, m *Match) (bool, error) {
	if s == nil || s.rdb == nil {
		return false, fmt.Errorf("redis store not initialized")
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return false, err
	}
	return s.rdb.SetNX(ctx, matchKey(m.ID), raw, s.ttl).Result()
}

func (s *RedisStore) Load(ctx context.Context, id string) (*Match, error) {
	if s == nil || s.rdb == nil {
		return nil, fmt.Errorf("redis store not initialized")
	}
	raw, err := s.rdb.Get(ctx, matchKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var m Match
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode match %s: %w", id, err)
	}
	return &m, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, fn func(*Match) error) (*Match, error) {
	if s == nil || s.rdb == nil {
		return nil, fmt.Errorf("redis store not initialized")
	}
	key := matchKey(id)
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		var out *Match
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			var cur Match
			if jerr := json.Unmarshal(raw, &cur); jerr != nil {
				return fmt.Errorf("decode match %s: %w", id, jerr)
			}
			out = &cur

			next := cur.Clone()
			if ferr := fn(next); ferr != nil {
				return ferr
			}
			next.Version = cur.Version + 1
			newRaw, err := json.Marshal(next)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, newRaw, s.ttl)
				return nil
			})
			if err != nil {
				return err
			}
			out = next
			return nil
		}, key)

		switch {
		case err == nil:
			return out, nil
		case errors.Is(err, redis.TxFailedErr):
			obslog.L().Debug("match_update_conflict", zap.String("match_id", id), zap.Int("attempt", attempt))
			continue
		case errors.Is(err, errNoop):
			return out, nil
		default:
			return out, err
		}
	}
	return nil, fmt.Errorf("update match %s: %w", id, errConflict)
}

func (s *RedisStore) IndexSession(ctx context.Context, sessionID, matchID string) error {
	if s == nil || s.rdb == nil {
		return fmt.Errorf("redis store not initialized")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	key := sessionKey(sessionID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, NormalizeID(matchID))
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) MatchIDsBySession(ctx context.Context, sessionID string) ([]string, error) {
	if s == nil || s.rdb == nil {
		return nil, fmt.Errorf("redis store not initialized")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, nil
	}
	ids, err := s.rdb.SMembers(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}
