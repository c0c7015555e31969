package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "portal:session:"

// RedisStore keeps each session as a hash that redis expires on its own.
type RedisStore struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

// ConnectRedis opens a client and verifies it with PING.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func (s *RedisStore) Create(ctx context.Context, userID string, ttl time.Duration) (Session, error) {
	now := s.now()
	sess := Session{
		SessionID: uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	key := redisKeyPrefix + sess.SessionID
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"user_id", sess.UserID,
			"expires_at", strconv.FormatInt(sess.ExpiresAt.Unix(), 10),
			"created_at", strconv.FormatInt(sess.CreatedAt.Unix(), 10),
		)
		pipe.ExpireAt(ctx, key, sess.ExpiresAt)
		return nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *RedisStore) Find(ctx context.Context, id string) (Session, error) {
	vals, err := s.rdb.HGetAll(ctx, redisKeyPrefix+id).Result()
	if err != nil {
		return Session{}, fmt.Errorf("find session: %w", err)
	}
	if len(vals) == 0 || vals["user_id"] == "" {
		return Session{}, ErrNotFound
	}

	expires, err := strconv.ParseInt(vals["expires_at"], 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("decode session expiry: %w", err)
	}
	created, _ := strconv.ParseInt(vals["created_at"], 10, 64)

	return Session{
		SessionID: id,
		UserID:    vals["user_id"],
		ExpiresAt: time.Unix(expires, 0),
		CreatedAt: time.Unix(created, 0),
	}, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: keys carry their own expiry.
func (s *RedisStore) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}
