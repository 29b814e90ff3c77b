package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"partybot-server-go/internal/domain/auth/model"
)

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a redis-backed token store. Keys expire together with
// the token they hold.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "partybot:token:"
	}
	return &redisStore{client: client, prefix: prefix}, nil
}

func (s *redisStore) key(accountID, scope string) string {
	return s.prefix + model.Key(accountID, scope)
}

func (s *redisStore) Save(ctx context.Context, token model.Token) error {
	if token.AccountID == "" {
		return fmt.Errorf("account id required")
	}
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return s.Remove(ctx, token.AccountID, token.Scope)
	}
	if token.IssuedAt.IsZero() {
		token.IssuedAt = time.Now()
	}
	data, err := sonic.Marshal(token)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(token.AccountID, token.Scope), data, ttl).Err()
}

func (s *redisStore) Get(ctx context.Context, accountID, scope string) (model.Token, error) {
	raw, err := s.client.Get(ctx, s.key(accountID, scope)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Token{}, ErrNotFound
		}
		return model.Token{}, err
	}
	var token model.Token
	if err := sonic.Unmarshal(raw, &token); err != nil {
		return model.Token{}, err
	}
	if !token.Valid(time.Now()) {
		_ = s.Remove(ctx, accountID, scope)
		return model.Token{}, ErrNotFound
	}
	return token, nil
}

func (s *redisStore) Remove(ctx context.Context, accountID, scope string) error {
	return s.client.Del(ctx, s.key(accountID, scope)).Err()
}

func (s *redisStore) RemoveAccount(ctx context.Context, accountID string) error {
	keys, err := s.scan(ctx, s.prefix+accountID+":*")
	if err != nil {
		return err
	}
	keys = append(keys, s.key(accountID, ""))
	return s.client.Del(ctx, keys...).Err()
}

func (s *redisStore) scan(ctx context.Context, pattern string) ([]string, error) {
	var cursor uint64
	keys := make([]string, 0)
	for {
		res, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, res...)
		if nextCursor == 0 {
			return keys, nil
		}
		cursor = nextCursor
	}
}

// Stats counts stored keys. Redis expires keys with their token, so every
// stored key is active.
func (s *redisStore) Stats(ctx context.Context) (Stats, error) {
	keys, err := s.scan(ctx, s.prefix+"*")
	if err != nil {
		return Stats{}, err
	}
	return Stats{Driver: DriverRedis, Total: len(keys), Active: len(keys)}, nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
