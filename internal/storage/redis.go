package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "conversation:"

// RedisStore keeps conversations as JSON strings with an optional TTL that
// is refreshed on every save.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func (s *RedisStore) Create(ctx context.Context) (Conversation, error) {
	conv := newConversation()
	if err := s.set(ctx, conv, true); err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Conversation, error) {
	if !ValidID(id) {
		return Conversation{}, ErrInvalidID
	}
	data, err := s.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	var conv Conversation
	if err := sonic.ConfigStd.Unmarshal(data, &conv); err != nil {
		return Conversation{}, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return conv, nil
}

func (s *RedisStore) Save(ctx context.Context, conv Conversation) error {
	conv.UpdatedAt = time.Now().UTC()
	return s.set(ctx, conv, false)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if !ValidID(id) {
		return ErrInvalidID
	}
	n, err := s.client.Del(ctx, redisKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) set(ctx context.Context, conv Conversation, create bool) error {
	if !ValidID(conv.ID) {
		return ErrInvalidID
	}
	data, err := sonic.ConfigStd.Marshal(conv)
	if err != nil {
		return err
	}
	if create {
		ok, err := s.client.SetNX(ctx, redisKey(conv.ID), data, s.ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("conversation %s already exists", conv.ID)
		}
		return nil
	}
	return s.client.Set(ctx, redisKey(conv.ID), data, s.ttl).Err()
}
