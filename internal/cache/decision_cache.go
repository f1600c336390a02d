package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/FelixMarschall/SmartHomeBioSignal/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ErrCacheMiss - 缓存中没有对应房间的决策
var ErrCacheMiss = errors.New("no cached decision for room")

// KVStore 键值存储抽象（便于测试替换）
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisKVStore adapts a go-redis client to the KVStore contract.
type RedisKVStore struct {
	client *redis.Client
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func (s *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	return val, nil
}

func (s *RedisKVStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// DecisionCache 房间最新决策的短 TTL 缓存
//
// The dashboard polls the latest decision far more often than the engine
// produces one, so reads are served from Redis instead of hitting the
// per-room engine lock.
type DecisionCache struct {
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger
}

func NewDecisionCache(kv KVStore, ttl time.Duration, logger *zap.Logger) *DecisionCache {
	return &DecisionCache{
		kv:     kv,
		ttl:    ttl,
		logger: logger,
	}
}

func decisionKey(roomID string) string {
	return fmt.Sprintf("thermal:room:%s:decision", roomID)
}

// StoreLatest caches the applied decision for the room. Failures are
// logged and swallowed: the cache is a read accelerator, not a source of
// truth.
func (c *DecisionCache) StoreLatest(ctx context.Context, decision *models.AppliedDecision) {
	data, err := json.Marshal(decision)
	if err != nil {
		c.logger.Error("Failed to marshal decision for cache",
			zap.String("room_id", decision.RoomID),
			zap.Error(err),
		)
		return
	}

	if err := c.kv.Set(ctx, decisionKey(decision.RoomID), string(data), c.ttl); err != nil {
		c.logger.Warn("Failed to cache decision",
			zap.String("room_id", decision.RoomID),
			zap.Error(err),
		)
	}
}

// Latest returns the cached decision for the room, or ErrCacheMiss.
func (c *DecisionCache) Latest(ctx context.Context, roomID string) (*models.AppliedDecision, error) {
	val, err := c.kv.Get(ctx, decisionKey(roomID))
	if err != nil {
		return nil, err
	}

	var decision models.AppliedDecision
	if err := json.Unmarshal([]byte(val), &decision); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached decision: %w", err)
	}
	return &decision, nil
}
