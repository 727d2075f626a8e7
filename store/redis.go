package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	oraclesdk "github.com/candlelight-labs/oracle-companion-go"
)

// RedisRelationshipStore persists RelationshipState as JSON in Redis,
// keyed "{prefix}:{user_id}". State is small (bounded signal windows), so
// a single value per user is enough; no per-field schema.
type RedisRelationshipStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisStoreConfig configures the Redis store.
type RedisStoreConfig struct {
	Prefix string        // key prefix, default "oracle:rel"
	TTL    time.Duration // 0 = no expiry; relationships are long-lived
}

// NewRedisRelationshipStore creates a RelationshipStore backed by Redis.
// Works with a Client, ClusterClient, or Ring.
func NewRedisRelationshipStore(client redis.UniversalClient, config ...RedisStoreConfig) *RedisRelationshipStore {
	cfg := RedisStoreConfig{Prefix: "oracle:rel"}
	if len(config) > 0 && config[0].Prefix != "" {
		cfg.Prefix = config[0].Prefix
	}
	if len(config) > 0 {
		cfg.TTL = config[0].TTL
	}
	return &RedisRelationshipStore{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
	}
}

func (r *RedisRelationshipStore) key(userID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, userID)
}

func (r *RedisRelationshipStore) Load(ctx context.Context, userID string) (*oraclesdk.RelationshipState, error) {
	raw, err := r.client.Get(ctx, r.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load %s: %w", userID, err)
	}

	var state oraclesdk.RelationshipState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("load %s: %w: %v", userID, oraclesdk.ErrCorruptState, err)
	}
	if err := oraclesdk.ValidateState(&state); err != nil {
		return nil, fmt.Errorf("load %s: %w", userID, err)
	}
	return &state, nil
}

func (r *RedisRelationshipStore) Save(ctx context.Context, state *oraclesdk.RelationshipState) error {
	if state == nil || state.UserID == "" {
		return fmt.Errorf("save: missing user id")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("save %s: %w", state.UserID, err)
	}
	return r.client.Set(ctx, r.key(state.UserID), data, r.ttl).Err()
}

func (r *RedisRelationshipStore) Delete(ctx context.Context, userID string) error {
	return r.client.Del(ctx, r.key(userID)).Err()
}

func (r *RedisRelationshipStore) Close() error {
	return r.client.Close()
}

var _ RelationshipStore = (*RedisRelationshipStore)(nil)
