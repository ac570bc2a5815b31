package soltree

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/errs"
)

// RedisTreeStore persists Solution Trees keyed by a caller-supplied
// plan ID, grounded on this codebase's RedisStateStore
// (orchestration/workflow_state.go: JSON-marshal-and-SET keyed by ID,
// list-push into a per-parent index, TTL-bounded retention).
type RedisTreeStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTreeStore wraps an existing redis client. ttl bounds how
// long a persisted tree is retained; zero means no expiry.
func NewRedisTreeStore(client *redis.Client, ttl time.Duration) *RedisTreeStore {
	return &RedisTreeStore{client: client, ttl: ttl}
}

func treeKey(planID string) string {
	return fmt.Sprintf("soltree:plan:%s", planID)
}

// Save persists t under planID.
func (s *RedisTreeStore) Save(ctx context.Context, planID string, t *Tree) error {
	data, err := t.MarshalJSON()
	if err != nil {
		return fmt.Errorf("%w: marshaling solution tree: %v", errs.ErrInvalidInput, err)
	}
	if err := s.client.Set(ctx, treeKey(planID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving solution tree to redis: %w", err)
	}
	return nil
}

// Load retrieves the tree persisted under planID.
func (s *RedisTreeStore) Load(ctx context.Context, planID string) (*Tree, error) {
	data, err := s.client.Get(ctx, treeKey(planID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: no solution tree saved for plan %q", errs.ErrInvalidInput, planID)
		}
		return nil, fmt.Errorf("loading solution tree from redis: %w", err)
	}
	return UnmarshalTree(data)
}

// Delete removes planID's persisted tree.
func (s *RedisTreeStore) Delete(ctx context.Context, planID string) error {
	return s.client.Del(ctx, treeKey(planID)).Err()
}
