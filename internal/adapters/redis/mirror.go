package redis

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const holdKeyPrefix = "checkout:holds:"

// GraceMargin keeps a mirror entry alive past the attempt deadline. A live
// process clears the entry when it compensates; an entry still present
// inside the margin marks holds whose owner died before compensating.
const GraceMargin = 2 * time.Minute

// Mirror keeps each buyer's active hold ids with a TTL matching the
// checkout countdown. It is a recovery index, not the source of truth: the
// sweeper uses it to find holds whose owning process died.
type Mirror struct {
	client *redis.Client
}

func NewMirror(client *redis.Client) *Mirror {
	return &Mirror{client: client}
}

func (m *Mirror) Client() *redis.Client {
	return m.client
}

func (m *Mirror) MirrorHolds(ctx context.Context, buyerID string, holdIDs []string, ttl time.Duration) error {
	if len(holdIDs) == 0 {
		return m.ClearHolds(ctx, buyerID)
	}
	key := holdKeyPrefix + buyerID

	members := make([]interface{}, len(holdIDs))
	for i, id := range holdIDs {
		members[i] = id
	}

	pipe := m.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, ttl+GraceMargin)
	_, err := pipe.Exec(ctx)
	return err
}

// RemainingTTL reports how long a buyer's mirror entry has left, zero when
// no entry exists.
func (m *Mirror) RemainingTTL(ctx context.Context, buyerID string) (time.Duration, error) {
	ttl, err := m.client.TTL(ctx, holdKeyPrefix+buyerID).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (m *Mirror) ClearHolds(ctx context.Context, buyerID string) error {
	return m.client.Del(ctx, holdKeyPrefix+buyerID).Err()
}

func (m *Mirror) ActiveHolds(ctx context.Context, buyerID string) ([]string, error) {
	return m.client.SMembers(ctx, holdKeyPrefix+buyerID).Result()
}

// Buyers lists every buyer with a mirrored hold set. SCAN-based so the
// sweeper never blocks the server.
func (m *Mirror) Buyers(ctx context.Context) ([]string, error) {
	var buyers []string
	iter := m.client.Scan(ctx, 0, holdKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		buyers = append(buyers, strings.TrimPrefix(iter.Val(), holdKeyPrefix))
	}
	return buyers, iter.Err()
}
