package cache

import (
	"context"
	"math/rand"

	"github.com/redis/go-redis/v9"
)

// QueryCounter tracks query frequency in a redis sorted set for the
// top-queries read path. Memory is bounded by trimming the set to maxSize on
// a random fraction of reads instead of on every write.
type QueryCounter struct {
	client   *redis.Client
	maxSize  int64
	trimProb float64
}

// NewQueryCounter builds a counter on an existing redis connection.
func NewQueryCounter(client *redis.Client, maxSize int, trimProb float64) *QueryCounter {
	return &QueryCounter{client: client, maxSize: int64(maxSize), trimProb: trimProb}
}

// Bump increments the member's frequency in the named set.
func (c *QueryCounter) Bump(ctx context.Context, space, member string) error {
	return c.client.ZIncrBy(ctx, space, 1, member).Err()
}

// Top returns up to limit members ordered by descending frequency. With
// probability trimProb it first drops everything below the maxSize highest
// ranks.
func (c *QueryCounter) Top(ctx context.Context, space string, limit int64) ([]string, error) {
	if rand.Float64() < c.trimProb {
		if err := c.client.ZRemRangeByRank(ctx, space, 0, -c.maxSize-1).Err(); err != nil {
			return nil, err
		}
	}
	return c.client.ZRevRange(ctx, space, 0, limit-1).Result()
}
