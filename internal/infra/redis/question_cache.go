package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-arena-service/internal/domain"
	"quiz-arena-service/internal/infra/memory"
)

// QuestionCache caches question pools in Redis (one JSON document per pool) and falls
// back to a loader on a miss. Pools are shared by every instance behind the same Redis.
//
//	SET questions:pool:{gameType}:{grade}:{difficulty} <json> EX ttl+jitter
type QuestionCache struct {
	client *redis.Client
	loader memory.PoolLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader memory.PoolLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) FetchQuestions(ctx context.Context, query domain.QuestionQuery) ([]domain.QuestionSpec, error) {
	pool, err := c.pool(ctx, query)
	if err != nil {
		return nil, err
	}
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return memory.Sample(pool, query.Count, c.rnd), nil
}

func (c *QuestionCache) pool(ctx context.Context, query domain.QuestionQuery) ([]domain.QuestionSpec, error) {
	key := poolKey(query)
	if pool, ok := c.cached(ctx, key); ok {
		return pool, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if pool, ok := c.cached(ctx, key); ok {
			return pool, nil
		}
		pool, err := c.loader.LoadPool(ctx, query)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(pool); err == nil {
			_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.QuestionSpec), nil
}

func (c *QuestionCache) cached(ctx context.Context, key string) ([]domain.QuestionSpec, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var pool []domain.QuestionSpec
	if err := json.Unmarshal(data, &pool); err != nil || len(pool) == 0 {
		return nil, false
	}
	return pool, true
}

// Invalidate drops the cached pool for query, e.g. after the bank was edited.
func (c *QuestionCache) Invalidate(ctx context.Context, query domain.QuestionQuery) error {
	return c.client.Del(ctx, poolKey(query)).Err()
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func poolKey(query domain.QuestionQuery) string {
	return "questions:pool:" + memory.PoolKey(query)
}
