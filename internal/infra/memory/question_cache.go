package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-arena-service/internal/domain"
)

// PoolLoader fetches every question matching a query from a backing store (file, DB).
// The query's Count is ignored; sampling happens in the cache.
type PoolLoader interface {
	LoadPool(ctx context.Context, query domain.QuestionQuery) ([]domain.QuestionSpec, error)
}

// QuestionCache caches question pools with TTL to avoid repeated loader hits and
// samples a room's questions from the cached pool. It implements app.QuestionSource.
type QuestionCache struct {
	loader PoolLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedPool
}

type cachedPool struct {
	questions []domain.QuestionSpec
	expiresAt time.Time
}

func NewQuestionCache(loader PoolLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedPool),
	}
}

func (c *QuestionCache) FetchQuestions(ctx context.Context, query domain.QuestionQuery) ([]domain.QuestionSpec, error) {
	pool, err := c.pool(ctx, query)
	if err != nil {
		return nil, err
	}
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return Sample(pool, query.Count, c.rnd), nil
}

func (c *QuestionCache) pool(ctx context.Context, query domain.QuestionQuery) ([]domain.QuestionSpec, error) {
	key := PoolKey(query)
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.questions, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.questions, nil
		}
		c.mu.RUnlock()

		questions, err := c.loader.LoadPool(ctx, query)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[key] = cachedPool{
			questions: questions,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.QuestionSpec), nil
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// PoolKey identifies the pool a query draws from.
func PoolKey(query domain.QuestionQuery) string {
	return fmt.Sprintf("%s:%d:%s", query.GameType, query.GradeLevel, query.Difficulty)
}

// Sample returns up to count questions from pool in random order. The pool is not modified.
func Sample(pool []domain.QuestionSpec, count int, rnd *rand.Rand) []domain.QuestionSpec {
	if count <= 0 || count > len(pool) {
		count = len(pool)
	}
	idx := rnd.Perm(len(pool))[:count]
	out := make([]domain.QuestionSpec, 0, count)
	for _, i := range idx {
		q := pool[i]
		q.Options = append([]string(nil), q.Options...)
		out = append(out, q)
	}
	return out
}
