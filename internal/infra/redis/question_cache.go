package redis

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sync"
	"time"

	"exam-arena-service/internal/app"
	"exam-arena-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionCache caches question content in Redis (one JSON string per question) and falls
// back to the bank on a miss. Keys look like question:{id}.
type QuestionCache struct {
	client *redis.Client
	bank   app.QuestionBank
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

var _ app.QuestionBank = (*QuestionCache)(nil)

func NewQuestionCache(client *redis.Client, bank app.QuestionBank, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		bank:   bank,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) Query(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	return c.bank.Query(ctx, filter)
}

func (c *QuestionCache) Count(ctx context.Context, filter domain.QuestionFilter) (int, error) {
	return c.bank.Count(ctx, filter)
}

func (c *QuestionCache) Get(ctx context.Context, id string) (domain.Question, error) {
	if q, ok := c.cached(ctx, id); ok {
		return q, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if q, ok := c.cached(ctx, id); ok {
			return q, nil
		}
		q, err := c.bank.Get(ctx, id)
		if err != nil {
			return domain.Question{}, err
		}
		c.fill(ctx, q)
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (c *QuestionCache) GetMany(ctx context.Context, ids []string) ([]domain.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = questionKey(id)
	}

	found := make(map[string]domain.Question, len(ids))
	values, err := c.client.MGet(ctx, keys...).Result()
	if err == nil {
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var q domain.Question
			if json.Unmarshal([]byte(raw), &q) == nil {
				found[ids[i]] = q
			}
		}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		loaded, err := c.bank.GetMany(ctx, missing)
		if err != nil {
			return nil, err
		}
		pipe := c.client.Pipeline()
		for _, q := range loaded {
			found[q.ID] = q
			c.queue(ctx, pipe, q)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			log.Printf("question cache fill failed: %v", err)
		}
	}

	out := make([]domain.Question, 0, len(found))
	for _, id := range ids {
		if q, ok := found[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (c *QuestionCache) cached(ctx context.Context, id string) (domain.Question, bool) {
	raw, err := c.client.Get(ctx, questionKey(id)).Bytes()
	if err != nil {
		return domain.Question{}, false
	}
	var q domain.Question
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.Question{}, false
	}
	return q, true
}

func (c *QuestionCache) fill(ctx context.Context, q domain.Question) {
	pipe := c.client.Pipeline()
	c.queue(ctx, pipe, q)
	_, _ = pipe.Exec(ctx)
}

func (c *QuestionCache) queue(ctx context.Context, pipe redis.Pipeliner, q domain.Question) {
	raw, err := json.Marshal(q)
	if err != nil {
		return
	}
	pipe.Set(ctx, questionKey(q.ID), raw, c.ttlWithJitter())
}

func questionKey(id string) string {
	return "question:" + id
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
