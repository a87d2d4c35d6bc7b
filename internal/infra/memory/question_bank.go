package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"exam-arena-service/internal/app"
	"exam-arena-service/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// QuestionBank is an in-memory question catalog (useful for tests/demos).
type QuestionBank struct {
	mu     sync.RWMutex
	byID   map[string]domain.Question
	byHash map[string]string
	clock  func() time.Time
}

var _ app.QuestionBank = (*QuestionBank)(nil)

func NewQuestionBank(questions ...domain.Question) *QuestionBank {
	b := &QuestionBank{
		byID:   make(map[string]domain.Question),
		byHash: make(map[string]string),
		clock:  time.Now,
	}
	for _, q := range questions {
		b.Ingest(context.Background(), q)
	}
	return b
}

// Ingest stores q unless a question with the same content hash exists, and returns the stored one.
func (b *QuestionBank) Ingest(_ context.Context, q domain.Question) (domain.Question, error) {
	if q.Hash == "" {
		q.Hash = domain.ContentHash(q)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.byHash[q.Hash]; ok {
		return b.byID[id], nil
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = b.clock()
	}
	b.byID[q.ID] = q
	b.byHash[q.Hash] = q.ID
	return q, nil
}

// Deactivate hides a question from queries; existing tests keep resolving it by id.
func (b *QuestionBank) Deactivate(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.byID[id]
	if !ok {
		return domain.ErrQuestionNotFound
	}
	q.Active = false
	b.byID[id] = q
	return nil
}

func (b *QuestionBank) Query(_ context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	b.mu.RLock()
	out := make([]domain.Question, 0, len(b.byID))
	for _, q := range b.byID {
		if filter.Matches(q) {
			out = append(out, q)
		}
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *QuestionBank) Count(ctx context.Context, filter domain.QuestionFilter) (int, error) {
	qs, err := b.Query(ctx, filter)
	return len(qs), err
}

func (b *QuestionBank) Get(_ context.Context, id string) (domain.Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.byID[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

func (b *QuestionBank) GetMany(_ context.Context, ids []string) ([]domain.Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := b.byID[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// QuestionCache caches questions by id with TTL to avoid repeated bank hits.
// Filter queries pass through to the bank.
type QuestionCache struct {
	bank  app.QuestionBank
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand
	rndMu sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuestion
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

var _ app.QuestionBank = (*QuestionCache)(nil)

func NewQuestionCache(bank app.QuestionBank, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		bank:  bank,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[string]cachedQuestion),
	}
}

func (c *QuestionCache) Query(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	return c.bank.Query(ctx, filter)
}

func (c *QuestionCache) Count(ctx context.Context, filter domain.QuestionFilter) (int, error) {
	return c.bank.Count(ctx, filter)
}

func (c *QuestionCache) lookup(id string, now time.Time) (domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[id]
	if !ok || !entry.expiresAt.After(now) {
		return domain.Question{}, false
	}
	return entry.question, true
}

func (c *QuestionCache) store(q domain.Question, now time.Time) {
	c.mu.Lock()
	c.cache[q.ID] = cachedQuestion{question: q, expiresAt: now.Add(c.ttlWithJitter())}
	c.mu.Unlock()
}

func (c *QuestionCache) Get(ctx context.Context, id string) (domain.Question, error) {
	if q, ok := c.lookup(id, c.clock()); ok {
		return q, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		now := c.clock()
		if q, ok := c.lookup(id, now); ok {
			return q, nil
		}
		q, err := c.bank.Get(ctx, id)
		if err != nil {
			return domain.Question{}, err
		}
		c.store(q, now)
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (c *QuestionCache) GetMany(ctx context.Context, ids []string) ([]domain.Question, error) {
	now := c.clock()
	found := make(map[string]domain.Question, len(ids))
	var missing []string
	for _, id := range ids {
		if q, ok := c.lookup(id, now); ok {
			found[id] = q
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		loaded, err := c.bank.GetMany(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, q := range loaded {
			c.store(q, now)
			found[q.ID] = q
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

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
