package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"conquest-duel-service/internal/domain"
)

// QuestionLoader fetches the questions of one (category, difficulty) pair
// from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, category domain.Category, difficulty int) ([]domain.Question, error)
}

// QuestionCache caches questions in Redis (hash per category:difficulty,
// one field per question) and falls back to a loader on cache miss.
// Layout: HSET questions:{category}:{difficulty} {questionID} {json}
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RandomQuestion implements app.QuestionSource.
func (c *QuestionCache) RandomQuestion(ctx context.Context, category domain.Category, difficulty int) (domain.Question, error) {
	key := c.key(category, difficulty)

	cached, err := c.client.HGetAll(ctx, key).Result()
	if err == nil && len(cached) > 0 {
		return c.pickFromCache(cached)
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		cached, err := c.client.HGetAll(ctx, key).Result()
		if err == nil && len(cached) > 0 {
			return cached, nil
		}

		questions, err := c.loader.LoadQuestions(ctx, category, difficulty)
		if err != nil {
			return nil, err
		}
		if len(questions) == 0 {
			return map[string]string{}, nil
		}

		fill := make(map[string]string, len(questions))
		pipe := c.client.Pipeline()
		for _, q := range questions {
			raw, err := json.Marshal(q)
			if err != nil {
				return nil, fmt.Errorf("marshal question %s: %w", q.ID, err)
			}
			fill[q.ID] = string(raw)
			pipe.HSet(ctx, key, q.ID, raw)
		}
		if ttl := c.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return fill, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return c.pickFromCache(result.(map[string]string))
}

func (c *QuestionCache) pickFromCache(cached map[string]string) (domain.Question, error) {
	if len(cached) == 0 {
		return domain.Question{}, domain.ErrQuestionUnavailable
	}
	raws := make([]string, 0, len(cached))
	for _, raw := range cached {
		raws = append(raws, raw)
	}
	c.mu.Lock()
	pick := c.rnd.Intn(len(raws))
	c.mu.Unlock()
	var question domain.Question
	if err := json.Unmarshal([]byte(raws[pick]), &question); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal cached question: %w", err)
	}
	return question, nil
}

func (c *QuestionCache) key(category domain.Category, difficulty int) string {
	return fmt.Sprintf("questions:%s:%d", category, difficulty)
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	jitter := c.rnd.Int63n(jitterMax + 1)
	c.mu.Unlock()
	return c.ttl + time.Duration(jitter)
}
