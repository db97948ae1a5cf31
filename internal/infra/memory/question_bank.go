package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"conquest-duel-service/internal/domain"
)

// QuestionLoader fetches the questions of one (category, difficulty) pair
// from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, category domain.Category, difficulty int) ([]domain.Question, error)
}

// QuestionBank caches question sets with TTL to avoid repeated loads and
// serves one at random per request.
type QuestionBank struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedSet
}

type cachedSet struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionBank(loader QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSet),
	}
}

// RandomQuestion implements app.QuestionSource. It returns
// domain.ErrQuestionUnavailable when the pair has no questions.
func (b *QuestionBank) RandomQuestion(ctx context.Context, category domain.Category, difficulty int) (domain.Question, error) {
	questions, err := b.questions(ctx, category, difficulty)
	if err != nil {
		return domain.Question{}, err
	}
	if len(questions) == 0 {
		return domain.Question{}, domain.ErrQuestionUnavailable
	}
	b.mu.Lock()
	pick := b.rnd.Intn(len(questions))
	b.mu.Unlock()
	return questions[pick], nil
}

func (b *QuestionBank) questions(ctx context.Context, category domain.Category, difficulty int) ([]domain.Question, error) {
	key := bankKey(category, difficulty)
	now := b.clock()

	b.mu.RLock()
	if entry, ok := b.cache[key]; ok && entry.expiresAt.After(now) {
		b.mu.RUnlock()
		return entry.questions, nil
	}
	b.mu.RUnlock()

	result, err, _ := b.sf.Do(key, func() (interface{}, error) {
		now := b.clock()
		b.mu.RLock()
		if entry, ok := b.cache[key]; ok && entry.expiresAt.After(now) {
			b.mu.RUnlock()
			return entry.questions, nil
		}
		b.mu.RUnlock()

		questions, err := b.loader.LoadQuestions(ctx, category, difficulty)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.cache[key] = cachedSet{
			questions: questions,
			expiresAt: now.Add(b.ttlWithJitter()),
		}
		b.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// ttlWithJitter adds up to 10% jitter to spread expirations.
func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

func bankKey(category domain.Category, difficulty int) string {
	return fmt.Sprintf("%s:%d", category, difficulty)
}

// StaticQuestionLoader is a loader backed by an in-memory question list
// (useful for tests/demos and when no database is configured).
type StaticQuestionLoader struct {
	byPair map[string][]domain.Question
}

func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	byPair := make(map[string][]domain.Question)
	for _, q := range questions {
		key := bankKey(q.Category, q.Difficulty)
		byPair[key] = append(byPair[key], q)
	}
	return &StaticQuestionLoader{byPair: byPair}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, category domain.Category, difficulty int) ([]domain.Question, error) {
	return l.byPair[bankKey(category, difficulty)], nil
}
