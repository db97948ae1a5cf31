package redis_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"conquest-duel-service/internal/domain"
	infraredis "conquest-duel-service/internal/infra/redis"
)

type staticLoader struct {
	mu        sync.Mutex
	calls     int
	questions []domain.Question
}

func (l *staticLoader) LoadQuestions(_ context.Context, category domain.Category, difficulty int) ([]domain.Question, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	var out []domain.Question
	for _, q := range l.questions {
		if q.Category == category && q.Difficulty == difficulty {
			out = append(out, q)
		}
	}
	return out, nil
}

func newCacheUnderTest(t *testing.T, questions []domain.Question) (*infraredis.QuestionCache, *staticLoader, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	loader := &staticLoader{questions: questions}
	return infraredis.NewQuestionCache(client, loader, time.Minute), loader, mr
}

func TestQuestionCacheFillsRedisOnMiss(t *testing.T) {
	ctx := context.Background()
	cache, _, mr := newCacheUnderTest(t, []domain.Question{
		{
			ID: "q1", Category: domain.CategorySport, Difficulty: 2,
			Text: "pick", Answer: "a", Distractors: []string{"b"},
		},
	})

	question, err := cache.RandomQuestion(ctx, domain.CategorySport, 2)
	if err != nil {
		t.Fatalf("random question: %v", err)
	}
	if question.ID != "q1" {
		t.Fatalf("unexpected question %+v", question)
	}
	if !mr.Exists("questions:sport:2") {
		t.Fatalf("expected cache key to be filled")
	}
}

func TestQuestionCacheServesFromRedisWithoutLoader(t *testing.T) {
	ctx := context.Background()
	cache, loader, _ := newCacheUnderTest(t, []domain.Question{
		{
			ID: "q1", Category: domain.CategorySport, Difficulty: 2,
			Text: "pick", Answer: "a", Distractors: []string{"b"},
		},
	})

	for i := 0; i < 4; i++ {
		if _, err := cache.RandomQuestion(ctx, domain.CategorySport, 2); err != nil {
			t.Fatalf("random question: %v", err)
		}
	}

	loader.mu.Lock()
	calls := loader.calls
	loader.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected a single backing load, got %d", calls)
	}
}

func TestQuestionCacheContentGap(t *testing.T) {
	ctx := context.Background()
	cache, _, _ := newCacheUnderTest(t, nil)

	_, err := cache.RandomQuestion(ctx, domain.CategoryScience, 4)
	if !errors.Is(err, domain.ErrQuestionUnavailable) {
		t.Fatalf("expected ErrQuestionUnavailable, got %v", err)
	}
}
