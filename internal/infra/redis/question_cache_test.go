package redis

import (
	"context"
	"testing"
	"time"

	"quiz-arena-service/internal/domain"
	"quiz-arena-service/internal/infra/memory"
)

func TestQuestionCacheCachesInRedis(t *testing.T) {
	mr, client := newMiniredis(t)

	loader := &countingLoader{PoolLoader: memory.NewQuestionBank(sampleBank())}
	cache := NewQuestionCache(client, loader, time.Minute)
	query := domain.QuestionQuery{GameType: "math", GradeLevel: 2, Count: 1}

	qs, err := cache.FetchQuestions(context.Background(), query)
	if err != nil {
		t.Fatalf("fetch questions: %v", err)
	}
	if len(qs) != 1 {
		t.Fatalf("expected 1 question, got %d", len(qs))
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("questions:pool:math:2:") {
		t.Fatalf("expected pool key in redis, have %v", mr.Keys())
	}

	// Second call should hit cache, loader not incremented.
	_, _ = cache.FetchQuestions(context.Background(), query)
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}

	if err := cache.Invalidate(context.Background(), query); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = cache.FetchQuestions(context.Background(), query)
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls)
	}
}

func TestQuestionCacheSharedAcrossInstances(t *testing.T) {
	_, client := newMiniredis(t)
	query := domain.QuestionQuery{GameType: "math", GradeLevel: 2, Count: 2}

	first := &countingLoader{PoolLoader: memory.NewQuestionBank(sampleBank())}
	_, _ = NewQuestionCache(client, first, time.Minute).FetchQuestions(context.Background(), query)

	second := &countingLoader{PoolLoader: memory.NewQuestionBank(sampleBank())}
	qs, err := NewQuestionCache(client, second, time.Minute).FetchQuestions(context.Background(), query)
	if err != nil {
		t.Fatalf("fetch questions: %v", err)
	}
	if second.calls != 0 {
		t.Fatalf("second instance should read the shared pool, loader calls=%d", second.calls)
	}
	if len(qs) != 2 || qs[0].CorrectAnswer == "" {
		t.Fatalf("unexpected cached pool %+v", qs)
	}
}

type countingLoader struct {
	memory.PoolLoader
	calls int
}

func (l *countingLoader) LoadPool(ctx context.Context, query domain.QuestionQuery) ([]domain.QuestionSpec, error) {
	l.calls++
	return l.PoolLoader.LoadPool(ctx, query)
}

func sampleBank() []memory.BankQuestion {
	return []memory.BankQuestion{
		{
			GameType: "math", GradeLevel: 2,
			QuestionSpec: domain.QuestionSpec{
				Prompt: "What is 2 + 2?", Type: domain.MultipleChoice,
				Options: []string{"3", "4"}, CorrectAnswer: "4", Points: 100, TimeLimitSeconds: 20,
			},
		},
		{
			GameType: "math", GradeLevel: 2,
			QuestionSpec: domain.QuestionSpec{
				Prompt: "What is 3 + 3?", Type: domain.FillBlank, CorrectAnswer: "6", Points: 100, TimeLimitSeconds: 20,
			},
		},
	}
}
