package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/config"
	"quiz-arena-service/internal/domain"
	"quiz-arena-service/internal/infra/memory"
	"quiz-arena-service/internal/infra/postgres"
	redisinfra "quiz-arena-service/internal/infra/redis"
)

// components is the assembled engine plus whatever must be run or closed with it.
type components struct {
	service   *app.GameService
	bus       *app.Broadcaster
	relay     *redisinfra.EventRelay
	scheduler *app.TimerScheduler
	closers   []func()
}

func (c *components) Close() {
	c.scheduler.Stop()
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// buildComponents picks the room store (postgres, then redis, then memory), the question
// source and the event fan-out from cfg.
func buildComponents(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (_ *components, err error) {
	c := &components{bus: app.NewBroadcaster(), scheduler: app.NewTimerScheduler()}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	var pool *pgxpool.Pool
	var store app.RoomStore = memory.NewRoomStore()
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		c.closers = append(c.closers, pool.Close)

		db, err := openBun(cfg)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() { _ = db.Close() })
		store = postgres.NewRoomStore(db)
	} else if redisClient != nil {
		store = redisinfra.NewRoomStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
	}

	var loader memory.PoolLoader
	switch {
	case pool != nil:
		loader = postgres.NewQuestionBank(pool)
	case cfg.Questions.BankFile != "":
		bank, err := memory.LoadQuestionBankFile(cfg.Questions.BankFile)
		if err != nil {
			return nil, err
		}
		loader = bank
	default:
		loader = memory.NewQuestionBank(sampleQuestions())
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var questions app.QuestionSource
	if redisClient != nil {
		questions = redisinfra.NewQuestionCache(redisClient, loader, questionTTL)
	} else {
		questions = memory.NewQuestionCache(loader, questionTTL)
	}

	var notifier app.Notifier = c.bus
	if redisClient != nil {
		c.relay = redisinfra.NewEventRelay(redisClient, cfg.Redis.Channel, c.bus, logger)
		notifier = c.relay
	}

	c.service = app.NewGameService(store, questions, notifier,
		app.WithLogger(logger),
		app.WithScheduler(c.scheduler),
		app.WithScoring(scoringPolicy(cfg)),
		app.WithCodeLength(cfg.Game.CodeLength),
		app.WithCodeGrace(config.TTLDuration(cfg.Game.CodeGrace, 10*time.Minute)),
		app.WithQuestionsPerRoom(cfg.Game.QuestionsPerRoom),
	)
	return c, nil
}

func scoringPolicy(cfg config.Config) app.ScoringPolicy {
	policy := app.DefaultScoringPolicy()
	if cfg.Game.FullCreditFraction > 0 {
		policy.FullCreditFraction = cfg.Game.FullCreditFraction
	}
	if cfg.Game.MinFraction > 0 {
		policy.MinFraction = cfg.Game.MinFraction
	}
	policy.LatencyAllowance = config.TTLDuration(cfg.Game.LatencyAllowance, policy.LatencyAllowance)
	return policy
}

// sampleQuestions provides a minimal bank; point questions.bank_file or postgres at real content.
func sampleQuestions() []memory.BankQuestion {
	return []memory.BankQuestion{
		{
			GameType: "math",
			QuestionSpec: domain.QuestionSpec{
				Prompt: "What is 2 + 2?", Type: domain.MultipleChoice,
				Options: []string{"3", "4", "5"}, CorrectAnswer: "4", Points: 100, TimeLimitSeconds: 20,
			},
		},
		{
			GameType: "math",
			QuestionSpec: domain.QuestionSpec{
				Prompt: "Is 9 an odd number?", Type: domain.TrueFalse,
				Options: []string{"true", "false"}, CorrectAnswer: "true", Points: 100, TimeLimitSeconds: 15,
			},
		},
		{
			GameType: "spelling",
			QuestionSpec: domain.QuestionSpec{
				Prompt: "Spell the animal with black and white stripes", Type: domain.Spelling,
				CorrectAnswer: "zebra", Points: 100, TimeLimitSeconds: 20,
			},
		},
	}
}
