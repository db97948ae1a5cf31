package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"conquest-duel-service/internal/app"
	"conquest-duel-service/internal/config"
	"conquest-duel-service/internal/domain"
	"conquest-duel-service/internal/infra/memory"
	pgloader "conquest-duel-service/internal/infra/postgres"
	redisinfra "conquest-duel-service/internal/infra/redis"
	transport "conquest-duel-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the duel server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestions())
	if pool != nil {
		loader = pgloader.NewQuestionLoader(pool)
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var source app.QuestionSource
	if redisClient != nil {
		source = redisinfra.NewQuestionCache(redisClient, loader, questionTTL)
	} else {
		source = memory.NewQuestionBank(loader, questionTTL)
	}

	var duels app.DuelRepository
	var stats app.StatisticsRecorder
	if redisClient != nil {
		duels = redisinfra.NewDuelStore(redisClient, redisTTL)
		stats = redisinfra.NewStatsRecorder(redisClient)
	} else {
		duels = memory.NewDuelStore()
		stats = memory.NewStatsRecorder()
	}

	troops, err := troopTable(cfg)
	if err != nil {
		return err
	}
	service := app.NewDuelService(duels, source, troops, stats, timings(cfg), log.Logger)

	tickInterval := config.TTLDuration(cfg.Duel.TickInterval, time.Second)
	wsHandler := transport.NewWSHandler(service, tickInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting duel service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func timings(cfg config.Config) app.Timings {
	defaults := app.DefaultTimings()
	return app.Timings{
		SelectionBudget:        config.Budget(cfg.Duel.SelectionBudget, defaults.SelectionBudget),
		AnswerBudget:           config.Budget(cfg.Duel.AnswerBudget, defaults.AnswerBudget),
		StandaloneAnswerBudget: config.Budget(cfg.Duel.StandaloneAnswerBudget, defaults.StandaloneAnswerBudget),
		FeedbackBudget:         config.Budget(cfg.Duel.FeedbackBudget, defaults.FeedbackBudget),
	}
}

func troopTable(cfg config.Config) (domain.TroopTable, error) {
	if len(cfg.Troops) == 0 {
		return domain.DefaultTroopTable(), nil
	}
	table := make(domain.TroopTable, len(cfg.Troops))
	for troop, raw := range cfg.Troops {
		category, err := domain.ParseCategory(raw)
		if err != nil {
			return nil, err
		}
		table[domain.TroopType(troop)] = category
	}
	return table, nil
}

// sampleQuestions provides a minimal bank covering every category; swap the
// loader with the Postgres-backed one in production.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID: "hg-1", Category: domain.CategoryHistoryGeography, Difficulty: 3,
			Text:        "Which river flows through Paris?",
			Answer:      "Seine",
			Distractors: []string{"Danube", "Rhine", "Loire"},
		},
		{
			ID: "sp-1", Category: domain.CategorySport, Difficulty: 3,
			Text:        "How many players are on a volleyball team on court?",
			Answer:      "6",
			Distractors: []string{"5", "7", "8"},
		},
		{
			ID: "la-1", Category: domain.CategoryLiteratureArt, Difficulty: 3,
			Text:        "Who painted the Sistine Chapel ceiling?",
			Answer:      "Michelangelo",
			Distractors: []string{"Raphael", "Donatello", "Caravaggio"},
		},
		{
			ID: "mm-1", Category: domain.CategoryMoviesMusic, Difficulty: 3,
			Text:        "Which band recorded Abbey Road?",
			Answer:      "The Beatles",
			Distractors: []string{"The Rolling Stones", "The Kinks", "The Who"},
		},
		{
			ID: "sc-1", Category: domain.CategoryScience, Difficulty: 3,
			Text:        "What is the chemical symbol for iron?",
			Answer:      "Fe",
			Distractors: []string{"Ir", "In", "F"},
		},
	}
}
