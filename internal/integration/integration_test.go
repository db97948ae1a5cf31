package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"conquest-duel-service/internal/app"
	"conquest-duel-service/internal/domain"
	pgloader "conquest-duel-service/internal/infra/postgres"
	pgmigrations "conquest-duel-service/internal/infra/postgres/migrations"
	infraredis "conquest-duel-service/internal/infra/redis"
)

func TestDuelEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuestions(t, ctx, pgURL, sampleBank())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	source := infraredis.NewQuestionCache(redisClient, pgloader.NewQuestionLoader(pool), 5*time.Minute)
	stats := infraredis.NewStatsRecorder(redisClient)
	duels := infraredis.NewDuelStore(redisClient, 5*time.Minute)
	service := app.NewDuelService(duels, source, domain.DefaultTroopTable(), stats, app.DefaultTimings(), zerolog.Nop())

	if _, err := service.StartDuel(ctx, app.StartParams{
		DuelID:         "duel-1",
		Territory:      "hill-12",
		AttackerID:     "alice",
		DefenderID:     "bob",
		AttackerTroops: map[domain.TroopType]int{"archer": 1},
		DefenderTroops: map[domain.TroopType]int{"wizard": 1},
	}); err != nil {
		t.Fatalf("start duel: %v", err)
	}

	for {
		snapshot, err := service.Snapshot("duel-1")
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if snapshot.Phase == domain.PhaseDuelOver {
			break
		}
		player := "alice"
		if snapshot.TurnOwner == domain.RoleDefender {
			player = "bob"
		}
		switch snapshot.Phase {
		case domain.PhaseSelectingDifficulty:
			if err := service.SelectDifficulty(ctx, "duel-1", player, snapshot.Generation, 3); err != nil {
				t.Fatalf("select difficulty: %v", err)
			}
		case domain.PhaseAnsweringQuestion:
			// The attacker always finds the right option, the defender never does.
			option := 0
			for i, opt := range snapshot.Question.Options {
				correct := opt == "right"
				if correct == (snapshot.TurnOwner == domain.RoleAttacker) {
					option = i
					break
				}
			}
			if err := service.SelectAnswer(ctx, "duel-1", player, snapshot.Generation, option); err != nil {
				t.Fatalf("select answer: %v", err)
			}
		case domain.PhaseShowingFeedback:
			service.Tick(ctx, "duel-1", snapshot.Generation, snapshot.Remaining)
		}
	}

	result, err := service.Result("duel-1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if result.AttackerScore != 300 || result.DefenderScore != 0 || result.Winner != domain.RoleAttacker {
		t.Fatalf("unexpected result %+v", result)
	}

	// Statistics landed in redis, one event per token.
	if got, err := redisClient.HGet(ctx, "stats:player:alice", "sport:correct").Result(); err != nil || got != "1" {
		t.Fatalf("expected alice sport:correct=1, got %q err=%v", got, err)
	}
	if got, err := redisClient.HGet(ctx, "stats:player:bob", "science:incorrect").Result(); err != nil || got != "1" {
		t.Fatalf("expected bob science:incorrect=1, got %q err=%v", got, err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "duel", "POSTGRES_PASSWORD": "duelpass", "POSTGRES_DB": "dueldb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://duel:duelpass@%s:%s/dueldb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuestions(t *testing.T, ctx context.Context, dsn string, questions []domain.Question) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, q := range questions {
		distractors, err := json.Marshal(q.Distractors)
		if err != nil {
			t.Fatalf("marshal distractors: %v", err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO questions (category, difficulty, text, answer, distractors) VALUES (?, ?, ?, ?, ?::jsonb)`,
			string(q.Category), q.Difficulty, q.Text, q.Answer, string(distractors)); err != nil {
			t.Fatalf("insert question: %v", err)
		}
	}
}

func sampleBank() []domain.Question {
	var questions []domain.Question
	for _, category := range domain.Categories {
		questions = append(questions, domain.Question{
			Category:    category,
			Difficulty:  3,
			Text:        "pick the right option",
			Answer:      "right",
			Distractors: []string{"wrong a", "wrong b"},
		})
	}
	return questions
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
