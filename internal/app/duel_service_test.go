package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"conquest-duel-service/internal/app"
	"conquest-duel-service/internal/domain"
	"conquest-duel-service/internal/infra/memory"
)

func newTestService() (*app.DuelService, *memory.StatsRecorder) {
	var questions []domain.Question
	for _, category := range domain.Categories {
		for difficulty := domain.MinDifficulty; difficulty <= domain.MaxDifficulty; difficulty++ {
			questions = append(questions, questionAt(category, difficulty))
		}
	}
	stats := memory.NewStatsRecorder()
	bank := memory.NewQuestionBank(memory.NewStaticQuestionLoader(questions), 5*time.Minute)
	service := app.NewDuelService(
		memory.NewDuelStore(),
		bank,
		domain.DefaultTroopTable(),
		stats,
		app.DefaultTimings(),
		zerolog.Nop(),
	)
	return service, stats
}

func startParams() app.StartParams {
	return app.StartParams{
		DuelID:         "duel-1",
		Territory:      "hill-12",
		AttackerID:     attackerID,
		DefenderID:     defenderID,
		AttackerTroops: map[domain.TroopType]int{"archer": 1},
		DefenderTroops: map[domain.TroopType]int{"wizard": 1},
	}
}

func TestStartDuelBuildsQueues(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	snapshot, err := service.StartDuel(ctx, startParams())
	if err != nil {
		t.Fatalf("start duel: %v", err)
	}
	if snapshot.AttackerTokensLeft != 1 || snapshot.DefenderTokensLeft != 1 {
		t.Fatalf("unexpected queue sizes: %+v", snapshot)
	}
	if snapshot.Phase != domain.PhaseSelectingDifficulty || snapshot.TurnOwner != domain.RoleAttacker {
		t.Fatalf("unexpected initial phase: %+v", snapshot)
	}
}

func TestStartDuelRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	if _, err := service.StartDuel(ctx, startParams()); err != nil {
		t.Fatalf("start duel: %v", err)
	}
	if _, err := service.StartDuel(ctx, startParams()); err != domain.ErrDuelExists {
		t.Fatalf("expected ErrDuelExists, got %v", err)
	}
}

func TestResultBeforeTerminalState(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	if _, err := service.Result("nope"); err != domain.ErrDuelNotFound {
		t.Fatalf("expected ErrDuelNotFound, got %v", err)
	}

	if _, err := service.StartDuel(ctx, startParams()); err != nil {
		t.Fatalf("start duel: %v", err)
	}
	if _, err := service.Result("duel-1"); err != domain.ErrDuelNotOver {
		t.Fatalf("expected ErrDuelNotOver, got %v", err)
	}
}

func TestServiceRunsFullDuel(t *testing.T) {
	ctx := context.Background()
	service, stats := newTestService()

	if _, err := service.StartDuel(ctx, startParams()); err != nil {
		t.Fatalf("start duel: %v", err)
	}

	updates, cancel, err := service.Subscribe("duel-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-updates // initial snapshot

	for {
		snapshot, err := service.Snapshot("duel-1")
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if snapshot.Phase == domain.PhaseDuelOver {
			break
		}
		player := attackerID
		if snapshot.TurnOwner == domain.RoleDefender {
			player = defenderID
		}
		switch snapshot.Phase {
		case domain.PhaseSelectingDifficulty:
			if err := service.SelectDifficulty(ctx, "duel-1", player, snapshot.Generation, 2); err != nil {
				t.Fatalf("select difficulty: %v", err)
			}
		case domain.PhaseAnsweringQuestion:
			// Attacker answers correctly, defender picks the first wrong option.
			option := 0
			if snapshot.TurnOwner == domain.RoleAttacker {
				for i, opt := range snapshot.Question.Options {
					if opt == "right" {
						option = i
						break
					}
				}
			} else {
				for i, opt := range snapshot.Question.Options {
					if opt != "right" {
						option = i
						break
					}
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
	if result.AttackerScore != 200 || result.DefenderScore != 0 || result.Winner != domain.RoleAttacker {
		t.Fatalf("unexpected result %+v", result)
	}
	if stats.Total(attackerID) != 1 || stats.Total(defenderID) != 1 {
		t.Fatalf("expected one stat event per player, got %d/%d",
			stats.Total(attackerID), stats.Total(defenderID))
	}
	if stats.Count(attackerID, domain.CategorySport, "correct") != 1 {
		t.Fatalf("expected attacker correct counter in sport")
	}
	if stats.Count(defenderID, domain.CategoryScience, "incorrect") != 1 {
		t.Fatalf("expected defender incorrect counter in science")
	}

	// Cleanup drops finished duels.
	service.Cleanup("duel-1")
	if _, err := service.Snapshot("duel-1"); err != domain.ErrDuelNotFound {
		t.Fatalf("expected duel to be cleaned up, got %v", err)
	}
}
