package app

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"conquest-duel-service/internal/domain"
)

// DuelRepository abstracts how live duels are stored (in-memory, Redis, etc).
type DuelRepository interface {
	Save(duelID string, duel *Duel) bool
	Get(duelID string) (*Duel, bool)
	DeleteIfFinished(duelID string)
}

// DuelService contains the duel resolution use cases.
type DuelService struct {
	duels   DuelRepository
	source  QuestionSource
	troops  TroopResolver
	stats   StatisticsRecorder
	timings Timings
	logger  zerolog.Logger
}

func NewDuelService(duels DuelRepository, source QuestionSource, troops TroopResolver, stats StatisticsRecorder, timings Timings, logger zerolog.Logger) *DuelService {
	return &DuelService{
		duels:   duels,
		source:  source,
		troops:  troops,
		stats:   stats,
		timings: timings,
		logger:  logger,
	}
}

// StartParams describes the territorial attack a duel resolves.
type StartParams struct {
	DuelID         string
	Territory      string
	AttackerID     string
	DefenderID     string
	AttackerTroops map[domain.TroopType]int
	DefenderTroops map[domain.TroopType]int
	// Standalone selects the slower non-duel answer pacing.
	Standalone bool
}

// StartDuel builds both question queues from the troop compositions and
// creates the duel in its initial phase. A duel where both queues start
// empty is returned already over with a 0-0 result.
func (s *DuelService) StartDuel(_ context.Context, params StartParams) (domain.PhaseSnapshot, error) {
	if _, exists := s.duels.Get(params.DuelID); exists {
		return domain.PhaseSnapshot{}, domain.ErrDuelExists
	}

	timings := s.timings
	if params.Standalone && timings.StandaloneAnswerBudget > 0 {
		timings.AnswerBudget = timings.StandaloneAnswerBudget
	}

	attackerQueue, defenderQueue := BuildQueues(s.troops, params.AttackerTroops, params.DefenderTroops, s.logger)
	duel := NewDuel(DuelParams{
		ID:            params.DuelID,
		Territory:     params.Territory,
		AttackerID:    params.AttackerID,
		DefenderID:    params.DefenderID,
		AttackerQueue: attackerQueue,
		DefenderQueue: defenderQueue,
		Timings:       timings,
		Source:        s.source,
		Stats:         s.stats,
		Rand:          rand.New(rand.NewSource(time.Now().UnixNano())),
		Logger:        s.logger,
	})
	if !s.duels.Save(params.DuelID, duel) {
		return domain.PhaseSnapshot{}, domain.ErrDuelExists
	}
	s.logger.Info().
		Str("duel", params.DuelID).
		Str("territory", params.Territory).
		Int("attackerQueue", len(attackerQueue)).
		Int("defenderQueue", len(defenderQueue)).
		Msg("duel started")
	return duel.Snapshot(), nil
}

// SelectDifficulty forwards the turn owner's difficulty pick.
func (s *DuelService) SelectDifficulty(ctx context.Context, duelID, playerID string, generation uint64, level int) error {
	duel, ok := s.duels.Get(duelID)
	if !ok {
		return domain.ErrDuelNotFound
	}
	return duel.SelectDifficulty(ctx, playerID, generation, level)
}

// SelectAnswer forwards the turn owner's option pick.
func (s *DuelService) SelectAnswer(ctx context.Context, duelID, playerID string, generation uint64, optionIndex int) error {
	duel, ok := s.duels.Get(duelID)
	if !ok {
		return domain.ErrDuelNotFound
	}
	return duel.SelectAnswer(ctx, playerID, generation, optionIndex)
}

// Tick drives the duel's countdowns. Ticks for unknown or finished duels
// are dropped.
func (s *DuelService) Tick(ctx context.Context, duelID string, generation uint64, elapsed int) {
	duel, ok := s.duels.Get(duelID)
	if !ok {
		return
	}
	duel.Tick(ctx, generation, elapsed)
}

// Snapshot returns the duel's current phase projection.
func (s *DuelService) Snapshot(duelID string) (domain.PhaseSnapshot, error) {
	duel, ok := s.duels.Get(duelID)
	if !ok {
		return domain.PhaseSnapshot{}, domain.ErrDuelNotFound
	}
	return duel.Snapshot(), nil
}

// Result returns the one-shot terminal result, once the duel is over.
func (s *DuelService) Result(duelID string) (domain.DuelResult, error) {
	duel, ok := s.duels.Get(duelID)
	if !ok {
		return domain.DuelResult{}, domain.ErrDuelNotFound
	}
	result, over := duel.Result()
	if !over {
		return domain.DuelResult{}, domain.ErrDuelNotOver
	}
	return result, nil
}

// Subscribe returns a channel that receives a snapshot on every duel
// transition. The caller must invoke the returned cancel function.
func (s *DuelService) Subscribe(duelID string) (<-chan domain.PhaseSnapshot, func(), error) {
	duel, ok := s.duels.Get(duelID)
	if !ok {
		return nil, nil, domain.ErrDuelNotFound
	}
	ch, cancel := duel.Subscribe()
	return ch, cancel, nil
}

// Cleanup drops the duel from the repository once it is over.
func (s *DuelService) Cleanup(duelID string) {
	s.duels.DeleteIfFinished(duelID)
}
