package app

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"github.com/rs/zerolog"

	"conquest-duel-service/internal/domain"
)

// QuestionSource returns one random question for a category at an exact
// difficulty, or domain.ErrQuestionUnavailable when none exists.
type QuestionSource interface {
	RandomQuestion(ctx context.Context, category domain.Category, difficulty int) (domain.Question, error)
}

// StatisticsRecorder receives one event per resolved token. Implementations
// must be fire-and-forget; the engine never reads statistics back.
type StatisticsRecorder interface {
	Record(ctx context.Context, playerID string, event domain.StatEvent)
}

// Timings are the countdown budgets of the timed phases, in time units.
// The tick cadence that maps units to wall clock is owned by the caller.
// StandaloneAnswerBudget replaces AnswerBudget for standalone (non-duel)
// play, which runs at a slower pace.
type Timings struct {
	SelectionBudget        int
	AnswerBudget           int
	StandaloneAnswerBudget int
	FeedbackBudget         int
}

// DefaultTimings is the duel pacing: 10 units to pick a difficulty, 10 to
// answer (20 standalone), 2 to show the outcome.
func DefaultTimings() Timings {
	return Timings{SelectionBudget: 10, AnswerBudget: 10, StandaloneAnswerBudget: 20, FeedbackBudget: 2}
}

type queueState struct {
	tokens []domain.DemandToken
	cursor int
}

func (q *queueState) exhausted() bool             { return q.cursor >= len(q.tokens) }
func (q *queueState) current() domain.DemandToken { return q.tokens[q.cursor] }
func (q *queueState) left() int                   { return len(q.tokens) - q.cursor }

type outcome struct {
	correct     bool
	timedOut    bool
	unavailable bool
}

// Duel is the state machine resolving one territorial attack. All
// transitions are serialized behind one mutex; every phase carries a
// generation number, and events tagged with a stale generation are no-ops.
type Duel struct {
	id        string
	territory string
	players   map[domain.Role]string
	timings   Timings
	source    QuestionSource
	stats     StatisticsRecorder
	rnd       *rand.Rand
	logger    zerolog.Logger

	mu          sync.Mutex
	generation  uint64
	phase       domain.Phase
	turn        domain.Role
	queues      map[domain.Role]*queueState
	scores      map[domain.Role]int
	remaining   int
	difficulty  int
	question    *domain.Question
	options     []string
	feedback    *domain.Feedback
	result      *domain.DuelResult
	subscribers map[chan domain.PhaseSnapshot]struct{}
}

// DuelParams carries everything needed to start a duel.
type DuelParams struct {
	ID            string
	Territory     string
	AttackerID    string
	DefenderID    string
	AttackerQueue []domain.DemandToken
	DefenderQueue []domain.DemandToken
	Timings       Timings
	Source        QuestionSource
	Stats         StatisticsRecorder
	Rand          *rand.Rand
	Logger        zerolog.Logger
}

// NewDuel builds a duel and enters its initial phase: the attacker selects
// first unless their queue is already empty, and a duel with two empty
// queues is immediately over with a 0-0 result.
func NewDuel(params DuelParams) *Duel {
	d := &Duel{
		id:        params.ID,
		territory: params.Territory,
		players: map[domain.Role]string{
			domain.RoleAttacker: params.AttackerID,
			domain.RoleDefender: params.DefenderID,
		},
		timings: params.Timings,
		source:  params.Source,
		stats:   params.Stats,
		rnd:     params.Rand,
		logger:  params.Logger.With().Str("duel", params.ID).Logger(),
		turn:    domain.RoleAttacker,
		queues: map[domain.Role]*queueState{
			domain.RoleAttacker: {tokens: params.AttackerQueue},
			domain.RoleDefender: {tokens: params.DefenderQueue},
		},
		scores:      map[domain.Role]int{domain.RoleAttacker: 0, domain.RoleDefender: 0},
		subscribers: make(map[chan domain.PhaseSnapshot]struct{}),
	}
	d.mu.Lock()
	d.enterSelectingLocked()
	d.mu.Unlock()
	return d
}

// SelectDifficulty accepts the turn owner's difficulty pick. Stale
// generations and wrong phases are silent no-ops (the timeout already won).
func (d *Duel) SelectDifficulty(ctx context.Context, playerID string, generation uint64, level int) error {
	if level < domain.MinDifficulty || level > domain.MaxDifficulty {
		return domain.ErrInvalidDifficulty
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase != domain.PhaseSelectingDifficulty || generation != d.generation {
		return nil
	}
	if err := d.checkTurnLocked(playerID); err != nil {
		return err
	}
	d.beginQuestionLocked(ctx, level)
	return nil
}

// SelectAnswer accepts the turn owner's option pick. Stale generations and
// wrong phases are silent no-ops; only the first event for a phase counts.
func (d *Duel) SelectAnswer(ctx context.Context, playerID string, generation uint64, optionIndex int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase != domain.PhaseAnsweringQuestion || generation != d.generation {
		return nil
	}
	if err := d.checkTurnLocked(playerID); err != nil {
		return err
	}
	if optionIndex < 0 || optionIndex >= len(d.options) {
		return domain.ErrInvalidOption
	}
	d.resolveTokenLocked(ctx, outcome{correct: d.question.IsCorrect(d.options[optionIndex])})
	return nil
}

// Tick advances the current phase's countdown by elapsed time units. Ticks
// tagged with a generation other than the current one are discarded, so a
// late tick from a phase that already advanced cannot double-fire.
func (d *Duel) Tick(ctx context.Context, generation uint64, elapsed int) {
	if elapsed <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase == domain.PhaseDuelOver || generation != d.generation {
		return
	}
	d.remaining -= elapsed
	if d.remaining > 0 {
		return
	}
	switch d.phase {
	case domain.PhaseSelectingDifficulty:
		d.beginQuestionLocked(ctx, domain.DefaultDifficulty)
	case domain.PhaseAnsweringQuestion:
		d.resolveTokenLocked(ctx, outcome{timedOut: true})
	case domain.PhaseShowingFeedback:
		d.advanceLocked()
	}
}

// Snapshot returns the current read-only projection of the duel.
func (d *Duel) Snapshot() domain.PhaseSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// Result returns the terminal result once the duel is over. It is
// idempotent: every call after the terminal state returns the same value.
func (d *Duel) Result() (domain.DuelResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.result == nil {
		return domain.DuelResult{}, false
	}
	return *d.result, true
}

// Finished reports whether the duel reached its terminal state.
func (d *Duel) Finished() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase == domain.PhaseDuelOver
}

// Subscribe returns a channel receiving a snapshot on every transition,
// starting with the current one. The caller must invoke cancel to avoid
// leaks.
func (d *Duel) Subscribe() (<-chan domain.PhaseSnapshot, func()) {
	ch := make(chan domain.PhaseSnapshot, 8)

	d.mu.Lock()
	d.subscribers[ch] = struct{}{}
	initial := d.snapshotLocked()
	d.mu.Unlock()

	ch <- initial

	cancel := func() {
		d.mu.Lock()
		if _, ok := d.subscribers[ch]; ok {
			delete(d.subscribers, ch)
			close(ch)
		}
		d.mu.Unlock()
	}
	return ch, cancel
}

func (d *Duel) checkTurnLocked(playerID string) error {
	if playerID != d.players[domain.RoleAttacker] && playerID != d.players[domain.RoleDefender] {
		return domain.ErrNotAParticipant
	}
	if playerID != d.players[d.turn] {
		return domain.ErrNotYourTurn
	}
	return nil
}

// enterSelectingLocked applies the exhaustion rule: if the would-be turn
// owner has no tokens left, ownership flips to the other side; if neither
// side does, the duel is over.
func (d *Duel) enterSelectingLocked() {
	if d.queues[d.turn].exhausted() {
		other := d.turn.Opponent()
		if d.queues[other].exhausted() {
			d.enterOverLocked()
			return
		}
		d.turn = other
	}
	d.generation++
	d.phase = domain.PhaseSelectingDifficulty
	d.remaining = d.timings.SelectionBudget
	d.difficulty = 0
	d.question = nil
	d.options = nil
	d.feedback = nil
	d.broadcastLocked()
}

// beginQuestionLocked dequeues the current token and fetches its question.
// A content gap at the requested difficulty falls back to the nearest
// adjacent difficulty; a category with no questions at all resolves the
// token as unavailable instead of presenting a nil question.
func (d *Duel) beginQuestionLocked(ctx context.Context, level int) {
	token := d.queues[d.turn].current()
	question, ok := d.fetchQuestionLocked(ctx, token.Category, level)
	if !ok {
		d.logger.Warn().
			Str("category", string(token.Category)).
			Int("difficulty", level).
			Msg("content gap: no question in category at any difficulty")
		d.resolveTokenLocked(ctx, outcome{unavailable: true})
		return
	}
	d.generation++
	d.phase = domain.PhaseAnsweringQuestion
	d.difficulty = question.Difficulty
	d.question = &question
	d.options = question.ShuffledOptions(d.rnd)
	d.remaining = d.timings.AnswerBudget
	d.broadcastLocked()
}

// fetchQuestionLocked tries the wanted difficulty first, then adjacent
// levels ordered by distance, lower first.
func (d *Duel) fetchQuestionLocked(ctx context.Context, category domain.Category, want int) (domain.Question, bool) {
	levels := []int{want}
	for offset := 1; offset < domain.MaxDifficulty; offset++ {
		if level := want - offset; level >= domain.MinDifficulty {
			levels = append(levels, level)
		}
		if level := want + offset; level <= domain.MaxDifficulty {
			levels = append(levels, level)
		}
	}
	for _, level := range levels {
		question, err := d.source.RandomQuestion(ctx, category, level)
		if err == nil {
			if level != want {
				d.logger.Warn().
					Str("category", string(category)).
					Int("wanted", want).
					Int("used", level).
					Msg("content gap: fell back to adjacent difficulty")
			}
			return question, true
		}
		if !errors.Is(err, domain.ErrQuestionUnavailable) {
			d.logger.Error().Err(err).
				Str("category", string(category)).
				Int("difficulty", level).
				Msg("question source failed")
		}
	}
	return domain.Question{}, false
}

// resolveTokenLocked scores the outcome and records the statistics event.
// Recording happens before the turn flips, and exactly once per token.
func (d *Duel) resolveTokenLocked(ctx context.Context, out outcome) {
	token := d.queues[d.turn].current()
	if out.correct {
		d.scores[d.turn] += d.difficulty * domain.PointsPerDifficulty
	}
	d.stats.Record(ctx, d.players[d.turn], domain.StatEvent{
		Category: token.Category,
		Correct:  out.correct,
		TimedOut: out.timedOut,
	})

	feedback := domain.Feedback{
		Correct:             out.correct,
		TimedOut:            out.timedOut,
		QuestionUnavailable: out.unavailable,
	}
	if d.question != nil {
		feedback.CorrectAnswer = d.question.Answer
	}
	d.generation++
	d.phase = domain.PhaseShowingFeedback
	d.feedback = &feedback
	d.remaining = d.timings.FeedbackBudget
	d.broadcastLocked()
}

// advanceLocked consumes the resolved token and hands the turn to the other
// side. Alternation is unconditional here; ownership only sticks via the
// exhaustion rule when re-entering the selection phase.
func (d *Duel) advanceLocked() {
	d.queues[d.turn].cursor++
	d.turn = d.turn.Opponent()
	d.enterSelectingLocked()
}

func (d *Duel) enterOverLocked() {
	if d.result != nil {
		return
	}
	result := domain.NewDuelResult(d.scores[domain.RoleAttacker], d.scores[domain.RoleDefender])
	d.result = &result
	d.generation++
	d.phase = domain.PhaseDuelOver
	d.remaining = 0
	d.question = nil
	d.options = nil
	d.logger.Info().
		Int("attackerScore", result.AttackerScore).
		Int("defenderScore", result.DefenderScore).
		Str("winner", string(result.Winner)).
		Msg("duel over")
	d.broadcastLocked()
}

func (d *Duel) snapshotLocked() domain.PhaseSnapshot {
	snapshot := domain.PhaseSnapshot{
		DuelID:             d.id,
		Territory:          d.territory,
		Phase:              d.phase,
		Generation:         d.generation,
		TurnOwner:          d.turn,
		Remaining:          d.remaining,
		Difficulty:         d.difficulty,
		AttackerScore:      d.scores[domain.RoleAttacker],
		DefenderScore:      d.scores[domain.RoleDefender],
		AttackerTokensLeft: d.queues[domain.RoleAttacker].left(),
		DefenderTokensLeft: d.queues[domain.RoleDefender].left(),
	}
	if d.question != nil && d.phase == domain.PhaseAnsweringQuestion {
		options := make([]string, len(d.options))
		copy(options, d.options)
		snapshot.Question = &domain.QuestionView{
			Text:       d.question.Text,
			Category:   d.question.Category,
			Difficulty: d.question.Difficulty,
			Options:    options,
		}
	}
	if d.feedback != nil && d.phase == domain.PhaseShowingFeedback {
		feedback := *d.feedback
		snapshot.Feedback = &feedback
	}
	if d.result != nil {
		result := *d.result
		snapshot.Result = &result
	}
	return snapshot
}

func (d *Duel) broadcastLocked() {
	snapshot := d.snapshotLocked()
	for ch := range d.subscribers {
		select {
		case ch <- snapshot:
		default:
			// Drop the oldest pending snapshot so a slow client never
			// blocks the state machine.
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}
