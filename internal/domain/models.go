package domain

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

// Category is one of the fixed trivia categories questions are tagged with.
type Category string

const (
	CategoryHistoryGeography Category = "history_geography"
	CategorySport            Category = "sport"
	CategoryLiteratureArt    Category = "literature_art"
	CategoryMoviesMusic      Category = "movies_music"
	CategoryScience          Category = "science"
)

// Categories lists every valid category in a fixed order.
var Categories = []Category{
	CategoryHistoryGeography,
	CategorySport,
	CategoryLiteratureArt,
	CategoryMoviesMusic,
	CategoryScience,
}

// ParseCategory validates a raw category string.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, raw)
}

// Difficulty bounds and scoring constants.
const (
	MinDifficulty       = 1
	MaxDifficulty       = 5
	DefaultDifficulty   = 3 // used when the selection phase times out
	PointsPerDifficulty = 100
)

// Question is an immutable multiple-choice question. The options presented
// to a player are the correct answer plus the distractors, shuffled once per
// presentation and then held fixed.
type Question struct {
	ID          string   `json:"id"`
	Text        string   `json:"text"`
	Answer      string   `json:"answer"`
	Distractors []string `json:"distractors"`
	Category    Category `json:"category"`
	Difficulty  int      `json:"difficulty"`
}

// ShuffledOptions returns the full option set in a freshly shuffled order.
func (q Question) ShuffledOptions(rnd *rand.Rand) []string {
	options := make([]string, 0, len(q.Distractors)+1)
	options = append(options, q.Answer)
	options = append(options, q.Distractors...)
	rnd.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	return options
}

// IsCorrect compares a selected option against the correct answer,
// ignoring case and surrounding whitespace.
func (q Question) IsCorrect(option string) bool {
	return strings.EqualFold(strings.TrimSpace(option), strings.TrimSpace(q.Answer))
}

// TroopType identifies a troop in an army composition.
type TroopType string

// TroopTable maps troop types to the trivia category they demand.
type TroopTable map[TroopType]Category

// CategoryOf resolves the category for a troop type.
func (t TroopTable) CategoryOf(troop TroopType) (Category, bool) {
	category, ok := t[troop]
	return category, ok
}

// DefaultTroopTable is the built-in troop catalog mapping, used when the
// config does not override it.
func DefaultTroopTable() TroopTable {
	return TroopTable{
		"knight": CategoryHistoryGeography,
		"archer": CategorySport,
		"bard":   CategoryLiteratureArt,
		"scout":  CategoryMoviesMusic,
		"wizard": CategoryScience,
	}
}

// SortedTroopTypes returns the troop types of a count mapping in a stable
// order, so a given army always expands into the same queue.
func SortedTroopTypes(counts map[TroopType]int) []TroopType {
	types := make([]TroopType, 0, len(counts))
	for troop := range counts {
		types = append(types, troop)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// DemandToken is one unit of "owe a question of this category", generated
// from one troop unit. Consumed exactly once; never mutated.
type DemandToken struct {
	Troop    TroopType `json:"troop"`
	Category Category  `json:"category"`
}

// Role identifies a duel participant.
type Role string

const (
	RoleAttacker Role = "attacker"
	RoleDefender Role = "defender"
)

// Opponent returns the other side.
func (r Role) Opponent() Role {
	if r == RoleAttacker {
		return RoleDefender
	}
	return RoleAttacker
}

// Phase is the current stage of a duel's state machine.
type Phase string

const (
	PhaseSelectingDifficulty Phase = "selecting_difficulty"
	PhaseAnsweringQuestion   Phase = "answering_question"
	PhaseShowingFeedback     Phase = "showing_feedback"
	PhaseDuelOver            Phase = "duel_over"
)

// DuelResult is the immutable terminal output of a duel. The attacker wins
// only on a strictly greater score; ties go to the defender.
type DuelResult struct {
	AttackerScore int  `json:"attackerScore"`
	DefenderScore int  `json:"defenderScore"`
	Winner        Role `json:"winner"`
}

// NewDuelResult computes the winner from the final scores.
func NewDuelResult(attackerScore, defenderScore int) DuelResult {
	winner := RoleDefender
	if attackerScore > defenderScore {
		winner = RoleAttacker
	}
	return DuelResult{
		AttackerScore: attackerScore,
		DefenderScore: defenderScore,
		Winner:        winner,
	}
}

// QuestionView is the player-facing projection of a question: the shuffled
// options carry no marker for which one is correct.
type QuestionView struct {
	Text       string   `json:"text"`
	Category   Category `json:"category"`
	Difficulty int      `json:"difficulty"`
	Options    []string `json:"options"`
}

// Feedback describes the outcome of the token just resolved.
type Feedback struct {
	Correct             bool   `json:"correct"`
	TimedOut            bool   `json:"timedOut"`
	QuestionUnavailable bool   `json:"questionUnavailable"`
	CorrectAnswer       string `json:"correctAnswer,omitempty"`
}

// PhaseSnapshot is a read-only projection of the duel for presentation.
type PhaseSnapshot struct {
	DuelID             string        `json:"duelId"`
	Territory          string        `json:"territory"`
	Phase              Phase         `json:"phase"`
	Generation         uint64        `json:"generation"`
	TurnOwner          Role          `json:"turnOwner"`
	Remaining          int           `json:"remaining"`
	Difficulty         int           `json:"difficulty,omitempty"`
	Question           *QuestionView `json:"question,omitempty"`
	Feedback           *Feedback     `json:"feedback,omitempty"`
	AttackerScore      int           `json:"attackerScore"`
	DefenderScore      int           `json:"defenderScore"`
	AttackerTokensLeft int           `json:"attackerTokensLeft"`
	DefenderTokensLeft int           `json:"defenderTokensLeft"`
	Result             *DuelResult   `json:"result,omitempty"`
}

// StatEvent is the per-token statistics signal sent to the recorder.
// TimedOut lets sinks distinguish a timeout from a wrong selection; scoring
// treats both as incorrect.
type StatEvent struct {
	Category Category `json:"category"`
	Correct  bool     `json:"correct"`
	TimedOut bool     `json:"timedOut"`
}

// Outcome is the canonical counter name for this event.
func (e StatEvent) Outcome() string {
	switch {
	case e.Correct:
		return "correct"
	case e.TimedOut:
		return "timeout"
	default:
		return "incorrect"
	}
}
