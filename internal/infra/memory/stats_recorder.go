package memory

import (
	"context"
	"fmt"
	"sync"

	"conquest-duel-service/internal/domain"
)

// StatsRecorder keeps per-player, per-category answer counters in memory.
type StatsRecorder struct {
	mu     sync.RWMutex
	counts map[string]map[string]int
}

func NewStatsRecorder() *StatsRecorder {
	return &StatsRecorder{
		counts: make(map[string]map[string]int),
	}
}

// Record implements app.StatisticsRecorder. It never fails.
func (r *StatsRecorder) Record(_ context.Context, playerID string, event domain.StatEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	player, ok := r.counts[playerID]
	if !ok {
		player = make(map[string]int)
		r.counts[playerID] = player
	}
	player[statField(event)]++
}

// Count returns one counter, e.g. Count("p1", CategorySport, "correct").
func (r *StatsRecorder) Count(playerID string, category domain.Category, outcome string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counts[playerID][fmt.Sprintf("%s:%s", category, outcome)]
}

// Total returns the number of events recorded for a player.
func (r *StatsRecorder) Total(playerID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, n := range r.counts[playerID] {
		total += n
	}
	return total
}

func statField(event domain.StatEvent) string {
	return fmt.Sprintf("%s:%s", event.Category, event.Outcome())
}
