package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"conquest-duel-service/internal/domain"
)

// StatsRecorder accumulates per-player answer counters in a Redis hash:
// HINCRBY stats:player:{id} {category}:{outcome} 1
type StatsRecorder struct {
	client *redis.Client
}

func NewStatsRecorder(client *redis.Client) *StatsRecorder {
	return &StatsRecorder{client: client}
}

// Record implements app.StatisticsRecorder. Failures are logged and
// swallowed; statistics are best-effort and must never stall a duel.
func (r *StatsRecorder) Record(ctx context.Context, playerID string, event domain.StatEvent) {
	field := fmt.Sprintf("%s:%s", event.Category, event.Outcome())
	if err := r.client.HIncrBy(ctx, r.key(playerID), field, 1).Err(); err != nil {
		log.Warn().Err(err).Str("player", playerID).Str("field", field).Msg("stats record failed")
	}
}

func (r *StatsRecorder) key(playerID string) string {
	return "stats:player:" + playerID
}
