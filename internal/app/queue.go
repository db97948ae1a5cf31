package app

import (
	"github.com/rs/zerolog"

	"conquest-duel-service/internal/domain"
)

// TroopResolver maps a troop type to the trivia category it demands.
type TroopResolver interface {
	CategoryOf(troop domain.TroopType) (domain.Category, bool)
}

// BuildQueues expands both sides' troop-count mappings into ordered demand
// token queues, one token per troop unit. Troop types the resolver does not
// know are skipped with a warning; a bad entry never aborts the rest of the
// army. Troop types are iterated in sorted order so a given input always
// produces the same queue.
func BuildQueues(resolver TroopResolver, attacker, defender map[domain.TroopType]int, logger zerolog.Logger) (attackerQueue, defenderQueue []domain.DemandToken) {
	return buildQueue(resolver, attacker, logger), buildQueue(resolver, defender, logger)
}

func buildQueue(resolver TroopResolver, troops map[domain.TroopType]int, logger zerolog.Logger) []domain.DemandToken {
	var queue []domain.DemandToken
	for _, troop := range domain.SortedTroopTypes(troops) {
		count := troops[troop]
		if count <= 0 {
			continue
		}
		category, ok := resolver.CategoryOf(troop)
		if !ok {
			logger.Warn().Str("troop", string(troop)).Msg("unknown troop type, skipping its questions")
			continue
		}
		for i := 0; i < count; i++ {
			queue = append(queue, domain.DemandToken{Troop: troop, Category: category})
		}
	}
	return queue
}
