package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"conquest-duel-service/internal/app"
)

// DuelStore is a Redis-aware implementation of app.DuelRepository.
// Notes:
//   - Duels themselves stay in a local in-memory map; the state machine is
//     exclusively owned by this process.
//   - Redis marks duel liveness so several instances can see which duels
//     are in flight (and could be extended to route cross-instance events).
type DuelStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	duels  map[string]*app.Duel
}

func NewDuelStore(client *redis.Client, ttl time.Duration) *DuelStore {
	return &DuelStore{
		client: client,
		ttl:    ttl,
		duels:  make(map[string]*app.Duel),
	}
}

func (s *DuelStore) Save(duelID string, duel *app.Duel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.duels[duelID]; ok {
		return false
	}
	s.duels[duelID] = duel
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(duelID), "1", s.ttl).Err()
	return true
}

func (s *DuelStore) Get(duelID string) (*app.Duel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	duel, ok := s.duels[duelID]
	return duel, ok
}

func (s *DuelStore) DeleteIfFinished(duelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	duel, ok := s.duels[duelID]
	if !ok {
		return
	}
	if duel.Finished() {
		delete(s.duels, duelID)
		_ = s.client.Del(context.Background(), s.key(duelID)).Err()
	}
}

func (s *DuelStore) key(duelID string) string {
	return "duel:session:" + duelID
}
