package memory

import (
	"sync"

	"conquest-duel-service/internal/app"
)

// DuelStore is an in-memory implementation of app.DuelRepository.
type DuelStore struct {
	mu    sync.RWMutex
	duels map[string]*app.Duel
}

func NewDuelStore() *DuelStore {
	return &DuelStore{
		duels: make(map[string]*app.Duel),
	}
}

// Save stores the duel unless the ID is already taken.
func (s *DuelStore) Save(duelID string, duel *app.Duel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.duels[duelID]; ok {
		return false
	}
	s.duels[duelID] = duel
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
	}
}
