package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"conquest-duel-service/internal/app"
	"conquest-duel-service/internal/domain"
)

// WSHandler is the presentation adapter: it forwards player input into the
// duel engine and streams phase snapshots back, and it pumps the countdown
// ticks that drive the engine's timers.
type WSHandler struct {
	service      *app.DuelService
	upgrader     websocket.Upgrader
	tickInterval time.Duration

	mu    sync.Mutex
	pumps map[string]struct{}
}

func NewWSHandler(service *app.DuelService, tickInterval time.Duration) *WSHandler {
	return &WSHandler{
		service:      service,
		tickInterval: tickInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pumps: make(map[string]struct{}),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	Territory      string         `json:"territory"`
	DefenderID     string         `json:"defenderId"`
	AttackerTroops map[string]int `json:"attackerTroops"`
	DefenderTroops map[string]int `json:"defenderTroops"`
	Standalone     bool           `json:"standalone,omitempty"`
}

type difficultyPayload struct {
	Generation uint64 `json:"generation"`
	Level      int    `json:"level"`
}

type answerPayload struct {
	Generation uint64 `json:"generation"`
	Option     int    `json:"option"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the duel
// use cases. The attacker opens the duel with a start message; the defender
// connects to the same duelId and is attached to the running duel.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	duelID := r.URL.Query().Get("duelId")
	playerID := r.URL.Query().Get("playerId")
	if duelID == "" || playerID == "" {
		http.Error(w, "missing duelId or playerId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Error().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	var (
		updatesDone chan struct{}
		cancelSub   func()
	)
	subscribe := func() bool {
		if cancelSub != nil {
			return true
		}
		updates, cancel, err := h.service.Subscribe(duelID)
		if err != nil {
			return false
		}
		cancelSub = cancel
		updatesDone = make(chan struct{})
		go func() {
			defer close(updatesDone)
			for {
				select {
				case snapshot, ok := <-updates:
					if !ok {
						return
					}
					select {
					case send <- outboundMessage[any]{Type: "phase", Payload: snapshot}:
					case <-closeSignals:
						return
					}
					if snapshot.Phase == domain.PhaseDuelOver && snapshot.Result != nil {
						select {
						case send <- outboundMessage[any]{Type: "duelOver", Payload: *snapshot.Result}:
						case <-closeSignals:
							return
						}
					}
				case <-closeSignals:
					return
				}
			}
		}()
		return true
	}

	// A defender joining an already running duel subscribes right away.
	subscribe()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			var payload startPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid start payload")
				continue
			}
			snapshot, err := h.service.StartDuel(r.Context(), app.StartParams{
				DuelID:         duelID,
				Territory:      payload.Territory,
				AttackerID:     playerID,
				DefenderID:     payload.DefenderID,
				AttackerTroops: troopCounts(payload.AttackerTroops),
				DefenderTroops: troopCounts(payload.DefenderTroops),
				Standalone:     payload.Standalone,
			})
			if err != nil {
				send <- errorMessage(err.Error())
				continue
			}
			h.startPump(duelID)
			if !subscribe() {
				// Subscription can only fail if the duel finished instantly
				// (both queues empty); deliver the terminal snapshot directly.
				send <- outboundMessage[any]{Type: "phase", Payload: snapshot}
				if snapshot.Result != nil {
					send <- outboundMessage[any]{Type: "duelOver", Payload: *snapshot.Result}
				}
			}
		case "difficulty":
			var payload difficultyPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid difficulty payload")
				continue
			}
			if err := h.service.SelectDifficulty(r.Context(), duelID, playerID, payload.Generation, payload.Level); err != nil {
				send <- errorMessage(err.Error())
			}
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid answer payload")
				continue
			}
			if err := h.service.SelectAnswer(r.Context(), duelID, playerID, payload.Generation, payload.Option); err != nil {
				send <- errorMessage(err.Error())
			}
		default:
			send <- errorMessage("unsupported message type")
		}
	}

	close(closeSignals)
	if updatesDone != nil {
		<-updatesDone
	}
	if cancelSub != nil {
		cancelSub()
	}
	close(send)
	<-writerDone
}

// startPump launches one ticker goroutine per duel, feeding elapsed time
// units into the engine. Each tick is tagged with the generation it was
// observed under, so a tick racing a player answer is discarded by the
// engine instead of double-firing a timeout.
func (h *WSHandler) startPump(duelID string) {
	h.mu.Lock()
	if _, running := h.pumps[duelID]; running {
		h.mu.Unlock()
		return
	}
	h.pumps[duelID] = struct{}{}
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.pumps, duelID)
			h.mu.Unlock()
		}()
		ticker := time.NewTicker(h.tickInterval)
		defer ticker.Stop()
		ctx := context.Background()
		for range ticker.C {
			snapshot, err := h.service.Snapshot(duelID)
			if err != nil {
				return
			}
			if snapshot.Phase == domain.PhaseDuelOver {
				h.service.Cleanup(duelID)
				return
			}
			h.service.Tick(ctx, duelID, snapshot.Generation, 1)
		}
	}()
}

func errorMessage(message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}}
}

func troopCounts(raw map[string]int) map[domain.TroopType]int {
	counts := make(map[domain.TroopType]int, len(raw))
	for troop, count := range raw {
		counts[domain.TroopType(troop)] = count
	}
	return counts
}
