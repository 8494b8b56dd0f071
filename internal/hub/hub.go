// Package hub is the relay's registry of per-match lobbies.
package hub

import (
	"context"

	"github.com/DoyleJ11/league-scorekeeper/internal/lobby"
	"github.com/DoyleJ11/league-scorekeeper/internal/platform/logging"
	"github.com/DoyleJ11/league-scorekeeper/internal/session"
)

type HubMsg interface{ isHubMsg() }

type GetLobby struct {
	MatchID string
	Reply   chan *lobby.Lobby
}

// EnsureLobby returns the match's lobby, starting it with GameCount games if needed.
// Reply receives nil when the lobby cannot be started.
type EnsureLobby struct {
	MatchID   string
	GameCount int // only used if creation happens
	Reply     chan *lobby.Lobby
}

// RemoveLobby stops a match's lobby. Abandon also drops its persisted replica.
type RemoveLobby struct {
	MatchID string
	Abandon bool
	Reply   chan bool
}

type ListLobbies struct {
	Reply chan []string
}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	cache   session.Cache
	logger  *logging.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

type ShutdownHub struct{}

func (GetLobby) isHubMsg()    {}
func (EnsureLobby) isHubMsg() {}
func (RemoveLobby) isHubMsg() {}
func (ListLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

// NewHub starts the registry. Lobby replicas persist through cache.
func NewHub(parent context.Context, cache session.Cache, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		cache:   cache,
		logger:  logger.With("component", "hub"),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub and all its lobbies have stopped.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetLobby:
				msg.Reply <- h.lobbies[msg.MatchID] // May be nil

			case EnsureLobby:
				if lb := h.lobbies[msg.MatchID]; lb != nil {
					msg.Reply <- lb
					break
				}
				lb, err := lobby.NewLobby(h.ctx, msg.MatchID, msg.GameCount, h.cache, h.logger)
				if err != nil {
					h.logger.Warn("could not start lobby", "match_id", msg.MatchID, "error", err)
					msg.Reply <- nil
					break
				}
				h.lobbies[msg.MatchID] = lb
				h.logger.Info("lobby started", "match_id", msg.MatchID, "games", msg.GameCount)
				msg.Reply <- lb

			case RemoveLobby:
				lb, ok := h.lobbies[msg.MatchID]
				if ok {
					stopLobby(lb, msg.Abandon)
					delete(h.lobbies, msg.MatchID)
				}
				if msg.Reply != nil {
					msg.Reply <- ok
				}

			case ListLobbies:
				ids := make([]string, 0, len(h.lobbies))
				for id := range h.lobbies {
					ids = append(ids, id)
				}
				msg.Reply <- ids

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		stopLobby(lb, false)
	}
	clear(h.lobbies)
	h.cancel()
}

func stopLobby(lb *lobby.Lobby, abandon bool) {
	done := make(chan struct{})
	select {
	case lb.Inbox() <- lobby.Shutdown{Abandon: abandon, Done: done}:
		<-done
	case <-lb.Done():
	}
}
