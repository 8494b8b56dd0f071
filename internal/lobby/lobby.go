// Package lobby is the relay's per-match room: an actor that fans every client frame out to
// the other clients and keeps an operator-role replica so joiners get a current match_state.
// A replica that has never seen any work stays silent; clients then announce their own state.
package lobby

import (
	"context"

	"github.com/DoyleJ11/league-scorekeeper/internal/engine"
	"github.com/DoyleJ11/league-scorekeeper/internal/platform/logging"
	"github.com/DoyleJ11/league-scorekeeper/internal/session"
	"github.com/DoyleJ11/league-scorekeeper/pkg/types"
)

type Msg interface{ isLobbyMsg() }

// FromClient is a decoded frame sent by ClientID.
type FromClient struct {
	ClientID string
	Msg      types.Message
}

func (FromClient) isLobbyMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Envelope // where this client wants to receive frames
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

// Shutdown stops the room. Abandon also drops the replica's persisted snapshot.
type Shutdown struct {
	Abandon bool
	Done    chan struct{}
}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

// Envelope is one encoded frame bound for a client.
type Envelope struct {
	Version int
	Kind    types.MessageType
	Payload []byte
}

type View struct {
	MatchID    string
	Version    int
	NumClients int
	Session    session.Session
}

type Lobby struct {
	matchID string
	inbox   chan Msg
	replica *session.Store
	version int
	clients map[string]chan Envelope
	logger  *logging.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLobby starts the room for matchID. The replica resumes from cache when a snapshot exists.
func NewLobby(parent context.Context, matchID string, gameCount int, cache session.Cache, logger *logging.Logger) (*Lobby, error) {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With("component", "lobby", "match_id", matchID)

	replica := session.NewStore(engine.RoleOperator, cache, session.WithLogger(logger))
	if _, err := replica.Initialize(parent, matchID, gameCount, nil); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	l := &Lobby{
		matchID: matchID,
		inbox:   make(chan Msg, 64),
		replica: replica,
		clients: make(map[string]chan Envelope),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go l.loop()
	return l, nil
}

func (l *Lobby) MatchID() string { return l.matchID }

// Done is closed once the actor has stopped.
func (l *Lobby) Done() <-chan struct{} { return l.done }

func (l *Lobby) loop() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				// Register client + send the replica's snapshot if it has one
				l.clients[msg.ClientID] = msg.Outbox
				if !l.replica.Snapshot().Blank() {
					l.sendTo(msg.ClientID, l.snapshot())
				}
				l.logger.Info("client joined", "client_id", msg.ClientID, "clients", len(l.clients))

			case Leave:
				delete(l.clients, msg.ClientID)
				l.logger.Info("client left", "client_id", msg.ClientID, "clients", len(l.clients))

			case FromClient:
				l.handleFrame(msg)

			case GetState:
				msg.Reply <- View{
					MatchID:    l.matchID,
					Version:    l.version,
					NumClients: len(l.clients),
					Session:    l.replica.Snapshot(),
				}

			case Shutdown:
				if msg.Abandon {
					if err := l.replica.Clear(l.ctx); err != nil {
						l.logger.Warn("clearing replica failed", "error", err)
					}
				}
				l.shutdown()
				if msg.Done != nil {
					close(msg.Done)
				}
				return
			}
		}
	}
}

func (l *Lobby) handleFrame(msg FromClient) {
	if _, ok := msg.Msg.(types.StateRequest); ok && !l.replica.Snapshot().Blank() {
		l.sendTo(msg.ClientID, l.snapshot())
		return
	}

	ctx := logging.WithClient(l.ctx, msg.ClientID)
	if err := l.replica.ApplyRemote(ctx, msg.Msg); err != nil {
		// peers decide for themselves; the replica is only advisory
		l.logger.WarnContext(ctx, "replica could not apply frame", "type", string(msg.Msg.Kind()), "error", err)
	}

	env, ok := l.envelope(msg.Msg)
	if !ok {
		return
	}
	l.version++
	env.Version = l.version
	l.broadcast(env, msg.ClientID)
}

func (l *Lobby) snapshot() Envelope {
	env, _ := l.envelope(l.replica.Snapshot().MatchState())
	env.Version = l.version
	return env
}

func (l *Lobby) envelope(msg types.Message) (Envelope, bool) {
	payload, err := types.Encode(msg)
	if err != nil {
		l.logger.Warn("encode failed", "type", string(msg.Kind()), "error", err)
		return Envelope{}, false
	}
	return Envelope{Kind: msg.Kind(), Payload: payload}, true
}

func (l *Lobby) shutdown() {
	for id, ch := range l.clients {
		close(ch) // Tell client no more frames
		delete(l.clients, id)
	}
	l.cancel()
}

func (l *Lobby) sendTo(id string, env Envelope) {
	ch, ok := l.clients[id]
	if !ok || len(env.Payload) == 0 {
		return
	}
	select {
	case ch <- env:
	default:
		l.drop(id, ch)
	}
}

// broadcast delivers env to everyone but the sender.
func (l *Lobby) broadcast(env Envelope, sender string) {
	for id, ch := range l.clients {
		if id == sender {
			continue
		}
		select {
		case ch <- env:
			//ok
		default:
			// Client is slow/full - drop them.
			l.drop(id, ch)
		}
	}
}

func (l *Lobby) drop(id string, ch chan Envelope) {
	close(ch)
	delete(l.clients, id)
	l.logger.Warn("dropped slow client", "client_id", id)
}

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }
