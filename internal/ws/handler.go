package ws

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/DoyleJ11/league-scorekeeper/internal/hub"
	"github.com/DoyleJ11/league-scorekeeper/internal/lobby"
	"github.com/DoyleJ11/league-scorekeeper/internal/platform/logging"
	"github.com/DoyleJ11/league-scorekeeper/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	pingInterval = 20 * time.Second
	pingTimeout  = 10 * time.Second
	readLimit    = 1 << 20
	outboxSize   = 32
)

type Options struct {
	// DefaultGames is used when the client does not pass ?games=.
	DefaultGames int
	// OriginPatterns loosens the same-origin check, e.g. "localhost:*" in dev.
	OriginPatterns []string
	Logger         *logging.Logger
}

// Handler serves /ws?match=<id>&games=<n>: one websocket per client, joined to the match's lobby.
func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With("component", "ws")

	return func(w http.ResponseWriter, r *http.Request) {
		matchID := r.URL.Query().Get("match")
		if matchID == "" {
			http.Error(w, "missing match", http.StatusBadRequest)
			return
		}
		games := opts.DefaultGames
		if raw := r.URL.Query().Get("games"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				http.Error(w, "invalid games", http.StatusBadRequest)
				return
			}
			games = n
		}

		reply := make(chan *lobby.Lobby, 1)
		h.Inbox() <- hub.EnsureLobby{MatchID: matchID, GameCount: games, Reply: reply}
		lb := <-reply
		if lb == nil {
			http.Error(w, "match unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(readLimit)

		clientID := uuid.NewString()
		ctx := logging.WithClient(logging.WithMatch(r.Context(), matchID), clientID)

		out := make(chan lobby.Envelope, outboxSize)
		if !join(lb, clientID, out) {
			_ = conn.Close(websocket.StatusGoingAway, "lobby closed")
			return
		}
		defer func() {
			select {
			case lb.Inbox() <- lobby.Leave{ClientID: clientID}:
			case <-lb.Done():
			}
		}()

		writeCtx, writeCancel := context.WithCancel(ctx)
		defer writeCancel()
		go writeLoop(writeCtx, conn, out, lb.Done(), logger)

		go heartbeat(writeCtx, conn)

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				// Treat clean close/going-away as normal:
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					logger.DebugContext(ctx, "read ended", "error", err)
				}
				return
			}

			msg, err := types.Decode(data)
			if err != nil {
				logger.WarnContext(ctx, "dropping malformed frame", "error", err)
				continue
			}

			select {
			case lb.Inbox() <- lobby.FromClient{ClientID: clientID, Msg: msg}:
			case <-lb.Done():
				return
			}
		}
	}
}

// frameWriter is the part of *websocket.Conn the writer goroutine uses.
type frameWriter interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// join registers the client with lb. It reports false when the lobby has already stopped.
func join(lb *lobby.Lobby, clientID string, out chan lobby.Envelope) bool {
	select {
	case <-lb.Done():
		return false
	default:
	}
	select {
	case lb.Inbox() <- lobby.Join{ClientID: clientID, Outbox: out}:
		return true
	case <-lb.Done():
		return false
	}
}

// writeLoop drains out onto conn. A lobby-side stop closes the connection; ctx ending with
// the handler just returns.
func writeLoop(ctx context.Context, conn frameWriter, out <-chan lobby.Envelope, lobbyDone <-chan struct{}, logger *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-lobbyDone:
			_ = conn.Close(websocket.StatusGoingAway, "lobby closed")
			return
		case env, ok := <-out:
			if !ok {
				// lobby dropped us or shut down
				_ = conn.Close(websocket.StatusGoingAway, "lobby closed")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, env.Payload)
			cancel()
			if err != nil {
				logger.DebugContext(ctx, "write failed", "type", string(env.Kind), "error", err)
			}
		}
	}
}

// heartbeat pings until a pong goes missing, then closes the connection.
func heartbeat(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				_ = conn.Close(websocket.StatusPolicyViolation, "ping timeout")
				return
			}
		}
	}
}
