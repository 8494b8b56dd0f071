package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/league-scorekeeper/internal/engine"
	"github.com/DoyleJ11/league-scorekeeper/internal/platform/logging"
	"github.com/DoyleJ11/league-scorekeeper/pkg/types"
)

// fakeRelay accepts websocket clients and exposes each connection and every frame read.
type fakeRelay struct {
	srv      *httptest.Server
	conns    chan *websocket.Conn
	received chan []byte
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	fr := &fakeRelay{
		conns:    make(chan *websocket.Conn, 8),
		received: make(chan []byte, 32),
	}
	fr.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		fr.conns <- conn
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			fr.received <- data
		}
	}))
	t.Cleanup(fr.srv.Close)
	return fr
}

func (fr *fakeRelay) url() string {
	return "ws" + strings.TrimPrefix(fr.srv.URL, "http")
}

func recv[T any](t *testing.T, ch <-chan T, within time.Duration) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out after %v", within)
		var zero T
		return zero
	}
}

func fastPolicy(attempts int) Option {
	return WithReconnectPolicy(ReconnectPolicy{MaxAttempts: attempts, Interval: 20 * time.Millisecond})
}

func TestSend_NotOpen(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws", WithLogger(logging.NewNop()))
	assert.Equal(t, StateClosed, c.State())
	err := c.Send(context.Background(), types.MatchStart{})
	require.ErrorIs(t, err, ErrNotOpen)
}

func TestChannel_OpenSendReceive(t *testing.T) {
	fr := newFakeRelay(t)
	c := New(fr.url(), WithLogger(logging.NewNop()), fastPolicy(3))

	got := make(chan types.Message, 4)
	c.OnMessage(func(_ context.Context, msg types.Message) { got <- msg })
	c.OnOpen(func(ctx context.Context) {
		_ = c.Send(ctx, types.StateRequest{})
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	conn := recv(t, fr.conns, 2*time.Second)
	assert.JSONEq(t, `{"type":"state_request"}`, string(recv(t, fr.received, 2*time.Second)))
	assert.Equal(t, StateOpen, c.State())

	// garbage is dropped, the next frame still arrives
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"chat"}`)))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`not json`)))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"lineup_submitted","team_side":"away"}`)))

	msg := recv(t, got, 2*time.Second)
	assert.Equal(t, types.LineupSubmitted{TeamSide: engine.SideAway}, msg)

	require.NoError(t, c.Send(ctx, types.ScoreUpdate{HomeScore: 2, AwayScore: 1}))
	assert.JSONEq(t, `{"type":"score_update","home_score":2,"away_score":1}`, string(recv(t, fr.received, 2*time.Second)))

	cancel()
	require.ErrorIs(t, recv(t, done, 2*time.Second), context.Canceled)
	assert.Equal(t, StateClosed, c.State())
	require.ErrorIs(t, c.Send(context.Background(), types.MatchStart{}), ErrNotOpen)
}

func TestChannel_ReconnectsAfterDrop(t *testing.T) {
	fr := newFakeRelay(t)
	c := New(fr.url(), WithLogger(logging.NewNop()), fastPolicy(3))

	opens := make(chan struct{}, 4)
	c.OnOpen(func(context.Context) { opens <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	first := recv(t, fr.conns, 2*time.Second)
	recv(t, opens, 2*time.Second)

	require.NoError(t, first.Close(websocket.StatusGoingAway, "restart"))

	recv(t, fr.conns, 2*time.Second)
	recv(t, opens, 2*time.Second)
	assert.Eventually(t, func() bool { return c.State() == StateOpen }, 2*time.Second, 10*time.Millisecond)
}

func TestChannel_GivesUpAfterMaxAttempts(t *testing.T) {
	fr := newFakeRelay(t)
	url := fr.url()
	fr.srv.Close()

	var states []ConnState
	c := New(url, WithLogger(logging.NewNop()), fastPolicy(3))
	c.OnStateChange(func(s ConnState) { states = append(states, s) })

	start := time.Now()
	err := c.Run(context.Background())
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, []ConnState{StateConnecting, StateClosed}, states)
}

func TestChannel_RunTwice(t *testing.T) {
	fr := newFakeRelay(t)
	c := New(fr.url(), WithLogger(logging.NewNop()), fastPolicy(3))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()
	recv(t, fr.conns, 2*time.Second)

	require.ErrorIs(t, c.Run(ctx), ErrAlreadyRunning)
}

func TestReconnectPolicy_Defaults(t *testing.T) {
	p := ReconnectPolicy{}.normalize()
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 3*time.Second, p.Interval)
}
