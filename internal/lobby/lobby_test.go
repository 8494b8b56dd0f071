package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/DoyleJ11/league-scorekeeper/internal/cache"
	"github.com/DoyleJ11/league-scorekeeper/internal/engine"
	"github.com/DoyleJ11/league-scorekeeper/internal/platform/logging"
	"github.com/DoyleJ11/league-scorekeeper/internal/session"
	"github.com/DoyleJ11/league-scorekeeper/pkg/types"
)

// helper: receive one envelope with a timeout so tests never hang
func recvEnvelope(t *testing.T, ch <-chan Envelope, within time.Duration) Envelope {
	t.Helper()
	select {
	case env, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return env
	case <-time.After(within):
		t.Fatalf("timed out waiting for envelope")
		return Envelope{} // unreachable
	}
}

func recvNoEnvelope(t *testing.T, ch <-chan Envelope, within time.Duration) {
	t.Helper()
	select {
	case env, ok := <-ch:
		if !ok {
			// channel closed → that's fine; no further frames possible
			return
		}
		t.Fatalf("expected no envelope within %v, but got: %s", within, env.Payload)
	case <-time.After(within):
		// good: nothing
	}
}

func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func decodeEnvelope(t *testing.T, env Envelope) types.Message {
	t.Helper()
	msg, err := types.Decode(env.Payload)
	if err != nil {
		t.Fatalf("decode %s: %v", env.Payload, err)
	}
	return msg
}

func newTestLobby(t *testing.T, c session.Cache) *Lobby {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if c == nil {
		c = cache.NewMemoryStore(logging.NewNop())
	}
	l, err := NewLobby(ctx, "m-1", 16, c, logging.NewNop())
	if err != nil {
		t.Fatalf("new lobby: %v", err)
	}
	return l
}

func view(t *testing.T, l *Lobby) View {
	t.Helper()
	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	return recvView(t, reply, 200*time.Millisecond)
}

func TestLobby_BlankReplicaStaysSilentOnJoin(t *testing.T) {
	l := newTestLobby(t, nil)

	out := make(chan Envelope, 2)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	recvNoEnvelope(t, out, 100*time.Millisecond)

	if v := view(t, l); v.NumClients != 1 {
		t.Fatalf("join not registered: %+v", v)
	}
}

func TestLobby_AnnouncedStateSurvivesFreshRelay(t *testing.T) {
	l := newTestLobby(t, nil)

	c1 := make(chan Envelope, 4)
	l.Inbox() <- Join{ClientID: "c1", Outbox: c1}

	// c1 reloaded from its own cache mid-match and announces it
	live := session.New("m-1", 16)
	live.LineupState = engine.StateMatchLive
	for i := 0; i < 3; i++ {
		home := engine.SideHome
		live.Games[i].Winner = &home
	}
	l.Inbox() <- FromClient{ClientID: "c1", Msg: live.MatchState()}
	recvNoEnvelope(t, c1, 100*time.Millisecond)

	c2 := make(chan Envelope, 4)
	l.Inbox() <- Join{ClientID: "c2", Outbox: c2}
	state := decodeEnvelope(t, recvEnvelope(t, c2, 200*time.Millisecond)).(types.MatchState)
	if state.Data.LineupState != engine.StateMatchLive {
		t.Fatalf("joiner got phase %s", state.Data.LineupState)
	}
	for i := 0; i < 3; i++ {
		if w := state.Data.Games[i].Winner; w == nil || *w != engine.SideHome {
			t.Fatalf("game %d winner lost: %+v", i+1, state.Data.Games[i])
		}
	}
}

func TestLobby_BlankReplicaForwardsStateRequest(t *testing.T) {
	l := newTestLobby(t, nil)

	c1 := make(chan Envelope, 4)
	c2 := make(chan Envelope, 4)
	l.Inbox() <- Join{ClientID: "c1", Outbox: c1}
	l.Inbox() <- Join{ClientID: "c2", Outbox: c2}

	// nothing to answer with, so peers are asked instead
	l.Inbox() <- FromClient{ClientID: "c2", Msg: types.StateRequest{}}
	env := recvEnvelope(t, c1, 200*time.Millisecond)
	if env.Kind != types.MsgStateRequest {
		t.Fatalf("got %s", env.Kind)
	}
	recvNoEnvelope(t, c2, 100*time.Millisecond)
}

func TestLobby_RelaysToOthersAndUpdatesReplica(t *testing.T) {
	l := newTestLobby(t, nil)

	c1 := make(chan Envelope, 4)
	c2 := make(chan Envelope, 4)
	l.Inbox() <- Join{ClientID: "c1", Outbox: c1}
	l.Inbox() <- Join{ClientID: "c2", Outbox: c2}

	home := engine.SideHome
	l.Inbox() <- FromClient{ClientID: "c1", Msg: types.GameUpdate{
		GameRef:  types.GameRef{GameID: 3, GameNumber: 3},
		GameData: types.GameData{Winner: &home},
	}}

	got := recvEnvelope(t, c2, 200*time.Millisecond)
	if got.Version != 1 || got.Kind != types.MsgGameUpdate {
		t.Fatalf("relay: got version=%d kind=%s", got.Version, got.Kind)
	}
	recvNoEnvelope(t, c1, 100*time.Millisecond)

	v := view(t, l)
	if v.Version != 1 || v.NumClients != 2 {
		t.Fatalf("view: %+v", v)
	}
	if w := v.Session.Games[2].Winner; w == nil || *w != engine.SideHome {
		t.Fatalf("replica did not apply game_update: %+v", v.Session.Games[2])
	}
}

func TestLobby_StateRequestAnswersOnlySender(t *testing.T) {
	l := newTestLobby(t, nil)

	c1 := make(chan Envelope, 4)
	c2 := make(chan Envelope, 4)
	l.Inbox() <- Join{ClientID: "c1", Outbox: c1}
	l.Inbox() <- Join{ClientID: "c2", Outbox: c2}

	l.Inbox() <- FromClient{ClientID: "c1", Msg: types.LineupSubmitted{TeamSide: engine.SideAway}}
	_ = recvEnvelope(t, c2, 200*time.Millisecond)

	l.Inbox() <- FromClient{ClientID: "c2", Msg: types.StateRequest{}}
	env := recvEnvelope(t, c2, 200*time.Millisecond)
	state := decodeEnvelope(t, env).(types.MatchState)
	if state.Data.LineupState != engine.StateAwaitingHomeLineup {
		t.Fatalf("state_request: got phase %s", state.Data.LineupState)
	}
	recvNoEnvelope(t, c1, 100*time.Millisecond)
}

func TestLobby_UnappliableFrameStillRelayed(t *testing.T) {
	l := newTestLobby(t, nil)

	c1 := make(chan Envelope, 4)
	c2 := make(chan Envelope, 4)
	l.Inbox() <- Join{ClientID: "c1", Outbox: c1}
	l.Inbox() <- Join{ClientID: "c2", Outbox: c2}

	// match_start before any lineup is illegal for the replica
	l.Inbox() <- FromClient{ClientID: "c1", Msg: types.MatchStart{}}
	env := recvEnvelope(t, c2, 200*time.Millisecond)
	if env.Kind != types.MsgMatchStart {
		t.Fatalf("got %s", env.Kind)
	}
	if v := view(t, l); v.Session.LineupState != engine.StateNotStarted {
		t.Fatalf("replica advanced to %s", v.Session.LineupState)
	}
}

func TestLobby_DropSlowClient(t *testing.T) {
	l := newTestLobby(t, nil)

	slow := make(chan Envelope, 1)
	fast := make(chan Envelope, 4)
	l.Inbox() <- Join{ClientID: "slow", Outbox: slow}
	l.Inbox() <- Join{ClientID: "fast", Outbox: fast}

	// the first frame fills slow's buffer, the second finds it full
	l.Inbox() <- FromClient{ClientID: "fast", Msg: types.ScoreUpdate{HomeScore: 1}}
	l.Inbox() <- FromClient{ClientID: "fast", Msg: types.ScoreUpdate{HomeScore: 2}}

	v := view(t, l)
	if v.NumClients != 1 {
		t.Fatalf("expected slow client to be dropped; NumClients=%d", v.NumClients)
	}
}

func TestLobby_ResumesReplicaFromCache(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryStore(logging.NewNop())

	seed := session.New("m-1", 16)
	away := engine.SideAway
	seed.Games[0].Winner = &away
	seed.LineupState = engine.StateMatchLive
	if err := mem.Save(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	l := newTestLobby(t, mem)
	out := make(chan Envelope, 1)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}

	state := decodeEnvelope(t, recvEnvelope(t, out, 200*time.Millisecond)).(types.MatchState)
	if state.Data.LineupState != engine.StateMatchLive {
		t.Fatalf("phase: %s", state.Data.LineupState)
	}
	if w := state.Data.Games[0].Winner; w == nil || *w != engine.SideAway {
		t.Fatalf("cached winner lost: %+v", state.Data.Games[0])
	}
}

func TestLobby_ShutdownClosesOutboxes(t *testing.T) {
	mem := cache.NewMemoryStore(logging.NewNop())
	l := newTestLobby(t, mem)

	out := make(chan Envelope, 2)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}

	done := make(chan struct{})
	l.Inbox() <- Shutdown{Done: done}
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("shutdown not acknowledged")
	}

	if _, ok := <-out; ok {
		t.Fatalf("expected outbox closed")
	}
	if mem.Len() != 1 {
		t.Fatalf("plain shutdown should keep the replica snapshot")
	}
}

func TestLobby_AbandonClearsReplica(t *testing.T) {
	mem := cache.NewMemoryStore(logging.NewNop())
	l := newTestLobby(t, mem)
	if mem.Len() != 1 {
		t.Fatalf("replica should be persisted on start")
	}

	done := make(chan struct{})
	l.Inbox() <- Shutdown{Abandon: true, Done: done}
	<-done
	<-l.Done()

	if mem.Len() != 0 {
		t.Fatalf("abandon should remove the snapshot")
	}
}
