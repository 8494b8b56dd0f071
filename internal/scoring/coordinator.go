// Package scoring drives a match from lineups to a finalized scorecard. Every action updates
// the local store first, then (where the league server is authoritative) calls the league
// API, then broadcasts to the other clients.
package scoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoyleJ11/league-scorekeeper/internal/engine"
	"github.com/DoyleJ11/league-scorekeeper/internal/leagueapi"
	"github.com/DoyleJ11/league-scorekeeper/internal/platform/logging"
	"github.com/DoyleJ11/league-scorekeeper/internal/session"
	"github.com/DoyleJ11/league-scorekeeper/pkg/types"
)

var (
	ErrDeclined     = errors.New("action was not confirmed")
	ErrNotPermitted = errors.New("role may not perform this action")
	ErrNoLeagueAPI  = errors.New("no league server configured")
)

// LeagueAPI is the league server's authoritative surface.
type LeagueAPI interface {
	FetchLineup(ctx context.Context, matchID string) (leagueapi.Lineup, error)
	SubmitLineup(ctx context.Context, matchID string, sub leagueapi.LineupSubmission) (leagueapi.LineupResult, error)
	StartMatch(ctx context.Context, matchID string) error
	SubmitMatch(ctx context.Context, sub leagueapi.MatchSubmission) error
}

// Broadcaster delivers a frame to the other clients of the match.
type Broadcaster interface {
	Send(ctx context.Context, msg types.Message) error
}

type Config struct {
	MatchID      string
	SetsPerMatch int
	GamesPerSet  int
}

func (c Config) GameCount() int { return c.SetsPerMatch * c.GamesPerSet }

type Coordinator struct {
	cfg     Config
	store   *session.Store
	api     LeagueAPI
	out     Broadcaster
	confirm Confirmer
	logger  *logging.Logger
}

// New wires a coordinator. The store's role decides what this client may do. A nil confirm
// declines every destructive action.
func New(cfg Config, store *session.Store, api LeagueAPI, out Broadcaster, confirm Confirmer, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Default()
	}
	if confirm == nil {
		confirm = ConfirmFunc(func(context.Context, Action, string) bool { return false })
	}
	return &Coordinator{
		cfg:     cfg,
		store:   store,
		api:     api,
		out:     out,
		confirm: confirm,
		logger:  logger.With("component", "scoring", "match_id", cfg.MatchID, "role", string(store.Role())),
	}
}

func (c *Coordinator) Store() *session.Store { return c.store }

func (c *Coordinator) Snapshot() session.Session { return c.store.Snapshot() }

// Open reconciles the cached session with the league server and makes the store ready.
// A failed fetch is logged and the session continues from cache.
func (c *Coordinator) Open(ctx context.Context) (session.Session, error) {
	var (
		lineup      leagueapi.Lineup
		serverState *engine.LineupState
		fetched     bool
	)
	if c.api != nil {
		l, err := c.api.FetchLineup(ctx, c.cfg.MatchID)
		if err != nil {
			c.logger.WarnContext(ctx, "fetch lineup failed, continuing from cache", "error", err)
		} else {
			lineup, fetched = l, true
			state := l.LineupState
			serverState = &state
		}
	}

	if _, err := c.store.Initialize(ctx, c.cfg.MatchID, c.cfg.GameCount(), serverState); err != nil {
		return session.Session{}, err
	}
	if fetched {
		if err := c.store.AdoptGameIDs(ctx, lineup.GameIDs()); err != nil {
			c.logger.WarnContext(ctx, "adopting server game ids failed", "error", err)
		}
		c.seedRosters(ctx, lineup)
	}
	return c.store.Snapshot(), nil
}

// seedRosters fills empty rosters from the server. Everyone starts absent.
func (c *Coordinator) seedRosters(ctx context.Context, lineup leagueapi.Lineup) {
	snap := c.store.Snapshot()
	for _, side := range c.editableSides() {
		if len(snap.Roster(side)) > 0 {
			continue
		}
		src := lineup.HomeRoster
		if side == engine.SideAway {
			src = lineup.AwayRoster
		}
		if len(src) == 0 {
			continue
		}
		roster := make([]session.PlayerAttendance, len(src))
		for i, p := range src {
			roster[i] = session.PlayerAttendance{PlayerID: p.PlayerID, Name: p.Name}
		}
		if err := c.store.SetRoster(ctx, side, roster); err != nil {
			c.logger.WarnContext(ctx, "seeding roster failed", "side", string(side), "error", err)
		}
	}
}

// HandleMessage applies a frame received from another client. Frames that cannot be applied
// are logged and dropped. A state_request relayed from a peer is answered with this client's
// snapshot when it has one.
func (c *Coordinator) HandleMessage(ctx context.Context, msg types.Message) {
	if _, ok := msg.(types.StateRequest); ok {
		if snap := c.store.Snapshot(); c.store.Ready() && !snap.Blank() {
			c.broadcast(ctx, snap.MatchState())
		}
		return
	}
	if err := c.store.ApplyRemote(ctx, msg); err != nil {
		c.logger.WarnContext(ctx, "dropping inbound message", "type", string(msg.Kind()), "error", err)
	}
}

// Resync asks the relay for a fresh snapshot.
func (c *Coordinator) Resync(ctx context.Context) {
	c.broadcast(ctx, types.StateRequest{})
}

// Announce runs on every (re)connect. A client holding work pushes it so a fresh relay
// catches up; a blank client asks for state instead.
func (c *Coordinator) Announce(ctx context.Context) {
	if !c.store.Ready() {
		return
	}
	snap := c.store.Snapshot()
	if snap.Blank() {
		c.Resync(ctx)
		return
	}
	c.logger.DebugContext(ctx, "announcing local state", "phase", string(snap.LineupState))
	c.broadcast(ctx, snap.MatchState())
}

func (c *Coordinator) AssignPlayer(ctx context.Context, gameNumber int, side engine.Side, playerID *int64) error {
	patch := session.GamePatch{}
	a := &session.Assign{PlayerID: playerID}
	if side == engine.SideHome {
		patch.HomePlayer = a
	} else {
		patch.AwayPlayer = a
	}
	g, err := c.store.UpdateGame(ctx, gameNumber, patch)
	if err != nil {
		return err
	}
	c.broadcast(ctx, types.PlayerAssignment{
		GameRef:  session.RefFor(g),
		PlayerID: g.PlayerFor(side),
		TeamSide: side,
	})
	return nil
}

// RecordResult applies the result fields of patch; assignment fields are ignored.
func (c *Coordinator) RecordResult(ctx context.Context, gameNumber int, patch session.GamePatch) error {
	patch.HomePlayer, patch.AwayPlayer = nil, nil
	g, err := c.store.UpdateGame(ctx, gameNumber, patch)
	if err != nil {
		return err
	}
	c.broadcast(ctx, types.GameUpdate{GameRef: session.RefFor(g), GameData: patch.WireData()})

	home, away := c.store.Snapshot().Score()
	c.broadcast(ctx, types.ScoreUpdate{HomeScore: home, AwayScore: away})
	return nil
}

// ToggleAttendance is local only; rosters are not shared with the other side.
func (c *Coordinator) ToggleAttendance(ctx context.Context, side engine.Side, playerID int64) (bool, error) {
	return c.store.ToggleAttendance(ctx, side, playerID)
}

func (c *Coordinator) editableSides() []engine.Side {
	role := c.store.Role()
	if side, ok := role.Side(); ok {
		return []engine.Side{side}
	}
	if role.Privileged() {
		return []engine.Side{engine.SideHome, engine.SideAway}
	}
	return nil
}

func (c *Coordinator) requireSide(side engine.Side) error {
	role := c.store.Role()
	if role == engine.RoleViewer {
		return session.ErrReadOnly
	}
	if !side.Valid() {
		return fmt.Errorf("%w: side %q", session.ErrInvalidPatch, side)
	}
	if own, ok := role.Side(); ok && own != side {
		return fmt.Errorf("%w: %s acting for %s", session.ErrWrongSide, own, side)
	}
	return nil
}

// broadcast never fails the caller: transport errors are logged by the channel and dropped.
func (c *Coordinator) broadcast(ctx context.Context, msg types.Message) {
	if c.out == nil {
		return
	}
	if err := c.out.Send(ctx, msg); err != nil {
		c.logger.DebugContext(ctx, "broadcast dropped", "type", string(msg.Kind()), "error", err)
	}
}

// broadcastState sends the full snapshot. override marks a deliberate rewind that peers
// must adopt even though it looks behind them.
func (c *Coordinator) broadcastState(ctx context.Context, override bool) {
	msg := c.store.Snapshot().MatchState()
	msg.Data.Override = override
	c.broadcast(ctx, msg)
}
