package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DoyleJ11/league-scorekeeper/internal/engine"
	"github.com/DoyleJ11/league-scorekeeper/internal/platform/logging"
)

var (
	ErrNotInitialized      = errors.New("session not initialized")
	ErrInvalidSession      = errors.New("invalid session parameters")
	ErrReadOnly            = errors.New("role is read-only")
	ErrWrongSide           = errors.New("role cannot edit the other side")
	ErrMatchLocked         = errors.New("match is completed")
	ErrResultsClosed       = errors.New("results are only accepted while the match is live")
	ErrGameNotFound        = errors.New("game not found")
	ErrPlayerNotPresent    = errors.New("player is not present")
	ErrPlayerNotFound      = errors.New("player not on roster")
	ErrProposalOutstanding = errors.New("a score proposal is already outstanding")
	ErrInvalidPatch        = errors.New("invalid game patch")
)

// Cache is the durable per-match snapshot store the Store writes through to.
type Cache interface {
	Load(ctx context.Context, matchID string) (Session, bool, error)
	Save(ctx context.Context, s Session) error
	Remove(ctx context.Context, matchID string) error
}

// Listener observes every committed snapshot.
type Listener func(Session)

// Assign sets (PlayerID non-nil) or clears a player slot.
type Assign struct {
	PlayerID *int64
}

func AssignPlayer(id int64) *Assign { return &Assign{PlayerID: &id} }

func Unassign() *Assign { return &Assign{} }

// GamePatch is a partial update; nil fields are left untouched. An empty Winner clears it.
type GamePatch struct {
	HomePlayer   *Assign
	AwayPlayer   *Assign
	Winner       *engine.Side
	HomeTableRun *bool
	AwayTableRun *bool
	Home8Ball    *bool
	Away8Ball    *bool
}

func (p GamePatch) touchesResults() bool {
	return p.Winner != nil || p.HomeTableRun != nil || p.AwayTableRun != nil || p.Home8Ball != nil || p.Away8Ball != nil
}

func (p GamePatch) assignFor(side engine.Side) *Assign {
	if side == engine.SideHome {
		return p.HomePlayer
	}
	return p.AwayPlayer
}

// Store owns one match's session. Every mutation yields a fresh snapshot, bumps LastUpdated
// and writes through to the cache.
type Store struct {
	mu        sync.Mutex
	role      engine.Role
	cache     Cache
	logger    *logging.Logger
	now       func() time.Time
	session   Session
	ready     bool
	listeners []Listener
}

type Option func(*Store)

func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithListener(fn Listener) Option {
	return func(s *Store) {
		if fn != nil {
			s.listeners = append(s.listeners, fn)
		}
	}
}

func NewStore(role engine.Role, cache Cache, opts ...Option) *Store {
	s := &Store{
		role:   role,
		cache:  cache,
		logger: logging.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "session", "role", string(role))
	return s
}

func (s *Store) Role() engine.Role { return s.role }

// Subscribe registers fn for every committed snapshot from now on.
func (s *Store) Subscribe(fn Listener) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Clone()
}

func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Initialize adopts the cached snapshot for matchID when one exists, else starts fresh with
// gameCount games. A non-nil serverState always replaces the cached phase; cached game and
// roster edits are kept as they were.
func (s *Store) Initialize(ctx context.Context, matchID string, gameCount int, serverState *engine.LineupState) (Session, error) {
	if matchID == "" || gameCount < 1 {
		return Session{}, fmt.Errorf("%w: match_id=%q games=%d", ErrInvalidSession, matchID, gameCount)
	}
	if serverState != nil && !serverState.Valid() {
		return Session{}, fmt.Errorf("%w: server lineup state %q", ErrInvalidSession, *serverState)
	}

	next, cached := s.loadCached(ctx, matchID)
	if !cached {
		next = New(matchID, gameCount)
	} else if len(next.Games) != gameCount {
		s.logger.WarnContext(ctx, "cached game count differs from league configuration, keeping cached games",
			"cached", len(next.Games), "configured", gameCount)
	}
	if serverState != nil {
		if cached && next.LineupState != *serverState {
			s.logger.InfoContext(ctx, "server lineup state overrides cached state",
				"cached", string(next.LineupState), "server", string(*serverState))
		}
		next.LineupState = *serverState
	}
	if next.LineupState != engine.StateAwaitingConfirmation {
		next.SubmittedBy = nil
	}

	s.mu.Lock()
	s.ready = true
	snap := s.commitLocked(ctx, next)
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, snap)
	return snap, nil
}

func (s *Store) loadCached(ctx context.Context, matchID string) (Session, bool) {
	if s.cache == nil {
		return Session{}, false
	}
	snap, ok, err := s.cache.Load(ctx, matchID)
	if err != nil {
		s.logger.WarnContext(ctx, "cache load failed, starting fresh", "error", err)
		return Session{}, false
	}
	if !ok {
		return Session{}, false
	}
	if err := snap.Validate(matchID); err != nil {
		s.logger.WarnContext(ctx, "discarding cached snapshot", "error", err)
		return Session{}, false
	}
	return snap.Clone(), true
}

// SetRoster replaces one side's roster.
func (s *Store) SetRoster(ctx context.Context, side engine.Side, roster []PlayerAttendance) error {
	return s.mutate(ctx, func(next *Session) error {
		if err := s.guardSide(next, side); err != nil {
			return err
		}
		cloned := append([]PlayerAttendance{}, roster...)
		if side == engine.SideHome {
			next.HomeRoster = cloned
		} else {
			next.AwayRoster = cloned
		}
		return nil
	})
}

// ToggleAttendance flips a player's present flag and returns the new value.
func (s *Store) ToggleAttendance(ctx context.Context, side engine.Side, playerID int64) (bool, error) {
	var present bool
	err := s.mutate(ctx, func(next *Session) error {
		if err := s.guardSide(next, side); err != nil {
			return err
		}
		roster := next.HomeRoster
		if side == engine.SideAway {
			roster = next.AwayRoster
		}
		for i := range roster {
			if roster[i].PlayerID == playerID {
				roster[i].Present = !roster[i].Present
				present = roster[i].Present
				return nil
			}
		}
		return fmt.Errorf("%w: %s player %d", ErrPlayerNotFound, side, playerID)
	})
	return present, err
}

// UpdateGame applies patch to game gameNumber and returns the updated game.
func (s *Store) UpdateGame(ctx context.Context, gameNumber int, patch GamePatch) (Game, error) {
	var updated Game
	err := s.mutate(ctx, func(next *Session) error {
		if err := s.guardWritable(next); err != nil {
			return err
		}
		idx := gameNumber - 1
		if idx < 0 || idx >= len(next.Games) {
			return fmt.Errorf("%w: game %d", ErrGameNotFound, gameNumber)
		}

		for _, side := range []engine.Side{engine.SideHome, engine.SideAway} {
			a := patch.assignFor(side)
			if a == nil {
				continue
			}
			if own, ok := s.role.Side(); ok && own != side {
				return fmt.Errorf("%w: %s assignment", ErrWrongSide, side)
			}
			if a.PlayerID != nil && !next.IsPresent(side, *a.PlayerID) {
				return fmt.Errorf("%w: %s player %d", ErrPlayerNotPresent, side, *a.PlayerID)
			}
		}
		if patch.touchesResults() && !s.role.Privileged() && !engine.AcceptsResults(next.LineupState) {
			return fmt.Errorf("%w: phase %s", ErrResultsClosed, next.LineupState)
		}
		if w := patch.Winner; w != nil && *w != "" && !w.Valid() {
			return fmt.Errorf("%w: winner %q", ErrInvalidPatch, *w)
		}

		applyPatch(&next.Games[idx], patch)
		updated = next.Games[idx].clone()
		return nil
	})
	return updated, err
}

// SetSubmittedBy records (non-nil) or clears (nil) the outstanding score proposal.
func (s *Store) SetSubmittedBy(ctx context.Context, side *engine.Side) error {
	return s.mutate(ctx, func(next *Session) error {
		if err := s.guardWritable(next); err != nil {
			return err
		}
		if side == nil {
			next.SubmittedBy = nil
			return nil
		}
		if !side.Valid() {
			return fmt.Errorf("%w: submitted_by %q", ErrInvalidPatch, *side)
		}
		if !s.role.Privileged() {
			if own, _ := s.role.Side(); own != *side {
				return fmt.Errorf("%w: %s cannot propose for %s", ErrWrongSide, own, *side)
			}
			if next.SubmittedBy != nil {
				return fmt.Errorf("%w: by %s", ErrProposalOutstanding, *next.SubmittedBy)
			}
		}
		v := *side
		next.SubmittedBy = &v
		return nil
	})
}

// SetLineupState moves to target. Non-operators need a legal workflow edge; the operator
// may force any phase.
func (s *Store) SetLineupState(ctx context.Context, target engine.LineupState) error {
	return s.mutate(ctx, func(next *Session) error {
		if s.role == engine.RoleViewer {
			return ErrReadOnly
		}
		if !target.Valid() {
			return fmt.Errorf("%w: %q", engine.ErrUnknownState, target)
		}
		cur := next.LineupState
		if cur == target {
			return nil
		}
		if s.role.Privileged() {
			tr, err := engine.Override(cur, target)
			if err != nil {
				return err
			}
			s.logger.WarnContext(ctx, "operator override of lineup state",
				"from", string(tr.From), "to", string(tr.To))
			setPhase(next, tr.To)
			return nil
		}
		if engine.IsTerminal(cur) {
			return engine.ErrMatchCompleted
		}
		if _, ok := engine.EventBetween(cur, target); !ok {
			return fmt.Errorf("%w: %s -> %s", engine.ErrIllegalTransition, cur, target)
		}
		setPhase(next, target)
		return nil
	})
}

// ProposeScore records side's score proposal and moves the match to awaiting_confirmation
// in one commit.
func (s *Store) ProposeScore(ctx context.Context, side engine.Side) error {
	return s.mutate(ctx, func(next *Session) error {
		if err := s.guardWritable(next); err != nil {
			return err
		}
		if !side.Valid() {
			return fmt.Errorf("%w: submitted_by %q", ErrInvalidPatch, side)
		}
		if own, ok := s.role.Side(); ok && own != side {
			return fmt.Errorf("%w: %s cannot propose for %s", ErrWrongSide, own, side)
		}
		if next.SubmittedBy != nil {
			return fmt.Errorf("%w: by %s", ErrProposalOutstanding, *next.SubmittedBy)
		}
		to, err := engine.Next(next.LineupState, engine.EvtScoreProposed)
		if err != nil {
			return fmt.Errorf("%s from %s: %w", engine.EvtScoreProposed, next.LineupState, err)
		}
		next.LineupState = to
		next.SubmittedBy = &side
		return nil
	})
}

// setPhase moves next to phase. A proposal only survives in awaiting_confirmation.
func setPhase(next *Session, phase engine.LineupState) {
	next.LineupState = phase
	if phase != engine.StateAwaitingConfirmation {
		next.SubmittedBy = nil
	}
}

// Advance applies a workflow event and returns the resulting phase.
func (s *Store) Advance(ctx context.Context, evt engine.EventType) (engine.LineupState, error) {
	var out engine.LineupState
	err := s.mutate(ctx, func(next *Session) error {
		if s.role == engine.RoleViewer {
			return ErrReadOnly
		}
		to, err := engine.Next(next.LineupState, evt)
		if err != nil {
			return fmt.Errorf("%s from %s: %w", evt, next.LineupState, err)
		}
		next.LineupState = to
		if evt == engine.EvtMatchFinalized || evt == engine.EvtProposalRejected {
			next.SubmittedBy = nil
		}
		out = to
		return nil
	})
	return out, err
}

// AdoptGameIDs fills server ids (keyed by game number) into games that have none yet.
func (s *Store) AdoptGameIDs(ctx context.Context, ids map[int]int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.mutate(ctx, func(next *Session) error {
		for i := range next.Games {
			g := &next.Games[i]
			if id, ok := ids[g.GameNumber]; ok && g.ID == nil {
				g.ID = &id
			}
		}
		return nil
	})
}

// Clear abandons the session and drops its cache entry.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	matchID := s.session.MatchID
	s.session = Session{}
	s.ready = false
	s.mu.Unlock()

	if s.cache == nil || matchID == "" {
		return nil
	}
	if err := s.cache.Remove(ctx, matchID); err != nil {
		return fmt.Errorf("remove cached session: %w", err)
	}
	return nil
}

func (s *Store) guardWritable(next *Session) error {
	if s.role == engine.RoleViewer {
		return ErrReadOnly
	}
	if !s.role.Privileged() && engine.IsTerminal(next.LineupState) {
		return ErrMatchLocked
	}
	return nil
}

func (s *Store) guardSide(next *Session, side engine.Side) error {
	if err := s.guardWritable(next); err != nil {
		return err
	}
	if !side.Valid() {
		return fmt.Errorf("%w: side %q", ErrInvalidPatch, side)
	}
	if own, ok := s.role.Side(); ok && own != side {
		return fmt.Errorf("%w: %s roster", ErrWrongSide, side)
	}
	return nil
}

func (s *Store) mutate(ctx context.Context, fn func(next *Session) error) error {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	next := s.session.Clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	snap := s.commitLocked(ctx, next)
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, snap)
	return nil
}

// commitLocked installs next, stamps it and writes it through. Caller holds s.mu.
func (s *Store) commitLocked(ctx context.Context, next Session) Session {
	next.LastUpdated = s.tick(next.LastUpdated)
	s.session = next
	if s.cache != nil {
		if err := s.cache.Save(ctx, next.Clone()); err != nil {
			s.logger.WarnContext(ctx, "cache write failed", "error", err)
		}
	}
	return next.Clone()
}

// tick is the next LastUpdated stamp: now, or just past the later of floor and the current
// stamp when the clock lags either.
func (s *Store) tick(floor time.Time) time.Time {
	t := s.now().UTC()
	last := s.session.LastUpdated
	if floor.After(last) {
		last = floor
	}
	if !t.After(last) {
		t = last.Add(time.Nanosecond)
	}
	return t
}

func notify(listeners []Listener, snap Session) {
	for _, fn := range listeners {
		fn(snap.Clone())
	}
}

func applyPatch(g *Game, p GamePatch) {
	if p.HomePlayer != nil {
		g.HomePlayerID = clonePtr(p.HomePlayer.PlayerID)
	}
	if p.AwayPlayer != nil {
		g.AwayPlayerID = clonePtr(p.AwayPlayer.PlayerID)
	}
	if p.Winner != nil {
		if *p.Winner == "" {
			g.Winner = nil
		} else {
			g.Winner = clonePtr(p.Winner)
		}
	}
	if p.HomeTableRun != nil {
		g.HomeTableRun = *p.HomeTableRun
	}
	if p.AwayTableRun != nil {
		g.AwayTableRun = *p.AwayTableRun
	}
	if p.Home8Ball != nil {
		g.Home8Ball = *p.Home8Ball
	}
	if p.Away8Ball != nil {
		g.Away8Ball = *p.Away8Ball
	}
}
