package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/league-scorekeeper/internal/engine"
	"github.com/DoyleJ11/league-scorekeeper/pkg/types"
)

var (
	ErrGameCountMismatch = errors.New("snapshot game count does not match session")
	ErrStaleSnapshot     = errors.New("snapshot is behind the local session")
)

// ApplyRemote folds a peer's broadcast into the local session. Role guards do not apply: the
// sender already validated it, and the last update to arrive wins. Frames that cannot be
// applied are returned as errors for the caller to log and drop.
func (s *Store) ApplyRemote(ctx context.Context, msg types.Message) error {
	switch m := msg.(type) {
	case types.ScoreUpdate, types.StateRequest:
		return nil

	case types.PlayerAssignment:
		return s.mutate(ctx, func(next *Session) error {
			g, err := resolveGame(next, m.GameRef)
			if err != nil {
				return err
			}
			if m.TeamSide == engine.SideHome {
				g.HomePlayerID = clonePtr(m.PlayerID)
			} else {
				g.AwayPlayerID = clonePtr(m.PlayerID)
			}
			return nil
		})

	case types.GameUpdate:
		return s.mutate(ctx, func(next *Session) error {
			g, err := resolveGame(next, m.GameRef)
			if err != nil {
				return err
			}
			applyPatch(g, PatchFromWire(m.GameData))
			return nil
		})

	case types.ScorecardSubmitted:
		return s.mutate(ctx, func(next *Session) error {
			if next.LineupState != engine.StateAwaitingConfirmation {
				to, err := engine.Next(next.LineupState, engine.EvtScoreProposed)
				if err != nil {
					return fmt.Errorf("scorecard_submitted in %s: %w", next.LineupState, err)
				}
				next.LineupState = to
			}
			side := m.SubmittedBy
			next.SubmittedBy = &side
			return nil
		})

	case types.ScorecardConfirmed:
		return s.finalizeRemote(ctx)

	case types.MatchFinalized:
		if !m.Success {
			return nil
		}
		return s.finalizeRemote(ctx)

	case types.LineupSubmitted:
		return s.advanceRemote(ctx, engine.LineupEvent(m.TeamSide), func(cur engine.LineupState) bool {
			return engine.LineupSubmitted(cur, m.TeamSide)
		})

	case types.MatchStart:
		return s.advanceRemote(ctx, engine.EvtMatchStarted, func(cur engine.LineupState) bool {
			return cur.Index() >= engine.StateMatchLive.Index()
		})

	case types.MatchState:
		return s.mutate(ctx, func(next *Session) error {
			return adoptSnapshot(next, m.Data)
		})

	default:
		return fmt.Errorf("%w: %T", types.ErrUnknownType, msg)
	}
}

func (s *Store) finalizeRemote(ctx context.Context) error {
	return s.mutate(ctx, func(next *Session) error {
		next.LineupState = engine.StateCompleted
		next.SubmittedBy = nil
		return nil
	})
}

// advanceRemote applies evt. It is a no-op when already reports the phase is at or past
// where evt leads.
func (s *Store) advanceRemote(ctx context.Context, evt engine.EventType, already func(engine.LineupState) bool) error {
	return s.mutate(ctx, func(next *Session) error {
		if already(next.LineupState) {
			return nil
		}
		to, err := engine.Next(next.LineupState, evt)
		if err != nil {
			return fmt.Errorf("remote %s from %s: %w", evt, next.LineupState, err)
		}
		next.LineupState = to
		return nil
	})
}

// adoptSnapshot replaces games and phase with data. Unless data is an override, a snapshot
// that is behind next is refused with ErrStaleSnapshot.
func adoptSnapshot(next *Session, data types.MatchStateData) error {
	if len(data.Games) != len(next.Games) {
		return fmt.Errorf("%w: got %d, have %d", ErrGameCountMismatch, len(data.Games), len(next.Games))
	}
	if !data.Override {
		if err := checkFresh(*next, data); err != nil {
			return err
		}
	}
	if data.LastUpdated != nil && data.LastUpdated.After(next.LastUpdated) {
		next.LastUpdated = *data.LastUpdated
	}
	for i, w := range data.Games {
		incoming := GameFromWire(w)
		// server ids never change once known
		if incoming.ID == nil {
			incoming.ID = next.Games[i].ID
		}
		next.Games[i] = incoming
	}
	next.LineupState = data.LineupState
	next.SubmittedBy = clonePtr(data.SubmittedBy)
	return nil
}

func checkFresh(cur Session, data types.MatchStateData) error {
	if cur.Blank() {
		return nil
	}
	if data.LineupState.Rank() < cur.LineupState.Rank() {
		return fmt.Errorf("%w: phase %s, have %s", ErrStaleSnapshot, data.LineupState, cur.LineupState)
	}
	if data.LastUpdated != nil && !cur.LastUpdated.IsZero() && data.LastUpdated.Before(cur.LastUpdated) {
		return fmt.Errorf("%w: stamped %s, have %s", ErrStaleSnapshot,
			data.LastUpdated.Format(time.RFC3339Nano), cur.LastUpdated.Format(time.RFC3339Nano))
	}
	if snapshotBlank(data) {
		return fmt.Errorf("%w: blank snapshot", ErrStaleSnapshot)
	}
	return nil
}

func snapshotBlank(data types.MatchStateData) bool {
	view := Session{LineupState: data.LineupState, SubmittedBy: data.SubmittedBy}
	for _, w := range data.Games {
		view.Games = append(view.Games, GameFromWire(w))
	}
	return view.Blank()
}

// resolveGame finds the referenced game: game number first, then server id, then the id read
// as a game number for games that have no server record yet.
func resolveGame(next *Session, ref types.GameRef) (*Game, error) {
	if ref.GameNumber > 0 {
		if ref.GameNumber <= len(next.Games) {
			return &next.Games[ref.GameNumber-1], nil
		}
		return nil, fmt.Errorf("%w: game number %d", ErrGameNotFound, ref.GameNumber)
	}
	for i := range next.Games {
		if id := next.Games[i].ID; id != nil && *id == ref.GameID {
			return &next.Games[i], nil
		}
	}
	if n := int(ref.GameID); n >= 1 && n <= len(next.Games) && next.Games[n-1].ID == nil {
		return &next.Games[n-1], nil
	}
	return nil, fmt.Errorf("%w: game id %d", ErrGameNotFound, ref.GameID)
}

// RefFor is the wire reference for g.
func RefFor(g Game) types.GameRef {
	ref := types.GameRef{GameNumber: g.GameNumber, GameID: int64(g.GameNumber)}
	if g.ID != nil {
		ref.GameID = *g.ID
	}
	return ref
}

func PatchFromWire(d types.GameData) GamePatch {
	return GamePatch{
		Winner:       clonePtr(d.Winner),
		HomeTableRun: clonePtr(d.HomeTableRun),
		AwayTableRun: clonePtr(d.AwayTableRun),
		Home8Ball:    clonePtr(d.Home8BallBreak),
		Away8Ball:    clonePtr(d.Away8BallBreak),
	}
}

// WireData renders the result fields of p for a game_update frame.
func (p GamePatch) WireData() types.GameData {
	return types.GameData{
		Winner:         clonePtr(p.Winner),
		HomeTableRun:   clonePtr(p.HomeTableRun),
		AwayTableRun:   clonePtr(p.AwayTableRun),
		Home8BallBreak: clonePtr(p.Home8Ball),
		Away8BallBreak: clonePtr(p.Away8Ball),
	}
}
