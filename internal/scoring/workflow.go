package scoring

import (
	"context"
	"fmt"

	"github.com/DoyleJ11/league-scorekeeper/internal/engine"
	"github.com/DoyleJ11/league-scorekeeper/internal/leagueapi"
	"github.com/DoyleJ11/league-scorekeeper/internal/pairing"
	"github.com/DoyleJ11/league-scorekeeper/internal/session"
	"github.com/DoyleJ11/league-scorekeeper/pkg/types"
)

// AutoAssign fills the games this client may edit from present players so that no pairing
// repeats. Games the greedy pass cannot fill are reported, not forced.
func (c *Coordinator) AutoAssign(ctx context.Context) ([]Warning, error) {
	sides := c.editableSides()
	if len(sides) == 0 {
		return nil, session.ErrReadOnly
	}

	snap := c.store.Snapshot()
	in := pairing.Input{
		Home:        c.pool(snap, engine.SideHome),
		Away:        c.pool(snap, engine.SideAway),
		GamesPerSet: c.cfg.GamesPerSet,
		Games:       make([]pairing.Slot, len(snap.Games)),
	}
	for i, g := range snap.Games {
		in.Games[i] = pairing.Slot{HomePlayerID: g.HomePlayerID, AwayPlayerID: g.AwayPlayerID}
	}

	var warnings []Warning
	for _, side := range sides {
		if n := len(snap.PresentPlayers(side)); n < c.cfg.GamesPerSet {
			warnings = append(warnings, Warning{
				Code:    WarnShortHanded,
				Message: fmt.Sprintf("%s has %d present players for %d games per set", side, n, c.cfg.GamesPerSet),
			})
		}
	}

	res, err := pairing.Generate(in)
	if err != nil {
		return warnings, err
	}

	for _, a := range res.Assignments {
		for _, side := range sides {
			set := a.SetHome
			id := a.HomePlayerID
			if side == engine.SideAway {
				set, id = a.SetAway, a.AwayPlayerID
			}
			if !set {
				continue
			}
			if err := c.AssignPlayer(ctx, a.GameNumber, side, id); err != nil {
				return warnings, fmt.Errorf("assign game %d: %w", a.GameNumber, err)
			}
		}
	}

	if len(res.Open) > 0 {
		warnings = append(warnings, Warning{
			Code:    WarnUnassignedGames,
			Message: fmt.Sprintf("no fresh pairing for games %v", res.Open),
		})
	}
	c.logger.InfoContext(ctx, "auto-assigned lineup", "assigned", len(res.Assignments), "open", len(res.Open))
	return warnings, nil
}

// pool is the player list the pairing pass draws from for side. Attendance of the opponent
// is not shared, so a side client uses the opponent players already seated, then the
// opponent's roster, then placeholder ids that only shape the rotation of its own side.
func (c *Coordinator) pool(snap session.Session, side engine.Side) []int64 {
	for _, own := range c.editableSides() {
		if own == side {
			return snap.PresentPlayers(side)
		}
	}

	seen := make(map[int64]bool)
	var out []int64
	for _, g := range snap.Games {
		if id := g.PlayerFor(side); id != nil && !seen[*id] {
			seen[*id] = true
			out = append(out, *id)
		}
	}
	if len(out) > 0 {
		return out
	}
	if present := snap.PresentPlayers(side); len(present) > 0 {
		return present
	}
	for _, p := range snap.Roster(side) {
		out = append(out, p.PlayerID)
	}
	if len(out) > 0 {
		return out
	}
	for i := 1; i <= c.cfg.GamesPerSet; i++ {
		out = append(out, int64(-i))
	}
	return out
}

// SubmitLineup hands side's assignments to the league server, then advances the phase.
// Unassigned games are submitted empty and reported.
func (c *Coordinator) SubmitLineup(ctx context.Context, side engine.Side) ([]Warning, error) {
	if err := c.requireSide(side); err != nil {
		return nil, err
	}
	if c.api == nil {
		return nil, ErrNoLeagueAPI
	}
	snap := c.store.Snapshot()

	target, err := engine.Next(snap.LineupState, engine.LineupEvent(side))
	forced := false
	if err != nil {
		if !c.store.Role().Privileged() {
			return nil, fmt.Errorf("submit %s lineup from %s: %w", side, snap.LineupState, err)
		}
		target = lineupTarget(side)
		if !c.confirm.Confirm(ctx, ActionForceLineup,
			fmt.Sprintf("submit %s lineup from %s and move to %s", side, snap.LineupState, target)) {
			return nil, ErrDeclined
		}
		forced = true
	}

	var warnings []Warning
	if open := snap.UnassignedGames(side); len(open) > 0 {
		warnings = append(warnings, Warning{
			Code:    WarnPartialLineup,
			Message: fmt.Sprintf("%s lineup has no player for games %v", side, open),
		})
	}

	sub := leagueapi.LineupSubmission{TeamSide: side, Games: make([]leagueapi.LineupSlot, len(snap.Games))}
	for i, g := range snap.Games {
		sub.Games[i] = leagueapi.LineupSlot{GameNumber: g.GameNumber, PlayerID: g.PlayerFor(side)}
	}
	res, err := c.api.SubmitLineup(ctx, c.cfg.MatchID, sub)
	if err != nil {
		return warnings, fmt.Errorf("submit %s lineup: %w", side, err)
	}
	if err := c.store.AdoptGameIDs(ctx, res.GameIDs()); err != nil {
		return warnings, err
	}

	if forced {
		err = c.store.SetLineupState(ctx, target)
	} else {
		_, err = c.store.Advance(ctx, engine.LineupEvent(side))
	}
	if err != nil {
		return warnings, err
	}

	c.broadcast(ctx, types.LineupSubmitted{TeamSide: side})
	c.logger.InfoContext(ctx, "lineup submitted", "side", string(side), "open_games", len(snap.UnassignedGames(side)))
	return warnings, nil
}

func lineupTarget(side engine.Side) engine.LineupState {
	if side == engine.SideAway {
		return engine.StateAwaitingHomeLineup
	}
	return engine.StateReadyToStart
}

// StartMatch moves the match live once both lineups are in.
func (c *Coordinator) StartMatch(ctx context.Context) error {
	role := c.store.Role()
	if role == engine.RoleViewer {
		return session.ErrReadOnly
	}
	if c.api == nil {
		return ErrNoLeagueAPI
	}
	cur := c.store.Snapshot().LineupState

	_, err := engine.Next(cur, engine.EvtMatchStarted)
	forced := false
	if err != nil {
		if !role.Privileged() {
			return fmt.Errorf("start match from %s: %w", cur, err)
		}
		if !c.confirm.Confirm(ctx, ActionForceStart, fmt.Sprintf("start match from %s", cur)) {
			return ErrDeclined
		}
		forced = true
	}

	if err := c.api.StartMatch(ctx, c.cfg.MatchID); err != nil {
		return fmt.Errorf("start match: %w", err)
	}
	if forced {
		err = c.store.SetLineupState(ctx, engine.StateMatchLive)
	} else {
		_, err = c.store.Advance(ctx, engine.EvtMatchStarted)
	}
	if err != nil {
		return err
	}

	c.broadcast(ctx, types.MatchStart{})
	c.logger.InfoContext(ctx, "match started")
	return nil
}

// ProposeScore records this side's proposal of the current score.
func (c *Coordinator) ProposeScore(ctx context.Context) error {
	side, ok := c.store.Role().Side()
	if !ok {
		if c.store.Role() == engine.RoleViewer {
			return session.ErrReadOnly
		}
		return fmt.Errorf("%w: operator finalizes directly", ErrNotPermitted)
	}
	if err := c.store.ProposeScore(ctx, side); err != nil {
		return err
	}

	home, away := c.store.Snapshot().Score()
	c.broadcast(ctx, types.ScorecardSubmitted{SubmittedBy: side, HomeScore: home, AwayScore: away})
	c.logger.InfoContext(ctx, "score proposed", "home_score", home, "away_score", away)
	return nil
}

// RejectProposal sends the match back to live play and clears the proposal.
func (c *Coordinator) RejectProposal(ctx context.Context) error {
	if err := c.requireFinalizer(); err != nil {
		return err
	}
	if _, err := c.store.Advance(ctx, engine.EvtProposalRejected); err != nil {
		return err
	}
	c.broadcastState(ctx, true)
	c.logger.InfoContext(ctx, "score proposal rejected")
	return nil
}

// Finalize submits the scorecard and completes the match. Home may finalize without a
// proposal from away; that is reported as a warning. Operator finalization is confirmed.
func (c *Coordinator) Finalize(ctx context.Context) ([]Warning, error) {
	if err := c.requireFinalizer(); err != nil {
		return nil, err
	}
	if c.api == nil {
		return nil, ErrNoLeagueAPI
	}
	role := c.store.Role()
	snap := c.store.Snapshot()

	_, err := engine.Next(snap.LineupState, engine.EvtMatchFinalized)
	if err != nil && !role.Privileged() {
		return nil, fmt.Errorf("finalize from %s: %w", snap.LineupState, err)
	}

	var warnings []Warning
	if role == engine.RoleHome && (snap.SubmittedBy == nil || *snap.SubmittedBy != engine.SideAway) {
		warnings = append(warnings, Warning{
			Code:    WarnNoCounterProposal,
			Message: "away has not proposed a score",
		})
	}

	home, away := snap.Score()
	if role.Privileged() &&
		!c.confirm.Confirm(ctx, ActionFinalize, fmt.Sprintf("finalize %d-%d from %s", home, away, snap.LineupState)) {
		return warnings, ErrDeclined
	}

	if err := c.api.SubmitMatch(ctx, matchSubmission(snap, role)); err != nil {
		return warnings, fmt.Errorf("submit match: %w", err)
	}

	if role.Privileged() {
		if err := c.store.SetLineupState(ctx, engine.StateCompleted); err != nil {
			return warnings, err
		}
	} else if _, err := c.store.Advance(ctx, engine.EvtMatchFinalized); err != nil {
		return warnings, err
	}

	c.broadcast(ctx, types.MatchFinalized{Success: true, HomeScore: home, AwayScore: away})
	c.broadcast(ctx, types.ScorecardConfirmed{HomeScore: home, AwayScore: away})
	c.logger.InfoContext(ctx, "match finalized", "home_score", home, "away_score", away)
	return warnings, nil
}

func (c *Coordinator) requireFinalizer() error {
	switch c.store.Role() {
	case engine.RoleHome, engine.RoleOperator:
		return nil
	case engine.RoleViewer:
		return session.ErrReadOnly
	default:
		return fmt.Errorf("%w: only home or operator may confirm", ErrNotPermitted)
	}
}

// Override forces the phase. Operator only; destructive transitions are confirmed first.
func (c *Coordinator) Override(ctx context.Context, target engine.LineupState) error {
	if !c.store.Role().Privileged() {
		return ErrNotPermitted
	}
	cur := c.store.Snapshot().LineupState
	tr, err := engine.Override(cur, target)
	if err != nil {
		return err
	}
	if tr.Destructive && !c.confirm.Confirm(ctx, ActionOverridePhase, fmt.Sprintf("move %s to %s", tr.From, tr.To)) {
		return ErrDeclined
	}
	if err := c.store.SetLineupState(ctx, tr.To); err != nil {
		return err
	}
	c.broadcastState(ctx, tr.Destructive)
	return nil
}

// ClearProposal drops an outstanding proposal and returns a confirming match to live play.
func (c *Coordinator) ClearProposal(ctx context.Context) error {
	if !c.store.Role().Privileged() {
		return ErrNotPermitted
	}
	snap := c.store.Snapshot()
	if snap.SubmittedBy == nil && snap.LineupState != engine.StateAwaitingConfirmation {
		return nil
	}
	if !c.confirm.Confirm(ctx, ActionClearProposal, "clear the outstanding score proposal") {
		return ErrDeclined
	}
	var err error
	if snap.LineupState == engine.StateAwaitingConfirmation {
		err = c.store.SetLineupState(ctx, engine.StateMatchLive)
	} else {
		err = c.store.SetSubmittedBy(ctx, nil)
	}
	if err != nil {
		return err
	}
	c.broadcastState(ctx, true)
	return nil
}

func matchSubmission(snap session.Session, role engine.Role) leagueapi.MatchSubmission {
	home, away := snap.Score()
	games := make([]leagueapi.GameResult, len(snap.Games))
	for i, g := range snap.Games {
		games[i] = leagueapi.GameResult{
			GameID:       g.ID,
			GameNumber:   g.GameNumber,
			HomePlayerID: g.HomePlayerID,
			AwayPlayerID: g.AwayPlayerID,
			Winner:       g.Winner,
			HomeTableRun: g.HomeTableRun,
			AwayTableRun: g.AwayTableRun,
			Home8Ball:    g.Home8Ball,
			Away8Ball:    g.Away8Ball,
		}
	}
	return leagueapi.MatchSubmission{
		MatchID:     snap.MatchID,
		HomeScore:   home,
		AwayScore:   away,
		SubmittedBy: role,
		Games:       games,
	}
}
