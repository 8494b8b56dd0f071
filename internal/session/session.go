package session

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/DoyleJ11/league-scorekeeper/internal/engine"
	"github.com/DoyleJ11/league-scorekeeper/pkg/types"
)

var ErrMalformedSnapshot = errors.New("malformed session snapshot")

type PlayerAttendance struct {
	PlayerID int64  `json:"player_id"`
	Name     string `json:"name"`
	Present  bool   `json:"present"`
}

// Game is one rack of the match. ID stays nil until the server record exists.
type Game struct {
	ID           *int64       `json:"id"`
	GameNumber   int          `json:"game_number"`
	HomePlayerID *int64       `json:"home_player_id"`
	AwayPlayerID *int64       `json:"away_player_id"`
	Winner       *engine.Side `json:"winner"`
	HomeTableRun bool         `json:"home_table_run"`
	AwayTableRun bool         `json:"away_table_run"`
	Home8Ball    bool         `json:"home_8ball_break"`
	Away8Ball    bool         `json:"away_8ball_break"`
}

func (g Game) PlayerFor(side engine.Side) *int64 {
	if side == engine.SideHome {
		return g.HomePlayerID
	}
	return g.AwayPlayerID
}

func (g Game) Assigned() bool {
	return g.HomePlayerID != nil && g.AwayPlayerID != nil
}

func (g Game) WonBy(side engine.Side) bool {
	return g.Winner != nil && *g.Winner == side
}

// Session is the client-side scoring record of one match.
type Session struct {
	MatchID     string             `json:"match_id"`
	HomeRoster  []PlayerAttendance `json:"home_roster"`
	AwayRoster  []PlayerAttendance `json:"away_roster"`
	Games       []Game             `json:"games"`
	SubmittedBy *engine.Side       `json:"submitted_by"`
	LineupState engine.LineupState `json:"lineup_state"`
	LastUpdated time.Time          `json:"last_updated"`
}

// New builds an empty session with gameCount numbered games.
func New(matchID string, gameCount int) Session {
	games := make([]Game, gameCount)
	for i := range games {
		games[i] = Game{GameNumber: i + 1}
	}
	return Session{
		MatchID:     matchID,
		HomeRoster:  []PlayerAttendance{},
		AwayRoster:  []PlayerAttendance{},
		Games:       games,
		LineupState: engine.StateNotStarted,
	}
}

// Score recounts wins per side.
func (s Session) Score() (home, away int) {
	for _, g := range s.Games {
		switch {
		case g.WonBy(engine.SideHome):
			home++
		case g.WonBy(engine.SideAway):
			away++
		}
	}
	return home, away
}

func (s Session) Roster(side engine.Side) []PlayerAttendance {
	if side == engine.SideHome {
		return s.HomeRoster
	}
	return s.AwayRoster
}

// PresentPlayers lists present player ids in roster order.
func (s Session) PresentPlayers(side engine.Side) []int64 {
	var out []int64
	for _, p := range s.Roster(side) {
		if p.Present {
			out = append(out, p.PlayerID)
		}
	}
	return out
}

func (s Session) IsPresent(side engine.Side, playerID int64) bool {
	for _, p := range s.Roster(side) {
		if p.PlayerID == playerID {
			return p.Present
		}
	}
	return false
}

// UnassignedGames lists game numbers still missing a player for side.
func (s Session) UnassignedGames(side engine.Side) []int {
	var out []int
	for _, g := range s.Games {
		if g.PlayerFor(side) == nil {
			out = append(out, g.GameNumber)
		}
	}
	return out
}

func (s Session) HasResults() bool {
	for _, g := range s.Games {
		if g.Winner != nil || g.HomeTableRun || g.AwayTableRun || g.Home8Ball || g.Away8Ball {
			return true
		}
	}
	return false
}

// Blank reports whether nothing has happened to the match yet: no assignments, no results
// and no phase progress.
func (s Session) Blank() bool {
	if s.LineupState != engine.StateNotStarted || s.SubmittedBy != nil || s.HasResults() {
		return false
	}
	for _, g := range s.Games {
		if g.HomePlayerID != nil || g.AwayPlayerID != nil {
			return false
		}
	}
	return true
}

func (s Session) Clone() Session {
	out := s
	out.HomeRoster = slices.Clone(s.HomeRoster)
	out.AwayRoster = slices.Clone(s.AwayRoster)
	out.Games = make([]Game, len(s.Games))
	for i, g := range s.Games {
		out.Games[i] = g.clone()
	}
	out.SubmittedBy = clonePtr(s.SubmittedBy)
	return out
}

func (g Game) clone() Game {
	out := g
	out.ID = clonePtr(g.ID)
	out.HomePlayerID = clonePtr(g.HomePlayerID)
	out.AwayPlayerID = clonePtr(g.AwayPlayerID)
	out.Winner = clonePtr(g.Winner)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Validate checks the structural invariants a cached snapshot must hold.
func (s Session) Validate(matchID string) error {
	if s.MatchID == "" || s.MatchID != matchID {
		return fmt.Errorf("%w: match id %q, want %q", ErrMalformedSnapshot, s.MatchID, matchID)
	}
	if len(s.Games) == 0 {
		return fmt.Errorf("%w: no games", ErrMalformedSnapshot)
	}
	for i, g := range s.Games {
		if g.GameNumber != i+1 {
			return fmt.Errorf("%w: games[%d] has game_number %d", ErrMalformedSnapshot, i, g.GameNumber)
		}
		if g.Winner != nil && !g.Winner.Valid() {
			return fmt.Errorf("%w: game %d winner %q", ErrMalformedSnapshot, g.GameNumber, *g.Winner)
		}
	}
	if !s.LineupState.Valid() {
		return fmt.Errorf("%w: lineup_state %q", ErrMalformedSnapshot, s.LineupState)
	}
	if s.SubmittedBy != nil && !s.SubmittedBy.Valid() {
		return fmt.Errorf("%w: submitted_by %q", ErrMalformedSnapshot, *s.SubmittedBy)
	}
	return nil
}

// MatchState renders the full resync frame for this session.
func (s Session) MatchState() types.MatchState {
	games := make([]types.GameState, len(s.Games))
	for i, g := range s.Games {
		games[i] = g.Wire()
	}
	data := types.MatchStateData{
		Games:       games,
		LineupState: s.LineupState,
		SubmittedBy: clonePtr(s.SubmittedBy),
	}
	if !s.LastUpdated.IsZero() {
		stamp := s.LastUpdated
		data.LastUpdated = &stamp
	}
	return types.MatchState{Data: data}
}

func (g Game) Wire() types.GameState {
	c := g.clone()
	return types.GameState{
		ID:           c.ID,
		GameNumber:   c.GameNumber,
		HomePlayerID: c.HomePlayerID,
		AwayPlayerID: c.AwayPlayerID,
		Winner:       c.Winner,
		HomeTableRun: c.HomeTableRun,
		AwayTableRun: c.AwayTableRun,
		Home8Ball:    c.Home8Ball,
		Away8Ball:    c.Away8Ball,
	}
}

func GameFromWire(w types.GameState) Game {
	return Game{
		ID:           clonePtr(w.ID),
		GameNumber:   w.GameNumber,
		HomePlayerID: clonePtr(w.HomePlayerID),
		AwayPlayerID: clonePtr(w.AwayPlayerID),
		Winner:       clonePtr(w.Winner),
		HomeTableRun: w.HomeTableRun,
		AwayTableRun: w.AwayTableRun,
		Home8Ball:    w.Home8Ball,
		Away8Ball:    w.Away8Ball,
	}
}
