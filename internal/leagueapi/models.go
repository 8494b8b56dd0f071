package leagueapi

import "github.com/DoyleJ11/league-scorekeeper/internal/engine"

type RosterPlayer struct {
	PlayerID int64  `json:"player_id"`
	Name     string `json:"name"`
}

// LineupGame is a server game record. ID is the server id.
type LineupGame struct {
	ID           int64  `json:"id"`
	GameNumber   int    `json:"game_number"`
	HomePlayerID *int64 `json:"home_player_id"`
	AwayPlayerID *int64 `json:"away_player_id"`
}

type Lineup struct {
	MatchID     string             `json:"match_id"`
	LineupState engine.LineupState `json:"lineup_state"`
	Games       []LineupGame       `json:"games"`
	HomeRoster  []RosterPlayer     `json:"home_roster"`
	AwayRoster  []RosterPlayer     `json:"away_roster"`
}

// GameIDs maps game number to server id.
func (l Lineup) GameIDs() map[int]int64 {
	return gameIDs(l.Games)
}

type LineupSlot struct {
	GameNumber int    `json:"game_number" validate:"gte=1"`
	PlayerID   *int64 `json:"player_id"`
}

type LineupSubmission struct {
	TeamSide engine.Side  `json:"team_side" validate:"required,oneof=home away"`
	Games    []LineupSlot `json:"games" validate:"required,min=1,dive"`
}

type LineupResult struct {
	Games []LineupGame `json:"games"`
}

func (r LineupResult) GameIDs() map[int]int64 {
	return gameIDs(r.Games)
}

type GameResult struct {
	GameID       *int64       `json:"game_id"`
	GameNumber   int          `json:"game_number" validate:"gte=1"`
	HomePlayerID *int64       `json:"home_player_id"`
	AwayPlayerID *int64       `json:"away_player_id"`
	Winner       *engine.Side `json:"winner" validate:"omitempty,oneof=home away"`
	HomeTableRun bool         `json:"home_table_run"`
	AwayTableRun bool         `json:"away_table_run"`
	Home8Ball    bool         `json:"home_8ball_break"`
	Away8Ball    bool         `json:"away_8ball_break"`
}

// MatchSubmission is the final scorecard.
type MatchSubmission struct {
	MatchID     string       `json:"match_id" validate:"required"`
	HomeScore   int          `json:"home_score" validate:"gte=0"`
	AwayScore   int          `json:"away_score" validate:"gte=0"`
	SubmittedBy engine.Role  `json:"submitted_by" validate:"required"`
	Games       []GameResult `json:"games" validate:"required,min=1,dive"`
}

func gameIDs(games []LineupGame) map[int]int64 {
	out := make(map[int]int64, len(games))
	for _, g := range games {
		if g.ID != 0 && g.GameNumber > 0 {
			out[g.GameNumber] = g.ID
		}
	}
	return out
}
