package types

import (
	"time"

	"github.com/DoyleJ11/league-scorekeeper/internal/engine"
)

// MatchStateData is the full resync payload of a match_state frame. Override marks a snapshot
// that deliberately rewinds the match (operator override, rejected or cleared proposal);
// receivers adopt it even when it looks older than their own state.
type MatchStateData struct {
	Games       []GameState        `json:"games"`
	LineupState engine.LineupState `json:"lineup_state"`
	SubmittedBy *engine.Side       `json:"submitted_by,omitempty"`
	LastUpdated *time.Time         `json:"last_updated,omitempty"`
	Override    bool               `json:"override,omitempty"`
}

type GameState struct {
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
