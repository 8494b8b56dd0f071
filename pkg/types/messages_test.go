package types

import (
	"encoding/json"
	"testing"

	"github.com/DoyleJ11/league-scorekeeper/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestEncode_WireShape(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		want string
	}{
		{
			name: "player assignment",
			msg:  PlayerAssignment{GameRef: GameRef{GameID: 41, GameNumber: 3}, PlayerID: ptr[int64](7), TeamSide: engine.SideAway},
			want: `{"type":"player_assignment","game_id":41,"game_number":3,"player_id":7,"team_side":"away"}`,
		},
		{
			name: "game update only sends set fields",
			msg:  GameUpdate{GameRef: GameRef{GameID: 2}, GameData: GameData{Winner: ptr(engine.SideHome), Home8BallBreak: ptr(true)}},
			want: `{"type":"game_update","game_id":2,"game_data":{"winner":"home","home_8ball_break":true}}`,
		},
		{
			name: "match start has no body",
			msg:  MatchStart{},
			want: `{"type":"match_start"}`,
		},
		{
			name: "scorecard submitted",
			msg:  ScorecardSubmitted{SubmittedBy: engine.SideAway, HomeScore: 8, AwayScore: 7},
			want: `{"type":"scorecard_submitted","submitted_by":"away","home_score":8,"away_score":7}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := Encode(tc.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(raw))

			var head map[string]any
			require.NoError(t, json.Unmarshal(raw, &head))
			assert.Equal(t, string(tc.msg.Kind()), head["type"])

			back, err := Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, tc.msg, back)
		})
	}
}

func TestDecode_MatchState(t *testing.T) {
	raw := []byte(`{"type":"match_state","data":{"lineup_state":"match_live","games":[
		{"id":100,"game_number":1,"home_player_id":1,"away_player_id":10,"winner":"home","home_table_run":true,"away_table_run":false,"home_8ball_break":false,"away_8ball_break":false},
		{"id":null,"game_number":2,"home_player_id":null,"away_player_id":null,"winner":null,"home_table_run":false,"away_table_run":false,"home_8ball_break":false,"away_8ball_break":false}
	]}}`)

	msg, err := Decode(raw)
	require.NoError(t, err)

	state, ok := msg.(MatchState)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, engine.StateMatchLive, state.Data.LineupState)
	require.Len(t, state.Data.Games, 2)
	assert.Equal(t, int64(100), *state.Data.Games[0].ID)
	assert.Equal(t, engine.SideHome, *state.Data.Games[0].Winner)
	assert.True(t, state.Data.Games[0].HomeTableRun)
	assert.Nil(t, state.Data.Games[1].ID)
	assert.Nil(t, state.Data.SubmittedBy)
}

func TestDecode_Rejects(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"not json", `{"type":`, ErrMalformed},
		{"missing type", `{"home_score":1}`, ErrMalformed},
		{"unknown type", `{"type":"chat","text":"gg"}`, ErrUnknownType},
		{"bad side", `{"type":"lineup_submitted","team_side":"visitors"}`, ErrMalformed},
		{"assignment without game", `{"type":"player_assignment","player_id":3,"team_side":"home"}`, ErrMalformed},
		{"bad winner", `{"type":"game_update","game_id":1,"game_data":{"winner":"draw"}}`, ErrMalformed},
		{"bad lineup state", `{"type":"match_state","data":{"games":[],"lineup_state":"halftime"}}`, ErrMalformed},
		{"gap in games", `{"type":"match_state","data":{"games":[{"game_number":2}],"lineup_state":"match_live"}}`, ErrMalformed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestDecode_EmptyWinnerClears(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"game_update","game_number":4,"game_data":{"winner":""}}`))
	require.NoError(t, err)
	upd := msg.(GameUpdate)
	require.NotNil(t, upd.GameData.Winner)
	assert.Equal(t, engine.Side(""), *upd.GameData.Winner)
	assert.Nil(t, upd.GameData.HomeTableRun)
}
