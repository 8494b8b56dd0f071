package scoring_test

import (
	"context"
	"testing"

	"github.com/DoyleJ11/league-scorekeeper/internal/engine"
	"github.com/DoyleJ11/league-scorekeeper/internal/leagueapi"
	"github.com/DoyleJ11/league-scorekeeper/internal/scoring"
	"github.com/DoyleJ11/league-scorekeeper/internal/session"
	"github.com/DoyleJ11/league-scorekeeper/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitLineup_PartialWarnsAndAdvances(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{
		lineup: serverLineup(engine.StateNotStarted),
		lineupResult: leagueapi.LineupResult{Games: []leagueapi.LineupGame{
			{ID: 501, GameNumber: 1}, {ID: 502, GameNumber: 2},
		}},
	}
	out := &recorder{}
	away := open(t, engine.RoleAway, api, out, nil)
	present(t, away, engine.SideAway, 10, 11)
	require.NoError(t, away.AssignPlayer(ctx, 1, engine.SideAway, ptr[int64](10)))
	require.NoError(t, away.AssignPlayer(ctx, 2, engine.SideAway, ptr[int64](11)))

	warnings, err := away.SubmitLineup(ctx, engine.SideAway)
	require.NoError(t, err)
	assert.Equal(t, []scoring.WarningCode{scoring.WarnPartialLineup}, warningCodes(warnings))

	require.Len(t, api.lineups, 1)
	sub := api.lineups[0]
	assert.Equal(t, engine.SideAway, sub.TeamSide)
	require.Len(t, sub.Games, 16)
	assert.Equal(t, int64(10), *sub.Games[0].PlayerID)
	assert.Equal(t, int64(11), *sub.Games[1].PlayerID)
	assert.Nil(t, sub.Games[2].PlayerID)

	snap := away.Snapshot()
	assert.Equal(t, engine.StateAwaitingHomeLineup, snap.LineupState)
	assert.Equal(t, int64(501), *snap.Games[0].ID)
	assert.Nil(t, snap.Games[2].ID)

	kinds := out.kinds()
	assert.Equal(t, types.MsgLineupSubmitted, kinds[len(kinds)-1])
}

func TestSubmitLineup_Rejects(t *testing.T) {
	ctx := context.Background()

	api := &fakeAPI{lineup: serverLineup(engine.StateNotStarted)}
	home := open(t, engine.RoleHome, api, &recorder{}, nil)
	_, err := home.SubmitLineup(ctx, engine.SideHome)
	require.ErrorIs(t, err, engine.ErrIllegalTransition, "home goes after away")
	_, err = home.SubmitLineup(ctx, engine.SideAway)
	require.ErrorIs(t, err, session.ErrWrongSide)
	assert.Empty(t, api.lineups)

	failing := &fakeAPI{lineup: serverLineup(engine.StateNotStarted), lineupErr: leagueapi.ErrUnauthorized}
	away := open(t, engine.RoleAway, failing, &recorder{}, nil)
	_, err = away.SubmitLineup(ctx, engine.SideAway)
	require.ErrorIs(t, err, leagueapi.ErrUnauthorized)
	assert.Equal(t, engine.StateNotStarted, away.Snapshot().LineupState)
}

func TestSubmitLineup_OperatorForcesWithConfirmation(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{lineup: serverLineup(engine.StateNotStarted)}

	declined := open(t, engine.RoleOperator, api, &recorder{}, always(false))
	_, err := declined.SubmitLineup(ctx, engine.SideHome)
	require.ErrorIs(t, err, scoring.ErrDeclined)
	assert.Empty(t, api.lineups)

	op := open(t, engine.RoleOperator, api, &recorder{}, always(true))
	_, err = op.SubmitLineup(ctx, engine.SideHome)
	require.NoError(t, err)
	assert.Equal(t, engine.StateReadyToStart, op.Snapshot().LineupState)
}

func TestStartMatch(t *testing.T) {
	ctx := context.Background()

	api := &fakeAPI{lineup: serverLineup(engine.StateReadyToStart)}
	out := &recorder{}
	home := open(t, engine.RoleHome, api, out, nil)
	require.NoError(t, home.StartMatch(ctx))
	assert.Equal(t, engine.StateMatchLive, home.Snapshot().LineupState)
	assert.Equal(t, 1, api.starts)
	assert.Equal(t, []types.MessageType{types.MsgMatchStart}, out.kinds())

	early := &fakeAPI{lineup: serverLineup(engine.StateAwaitingHomeLineup)}
	away := open(t, engine.RoleAway, early, &recorder{}, nil)
	require.ErrorIs(t, away.StartMatch(ctx), engine.ErrIllegalTransition)
	assert.Zero(t, early.starts)

	failing := &fakeAPI{lineup: serverLineup(engine.StateReadyToStart), startErr: leagueapi.ErrRejected}
	home = open(t, engine.RoleHome, failing, &recorder{}, nil)
	require.ErrorIs(t, home.StartMatch(ctx), leagueapi.ErrRejected)
	assert.Equal(t, engine.StateReadyToStart, home.Snapshot().LineupState)
}

func TestAutoAssign_OperatorFillsBothSides(t *testing.T) {
	out := &recorder{}
	op := open(t, engine.RoleOperator, &fakeAPI{lineup: serverLineup(engine.StateNotStarted)}, out, always(true))
	present(t, op, engine.SideHome, 1, 2, 3, 4)
	present(t, op, engine.SideAway, 10, 11, 12, 13)

	warnings, err := op.AutoAssign(context.Background())
	require.NoError(t, err)
	assert.Empty(t, warnings)

	seen := make(map[[2]int64]bool)
	for _, g := range op.Snapshot().Games {
		require.True(t, g.Assigned(), "game %d", g.GameNumber)
		key := [2]int64{*g.HomePlayerID, *g.AwayPlayerID}
		assert.False(t, seen[key], "pairing %v repeats", key)
		seen[key] = true
	}
	assert.Equal(t, 32, out.count(types.MsgPlayerAssignment))
}

func TestAutoAssign_SideTouchesOnlyItsOwnGames(t *testing.T) {
	out := &recorder{}
	home := open(t, engine.RoleHome, &fakeAPI{lineup: serverLineup(engine.StateNotStarted)}, out, nil)
	present(t, home, engine.SideHome, 1, 2, 3, 4)

	warnings, err := home.AutoAssign(context.Background())
	require.NoError(t, err)
	assert.Empty(t, warnings)

	for _, g := range home.Snapshot().Games {
		assert.NotNil(t, g.HomePlayerID, "game %d", g.GameNumber)
		assert.Nil(t, g.AwayPlayerID, "game %d", g.GameNumber)
	}
	assert.Equal(t, 16, out.count(types.MsgPlayerAssignment))
}

func TestAutoAssign_ShortHanded(t *testing.T) {
	op := open(t, engine.RoleOperator, &fakeAPI{lineup: serverLineup(engine.StateNotStarted)}, &recorder{}, always(true))
	present(t, op, engine.SideHome, 1, 2, 3)
	present(t, op, engine.SideAway, 10, 11, 12, 13)

	warnings, err := op.AutoAssign(context.Background())
	require.NoError(t, err)
	codes := warningCodes(warnings)
	assert.Contains(t, codes, scoring.WarnShortHanded)
	assert.Contains(t, codes, scoring.WarnUnassignedGames)
	assert.NotEmpty(t, op.Snapshot().UnassignedGames(engine.SideHome))
}

func TestAutoAssign_ViewerIsReadOnly(t *testing.T) {
	viewer := open(t, engine.RoleViewer, &fakeAPI{lineup: serverLineup(engine.StateNotStarted)}, &recorder{}, nil)
	_, err := viewer.AutoAssign(context.Background())
	require.ErrorIs(t, err, session.ErrReadOnly)
}
