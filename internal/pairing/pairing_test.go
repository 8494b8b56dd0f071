package pairing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openGames(n int) []Slot { return make([]Slot, n) }

func apply(games []Slot, res Result) []Slot {
	out := make([]Slot, len(games))
	copy(out, games)
	for _, a := range res.Assignments {
		out[a.GameNumber-1] = Slot{HomePlayerID: a.HomePlayerID, AwayPlayerID: a.AwayPlayerID}
	}
	return out
}

func assertNoRepeats(t *testing.T, games []Slot) {
	t.Helper()
	seen := map[pair]int{}
	for i, g := range games {
		if g.HomePlayerID == nil || g.AwayPlayerID == nil {
			continue
		}
		p := pair{*g.HomePlayerID, *g.AwayPlayerID}
		if prev, ok := seen[p]; ok {
			t.Fatalf("pair %v repeated in games %d and %d", p, prev, i+1)
		}
		seen[p] = i + 1
	}
}

func assertOncePerSet(t *testing.T, games []Slot, perSet int) {
	t.Helper()
	for start := 0; start < len(games); start += perSet {
		home, away := map[int64]bool{}, map[int64]bool{}
		for _, g := range games[start : start+perSet] {
			if g.HomePlayerID != nil {
				require.False(t, home[*g.HomePlayerID], "home %d twice in set starting at game %d", *g.HomePlayerID, start+1)
				home[*g.HomePlayerID] = true
			}
			if g.AwayPlayerID != nil {
				require.False(t, away[*g.AwayPlayerID], "away %d twice in set starting at game %d", *g.AwayPlayerID, start+1)
				away[*g.AwayPlayerID] = true
			}
		}
	}
}

func TestGenerate_SixteenGameScenario(t *testing.T) {
	in := Input{
		Home:        []int64{1, 2, 3, 4, 5},
		Away:        []int64{10, 11, 12, 13},
		GamesPerSet: 4,
		Games:       openGames(16),
	}

	res, err := Generate(in)
	require.NoError(t, err)
	assert.Empty(t, res.Open)
	require.Len(t, res.Assignments, 16)

	games := apply(in.Games, res)
	assertNoRepeats(t, games)
	assertOncePerSet(t, games, 4)

	setOne := map[pair]bool{}
	for _, g := range games[:4] {
		setOne[pair{*g.HomePlayerID, *g.AwayPlayerID}] = true
	}
	for i, g := range games[4:] {
		assert.False(t, setOne[pair{*g.HomePlayerID, *g.AwayPlayerID}], "game %d reuses a set 1 pairing", i+5)
	}

	// set 1 is the straight diagonal
	want := [][2]int64{{1, 10}, {2, 11}, {3, 12}, {4, 13}}
	for i, w := range want {
		assert.Equal(t, w[0], *games[i].HomePlayerID)
		assert.Equal(t, w[1], *games[i].AwayPlayerID)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	in := Input{
		Home:        []int64{7, 3, 9},
		Away:        []int64{40, 20, 30, 10},
		GamesPerSet: 3,
		Games:       openGames(9),
	}
	first, err := Generate(in)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Generate(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestGenerate_NoRepeatAcrossShapes(t *testing.T) {
	for homeN := 0; homeN <= 6; homeN++ {
		for awayN := 0; awayN <= 6; awayN++ {
			for _, perSet := range []int{1, 2, 3, 4} {
				home := make([]int64, homeN)
				for i := range home {
					home[i] = int64(i + 1)
				}
				away := make([]int64, awayN)
				for i := range away {
					away[i] = int64(100 + i)
				}
				in := Input{Home: home, Away: away, GamesPerSet: perSet, Games: openGames(perSet * 4)}

				res, err := Generate(in)
				require.NoError(t, err)
				games := apply(in.Games, res)
				assertNoRepeats(t, games)
				assertOncePerSet(t, games, perSet)
				assert.Len(t, res.Open, len(games)-len(res.Assignments))
			}
		}
	}
}

func TestGenerate_GreedyLeavesGamesOpen(t *testing.T) {
	// one pairing exists, so the second set cannot be filled
	res, err := Generate(Input{
		Home:        []int64{1},
		Away:        []int64{10},
		GamesPerSet: 1,
		Games:       openGames(2),
	})
	require.NoError(t, err)
	require.Len(t, res.Assignments, 1)
	assert.Equal(t, 1, res.Assignments[0].GameNumber)
	assert.Equal(t, []int{2}, res.Open)
}

func TestGenerate_SkipsHomePlayerWithNoFreshOpponent(t *testing.T) {
	one, ten, eleven := int64(1), int64(10), int64(11)
	games := []Slot{
		{HomePlayerID: &one, AwayPlayerID: &ten},
		{HomePlayerID: &one, AwayPlayerID: &eleven},
		{},
		{},
	}
	res, err := Generate(Input{
		Home:        []int64{1, 2},
		Away:        []int64{10, 11},
		GamesPerSet: 2,
		Games:       games,
	})
	require.NoError(t, err)

	// game 3: player 1 has met both away players, so it stays open; game 4 gets player 2
	assert.Equal(t, []int{3}, res.Open)
	require.Len(t, res.Assignments, 1)
	a := res.Assignments[0]
	assert.Equal(t, 4, a.GameNumber)
	assert.Equal(t, int64(2), *a.HomePlayerID)
	assert.Equal(t, int64(10), *a.AwayPlayerID)
}

func TestGenerate_PreservesExistingAssignments(t *testing.T) {
	two, eleven, twelve := int64(2), int64(11), int64(12)
	games := openGames(4)
	games[0] = Slot{HomePlayerID: &two, AwayPlayerID: &eleven}
	games[1] = Slot{HomePlayerID: nil, AwayPlayerID: &twelve}
	games[3] = Slot{HomePlayerID: &two}

	res, err := Generate(Input{
		Home:        []int64{1, 2, 3},
		Away:        []int64{10, 11, 12},
		GamesPerSet: 2,
		Games:       games,
	})
	require.NoError(t, err)

	out := apply(games, res)
	assert.Equal(t, int64(2), *out[0].HomePlayerID, "full slots untouched")
	assert.Equal(t, int64(11), *out[0].AwayPlayerID)

	// game 2: away 12 fixed, home 2 already seated in set 1, so home 1
	assert.Equal(t, int64(1), *out[1].HomePlayerID)
	assert.Equal(t, int64(12), *out[1].AwayPlayerID)

	// game 3 takes (1,10); game 4 has home 2 fixed and (2,11) used, leaving 12
	assert.Equal(t, int64(1), *out[2].HomePlayerID)
	assert.Equal(t, int64(10), *out[2].AwayPlayerID)
	assert.Equal(t, int64(2), *out[3].HomePlayerID)
	assert.Equal(t, int64(12), *out[3].AwayPlayerID)

	for _, a := range res.Assignments {
		switch a.GameNumber {
		case 2:
			assert.True(t, a.SetHome)
			assert.False(t, a.SetAway)
		case 4:
			assert.False(t, a.SetHome)
			assert.True(t, a.SetAway)
		case 1:
			t.Fatalf("full game 1 reported as assigned")
		}
	}
	assertNoRepeats(t, out)
	assertOncePerSet(t, out, 2)
}

func TestGenerate_ExistingPairsBlockEarlierSets(t *testing.T) {
	one, ten := int64(1), int64(10)
	games := openGames(2)
	games[1] = Slot{HomePlayerID: &one, AwayPlayerID: &ten}

	res, err := Generate(Input{Home: []int64{1}, Away: []int64{10, 11}, GamesPerSet: 1, Games: games})
	require.NoError(t, err)
	require.Len(t, res.Assignments, 1)
	assert.Equal(t, int64(11), *res.Assignments[0].AwayPlayerID)
}

func TestGenerate_Rejects(t *testing.T) {
	_, err := Generate(Input{GamesPerSet: 0, Games: openGames(4)})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = Generate(Input{GamesPerSet: 3, Games: openGames(16)})
	require.ErrorIs(t, err, ErrUnevenSets)
}

func TestGenerate_DuplicateRosterIDs(t *testing.T) {
	res, err := Generate(Input{Home: []int64{1, 1}, Away: []int64{10, 11}, GamesPerSet: 2, Games: openGames(2)})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, res.Open)
}
