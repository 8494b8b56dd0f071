// Package pairing assigns present players to games.
//
// Sets are processed in order. Within a set each side's present players are used at most once;
// for every open game the next home player is popped and paired with the first remaining away
// player they have not already met in any set. When no such opponent exists the game stays open
// and the next game moves on to the next home player. The heuristic is greedy and can leave games
// open even when a complete assignment exists.
package pairing

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrInvalidInput = errors.New("invalid pairing input")
	ErrUnevenSets   = errors.New("games per set does not divide the game count")
)

// Slot is a game's current assignment; nil means open.
type Slot struct {
	HomePlayerID *int64
	AwayPlayerID *int64
}

type Input struct {
	// Home and Away are present player ids in roster order.
	Home        []int64
	Away        []int64
	GamesPerSet int
	// Games holds the current slots, index = game number - 1.
	Games []Slot
}

// Assignment is the resulting slot for a game the generator filled at least one side of.
type Assignment struct {
	GameNumber   int
	HomePlayerID *int64
	AwayPlayerID *int64
	SetHome      bool
	SetAway      bool
}

type Result struct {
	Assignments []Assignment
	// Open lists game numbers still missing a player on either side.
	Open []int
}

type pair struct{ home, away int64 }

// Generate is deterministic: equal inputs give equal results.
func Generate(in Input) (Result, error) {
	if in.GamesPerSet < 1 {
		return Result{}, fmt.Errorf("%w: games per set %d", ErrInvalidInput, in.GamesPerSet)
	}
	if len(in.Games)%in.GamesPerSet != 0 {
		return Result{}, fmt.Errorf("%w: %d games, %d per set", ErrUnevenSets, len(in.Games), in.GamesPerSet)
	}

	games := make([]Slot, len(in.Games))
	copy(games, in.Games)

	used := make(map[pair]bool)
	for _, g := range games {
		if g.HomePlayerID != nil && g.AwayPlayerID != nil {
			used[pair{*g.HomePlayerID, *g.AwayPlayerID}] = true
		}
	}

	home := dedupe(in.Home)
	away := dedupe(in.Away)

	var res Result
	for start := 0; start < len(games); start += in.GamesPerSet {
		set := games[start : start+in.GamesPerSet]
		homePool := without(home, set, func(s Slot) *int64 { return s.HomePlayerID })
		awayPool := without(away, set, func(s Slot) *int64 { return s.AwayPlayerID })

		for i := range set {
			g := &set[i]
			var a Assignment
			switch {
			case g.HomePlayerID != nil && g.AwayPlayerID != nil:
				continue
			case g.HomePlayerID != nil:
				idx := firstOpponent(awayPool, func(aw int64) bool { return !used[pair{*g.HomePlayerID, aw}] })
				if idx < 0 {
					continue
				}
				g.AwayPlayerID = ptr(awayPool[idx])
				awayPool = slices.Delete(awayPool, idx, idx+1)
				a.SetAway = true
			case g.AwayPlayerID != nil:
				idx := firstOpponent(homePool, func(h int64) bool { return !used[pair{h, *g.AwayPlayerID}] })
				if idx < 0 {
					continue
				}
				g.HomePlayerID = ptr(homePool[idx])
				homePool = slices.Delete(homePool, idx, idx+1)
				a.SetHome = true
			default:
				if len(homePool) == 0 {
					continue
				}
				h := homePool[0]
				homePool = homePool[1:]
				idx := firstOpponent(awayPool, func(aw int64) bool { return !used[pair{h, aw}] })
				if idx < 0 {
					continue
				}
				g.HomePlayerID = ptr(h)
				g.AwayPlayerID = ptr(awayPool[idx])
				awayPool = slices.Delete(awayPool, idx, idx+1)
				a.SetHome, a.SetAway = true, true
			}

			used[pair{*g.HomePlayerID, *g.AwayPlayerID}] = true
			a.GameNumber = start + i + 1
			a.HomePlayerID = ptr(*g.HomePlayerID)
			a.AwayPlayerID = ptr(*g.AwayPlayerID)
			res.Assignments = append(res.Assignments, a)
		}
	}

	for i, g := range games {
		if g.HomePlayerID == nil || g.AwayPlayerID == nil {
			res.Open = append(res.Open, i+1)
		}
	}
	return res, nil
}

// without returns players minus anyone already seated in set.
func without(players []int64, set []Slot, seat func(Slot) *int64) []int64 {
	out := make([]int64, 0, len(players))
	for _, p := range players {
		taken := false
		for _, s := range set {
			if id := seat(s); id != nil && *id == p {
				taken = true
				break
			}
		}
		if !taken {
			out = append(out, p)
		}
	}
	return out
}

func firstOpponent(pool []int64, ok func(int64) bool) int {
	for i, p := range pool {
		if ok(p) {
			return i
		}
	}
	return -1
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func ptr(v int64) *int64 { return &v }
