package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/DoyleJ11/league-scorekeeper/internal/engine"
	"github.com/DoyleJ11/league-scorekeeper/internal/scoring"
	"github.com/DoyleJ11/league-scorekeeper/internal/session"
)

var errQuit = errors.New("quit")

const usage = `commands:
  show                          games, phase and score
  roster                        rosters and attendance
  present <home|away> <id>      toggle attendance
  assign <game> <home|away> <id|->
  result <game> <home|away|-> [htr] [atr] [h8] [a8]
  auto                          auto-assign present players
  lineup [home|away]            submit a lineup
  start                         start the match
  propose | reject | finalize
  override <state> | clear      operator only
  sync                          ask the relay for a fresh snapshot
  quit`

// shell reads one command per line. It is also the Confirmer, so prompts share the input.
type shell struct {
	coord *scoring.Coordinator
	in    *bufio.Scanner
	out   io.Writer

	mu        sync.Mutex
	lastPhase engine.LineupState
	lastProp  *engine.Side
}

// syncWriter serializes writes from the command loop and from peer updates.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

// watch reports phase and proposal changes as they are committed, including ones that
// arrive from the other clients.
func (s *shell) watch(st *session.Store) {
	snap := st.Snapshot()
	s.mu.Lock()
	s.lastPhase, s.lastProp = snap.LineupState, snap.SubmittedBy
	s.mu.Unlock()
	st.Subscribe(s.onChange)
}

func (s *shell) onChange(snap session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.LineupState != s.lastPhase {
		fmt.Fprintf(s.out, "\n* phase %s -> %s\n", s.lastPhase, snap.LineupState)
		s.lastPhase = snap.LineupState
	}
	switch {
	case snap.SubmittedBy != nil && (s.lastProp == nil || *s.lastProp != *snap.SubmittedBy):
		home, away := snap.Score()
		fmt.Fprintf(s.out, "* %s proposed %d-%d\n", *snap.SubmittedBy, home, away)
	case snap.SubmittedBy == nil && s.lastProp != nil:
		fmt.Fprintln(s.out, "* proposal cleared")
	}
	s.lastProp = snap.SubmittedBy
}

func (s *shell) loop(ctx context.Context) error {
	fmt.Fprintln(s.out, usage)
	for {
		fmt.Fprint(s.out, "> ")
		if !s.in.Scan() {
			return s.in.Err()
		}
		err := s.exec(ctx, s.in.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(s.out, "error:", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *shell) Confirm(_ context.Context, action scoring.Action, detail string) bool {
	fmt.Fprintf(s.out, "confirm %s: %s [y/N] ", action, detail)
	if !s.in.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(s.in.Text()))
	return answer == "y" || answer == "yes"
}

func (s *shell) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "quit", "exit":
		return errQuit
	case "help":
		fmt.Fprintln(s.out, usage)
	case "show":
		s.printState()
	case "roster":
		s.printRoster()
	case "present":
		side, id, err := sideAndID(args)
		if err != nil {
			return err
		}
		on, err := s.coord.ToggleAttendance(ctx, side, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s player %d present=%t\n", side, id, on)
	case "assign":
		if len(args) != 3 {
			return errors.New("usage: assign <game> <home|away> <id|->")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("game number: %w", err)
		}
		side, ok := engine.ParseSide(args[1])
		if !ok {
			return fmt.Errorf("unknown side %q", args[1])
		}
		var player *int64
		if args[2] != "-" {
			id, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("player id: %w", err)
			}
			player = &id
		}
		return s.coord.AssignPlayer(ctx, n, side, player)
	case "result":
		n, patch, err := parseResult(args)
		if err != nil {
			return err
		}
		if err := s.coord.RecordResult(ctx, n, patch); err != nil {
			return err
		}
		s.printScore()
	case "auto":
		warnings, err := s.coord.AutoAssign(ctx)
		s.printWarnings(warnings)
		return err
	case "lineup":
		side, err := s.lineupSide(args)
		if err != nil {
			return err
		}
		warnings, err := s.coord.SubmitLineup(ctx, side)
		s.printWarnings(warnings)
		return err
	case "start":
		return s.coord.StartMatch(ctx)
	case "propose":
		return s.coord.ProposeScore(ctx)
	case "reject":
		return s.coord.RejectProposal(ctx)
	case "finalize":
		warnings, err := s.coord.Finalize(ctx)
		s.printWarnings(warnings)
		return err
	case "override":
		if len(args) != 1 {
			return errors.New("usage: override <state>")
		}
		state, ok := engine.ParseLineupState(args[0])
		if !ok {
			return fmt.Errorf("unknown state %q", args[0])
		}
		return s.coord.Override(ctx, state)
	case "clear":
		return s.coord.ClearProposal(ctx)
	case "sync":
		s.coord.Resync(ctx)
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

func (s *shell) lineupSide(args []string) (engine.Side, error) {
	if len(args) == 1 {
		side, ok := engine.ParseSide(args[0])
		if !ok {
			return "", fmt.Errorf("unknown side %q", args[0])
		}
		return side, nil
	}
	if side, ok := s.coord.Store().Role().Side(); ok {
		return side, nil
	}
	return "", errors.New("usage: lineup <home|away>")
}

func sideAndID(args []string) (engine.Side, int64, error) {
	if len(args) != 2 {
		return "", 0, errors.New("usage: present <home|away> <id>")
	}
	side, ok := engine.ParseSide(args[0])
	if !ok {
		return "", 0, fmt.Errorf("unknown side %q", args[0])
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("player id: %w", err)
	}
	return side, id, nil
}

// parseResult reads "<game> <winner|-> [flags]". "-" clears the winner; flags set table runs
// and 8-ball breaks.
func parseResult(args []string) (int, session.GamePatch, error) {
	var patch session.GamePatch
	if len(args) < 2 {
		return 0, patch, errors.New("usage: result <game> <home|away|-> [htr] [atr] [h8] [a8]")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, patch, fmt.Errorf("game number: %w", err)
	}

	var winner engine.Side
	if args[1] != "-" {
		side, ok := engine.ParseSide(args[1])
		if !ok {
			return 0, patch, fmt.Errorf("unknown winner %q", args[1])
		}
		winner = side
	}
	patch.Winner = &winner

	on := true
	for _, flag := range args[2:] {
		switch flag {
		case "htr":
			patch.HomeTableRun = &on
		case "atr":
			patch.AwayTableRun = &on
		case "h8":
			patch.Home8Ball = &on
		case "a8":
			patch.Away8Ball = &on
		default:
			return 0, patch, fmt.Errorf("unknown flag %q", flag)
		}
	}
	return n, patch, nil
}

func (s *shell) printState() {
	snap := s.coord.Snapshot()
	fmt.Fprintf(s.out, "match %s  phase %s", snap.MatchID, snap.LineupState)
	if snap.SubmittedBy != nil {
		fmt.Fprintf(s.out, "  proposed by %s", *snap.SubmittedBy)
	}
	fmt.Fprintln(s.out)
	for _, g := range snap.Games {
		fmt.Fprintf(s.out, "  %2d  %6s vs %-6s  %s\n", g.GameNumber,
			playerLabel(g.HomePlayerID), playerLabel(g.AwayPlayerID), gameLabel(g))
	}
	s.printScore()
}

func (s *shell) printScore() {
	home, away := s.coord.Snapshot().Score()
	fmt.Fprintf(s.out, "score  home %d - %d away\n", home, away)
}

func (s *shell) printRoster() {
	snap := s.coord.Snapshot()
	for _, side := range []engine.Side{engine.SideHome, engine.SideAway} {
		fmt.Fprintf(s.out, "%s:\n", side)
		for _, p := range snap.Roster(side) {
			mark := " "
			if p.Present {
				mark = "x"
			}
			fmt.Fprintf(s.out, "  [%s] %d %s\n", mark, p.PlayerID, p.Name)
		}
	}
}

func (s *shell) printWarnings(warnings []scoring.Warning) {
	for _, w := range warnings {
		fmt.Fprintln(s.out, "warning:", w.Message)
	}
}

func playerLabel(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}

func gameLabel(g session.Game) string {
	var parts []string
	if g.Winner != nil {
		parts = append(parts, string(*g.Winner)+" wins")
	}
	if g.HomeTableRun {
		parts = append(parts, "home table run")
	}
	if g.AwayTableRun {
		parts = append(parts, "away table run")
	}
	if g.Home8Ball {
		parts = append(parts, "home 8 on break")
	}
	if g.Away8Ball {
		parts = append(parts, "away 8 on break")
	}
	return strings.Join(parts, ", ")
}
