package engine

import (
	"errors"
	"slices"
)

var ErrIllegalTransition = errors.New("illegal transition")
var ErrMatchCompleted = errors.New("match already completed")
var ErrUnknownState = errors.New("unknown lineup state")
var ErrUnsupportedEvent = errors.New("unsupported event")

type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

func (s Side) Valid() bool {
	return s == SideHome || s == SideAway
}

func (s Side) Opponent() Side {
	if s == SideHome {
		return SideAway
	}
	return SideHome
}

func ParseSide(raw string) (Side, bool) {
	switch raw {
	case "home":
		return SideHome, true
	case "away":
		return SideAway, true
	default:
		return "", false
	}
}

// Role is who a client acts as. Operator bypasses workflow gating; viewer is read-only.
type Role string

const (
	RoleHome     Role = "home"
	RoleAway     Role = "away"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleHome, RoleAway, RoleOperator, RoleViewer:
		return Role(raw), true
	default:
		return "", false
	}
}

// Side reports the team a role scores for. Operator and viewer have none.
func (r Role) Side() (Side, bool) {
	switch r {
	case RoleHome:
		return SideHome, true
	case RoleAway:
		return SideAway, true
	default:
		return "", false
	}
}

func (r Role) Privileged() bool { return r == RoleOperator }

type LineupState string

const (
	StateNotStarted           LineupState = "not_started"
	StateAwaitingAwayLineup   LineupState = "awaiting_away_lineup"
	StateAwaitingHomeLineup   LineupState = "awaiting_home_lineup"
	StateReadyToStart         LineupState = "ready_to_start"
	StateMatchLive            LineupState = "match_live"
	StateAwaitingConfirmation LineupState = "awaiting_confirmation"
	StateCompleted            LineupState = "completed"
)

var stateOrder = []LineupState{
	StateNotStarted,
	StateAwaitingAwayLineup,
	StateAwaitingHomeLineup,
	StateReadyToStart,
	StateMatchLive,
	StateAwaitingConfirmation,
	StateCompleted,
}

// Index is the position of s in the workflow order, or -1 if s is unknown.
func (s LineupState) Index() int {
	return slices.Index(stateOrder, s)
}

// Rank is Index with awaiting_confirmation folded into match_live, since it is a sub-phase of it.
func (s LineupState) Rank() int {
	if s == StateAwaitingConfirmation {
		return StateMatchLive.Index()
	}
	idx := s.Index()
	if idx > StateAwaitingConfirmation.Index() {
		return idx - 1
	}
	return idx
}

func (s LineupState) Valid() bool { return s.Index() >= 0 }

func ParseLineupState(raw string) (LineupState, bool) {
	s := LineupState(raw)
	return s, s.Valid()
}

func States() []LineupState { return slices.Clone(stateOrder) }

type EventType string

const (
	EvtAwayLineupSubmitted EventType = "away_lineup_submitted"
	EvtHomeLineupSubmitted EventType = "home_lineup_submitted"
	EvtMatchStarted        EventType = "match_started"
	EvtScoreProposed       EventType = "score_proposed"
	EvtProposalRejected    EventType = "proposal_rejected"
	EvtMatchFinalized      EventType = "match_finalized"
)

// Transition is one edge of the workflow. Destructive marks operator overrides.
type Transition struct {
	From        LineupState
	To          LineupState
	Event       EventType
	Destructive bool
}

// Next returns the phase reached from s by evt under normal (non-operator) operation.
func Next(s LineupState, evt EventType) (LineupState, error) {
	if !s.Valid() {
		return s, ErrUnknownState
	}
	if s == StateCompleted {
		return s, ErrMatchCompleted
	}
	if !knownEvent(evt) {
		return s, ErrUnsupportedEvent
	}

	for _, t := range Transitions {
		if t.From == s && t.Event == evt {
			return t.To, nil
		}
	}
	return s, ErrIllegalTransition
}

// EventBetween finds the normal event that moves from one phase to another.
func EventBetween(from, to LineupState) (EventType, bool) {
	for _, t := range Transitions {
		if t.From == from && t.To == to {
			return t.Event, true
		}
	}
	return "", false
}

// Override is the operator path: any valid phase can be forced from any phase.
func Override(from, to LineupState) (Transition, error) {
	if !to.Valid() {
		return Transition{}, ErrUnknownState
	}
	evt, _ := EventBetween(from, to)
	return Transition{From: from, To: to, Event: evt, Destructive: true}, nil
}

func knownEvent(evt EventType) bool {
	switch evt {
	case EvtAwayLineupSubmitted, EvtHomeLineupSubmitted, EvtMatchStarted,
		EvtScoreProposed, EvtProposalRejected, EvtMatchFinalized:
		return true
	default:
		return false
	}
}
