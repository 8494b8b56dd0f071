package engine

func LineupEvent(side Side) EventType {
	if side == SideHome {
		return EvtHomeLineupSubmitted
	}
	return EvtAwayLineupSubmitted
}

// AcceptsResults reports whether game results may be recorded in s.
func AcceptsResults(s LineupState) bool {
	return s == StateMatchLive || s == StateAwaitingConfirmation
}

func IsTerminal(s LineupState) bool {
	return s == StateCompleted
}

// LineupSubmitted reports whether side has already handed in its lineup by phase s.
func LineupSubmitted(s LineupState, side Side) bool {
	if side == SideAway {
		return s.Index() >= StateAwaitingHomeLineup.Index()
	}
	return s.Index() >= StateReadyToStart.Index()
}
