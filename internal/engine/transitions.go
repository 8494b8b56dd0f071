package engine

var Transitions = []Transition{
	// Lineups
	{From: StateNotStarted, To: StateAwaitingHomeLineup, Event: EvtAwayLineupSubmitted},
	{From: StateAwaitingAwayLineup, To: StateAwaitingHomeLineup, Event: EvtAwayLineupSubmitted},
	{From: StateAwaitingHomeLineup, To: StateReadyToStart, Event: EvtHomeLineupSubmitted},
	// Play
	{From: StateReadyToStart, To: StateMatchLive, Event: EvtMatchStarted},
	// Handshake
	{From: StateMatchLive, To: StateAwaitingConfirmation, Event: EvtScoreProposed},
	{From: StateAwaitingConfirmation, To: StateMatchLive, Event: EvtProposalRejected},
	{From: StateAwaitingConfirmation, To: StateCompleted, Event: EvtMatchFinalized},
	{From: StateMatchLive, To: StateCompleted, Event: EvtMatchFinalized},
}
