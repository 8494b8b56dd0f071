package scoring

import "context"

// Action names a destructive operation that needs explicit confirmation.
type Action string

const (
	ActionOverridePhase Action = "override_phase"
	ActionFinalize      Action = "operator_finalize"
	ActionClearProposal Action = "clear_proposal"
	ActionForceStart    Action = "force_start"
	ActionForceLineup   Action = "force_lineup"
)

type Confirmer interface {
	Confirm(ctx context.Context, action Action, detail string) bool
}

type ConfirmFunc func(ctx context.Context, action Action, detail string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, action Action, detail string) bool {
	return f(ctx, action, detail)
}

// WarningCode identifies a soft gate: the action went ahead but the user should know.
type WarningCode string

const (
	WarnPartialLineup     WarningCode = "partial_lineup"
	WarnNoCounterProposal WarningCode = "no_counter_proposal"
	WarnShortHanded       WarningCode = "short_handed"
	WarnUnassignedGames   WarningCode = "unassigned_games"
)

type Warning struct {
	Code    WarningCode
	Message string
}

func (w Warning) String() string { return string(w.Code) + ": " + w.Message }
