package arena

import (
	"connect-arena/internal/game"
	"connect-arena/internal/store"
)

// MatchState is the client-facing snapshot of a match.
type MatchState struct {
	MatchID   string            `json:"match_id"`
	Status    store.MatchStatus `json:"status"`
	Board     [][]int           `json:"board"`
	Turn      int               `json:"current_turn"`
	Winner    int               `json:"winner"`
	Draw      bool              `json:"draw"`
	MoveCount int               `json:"move_count"`
	LastMove  *store.MoveRecord `json:"last_move,omitempty"`
}

func stateFor(m *store.Match, b *game.Board) *MatchState {
	st := &MatchState{
		MatchID:   m.ID,
		Status:    m.Status,
		Board:     b.Grid(),
		Turn:      b.Turn(),
		Winner:    b.Winner(),
		Draw:      b.IsDraw(),
		MoveCount: m.MoveCount(),
	}
	if n := len(m.Moves); n > 0 {
		st.LastMove = &m.Moves[n-1]
	}
	return st
}

// StepOutcome classifies one agent turn attempt.
type StepOutcome string

const (
	// StepAdvanced means a move was committed and the match continues.
	StepAdvanced StepOutcome = "advanced"
	// StepTerminal means a move was committed and ended the match.
	StepTerminal StepOutcome = "terminal"
	// StepStale means the computed move was discarded, either because
	// another writer committed first or the proposal was invalid. The
	// turn is retried on the next cycle.
	StepStale StepOutcome = "stale"
	// StepSkipped means the match was not in a steppable state.
	StepSkipped StepOutcome = "skipped"
	// StepSnoozed means the upstream rate limit paused the match.
	StepSnoozed StepOutcome = "snoozed"
)

type StepResult struct {
	Outcome StepOutcome
	State   *MatchState
}
