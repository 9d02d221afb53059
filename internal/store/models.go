package store

import "time"

type MatchStatus string

const (
	MatchPending    MatchStatus = "PENDING"
	MatchInProgress MatchStatus = "IN_PROGRESS"
	MatchPaused     MatchStatus = "PAUSED"
	MatchCompleted  MatchStatus = "COMPLETED"
	MatchDraw       MatchStatus = "DRAW"
	MatchAbandoned  MatchStatus = "ABANDONED"
)

func (s MatchStatus) Terminal() bool {
	return s == MatchCompleted || s == MatchDraw || s == MatchAbandoned
}

// Unfinished matches still count against a tournament's remaining work.
func (s MatchStatus) Unfinished() bool {
	return !s.Terminal()
}

type TournamentStatus string

const (
	TournamentSetup      TournamentStatus = "SETUP"
	TournamentInProgress TournamentStatus = "IN_PROGRESS"
	TournamentPaused     TournamentStatus = "PAUSED"
	TournamentCompleted  TournamentStatus = "COMPLETED"
	TournamentStopped    TournamentStatus = "STOPPED"
)

// Participant is one seat in a match. Agent seats carry a strategy key
// and play via the runner; human seats carry only a move token.
type Participant struct {
	StrategyKey string `json:"strategy_key,omitempty"`
	Token       string `json:"token,omitempty"`
}

func (p Participant) IsAgent() bool { return p.StrategyKey != "" }

type MoveRecord struct {
	Player       int     `json:"player"`
	Column       int     `json:"column"`
	Reasoning    string  `json:"reasoning,omitempty"`
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
	DurationMS   int64   `json:"duration_ms,omitempty"`
	IsFallback   bool    `json:"is_fallback,omitempty"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
}

// MatchStats is the per-match aggregate written once on completion.
type MatchStats struct {
	TotalMoves   int                `json:"total_moves"`
	DurationMS   int64              `json:"duration_ms"`
	InputTokens  map[string]int     `json:"input_tokens"`
	OutputTokens map[string]int     `json:"output_tokens"`
	CostUSD      map[string]float64 `json:"cost_usd"`
	Fallbacks    map[string]int     `json:"fallbacks"`
}

type Match struct {
	ID           string
	TournamentID string
	Round        int
	Players      [2]Participant
	Status       MatchStatus
	Winner       int
	Moves        []MoveRecord
	RetryAfter   *time.Time
	Stats        *MatchStats
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (m *Match) MoveCount() int { return len(m.Moves) }

// TurnPlayer returns 1 or 2 based on how many moves have been committed.
func (m *Match) TurnPlayer() int { return len(m.Moves)%2 + 1 }

func (m *Match) AgentVsAgent() bool {
	return m.Players[0].IsAgent() && m.Players[1].IsAgent()
}

func (m *Match) Participant(player int) Participant {
	return m.Players[player-1]
}

type Tournament struct {
	ID           string
	Status       TournamentStatus
	Participants []string
	Rounds       int
	Concurrency  int
	TotalMatches int
	CreatedAt    time.Time
}

type Rating struct {
	StrategyKey       string    `json:"strategy_key"`
	Rating            float64   `json:"rating"`
	MatchesPlayed     int       `json:"matches_played"`
	Wins              int       `json:"wins"`
	Losses            int       `json:"losses"`
	Draws             int       `json:"draws"`
	TotalInputTokens  int64     `json:"total_input_tokens"`
	TotalOutputTokens int64     `json:"total_output_tokens"`
	TotalMoves        int64     `json:"total_moves"`
	TotalDurationMS   int64     `json:"total_duration_ms"`
	TotalCostUSD      float64   `json:"total_cost_usd"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type RatingPoint struct {
	StrategyKey string    `json:"strategy_key"`
	Rating      float64   `json:"rating"`
	MatchID     string    `json:"match_id"`
	CreatedAt   time.Time `json:"created_at"`
}
