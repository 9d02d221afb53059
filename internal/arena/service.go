package arena

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"connect-arena/internal/elo"
	"connect-arena/internal/game"
	"connect-arena/internal/store"
	"connect-arena/internal/strategy"
)

// Repo is the slice of the store the match service needs.
type Repo interface {
	CreateMatch(ctx context.Context, m *store.Match) error
	GetMatch(ctx context.Context, id string) (*store.Match, error)
	WithMatchLock(ctx context.Context, id string, fn func(tx store.MatchTx, m *store.Match) error) error
}

// Waker pokes the tournament scheduler when a match frees its slot.
type Waker interface {
	Trigger()
}

type noopWaker struct{}

func (noopWaker) Trigger() {}

type Service struct {
	repo     Repo
	provider strategy.Provider
	registry *strategy.Registry
	waker    Waker
	snooze   time.Duration
	now      func() time.Time
}

func NewService(repo Repo, provider strategy.Provider, registry *strategy.Registry, waker Waker, snooze time.Duration) *Service {
	if waker == nil {
		waker = noopWaker{}
	}
	if snooze <= 0 {
		snooze = 10 * time.Minute
	}
	return &Service{
		repo:     repo,
		provider: provider,
		registry: registry,
		waker:    waker,
		snooze:   snooze,
		now:      time.Now,
	}
}

// CreateMatch starts a standalone match. Agent seats must name a known
// strategy; human seats get a generated move token.
func (s *Service) CreateMatch(ctx context.Context, players [2]store.Participant) (*store.Match, error) {
	for i := range players {
		if players[i].IsAgent() {
			if _, ok := s.registry.Get(players[i].StrategyKey); !ok {
				return nil, ErrUnknownStrategy
			}
			continue
		}
		if players[i].Token == "" {
			players[i].Token = store.NewID()
		}
	}
	m := &store.Match{
		Players: players,
		Status:  store.MatchInProgress,
	}
	if err := s.repo.CreateMatch(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) GetState(ctx context.Context, matchID string) (*MatchState, error) {
	m, err := s.repo.GetMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	b, err := replayMatch(m)
	if err != nil {
		return nil, err
	}
	return stateFor(m, b), nil
}

// HumanMove commits a move for the human seat holding token. The whole
// validation runs under the row lock, so there is no stale window.
func (s *Service) HumanMove(ctx context.Context, matchID, token string, column int) (*MatchState, error) {
	var state *MatchState
	err := s.repo.WithMatchLock(ctx, matchID, func(tx store.MatchTx, m *store.Match) error {
		if m.Status != store.MatchInProgress {
			return ErrMatchNotPlayable
		}
		if token == "" || !holdsSeat(m, token) {
			return ErrUnauthorized
		}
		seat := m.Participant(m.TurnPlayer())
		if seat.IsAgent() || seat.Token != token {
			return ErrNotYourTurn
		}
		b, err := replayMatch(m)
		if err != nil {
			return err
		}
		if !b.CanDrop(column) {
			return ErrInvalidMove
		}
		state, err = s.commit(ctx, tx, m, b, store.MoveRecord{
			Player: m.TurnPlayer(),
			Column: column,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	s.waker.Trigger()
	return state, nil
}

// StepAgentTurn plays one agent move. The expensive model call runs
// against an unlocked snapshot; the commit re-locks and re-validates.
// A concurrent commit in between surfaces as StepStale, not an error.
func (s *Service) StepAgentTurn(ctx context.Context, matchID string) (*StepResult, error) {
	m, err := s.repo.GetMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	if m.Status != store.MatchInProgress {
		return &StepResult{Outcome: StepSkipped}, nil
	}
	board, err := replayMatch(m)
	if err != nil {
		return nil, err
	}
	seat := m.Participant(m.TurnPlayer())
	if !seat.IsAgent() {
		return &StepResult{Outcome: StepSkipped}, nil
	}
	snapshotMoves := m.MoveCount()

	started := s.now()
	proposal, thinkErr := s.provider.ProposeMove(ctx, board, seat.StrategyKey)
	elapsed := s.now().Sub(started)

	if errors.Is(thinkErr, strategy.ErrRateLimited) {
		return s.snoozeMatch(ctx, matchID, seat.StrategyKey)
	}

	move := store.MoveRecord{
		Player:     m.TurnPlayer(),
		DurationMS: elapsed.Milliseconds(),
	}
	if thinkErr != nil {
		log.Warn().Err(thinkErr).Str("match_id", matchID).Str("strategy", seat.StrategyKey).
			Msg("model call failed, falling back")
		move.Column = fallbackColumn(board)
		move.IsFallback = true
	} else {
		move.Column = proposal.Column
		move.Reasoning = proposal.Reasoning
		move.InputTokens = proposal.Usage.InputTokens
		move.OutputTokens = proposal.Usage.OutputTokens
		move.CostUSD = s.registry.MoveCostUSD(seat.StrategyKey, proposal.Usage)
	}

	var result *StepResult
	err = s.repo.WithMatchLock(ctx, matchID, func(tx store.MatchTx, locked *store.Match) error {
		if locked.MoveCount() != snapshotMoves {
			result = &StepResult{Outcome: StepStale}
			return nil
		}
		if locked.Status != store.MatchInProgress {
			result = &StepResult{Outcome: StepSkipped}
			return nil
		}
		b, err := replayMatch(locked)
		if err != nil {
			return err
		}
		// A bad proposal skips the turn. The next cycle asks again.
		if !b.CanDrop(move.Column) {
			log.Warn().Int("column", move.Column).Str("match_id", matchID).Str("strategy", seat.StrategyKey).
				Msg("invalid column proposed, move discarded")
			result = &StepResult{Outcome: StepStale}
			return nil
		}
		state, err := s.commit(ctx, tx, locked, b, move)
		if err != nil {
			return err
		}
		outcome := StepAdvanced
		if state.Status.Terminal() {
			outcome = StepTerminal
		}
		result = &StepResult{Outcome: outcome, State: state}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Every committed move can free a concurrency slot, so the
	// scheduler gets poked instead of waiting out its timer.
	if result.Outcome == StepAdvanced || result.Outcome == StepTerminal {
		s.waker.Trigger()
	}
	return result, nil
}

func (s *Service) snoozeMatch(ctx context.Context, matchID, strategyKey string) (*StepResult, error) {
	err := s.repo.WithMatchLock(ctx, matchID, func(tx store.MatchTx, m *store.Match) error {
		if m.Status != store.MatchInProgress {
			return nil
		}
		retry := s.now().Add(s.snooze)
		m.Status = store.MatchPaused
		m.RetryAfter = &retry
		return tx.SaveMatch(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("match_id", matchID).Str("strategy", strategyKey).
		Dur("snooze", s.snooze).Msg("match snoozed on rate limit")
	s.waker.Trigger()
	return &StepResult{Outcome: StepSnoozed}, nil
}

// commit applies one validated move under the lock, handling terminal
// transitions, stats and ratings.
func (s *Service) commit(ctx context.Context, tx store.MatchTx, m *store.Match, b *game.Board, move store.MoveRecord) (*MatchState, error) {
	if err := b.Drop(move.Column); err != nil {
		return nil, ErrInvalidMove
	}
	m.Moves = append(m.Moves, move)
	switch {
	case b.Winner() != 0:
		m.Status = store.MatchCompleted
		m.Winner = b.Winner()
		m.Stats = buildStats(m)
	case b.IsDraw():
		m.Status = store.MatchDraw
		m.Stats = buildStats(m)
	}
	if err := tx.SaveMatch(ctx, m); err != nil {
		return nil, err
	}
	if m.Status.Terminal() {
		if err := elo.Apply(ctx, tx, m); err != nil {
			return nil, err
		}
	}
	return stateFor(m, b), nil
}

func replayMatch(m *store.Match) (*game.Board, error) {
	cols := make([]int, len(m.Moves))
	for i, mv := range m.Moves {
		cols[i] = mv.Column
	}
	return game.Replay(cols)
}

func holdsSeat(m *store.Match, token string) bool {
	for _, p := range m.Players {
		if !p.IsAgent() && p.Token == token {
			return true
		}
	}
	return false
}

func fallbackColumn(b *game.Board) int {
	moves := b.ValidMoves()
	if len(moves) == 0 {
		return 0
	}
	// Prefer the center, the least losing default.
	for _, c := range moves {
		if c == game.Cols/2 {
			return c
		}
	}
	return moves[0]
}

func buildStats(m *store.Match) *store.MatchStats {
	stats := &store.MatchStats{
		TotalMoves:   len(m.Moves),
		InputTokens:  map[string]int{},
		OutputTokens: map[string]int{},
		CostUSD:      map[string]float64{},
		Fallbacks:    map[string]int{},
	}
	labels := [2]string{"p1", "p2"}
	for _, mv := range m.Moves {
		label := labels[mv.Player-1]
		stats.DurationMS += mv.DurationMS
		stats.InputTokens[label] += mv.InputTokens
		stats.OutputTokens[label] += mv.OutputTokens
		stats.CostUSD[label] += mv.CostUSD
		if mv.IsFallback {
			stats.Fallbacks[label]++
		}
	}
	return stats
}
