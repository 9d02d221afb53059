// Package elo applies rating updates when a rated match reaches a
// terminal result. Updates are idempotent per match: a rating_history
// row keyed by match id marks a match as already applied.
package elo

import (
	"context"
	"math"

	"connect-arena/internal/store"
)

const (
	KFactor       = 32
	InitialRating = 1200
)

// ExpectedScore is the classic Elo win expectancy for a against b.
func ExpectedScore(a, b float64) float64 {
	return 1 / (1 + math.Pow(10, (b-a)/400))
}

// Apply updates both players' ratings inside the caller's transaction.
// Only agent-vs-agent matches are rated; human seats have no strategy
// key to attach a rating to. Calling Apply twice for the same match is
// a no-op.
func Apply(ctx context.Context, tx store.MatchTx, m *store.Match) error {
	if !m.AgentVsAgent() {
		return nil
	}
	if m.Status != store.MatchCompleted && m.Status != store.MatchDraw {
		return nil
	}
	seen, err := tx.HasRatingHistory(ctx, m.ID)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	// Both rating rows lock in sorted key order. Two matches pairing
	// the same strategies in opposite seats would otherwise lock them
	// in opposite orders and deadlock each other's transactions.
	k1, k2 := m.Players[0].StrategyKey, m.Players[1].StrategyKey
	lo, hi := k1, k2
	if hi < lo {
		lo, hi = hi, lo
	}
	rLo, err := tx.GetOrCreateRating(ctx, lo)
	if err != nil {
		return err
	}
	rHi, err := tx.GetOrCreateRating(ctx, hi)
	if err != nil {
		return err
	}
	r1, r2 := rLo, rHi
	if r1.StrategyKey != k1 {
		r1, r2 = rHi, rLo
	}

	var s1 float64
	switch m.Winner {
	case 1:
		s1 = 1
	case 2:
		s1 = 0
	default:
		s1 = 0.5
	}
	e1 := ExpectedScore(r1.Rating, r2.Rating)
	newR1 := r1.Rating + KFactor*(s1-e1)
	newR2 := r2.Rating + KFactor*((1-s1)-(1-e1))
	r1.Rating = newR1
	r2.Rating = newR2

	applyResult(r1, m.Winner, 1)
	applyResult(r2, m.Winner, 2)
	accumulateUsage(r1, m, 1)
	accumulateUsage(r2, m, 2)

	if err := tx.SaveRating(ctx, r1); err != nil {
		return err
	}
	if err := tx.SaveRating(ctx, r2); err != nil {
		return err
	}
	if err := tx.AppendRatingHistory(ctx, &store.RatingPoint{
		StrategyKey: r1.StrategyKey, Rating: r1.Rating, MatchID: m.ID,
	}); err != nil {
		return err
	}
	return tx.AppendRatingHistory(ctx, &store.RatingPoint{
		StrategyKey: r2.StrategyKey, Rating: r2.Rating, MatchID: m.ID,
	})
}

func applyResult(r *store.Rating, winner, player int) {
	r.MatchesPlayed++
	switch {
	case winner == player:
		r.Wins++
	case winner == 0:
		r.Draws++
	default:
		r.Losses++
	}
}

func accumulateUsage(r *store.Rating, m *store.Match, player int) {
	for _, mv := range m.Moves {
		if mv.Player != player {
			continue
		}
		r.TotalMoves++
		r.TotalInputTokens += int64(mv.InputTokens)
		r.TotalOutputTokens += int64(mv.OutputTokens)
		r.TotalDurationMS += mv.DurationMS
		r.TotalCostUSD += mv.CostUSD
	}
}
