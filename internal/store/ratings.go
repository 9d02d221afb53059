package store

import "context"

func (s *Store) ListRatings(ctx context.Context) ([]*Rating, error) {
	rows, err := s.Pool.Query(ctx, `SELECT strategy_key, rating, matches_played, wins, losses, draws,
			total_input_tokens, total_output_tokens, total_moves, total_duration_ms, total_cost_usd, updated_at
		FROM ratings ORDER BY rating DESC, strategy_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Rating
	for rows.Next() {
		r := &Rating{}
		if err := rows.Scan(&r.StrategyKey, &r.Rating, &r.MatchesPlayed, &r.Wins, &r.Losses, &r.Draws,
			&r.TotalInputTokens, &r.TotalOutputTokens, &r.TotalMoves, &r.TotalDurationMS, &r.TotalCostUSD, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListRatingHistory(ctx context.Context, strategyKey string, limit int) ([]*RatingPoint, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.Pool.Query(ctx, `SELECT strategy_key, rating, match_id, created_at
		FROM rating_history WHERE strategy_key = $1 ORDER BY created_at DESC LIMIT $2`, strategyKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*RatingPoint
	for rows.Next() {
		p := &RatingPoint{}
		if err := rows.Scan(&p.StrategyKey, &p.Rating, &p.MatchID, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
