package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// MatchTx is the slice of transactional operations a move commit needs.
// Rating writes ride in the same transaction as the match update so a
// finished match and its rating deltas land atomically.
type MatchTx interface {
	SaveMatch(ctx context.Context, m *Match) error
	HasRatingHistory(ctx context.Context, matchID string) (bool, error)
	GetOrCreateRating(ctx context.Context, strategyKey string) (*Rating, error)
	SaveRating(ctx context.Context, r *Rating) error
	AppendRatingHistory(ctx context.Context, p *RatingPoint) error
}

const matchColumns = `id, COALESCE(tournament_id, ''), round_number,
	p1_strategy, p1_token, p2_strategy, p2_token,
	status, winner, moves, retry_after, stats, created_at, updated_at`

func (s *Store) CreateMatch(ctx context.Context, m *Match) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := insertMatch(ctx, tx, m); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreateMatches inserts a batch in one transaction, used when a
// tournament schedule is generated.
func (s *Store) CreateMatches(ctx context.Context, matches []*Match) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	for _, m := range matches {
		if err := insertMatch(ctx, tx, m); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func insertMatch(ctx context.Context, tx pgx.Tx, m *Match) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.Status == "" {
		m.Status = MatchPending
	}
	moves, err := json.Marshal(m.Moves)
	if err != nil {
		return err
	}
	if m.Moves == nil {
		moves = []byte("[]")
	}
	_, err = tx.Exec(ctx, `INSERT INTO matches
		(id, tournament_id, round_number, p1_strategy, p1_token, p2_strategy, p2_token, status, winner, moves, retry_after)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.TournamentID, m.Round,
		m.Players[0].StrategyKey, m.Players[0].Token,
		m.Players[1].StrategyKey, m.Players[1].Token,
		m.Status, m.Winner, moves, m.RetryAfter)
	return err
}

func (s *Store) GetMatch(ctx context.Context, id string) (*Match, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id)
	return scanMatch(row)
}

// WithMatchLock runs fn against the match row held under FOR UPDATE.
// Mutations fn makes through the MatchTx commit when fn returns nil and
// roll back otherwise.
func (s *Store) WithMatchLock(ctx context.Context, id string, fn func(tx MatchTx, m *Match) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1 FOR UPDATE`, id)
	m, err := scanMatch(row)
	if err != nil {
		return err
	}
	if err := fn(&matchTx{tx: tx}, m); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListMatches filters by tournament and status. Empty tournamentID means
// all tournaments, no statuses means all statuses.
func (s *Store) ListMatches(ctx context.Context, tournamentID string, statuses ...MatchStatus) ([]*Match, error) {
	q := `SELECT ` + matchColumns + ` FROM matches WHERE 1=1`
	args := []any{}
	if tournamentID != "" {
		args = append(args, tournamentID)
		q += fmt.Sprintf(` AND tournament_id = $%d`, len(args))
	}
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		args = append(args, names)
		q += fmt.Sprintf(` AND status = ANY($%d)`, len(args))
	}
	q += ` ORDER BY round_number, id`

	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) CountUnfinishedMatches(ctx context.Context, tournamentID string) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM matches
		WHERE tournament_id = $1 AND status IN ($2, $3, $4)`,
		tournamentID, MatchPending, MatchInProgress, MatchPaused).Scan(&n)
	return n, err
}

// ClaimStartableMatches atomically selects up to limit startable matches
// and flips them to IN_PROGRESS. Expired PAUSED matches take priority
// over fresh PENDING ones; within each group order follows the bracket.
// SKIP LOCKED keeps concurrent schedulers from claiming the same rows.
func (s *Store) ClaimStartableMatches(ctx context.Context, tournamentID string, now time.Time, limit int) ([]*Match, error) {
	if limit <= 0 {
		return nil, nil
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT `+matchColumns+` FROM matches
		WHERE tournament_id = $1
		  AND (status = $2 OR (status = $3 AND retry_after IS NOT NULL AND retry_after <= $4))
		ORDER BY CASE WHEN status = $3 THEN 0 ELSE 1 END, round_number, id
		LIMIT $5
		FOR UPDATE SKIP LOCKED`,
		tournamentID, MatchPending, MatchPaused, now, limit)
	if err != nil {
		return nil, err
	}
	var claimed []*Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, m := range claimed {
		m.Status = MatchInProgress
		m.RetryAfter = nil
		if _, err := tx.Exec(ctx, `UPDATE matches
			SET status = $1, retry_after = NULL, updated_at = now() WHERE id = $2`,
			MatchInProgress, m.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return claimed, nil
}

// AbandonStaleMatches closes standalone in-progress matches with no
// activity since cutoff. Tournament matches are left to the scheduler,
// which reclaims them as orphans. Returns the ids it touched.
func (s *Store) AbandonStaleMatches(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `UPDATE matches
		SET status = $1, updated_at = now()
		WHERE status = $2 AND tournament_id IS NULL AND updated_at < $3
		RETURNING id`,
		MatchAbandoned, MatchInProgress, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type matchTx struct {
	tx pgx.Tx
}

func (t *matchTx) SaveMatch(ctx context.Context, m *Match) error {
	moves, err := json.Marshal(m.Moves)
	if err != nil {
		return err
	}
	var stats []byte
	if m.Stats != nil {
		if stats, err = json.Marshal(m.Stats); err != nil {
			return err
		}
	}
	_, err = t.tx.Exec(ctx, `UPDATE matches
		SET status = $1, winner = $2, moves = $3, retry_after = $4, stats = $5, updated_at = now()
		WHERE id = $6`,
		m.Status, m.Winner, moves, m.RetryAfter, stats, m.ID)
	return err
}

func (t *matchTx) HasRatingHistory(ctx context.Context, matchID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM rating_history WHERE match_id = $1)`, matchID).Scan(&exists)
	return exists, err
}

func (t *matchTx) GetOrCreateRating(ctx context.Context, strategyKey string) (*Rating, error) {
	row := t.tx.QueryRow(ctx, `SELECT strategy_key, rating, matches_played, wins, losses, draws,
			total_input_tokens, total_output_tokens, total_moves, total_duration_ms, total_cost_usd, updated_at
		FROM ratings WHERE strategy_key = $1 FOR UPDATE`, strategyKey)
	r := &Rating{}
	err := row.Scan(&r.StrategyKey, &r.Rating, &r.MatchesPlayed, &r.Wins, &r.Losses, &r.Draws,
		&r.TotalInputTokens, &r.TotalOutputTokens, &r.TotalMoves, &r.TotalDurationMS, &r.TotalCostUSD, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		r = &Rating{StrategyKey: strategyKey, Rating: 1200, UpdatedAt: time.Now()}
		_, err = t.tx.Exec(ctx, `INSERT INTO ratings (strategy_key, rating) VALUES ($1, $2)`, strategyKey, r.Rating)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (t *matchTx) SaveRating(ctx context.Context, r *Rating) error {
	_, err := t.tx.Exec(ctx, `UPDATE ratings
		SET rating = $1, matches_played = $2, wins = $3, losses = $4, draws = $5,
			total_input_tokens = $6, total_output_tokens = $7, total_moves = $8,
			total_duration_ms = $9, total_cost_usd = $10, updated_at = now()
		WHERE strategy_key = $11`,
		r.Rating, r.MatchesPlayed, r.Wins, r.Losses, r.Draws,
		r.TotalInputTokens, r.TotalOutputTokens, r.TotalMoves,
		r.TotalDurationMS, r.TotalCostUSD, r.StrategyKey)
	return err
}

func (t *matchTx) AppendRatingHistory(ctx context.Context, p *RatingPoint) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO rating_history (strategy_key, rating, match_id) VALUES ($1, $2, $3)`,
		p.StrategyKey, p.Rating, p.MatchID)
	return err
}

func scanMatch(row pgx.Row) (*Match, error) {
	m := &Match{}
	var moves []byte
	var stats []byte
	err := row.Scan(&m.ID, &m.TournamentID, &m.Round,
		&m.Players[0].StrategyKey, &m.Players[0].Token,
		&m.Players[1].StrategyKey, &m.Players[1].Token,
		&m.Status, &m.Winner, &moves, &m.RetryAfter, &stats, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(moves) > 0 {
		if err := json.Unmarshal(moves, &m.Moves); err != nil {
			return nil, err
		}
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &m.Stats); err != nil {
			return nil, err
		}
	}
	return m, nil
}
