package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateTournament(ctx context.Context, t *Tournament) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.Status == "" {
		t.Status = TournamentSetup
	}
	_, err := s.Pool.Exec(ctx, `INSERT INTO tournaments
		(id, status, participants, rounds, concurrency, total_matches)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Status, t.Participants, t.Rounds, t.Concurrency, t.TotalMatches)
	return err
}

func (s *Store) GetTournament(ctx context.Context, id string) (*Tournament, error) {
	row := s.Pool.QueryRow(ctx, `SELECT id, status, participants, rounds, concurrency, total_matches, created_at
		FROM tournaments WHERE id = $1`, id)
	return scanTournament(row)
}

// FindRunningTournament returns the single tournament currently in
// progress, or ErrNotFound. The scheduler drives one at a time.
func (s *Store) FindRunningTournament(ctx context.Context) (*Tournament, error) {
	row := s.Pool.QueryRow(ctx, `SELECT id, status, participants, rounds, concurrency, total_matches, created_at
		FROM tournaments WHERE status = $1 ORDER BY created_at LIMIT 1`, TournamentInProgress)
	return scanTournament(row)
}

func (s *Store) SetTournamentStatus(ctx context.Context, id string, status TournamentStatus) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE tournaments SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetTournamentConcurrency(ctx context.Context, id string, concurrency int) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE tournaments SET concurrency = $1 WHERE id = $2`, concurrency, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTournament(row pgx.Row) (*Tournament, error) {
	t := &Tournament{}
	err := row.Scan(&t.ID, &t.Status, &t.Participants, &t.Rounds, &t.Concurrency, &t.TotalMatches, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}
