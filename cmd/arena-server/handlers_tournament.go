package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"connect-arena/internal/store"
	"connect-arena/internal/tournament"
)

type createTournamentRequest struct {
	Participants []string `json:"participants"`
	Rounds       int      `json:"rounds"`
	Concurrency  int      `json:"concurrency"`
}

func createTournamentHandler(sched *tournament.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTournamentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if req.Rounds == 0 {
			req.Rounds = 1
		}
		if req.Concurrency == 0 {
			req.Concurrency = 1
		}
		tour, err := sched.Create(r.Context(), req.Participants, req.Rounds, req.Concurrency)
		if err != nil {
			writeTournamentError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, tournamentView(tour))
	}
}

type createEvaluationRequest struct {
	Target      string   `json:"target"`
	Benchmarks  []string `json:"benchmarks"`
	Rounds      int      `json:"rounds"`
	Concurrency int      `json:"concurrency"`
}

func createEvaluationHandler(sched *tournament.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createEvaluationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if req.Rounds == 0 {
			req.Rounds = 1
		}
		if req.Concurrency == 0 {
			req.Concurrency = 1
		}
		tour, err := sched.CreateEvaluation(r.Context(), req.Target, req.Benchmarks, req.Rounds, req.Concurrency)
		if err != nil {
			writeTournamentError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, tournamentView(tour))
	}
}

func getTournamentHandler(sched *tournament.Scheduler, st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "tournament_id")
		tour, err := sched.Get(r.Context(), id)
		if err != nil {
			writeTournamentError(w, err)
			return
		}
		unfinished, err := st.CountUnfinishedMatches(r.Context(), id)
		if err != nil {
			log.Error().Err(err).Str("tournament_id", id).Msg("count matches failed")
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		view := tournamentView(tour)
		view["finished_matches"] = tour.TotalMatches - unfinished
		writeJSON(w, http.StatusOK, view)
	}
}

func tournamentActionHandler(action func(ctx context.Context, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "tournament_id")
		if err := action(r.Context(), id); err != nil {
			writeTournamentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func updateConcurrencyHandler(sched *tournament.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Concurrency int `json:"concurrency"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if err := sched.UpdateConcurrency(r.Context(), chi.URLParam(r, "tournament_id"), req.Concurrency); err != nil {
			writeTournamentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func tournamentView(t *store.Tournament) map[string]any {
	return map[string]any{
		"tournament_id": t.ID,
		"status":        t.Status,
		"participants":  t.Participants,
		"rounds":        t.Rounds,
		"concurrency":   t.Concurrency,
		"total_matches": t.TotalMatches,
		"created_at":    t.CreatedAt,
	}
}

func writeTournamentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tournament.ErrInvalidTournament):
		writeHTTPError(w, http.StatusBadRequest, "invalid_tournament")
	case errors.Is(err, tournament.ErrTournamentNotFound):
		writeHTTPError(w, http.StatusNotFound, "tournament_not_found")
	case errors.Is(err, tournament.ErrTournamentActive):
		writeHTTPError(w, http.StatusConflict, "tournament_active")
	case errors.Is(err, tournament.ErrNotStartable):
		writeHTTPError(w, http.StatusConflict, "tournament_not_startable")
	default:
		log.Error().Err(err).Msg("tournament request failed")
		writeHTTPError(w, http.StatusInternalServerError, "internal_error")
	}
}
