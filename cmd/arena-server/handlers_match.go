package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"connect-arena/internal/arena"
	"connect-arena/internal/store"
)

type createMatchRequest struct {
	// Empty strategy means a human seat with a generated move token.
	P1Strategy string `json:"p1_strategy"`
	P2Strategy string `json:"p2_strategy"`
}

type createMatchResponse struct {
	MatchID string `json:"match_id"`
	Status  string `json:"status"`
	P1Token string `json:"p1_token,omitempty"`
	P2Token string `json:"p2_token,omitempty"`
}

func createMatchHandler(svc *arena.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createMatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		m, err := svc.CreateMatch(r.Context(), [2]store.Participant{
			{StrategyKey: req.P1Strategy},
			{StrategyKey: req.P2Strategy},
		})
		if err != nil {
			writeMatchError(w, err)
			return
		}
		resp := createMatchResponse{MatchID: m.ID, Status: string(m.Status)}
		if !m.Players[0].IsAgent() {
			resp.P1Token = m.Players[0].Token
		}
		if !m.Players[1].IsAgent() {
			resp.P2Token = m.Players[1].Token
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func getMatchHandler(svc *arena.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := svc.GetState(r.Context(), chi.URLParam(r, "match_id"))
		if err != nil {
			writeMatchError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

type moveRequest struct {
	Token  string `json:"token"`
	Column int    `json:"column"`
}

func postMoveHandler(svc *arena.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		state, err := svc.HumanMove(r.Context(), chi.URLParam(r, "match_id"), req.Token, req.Column)
		if err != nil {
			writeMatchError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

func ratingsHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ratings, err := st.ListRatings(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("list ratings failed")
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ratings": ratings})
	}
}

func ratingHistoryHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "strategy_key")
		history, err := st.ListRatingHistory(r.Context(), key, parseLimit(r))
		if err != nil {
			log.Error().Err(err).Str("strategy", key).Msg("list rating history failed")
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": history})
	}
}

func writeMatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, arena.ErrInvalidMove):
		writeHTTPError(w, http.StatusBadRequest, "invalid_move")
	case errors.Is(err, arena.ErrUnknownStrategy):
		writeHTTPError(w, http.StatusBadRequest, "unknown_strategy")
	case errors.Is(err, arena.ErrUnauthorized):
		writeHTTPError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, arena.ErrMatchNotFound):
		writeHTTPError(w, http.StatusNotFound, "match_not_found")
	case errors.Is(err, arena.ErrNotYourTurn):
		writeHTTPError(w, http.StatusConflict, "not_your_turn")
	case errors.Is(err, arena.ErrMatchNotPlayable):
		writeHTTPError(w, http.StatusConflict, "match_not_playable")
	default:
		log.Error().Err(err).Msg("match request failed")
		writeHTTPError(w, http.StatusInternalServerError, "internal_error")
	}
}
