package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"connect-arena/internal/arena"
	"connect-arena/internal/config"
	"connect-arena/internal/store"
	"connect-arena/internal/tournament"
	"connect-arena/internal/ws"
)

func newRouter(st *store.Store, cfg config.ServerConfig, matchSvc *arena.Service, sched *tournament.Scheduler, wsServer *ws.Server) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(apiLogMiddleware()).Get("/healthz", healthHandler(st))

	r.Route("/api", func(r chi.Router) {
		r.Get("/ws", wsServer.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(apiLogMiddleware())

			r.Post("/matches", createMatchHandler(matchSvc))
			r.Get("/matches/{match_id}", getMatchHandler(matchSvc))
			r.Post("/matches/{match_id}/moves", postMoveHandler(matchSvc))

			r.Get("/ratings", ratingsHandler(st))
			r.Get("/ratings/{strategy_key}/history", ratingHistoryHandler(st))

			r.Get("/tournaments/{tournament_id}", getTournamentHandler(sched, st))

			r.Group(func(r chi.Router) {
				r.Use(adminAuthMiddleware(cfg.AdminAPIKey))
				r.Post("/tournaments", createTournamentHandler(sched))
				r.Post("/tournaments/evaluation", createEvaluationHandler(sched))
				r.Post("/tournaments/{tournament_id}/start", tournamentActionHandler(sched.Start))
				r.Post("/tournaments/{tournament_id}/pause", tournamentActionHandler(sched.Pause))
				r.Post("/tournaments/{tournament_id}/resume", tournamentActionHandler(sched.Resume))
				r.Post("/tournaments/{tournament_id}/stop", tournamentActionHandler(sched.Stop))
				r.Post("/tournaments/{tournament_id}/concurrency", updateConcurrencyHandler(sched))
			})
		})
	})

	return r
}

func healthHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			writeHTTPError(w, http.StatusServiceUnavailable, "db_unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}
