package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"connect-arena/internal/arena"
	"connect-arena/internal/config"
	"connect-arena/internal/logging"
	"connect-arena/internal/store"
	"connect-arena/internal/strategy"
	"connect-arena/internal/tournament"
	"connect-arena/internal/ws"
)

func main() {
	_ = godotenv.Load()

	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logging.Init(logCfg)
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal().Err(err).Msg("load server config failed")
	}

	st, err := store.New(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	if err := st.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}

	registry, err := strategy.LoadRegistry(cfg.ModelsPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.ModelsPath).Msg("no model registry, starting empty")
		registry = strategy.NewRegistry(nil)
	}
	provider := strategy.NewOpenAIProvider(registry, cfg.LLMBaseURL, cfg.LLMAPIKey)

	bus := tournament.NewBus()
	matchSvc := arena.NewService(st, provider, registry, bus,
		time.Duration(cfg.RateLimitSnoozeMins)*time.Minute)
	wsServer := ws.NewServer()
	runner := arena.NewRunner(matchSvc, wsServer,
		time.Duration(cfg.MovePaceMS)*time.Millisecond)
	sched := tournament.NewScheduler(st, runner, bus, registry,
		time.Duration(cfg.HeartbeatSeconds)*time.Second)

	ctx := context.Background()
	go sched.Run(ctx)
	startJanitor(ctx, st, time.Duration(cfg.MatchIdleTimeoutMins)*time.Minute)
	resumeStandaloneMatches(ctx, st, runner)

	r := newRouter(st, cfg, matchSvc, sched, wsServer)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Info().Str("addr", cfg.HTTPAddr).Int("models", registry.Len()).Msg("http listening")
	log.Fatal().Err(server.ListenAndServe()).Msg("server stopped")
}

// startJanitor abandons matches nobody has touched for the idle window.
func startJanitor(ctx context.Context, st *store.Store, idle time.Duration) {
	c := cron.New()
	_, err := c.AddFunc("@every 10m", func() {
		ids, err := st.AbandonStaleMatches(ctx, time.Now().Add(-idle))
		if err != nil {
			log.Error().Err(err).Msg("abandon stale matches failed")
			return
		}
		if len(ids) > 0 {
			log.Info().Strs("match_ids", ids).Msg("stale matches abandoned")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("janitor schedule failed")
	}
	c.Start()
}

// resumeStandaloneMatches restarts workers for agent matches that were
// live when the process last stopped. Tournament matches are picked
// back up by the scheduler heartbeat instead.
func resumeStandaloneMatches(ctx context.Context, st *store.Store, runner *arena.Runner) {
	matches, err := st.ListMatches(ctx, "", store.MatchInProgress)
	if err != nil {
		log.Error().Err(err).Msg("list live matches on startup failed")
		return
	}
	resumed := 0
	for _, m := range matches {
		if m.TournamentID != "" {
			continue
		}
		if runner.StartIfEligible(ctx, m) {
			resumed++
		}
	}
	if resumed > 0 {
		log.Info().Int("count", resumed).Msg("standalone matches resumed")
	}
}
