package arena

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"connect-arena/internal/store"
)

// Sink receives state updates as the runner advances a match.
type Sink interface {
	Broadcast(matchID string, state *MatchState)
}

type noopSink struct{}

func (noopSink) Broadcast(string, *MatchState) {}

// Runner drives agent-vs-agent matches in background workers, one
// goroutine per live match.
type Runner struct {
	svc  *Service
	sink Sink
	pace time.Duration

	mu      sync.Mutex
	workers map[string]context.CancelFunc
}

func NewRunner(svc *Service, sink Sink, pace time.Duration) *Runner {
	if sink == nil {
		sink = noopSink{}
	}
	if pace <= 0 {
		pace = time.Second
	}
	return &Runner{
		svc:     svc,
		sink:    sink,
		pace:    pace,
		workers: map[string]context.CancelFunc{},
	}
}

// StartIfEligible spawns a worker for the match if it is a running
// agent-vs-agent game and no worker exists yet. Returns whether a
// worker is active after the call.
func (r *Runner) StartIfEligible(ctx context.Context, m *store.Match) bool {
	if !m.AgentVsAgent() || m.Status != store.MatchInProgress {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workers[m.ID]; ok {
		return true
	}
	workerCtx, cancel := context.WithCancel(ctx)
	r.workers[m.ID] = cancel
	go r.loop(workerCtx, m.ID)
	log.Info().Str("match_id", m.ID).Msg("match worker started")
	return true
}

func (r *Runner) Stop(matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.workers[matchID]; ok {
		cancel()
	}
}

func (r *Runner) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cancel := range r.workers {
		cancel()
	}
}

func (r *Runner) IsRunning(matchID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.workers[matchID]
	return ok
}

func (r *Runner) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

func (r *Runner) deregister(matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.workers[matchID]; ok {
		cancel()
		delete(r.workers, matchID)
	}
}

const maxConsecutiveFailures = 5

// loop paces one match to completion. Cancellation is only observed at
// the pacing sleep so an in-flight commit is never interrupted.
func (r *Runner) loop(ctx context.Context, matchID string) {
	defer r.deregister(matchID)

	staleStreak := 0
	failStreak := 0
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("match_id", matchID).Msg("match worker stopped")
			return
		case <-time.After(r.pace):
		}

		res, err := r.svc.StepAgentTurn(context.WithoutCancel(ctx), matchID)
		if err != nil {
			failStreak++
			log.Error().Err(err).Str("match_id", matchID).Int("streak", failStreak).
				Msg("agent step failed")
			if failStreak >= maxConsecutiveFailures {
				return
			}
			continue
		}
		failStreak = 0

		if res.State != nil {
			r.sink.Broadcast(matchID, res.State)
		}

		switch res.Outcome {
		case StepAdvanced:
			staleStreak = 0
		case StepStale:
			// One stale step is the normal race with a concurrent
			// commit. Two in a row means someone else owns this match.
			staleStreak++
			if staleStreak >= 2 {
				log.Warn().Str("match_id", matchID).Msg("repeated stale steps, ceding match")
				return
			}
		case StepTerminal:
			log.Info().Str("match_id", matchID).Msg("match finished")
			return
		case StepSnoozed:
			log.Info().Str("match_id", matchID).Msg("match snoozed, worker exiting")
			return
		case StepSkipped:
			log.Info().Str("match_id", matchID).Msg("match no longer steppable")
			return
		}
	}
}
