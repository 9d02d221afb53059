package tournament

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"connect-arena/internal/store"
	"connect-arena/internal/strategy"
)

var (
	ErrTournamentNotFound = errors.New("tournament_not_found")
	ErrInvalidTournament  = errors.New("invalid_tournament")
	ErrTournamentActive   = errors.New("tournament_active")
	ErrNotStartable       = errors.New("tournament_not_startable")
)

// Repo is the slice of the store the scheduler needs.
type Repo interface {
	CreateTournament(ctx context.Context, t *store.Tournament) error
	GetTournament(ctx context.Context, id string) (*store.Tournament, error)
	FindRunningTournament(ctx context.Context) (*store.Tournament, error)
	SetTournamentStatus(ctx context.Context, id string, status store.TournamentStatus) error
	SetTournamentConcurrency(ctx context.Context, id string, concurrency int) error
	CreateMatches(ctx context.Context, matches []*store.Match) error
	CountUnfinishedMatches(ctx context.Context, tournamentID string) (int, error)
	ListMatches(ctx context.Context, tournamentID string, statuses ...store.MatchStatus) ([]*store.Match, error)
	ClaimStartableMatches(ctx context.Context, tournamentID string, now time.Time, limit int) ([]*store.Match, error)
}

// Workers is the match-runner surface the scheduler drives.
type Workers interface {
	StartIfEligible(ctx context.Context, m *store.Match) bool
	Stop(matchID string)
	IsRunning(matchID string) bool
}

// Scheduler owns tournament lifecycle and keeps the number of live
// match workers inside the tournament's concurrency budget.
type Scheduler struct {
	repo      Repo
	workers   Workers
	bus       *Bus
	registry  *strategy.Registry
	heartbeat time.Duration
	now       func() time.Time
}

func NewScheduler(repo Repo, workers Workers, bus *Bus, registry *strategy.Registry, heartbeat time.Duration) *Scheduler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Scheduler{
		repo:      repo,
		workers:   workers,
		bus:       bus,
		registry:  registry,
		heartbeat: heartbeat,
		now:       time.Now,
	}
}

// Create sets up a double round-robin tournament in SETUP state with
// all its matches pre-generated as PENDING.
func (s *Scheduler) Create(ctx context.Context, participants []string, rounds, concurrency int) (*store.Tournament, error) {
	if len(participants) < 2 || rounds < 1 || concurrency < 1 {
		return nil, ErrInvalidTournament
	}
	if err := s.checkStrategies(participants); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, p := range participants {
		if seen[p] {
			return nil, ErrInvalidTournament
		}
		seen[p] = true
	}
	return s.create(ctx, participants, concurrency, rounds, roundRobinPairs(participants, rounds))
}

// CreateEvaluation sets up a tournament that pits one target strategy
// against a benchmark set, both seats per round.
func (s *Scheduler) CreateEvaluation(ctx context.Context, target string, benchmarks []string, rounds, concurrency int) (*store.Tournament, error) {
	if target == "" || len(benchmarks) == 0 || rounds < 1 || concurrency < 1 {
		return nil, ErrInvalidTournament
	}
	all := append([]string{target}, benchmarks...)
	if err := s.checkStrategies(all); err != nil {
		return nil, err
	}
	pairs := evaluationPairs(target, benchmarks, rounds)
	if len(pairs) == 0 {
		return nil, ErrInvalidTournament
	}
	return s.create(ctx, all, concurrency, rounds, pairs)
}

func (s *Scheduler) checkStrategies(keys []string) error {
	for _, k := range keys {
		if _, ok := s.registry.Get(k); !ok {
			return ErrInvalidTournament
		}
	}
	return nil
}

func (s *Scheduler) create(ctx context.Context, participants []string, concurrency, rounds int, pairs []Pairing) (*store.Tournament, error) {
	tour := &store.Tournament{
		Status:       store.TournamentSetup,
		Participants: participants,
		Rounds:       rounds,
		Concurrency:  concurrency,
		TotalMatches: len(pairs),
	}
	if err := s.repo.CreateTournament(ctx, tour); err != nil {
		return nil, err
	}

	// Shuffle within each round so one strategy is not hammered with
	// back-to-back games.
	rand.Shuffle(len(pairs), func(i, j int) {
		if pairs[i].Round == pairs[j].Round {
			pairs[i], pairs[j] = pairs[j], pairs[i]
		}
	})

	matches := make([]*store.Match, len(pairs))
	for i, p := range pairs {
		matches[i] = &store.Match{
			TournamentID: tour.ID,
			Round:        p.Round,
			Status:       store.MatchPending,
			Players: [2]store.Participant{
				{StrategyKey: p.P1},
				{StrategyKey: p.P2},
			},
		}
	}
	if err := s.repo.CreateMatches(ctx, matches); err != nil {
		return nil, err
	}
	log.Info().Str("tournament_id", tour.ID).Int("matches", len(matches)).
		Int("rounds", rounds).Msg("tournament created")
	return tour, nil
}

func (s *Scheduler) Get(ctx context.Context, id string) (*store.Tournament, error) {
	t, err := s.repo.GetTournament(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTournamentNotFound
	}
	return t, err
}

// Start moves a tournament into IN_PROGRESS. Only one tournament runs
// at a time.
func (s *Scheduler) Start(ctx context.Context, id string) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != store.TournamentSetup && t.Status != store.TournamentPaused {
		return ErrNotStartable
	}
	running, err := s.repo.FindRunningTournament(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err == nil && running.ID != id {
		return ErrTournamentActive
	}
	if err := s.setStatus(ctx, id, store.TournamentInProgress); err != nil {
		return err
	}
	s.bus.Trigger()
	return nil
}

// Pause freezes scheduling and stops the workers of its live matches.
// The matches stay IN_PROGRESS and resume where they left off.
func (s *Scheduler) Pause(ctx context.Context, id string) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != store.TournamentInProgress {
		return ErrNotStartable
	}
	if err := s.setStatus(ctx, id, store.TournamentPaused); err != nil {
		return err
	}
	s.stopMatchWorkers(ctx, id)
	return nil
}

func (s *Scheduler) Resume(ctx context.Context, id string) error {
	return s.Start(ctx, id)
}

// Stop ends a tournament for good. Pending matches never start.
func (s *Scheduler) Stop(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.setStatus(ctx, id, store.TournamentStopped); err != nil {
		return err
	}
	s.stopMatchWorkers(ctx, id)
	return nil
}

// UpdateConcurrency takes effect on the next heartbeat. Shrinking the
// budget never kills live matches, they just are not replaced.
func (s *Scheduler) UpdateConcurrency(ctx context.Context, id string, concurrency int) error {
	if concurrency < 1 {
		return ErrInvalidTournament
	}
	err := s.repo.SetTournamentConcurrency(ctx, id, concurrency)
	if errors.Is(err, store.ErrNotFound) {
		return ErrTournamentNotFound
	}
	if err != nil {
		return err
	}
	s.bus.Trigger()
	return nil
}

func (s *Scheduler) setStatus(ctx context.Context, id string, status store.TournamentStatus) error {
	err := s.repo.SetTournamentStatus(ctx, id, status)
	if errors.Is(err, store.ErrNotFound) {
		return ErrTournamentNotFound
	}
	if err != nil {
		return err
	}
	log.Info().Str("tournament_id", id).Str("status", string(status)).Msg("tournament status changed")
	return nil
}

func (s *Scheduler) stopMatchWorkers(ctx context.Context, tournamentID string) {
	matches, err := s.repo.ListMatches(ctx, tournamentID, store.MatchInProgress)
	if err != nil {
		log.Error().Err(err).Str("tournament_id", tournamentID).Msg("list live matches for stop")
		return
	}
	for _, m := range matches {
		s.workers.Stop(m.ID)
	}
}

// Heartbeat reconciles the running tournament: finishes it when no
// matches remain, reclaims orphaned live matches, then fills the
// remaining concurrency budget with claimed matches.
func (s *Scheduler) Heartbeat(ctx context.Context) error {
	t, err := s.repo.FindRunningTournament(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	unfinished, err := s.repo.CountUnfinishedMatches(ctx, t.ID)
	if err != nil {
		return err
	}
	if unfinished == 0 {
		log.Info().Str("tournament_id", t.ID).Msg("tournament completed")
		return s.setStatus(ctx, t.ID, store.TournamentCompleted)
	}

	live, err := s.repo.ListMatches(ctx, t.ID, store.MatchInProgress)
	if err != nil {
		return err
	}
	// Matches marked running with no worker are orphans, typically
	// after a restart.
	active := 0
	var orphans []*store.Match
	for _, m := range live {
		if s.workers.IsRunning(m.ID) {
			active++
		} else {
			orphans = append(orphans, m)
		}
	}

	slots := t.Concurrency - active
	if slots <= 0 {
		return nil
	}
	// Orphans reclaim budget slots before any new claims; the rest
	// stay parked until a later heartbeat frees a slot.
	for _, m := range orphans {
		if slots <= 0 {
			return nil
		}
		if s.workers.StartIfEligible(ctx, m) {
			slots--
			active++
			log.Info().Str("match_id", m.ID).Msg("orphaned match reclaimed")
		}
	}
	if slots <= 0 {
		return nil
	}
	claimed, err := s.repo.ClaimStartableMatches(ctx, t.ID, s.now(), slots)
	if err != nil {
		return err
	}
	for _, m := range claimed {
		if !s.workers.StartIfEligible(ctx, m) {
			log.Warn().Str("match_id", m.ID).Msg("claimed match did not start")
		}
	}
	if len(claimed) > 0 {
		log.Info().Str("tournament_id", t.ID).Int("started", len(claimed)).
			Int("active", active+len(claimed)).Msg("heartbeat filled budget")
	}
	return nil
}

// Run drives heartbeats until ctx is done, waking early on bus
// triggers. Heartbeat errors are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		if err := s.Heartbeat(ctx); err != nil {
			log.Error().Err(err).Msg("scheduler heartbeat failed")
		}
		if ctx.Err() != nil {
			return
		}
		s.bus.Await(ctx, s.heartbeat)
		if ctx.Err() != nil {
			return
		}
	}
}
