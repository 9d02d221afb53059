package tournament

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"connect-arena/internal/store"
	"connect-arena/internal/strategy"
)

type fakeRepo struct {
	mu          sync.Mutex
	tournaments map[string]*store.Tournament
	matches     []*store.Match
	seq         int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{tournaments: map[string]*store.Tournament{}}
}

func (r *fakeRepo) CreateTournament(ctx context.Context, t *store.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == "" {
		r.seq++
		t.ID = fmt.Sprintf("t%03d", r.seq)
	}
	cp := *t
	r.tournaments[t.ID] = &cp
	return nil
}

func (r *fakeRepo) GetTournament(ctx context.Context, id string) (*store.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeRepo) FindRunningTournament(ctx context.Context) (*store.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.tournaments))
	for id := range r.tournaments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if r.tournaments[id].Status == store.TournamentInProgress {
			cp := *r.tournaments[id]
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *fakeRepo) SetTournamentStatus(ctx context.Context, id string, status store.TournamentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return store.ErrNotFound
	}
	t.Status = status
	return nil
}

func (r *fakeRepo) SetTournamentConcurrency(ctx context.Context, id string, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return store.ErrNotFound
	}
	t.Concurrency = concurrency
	return nil
}

func (r *fakeRepo) CreateMatches(ctx context.Context, matches []*store.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range matches {
		if m.ID == "" {
			r.seq++
			m.ID = fmt.Sprintf("m%03d", r.seq)
		}
		cp := *m
		r.matches = append(r.matches, &cp)
	}
	return nil
}

func (r *fakeRepo) CountUnfinishedMatches(ctx context.Context, tournamentID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.matches {
		if m.TournamentID == tournamentID && m.Status.Unfinished() {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) ListMatches(ctx context.Context, tournamentID string, statuses ...store.MatchStatus) ([]*store.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*store.Match
	for _, m := range r.matches {
		if tournamentID != "" && m.TournamentID != tournamentID {
			continue
		}
		if len(statuses) > 0 {
			found := false
			for _, st := range statuses {
				if m.Status == st {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRepo) ClaimStartableMatches(ctx context.Context, tournamentID string, now time.Time, limit int) ([]*store.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var eligible []*store.Match
	for _, m := range r.matches {
		if m.TournamentID != tournamentID {
			continue
		}
		switch {
		case m.Status == store.MatchPending:
			eligible = append(eligible, m)
		case m.Status == store.MatchPaused && m.RetryAfter != nil && !m.RetryAfter.After(now):
			eligible = append(eligible, m)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		pi, pj := eligible[i].Status == store.MatchPaused, eligible[j].Status == store.MatchPaused
		if pi != pj {
			return pi
		}
		if eligible[i].Round != eligible[j].Round {
			return eligible[i].Round < eligible[j].Round
		}
		return eligible[i].ID < eligible[j].ID
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	var out []*store.Match
	for _, m := range eligible {
		m.Status = store.MatchInProgress
		m.RetryAfter = nil
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRepo) setMatchStatus(id string, status store.MatchStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.matches {
		if m.ID == id {
			m.Status = status
			return
		}
	}
}

type fakeWorkers struct {
	mu      sync.Mutex
	running map[string]bool
	started []string
}

func newFakeWorkers() *fakeWorkers {
	return &fakeWorkers{running: map[string]bool{}}
}

func (w *fakeWorkers) StartIfEligible(ctx context.Context, m *store.Match) bool {
	if !m.AgentVsAgent() || m.Status != store.MatchInProgress {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running[m.ID] {
		w.running[m.ID] = true
		w.started = append(w.started, m.ID)
	}
	return true
}

func (w *fakeWorkers) Stop(matchID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.running, matchID)
}

func (w *fakeWorkers) IsRunning(matchID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running[matchID]
}

func (w *fakeWorkers) activeCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.running)
}

func testRegistry() *strategy.Registry {
	return strategy.NewRegistry(map[string]strategy.ModelConfig{
		"a": {ModelID: "model-a"},
		"b": {ModelID: "model-b"},
		"c": {ModelID: "model-c"},
	})
}

func newTestScheduler(repo *fakeRepo, workers *fakeWorkers) *Scheduler {
	return NewScheduler(repo, workers, NewBus(), testRegistry(), time.Second)
}

func TestCreate(t *testing.T) {
	repo := newFakeRepo()
	s := newTestScheduler(repo, newFakeWorkers())
	ctx := context.Background()

	tour, err := s.Create(ctx, []string{"a", "b", "c"}, 2, 3)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tour.Status != store.TournamentSetup {
		t.Fatalf("expected SETUP, got %s", tour.Status)
	}
	if tour.TotalMatches != 12 {
		t.Fatalf("expected 3*2*2 = 12 matches, got %d", tour.TotalMatches)
	}
	matches, _ := repo.ListMatches(ctx, tour.ID)
	if len(matches) != 12 {
		t.Fatalf("expected 12 matches created, got %d", len(matches))
	}
	for _, m := range matches {
		if m.Status != store.MatchPending || !m.AgentVsAgent() {
			t.Fatalf("unexpected match: %+v", m)
		}
	}
}

func TestCreateValidation(t *testing.T) {
	s := newTestScheduler(newFakeRepo(), newFakeWorkers())
	ctx := context.Background()
	tests := []struct {
		name         string
		participants []string
		rounds       int
		concurrency  int
	}{
		{"one participant", []string{"a"}, 1, 1},
		{"unknown strategy", []string{"a", "nope"}, 1, 1},
		{"duplicate participant", []string{"a", "a"}, 1, 1},
		{"zero rounds", []string{"a", "b"}, 0, 1},
		{"zero concurrency", []string{"a", "b"}, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Create(ctx, tt.participants, tt.rounds, tt.concurrency); !errors.Is(err, ErrInvalidTournament) {
				t.Fatalf("expected ErrInvalidTournament, got %v", err)
			}
		})
	}
}

func TestCreateEvaluation(t *testing.T) {
	repo := newFakeRepo()
	s := newTestScheduler(repo, newFakeWorkers())
	ctx := context.Background()

	tour, err := s.CreateEvaluation(ctx, "a", []string{"b", "c"}, 1, 2)
	if err != nil {
		t.Fatalf("create evaluation: %v", err)
	}
	if tour.TotalMatches != 4 {
		t.Fatalf("expected 4 matches, got %d", tour.TotalMatches)
	}
	matches, _ := repo.ListMatches(ctx, tour.ID)
	for _, m := range matches {
		if m.Players[0].StrategyKey != "a" && m.Players[1].StrategyKey != "a" {
			t.Fatalf("evaluation match without target: %+v", m)
		}
	}
}

func TestStartSingleRunning(t *testing.T) {
	repo := newFakeRepo()
	s := newTestScheduler(repo, newFakeWorkers())
	ctx := context.Background()

	t1, _ := s.Create(ctx, []string{"a", "b"}, 1, 1)
	t2, _ := s.Create(ctx, []string{"a", "c"}, 1, 1)

	if err := s.Start(ctx, t1.ID); err != nil {
		t.Fatalf("start t1: %v", err)
	}
	if err := s.Start(ctx, t2.ID); !errors.Is(err, ErrTournamentActive) {
		t.Fatalf("expected ErrTournamentActive, got %v", err)
	}
	if err := s.Start(ctx, t1.ID); !errors.Is(err, ErrNotStartable) {
		t.Fatalf("expected ErrNotStartable for already running, got %v", err)
	}
	if err := s.Start(ctx, "missing"); !errors.Is(err, ErrTournamentNotFound) {
		t.Fatalf("expected ErrTournamentNotFound, got %v", err)
	}
}

func TestHeartbeatFillsBudget(t *testing.T) {
	repo := newFakeRepo()
	workers := newFakeWorkers()
	s := newTestScheduler(repo, workers)
	ctx := context.Background()

	// Three participants, one round: 6 matches, budget of 2.
	tour, _ := s.Create(ctx, []string{"a", "b", "c"}, 1, 2)
	if err := s.Start(ctx, tour.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := s.Heartbeat(ctx); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if workers.activeCount() != 2 {
		t.Fatalf("expected 2 workers, got %d", workers.activeCount())
	}

	// Budget full: another heartbeat starts nothing new.
	if err := s.Heartbeat(ctx); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if len(workers.started) != 2 {
		t.Fatalf("expected no extra starts, got %v", workers.started)
	}

	// One match finishes, freeing a slot.
	done := workers.started[0]
	repo.setMatchStatus(done, store.MatchCompleted)
	workers.Stop(done)

	if err := s.Heartbeat(ctx); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if workers.activeCount() != 2 {
		t.Fatalf("expected refilled budget, got %d", workers.activeCount())
	}
	if len(workers.started) != 3 {
		t.Fatalf("expected 3 total starts, got %v", workers.started)
	}
}

func TestHeartbeatReclaimsOrphans(t *testing.T) {
	repo := newFakeRepo()
	workers := newFakeWorkers()
	s := newTestScheduler(repo, workers)
	ctx := context.Background()

	tour, _ := s.Create(ctx, []string{"a", "b"}, 1, 1)
	if err := s.Start(ctx, tour.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Simulate a restart: one match is IN_PROGRESS with no worker.
	matches, _ := repo.ListMatches(ctx, tour.ID)
	orphan := matches[0].ID
	repo.setMatchStatus(orphan, store.MatchInProgress)

	if err := s.Heartbeat(ctx); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if !workers.IsRunning(orphan) {
		t.Fatal("expected orphan reclaimed")
	}
	// The orphan consumed the whole budget of 1: nothing else started.
	if workers.activeCount() != 1 {
		t.Fatalf("expected budget respected, got %d workers", workers.activeCount())
	}
}

func TestHeartbeatOrphansRespectBudget(t *testing.T) {
	repo := newFakeRepo()
	workers := newFakeWorkers()
	s := newTestScheduler(repo, workers)
	ctx := context.Background()

	tour, _ := s.Create(ctx, []string{"a", "b"}, 1, 1)
	if err := s.Start(ctx, tour.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Both matches are IN_PROGRESS but only one has a worker: the
	// other is an orphan left over from a restart.
	matches, _ := repo.ListMatches(ctx, tour.ID)
	for _, m := range matches {
		repo.setMatchStatus(m.ID, store.MatchInProgress)
	}
	live, _ := repo.ListMatches(ctx, tour.ID, store.MatchInProgress)
	held, orphan := live[0], live[1].ID
	workers.StartIfEligible(ctx, held)

	if err := s.Heartbeat(ctx); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if workers.IsRunning(orphan) {
		t.Fatal("orphan must wait for a free slot")
	}
	if workers.activeCount() != 1 {
		t.Fatalf("concurrency budget 1 breached: %d workers active", workers.activeCount())
	}

	// The held match finishes; the freed slot goes to the orphan.
	repo.setMatchStatus(held.ID, store.MatchCompleted)
	workers.Stop(held.ID)

	if err := s.Heartbeat(ctx); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if !workers.IsRunning(orphan) {
		t.Fatal("expected orphan reclaimed once a slot freed")
	}
	if workers.activeCount() != 1 {
		t.Fatalf("expected 1 worker, got %d", workers.activeCount())
	}
}

func TestHeartbeatSkipsSnoozedUntilExpiry(t *testing.T) {
	repo := newFakeRepo()
	workers := newFakeWorkers()
	s := newTestScheduler(repo, workers)
	ctx := context.Background()

	tour, _ := s.Create(ctx, []string{"a", "b"}, 1, 2)
	if err := s.Start(ctx, tour.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	matches, _ := repo.ListMatches(ctx, tour.ID)
	snoozed, pending := matches[0].ID, matches[1].ID
	future := time.Now().Add(time.Hour)
	repo.setMatchStatus(snoozed, store.MatchPaused)
	repo.mu.Lock()
	for _, m := range repo.matches {
		if m.ID == snoozed {
			m.RetryAfter = &future
		}
	}
	repo.mu.Unlock()

	if err := s.Heartbeat(ctx); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if workers.IsRunning(snoozed) {
		t.Fatal("snoozed match must wait out its retry_after")
	}
	if !workers.IsRunning(pending) {
		t.Fatal("expected pending match started")
	}

	// Expire the snooze: the paused match outranks anything pending.
	past := time.Now().Add(-time.Minute)
	repo.mu.Lock()
	for _, m := range repo.matches {
		if m.ID == snoozed {
			m.RetryAfter = &past
		}
	}
	repo.mu.Unlock()

	if err := s.Heartbeat(ctx); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if !workers.IsRunning(snoozed) {
		t.Fatal("expected expired snooze resumed")
	}
}

func TestHeartbeatCompletesTournament(t *testing.T) {
	repo := newFakeRepo()
	workers := newFakeWorkers()
	s := newTestScheduler(repo, workers)
	ctx := context.Background()

	tour, _ := s.Create(ctx, []string{"a", "b"}, 1, 2)
	if err := s.Start(ctx, tour.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	matches, _ := repo.ListMatches(ctx, tour.ID)
	for _, m := range matches {
		repo.setMatchStatus(m.ID, store.MatchCompleted)
	}

	if err := s.Heartbeat(ctx); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	got, _ := s.Get(ctx, tour.ID)
	if got.Status != store.TournamentCompleted {
		t.Fatalf("expected COMPLETED, got %s", got.Status)
	}

	// With nothing running, further heartbeats are a no-op.
	if err := s.Heartbeat(ctx); err != nil {
		t.Fatalf("idle heartbeat: %v", err)
	}
}

func TestPauseStopsWorkers(t *testing.T) {
	repo := newFakeRepo()
	workers := newFakeWorkers()
	s := newTestScheduler(repo, workers)
	ctx := context.Background()

	tour, _ := s.Create(ctx, []string{"a", "b"}, 1, 2)
	if err := s.Start(ctx, tour.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Heartbeat(ctx); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if workers.activeCount() == 0 {
		t.Fatal("expected live workers before pause")
	}

	if err := s.Pause(ctx, tour.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if workers.activeCount() != 0 {
		t.Fatalf("expected workers stopped, got %d", workers.activeCount())
	}
	got, _ := s.Get(ctx, tour.ID)
	if got.Status != store.TournamentPaused {
		t.Fatalf("expected PAUSED, got %s", got.Status)
	}

	// Paused tournaments are invisible to the heartbeat.
	if err := s.Heartbeat(ctx); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if workers.activeCount() != 0 {
		t.Fatal("heartbeat must not drive a paused tournament")
	}

	if err := s.Resume(ctx, tour.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := s.Heartbeat(ctx); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if workers.activeCount() == 0 {
		t.Fatal("expected workers after resume")
	}
}

func TestUpdateConcurrency(t *testing.T) {
	repo := newFakeRepo()
	s := newTestScheduler(repo, newFakeWorkers())
	ctx := context.Background()

	tour, _ := s.Create(ctx, []string{"a", "b"}, 1, 1)
	if err := s.UpdateConcurrency(ctx, tour.ID, 4); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.Get(ctx, tour.ID)
	if got.Concurrency != 4 {
		t.Fatalf("expected 4, got %d", got.Concurrency)
	}
	if err := s.UpdateConcurrency(ctx, tour.ID, 0); !errors.Is(err, ErrInvalidTournament) {
		t.Fatalf("expected ErrInvalidTournament, got %v", err)
	}
	if err := s.UpdateConcurrency(ctx, "missing", 2); !errors.Is(err, ErrTournamentNotFound) {
		t.Fatalf("expected ErrTournamentNotFound, got %v", err)
	}
}
