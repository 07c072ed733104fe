package dailyidea

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jimdaga/ideaforge/internal/analysis"
	"github.com/jimdaga/ideaforge/internal/models"
	"github.com/jimdaga/ideaforge/internal/provider"
	"github.com/jimdaga/ideaforge/internal/quota"
	"github.com/jimdaga/ideaforge/internal/store"
	"github.com/jimdaga/ideaforge/internal/store/storetest"
)

type gatedGenerator struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
	err   error
	panic bool
}

func (g *gatedGenerator) Generate(ctx context.Context, prompt string) (provider.Result, error) {
	g.mu.Lock()
	g.calls++
	gate, err, shouldPanic := g.gate, g.err, g.panic
	g.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if shouldPanic {
		panic("provider client bug")
	}
	if err != nil {
		return nil, err
	}
	return provider.Result{
		"summary":     "Daily pick",
		"market_size": map[string]any{"tam": "$5B"},
		"competitors": []any{},
		"swot":        map[string]any{},
		"roadmap":     []any{},
	}, nil
}

func (g *gatedGenerator) RegenerateSection(ctx context.Context, prompt, section string) (any, error) {
	return nil, errors.New("not used")
}

func (g *gatedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func newTestScheduler(t *testing.T, generator *gatedGenerator) (*Scheduler, *store.Store, time.Time) {
	t.Helper()

	st, _ := storetest.Open(t)
	now := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ledger := quota.NewLedger(st, quota.WithClock(clock), quota.WithLocation(time.UTC))
	service := analysis.NewService(st, ledger, generator, nil, logger)

	s, err := NewScheduler(st, service, logger, WithClock(clock), WithLocation(time.UTC))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	t.Cleanup(s.Wait)
	return s, st, now
}

func TestEnsureTodayGeneratedLaunchesOnce(t *testing.T) {
	generator := &gatedGenerator{gate: make(chan struct{})}
	s, st, now := newTestScheduler(t, generator)
	today := s.Today()

	if today != "2026-10-16" {
		t.Fatalf("unexpected date key %s", today)
	}

	var wg sync.WaitGroup
	results := make(chan *models.DailyIdea, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			daily, err := s.EnsureTodayGenerated(context.Background())
			if err != nil {
				t.Errorf("ensure: %v", err)
			}
			results <- daily
		}()
	}
	wg.Wait()
	close(results)

	for daily := range results {
		if daily != nil {
			t.Errorf("expected nil while generating, got %+v", daily)
		}
	}
	if !s.IsGenerating(today) {
		t.Error("expected today to be generating")
	}
	if dates := s.InFlight(); len(dates) != 1 || dates[0] != today {
		t.Errorf("expected only %s in flight, got %v", today, dates)
	}

	close(generator.gate)
	s.Wait()

	if s.IsGenerating(today) {
		t.Error("expected in-flight marker to be released")
	}
	if dates := s.InFlight(); len(dates) != 0 {
		t.Errorf("expected nothing in flight, got %v", dates)
	}
	if calls := generator.callCount(); calls != 1 {
		t.Errorf("expected exactly 1 generation, got %d", calls)
	}

	daily, err := s.EnsureTodayGenerated(context.Background())
	if err != nil {
		t.Fatalf("ensure after completion: %v", err)
	}
	if daily == nil {
		t.Fatal("expected the persisted daily idea")
	}
	if daily.Date != today {
		t.Errorf("expected date %s, got %s", today, daily.Date)
	}

	templates, _ := DefaultTemplates()
	if want := TemplateFor(templates, now).Key; daily.TemplateKey != want {
		t.Errorf("expected template %s, got %s", want, daily.TemplateKey)
	}

	idea, err := st.GetIdea(context.Background(), daily.IdeaID)
	if err != nil {
		t.Fatalf("load idea: %v", err)
	}
	if idea.Status != models.IdeaStatusCompleted {
		t.Errorf("expected COMPLETED daily idea, got %s", idea.Status)
	}

	owner, err := st.GetUser(context.Background(), idea.UserID)
	if err != nil {
		t.Fatalf("load owner: %v", err)
	}
	if owner.Email != SystemUserEmail || !owner.Unlimited() {
		t.Errorf("expected system owner, got %s role=%s", owner.Email, owner.Role)
	}
}

func TestEnsureTodayGeneratedIsIdempotent(t *testing.T) {
	generator := &gatedGenerator{}
	s, st, _ := newTestScheduler(t, generator)

	if _, err := s.EnsureTodayGenerated(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	s.Wait()

	var first *models.DailyIdea
	for i := 0; i < 5; i++ {
		daily, err := s.EnsureTodayGenerated(context.Background())
		if err != nil {
			t.Fatalf("ensure %d: %v", i, err)
		}
		if daily == nil {
			t.Fatalf("ensure %d: expected existing record", i)
		}
		if first == nil {
			first = daily
		} else if daily.ID != first.ID {
			t.Errorf("expected record %d, got %d", first.ID, daily.ID)
		}
	}
	s.Wait()

	// The date column is unique, so finding the record means there is exactly one.
	if _, err := st.FindDailyIdea(context.Background(), s.Today()); err != nil {
		t.Errorf("expected a daily record, got %v", err)
	}
	if calls := generator.callCount(); calls != 1 {
		t.Errorf("expected 1 generation, got %d", calls)
	}
}

func TestEnsureTodayGeneratedFailureAllowsRetry(t *testing.T) {
	generator := &gatedGenerator{err: provider.ErrProviderFatal}
	s, st, _ := newTestScheduler(t, generator)

	if _, err := s.EnsureTodayGenerated(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	s.Wait()

	if s.IsGenerating(s.Today()) {
		t.Error("expected marker released after failure")
	}
	if _, err := st.FindDailyIdea(context.Background(), s.Today()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected no daily record after failure, got %v", err)
	}

	generator.mu.Lock()
	generator.err = nil
	generator.mu.Unlock()

	if _, err := s.EnsureTodayGenerated(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	s.Wait()

	if daily, err := s.EnsureTodayGenerated(context.Background()); err != nil || daily == nil {
		t.Fatalf("expected record after retry, got %v %v", daily, err)
	}
	if calls := generator.callCount(); calls != 2 {
		t.Errorf("expected 2 generations, got %d", calls)
	}
}

func TestEnsureTodayGeneratedRecoversPanic(t *testing.T) {
	generator := &gatedGenerator{panic: true}
	s, _, _ := newTestScheduler(t, generator)

	if _, err := s.EnsureTodayGenerated(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	s.Wait()

	if s.IsGenerating(s.Today()) {
		t.Error("expected marker released after panic")
	}
}

func TestEnsureTodayGeneratedOutlivesCaller(t *testing.T) {
	generator := &gatedGenerator{gate: make(chan struct{})}
	s, _, _ := newTestScheduler(t, generator)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := s.EnsureTodayGenerated(ctx); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	cancel()
	close(generator.gate)
	s.Wait()

	daily, err := s.EnsureTodayGenerated(context.Background())
	if err != nil || daily == nil {
		t.Fatalf("expected generation to complete after caller cancelled, got %v %v", daily, err)
	}
}
