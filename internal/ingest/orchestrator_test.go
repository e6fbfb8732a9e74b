package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/atheneum-app/atheneum/internal/metadata"
	"github.com/atheneum-app/atheneum/internal/sources"
	"github.com/atheneum-app/atheneum/internal/store"
)

// testHarness bundles an orchestrator with its fakes for assertions.
type testHarness struct {
	orch *Orchestrator
	mem  *store.Memory
}

// newHarness builds an orchestrator over in-memory fakes. Each fetcher is
// registered and given an enabled configuration with the given priority,
// no rate limit, and a batch size of 10.
func newHarness(t *testing.T, priorities map[string]int, fetchers ...*sources.FakeFetcher) *testHarness {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	cs := sources.NewConfigStore(mem, nil)
	registry := sources.NewRegistry(cs, nil)

	for _, f := range fetchers {
		if err := registry.Register(f); err != nil {
			t.Fatalf("register %s: %v", f.ID, err)
		}
		cfg := &store.SourceConfiguration{
			SourceID:  f.ID,
			Enabled:   true,
			Priority:  priorities[f.ID],
			BatchSize: 10,
		}
		if err := mem.SaveSourceConfiguration(ctx, cfg); err != nil {
			t.Fatalf("seed config %s: %v", f.ID, err)
		}
	}

	orch := NewOrchestrator(registry, metadata.NewMapper(nil), mem, nil)
	orch.sleep = func(context.Context, time.Duration) error { return nil }
	return &testHarness{orch: orch, mem: mem}
}

func TestRunPriorityOrderAndBudget(t *testing.T) {
	alpha := sources.NewFakeFetcher("alpha", 5)
	beta := sources.NewFakeFetcher("beta", 5)
	h := newHarness(t, map[string]int{"alpha": 1, "beta": 2}, alpha, beta)

	report, err := h.orch.Run(context.Background(), Options{MaxBooks: 7})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Processed != 7 || report.Added != 7 {
		t.Fatalf("processed=%d added=%d, want 7/7", report.Processed, report.Added)
	}
	if report.Status != store.JobStatusCompleted {
		t.Fatalf("status = %q, want completed", report.Status)
	}

	// Higher-priority alpha is drained first; beta gets the remainder.
	var alphaBooks, betaBooks int
	for _, b := range h.mem.Books {
		switch b.Source {
		case "alpha":
			alphaBooks++
		case "beta":
			betaBooks++
		}
	}
	if alphaBooks != 5 || betaBooks != 2 {
		t.Fatalf("alpha=%d beta=%d, want 5/2", alphaBooks, betaBooks)
	}

	// Alpha's page completed, so its cursor advanced past it. Beta's page
	// was cut short by the budget, so its cursor must not move.
	alphaState := h.mem.States["alpha"]
	if alphaState == nil || alphaState.LastPage != 2 || alphaState.LastCursor != "c2" {
		t.Fatalf("alpha state = %+v, want page 2 cursor c2", alphaState)
	}
	betaState := h.mem.States["beta"]
	if betaState == nil || betaState.LastPage != 1 || betaState.LastCursor != "" {
		t.Fatalf("beta state = %+v, want unmoved cursor", betaState)
	}
}

func TestRunResumesFromPersistedState(t *testing.T) {
	src := sources.NewFakeFetcher("alpha", 25)
	h := newHarness(t, map[string]int{"alpha": 1}, src)

	ctx := context.Background()
	err := h.mem.UpsertIngestionState(ctx, &store.IngestionState{
		SourceID: "alpha", LastPage: 2, LastCursor: "c2", TotalIngested: 10,
	})
	if err != nil {
		t.Fatalf("seed state: %v", err)
	}

	report, err := h.orch.Run(ctx, Options{MaxBooks: 100})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Pages 2 and 3 hold records 11..25.
	if report.Added != 15 {
		t.Fatalf("added = %d, want 15", report.Added)
	}
	for _, b := range h.mem.Books {
		if b.SourceIdentifier == "alpha-10" {
			t.Fatal("record from an already completed page was re-ingested")
		}
	}

	state := h.mem.States["alpha"]
	if state.LastPage != 4 || state.LastCursor != "c4" {
		t.Fatalf("state = %+v, want page 4 cursor c4", state)
	}
	if state.TotalIngested != 25 {
		t.Fatalf("total_ingested = %d, want 25", state.TotalIngested)
	}
}

func TestRunCountsDuplicatesAsSkipped(t *testing.T) {
	src := sources.NewFakeFetcher("alpha", 8)
	h := newHarness(t, map[string]int{"alpha": 1}, src)
	ctx := context.Background()

	first, err := h.orch.Run(ctx, Options{MaxBooks: 100})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Added != 8 {
		t.Fatalf("first run added = %d, want 8", first.Added)
	}

	// Re-drive page 1: everything is already in the catalog.
	second, err := h.orch.Run(ctx, Options{MaxBooks: 100, Page: 1})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Added != 0 || second.Skipped != 8 || second.Failed != 0 {
		t.Fatalf("second run added=%d skipped=%d failed=%d, want 0/8/0",
			second.Added, second.Skipped, second.Failed)
	}
	if second.Status != store.JobStatusCompleted {
		t.Fatalf("status = %q, duplicates are not failures", second.Status)
	}
}

func TestRunSkipsPausedSource(t *testing.T) {
	alpha := sources.NewFakeFetcher("alpha", 5)
	beta := sources.NewFakeFetcher("beta", 5)
	h := newHarness(t, map[string]int{"alpha": 1, "beta": 2}, alpha, beta)
	ctx := context.Background()

	if _, err := h.orch.States().Pause(ctx, "alpha", "admin"); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	report, err := h.orch.Run(ctx, Options{MaxBooks: 100})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if alpha.Fetches != 0 {
		t.Fatalf("paused source was fetched %d times", alpha.Fetches)
	}
	if report.Added != 5 {
		t.Fatalf("added = %d, want only beta's 5", report.Added)
	}

	// The paused source's position survives untouched for resumption.
	state := h.mem.States["alpha"]
	if state == nil || !state.IsPaused || state.LastPage != 1 {
		t.Fatalf("alpha state = %+v", state)
	}
}

func TestRunFetchFailureIsPartial(t *testing.T) {
	alpha := sources.NewFakeFetcher("alpha", 25)
	alpha.FailPage = 2
	beta := sources.NewFakeFetcher("beta", 5)
	h := newHarness(t, map[string]int{"alpha": 1, "beta": 2}, alpha, beta)

	report, err := h.orch.Run(context.Background(), Options{MaxBooks: 100})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Status != store.JobStatusPartial {
		t.Fatalf("status = %q, want partial", report.Status)
	}
	if len(report.Errors) == 0 || !strings.Contains(report.Errors[0], "alpha") {
		t.Fatalf("errors = %v, want the failing source named", report.Errors)
	}

	// Alpha got page 1 in before failing; beta still ran to completion.
	if report.Added != 15 {
		t.Fatalf("added = %d, want alpha's 10 plus beta's 5", report.Added)
	}

	// The checkpoint points at the failed page so the next run retries it.
	state := h.mem.States["alpha"]
	if state == nil || state.LastPage != 2 || state.LastCursor != "c2" {
		t.Fatalf("alpha state = %+v, want page 2 cursor c2", state)
	}
	if state.LastRunStatus != string(store.JobStatusPartial) {
		t.Fatalf("last_run_status = %q, want partial", state.LastRunStatus)
	}
}

func TestRunStopsAtTimeBudget(t *testing.T) {
	alpha := sources.NewFakeFetcher("alpha", 25)
	beta := sources.NewFakeFetcher("beta", 5)
	h := newHarness(t, map[string]int{"alpha": 1, "beta": 2}, alpha, beta)
	ctx := context.Background()

	cfg := h.mem.Configs["alpha"]
	cfg.RateLimitMS = 50
	if err := h.mem.SaveSourceConfiguration(ctx, cfg); err != nil {
		t.Fatalf("update config: %v", err)
	}

	// Fake clock: each inter-page delay costs 45 simulated seconds, so a
	// 40-second ceiling expires after alpha's second page.
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	h.orch.now = func() time.Time { return now }
	h.orch.sleep = func(_ context.Context, _ time.Duration) error {
		now = now.Add(45 * time.Second)
		return nil
	}

	report, err := h.orch.Run(ctx, Options{MaxBooks: 100, MaxRuntime: 40 * time.Second})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Status != store.JobStatusCompleted {
		t.Fatalf("status = %q, want completed", report.Status)
	}
	// Alpha's first two pages landed before the ceiling hit.
	if report.Added != 20 {
		t.Fatalf("added = %d, want 20", report.Added)
	}

	// The run stopped at a page boundary, so the checkpoint points past
	// the last fully completed page.
	state := h.mem.States["alpha"]
	if state == nil || state.LastPage != 3 || state.LastCursor != "c3" {
		t.Fatalf("alpha state = %+v, want page 3 cursor c3", state)
	}
	if state.LastRunStatus != string(store.JobStatusCompleted) {
		t.Fatalf("last_run_status = %q, want completed", state.LastRunStatus)
	}

	// Lower-priority beta never got a turn.
	if beta.Fetches != 0 {
		t.Fatalf("beta fetched %d pages after the ceiling", beta.Fetches)
	}
	if h.mem.States["beta"] != nil {
		t.Fatal("beta must not checkpoint without running")
	}
}

func TestRunAllSourcesFailIsFailed(t *testing.T) {
	alpha := sources.NewFakeFetcher("alpha", 5)
	alpha.FailPage = 1
	beta := sources.NewFakeFetcher("beta", 5)
	beta.FailPage = 1
	h := newHarness(t, map[string]int{"alpha": 1, "beta": 2}, alpha, beta)

	report, err := h.orch.Run(context.Background(), Options{MaxBooks: 100})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Status != store.JobStatusFailed {
		t.Fatalf("status = %q, want failed", report.Status)
	}
	if report.Added != 0 || len(report.Errors) != 2 {
		t.Fatalf("report = %+v, want no additions and both sources reported", report)
	}
	log := h.mem.JobLogs[report.JobID]
	if log == nil || log.Status != store.JobStatusFailed {
		t.Fatalf("job log = %+v, want failed", log)
	}
}

func TestRunPausedSourceDoesNotMaskFailure(t *testing.T) {
	alpha := sources.NewFakeFetcher("alpha", 5)
	alpha.FailPage = 1
	beta := sources.NewFakeFetcher("beta", 5)
	h := newHarness(t, map[string]int{"alpha": 1, "beta": 2}, alpha, beta)
	ctx := context.Background()

	if _, err := h.orch.States().Pause(ctx, "beta", "ops"); err != nil {
		t.Fatalf("pause beta: %v", err)
	}

	report, err := h.orch.Run(ctx, Options{MaxBooks: 100})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Status != store.JobStatusFailed {
		t.Fatalf("status = %q, want failed when the only attempted source errored", report.Status)
	}
}

func TestRunDryRun(t *testing.T) {
	src := sources.NewFakeFetcher("alpha", 5)
	h := newHarness(t, map[string]int{"alpha": 1}, src)

	report, err := h.orch.Run(context.Background(), Options{MaxBooks: 100, DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Added != 5 || !report.DryRun {
		t.Fatalf("report = %+v, want 5 counted additions", report)
	}
	if len(h.mem.Books) != 0 {
		t.Fatalf("dry run wrote %d books", len(h.mem.Books))
	}
	if len(h.mem.States) != 0 {
		t.Fatal("dry run must not checkpoint state")
	}
	if len(h.mem.FilterStats) != 0 {
		t.Fatal("dry run must not record filter stats")
	}
	if len(h.mem.JobLogs) != 1 {
		t.Fatalf("job log rows = %d, the audit row is written even for dry runs", len(h.mem.JobLogs))
	}
}

func TestRunAppliesFilterRules(t *testing.T) {
	src := sources.NewFakeFetcher("alpha", 4)
	// Fake records carry no genres, so a genre allow list rejects them all.
	h := newHarness(t, map[string]int{"alpha": 1}, src)

	report, err := h.orch.Run(context.Background(), Options{
		MaxBooks: 100,
		Filter: FilterRules{
			EnableGenreFilter: true,
			AllowedGenres:     []string{"History"},
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Filtered != 4 || report.Added != 0 {
		t.Fatalf("filtered=%d added=%d, want 4/0", report.Filtered, report.Added)
	}
	if len(h.mem.FilterStats) != 4 {
		t.Fatalf("filter stats = %d, want one per candidate", len(h.mem.FilterStats))
	}
}

func TestRunWritesJobLog(t *testing.T) {
	src := sources.NewFakeFetcher("alpha", 3)
	h := newHarness(t, map[string]int{"alpha": 1}, src)

	report, err := h.orch.Run(context.Background(), Options{MaxBooks: 100})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	log := h.mem.JobLogs[report.JobID]
	if log == nil {
		t.Fatalf("no job log row for %s", report.JobID)
	}
	if log.JobType != JobType || log.Status != store.JobStatusCompleted {
		t.Fatalf("log = %+v", log)
	}
	if log.CompletedAt == nil || log.Added != 3 {
		t.Fatalf("log not closed with counts: %+v", log)
	}
}

func TestRunRateLimitDelayBetweenPages(t *testing.T) {
	src := sources.NewFakeFetcher("alpha", 25)
	h := newHarness(t, map[string]int{"alpha": 1}, src)
	ctx := context.Background()

	cfg := h.mem.Configs["alpha"]
	cfg.RateLimitMS = 50
	if err := h.mem.SaveSourceConfiguration(ctx, cfg); err != nil {
		t.Fatalf("update config: %v", err)
	}

	var delays []time.Duration
	h.orch.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	if _, err := h.orch.Run(ctx, Options{MaxBooks: 100}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Three pages of ten, so two inter-page delays.
	if len(delays) != 2 {
		t.Fatalf("slept %d times, want 2", len(delays))
	}
	for _, d := range delays {
		if d != 50*time.Millisecond {
			t.Fatalf("delay = %v, want 50ms", d)
		}
	}
}

func TestRunWithoutStoreFails(t *testing.T) {
	cs := sources.NewConfigStore(store.NewMemory(), nil)
	orch := NewOrchestrator(sources.NewRegistry(cs, nil), metadata.NewMapper(nil), nil, nil)

	_, err := orch.Run(context.Background(), Options{})
	if err == nil || !strings.Contains(err.Error(), store.ErrNotConfigured.Error()) {
		t.Fatalf("err = %v, want backing store error", err)
	}
}
