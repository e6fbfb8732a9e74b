package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/atheneum-app/atheneum/internal/metadata"
	"github.com/atheneum-app/atheneum/internal/sources"
	"github.com/atheneum-app/atheneum/internal/store"
)

// JobType identifies orchestrator runs in the ingestion log.
const JobType = "book_ingestion"

// Options bound one ingestion run. The host environment cannot keep a
// long-lived worker, so runs are designed for repeated short invocations:
// each run does what fits in the budget and persists where it stopped.
type Options struct {
	// BatchSize overrides each source's configured page size when > 0.
	BatchSize int

	// MaxBooks caps processed records for the whole run. Zero means the
	// default of 100.
	MaxBooks int

	// MaxRuntime caps wall-clock time for the run. Zero means no time
	// ceiling.
	MaxRuntime time.Duration

	// DryRun normalizes and filters but skips book inserts and state
	// checkpoints. The job log row is still written for audit.
	DryRun bool

	// Page overrides the persisted resume point for every source in this
	// run. Used by operators to re-drive a range; normal runs leave it 0.
	Page int

	// Filter is the allow-list configuration for this run.
	Filter FilterRules
}

// Report is the outcome of one run, consumed by the external HTTP layer.
type Report struct {
	JobID      string          `json:"job_id"`
	Status     store.JobStatus `json:"status"`
	Processed  int             `json:"processed"`
	Added      int             `json:"added"`
	Skipped    int             `json:"skipped"`
	Failed     int             `json:"failed"`
	Filtered   int             `json:"filtered"`
	NextPage   int             `json:"next_page"`
	LastCursor string          `json:"last_cursor,omitempty"`
	Errors     []string        `json:"errors,omitempty"`
	DryRun     bool            `json:"dry_run,omitempty"`
}

// Store is the persistence surface the orchestrator needs.
type Store interface {
	store.BookWriter
	store.JobLogStore
	store.StateStore
	store.FilterStatStore
}

// Orchestrator performs one ingestion run: fetch, normalize, filter,
// persist, checkpoint, across all enabled sources in priority order.
// Sources are processed strictly sequentially within a run; nothing
// mutually excludes two concurrently triggered runs, so schedulers must
// avoid overlapping invocations.
type Orchestrator struct {
	registry *sources.Registry
	mapper   *metadata.Mapper
	states   *StateManager
	store    Store
	logger   *slog.Logger

	// Injectable clocks for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator wires an orchestrator. All dependencies are injected;
// there is no hidden global state.
func NewOrchestrator(registry *sources.Registry, mapper *metadata.Mapper, st Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		registry: registry,
		mapper:   mapper,
		states:   NewStateManager(st, logger),
		store:    st,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// States exposes the state manager for pause/resume tooling.
func (o *Orchestrator) States() *StateManager { return o.states }

// Run performs one ingestion run. The only run-fatal condition is a
// missing backing store; per-record and per-source failures are recovered
// and counted.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Report, error) {
	if o.store == nil {
		return nil, fmt.Errorf("ingestion run: %w", store.ErrNotConfigured)
	}

	maxBooks := opts.MaxBooks
	if maxBooks <= 0 {
		maxBooks = 100
	}
	var deadline time.Time
	start := o.now()
	if opts.MaxRuntime > 0 {
		deadline = start.Add(opts.MaxRuntime)
	}

	if err := o.registry.LoadConfigurations(ctx); err != nil {
		return nil, fmt.Errorf("ingestion run: %w", err)
	}
	active, err := o.registry.EnabledFetchers(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingestion run: %w", err)
	}

	jobLog, err := o.store.CreateJobLog(ctx, JobType)
	if err != nil {
		return nil, fmt.Errorf("ingestion run: %w", err)
	}

	report := &Report{JobID: jobLog.ID, DryRun: opts.DryRun}
	filter := NewFilter(opts.Filter, o.filterStats(opts), o.logger)
	fetchFailures := 0

	o.logger.Info("ingestion run started",
		"job_id", jobLog.ID, "sources", len(active),
		"max_books", maxBooks, "dry_run", opts.DryRun)

	attempted := 0
	for _, src := range active {
		if o.budgetExhausted(report, maxBooks, deadline) {
			break
		}
		ran, err := o.runSource(ctx, src, opts, filter, report, maxBooks, deadline)
		if ran {
			attempted++
		}
		if err != nil {
			// Source-level fetch failure: this source's segment is over for
			// the run, the remaining sources still get their turn.
			fetchFailures++
			report.Errors = append(report.Errors, err.Error())
			o.logger.Warn("source segment ended with error",
				"source", src.Fetcher.SourceID(), "error", err)
		}
	}

	report.Status = runStatus(report, attempted, fetchFailures)

	jobLog.Status = report.Status
	jobLog.Processed = report.Processed
	jobLog.Added = report.Added
	jobLog.Skipped = report.Skipped
	jobLog.Failed = report.Failed
	jobLog.Errors = report.Errors
	if err := o.store.CloseJobLog(ctx, jobLog); err != nil {
		o.logger.Error("failed to close job log", "job_id", jobLog.ID, "error", err)
	}

	o.logger.Info("ingestion run finished",
		"job_id", jobLog.ID, "status", report.Status,
		"processed", report.Processed, "added", report.Added,
		"skipped", report.Skipped, "failed", report.Failed,
		"filtered", report.Filtered, "elapsed", o.now().Sub(start).String())
	return report, nil
}

// runSource ingests one source's segment of the run, resuming from its
// persisted cursor and checkpointing the last fully completed page. The
// bool reports whether the source was actually attempted; paused sources
// are skipped without counting toward the run's outcome.
func (o *Orchestrator) runSource(ctx context.Context, src sources.ActiveSource, opts Options, filter *Filter, report *Report, maxBooks int, deadline time.Time) (bool, error) {
	sourceID := src.Fetcher.SourceID()

	state, err := o.states.Get(ctx, sourceID)
	if err != nil {
		return true, fmt.Errorf("load state for %s: %w", sourceID, err)
	}
	if state.IsPaused {
		o.logger.Info("skipping paused source", "source", sourceID, "paused_by", state.PausedBy)
		return false, nil
	}

	if cfg, ok := src.Fetcher.(sources.Configurable); ok && src.Config.SourceSpecificConfig != nil {
		if err := cfg.ApplyConfig(src.Config.SourceSpecificConfig); err != nil {
			return true, fmt.Errorf("apply config for %s: %w", sourceID, err)
		}
	}
	if fm, ok := src.Fetcher.(sources.FieldMapper); ok {
		o.mapper.RegisterFieldMap(sourceID, fm.FieldMap())
	}

	batchSize := src.Config.BatchSize
	if opts.BatchSize > 0 {
		batchSize = opts.BatchSize
	}
	rateLimit := time.Duration(src.Config.RateLimitMS) * time.Millisecond

	// Resume from persisted position; an operator-supplied page override
	// restarts the cursor too, since the cursor encodes the old position.
	page := state.LastPage
	cursor := state.LastCursor
	if opts.Page > 0 {
		page = opts.Page
		cursor = ""
	}

	segment := segmentCounts{}
	var segmentErr error

	for {
		fetched, err := src.Fetcher.FetchPage(ctx, sources.FetchOptions{
			Page:      page,
			Cursor:    cursor,
			BatchSize: batchSize,
		})
		if err != nil {
			segmentErr = err
			break
		}

		for _, raw := range fetched.Records {
			if report.Processed >= maxBooks {
				break
			}
			o.ingestRecord(ctx, raw, sourceID, filter, report, opts.DryRun, &segment)
		}
		if report.Processed >= maxBooks && len(fetched.Records) > 0 &&
			segment.processed < len(fetched.Records) {
			// Budget ran out mid-page: the page is not fully completed, so
			// the cursor must not advance past it.
			break
		}

		// Page fully completed: advance the in-memory cursor. It reaches
		// the store only at checkpoint time below.
		page = fetched.NextPage
		cursor = fetched.NextCursor
		segment.processed = 0

		if !fetched.HasMore {
			break
		}
		if o.budgetExhausted(report, maxBooks, deadline) {
			break
		}
		if rateLimit > 0 {
			if err := o.sleep(ctx, rateLimit); err != nil {
				segmentErr = err
				break
			}
		}
	}

	if !opts.DryRun {
		now := o.now().UTC()
		state.LastPage = page
		state.LastCursor = cursor
		state.TotalIngested += segment.added
		state.LastRunAt = &now
		state.LastRunStatus = string(segmentStatus(segmentErr))
		state.LastRunAdded = segment.added
		state.LastRunSkipped = segment.skipped
		state.LastRunFailed = segment.failed
		if err := o.states.Checkpoint(ctx, state); err != nil {
			o.logger.Error("failed to checkpoint state", "source", sourceID, "error", err)
		}
	}

	report.NextPage = page
	report.LastCursor = cursor
	return true, segmentErr
}

// segmentCounts tracks one source's counters; processed counts only the
// current page, to detect budget exhaustion mid-page.
type segmentCounts struct {
	processed int
	added     int
	skipped   int
	failed    int
}

// ingestRecord takes one raw record through normalize, filter, insert.
func (o *Orchestrator) ingestRecord(ctx context.Context, raw map[string]any, sourceID string, filter *Filter, report *Report, dryRun bool, segment *segmentCounts) {
	report.Processed++
	segment.processed++

	book, err := o.mapper.Normalize(raw, sourceID)
	if err != nil {
		report.Failed++
		segment.failed++
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", sourceID, err))
		return
	}
	if filter.Evaluate(ctx, report.JobID, book) != store.FilterPassed {
		report.Filtered++
		return
	}

	if dryRun {
		report.Added++
		segment.added++
		return
	}

	switch err := o.store.InsertBook(ctx, book); {
	case err == nil:
		report.Added++
		segment.added++
	case errors.Is(err, store.ErrDuplicate):
		// Already in the catalog: the run is re-covering ground, which is
		// expected after a cursor reset. Not a failure.
		report.Skipped++
		segment.skipped++
	default:
		report.Failed++
		segment.failed++
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", sourceID, err))
	}
}

// budgetExhausted checks the run's book and time budgets. Called only at
// page and source boundaries, never mid-fetch.
func (o *Orchestrator) budgetExhausted(report *Report, maxBooks int, deadline time.Time) bool {
	if report.Processed >= maxBooks {
		return true
	}
	if !deadline.IsZero() && !o.now().Before(deadline) {
		return true
	}
	return false
}

func (o *Orchestrator) filterStats(opts Options) store.FilterStatStore {
	if opts.DryRun {
		return nil
	}
	return o.store
}

func segmentStatus(err error) store.JobStatus {
	if err != nil {
		return store.JobStatusPartial
	}
	return store.JobStatusCompleted
}

// runStatus derives the run's final status: completed only when every
// segment finished clean and no record failed, failed when every attempted
// segment errored and the run landed nothing, partial in between.
func runStatus(report *Report, attempted, fetchFailures int) store.JobStatus {
	switch {
	case fetchFailures > 0 && fetchFailures == attempted && report.Added == 0:
		return store.JobStatusFailed
	case fetchFailures > 0 || report.Failed > 0:
		return store.JobStatusPartial
	default:
		return store.JobStatusCompleted
	}
}

// sleepCtx is the between-pages rate limit delay, cancellable at the yield
// point rather than by thread interruption.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
