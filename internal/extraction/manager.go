package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atheneum-app/atheneum/internal/store"
)

// Default budgets for jobs created without explicit limits.
const (
	DefaultMaxTimeMinutes = 60
	DefaultMaxBooks       = 500
)

// CreateOptions describes a new extraction job.
type CreateOptions struct {
	SourceURL      string `json:"source_url"`
	CreatedBy      string `json:"created_by"`
	MaxTimeMinutes int    `json:"max_time_minutes"`
	MaxBooks       int    `json:"max_books"`
}

// Progress is a point-in-time view of a running job.
type Progress struct {
	JobID              string         `json:"job_id"`
	Status             Status         `json:"status"`
	BooksExtracted     int            `json:"books_extracted"`
	BooksQueued        int            `json:"books_queued"`
	ErrorCount         int            `json:"error_count"`
	Elapsed            time.Duration  `json:"elapsed"`
	EstimatedRemaining *time.Duration `json:"estimated_remaining,omitempty"`
}

// Manager drives extraction jobs through their lifecycle. Every status
// change goes through the transition table; storage never sees an illegal
// move.
type Manager struct {
	store  store.ExtractionStore
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a Manager over the given extraction store.
func NewManager(st store.ExtractionStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: st, logger: logger, now: time.Now}
}

// Create registers a new pending job. Limits default when unset; the source
// URL is required.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*store.ExtractionJob, error) {
	if opts.SourceURL == "" {
		return nil, &store.ValidationError{Field: "source_url", Reason: "required"}
	}
	if opts.MaxTimeMinutes <= 0 {
		opts.MaxTimeMinutes = DefaultMaxTimeMinutes
	}
	if opts.MaxBooks <= 0 {
		opts.MaxBooks = DefaultMaxBooks
	}

	job := &store.ExtractionJob{
		ID:             uuid.New().String(),
		SourceURL:      opts.SourceURL,
		CreatedBy:      opts.CreatedBy,
		MaxTimeMinutes: opts.MaxTimeMinutes,
		MaxBooks:       opts.MaxBooks,
		Status:         string(StatusPending),
	}
	if err := m.store.CreateExtractionJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create extraction job: %w", err)
	}

	m.logger.Info("extraction job created",
		"job_id", job.ID, "source_url", job.SourceURL, "created_by", job.CreatedBy)
	return job, nil
}

// Get returns one job by id.
func (m *Manager) Get(ctx context.Context, id string) (*store.ExtractionJob, error) {
	return m.store.GetExtractionJob(ctx, id)
}

// List returns all jobs, newest first.
func (m *Manager) List(ctx context.Context) ([]*store.ExtractionJob, error) {
	return m.store.ListExtractionJobs(ctx)
}

// Start moves a pending job to running and stamps its start time.
func (m *Manager) Start(ctx context.Context, id string) (*store.ExtractionJob, error) {
	return m.transition(ctx, id, StatusRunning, func(job *store.ExtractionJob) {
		if job.StartedAt == nil {
			now := m.now().UTC()
			job.StartedAt = &now
		}
	})
}

// Pause suspends a running job. Start time and counters are untouched so
// Resume continues the same job, not a new one.
func (m *Manager) Pause(ctx context.Context, id string) (*store.ExtractionJob, error) {
	return m.transition(ctx, id, StatusPaused, nil)
}

// Resume moves a paused job back to running. The original start time and
// extracted counts are preserved.
func (m *Manager) Resume(ctx context.Context, id string) (*store.ExtractionJob, error) {
	job, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if Status(job.Status) != StatusPaused {
		return nil, &TransitionError{JobID: id, From: Status(job.Status), To: StatusRunning}
	}
	return m.transition(ctx, id, StatusRunning, nil)
}

// Stop terminates a running or paused job. Stopped is terminal; the job
// cannot be restarted, only inspected or deleted.
func (m *Manager) Stop(ctx context.Context, id string) (*store.ExtractionJob, error) {
	return m.transition(ctx, id, StatusStopped, m.stampCompleted)
}

// Complete marks a running job as finished.
func (m *Manager) Complete(ctx context.Context, id string) (*store.ExtractionJob, error) {
	return m.transition(ctx, id, StatusCompleted, m.stampCompleted)
}

// Fail marks a running job as failed.
func (m *Manager) Fail(ctx context.Context, id string, cause error) (*store.ExtractionJob, error) {
	job, err := m.transition(ctx, id, StatusFailed, func(job *store.ExtractionJob) {
		m.stampCompleted(job)
		job.ErrorCount++
	})
	if err != nil {
		return nil, err
	}
	if cause != nil {
		m.appendLog(ctx, id, "error", cause.Error())
	}
	return job, nil
}

// Delete removes a terminal job and everything it owns. Live jobs must be
// stopped first.
func (m *Manager) Delete(ctx context.Context, id string) error {
	job, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if !IsTerminal(Status(job.Status)) {
		return fmt.Errorf("extraction job %s: cannot delete while %s, stop it first", id, job.Status)
	}
	if err := m.store.DeleteExtractionJob(ctx, id); err != nil {
		return fmt.Errorf("delete extraction job %s: %w", id, err)
	}
	m.logger.Info("extraction job deleted", "job_id", id, "final_status", job.Status)
	return nil
}

// Progress reports elapsed time and an extraction-rate based estimate of
// time remaining. No estimate is produced before the first book lands.
func (m *Manager) Progress(ctx context.Context, id string) (*Progress, error) {
	job, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	p := &Progress{
		JobID:          job.ID,
		Status:         Status(job.Status),
		BooksExtracted: job.BooksExtracted,
		BooksQueued:    job.BooksQueued,
		ErrorCount:     job.ErrorCount,
	}
	if job.StartedAt == nil {
		return p, nil
	}

	end := m.now().UTC()
	if job.CompletedAt != nil {
		end = *job.CompletedAt
	}
	p.Elapsed = end.Sub(*job.StartedAt)

	if job.BooksExtracted > 0 && job.BooksQueued > job.BooksExtracted && p.Elapsed > 0 {
		perBook := p.Elapsed / time.Duration(job.BooksExtracted)
		remaining := perBook * time.Duration(job.BooksQueued-job.BooksExtracted)
		p.EstimatedRemaining = &remaining
	}
	return p, nil
}

// RecordQueued sets the total number of books discovered for a job. The
// count is the full queue size, not the outstanding remainder, so the
// remaining-time estimate can be derived from it.
func (m *Manager) RecordQueued(ctx context.Context, jobID string, queued int) error {
	job, err := m.Get(ctx, jobID)
	if err != nil {
		return err
	}
	job.BooksQueued = queued
	if err := m.store.UpdateExtractionJob(ctx, job); err != nil {
		return fmt.Errorf("record queued count: %w", err)
	}
	return nil
}

// RecordExtracted stages one harvested book and bumps the job's counter.
func (m *Manager) RecordExtracted(ctx context.Context, jobID string, book *store.ExtractedBook) error {
	job, err := m.Get(ctx, jobID)
	if err != nil {
		return err
	}
	book.JobID = jobID
	if err := m.store.InsertExtractedBook(ctx, book); err != nil {
		return fmt.Errorf("record extracted book: %w", err)
	}
	job.BooksExtracted++
	if err := m.store.UpdateExtractionJob(ctx, job); err != nil {
		return fmt.Errorf("record extracted book: %w", err)
	}
	return nil
}

// AppendLog adds one audit line to a job's log.
func (m *Manager) AppendLog(ctx context.Context, jobID, level, message string) error {
	return m.store.AppendExtractionLog(ctx, &store.ExtractionLogEntry{
		JobID:   jobID,
		Level:   level,
		Message: message,
	})
}

// Logs returns a job's audit lines in insertion order.
func (m *Manager) Logs(ctx context.Context, jobID string) ([]*store.ExtractionLogEntry, error) {
	return m.store.ListExtractionLogs(ctx, jobID)
}

// ExtractedBooks returns the books a job has staged so far.
func (m *Manager) ExtractedBooks(ctx context.Context, jobID string) ([]*store.ExtractedBook, error) {
	return m.store.ListExtractedBooks(ctx, jobID)
}

// transition loads, checks, mutates, and persists one status change.
func (m *Manager) transition(ctx context.Context, id string, to Status, mutate func(*store.ExtractionJob)) (*store.ExtractionJob, error) {
	job, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	from := Status(job.Status)
	if !CanTransition(from, to) {
		return nil, &TransitionError{JobID: id, From: from, To: to}
	}

	job.Status = string(to)
	if mutate != nil {
		mutate(job)
	}
	if err := m.store.UpdateExtractionJob(ctx, job); err != nil {
		return nil, fmt.Errorf("transition extraction job %s to %s: %w", id, to, err)
	}

	m.logger.Info("extraction job transitioned", "job_id", id, "from", from, "to", to)
	m.appendLog(ctx, id, "info", fmt.Sprintf("status changed from %s to %s", from, to))
	return job, nil
}

func (m *Manager) stampCompleted(job *store.ExtractionJob) {
	now := m.now().UTC()
	job.CompletedAt = &now
}

// appendLog records a log line, tolerating write failures; the transition
// itself has already been persisted.
func (m *Manager) appendLog(ctx context.Context, jobID, level, message string) {
	if err := m.AppendLog(ctx, jobID, level, message); err != nil {
		m.logger.Warn("failed to append extraction log", "job_id", jobID, "error", err)
	}
}
