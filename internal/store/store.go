// Package store provides relational persistence for the ingestion engine.
//
// The SQLite implementation is the production store; Memory is a drop-in
// fake for tests. Consumers depend on the narrow port interfaces below
// rather than the concrete store, so either implementation can be injected
// at construction time.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/atheneum-app/atheneum/internal/metadata"
)

// Sentinel errors shared by all store implementations.
var (
	// ErrNotConfigured indicates the backing store is missing or unreachable.
	// This is the only condition fatal to an entire ingestion run.
	ErrNotConfigured = errors.New("backing store not configured")

	// ErrDuplicate indicates a unique-constraint violation on
	// (source, source_identifier). Callers count this as skipped, never as
	// failed.
	ErrDuplicate = errors.New("duplicate book")

	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports malformed input rejected before any I/O.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// JobStatus is the lifecycle status of an ingestion job log row.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusPartial   JobStatus = "partial"
	JobStatusFailed    JobStatus = "failed"
)

// MaxLoggedErrors caps the error list persisted on a job log row.
const MaxLoggedErrors = 25

// IngestionJobLog is one append-only row per orchestrator invocation.
type IngestionJobLog struct {
	ID          string     `json:"id"`
	JobType     string     `json:"job_type"`
	Status      JobStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Processed   int        `json:"processed"`
	Added       int        `json:"added"`
	Skipped     int        `json:"skipped"`
	Failed      int        `json:"failed"`
	Errors      []string   `json:"errors,omitempty"`
}

// SourceConfiguration is the mutable, persisted configuration for one
// source, keyed by SourceID.
type SourceConfiguration struct {
	SourceID             string         `json:"source_id"`
	Enabled              bool           `json:"enabled"`
	Priority             int            `json:"priority"`
	RateLimitMS          int            `json:"rate_limit_ms"`
	BatchSize            int            `json:"batch_size"`
	SourceSpecificConfig map[string]any `json:"source_specific_config,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// IngestionState is the persisted resumption cursor for one source.
// Rows are created lazily; a source with no row has simply never run.
type IngestionState struct {
	SourceID       string     `json:"source_id"`
	LastPage       int        `json:"last_page"`
	LastCursor     string     `json:"last_cursor,omitempty"`
	TotalIngested  int        `json:"total_ingested"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus  string     `json:"last_run_status,omitempty"`
	LastRunAdded   int        `json:"last_run_added"`
	LastRunSkipped int        `json:"last_run_skipped"`
	LastRunFailed  int        `json:"last_run_failed"`
	IsPaused       bool       `json:"is_paused"`
	PausedAt       *time.Time `json:"paused_at,omitempty"`
	PausedBy       string     `json:"paused_by,omitempty"`
}

// FilterResult classifies one filter evaluation.
type FilterResult string

const (
	FilterPassed         FilterResult = "passed"
	FilterRejectedGenre  FilterResult = "filtered_genre"
	FilterRejectedAuthor FilterResult = "filtered_author"
)

// FilterStat is one per-candidate filter evaluation record, scoped to a job
// and used only for aggregate reporting.
type FilterStat struct {
	ID        int64        `json:"id"`
	JobID     string       `json:"job_id"`
	Result    FilterResult `json:"filter_result"`
	Genres    []string     `json:"genres,omitempty"`
	Author    string       `json:"author,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// FilterReport aggregates filter stats for a job.
type FilterReport struct {
	Passed             int         `json:"passed"`
	FilteredGenre      int         `json:"filtered_genre"`
	FilteredAuthor     int         `json:"filtered_author"`
	TopFilteredGenres  []NameCount `json:"top_filtered_genres,omitempty"`
	TopFilteredAuthors []NameCount `json:"top_filtered_authors,omitempty"`
}

// NameCount is a frequency entry in a filter report.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ExtractionJob is an admin-initiated bulk harvest from a single URL. Its
// lifecycle is managed by the extraction package; the store only persists
// it. Logs and extracted books cascade-delete with the job.
type ExtractionJob struct {
	ID             string     `json:"id"`
	SourceURL      string     `json:"source_url"`
	CreatedBy      string     `json:"created_by"`
	MaxTimeMinutes int        `json:"max_time_minutes"`
	MaxBooks       int        `json:"max_books"`
	Status         string     `json:"status"`
	BooksExtracted int        `json:"books_extracted"`
	BooksQueued    int        `json:"books_queued"`
	ErrorCount     int        `json:"error_count"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ExtractionLogEntry is one log line owned by an extraction job.
type ExtractionLogEntry struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"job_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ExtractedBook is one book harvested by an extraction job, staged before
// catalog insertion.
type ExtractedBook struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"job_id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	FileURL   string    `json:"file_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SourceStatistics is the per-source aggregate over the books table.
type SourceStatistics struct {
	Source    string `json:"source"`
	BookCount int    `json:"book_count"`
}

// BookWriter persists normalized books idempotently.
type BookWriter interface {
	// InsertBook validates required fields before any I/O and maps a
	// unique-constraint violation to ErrDuplicate.
	InsertBook(ctx context.Context, book *metadata.NormalizedBook) error
}

// JobLogStore opens and closes ingestion job log rows.
type JobLogStore interface {
	CreateJobLog(ctx context.Context, jobType string) (*IngestionJobLog, error)
	// CloseJobLog always writes final status and counts, even when the run
	// ended in partial failure.
	CloseJobLog(ctx context.Context, log *IngestionJobLog) error
}

// StateStore persists per-source ingestion state.
type StateStore interface {
	GetIngestionState(ctx context.Context, sourceID string) (*IngestionState, error)
	UpsertIngestionState(ctx context.Context, state *IngestionState) error
}

// ConfigRepo persists per-source configuration rows.
type ConfigRepo interface {
	GetSourceConfiguration(ctx context.Context, sourceID string) (*SourceConfiguration, error)
	ListSourceConfigurations(ctx context.Context) ([]*SourceConfiguration, error)
	SaveSourceConfiguration(ctx context.Context, cfg *SourceConfiguration) error
}

// FilterStatStore records filter evaluations and aggregates them.
type FilterStatStore interface {
	RecordFilterStat(ctx context.Context, stat *FilterStat) error
	FilterStatsReport(ctx context.Context, jobID string, topN int) (*FilterReport, error)
}

// ExtractionStore persists extraction jobs and their owned rows.
type ExtractionStore interface {
	CreateExtractionJob(ctx context.Context, job *ExtractionJob) error
	GetExtractionJob(ctx context.Context, id string) (*ExtractionJob, error)
	ListExtractionJobs(ctx context.Context) ([]*ExtractionJob, error)
	UpdateExtractionJob(ctx context.Context, job *ExtractionJob) error
	// DeleteExtractionJob removes logs and extracted books before the job
	// row itself.
	DeleteExtractionJob(ctx context.Context, id string) error
	AppendExtractionLog(ctx context.Context, entry *ExtractionLogEntry) error
	InsertExtractedBook(ctx context.Context, book *ExtractedBook) error
	ListExtractedBooks(ctx context.Context, jobID string) ([]*ExtractedBook, error)
	ListExtractionLogs(ctx context.Context, jobID string) ([]*ExtractionLogEntry, error)
}

// Store is the full persistence port.
type Store interface {
	BookWriter
	JobLogStore
	StateStore
	ConfigRepo
	FilterStatStore
	ExtractionStore

	// SourceStatistics aggregates per-source book counts.
	SourceStatistics(ctx context.Context) ([]*SourceStatistics, error)

	Close() error
}

// topCounts converts a frequency map to the n most frequent entries,
// breaking ties by name for stable output.
func topCounts(counts map[string]int, n int) []NameCount {
	if len(counts) == 0 {
		return nil
	}
	out := make([]NameCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, NameCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// ValidateBook checks the fields required before a book touches storage.
func ValidateBook(book *metadata.NormalizedBook) error {
	if book == nil {
		return &ValidationError{Field: "book", Reason: "nil record"}
	}
	if book.Title == "" {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	if book.Author == "" {
		return &ValidationError{Field: "author", Reason: "required"}
	}
	if book.SourceIdentifier == "" {
		return &ValidationError{Field: "source_identifier", Reason: "required"}
	}
	return nil
}
