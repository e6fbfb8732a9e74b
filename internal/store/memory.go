package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atheneum-app/atheneum/internal/metadata"
)

// Memory is an in-memory Store used by tests and dry runs. It mirrors the
// SQLite implementation's semantics, including the unique
// (source, source_identifier) constraint and cascade deletes.
type Memory struct {
	mu sync.Mutex

	Books          []*metadata.NormalizedBook
	JobLogs        map[string]*IngestionJobLog
	States         map[string]*IngestionState
	Configs        map[string]*SourceConfiguration
	FilterStats    []*FilterStat
	ExtractionJobs map[string]*ExtractionJob
	ExtractionLogs []*ExtractionLogEntry
	Extracted      []*ExtractedBook

	// FailListConfigs makes ListSourceConfigurations fail, for exercising
	// the config store's cached-snapshot degradation.
	FailListConfigs bool
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		JobLogs:        make(map[string]*IngestionJobLog),
		States:         make(map[string]*IngestionState),
		Configs:        make(map[string]*SourceConfiguration),
		ExtractionJobs: make(map[string]*ExtractionJob),
	}
}

// InsertBook mirrors SQLite.InsertBook, including ErrDuplicate semantics.
func (m *Memory) InsertBook(_ context.Context, book *metadata.NormalizedBook) error {
	if err := ValidateBook(book); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.Books {
		if existing.Source == book.Source && existing.SourceIdentifier == book.SourceIdentifier {
			return fmt.Errorf("%w: %s/%s", ErrDuplicate, book.Source, book.SourceIdentifier)
		}
	}
	copied := *book
	m.Books = append(m.Books, &copied)
	return nil
}

func (m *Memory) CreateJobLog(_ context.Context, jobType string) (*IngestionJobLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := &IngestionJobLog{
		ID:        uuid.New().String(),
		JobType:   jobType,
		Status:    JobStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	m.JobLogs[log.ID] = log
	return log, nil
}

func (m *Memory) CloseJobLog(_ context.Context, log *IngestionJobLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.JobLogs[log.ID]; !ok {
		return fmt.Errorf("job log %s: %w", log.ID, ErrNotFound)
	}
	completed := time.Now().UTC()
	log.CompletedAt = &completed
	if len(log.Errors) > MaxLoggedErrors {
		log.Errors = log.Errors[:MaxLoggedErrors]
	}
	copied := *log
	m.JobLogs[log.ID] = &copied
	return nil
}

func (m *Memory) GetIngestionState(_ context.Context, sourceID string) (*IngestionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.States[sourceID]
	if !ok {
		return nil, fmt.Errorf("ingestion state %s: %w", sourceID, ErrNotFound)
	}
	copied := *st
	return &copied, nil
}

func (m *Memory) UpsertIngestionState(_ context.Context, state *IngestionState) error {
	if state.SourceID == "" {
		return &ValidationError{Field: "source_id", Reason: "required"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *state
	m.States[state.SourceID] = &copied
	return nil
}

func (m *Memory) GetSourceConfiguration(_ context.Context, sourceID string) (*SourceConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.Configs[sourceID]
	if !ok {
		return nil, fmt.Errorf("source configuration %s: %w", sourceID, ErrNotFound)
	}
	copied := *cfg
	return &copied, nil
}

func (m *Memory) ListSourceConfigurations(_ context.Context) ([]*SourceConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailListConfigs {
		return nil, fmt.Errorf("list source configurations: %w", ErrNotConfigured)
	}
	configs := make([]*SourceConfiguration, 0, len(m.Configs))
	for _, cfg := range m.Configs {
		copied := *cfg
		configs = append(configs, &copied)
	}
	sort.Slice(configs, func(i, j int) bool {
		if configs[i].Priority != configs[j].Priority {
			return configs[i].Priority < configs[j].Priority
		}
		return configs[i].SourceID < configs[j].SourceID
	})
	return configs, nil
}

func (m *Memory) SaveSourceConfiguration(_ context.Context, cfg *SourceConfiguration) error {
	if cfg.SourceID == "" {
		return &ValidationError{Field: "source_id", Reason: "required"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	cfg.UpdatedAt = now
	if existing, ok := m.Configs[cfg.SourceID]; ok {
		cfg.CreatedAt = existing.CreatedAt
	} else if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	copied := *cfg
	m.Configs[cfg.SourceID] = &copied
	return nil
}

func (m *Memory) RecordFilterStat(_ context.Context, stat *FilterStat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *stat
	copied.ID = int64(len(m.FilterStats) + 1)
	copied.CreatedAt = time.Now().UTC()
	m.FilterStats = append(m.FilterStats, &copied)
	return nil
}

func (m *Memory) FilterStatsReport(_ context.Context, jobID string, topN int) (*FilterReport, error) {
	if topN <= 0 {
		topN = 5
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	report := &FilterReport{}
	genreCounts := map[string]int{}
	authorCounts := map[string]int{}
	for _, stat := range m.FilterStats {
		if stat.JobID != jobID {
			continue
		}
		switch stat.Result {
		case FilterPassed:
			report.Passed++
		case FilterRejectedGenre:
			report.FilteredGenre++
			for _, g := range stat.Genres {
				genreCounts[g]++
			}
		case FilterRejectedAuthor:
			report.FilteredAuthor++
			if stat.Author != "" {
				authorCounts[stat.Author]++
			}
		}
	}
	report.TopFilteredGenres = topCounts(genreCounts, topN)
	report.TopFilteredAuthors = topCounts(authorCounts, topN)
	return report, nil
}

func (m *Memory) CreateExtractionJob(_ context.Context, job *ExtractionJob) error {
	if job.ID == "" {
		return &ValidationError{Field: "id", Reason: "required"}
	}
	if job.SourceURL == "" {
		return &ValidationError{Field: "source_url", Reason: "required"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	copied := *job
	m.ExtractionJobs[job.ID] = &copied
	return nil
}

func (m *Memory) GetExtractionJob(_ context.Context, id string) (*ExtractionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.ExtractionJobs[id]
	if !ok {
		return nil, fmt.Errorf("extraction job %s: %w", id, ErrNotFound)
	}
	copied := *job
	return &copied, nil
}

func (m *Memory) ListExtractionJobs(_ context.Context) ([]*ExtractionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]*ExtractionJob, 0, len(m.ExtractionJobs))
	for _, job := range m.ExtractionJobs {
		copied := *job
		jobs = append(jobs, &copied)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (m *Memory) UpdateExtractionJob(_ context.Context, job *ExtractionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ExtractionJobs[job.ID]; !ok {
		return fmt.Errorf("extraction job %s: %w", job.ID, ErrNotFound)
	}
	job.UpdatedAt = time.Now().UTC()
	copied := *job
	m.ExtractionJobs[job.ID] = &copied
	return nil
}

func (m *Memory) DeleteExtractionJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ExtractionJobs[id]; !ok {
		return fmt.Errorf("extraction job %s: %w", id, ErrNotFound)
	}

	logs := m.ExtractionLogs[:0]
	for _, e := range m.ExtractionLogs {
		if e.JobID != id {
			logs = append(logs, e)
		}
	}
	m.ExtractionLogs = logs

	books := m.Extracted[:0]
	for _, b := range m.Extracted {
		if b.JobID != id {
			books = append(books, b)
		}
	}
	m.Extracted = books

	delete(m.ExtractionJobs, id)
	return nil
}

func (m *Memory) AppendExtractionLog(_ context.Context, entry *ExtractionLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *entry
	copied.ID = int64(len(m.ExtractionLogs) + 1)
	copied.CreatedAt = time.Now().UTC()
	m.ExtractionLogs = append(m.ExtractionLogs, &copied)
	return nil
}

func (m *Memory) InsertExtractedBook(_ context.Context, book *ExtractedBook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *book
	copied.ID = int64(len(m.Extracted) + 1)
	copied.CreatedAt = time.Now().UTC()
	m.Extracted = append(m.Extracted, &copied)
	return nil
}

func (m *Memory) ListExtractedBooks(_ context.Context, jobID string) ([]*ExtractedBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var books []*ExtractedBook
	for _, b := range m.Extracted {
		if b.JobID == jobID {
			copied := *b
			books = append(books, &copied)
		}
	}
	return books, nil
}

func (m *Memory) ListExtractionLogs(_ context.Context, jobID string) ([]*ExtractionLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []*ExtractionLogEntry
	for _, e := range m.ExtractionLogs {
		if e.JobID == jobID {
			copied := *e
			entries = append(entries, &copied)
		}
	}
	return entries, nil
}

func (m *Memory) SourceStatistics(_ context.Context) ([]*SourceStatistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, b := range m.Books {
		counts[b.Source]++
	}
	stats := make([]*SourceStatistics, 0, len(counts))
	for source, count := range counts {
		stats = append(stats, &SourceStatistics{Source: source, BookCount: count})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Source < stats[j].Source })
	return stats, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }
