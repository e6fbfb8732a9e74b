package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/atheneum-app/atheneum/internal/metadata"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "atheneum.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testBook(source, identifier string) *metadata.NormalizedBook {
	year := 1850
	return &metadata.NormalizedBook{
		Title:            "David Copperfield",
		Author:           "Charles Dickens",
		Year:             &year,
		Genres:           []string{"Fiction", "Classics"},
		Source:           source,
		SourceIdentifier: identifier,
	}
}

func TestOpenSQLite(t *testing.T) {
	t.Run("empty path is a configuration error", func(t *testing.T) {
		_, err := OpenSQLite("", nil)
		if !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("error = %v, want ErrNotConfigured", err)
		}
	})

	t.Run("schema is idempotent", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "reopen.db")
		s1, err := OpenSQLite(path, nil)
		if err != nil {
			t.Fatalf("first open: %v", err)
		}
		s1.Close()
		s2, err := OpenSQLite(path, nil)
		if err != nil {
			t.Fatalf("second open: %v", err)
		}
		s2.Close()
	})
}

func TestInsertBook(t *testing.T) {
	ctx := context.Background()

	t.Run("insert then duplicate", func(t *testing.T) {
		s := openTestStore(t)

		if err := s.InsertBook(ctx, testBook("openlibrary", "OL1W")); err != nil {
			t.Fatalf("first insert: %v", err)
		}

		err := s.InsertBook(ctx, testBook("openlibrary", "OL1W"))
		if !errors.Is(err, ErrDuplicate) {
			t.Fatalf("second insert error = %v, want ErrDuplicate", err)
		}

		stats, err := s.SourceStatistics(ctx)
		if err != nil {
			t.Fatalf("SourceStatistics: %v", err)
		}
		if len(stats) != 1 || stats[0].BookCount != 1 {
			t.Errorf("stats = %+v, want one row with count 1", stats)
		}
	})

	t.Run("same identifier different source is not a duplicate", func(t *testing.T) {
		s := openTestStore(t)
		if err := s.InsertBook(ctx, testBook("openlibrary", "X")); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := s.InsertBook(ctx, testBook("gutendex", "X")); err != nil {
			t.Fatalf("cross-source insert: %v", err)
		}
	})

	t.Run("validation precedes IO", func(t *testing.T) {
		s := openTestStore(t)
		book := testBook("openlibrary", "OL2W")
		book.Title = ""

		err := s.InsertBook(ctx, book)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("error = %v, want ValidationError", err)
		}
		if verr.Field != "title" {
			t.Errorf("Field = %q, want title", verr.Field)
		}
	})
}

func TestJobLogLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	log, err := s.CreateJobLog(ctx, "book_ingestion")
	if err != nil {
		t.Fatalf("CreateJobLog: %v", err)
	}
	if log.Status != JobStatusRunning {
		t.Errorf("Status = %q, want running", log.Status)
	}

	log.Status = JobStatusPartial
	log.Processed = 10
	log.Added = 6
	log.Skipped = 3
	log.Failed = 1
	for i := 0; i < MaxLoggedErrors+10; i++ {
		log.Errors = append(log.Errors, "fetch failed")
	}

	if err := s.CloseJobLog(ctx, log); err != nil {
		t.Fatalf("CloseJobLog: %v", err)
	}
	if log.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}

	t.Run("closing unknown log fails", func(t *testing.T) {
		err := s.CloseJobLog(ctx, &IngestionJobLog{ID: uuid.New().String()})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestIngestionStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, err := s.GetIngestionState(ctx, "openlibrary"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for fresh source, got %v", err)
	}

	state := &IngestionState{
		SourceID:      "openlibrary",
		LastPage:      5,
		LastCursor:    "c5",
		TotalIngested: 120,
		LastRunStatus: "completed",
	}
	if err := s.UpsertIngestionState(ctx, state); err != nil {
		t.Fatalf("UpsertIngestionState: %v", err)
	}

	got, err := s.GetIngestionState(ctx, "openlibrary")
	if err != nil {
		t.Fatalf("GetIngestionState: %v", err)
	}
	if got.LastPage != 5 || got.LastCursor != "c5" || got.TotalIngested != 120 {
		t.Errorf("state = %+v", got)
	}

	// Second upsert overwrites (last-writer-wins).
	state.LastPage = 7
	state.LastCursor = "c7"
	if err := s.UpsertIngestionState(ctx, state); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, _ = s.GetIngestionState(ctx, "openlibrary")
	if got.LastPage != 7 || got.LastCursor != "c7" {
		t.Errorf("state after overwrite = %+v", got)
	}
}

func TestSourceConfigurationRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	cfg := &SourceConfiguration{
		SourceID:    "gutendex",
		Enabled:     true,
		Priority:    2,
		RateLimitMS: 500,
		BatchSize:   32,
		SourceSpecificConfig: map[string]any{
			"mirror": "https://gutendex.com",
		},
	}
	if err := s.SaveSourceConfiguration(ctx, cfg); err != nil {
		t.Fatalf("SaveSourceConfiguration: %v", err)
	}

	got, err := s.GetSourceConfiguration(ctx, "gutendex")
	if err != nil {
		t.Fatalf("GetSourceConfiguration: %v", err)
	}
	if !got.Enabled || got.Priority != 2 || got.BatchSize != 32 {
		t.Errorf("config = %+v", got)
	}
	if got.SourceSpecificConfig["mirror"] != "https://gutendex.com" {
		t.Errorf("SourceSpecificConfig = %+v", got.SourceSpecificConfig)
	}

	t.Run("ordering is priority then id", func(t *testing.T) {
		for _, c := range []*SourceConfiguration{
			{SourceID: "zeta", Priority: 1, BatchSize: 10, RateLimitMS: 1},
			{SourceID: "alpha", Priority: 1, BatchSize: 10, RateLimitMS: 1},
			{SourceID: "beta", Priority: 0, BatchSize: 10, RateLimitMS: 1},
		} {
			if err := s.SaveSourceConfiguration(ctx, c); err != nil {
				t.Fatalf("save %s: %v", c.SourceID, err)
			}
		}

		configs, err := s.ListSourceConfigurations(ctx)
		if err != nil {
			t.Fatalf("ListSourceConfigurations: %v", err)
		}
		var order []string
		for _, c := range configs {
			order = append(order, c.SourceID)
		}
		want := []string{"beta", "alpha", "zeta", "gutendex"}
		for i := range want {
			if order[i] != want[i] {
				t.Fatalf("order = %v, want %v", order, want)
			}
		}
	})
}

func TestFilterStatsReport(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	jobID := uuid.New().String()

	stats := []*FilterStat{
		{JobID: jobID, Result: FilterPassed},
		{JobID: jobID, Result: FilterPassed},
		{JobID: jobID, Result: FilterRejectedGenre, Genres: []string{"Poetry"}},
		{JobID: jobID, Result: FilterRejectedGenre, Genres: []string{"Poetry", "Drama"}},
		{JobID: jobID, Result: FilterRejectedAuthor, Author: "Anonymous"},
		{JobID: "other-job", Result: FilterPassed},
	}
	for _, st := range stats {
		if err := s.RecordFilterStat(ctx, st); err != nil {
			t.Fatalf("RecordFilterStat: %v", err)
		}
	}

	report, err := s.FilterStatsReport(ctx, jobID, 5)
	if err != nil {
		t.Fatalf("FilterStatsReport: %v", err)
	}
	if report.Passed != 2 || report.FilteredGenre != 2 || report.FilteredAuthor != 1 {
		t.Errorf("report = %+v", report)
	}
	if len(report.TopFilteredGenres) == 0 || report.TopFilteredGenres[0].Name != "Poetry" ||
		report.TopFilteredGenres[0].Count != 2 {
		t.Errorf("TopFilteredGenres = %+v", report.TopFilteredGenres)
	}
	if len(report.TopFilteredAuthors) != 1 || report.TopFilteredAuthors[0].Name != "Anonymous" {
		t.Errorf("TopFilteredAuthors = %+v", report.TopFilteredAuthors)
	}
}

func TestExtractionJobPersistence(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	job := &ExtractionJob{
		ID:             uuid.New().String(),
		SourceURL:      "https://example.org/stacks",
		CreatedBy:      "admin",
		MaxTimeMinutes: 30,
		MaxBooks:       100,
		Status:         "pending",
	}
	if err := s.CreateExtractionJob(ctx, job); err != nil {
		t.Fatalf("CreateExtractionJob: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.InsertExtractedBook(ctx, &ExtractedBook{
			JobID: job.ID, Title: "Staged", Author: "Nobody",
		}); err != nil {
			t.Fatalf("InsertExtractedBook: %v", err)
		}
	}
	if err := s.AppendExtractionLog(ctx, &ExtractionLogEntry{
		JobID: job.ID, Level: "info", Message: "started",
	}); err != nil {
		t.Fatalf("AppendExtractionLog: %v", err)
	}

	books, err := s.ListExtractedBooks(ctx, job.ID)
	if err != nil || len(books) != 3 {
		t.Fatalf("ListExtractedBooks = %d books, err %v", len(books), err)
	}

	t.Run("delete cascades owned rows", func(t *testing.T) {
		if err := s.DeleteExtractionJob(ctx, job.ID); err != nil {
			t.Fatalf("DeleteExtractionJob: %v", err)
		}
		if _, err := s.GetExtractionJob(ctx, job.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("job still present: %v", err)
		}
		books, err := s.ListExtractedBooks(ctx, job.ID)
		if err != nil || len(books) != 0 {
			t.Errorf("extracted books not cascaded: %d, err %v", len(books), err)
		}
		logs, err := s.ListExtractionLogs(ctx, job.ID)
		if err != nil || len(logs) != 0 {
			t.Errorf("logs not cascaded: %d, err %v", len(logs), err)
		}
	})
}
