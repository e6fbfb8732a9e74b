package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateExtractionJob inserts a new extraction job row.
func (s *SQLite) CreateExtractionJob(ctx context.Context, job *ExtractionJob) error {
	if job.ID == "" {
		return &ValidationError{Field: "id", Reason: "required"}
	}
	if job.SourceURL == "" {
		return &ValidationError{Field: "source_url", Reason: "required"}
	}

	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO extraction_jobs
			(id, source_url, created_by, max_time_minutes, max_books, status,
			 books_extracted, books_queued, error_count, started_at,
			 completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.SourceURL, job.CreatedBy, job.MaxTimeMinutes, job.MaxBooks,
		job.Status, job.BooksExtracted, job.BooksQueued, job.ErrorCount,
		timeOrNil(job.StartedAt), timeOrNil(job.CompletedAt),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("create extraction job: %w", err)
	}
	return nil
}

// GetExtractionJob returns one extraction job by id.
func (s *SQLite) GetExtractionJob(ctx context.Context, id string) (*ExtractionJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_url, created_by, max_time_minutes, max_books, status,
		       books_extracted, books_queued, error_count, started_at,
		       completed_at, created_at, updated_at
		FROM extraction_jobs WHERE id = ?`, id)

	job, err := scanExtractionJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("extraction job %s: %w", id, ErrNotFound)
	}
	return job, err
}

// ListExtractionJobs returns all extraction jobs, newest first.
func (s *SQLite) ListExtractionJobs(ctx context.Context) ([]*ExtractionJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_url, created_by, max_time_minutes, max_books, status,
		       books_extracted, books_queued, error_count, started_at,
		       completed_at, created_at, updated_at
		FROM extraction_jobs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list extraction jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*ExtractionJob
	for rows.Next() {
		job, err := scanExtractionJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateExtractionJob writes the mutable fields of an existing job row.
func (s *SQLite) UpdateExtractionJob(ctx context.Context, job *ExtractionJob) error {
	job.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE extraction_jobs
		SET status = ?, books_extracted = ?, books_queued = ?, error_count = ?,
		    started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		job.Status, job.BooksExtracted, job.BooksQueued, job.ErrorCount,
		timeOrNil(job.StartedAt), timeOrNil(job.CompletedAt),
		job.UpdatedAt.Format(time.RFC3339), job.ID)
	if err != nil {
		return fmt.Errorf("update extraction job %s: %w", job.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("extraction job %s: %w", job.ID, ErrNotFound)
	}
	return nil
}

// DeleteExtractionJob removes the job and everything it owns. Owned rows go
// first so a crash mid-delete never leaves orphaned logs or books pointing
// at a missing job.
func (s *SQLite) DeleteExtractionJob(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete extraction job %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM extraction_logs WHERE job_id = ?`, id); err != nil {
		return fmt.Errorf("delete extraction logs %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM extracted_books WHERE job_id = ?`, id); err != nil {
		return fmt.Errorf("delete extracted books %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM extraction_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete extraction job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("extraction job %s: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

// AppendExtractionLog appends one log line owned by a job.
func (s *SQLite) AppendExtractionLog(ctx context.Context, entry *ExtractionLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO extraction_logs (job_id, level, message, created_at)
		VALUES (?, ?, ?, ?)`,
		entry.JobID, entry.Level, entry.Message,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("append extraction log: %w", err)
	}
	return nil
}

// InsertExtractedBook stages one harvested book under a job.
func (s *SQLite) InsertExtractedBook(ctx context.Context, book *ExtractedBook) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO extracted_books (job_id, title, author, file_url, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		book.JobID, book.Title, book.Author, book.FileURL,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert extracted book: %w", err)
	}
	return nil
}

// ListExtractedBooks returns the staged books for a job in insertion order.
func (s *SQLite) ListExtractedBooks(ctx context.Context, jobID string) ([]*ExtractedBook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, title, author, file_url, created_at
		FROM extracted_books WHERE job_id = ? ORDER BY id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list extracted books: %w", err)
	}
	defer rows.Close()

	var books []*ExtractedBook
	for rows.Next() {
		var (
			b       ExtractedBook
			author  sql.NullString
			fileURL sql.NullString
			created string
		)
		if err := rows.Scan(&b.ID, &b.JobID, &b.Title, &author, &fileURL, &created); err != nil {
			return nil, err
		}
		b.Author = author.String
		b.FileURL = fileURL.String
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			b.CreatedAt = t
		}
		books = append(books, &b)
	}
	return books, rows.Err()
}

// ListExtractionLogs returns a job's log lines in insertion order.
func (s *SQLite) ListExtractionLogs(ctx context.Context, jobID string) ([]*ExtractionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, level, message, created_at
		FROM extraction_logs WHERE job_id = ? ORDER BY id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list extraction logs: %w", err)
	}
	defer rows.Close()

	var entries []*ExtractionLogEntry
	for rows.Next() {
		var (
			e       ExtractionLogEntry
			created string
		)
		if err := rows.Scan(&e.ID, &e.JobID, &e.Level, &e.Message, &created); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func scanExtractionJob(row scanner) (*ExtractionJob, error) {
	var (
		job       ExtractionJob
		createdBy sql.NullString
		started   sql.NullString
		completed sql.NullString
		created   string
		updated   string
	)
	err := row.Scan(&job.ID, &job.SourceURL, &createdBy, &job.MaxTimeMinutes,
		&job.MaxBooks, &job.Status, &job.BooksExtracted, &job.BooksQueued,
		&job.ErrorCount, &started, &completed, &created, &updated)
	if err != nil {
		return nil, err
	}

	job.CreatedBy = createdBy.String
	job.StartedAt = nullTime(started)
	job.CompletedAt = nullTime(completed)
	if t, err := time.Parse(time.RFC3339, created); err == nil {
		job.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updated); err == nil {
		job.UpdatedAt = t
	}
	return &job, nil
}
