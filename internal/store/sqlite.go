package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/atheneum-app/atheneum/internal/metadata"
)

// SQLite implements Store on an embedded SQLite database.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. An empty path returns ErrNotConfigured.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: database path is empty", ErrNotConfigured)
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}

	// Sequential writer model; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	if _, err := s.db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether err is a SQLite unique-constraint error.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// InsertBook persists one normalized book. Required fields are validated
// before any I/O; a unique-constraint violation on
// (source, source_identifier) surfaces as ErrDuplicate.
func (s *SQLite) InsertBook(ctx context.Context, book *metadata.NormalizedBook) error {
	if err := ValidateBook(book); err != nil {
		return err
	}

	genres := marshalJSON(book.Genres)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO books
			(title, author, year, language, description, genres, cover_url,
			 download_url, source, source_identifier, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		book.Title, book.Author, book.Year, book.Language, book.Description,
		genres, book.CoverURL, book.DownloadURL, book.Source,
		book.SourceIdentifier, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s/%s", ErrDuplicate, book.Source, book.SourceIdentifier)
		}
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

// CreateJobLog opens a running job log row.
func (s *SQLite) CreateJobLog(ctx context.Context, jobType string) (*IngestionJobLog, error) {
	log := &IngestionJobLog{
		ID:        uuid.New().String(),
		JobType:   jobType,
		Status:    JobStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_logs (id, job_type, status, started_at)
		VALUES (?, ?, ?, ?)`,
		log.ID, log.JobType, log.Status, log.StartedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("create job log: %w", err)
	}
	return log, nil
}

// CloseJobLog writes final status and counts. The error list is capped at
// MaxLoggedErrors so a pathological run cannot bloat the row.
func (s *SQLite) CloseJobLog(ctx context.Context, log *IngestionJobLog) error {
	completed := time.Now().UTC()
	log.CompletedAt = &completed

	errList := log.Errors
	if len(errList) > MaxLoggedErrors {
		errList = errList[:MaxLoggedErrors]
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE ingestion_logs
		SET status = ?, completed_at = ?, processed = ?, added = ?,
		    skipped = ?, failed = ?, errors = ?
		WHERE id = ?`,
		log.Status, completed.Format(time.RFC3339), log.Processed, log.Added,
		log.Skipped, log.Failed, marshalJSON(errList), log.ID)
	if err != nil {
		return fmt.Errorf("close job log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("close job log %s: %w", log.ID, ErrNotFound)
	}
	return nil
}

// SourceStatistics aggregates per-source book counts.
func (s *SQLite) SourceStatistics(ctx context.Context) ([]*SourceStatistics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, COUNT(*) FROM books GROUP BY source ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("source statistics: %w", err)
	}
	defer rows.Close()

	var stats []*SourceStatistics
	for rows.Next() {
		st := &SourceStatistics{}
		if err := rows.Scan(&st.Source, &st.BookCount); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// marshalJSON renders v as a JSON string for a TEXT column, or nil for
// empty values.
func marshalJSON(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		if len(val) == 0 {
			return nil
		}
	case map[string]any:
		if len(val) == 0 {
			return nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(data)
}

// unmarshalStrings parses a JSON list column, tolerating NULL.
func unmarshalStrings(raw sql.NullString) []string {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil
	}
	return out
}

// nullTime parses an RFC3339 TEXT column, tolerating NULL.
func nullTime(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw.String)
	if err != nil {
		return nil
	}
	return &t
}

// timeOrNil formats a time pointer for a TEXT column.
func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
