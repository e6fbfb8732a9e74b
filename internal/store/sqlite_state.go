package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetIngestionState returns the state row for sourceID, or ErrNotFound when
// the source has never been run or paused.
func (s *SQLite) GetIngestionState(ctx context.Context, sourceID string) (*IngestionState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source_id, last_page, last_cursor, total_ingested, last_run_at,
		       last_run_status, last_run_added, last_run_skipped,
		       last_run_failed, is_paused, paused_at, paused_by
		FROM ingestion_state WHERE source_id = ?`, sourceID)

	var (
		st         IngestionState
		cursor     sql.NullString
		lastRunAt  sql.NullString
		lastStatus sql.NullString
		pausedAt   sql.NullString
		pausedBy   sql.NullString
	)
	err := row.Scan(&st.SourceID, &st.LastPage, &cursor, &st.TotalIngested,
		&lastRunAt, &lastStatus, &st.LastRunAdded, &st.LastRunSkipped,
		&st.LastRunFailed, &st.IsPaused, &pausedAt, &pausedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ingestion state %s: %w", sourceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get ingestion state %s: %w", sourceID, err)
	}

	st.LastCursor = cursor.String
	st.LastRunStatus = lastStatus.String
	st.LastRunAt = nullTime(lastRunAt)
	st.PausedAt = nullTime(pausedAt)
	st.PausedBy = pausedBy.String
	return &st, nil
}

// UpsertIngestionState writes the full state row for a source. Callers only
// invoke this at run boundaries, so the row always reflects the last fully
// completed page.
func (s *SQLite) UpsertIngestionState(ctx context.Context, state *IngestionState) error {
	if state.SourceID == "" {
		return &ValidationError{Field: "source_id", Reason: "required"}
	}

	var lastRunAt any
	if state.LastRunAt != nil {
		lastRunAt = state.LastRunAt.UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_state
			(source_id, last_page, last_cursor, total_ingested, last_run_at,
			 last_run_status, last_run_added, last_run_skipped,
			 last_run_failed, is_paused, paused_at, paused_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id) DO UPDATE SET
			last_page = excluded.last_page,
			last_cursor = excluded.last_cursor,
			total_ingested = excluded.total_ingested,
			last_run_at = excluded.last_run_at,
			last_run_status = excluded.last_run_status,
			last_run_added = excluded.last_run_added,
			last_run_skipped = excluded.last_run_skipped,
			last_run_failed = excluded.last_run_failed,
			is_paused = excluded.is_paused,
			paused_at = excluded.paused_at,
			paused_by = excluded.paused_by`,
		state.SourceID, state.LastPage, state.LastCursor, state.TotalIngested,
		lastRunAt, state.LastRunStatus, state.LastRunAdded,
		state.LastRunSkipped, state.LastRunFailed, state.IsPaused,
		timeOrNil(state.PausedAt), state.PausedBy)
	if err != nil {
		return fmt.Errorf("upsert ingestion state %s: %w", state.SourceID, err)
	}
	return nil
}

// RecordFilterStat appends one filter evaluation row.
func (s *SQLite) RecordFilterStat(ctx context.Context, stat *FilterStat) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_filter_stats
			(job_id, filter_result, genres, author, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		stat.JobID, stat.Result, marshalJSON(stat.Genres), stat.Author,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record filter stat: %w", err)
	}
	return nil
}

// FilterStatsReport aggregates filter evaluations for one job: result
// counts plus the top-N filtered genres and authors by frequency.
func (s *SQLite) FilterStatsReport(ctx context.Context, jobID string, topN int) (*FilterReport, error) {
	if topN <= 0 {
		topN = 5
	}
	report := &FilterReport{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT filter_result, genres, author
		FROM ingestion_filter_stats WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, fmt.Errorf("filter stats report: %w", err)
	}
	defer rows.Close()

	genreCounts := map[string]int{}
	authorCounts := map[string]int{}
	for rows.Next() {
		var (
			result string
			genres sql.NullString
			author sql.NullString
		)
		if err := rows.Scan(&result, &genres, &author); err != nil {
			return nil, err
		}
		switch FilterResult(result) {
		case FilterPassed:
			report.Passed++
		case FilterRejectedGenre:
			report.FilteredGenre++
			for _, g := range unmarshalStrings(genres) {
				genreCounts[g]++
			}
		case FilterRejectedAuthor:
			report.FilteredAuthor++
			if author.Valid && author.String != "" {
				authorCounts[author.String]++
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report.TopFilteredGenres = topCounts(genreCounts, topN)
	report.TopFilteredAuthors = topCounts(authorCounts, topN)
	return report, nil
}
