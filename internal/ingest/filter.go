package ingest

import (
	"context"
	"log/slog"
	"strings"

	"github.com/atheneum-app/atheneum/internal/metadata"
	"github.com/atheneum-app/atheneum/internal/store"
)

// FilterRules is the allow-list configuration for one run. A disabled
// dimension, or an enabled dimension with an empty allow list, always
// passes.
type FilterRules struct {
	EnableGenreFilter  bool     `json:"enable_genre_filter"`
	AllowedGenres      []string `json:"allowed_genres,omitempty"`
	EnableAuthorFilter bool     `json:"enable_author_filter,omitempty"`
	AllowedAuthors     []string `json:"allowed_authors,omitempty"`
}

// Filter evaluates candidates against allow-list rules and records one
// FilterStat row per evaluation for aggregate reporting.
type Filter struct {
	rules  FilterRules
	stats  store.FilterStatStore
	logger *slog.Logger
}

// NewFilter creates a Filter. stats may be nil, in which case evaluations
// are not recorded (used by dry runs).
func NewFilter(rules FilterRules, stats store.FilterStatStore, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{rules: rules, stats: stats, logger: logger}
}

// Evaluate decides whether a candidate passes. Every evaluation emits a
// FilterStat row; a stats write failure is logged and never fails the
// candidate.
func (f *Filter) Evaluate(ctx context.Context, jobID string, book *metadata.NormalizedBook) store.FilterResult {
	result := f.classify(book)

	if f.stats != nil {
		err := f.stats.RecordFilterStat(ctx, &store.FilterStat{
			JobID:  jobID,
			Result: result,
			Genres: book.Genres,
			Author: book.Author,
		})
		if err != nil {
			f.logger.Warn("failed to record filter stat", "job_id", jobID, "error", err)
		}
	}
	return result
}

// classify applies the allow lists. A candidate passes iff every enabled
// dimension matches.
func (f *Filter) classify(book *metadata.NormalizedBook) store.FilterResult {
	if f.rules.EnableGenreFilter && len(f.rules.AllowedGenres) > 0 {
		if !genreMatch(book.Genres, f.rules.AllowedGenres) {
			return store.FilterRejectedGenre
		}
	}
	if f.rules.EnableAuthorFilter && len(f.rules.AllowedAuthors) > 0 {
		if !authorMatch(book.Author, f.rules.AllowedAuthors) {
			return store.FilterRejectedAuthor
		}
	}
	return store.FilterPassed
}

// genreMatch reports whether any candidate genre appears in the allow
// list, case-insensitively.
func genreMatch(genres, allowed []string) bool {
	for _, g := range genres {
		for _, a := range allowed {
			if strings.EqualFold(g, a) {
				return true
			}
		}
	}
	return false
}

// authorMatch reports whether any allowed author appears in the joined
// author string, case-insensitively. Containment rather than equality:
// the author field may hold several names joined with ", ".
func authorMatch(author string, allowed []string) bool {
	lowered := strings.ToLower(author)
	for _, a := range allowed {
		if a == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(a)) {
			return true
		}
	}
	return false
}
