// Package metadata normalizes raw catalog records from external sources into
// the canonical book schema.
package metadata

import "time"

// NormalizedBook is the canonical book record produced by normalization and
// persisted to the books table. (Source, SourceIdentifier) is unique across
// the catalog; a second insert with the same pair is a duplicate, not an
// error.
type NormalizedBook struct {
	Title            string   `json:"title"`
	Author           string   `json:"author"`
	Year             *int     `json:"year,omitempty"`
	Language         *string  `json:"language,omitempty"`
	Description      *string  `json:"description,omitempty"`
	Genres           []string `json:"genres,omitempty"`
	CoverURL         *string  `json:"cover_url,omitempty"`
	DownloadURL      *string  `json:"download_url,omitempty"`
	Source           string   `json:"source"`
	SourceIdentifier string   `json:"source_identifier"`
}

// Defaults applied when a source record is missing required display fields.
const (
	DefaultTitle  = "Untitled"
	DefaultAuthor = "Unknown Author"
)

// YearMin and YearMax bound the publication years accepted during
// normalization. Anything outside the range is treated as noise (OCR
// artifacts, page counts, catalog numbers).
const (
	YearMin = 1000
	YearMax = 2999
)

// now is stubbed in tests that exercise the identifier sentinel.
var now = time.Now
