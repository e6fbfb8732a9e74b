package metadata

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/atheneum-app/atheneum/internal/taxonomy"
)

// Mapper converts one source's raw records into NormalizedBook values.
//
// Sources disagree on field names (openlibrary says "author_name", gutendex
// says "authors"), so each source registers a remap table translating its raw
// field names to the canonical ones. After remapping, field values are
// coerced through the shared rules in this file.
type Mapper struct {
	fieldMaps map[string]map[string]string
	logger    *slog.Logger
}

// NewMapper creates a Mapper with no per-source remaps registered.
func NewMapper(logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{
		fieldMaps: make(map[string]map[string]string),
		logger:    logger,
	}
}

// RegisterFieldMap installs the raw-to-canonical field name table for a
// source. Later registrations for the same source replace earlier ones.
func (m *Mapper) RegisterFieldMap(sourceID string, fields map[string]string) {
	m.fieldMaps[sourceID] = fields
}

// Normalize maps one raw record from sourceID into the canonical schema.
// It fails only when the record itself is unusable (nil or not keyed);
// individual malformed fields degrade to defaults or nil.
func (m *Mapper) Normalize(raw map[string]any, sourceID string) (*NormalizedBook, error) {
	if raw == nil {
		return nil, fmt.Errorf("normalize %s: nil record", sourceID)
	}

	fields := m.remap(raw, sourceID)

	book := &NormalizedBook{
		Title:            normalizeTitle(fields["title"]),
		Author:           normalizeAuthor(fields["author"]),
		Year:             ExtractYear(fields["year"]),
		Language:         NormalizeLanguage(fields["language"]),
		Description:      normalizeDescription(fields["description"]),
		Source:           sourceID,
		SourceIdentifier: normalizeIdentifier(fields["source_identifier"], sourceID),
	}

	if genres, ok := fields["genres"]; ok {
		book.Genres = taxonomy.ValidateGenres(stringList(genres))
	}
	if cover := stringify(fields["cover_url"]); cover != "" {
		book.CoverURL = &cover
	}
	if dl := stringify(fields["download_url"]); dl != "" {
		book.DownloadURL = &dl
	}

	return book, nil
}

// NormalizeAll maps a batch of raw records, dropping only the records that
// fail to normalize. A single bad record never fails the batch.
func (m *Mapper) NormalizeAll(raws []map[string]any, sourceID string) []*NormalizedBook {
	books := make([]*NormalizedBook, 0, len(raws))
	for i, raw := range raws {
		book, err := m.Normalize(raw, sourceID)
		if err != nil {
			m.logger.Warn("dropping unnormalizable record",
				"source", sourceID, "index", i, "error", err)
			continue
		}
		books = append(books, book)
	}
	return books
}

// remap translates raw field names through the source's registered table.
// Fields without a mapping pass through under their raw name, so canonical
// names always work even without a registered table.
func (m *Mapper) remap(raw map[string]any, sourceID string) map[string]any {
	table := m.fieldMaps[sourceID]
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if canonical, ok := table[k]; ok {
			k = canonical
		}
		if _, exists := out[k]; !exists {
			out[k] = v
		}
	}
	return out
}

func normalizeTitle(v any) string {
	title := strings.TrimSpace(stringify(v))
	if title == "" {
		return DefaultTitle
	}
	return title
}

// normalizeAuthor joins author lists with ", ", unwraps {name: ...} objects,
// and falls back to DefaultAuthor.
func normalizeAuthor(v any) string {
	names := stringList(v)
	if len(names) == 0 {
		return DefaultAuthor
	}
	return strings.Join(names, ", ")
}

// normalizeDescription joins list-valued descriptions with spaces and passes
// strings through. Anything else yields nil.
func normalizeDescription(v any) *string {
	switch d := v.(type) {
	case nil:
		return nil
	case []any:
		parts := make([]string, 0, len(d))
		for _, item := range d {
			if s := strings.TrimSpace(stringify(item)); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return nil
		}
		joined := strings.Join(parts, " ")
		return &joined
	case []string:
		if len(d) == 0 {
			return nil
		}
		joined := strings.Join(d, " ")
		return &joined
	default:
		s := strings.TrimSpace(stringify(v))
		if s == "" {
			return nil
		}
		return &s
	}
}

// normalizeIdentifier stringifies the source's native identifier. A record
// without one gets a synthesized sentinel so it can still be persisted; the
// sentinel is unique enough for the (source, source_identifier) constraint in
// practice and marks the record for later reconciliation.
func normalizeIdentifier(v any, sourceID string) string {
	id := strings.TrimSpace(stringify(v))
	if id != "" {
		return id
	}
	return fmt.Sprintf("%s_unknown_%d", sourceID, now().UnixNano())
}

// stringify renders scalar values as strings. Floats that are really
// integers (the usual JSON decode shape) drop the fractional part.
func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	case map[string]any:
		// Objects with a name field unwrap to the name.
		if name, ok := s["name"]; ok {
			return stringify(name)
		}
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// stringList coerces scalar, list, and object-with-name shapes into a list
// of non-empty strings.
func stringList(v any) []string {
	switch l := v.(type) {
	case nil:
		return nil
	case []string:
		out := make([]string, 0, len(l))
		for _, s := range l {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s := strings.TrimSpace(stringify(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := strings.TrimSpace(stringify(v)); s != "" {
			return []string{s}
		}
		return nil
	}
}
