// Package taxonomy defines the controlled genre vocabulary for the catalog.
//
// The lists are fixed: genres attached to books must come from PrimaryGenres,
// optionally refined by SubGenres. Validation is case-insensitive but always
// returns the canonical spelling.
package taxonomy

import "strings"

// PrimaryGenres is the canonical top-level genre list. Books carry at most
// MaxGenres of these.
var PrimaryGenres = []string{
	"Fiction",
	"Non-Fiction",
	"Science Fiction",
	"Fantasy",
	"Mystery",
	"Thriller",
	"Romance",
	"Horror",
	"History",
	"Biography",
	"Poetry",
	"Drama",
	"Philosophy",
	"Religion",
	"Science",
	"Adventure",
	"Children",
	"Classics",
}

// SubGenres refines PrimaryGenres; used for display filtering only, never for
// ingestion filtering.
var SubGenres = []string{
	"Epic Fantasy",
	"Urban Fantasy",
	"Space Opera",
	"Dystopian",
	"Cyberpunk",
	"Historical Fiction",
	"Historical Romance",
	"Cozy Mystery",
	"Noir",
	"True Crime",
	"Memoir",
	"Self-Help",
	"Essays",
	"Short Stories",
	"Mythology",
	"Military History",
	"Political Science",
	"Natural History",
	"Gothic",
	"Satire",
}

// MaxGenres is the hard cap on genres attached to a single book.
const MaxGenres = 3

// IsPrimaryGenre reports whether name matches a primary genre,
// case-insensitively.
func IsPrimaryGenre(name string) bool {
	return canonicalPrimary(name) != ""
}

// IsSubGenre reports whether name matches a sub-genre, case-insensitively.
func IsSubGenre(name string) bool {
	for _, g := range SubGenres {
		if strings.EqualFold(g, name) {
			return true
		}
	}
	return false
}

// ValidateGenres filters a candidate genre list down to canonical primary
// genres. Matching is case-insensitive, input order is preserved, duplicates
// are dropped case-insensitively, and the result is capped at MaxGenres.
func ValidateGenres(genres []string) []string {
	out := make([]string, 0, MaxGenres)
	seen := make(map[string]bool, len(genres))

	for _, g := range genres {
		canonical := canonicalPrimary(strings.TrimSpace(g))
		if canonical == "" {
			continue
		}
		key := strings.ToLower(canonical)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, canonical)
		if len(out) == MaxGenres {
			break
		}
	}
	return out
}

// canonicalPrimary returns the canonical spelling for name, or "" if it is not
// a primary genre.
func canonicalPrimary(name string) string {
	for _, g := range PrimaryGenres {
		if strings.EqualFold(g, name) {
			return g
		}
	}
	return ""
}
