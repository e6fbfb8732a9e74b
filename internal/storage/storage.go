// Package storage defines the object storage addressing scheme for book
// files and cover images. Uploads happen elsewhere; this package only
// decides where objects live and how the public URLs are derived, so the
// conventions stay identical across every writer.
package storage

import (
	"fmt"
	"path"
	"strings"
)

// Bucket names. Buckets are provisioned out of band; code never creates
// them.
const (
	BooksBucket  = "books"
	CoversBucket = "covers"
)

// Layout derives object paths and public URLs from a configured base URL.
type Layout struct {
	baseURL string
}

// NewLayout creates a Layout. The base URL is the public root of the
// object store, without a trailing slash.
func NewLayout(baseURL string) *Layout {
	return &Layout{baseURL: strings.TrimRight(baseURL, "/")}
}

// BookPath returns the object path for a book file. Identifiers are
// sanitized so a source's native id (which may contain slashes, e.g.
// openlibrary work keys) cannot escape its prefix.
func BookPath(source, identifier, format string) string {
	return path.Join(source, sanitize(identifier)+"."+strings.TrimPrefix(format, "."))
}

// CoverPath returns the object path for a cover image.
func CoverPath(source, identifier string) string {
	return path.Join(source, sanitize(identifier)+".jpg")
}

// PublicURL returns the public URL for an object.
func (l *Layout) PublicURL(bucket, objectPath string) string {
	return fmt.Sprintf("%s/%s/%s", l.baseURL, bucket, objectPath)
}

// BookURL returns the public URL for a book file.
func (l *Layout) BookURL(source, identifier, format string) string {
	return l.PublicURL(BooksBucket, BookPath(source, identifier, format))
}

// CoverURL returns the public URL for a cover image.
func (l *Layout) CoverURL(source, identifier string) string {
	return l.PublicURL(CoversBucket, CoverPath(source, identifier))
}

// sanitize flattens path separators and whitespace in source identifiers
// into underscores.
func sanitize(identifier string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ':
			return '_'
		}
		return r
	}, strings.TrimSpace(identifier))
}
