// Package sources defines the fetcher adapter contract for external book
// catalogs, the registry that composes adapters with persisted
// configuration, and the adapters themselves.
package sources

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Fetcher is the per-source adapter contract. An adapter knows how to page
// through one external catalog, parse its documents, and address downloads.
type Fetcher interface {
	// SourceID returns the stable identifier for this source.
	SourceID() string

	// Metadata describes the source: display name, supported formats, and
	// configuration defaults.
	Metadata() SourceMetadata

	// FetchPage retrieves one page of raw records. Failures that may
	// succeed on retry are reported as *FetchError.
	FetchPage(ctx context.Context, opts FetchOptions) (*Page, error)

	// ParseRecord parses one raw document from this source into the
	// pre-normalization field map.
	ParseRecord(raw []byte) (map[string]any, error)

	// DownloadURL computes the download location for an identifier in the
	// given format.
	DownloadURL(identifier, format string) (string, error)
}

// SourceMetadata is the immutable description of a source.
type SourceMetadata struct {
	SourceID           string   `json:"source_id"`
	DisplayName        string   `json:"display_name"`
	Formats            []string `json:"formats"`
	DefaultRateLimitMS int      `json:"default_rate_limit_ms"`
	DefaultBatchSize   int      `json:"default_batch_size"`

	// ConfigSchema optionally carries a JSON Schema document validated
	// against the source-specific configuration blob.
	ConfigSchema string `json:"-"`
}

// FetchOptions selects the page to retrieve.
type FetchOptions struct {
	Page      int    // 1-based page number
	Cursor    string // opaque source-specific continuation token
	BatchSize int    // records per page
}

// Page is one fetched page of raw records plus the continuation point.
type Page struct {
	Records    []map[string]any
	NextPage   int
	NextCursor string
	HasMore    bool
}

// FetchError wraps a transient upstream failure. The orchestrator ends only
// the failing source's segment for the run; other sources still get their
// turn.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch from %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransientFetch reports whether err is a transient fetch failure.
func IsTransientFetch(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// Configurable is implemented by adapters that consume the persisted
// source-specific configuration blob. The orchestrator applies it before a
// source's first page of a run.
type Configurable interface {
	ApplyConfig(cfg map[string]any) error
}

// FieldMapper is implemented by adapters that ship a raw-to-canonical field
// name remap table for the metadata mapper.
type FieldMapper interface {
	FieldMap() map[string]string
}

// requiredCapabilities is the method set checked when an adapter arrives at
// the registration boundary as a plain value (third-party or dynamically
// loaded adapters that cannot be compile-time checked).
var requiredCapabilities = []string{
	"SourceID",
	"Metadata",
	"FetchPage",
	"ParseRecord",
	"DownloadURL",
}

// ValidateCapabilities checks that v exposes the full fetcher method set,
// naming every missing capability. Adapters written in-tree satisfy Fetcher
// at compile time and never hit this path.
func ValidateCapabilities(v any) error {
	if v == nil {
		return errors.New("adapter is nil")
	}
	t := reflect.TypeOf(v)

	var missing []string
	for _, name := range requiredCapabilities {
		if _, ok := t.MethodByName(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("adapter %T missing capabilities: %s", v, strings.Join(missing, ", "))
	}
	return nil
}
