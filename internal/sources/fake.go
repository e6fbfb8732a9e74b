package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// FakeFetcher is an in-memory Fetcher used by tests and dry-run tooling.
// Pages are served from the Records slice in BatchSize chunks; the cursor
// is "c<page>" so resumption can be asserted exactly.
type FakeFetcher struct {
	mu sync.Mutex

	ID      string
	Meta    SourceMetadata
	Records []map[string]any

	// FailPage makes FetchPage return a transient error for that page
	// (1-based). Zero disables failure injection.
	FailPage int

	// Applied captures the last ApplyConfig argument.
	Applied map[string]any

	// Fetches counts FetchPage calls.
	Fetches int
}

var _ Fetcher = (*FakeFetcher)(nil)
var _ Configurable = (*FakeFetcher)(nil)

// NewFakeFetcher creates a fake source with n generated records.
func NewFakeFetcher(id string, n int) *FakeFetcher {
	records := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		records = append(records, map[string]any{
			"title":             fmt.Sprintf("%s Book %d", id, i),
			"author":            "Test Author",
			"source_identifier": fmt.Sprintf("%s-%d", id, i),
		})
	}
	return &FakeFetcher{
		ID: id,
		Meta: SourceMetadata{
			SourceID:           id,
			DisplayName:        id,
			Formats:            []string{"epub"},
			DefaultRateLimitMS: 1,
			DefaultBatchSize:   10,
		},
		Records: records,
	}
}

func (f *FakeFetcher) SourceID() string { return f.ID }

func (f *FakeFetcher) Metadata() SourceMetadata { return f.Meta }

func (f *FakeFetcher) ApplyConfig(cfg map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Applied = cfg
	return nil
}

func (f *FakeFetcher) FetchPage(_ context.Context, opts FetchOptions) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fetches++

	page := opts.Page
	if page < 1 {
		page = 1
	}
	if f.FailPage > 0 && page == f.FailPage {
		return nil, &FetchError{Source: f.ID, Err: fmt.Errorf("injected failure on page %d", page)}
	}

	batch := opts.BatchSize
	if batch <= 0 {
		batch = 10
	}
	start := (page - 1) * batch
	if start >= len(f.Records) {
		return &Page{NextPage: page, HasMore: false}, nil
	}
	end := start + batch
	if end > len(f.Records) {
		end = len(f.Records)
	}

	return &Page{
		Records:    f.Records[start:end],
		NextPage:   page + 1,
		NextCursor: fmt.Sprintf("c%d", page+1),
		HasMore:    end < len(f.Records),
	}, nil
}

func (f *FakeFetcher) ParseRecord(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (f *FakeFetcher) DownloadURL(identifier, format string) (string, error) {
	return fmt.Sprintf("https://fake.example/%s/%s.%s", f.ID, identifier, format), nil
}
