package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// GoogleBooks pages the Google Books volumes API. Pagination is by start
// index, carried in the cursor so the page size can change between runs
// without losing position.
type GoogleBooks struct {
	client  *HTTPClient
	baseURL string
	query   string
	apiKey  string
}

var _ Fetcher = (*GoogleBooks)(nil)
var _ Configurable = (*GoogleBooks)(nil)

const googleBooksConfigSchema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "minLength": 1},
		"api_key": {"type": "string"},
		"base_url": {"type": "string", "format": "uri"}
	},
	"required": ["query"],
	"additionalProperties": false
}`

// NewGoogleBooks creates the Google Books adapter.
func NewGoogleBooks() *GoogleBooks {
	return &GoogleBooks{
		client:  NewHTTPClient(1),
		baseURL: "https://www.googleapis.com/books/v1",
		query:   "subject:fiction",
	}
}

func (g *GoogleBooks) SourceID() string { return "googlebooks" }

func (g *GoogleBooks) Metadata() SourceMetadata {
	return SourceMetadata{
		SourceID:           "googlebooks",
		DisplayName:        "Google Books",
		Formats:            []string{"epub", "pdf"},
		DefaultRateLimitMS: 2000,
		DefaultBatchSize:   40,
		ConfigSchema:       googleBooksConfigSchema,
	}
}

func (g *GoogleBooks) ApplyConfig(cfg map[string]any) error {
	if q, ok := cfg["query"].(string); ok && q != "" {
		g.query = q
	}
	if k, ok := cfg["api_key"].(string); ok {
		g.apiKey = k
	}
	if u, ok := cfg["base_url"].(string); ok && u != "" {
		g.baseURL = strings.TrimSuffix(u, "/")
	}
	return nil
}

type googleBooksResponse struct {
	TotalItems int              `json:"totalItems"`
	Items      []map[string]any `json:"items"`
}

// FetchPage retrieves one page of volumes. The cursor is the numeric start
// index of the page.
func (g *GoogleBooks) FetchPage(ctx context.Context, opts FetchOptions) (*Page, error) {
	batch := opts.BatchSize
	if batch <= 0 || batch > 40 {
		batch = 40 // API maximum
	}

	start := 0
	if opts.Cursor != "" {
		n, err := strconv.Atoi(opts.Cursor)
		if err != nil {
			return nil, fmt.Errorf("googlebooks: bad cursor %q: %w", opts.Cursor, err)
		}
		start = n
	} else if opts.Page > 1 {
		start = (opts.Page - 1) * batch
	}

	params := url.Values{}
	params.Set("q", g.query)
	params.Set("startIndex", strconv.Itoa(start))
	params.Set("maxResults", strconv.Itoa(batch))
	if g.apiKey != "" {
		params.Set("key", g.apiKey)
	}

	var resp googleBooksResponse
	reqURL := fmt.Sprintf("%s/volumes?%s", g.baseURL, params.Encode())
	if err := g.client.GetJSON(ctx, reqURL, &resp); err != nil {
		return nil, &FetchError{Source: g.SourceID(), Err: err}
	}

	records := make([]map[string]any, 0, len(resp.Items))
	for _, item := range resp.Items {
		records = append(records, flattenVolume(item))
	}

	next := start + len(records)
	return &Page{
		Records:    records,
		NextPage:   opts.Page + 1,
		NextCursor: strconv.Itoa(next),
		HasMore:    len(records) > 0 && next < resp.TotalItems,
	}, nil
}

// ParseRecord decodes and flattens one raw volume document.
func (g *GoogleBooks) ParseRecord(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse googlebooks record: %w", err)
	}
	return flattenVolume(doc), nil
}

// flattenVolume lifts volumeInfo fields to the top level, where the field
// remap and normalization expect them.
func flattenVolume(item map[string]any) map[string]any {
	out := map[string]any{}
	if id, ok := item["id"]; ok {
		out["id"] = id
	}
	info, _ := item["volumeInfo"].(map[string]any)
	for k, v := range info {
		out[k] = v
	}
	if links, ok := info["imageLinks"].(map[string]any); ok {
		out["cover_url"] = links["thumbnail"]
	}
	return out
}

// DownloadURL addresses a volume preview; Google Books does not expose raw
// file downloads for most volumes.
func (g *GoogleBooks) DownloadURL(identifier, format string) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("googlebooks: empty identifier")
	}
	switch format {
	case "epub", "pdf":
	default:
		return "", fmt.Errorf("googlebooks: unsupported format %q", format)
	}
	return fmt.Sprintf("https://books.google.com/books?id=%s&printsec=frontcover&output=%s",
		identifier, format), nil
}

// FieldMap is the raw-to-canonical field remap for Google Books records.
func (g *GoogleBooks) FieldMap() map[string]string {
	return map[string]string{
		"id":            "source_identifier",
		"authors":       "author",
		"publishedDate": "year",
		"categories":    "genres",
	}
}
