package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// OpenLibrary pages the Open Library search API. It is the legacy default
// source: its configuration is provisioned enabled with priority 1.
type OpenLibrary struct {
	client  *HTTPClient
	baseURL string
	query   string
	subject string
}

var _ Fetcher = (*OpenLibrary)(nil)
var _ Configurable = (*OpenLibrary)(nil)

// openLibraryConfigSchema constrains the source-specific configuration blob.
const openLibraryConfigSchema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "minLength": 1},
		"subject": {"type": "string", "minLength": 1},
		"base_url": {"type": "string", "format": "uri"}
	},
	"additionalProperties": false
}`

// NewOpenLibrary creates the Open Library adapter.
func NewOpenLibrary() *OpenLibrary {
	return &OpenLibrary{
		client:  NewHTTPClient(1),
		baseURL: "https://openlibrary.org",
		query:   "*",
	}
}

func (o *OpenLibrary) SourceID() string { return "openlibrary" }

func (o *OpenLibrary) Metadata() SourceMetadata {
	return SourceMetadata{
		SourceID:           "openlibrary",
		DisplayName:        "Open Library",
		Formats:            []string{"json", "rdf"},
		DefaultRateLimitMS: 1000,
		DefaultBatchSize:   50,
		ConfigSchema:       openLibraryConfigSchema,
	}
}

// ApplyConfig consumes the persisted source-specific configuration.
func (o *OpenLibrary) ApplyConfig(cfg map[string]any) error {
	if q, ok := cfg["query"].(string); ok && q != "" {
		o.query = q
	}
	if s, ok := cfg["subject"].(string); ok {
		o.subject = s
	}
	if u, ok := cfg["base_url"].(string); ok && u != "" {
		o.baseURL = strings.TrimSuffix(u, "/")
	}
	return nil
}

// openLibraryResponse is the search API page shape.
type openLibraryResponse struct {
	NumFound int              `json:"numFound"`
	Start    int              `json:"start"`
	Docs     []map[string]any `json:"docs"`
}

// FetchPage retrieves one page of search results.
func (o *OpenLibrary) FetchPage(ctx context.Context, opts FetchOptions) (*Page, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := opts.BatchSize
	if limit <= 0 {
		limit = 50
	}

	params := url.Values{}
	params.Set("q", o.query)
	if o.subject != "" {
		params.Set("subject", o.subject)
	}
	params.Set("page", fmt.Sprintf("%d", page))
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("fields", "key,title,author_name,first_publish_year,language,subject,cover_i")

	var resp openLibraryResponse
	reqURL := fmt.Sprintf("%s/search.json?%s", o.baseURL, params.Encode())
	if err := o.client.GetJSON(ctx, reqURL, &resp); err != nil {
		return nil, &FetchError{Source: o.SourceID(), Err: err}
	}

	return &Page{
		Records:  resp.Docs,
		NextPage: page + 1,
		HasMore:  resp.Start+len(resp.Docs) < resp.NumFound && len(resp.Docs) > 0,
	}, nil
}

// ParseRecord decodes one raw search doc.
func (o *OpenLibrary) ParseRecord(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse openlibrary record: %w", err)
	}
	return doc, nil
}

// DownloadURL addresses a work document by identifier. Open Library serves
// metadata documents, not book files, so formats are document formats.
func (o *OpenLibrary) DownloadURL(identifier, format string) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("openlibrary: empty identifier")
	}
	switch format {
	case "json", "rdf":
	default:
		return "", fmt.Errorf("openlibrary: unsupported format %q", format)
	}
	key := identifier
	if !strings.HasPrefix(key, "/works/") {
		key = "/works/" + key
	}
	return fmt.Sprintf("%s%s.%s", o.baseURL, key, format), nil
}

// FieldMap is the raw-to-canonical field remap for Open Library records.
func (o *OpenLibrary) FieldMap() map[string]string {
	return map[string]string{
		"author_name":        "author",
		"first_publish_year": "year",
		"subject":            "genres",
		"key":                "source_identifier",
	}
}
