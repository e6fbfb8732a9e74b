package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Gutendex pages the Gutendex API (Project Gutenberg's catalog mirror).
// Continuation uses the API's own next-page URL as the cursor, so a resumed
// run never recomputes pagination from scratch.
type Gutendex struct {
	client  *HTTPClient
	baseURL string
	topic   string
}

var _ Fetcher = (*Gutendex)(nil)
var _ Configurable = (*Gutendex)(nil)

const gutendexConfigSchema = `{
	"type": "object",
	"properties": {
		"topic": {"type": "string", "minLength": 1},
		"base_url": {"type": "string", "format": "uri"}
	},
	"additionalProperties": false
}`

// NewGutendex creates the Project Gutenberg adapter.
func NewGutendex() *Gutendex {
	return &Gutendex{
		client:  NewHTTPClient(2),
		baseURL: "https://gutendex.com",
	}
}

func (g *Gutendex) SourceID() string { return "gutendex" }

func (g *Gutendex) Metadata() SourceMetadata {
	return SourceMetadata{
		SourceID:           "gutendex",
		DisplayName:        "Project Gutenberg",
		Formats:            []string{"epub", "txt", "kindle", "html"},
		DefaultRateLimitMS: 500,
		DefaultBatchSize:   32,
		ConfigSchema:       gutendexConfigSchema,
	}
}

func (g *Gutendex) ApplyConfig(cfg map[string]any) error {
	if t, ok := cfg["topic"].(string); ok {
		g.topic = t
	}
	if u, ok := cfg["base_url"].(string); ok && u != "" {
		g.baseURL = strings.TrimSuffix(u, "/")
	}
	return nil
}

type gutendexResponse struct {
	Count   int              `json:"count"`
	Next    string           `json:"next"`
	Results []map[string]any `json:"results"`
}

// FetchPage retrieves one catalog page. The cursor, when present, is the
// full next-page URL returned by the previous fetch.
func (g *Gutendex) FetchPage(ctx context.Context, opts FetchOptions) (*Page, error) {
	reqURL := opts.Cursor
	if reqURL == "" {
		page := opts.Page
		if page < 1 {
			page = 1
		}
		reqURL = fmt.Sprintf("%s/books/?page=%d", g.baseURL, page)
		if g.topic != "" {
			reqURL += "&topic=" + g.topic
		}
	}

	var resp gutendexResponse
	if err := g.client.GetJSON(ctx, reqURL, &resp); err != nil {
		return nil, &FetchError{Source: g.SourceID(), Err: err}
	}

	nextPage := opts.Page + 1
	if opts.Page < 1 {
		nextPage = 2
	}
	return &Page{
		Records:    resp.Results,
		NextPage:   nextPage,
		NextCursor: resp.Next,
		HasMore:    resp.Next != "",
	}, nil
}

// ParseRecord decodes one raw book document.
func (g *Gutendex) ParseRecord(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse gutendex record: %w", err)
	}
	return doc, nil
}

// DownloadURL follows the gutenberg.org mirror conventions for ebook files.
func (g *Gutendex) DownloadURL(identifier, format string) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("gutendex: empty identifier")
	}
	base := fmt.Sprintf("https://www.gutenberg.org/ebooks/%s", identifier)
	switch format {
	case "epub":
		return base + ".epub.images", nil
	case "txt":
		return base + ".txt.utf-8", nil
	case "kindle":
		return base + ".kf8.images", nil
	case "html":
		return base + ".html.images", nil
	default:
		return "", fmt.Errorf("gutendex: unsupported format %q", format)
	}
}

// FieldMap is the raw-to-canonical field remap for Gutendex records.
func (g *Gutendex) FieldMap() map[string]string {
	return map[string]string{
		"id":        "source_identifier",
		"authors":   "author",
		"languages": "language",
		"subjects":  "genres",
	}
}
