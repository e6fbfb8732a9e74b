package storage

import "testing"

func TestBookPath(t *testing.T) {
	tests := []struct {
		name       string
		source     string
		identifier string
		format     string
		want       string
	}{
		{"plain id", "gutendex", "1342", "epub", "gutendex/1342.epub"},
		{"slashed id is flattened", "openlibrary", "/works/OL45883W", "pdf", "openlibrary/_works_OL45883W.pdf"},
		{"dotted format", "gutendex", "84", ".txt", "gutendex/84.txt"},
		{"spaces collapse", "googlebooks", "zyT CAAAQBAJ", "epub", "googlebooks/zyT_CAAAQBAJ.epub"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BookPath(tt.source, tt.identifier, tt.format); got != tt.want {
				t.Errorf("BookPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPublicURL(t *testing.T) {
	l := NewLayout("https://cdn.atheneum.example/")

	got := l.BookURL("gutendex", "1342", "epub")
	want := "https://cdn.atheneum.example/books/gutendex/1342.epub"
	if got != want {
		t.Errorf("BookURL() = %q, want %q", got, want)
	}

	got = l.CoverURL("openlibrary", "/works/OL45883W")
	want = "https://cdn.atheneum.example/covers/openlibrary/_works_OL45883W.jpg"
	if got != want {
		t.Errorf("CoverURL() = %q, want %q", got, want)
	}
}
