package metadata

import "testing"

func TestExtractYear(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  int  // ignored when wantNil
		nilOK bool // expect nil
	}{
		{name: "bare year", input: "1850", want: 1850},
		{name: "iso date", input: "1850-03-14", want: 1850},
		{name: "circa", input: "circa 1850", want: 1850},
		{name: "circa abbreviated", input: "c. 1922", want: 1922},
		{name: "bracketed", input: "[1850]", want: 1850},
		{name: "bracketed uncertain", input: "[1850?]", want: 1850},
		{name: "copyright prefix", input: "Copyright 1923", want: 1923},
		{name: "published prefix", input: "published 1901 in London", want: 1901},
		{name: "embedded run", input: "London, 1888, second edition", want: 1888},
		{name: "integer input", input: 1850, want: 1850},
		{name: "float input", input: float64(1850), want: 1850},
		{name: "unparseable", input: "no-date-here", nilOK: true},
		{name: "below range", input: "0999", nilOK: true},
		{name: "above range", input: "3000", nilOK: true},
		{name: "out-of-range skipped for later in-range", input: "9999 printing of 1850 text", want: 1850},
		{name: "empty string", input: "", nilOK: true},
		{name: "nil input", input: nil, nilOK: true},
		{name: "integer out of range", input: 42, nilOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractYear(tt.input)
			if tt.nilOK {
				if got != nil {
					t.Fatalf("ExtractYear(%v) = %d, want nil", tt.input, *got)
				}
				return
			}
			if got == nil {
				t.Fatalf("ExtractYear(%v) = nil, want %d", tt.input, tt.want)
			}
			if *got != tt.want {
				t.Errorf("ExtractYear(%v) = %d, want %d", tt.input, *got, tt.want)
			}
		})
	}
}

func TestExtractYearPatternOrder(t *testing.T) {
	// The ISO pattern must win over the generic run: "1850-03-14" contains
	// no other 4-digit run, but "reprint 2001 of 1850-01-01" should prefer
	// the ISO-shaped year only when the string starts with it.
	got := ExtractYear("2001 reprint")
	if got == nil || *got != 2001 {
		t.Fatalf("got %v, want 2001", got)
	}
}
