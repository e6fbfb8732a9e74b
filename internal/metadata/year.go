package metadata

import (
	"regexp"
	"strconv"
	"strings"
)

// yearPatterns is the ordered list of date shapes tried during year
// extraction. Order matters: earlier patterns anchor more precisely, the
// last one is a generic 4-digit scan. Each pattern captures the year in
// group 1.
var yearPatterns = []*regexp.Regexp{
	// Bare year: "1850"
	regexp.MustCompile(`^\s*(\d{4})\s*$`),
	// ISO date: "1850-03-14"
	regexp.MustCompile(`^\s*(\d{4})-\d{2}-\d{2}`),
	// Approximate: "circa 1850", "c. 1850", "ca 1850"
	regexp.MustCompile(`(?i)\bc(?:irca|a?\.?)\s*(\d{4})`),
	// Bracketed: "[1850]", "[1850?]"
	regexp.MustCompile(`\[(\d{4})\??\]`),
	// Prefixed: "published 1850", "©1850", "Copyright 1850"
	regexp.MustCompile(`(?i)(?:published|copyright|©)\s*(\d{4})`),
	// Generic: first 4-digit run anywhere
	regexp.MustCompile(`(\d{4})`),
}

// ExtractYear pulls a publication year out of whatever shape the source
// provides. The first pattern whose captured year lands in
// [YearMin, YearMax] wins; unparseable input returns nil.
func ExtractYear(v any) *int {
	// Numeric inputs skip the pattern table.
	switch n := v.(type) {
	case int:
		return boundedYear(n)
	case int64:
		return boundedYear(int(n))
	case float64:
		return boundedYear(int(n))
	}

	s := strings.TrimSpace(stringify(v))
	if s == "" {
		return nil
	}

	for _, pat := range yearPatterns {
		matches := pat.FindAllStringSubmatch(s, -1)
		for _, match := range matches {
			year, err := strconv.Atoi(match[1])
			if err != nil {
				continue
			}
			if y := boundedYear(year); y != nil {
				return y
			}
		}
	}
	return nil
}

func boundedYear(year int) *int {
	if year < YearMin || year > YearMax {
		return nil
	}
	return &year
}
