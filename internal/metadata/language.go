package metadata

import "strings"

// languageAliases maps common language spellings and 2-letter codes to
// ISO 639-2 codes. Inputs not covered here fall back to their first three
// characters, which already handles well-formed 3-letter codes.
var languageAliases = map[string]string{
	"english":    "eng",
	"en":         "eng",
	"en-us":      "eng",
	"en-gb":      "eng",
	"french":     "fre",
	"fr":         "fre",
	"german":     "ger",
	"de":         "ger",
	"spanish":    "spa",
	"es":         "spa",
	"italian":    "ita",
	"it":         "ita",
	"portuguese": "por",
	"pt":         "por",
	"dutch":      "dut",
	"nl":         "dut",
	"russian":    "rus",
	"ru":         "rus",
	"japanese":   "jpn",
	"ja":         "jpn",
	"chinese":    "chi",
	"zh":         "chi",
	"latin":      "lat",
	"la":         "lat",
	"greek":      "gre",
	"el":         "gre",
	"finnish":    "fin",
	"fi":         "fin",
	"swedish":    "swe",
	"sv":         "swe",
}

// NormalizeLanguage coerces a raw language value to a lowercase 3-letter
// code, or nil when the input is empty. List-valued inputs use their first
// element.
func NormalizeLanguage(v any) *string {
	var raw string
	switch l := v.(type) {
	case []any:
		if len(l) == 0 {
			return nil
		}
		raw = stringify(l[0])
	case []string:
		if len(l) == 0 {
			return nil
		}
		raw = l[0]
	default:
		raw = stringify(v)
	}

	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return nil
	}

	if code, ok := languageAliases[raw]; ok {
		return &code
	}
	if r := []rune(raw); len(r) > 3 {
		raw = string(r[:3])
	}
	return &raw
}
