// Package sanitize holds the string-cleaning rules shared by the
// spreadsheet importer and the repair tool.
package sanitize

import (
	"strconv"
	"strings"
)

// MaxURLLength is the longest image URL we store. Anything longer is
// truncated, preferring to drop the query string first.
const MaxURLLength = 2000

// Text cleans a free-text cell into a single line: control and
// zero-width characters removed, line breaks collapsed to spaces,
// runs of whitespace squeezed, ends trimmed.
func Text(input string) string {
	if input == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(' ')
		case r < 0x20 || r == 0x7f:
			// drop control characters
		case r == '\u200b' || r == '\u200c' || r == '\u200d' || r == '\ufeff':
			// drop zero-width characters
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// URL validates and bounds an image URL. Anything not starting with
// "http" is rejected. Overlong URLs lose their query string; if the
// pre-query portion is still too long the URL is hard-truncated.
func URL(input string) (string, bool) {
	cleaned := strings.TrimSpace(input)
	if cleaned == "" {
		return "", true
	}
	if !strings.HasPrefix(cleaned, "http") {
		return "", false
	}
	if len(cleaned) <= MaxURLLength {
		return cleaned, true
	}
	if idx := strings.Index(cleaned, "?"); idx > 0 && idx <= MaxURLLength {
		return cleaned[:idx], true
	}
	return cleaned[:MaxURLLength], true
}

// Price parses a price cell. Currency symbols, spaces and thousands
// separators are stripped before parsing; only strictly positive
// values are accepted.
func Price(input string) (float64, bool) {
	value, err := strconv.ParseFloat(numericRunes(input), 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}

// Weight parses an optional weight-in-grams cell. Returns nil when the
// cell does not hold a positive number.
func Weight(input string) *float64 {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	value, err := strconv.ParseFloat(numericRunes(input), 64)
	if err != nil || value <= 0 {
		return nil
	}
	return &value
}

// Filename rewrites a file name so it is safe as a storage object
// path segment.
func Filename(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}

func numericRunes(input string) string {
	var b strings.Builder
	for _, r := range input {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
