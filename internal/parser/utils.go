package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/portillolaupa-ui/ucc-supervision/internal/config"
	"github.com/portillolaupa-ui/ucc-supervision/internal/model"
)

var (
	spaceRe     = regexp.MustCompile(`\s+`)
	docxSpaceRe = regexp.MustCompile(`[\r\t\x{00a0}]+`)
	titleCaser  = cases.Title(language.Spanish)
	naTokens    = map[string]bool{"NA": true, "N/A": true, "N.A.": true, "NO APLICA": true}
)

// dateLayouts layouts tried when a date cell holds text; day first
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"2/1/2006",
	"02/01/06",
	"2/1/06",
	"02-01-2006",
	"2-1-2006",
	"01-02-06",
}

// ValueAfterSeparator returns the trimmed text after the first colon, or the trimmed text itself
func ValueAfterSeparator(text string) string {
	if idx := strings.Index(text, ":"); idx >= 0 {
		return strings.TrimSpace(text[idx+1:])
	}
	return strings.TrimSpace(text)
}

// CleanValue applies a metadata cleaning mode
func CleanValue(value, mode string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	switch mode {
	case config.CleanTitle:
		return titleCaser.String(strings.ToLower(value))
	case config.CleanUpper:
		return strings.ToUpper(value)
	case config.CleanDate:
		return FormatDate(value)
	default:
		return value
	}
}

// FormatDate normalises an Excel serial or a textual date to 2006-01-02.
// Unparseable input is returned unchanged.
func FormatDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		if serial > 0 && serial < 2958466 {
			if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
				return t.Format("2006-01-02")
			}
		}
		return value
	}
	if t, ok := ParseDate(value); ok {
		return t.Format("2006-01-02")
	}
	return value
}

// ParseDate parses a day-first textual date
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// NormalizeKey lower-cased, accent-free, single-spaced form used to compare labels
func NormalizeKey(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// NormalizeDocxText collapses the whitespace of concatenated paragraph text
func NormalizeDocxText(s string) string {
	s = docxSpaceRe.ReplaceAllString(s, " ")
	return spaceRe.ReplaceAllString(s, " ")
}

// ParseValue interprets a non-empty grade cell
func ParseValue(s string) model.Value {
	s = strings.TrimSpace(s)
	if s == "" || naTokens[strings.ToUpper(s)] {
		return model.NAValue()
	}
	if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64); err == nil {
		return model.ScoreValue(f)
	}
	return model.TextValue(s)
}

// IsDigits reports whether s is a non-empty run of ASCII digits
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ContainsAny reports whether text contains any of the keywords
func ContainsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
