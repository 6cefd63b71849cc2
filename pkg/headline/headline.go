// Package headline turns raw alert headlines into bounded-length push
// messages, parsing the embedded expiry clause when one is present.
package headline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultLimit is the delivery channel's message field limit.
const DefaultLimit = 250

// NWS headlines carry the expiry in one of two shapes:
//
//	... until January 5 at 3:15 PM ...   (long form)
//	... until 3:15 PM 1/5 ...            (numeric form)
var (
	longUntil = regexp.MustCompile(`(?i)\buntil\s+(?P<month>[A-Za-z]+)\s+(?P<day>\d{1,2})\s+at\s+(?P<time>\d{1,2}:\d{2}\s*[AP]M)`)
	numUntil  = regexp.MustCompile(`(?i)\buntil\s+(?P<time>\d{1,2}:\d{2}\s*[AP]M)\s+(?P<month>\d{1,2})/(?P<day>\d{1,2})`)
)

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// Format produces the user-facing push message for a raw headline (or event
// name fallback). The reference time supplies the default year for parsed
// expiry dates. The result is truncated to DefaultLimit characters.
func Format(raw string, now time.Time) string {
	return FormatWithLimit(raw, now, DefaultLimit)
}

// FormatWithLimit is Format with an explicit length ceiling.
func FormatWithLimit(raw string, now time.Time, limit int) string {
	s := normalize(raw)
	title := extractTitle(s)

	message := fmt.Sprintf("⚠️  %s issued. Tap for details!", title)
	if until, ok := parseUntil(s, now.Year()); ok {
		message = fmt.Sprintf("⚠️  %s issued until %s %s! Tap for details!",
			title, clock12(until), until.Weekday())
	}

	return Truncate(message, limit)
}

// Truncate bounds a message to limit characters, replacing the tail with
// "..." when it overflows.
func Truncate(message string, limit int) string {
	runes := []rune(message)
	if len(runes) <= limit || limit <= 3 {
		return message
	}
	return string(runes[:limit-3]) + "..."
}

// normalize collapses runs of whitespace and newlines into single spaces.
func normalize(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// extractTitle takes the text up to the first ": ", falling back to the text
// before " issued", else the whole string.
func extractTitle(s string) string {
	if idx := strings.Index(s, ": "); idx != -1 {
		return strings.TrimSpace(s[:idx])
	}
	if idx := strings.Index(strings.ToLower(s), " issued"); idx != -1 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

// parseUntil extracts the expiry clause as a concrete date-time. The year
// defaults to the reference year; headlines never carry one.
func parseUntil(s string, year int) (time.Time, bool) {
	if !strings.Contains(strings.ToLower(s), " until ") {
		return time.Time{}, false
	}

	if m := longUntil.FindStringSubmatch(s); m != nil {
		month, ok := months[strings.ToLower(m[1])]
		if ok {
			day, _ := strconv.Atoi(m[2])
			if t, err := parseClock(m[3]); err == nil {
				return time.Date(year, month, day, t.Hour(), t.Minute(), 0, 0, time.Local), true
			}
		}
	}

	if m := numUntil.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if t, err := parseClock(m[1]); err == nil && month >= 1 && month <= 12 {
			return time.Date(year, time.Month(month), day, t.Hour(), t.Minute(), 0, 0, time.Local), true
		}
	}

	return time.Time{}, false
}

func parseClock(s string) (time.Time, error) {
	return time.Parse("3:04PM", strings.ToUpper(strings.ReplaceAll(s, " ", "")))
}

func clock12(t time.Time) string {
	hour := t.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	meridiem := "AM"
	if t.Hour() >= 12 {
		meridiem = "PM"
	}
	return fmt.Sprintf("%d:%02d %s", hour, t.Minute(), meridiem)
}
