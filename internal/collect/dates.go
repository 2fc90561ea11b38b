package collect

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ParseDeadline attempts to parse deadline strings in the formats the
// providers actually emit: ISO first, then common English and Portuguese
// layouts, then regex extraction from surrounding text.
func ParseDeadline(text string) (time.Time, error) {
	text = cleanDateString(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}

	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", text); err == nil {
		return toEndOfDay(t), nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", text); err == nil {
		return t.UTC(), nil
	}

	englishFormats := []string{
		"2 January 2006",
		"02 January 2006",
		"January 2, 2006",
		"Jan 2, 2006",
		"2 Jan 2006",
		"02 Jan 2006",
		"01/02/2006",
	}
	for _, format := range englishFormats {
		if t, err := time.Parse(format, text); err == nil {
			return toEndOfDay(t), nil
		}
	}

	if t, err := parsePortugueseDate(text); err == nil {
		return toEndOfDay(t), nil
	}
	if t := parseDateWithRegex(text); !t.IsZero() {
		return toEndOfDay(t), nil
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", text)
}

// toEndOfDay sets the time to 23:59:59 UTC. Date-only deadlines mean
// "until the end of that day".
func toEndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}

var portugueseMonths = map[string]string{
	"janeiro":   "January",
	"fevereiro": "February",
	"março":     "March",
	"marco":     "March",
	"abril":     "April",
	"maio":      "May",
	"junho":     "June",
	"julho":     "July",
	"agosto":    "August",
	"setembro":  "September",
	"outubro":   "October",
	"novembro":  "November",
	"dezembro":  "December",
}

// parsePortugueseDate handles "17 de junho de 2025" style dates.
func parsePortugueseDate(text string) (time.Time, error) {
	lower := strings.ToLower(text)
	for pt, en := range portugueseMonths {
		lower = strings.ReplaceAll(lower, pt, en)
	}
	lower = strings.ReplaceAll(lower, " de ", " ")
	lower = strings.ReplaceAll(lower, " do ", " ")

	formats := []string{"2 January 2006", "02 January 2006", "02/01/2006", "2/1/2006"}
	for _, format := range formats {
		if t, err := time.Parse(format, lower); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not a portuguese date: %s", text)
}

var (
	isoDateRe = regexp.MustCompile(`\b(20\d{2})-(\d{2})-(\d{2})\b`)
	brDateRe  = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(20\d{2})\b`)
	ptMonthRe = regexp.MustCompile(`(?i)\b(\d{1,2})\s+de\s+(janeiro|fevereiro|março|marco|abril|maio|junho|julho|agosto|setembro|outubro|novembro|dezembro)\s+(?:de|do)\s+(20\d{2})\b`)
	enMonthRe = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+(\d{1,2}),?\s+(20\d{2})\b`)
	enDayRe   = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+(20\d{2})\b`)
)

// parseDateWithRegex extracts the first recognizable date embedded in free
// text. BR day/month order is tried before US order.
func parseDateWithRegex(text string) time.Time {
	if m := isoDateRe.FindString(text); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return t
		}
	}

	if m := ptMonthRe.FindStringSubmatch(text); len(m) == 4 {
		en := portugueseMonths[strings.ToLower(m[2])]
		if t, err := time.Parse("2 January 2006", fmt.Sprintf("%s %s %s", m[1], en, m[3])); err == nil {
			return t
		}
	}

	if m := brDateRe.FindStringSubmatch(text); len(m) == 4 {
		dateStr := fmt.Sprintf("%s/%s/%s", m[1], m[2], m[3])
		if t, err := time.Parse("2/1/2006", dateStr); err == nil {
			return t
		}
		// Day > 12 in the second position means US order after all.
		if t, err := time.Parse("1/2/2006", dateStr); err == nil {
			return t
		}
	}

	if m := enMonthRe.FindStringSubmatch(text); len(m) == 4 {
		dateStr := fmt.Sprintf("%s %s %s", m[1], m[2], m[3])
		if t, err := time.Parse("January 2 2006", dateStr); err == nil {
			return t
		}
		if t, err := time.Parse("Jan 2 2006", dateStr); err == nil {
			return t
		}
	}
	if m := enDayRe.FindStringSubmatch(text); len(m) == 4 {
		dateStr := fmt.Sprintf("%s %s %s", m[1], m[2], m[3])
		if t, err := time.Parse("2 January 2006", dateStr); err == nil {
			return t
		}
		if t, err := time.Parse("2 Jan 2006", dateStr); err == nil {
			return t
		}
	}

	return time.Time{}
}

var (
	deadlineLabelRe = regexp.MustCompile(`(?i)(deadline|closing date|closes|due date|prazo|encerramento|data limite|data de encerramento|até)[:\s]*`)
)

// DeadlineFromText scans free text for a labeled deadline first, then for
// any recognizable date. Returns the zero time when nothing parses.
func DeadlineFromText(text string) time.Time {
	if loc := deadlineLabelRe.FindStringIndex(text); loc != nil {
		window := text[loc[1]:]
		if len(window) > 120 {
			window = window[:120]
		}
		if t := parseDateWithRegex(window); !t.IsZero() {
			return toEndOfDay(t)
		}
	}
	if t := parseDateWithRegex(text); !t.IsZero() {
		return toEndOfDay(t)
	}
	return time.Time{}
}

// cleanDateString strips common label prefixes around a date value.
func cleanDateString(s string) string {
	prefixes := []string{
		"Closing date:", "Deadline:", "Due date:",
		"Prazo:", "Encerramento:", "Data limite:", "Até:",
	}
	sLower := strings.ToLower(s)
	for _, p := range prefixes {
		if idx := strings.Index(sLower, strings.ToLower(p)); idx != -1 {
			s = s[idx+len(p):]
			sLower = sLower[idx+len(p):]
		}
	}
	return strings.TrimSpace(s)
}
