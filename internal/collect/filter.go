package collect

import (
	"log"
	"regexp"
	"time"
)

// MinDaysDefault is the fallback deadline window when MIN_DAYS is unset.
const MinDaysDefault = 21

// CompileGroupRegex compiles the stored pattern for a group's config key,
// case-insensitively. Empty or broken patterns fall back to the group
// default, and as a last resort to a match-everything pattern, so a bad
// config entry can never silence a whole group.
func CompileGroupRegex(key, pattern string) *regexp.Regexp {
	if pattern != "" {
		if re, err := regexp.Compile("(?i)" + pattern); err == nil {
			return re
		}
		log.Printf("invalid regex for %s, falling back to default", key)
	}
	if def, ok := DefaultRegex[key]; ok {
		if re, err := regexp.Compile("(?i)" + def); err == nil {
			return re
		}
	}
	return regexp.MustCompile(`(?s).`)
}

// WithinMinDays reports whether an item's deadline leaves at least minDays
// full days from now. Unknown deadlines are kept: dropping them would hide
// calls whose closing date simply could not be parsed. The boundary is
// inclusive.
func WithinMinDays(deadline *time.Time, minDays int, now time.Time) bool {
	if deadline == nil {
		return true
	}
	diff := deadline.Sub(now)
	days := int(diff.Hours() / 24)
	if diff < 0 && diff%(24*time.Hour) != 0 {
		days-- // floor, not truncate, for past deadlines
	}
	return days >= minDays
}
