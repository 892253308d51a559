package census

import "time"

// Day selections understood by ResolveDayKey. Anything else is assumed to
// already be a concrete YYYY-MM-DD key (or the ALL sentinel) and passes
// through unchanged.
const (
	DayToday     = "Today"
	DayYesterday = "Yesterday"
)

// DayKeyAt formats t's calendar date as a day partition key.
func DayKeyAt(t time.Time) string {
	return t.Format("2006-01-02")
}

// ResolveDayKey turns a day selection into a concrete day key. An empty
// selection means today.
func ResolveDayKey(selection string, now time.Time) string {
	switch selection {
	case "", DayToday:
		return DayKeyAt(now)
	case DayYesterday:
		return DayKeyAt(now.AddDate(0, 0, -1))
	default:
		return selection
	}
}
