package types

// Zone is a named physical area of the venue. The set is closed for this
// deployment; values outside it are stored as-is and simply never match a
// zone-scoped query.
type Zone string

const (
	ZoneFoodCourt Zone = "Food Court"
	ZoneAtrium    Zone = "Atrium"
	ZoneWestWing  Zone = "West Wing"
	ZoneEntrance  Zone = "Entrance"
)

// Zones returns the closed zone set in display order.
func Zones() []Zone {
	return []Zone{ZoneFoodCourt, ZoneAtrium, ZoneWestWing, ZoneEntrance}
}

// ParseZone reports whether s names a known zone.
func ParseZone(s string) (Zone, bool) {
	for _, z := range Zones() {
		if string(z) == s {
			return z, true
		}
	}
	return "", false
}

// TimeWindow selects one of the non-uniform time filters. Each window has its
// own evaluation rule; see census.Store.
type TimeWindow string

const (
	Window10m     TimeWindow = "10m"
	Window1h      TimeWindow = "1h"
	WindowNoon5pm TimeWindow = "Noon-5pm"
	WindowToday   TimeWindow = "Today"
)

func Windows() []TimeWindow {
	return []TimeWindow{Window10m, Window1h, WindowNoon5pm, WindowToday}
}

func ParseWindow(s string) (TimeWindow, bool) {
	for _, w := range Windows() {
		if string(w) == s {
			return w, true
		}
	}
	return "", false
}

// DayAll disables day partitioning in queries.
const DayAll = "ALL"

// Observation is one normalized (intent, entity) reading produced by the
// extractor for a single transcript.
type Observation struct {
	Intent    string `json:"intent"`
	Entity    string `json:"entity"`
	Timestamp int64  `json:"timestamp"`
}

// DetectionEvent is an immutable, zone-tagged observation held in the demand
// store's event log.
type DetectionEvent struct {
	Intent    string `json:"intent"`
	Entity    string `json:"entity"`
	Timestamp int64  `json:"timestamp"`
	Zone      Zone   `json:"zone"`
	DayKey    string `json:"day_key"`
}

// TrendEntry is a derived aggregate over the event log, recomputed per query.
type TrendEntry struct {
	Entity   string `json:"entity"`
	Count    int    `json:"count"`
	LastSeen int64  `json:"last_seen"`
}

// Detection is a feed item for the recent-activity list.
type Detection struct {
	Zone      Zone   `json:"zone"`
	Intent    string `json:"intent"`
	Entity    string `json:"entity"`
	Timestamp int64  `json:"timestamp"`
}

// AdType classifies what a zone's screen is showing. TREND screens are
// recomputed from demand data; PROMOTION and ALERT are manual overrides and
// stay until explicitly reset.
type AdType string

const (
	AdTrend     AdType = "TREND"
	AdPromotion AdType = "PROMOTION"
	AdAlert     AdType = "ALERT"
)

// AdScreen is the display state pushed to a zone's screen.
type AdScreen struct {
	Type      AdType `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Entity    string `json:"entity,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
}

// TranscriptRequest is the ingest boundary payload: text from the external
// speech-to-text service plus the zone the microphone belongs to. Confidence
// is optional because not every transcription backend reports one.
type TranscriptRequest struct {
	Zone       string   `json:"zone"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	Day        string   `json:"day,omitempty"`
}
