package analytics

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"mall-census-go/internal/types"
)

// Insight is an actionable observation derived from trend data. Presentation
// layers render these directly; the engine only fills the fields.
type Insight struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Category         string   `json:"category"` // opportunity | warning | optimization | trend
	Severity         string   `json:"severity"` // low | medium | high
	AffectedEntities []string `json:"affected_entities"`
	AffectedZones    []string `json:"affected_zones"`
	Recommendation   string   `json:"recommendation"`
	Impact           string   `json:"impact"`
	Timestamp        int64    `json:"timestamp"`
	Actionable       bool     `json:"actionable"`
}

// StaffRecommendation suggests a staffing level for one zone.
type StaffRecommendation struct {
	Zone             types.Zone `json:"zone"`
	CurrentStaff     int        `json:"current_staff"`
	RecommendedStaff int        `json:"recommended_staff"`
	Reason           string     `json:"reason"`
	Urgency          string     `json:"urgency"` // low | medium | high
}

// coreSellers never count as underperformers; they anchor the mall's
// baseline traffic.
var coreSellers = map[string]bool{"Starbucks": true, "Nike": true, "Chipotle": true}

// GenerateInsights scans per-zone and global trends for rising entities,
// underperformers, zone imbalance and cross-sell pairs. history maps
// "<entity>_history" to past counts for the rising-star comparison.
func GenerateInsights(zoneTrends map[types.Zone][]types.TrendEntry, globalTrends []types.TrendEntry, history map[string][]int, now time.Time) []Insight {
	var insights []Insight
	ts := now.UnixMilli()

	// Rising stars: entities running 50%+ above their historical average.
	for _, zone := range types.Zones() {
		trends := zoneTrends[zone]
		var risers []string
		for _, t := range trends {
			past := history[t.Entity+"_history"]
			var avg float64
			if len(past) > 0 {
				var sum int
				for _, v := range past {
					sum += v
				}
				avg = float64(sum) / float64(len(past))
			}
			if float64(t.Count) > avg*1.5 {
				risers = append(risers, t.Entity)
			}
		}
		if len(risers) > 0 {
			insights = append(insights, Insight{
				ID:               uuid.NewString(),
				Title:            fmt.Sprintf("Rising demand in %s", zone),
				Description:      fmt.Sprintf("%s showing 50%%+ growth", strings.Join(risers, ", ")),
				Category:         "opportunity",
				Severity:         "high",
				AffectedEntities: risers,
				AffectedZones:    []string{string(zone)},
				Recommendation:   fmt.Sprintf("Increase inventory and staff for %s. Consider running a limited-time promotion.", risers[0]),
				Impact:           "+20-30% potential revenue",
				Timestamp:        ts,
				Actionable:       true,
			})
		}
	}

	// Underperformers: mentioned somewhere but absent from the global top 3.
	topGlobal := make(map[string]bool)
	for i, t := range globalTrends {
		if i == 3 {
			break
		}
		topGlobal[t.Entity] = true
	}
	var underperformers []string
	seen := make(map[string]bool)
	for _, zone := range types.Zones() {
		for _, t := range zoneTrends[zone] {
			if seen[t.Entity] || topGlobal[t.Entity] || coreSellers[t.Entity] {
				continue
			}
			seen[t.Entity] = true
			underperformers = append(underperformers, t.Entity)
		}
	}
	if len(underperformers) > 0 {
		shown := underperformers
		if len(shown) > 3 {
			shown = shown[:3]
		}
		insights = append(insights, Insight{
			ID:               uuid.NewString(),
			Title:            "Underperforming stores",
			Description:      fmt.Sprintf("%s need attention", strings.Join(shown, ", ")),
			Category:         "warning",
			Severity:         "medium",
			AffectedEntities: underperformers,
			AffectedZones:    zoneNames(zoneTrends),
			Recommendation:   "Consider promotional bundles, improved signage, or staff training for slow movers.",
			Impact:           "Potential 10-20% lift on slow items",
			Timestamp:        ts,
			Actionable:       true,
		})
	}

	// Zone imbalance: busiest zone more than twice the quietest.
	type zoneAvg struct {
		zone types.Zone
		avg  float64
	}
	var avgs []zoneAvg
	for _, zone := range types.Zones() {
		trends := zoneTrends[zone]
		if len(trends) == 0 {
			continue
		}
		var sum int
		for _, t := range trends {
			sum += t.Count
		}
		avgs = append(avgs, zoneAvg{zone, float64(sum) / float64(len(trends))})
	}
	if len(avgs) >= 2 {
		maxZ, minZ := avgs[0], avgs[0]
		for _, z := range avgs[1:] {
			if z.avg > maxZ.avg {
				maxZ = z
			}
			if z.avg < minZ.avg {
				minZ = z
			}
		}
		if maxZ.avg > minZ.avg*2 {
			insights = append(insights, Insight{
				ID:             uuid.NewString(),
				Title:          "Zone traffic imbalance",
				Description:    fmt.Sprintf("%s is 2x busier than %s", maxZ.zone, minZ.zone),
				Category:       "optimization",
				Severity:       "medium",
				AffectedZones:  []string{string(maxZ.zone), string(minZ.zone)},
				Recommendation: fmt.Sprintf("Redirect traffic from %s to %s with wayfinding or promotions.", maxZ.zone, minZ.zone),
				Impact:         "Better customer experience, reduced crowding",
				Timestamp:      ts,
				Actionable:     true,
			})
		}
	}

	// Cross-sell: the two globally hottest entities travel together.
	if len(globalTrends) >= 2 {
		pair := []string{globalTrends[0].Entity, globalTrends[1].Entity}
		insights = append(insights, Insight{
			ID:               uuid.NewString(),
			Title:            "Cross-sell opportunity",
			Description:      fmt.Sprintf("Customers asking about %s often also mention %s", pair[0], pair[1]),
			Category:         "opportunity",
			Severity:         "low",
			AffectedEntities: pair,
			AffectedZones:    zoneNames(zoneTrends),
			Recommendation:   "Create combo deals or place these stores near each other.",
			Impact:           "Average 15% increase in basket size",
			Timestamp:        ts,
			Actionable:       true,
		})
	}

	return insights
}

// RecommendStaffing sizes zone staffing at one person per ten units of
// average demand, floor of two.
func RecommendStaffing(zoneTrends map[types.Zone][]types.TrendEntry, currentStaffing map[types.Zone]int) []StaffRecommendation {
	var recs []StaffRecommendation
	for _, zone := range types.Zones() {
		trends := zoneTrends[zone]
		var total int
		for _, t := range trends {
			total += t.Count
		}
		denom := len(trends)
		if denom == 0 {
			denom = 1
		}
		avgDemand := float64(total) / float64(denom)

		recommended := int(math.Ceil(avgDemand / 10))
		if recommended < 2 {
			recommended = 2
		}
		current := currentStaffing[zone]
		if current == 0 {
			current = 2
		}
		diff := recommended - current

		urgency := "low"
		if diff > 2 {
			urgency = "high"
		} else if diff > 0 {
			urgency = "medium"
		}

		reason := "Demand aligned with staffing"
		if diff > 0 {
			reason = fmt.Sprintf("High demand (%.0f units/period)", avgDemand)
		} else if diff < 0 {
			reason = "Low demand, optimize costs"
		}

		recs = append(recs, StaffRecommendation{
			Zone:             zone,
			CurrentStaff:     current,
			RecommendedStaff: recommended,
			Reason:           reason,
			Urgency:          urgency,
		})
	}
	return recs
}

// WeeklyForecast is a naive next-week projection per entity.
type WeeklyForecast struct {
	Entity        string `json:"entity"`
	NextWeekCount int    `json:"next_week_count"`
	ChangePercent int    `json:"change_percent"`
}

// ForecastWeekly projects an 8% lift across the board.
func ForecastWeekly(trends []types.TrendEntry) []WeeklyForecast {
	out := make([]WeeklyForecast, 0, len(trends))
	for _, t := range trends {
		out = append(out, WeeklyForecast{
			Entity:        t.Entity,
			NextWeekCount: int(math.Round(float64(t.Count) * 1.08)),
			ChangePercent: 8,
		})
	}
	return out
}

func zoneNames(zoneTrends map[types.Zone][]types.TrendEntry) []string {
	var out []string
	for _, z := range types.Zones() {
		if _, ok := zoneTrends[z]; ok {
			out = append(out, string(z))
		}
	}
	return out
}
