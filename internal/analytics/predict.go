// Package analytics derives secondary signals from demand trends:
// short-horizon forecasts, anomaly scores, staffing recommendations and
// business insights. Everything here consumes the demand store's ranked
// output; nothing feeds back into it.
package analytics

import (
	"fmt"
	"math"
	"time"
)

// Prediction is a one-entity demand forecast for the next hour.
type Prediction struct {
	Entity            string  `json:"entity"`
	CurrentTrend      int     `json:"current_trend"`
	NextHourForecast  int     `json:"next_hour_forecast"`
	Confidence        float64 `json:"confidence"`
	Trend             string  `json:"trend"` // rising | stable | falling
	EstimatedPeakTime string  `json:"estimated_peak_time"`
	AnomalyScore      float64 `json:"anomaly_score"` // 0-1, >0.7 is anomalous
}

// PredictNextHour forecasts demand with exponential smoothing (newer samples
// weigh more) and scores how anomalous the current count is against the
// recent baseline. recent is ordered newest first.
func PredictNextHour(entity string, current int, recent []int, now time.Time) Prediction {
	const alpha = 0.3

	forecast := float64(current)
	for i, c := range recent {
		weight := math.Pow(1-alpha, float64(i))
		forecast = alpha*float64(c)*weight + (1-alpha)*forecast
	}

	// Trend direction against the five newest samples.
	var recentSum float64
	for i, c := range recent {
		if i == 5 {
			break
		}
		recentSum += float64(c)
	}
	avgRecent := recentSum / 5
	trend := "stable"
	switch {
	case float64(current) > avgRecent*1.2:
		trend = "rising"
	case float64(current) < avgRecent*0.8:
		trend = "falling"
	}

	anomaly := anomalyScore(float64(current), recent)

	// Footfall peaks lag the current signal by a few hours.
	peak := fmt.Sprintf("%02d:00", (now.Hour()+3)%24)

	return Prediction{
		Entity:            entity,
		CurrentTrend:      current,
		NextHourForecast:  int(math.Round(forecast)),
		Confidence:        math.Max(0.6, math.Min(1, 1-anomaly*0.2)),
		Trend:             trend,
		EstimatedPeakTime: peak,
		AnomalyScore:      anomaly,
	}
}

func anomalyScore(current float64, baseline []int) float64 {
	if len(baseline) == 0 {
		return 0
	}
	var sum float64
	for _, c := range baseline {
		sum += float64(c)
	}
	mean := sum / float64(len(baseline))
	var variance float64
	for _, c := range baseline {
		variance += (float64(c) - mean) * (float64(c) - mean)
	}
	variance /= float64(len(baseline))
	stdDev := math.Sqrt(variance + 0.1)
	z := math.Abs((current - mean) / stdDev)
	return math.Min(z/3, 1)
}

// DetectAnomaly flags values more than 2.5 standard deviations from the
// baseline mean. An empty baseline never flags.
func DetectAnomaly(current float64, baseline []float64) bool {
	if len(baseline) == 0 {
		return false
	}
	var sum float64
	for _, v := range baseline {
		sum += v
	}
	mean := sum / float64(len(baseline))
	var variance float64
	for _, v := range baseline {
		variance += (v - mean) * (v - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(baseline)))
	z := math.Abs((current - mean) / (stdDev + 0.1))
	return z > 2.5
}

// CompareTrends reports period-over-period growth in percent and its
// direction, with a 5% dead band around stable.
func CompareTrends(period1, period2 []int) (growth float64, direction string) {
	var sum1, sum2 int
	for _, v := range period1 {
		sum1 += v
	}
	for _, v := range period2 {
		sum2 += v
	}
	if sum1 == 0 {
		growth = 0
	} else {
		growth = float64(sum2-sum1) / float64(sum1) * 100
	}
	switch {
	case growth > 5:
		direction = "up"
	case growth < -5:
		direction = "down"
	default:
		direction = "stable"
	}
	return growth, direction
}
