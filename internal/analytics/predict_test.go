package analytics

import (
	"testing"
	"time"
)

var predictNow = time.Date(2025, 6, 14, 15, 0, 0, 0, time.UTC)

func TestPredictNextHourStable(t *testing.T) {
	p := PredictNextHour("Nike", 5, []int{5, 5, 5, 5, 5}, predictNow)
	if p.Trend != "stable" {
		t.Fatalf("trend = %q", p.Trend)
	}
	if p.AnomalyScore != 0 {
		t.Fatalf("flat history should score 0 anomaly, got %v", p.AnomalyScore)
	}
	if p.Confidence != 1 {
		t.Fatalf("confidence = %v", p.Confidence)
	}
	if p.EstimatedPeakTime != "18:00" {
		t.Fatalf("peak = %q", p.EstimatedPeakTime)
	}
}

func TestPredictNextHourRising(t *testing.T) {
	p := PredictNextHour("Nike", 10, []int{5, 5, 5, 5, 5}, predictNow)
	if p.Trend != "rising" {
		t.Fatalf("trend = %q", p.Trend)
	}
	if p.AnomalyScore != 1 {
		t.Fatalf("a 2x jump off a flat baseline should saturate, got %v", p.AnomalyScore)
	}
	if p.Confidence != 0.8 {
		t.Fatalf("confidence = %v", p.Confidence)
	}
}

func TestPredictNextHourFalling(t *testing.T) {
	p := PredictNextHour("Nike", 2, []int{5, 5, 5, 5, 5}, predictNow)
	if p.Trend != "falling" {
		t.Fatalf("trend = %q", p.Trend)
	}
}

func TestPredictNextHourEmptyBaseline(t *testing.T) {
	p := PredictNextHour("Nike", 10, nil, predictNow)
	if p.NextHourForecast != 10 {
		t.Fatalf("no history should forecast the current count, got %d", p.NextHourForecast)
	}
	if p.AnomalyScore != 0 {
		t.Fatalf("no baseline means nothing is anomalous, got %v", p.AnomalyScore)
	}
}

func TestDetectAnomaly(t *testing.T) {
	baseline := []float64{5, 5, 5, 5}
	if DetectAnomaly(5, baseline) {
		t.Fatalf("baseline value flagged")
	}
	if !DetectAnomaly(100, baseline) {
		t.Fatalf("20x spike not flagged")
	}
	if DetectAnomaly(100, nil) {
		t.Fatalf("empty baseline must never flag")
	}
}

func TestCompareTrends(t *testing.T) {
	cases := []struct {
		p1, p2     []int
		wantGrowth float64
		wantDir    string
	}{
		{[]int{10}, []int{12}, 20, "up"},
		{[]int{10}, []int{5}, -50, "down"},
		{[]int{10}, []int{10}, 0, "stable"},
		{[]int{100}, []int{104}, 4, "stable"}, // inside the dead band
		{nil, []int{5}, 0, "stable"},          // empty first period
	}
	for _, c := range cases {
		growth, dir := CompareTrends(c.p1, c.p2)
		if growth != c.wantGrowth || dir != c.wantDir {
			t.Fatalf("CompareTrends(%v, %v) = (%v, %q), want (%v, %q)",
				c.p1, c.p2, growth, dir, c.wantGrowth, c.wantDir)
		}
	}
}
