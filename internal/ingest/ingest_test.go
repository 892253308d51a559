package ingest

import (
	"testing"
	"time"

	"mall-census-go/internal/census"
	"mall-census-go/internal/types"
)

type pipelineFixture struct {
	pipeline *Pipeline
	store    *census.Store
	board    *census.AdBoard
	now      *time.Time
}

func newFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	current := time.Date(2025, 6, 14, 15, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }
	store := census.NewStore(nil, clock)
	gate := census.NewDedupGate(census.DefaultDedupWindow, clock)
	board := census.NewAdBoard(nil, clock)
	return &pipelineFixture{
		pipeline: NewPipeline(store, gate, board, nil, nil, clock),
		store:    store,
		board:    board,
		now:      &current,
	}
}

func TestQualityGates(t *testing.T) {
	conf := func(v float64) *float64 { return &v }
	cases := []struct {
		name       string
		text       string
		confidence *float64
		wantReason string
	}{
		{"empty", "   ", nil, ReasonEmpty},
		{"too short", "hi", nil, ReasonTooShort},
		{"filler", "okay", nil, ReasonFiller},
		{"stopwords", "the and it is", nil, ReasonLowContent},
		{"low confidence", "i want a burger", conf(0.3), ReasonLowConfidence},
		{"no entities", "what time does the mall close", nil, ReasonNoEntities},
		{"generic noise", "i think maybe we could possibly get some pizza later today okay", nil, ReasonNoise},
	}
	for _, c := range cases {
		fx := newFixture(t)
		res := fx.pipeline.Process(Input{Zone: types.ZoneAtrium, Text: c.text, Confidence: c.confidence})
		if res.Accepted {
			t.Fatalf("%s: transcript must be rejected", c.name)
		}
		if res.Reason != c.wantReason {
			t.Fatalf("%s: reason = %q, want %q", c.name, res.Reason, c.wantReason)
		}
		if fx.store.EventCount() != 0 {
			t.Fatalf("%s: rejected transcript must not reach the store", c.name)
		}
	}
}

func TestAcceptedDetection(t *testing.T) {
	fx := newFixture(t)
	res := fx.pipeline.Process(Input{Zone: types.ZoneFoodCourt, Text: "I want a burger from Burger King"})
	if !res.Accepted {
		t.Fatalf("expected acceptance, got reason %q", res.Reason)
	}
	if res.Intent != "PRODUCT_INTEREST" {
		t.Fatalf("intent = %q", res.Intent)
	}
	if len(res.Entities) != 2 || res.Entities[0] != "Burger King" || res.Entities[1] != "Burger" {
		t.Fatalf("entities = %v", res.Entities)
	}
	// One event per entity, sharing the transcript's timestamp.
	if fx.store.EventCount() != 2 {
		t.Fatalf("expected 2 events, got %d", fx.store.EventCount())
	}
	events := fx.store.Events()
	if events[0].Timestamp != events[1].Timestamp {
		t.Fatalf("entities of one transcript must share a timestamp")
	}
	if events[0].Zone != types.ZoneFoodCourt {
		t.Fatalf("zone = %q", events[0].Zone)
	}

	recent := fx.pipeline.Recent()
	if len(recent) != 2 || recent[0].Entity != "Burger" {
		t.Fatalf("recent feed must be newest first, got %+v", recent)
	}
}

func TestDedupSuppressesRepeats(t *testing.T) {
	fx := newFixture(t)
	if res := fx.pipeline.Process(Input{Zone: types.ZoneAtrium, Text: "where is nike"}); !res.Accepted {
		t.Fatalf("first detection rejected: %q", res.Reason)
	}

	res := fx.pipeline.Process(Input{Zone: types.ZoneAtrium, Text: "where is nike"})
	if res.Accepted || res.Reason != ReasonDuplicate {
		t.Fatalf("repeat inside cooldown must be suppressed, got %+v", res)
	}
	if fx.store.EventCount() != 1 {
		t.Fatalf("suppressed repeat must not reach the store")
	}

	*fx.now = fx.now.Add(31 * time.Second)
	if res := fx.pipeline.Process(Input{Zone: types.ZoneAtrium, Text: "where is nike"}); !res.Accepted {
		t.Fatalf("detection after cooldown rejected: %q", res.Reason)
	}
}

func TestPartialDedupKeepsFreshEntities(t *testing.T) {
	fx := newFixture(t)
	fx.pipeline.Process(Input{Zone: types.ZoneFoodCourt, Text: "i want a burger"})

	res := fx.pipeline.Process(Input{Zone: types.ZoneFoodCourt, Text: "burger king burger"})
	if !res.Accepted {
		t.Fatalf("fresh entity must pass: %q", res.Reason)
	}
	if len(res.Entities) != 1 || res.Entities[0] != "Burger King" {
		t.Fatalf("only the fresh entity should be recorded, got %v", res.Entities)
	}
}

func TestTrendScreenFollowsDemand(t *testing.T) {
	fx := newFixture(t)
	fx.pipeline.Process(Input{Zone: types.ZoneAtrium, Text: "where is nike"})

	screen, ok := fx.board.Screen(types.ZoneAtrium)
	if !ok || screen.Type != types.AdTrend || screen.Entity != "Nike" {
		t.Fatalf("trend screen should follow the zone winner, got %+v", screen)
	}
}

func TestFireAlert(t *testing.T) {
	fx := newFixture(t)
	res := fx.pipeline.Process(Input{Zone: types.ZoneAtrium, Text: "fire"})
	if !res.FireAlert {
		t.Fatalf("short fire utterance must raise the alert")
	}
	for _, z := range types.Zones() {
		screen, _ := fx.board.Screen(z)
		if screen.Type != types.AdAlert {
			t.Fatalf("zone %s not alerted: %+v", z, screen)
		}
	}

	// Inside the cooldown the alert does not re-fire.
	*fx.now = fx.now.Add(5 * time.Second)
	if res := fx.pipeline.Process(Input{Zone: types.ZoneAtrium, Text: "fire"}); res.FireAlert {
		t.Fatalf("fire alert must respect its cooldown")
	}

	// Long transcripts mentioning fire in passing do not trigger.
	fx2 := newFixture(t)
	long := "the new fall collection looks like it is on fire this season honestly amazing"
	if res := fx2.pipeline.Process(Input{Zone: types.ZoneAtrium, Text: long}); res.FireAlert {
		t.Fatalf("long transcript must not raise the fire alert")
	}
}

func TestResetClearsSession(t *testing.T) {
	fx := newFixture(t)
	fx.pipeline.Process(Input{Zone: types.ZoneAtrium, Text: "where is nike"})
	fx.board.SetPromotion(types.ZoneEntrance, "Sale", "Everything must go", "")

	fx.pipeline.Reset()

	if fx.store.EventCount() != 0 {
		t.Fatalf("reset must clear the event log")
	}
	if len(fx.pipeline.Recent()) != 0 {
		t.Fatalf("reset must clear the detections feed")
	}
	// Cooldown state is gone: the same entity is immediately acceptable.
	if res := fx.pipeline.Process(Input{Zone: types.ZoneAtrium, Text: "where is nike"}); !res.Accepted {
		t.Fatalf("reset must clear cooldowns: %q", res.Reason)
	}
	screen, _ := fx.board.Screen(types.ZoneEntrance)
	if screen.Type == types.AdPromotion {
		t.Fatalf("reset must restore default screens")
	}
}
