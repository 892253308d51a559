package census

import (
	"testing"

	"mall-census-go/internal/storage"
	"mall-census-go/internal/types"
)

func trendList(entities ...string) []types.TrendEntry {
	out := make([]types.TrendEntry, 0, len(entities))
	for i, e := range entities {
		out = append(out, types.TrendEntry{Entity: e, Count: len(entities) - i, LastSeen: 1000})
	}
	return out
}

func TestSelectTopEntity(t *testing.T) {
	if e, ok := SelectTopEntity(trendList("Nike"), trendList("Starbucks")); !ok || e != "Nike" {
		t.Fatalf("zone winner must take priority, got %q ok=%v", e, ok)
	}
	if e, ok := SelectTopEntity(nil, trendList("Starbucks")); !ok || e != "Starbucks" {
		t.Fatalf("empty zone falls back to global, got %q ok=%v", e, ok)
	}
	if _, ok := SelectTopEntity(nil, nil); ok {
		t.Fatalf("no data must select nothing")
	}
}

func TestApplyTrendUpdatesScreen(t *testing.T) {
	b := NewAdBoard(nil, fixedClock)

	if !b.ApplyTrend(types.ZoneAtrium, trendList("Nike"), nil) {
		t.Fatalf("new entity must change the screen")
	}
	screen, ok := b.Screen(types.ZoneAtrium)
	if !ok || screen.Type != types.AdTrend || screen.Entity != "Nike" {
		t.Fatalf("unexpected screen %+v", screen)
	}
	if screen.Message != "Nike is #1 right now" {
		t.Fatalf("unexpected message %q", screen.Message)
	}

	// Same winner: no churn.
	if b.ApplyTrend(types.ZoneAtrium, trendList("Nike"), nil) {
		t.Fatalf("unchanged entity must not rewrite the screen")
	}
}

func TestOverridesStickUntilReset(t *testing.T) {
	b := NewAdBoard(nil, fixedClock)
	b.SetPromotion(types.ZoneAtrium, "Sale", "20% off at Nike", "Nike")

	if b.ApplyTrend(types.ZoneAtrium, trendList("Starbucks"), nil) {
		t.Fatalf("trend recomputation must not displace a promotion")
	}
	screen, _ := b.Screen(types.ZoneAtrium)
	if screen.Type != types.AdPromotion || screen.Title != "Sale" {
		t.Fatalf("promotion lost: %+v", screen)
	}

	b.ResetZone(types.ZoneAtrium)
	if !b.ApplyTrend(types.ZoneAtrium, trendList("Starbucks"), nil) {
		t.Fatalf("reset zone must be trend-eligible again")
	}
}

func TestSetAlertAll(t *testing.T) {
	b := NewAdBoard(nil, fixedClock)
	b.SetAlertAll("Fire Alert", "Evacuate to nearest exit")
	for _, z := range types.Zones() {
		screen, ok := b.Screen(z)
		if !ok || screen.Type != types.AdAlert {
			t.Fatalf("zone %s missing alert: %+v", z, screen)
		}
	}
}

func TestAdBoardDefaultsAndPersistence(t *testing.T) {
	kv := storage.NewMemory()

	first := NewAdBoard(kv, fixedClock)
	screen, ok := first.Screen(types.ZoneFoodCourt)
	if !ok || screen.Entity != "Burger King" {
		t.Fatalf("expected seeded food court default, got %+v", screen)
	}
	first.SetPromotion(types.ZoneEntrance, "Welcome", "Grand opening today", "")

	second := NewAdBoard(kv, fixedClock)
	restored, _ := second.Screen(types.ZoneEntrance)
	if restored.Type != types.AdPromotion || restored.Title != "Welcome" {
		t.Fatalf("promotion must survive restart, got %+v", restored)
	}
}

func TestAdBoardGarbledBlobFallsBackToDefaults(t *testing.T) {
	kv := storage.NewMemory()
	if err := kv.Set("census.ads.v1", []byte("nope")); err != nil {
		t.Fatalf("seed kv: %v", err)
	}
	b := NewAdBoard(kv, fixedClock)
	if len(b.Screens()) != len(types.Zones()) {
		t.Fatalf("expected full default board, got %+v", b.Screens())
	}
}
