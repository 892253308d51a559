package census

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mall-census-go/internal/logger"
	"mall-census-go/internal/storage"
	"mall-census-go/internal/types"
)

const adsKey = "census.ads.v1"

// SelectTopEntity picks the single entity representing a zone's state: the
// zone's top ranked entry, else the global top entry, else nothing. Because
// ranking breaks count ties by recency, the pick is stable across
// recomputations.
func SelectTopEntity(zoneTrends, globalTrends []types.TrendEntry) (string, bool) {
	if len(zoneTrends) > 0 {
		return zoneTrends[0].Entity, true
	}
	if len(globalTrends) > 0 {
		return globalTrends[0].Entity, true
	}
	return "", false
}

// AdBoard holds the displayed screen per zone. TREND screens are derived and
// may be overwritten by recomputation; PROMOTION and ALERT screens are manual
// overrides and stick until explicitly reset. Screens persist across
// restarts, best effort.
type AdBoard struct {
	mu      sync.Mutex
	screens map[types.Zone]types.AdScreen
	kv      storage.KV
	now     Clock
	log     *logrus.Entry
}

// NewAdBoard restores persisted screens, falling back to seeded defaults on
// a missing or unreadable blob.
func NewAdBoard(kv storage.KV, now Clock) *AdBoard {
	if now == nil {
		now = time.Now
	}
	b := &AdBoard{
		kv:  kv,
		now: now,
		log: logger.New().WithComponent("census.adboard"),
	}
	b.screens = b.load()
	return b
}

func (b *AdBoard) defaults() map[types.Zone]types.AdScreen {
	ts := b.now().UnixMilli()
	return map[types.Zone]types.AdScreen{
		types.ZoneFoodCourt: {Type: types.AdTrend, Title: "Trending", Message: "Burger King is #1", Entity: "Burger King", UpdatedAt: ts},
		types.ZoneAtrium:    {Type: types.AdTrend, Title: "Trending", Message: "Auntie Anne's is rising", Entity: "Auntie Anne's", UpdatedAt: ts},
		types.ZoneWestWing:  {Type: types.AdTrend, Title: "Trending", Message: "Coffee demand spikes", Entity: "Coffee", UpdatedAt: ts},
		types.ZoneEntrance:  {Type: types.AdTrend, Title: "Trending", Message: "Pizza interest up", Entity: "Pizza", UpdatedAt: ts},
	}
}

func (b *AdBoard) load() map[types.Zone]types.AdScreen {
	if b.kv == nil {
		return b.defaults()
	}
	raw, ok, err := b.kv.Get(adsKey)
	if err != nil || !ok {
		return b.defaults()
	}
	var screens map[types.Zone]types.AdScreen
	if err := json.Unmarshal(raw, &screens); err != nil || len(screens) == 0 {
		b.log.Warn("discarding unreadable ad screens")
		return b.defaults()
	}
	return screens
}

// persist runs with the lock held.
func (b *AdBoard) persist() {
	if b.kv == nil {
		return
	}
	raw, err := json.Marshal(b.screens)
	if err != nil {
		return
	}
	if err := b.kv.Set(adsKey, raw); err != nil {
		b.log.WithError(err).Debug("ad screens persist failed")
	}
}

// Screens returns a copy of the current zone -> screen map.
func (b *AdBoard) Screens() map[types.Zone]types.AdScreen {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[types.Zone]types.AdScreen, len(b.screens))
	for z, s := range b.screens {
		out[z] = s
	}
	return out
}

// Screen returns one zone's screen.
func (b *AdBoard) Screen(zone types.Zone) (types.AdScreen, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.screens[zone]
	return s, ok
}

// ApplyTrend recomputes a zone's TREND screen from ranked trends. It reports
// whether the screen changed: a pending PROMOTION or ALERT override always
// wins, and no qualifying entity leaves the screen untouched.
func (b *AdBoard) ApplyTrend(zone types.Zone, zoneTrends, globalTrends []types.TrendEntry) bool {
	entity, ok := SelectTopEntity(zoneTrends, globalTrends)
	if !ok {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	existing, has := b.screens[zone]
	if has && existing.Type != types.AdTrend {
		return false
	}
	if has && existing.Type == types.AdTrend && existing.Entity == entity {
		return false
	}
	b.screens[zone] = types.AdScreen{
		Type:      types.AdTrend,
		Title:     "Trending",
		Message:   fmt.Sprintf("%s is #1 right now", entity),
		Entity:    entity,
		UpdatedAt: b.now().UnixMilli(),
	}
	b.persist()
	return true
}

// SetPromotion pins a manual promotion on a zone. It stays until reset.
func (b *AdBoard) SetPromotion(zone types.Zone, title, message, entity string) {
	b.set(zone, types.AdScreen{
		Type:    types.AdPromotion,
		Title:   title,
		Message: message,
		Entity:  entity,
	})
}

// SetAlert raises an alert on a zone. It stays until reset.
func (b *AdBoard) SetAlert(zone types.Zone, title, message string) {
	b.set(zone, types.AdScreen{
		Type:    types.AdAlert,
		Title:   title,
		Message: message,
	})
}

// SetAlertAll raises the same alert on every zone.
func (b *AdBoard) SetAlertAll(title, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts := b.now().UnixMilli()
	for _, z := range types.Zones() {
		b.screens[z] = types.AdScreen{
			Type:      types.AdAlert,
			Title:     title,
			Message:   message,
			UpdatedAt: ts,
		}
	}
	b.persist()
}

func (b *AdBoard) set(zone types.Zone, screen types.AdScreen) {
	b.mu.Lock()
	defer b.mu.Unlock()
	screen.UpdatedAt = b.now().UnixMilli()
	b.screens[zone] = screen
	b.persist()
}

// ResetZone clears any override on a zone back to its seeded default, making
// it eligible for trend recomputation again.
func (b *AdBoard) ResetZone(zone types.Zone) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.screens[zone] = b.defaults()[zone]
	b.persist()
}

// Reset restores every zone to its seeded default.
func (b *AdBoard) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.screens = b.defaults()
	b.persist()
}
