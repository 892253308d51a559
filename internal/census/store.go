// Package census holds the demand aggregation engine: a bounded, persisted
// event log with windowed, day-filtered trend ranking, the dedup cooldown
// gate in front of it, and the per-zone ad board derived from its output.
package census

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mall-census-go/internal/logger"
	"mall-census-go/internal/storage"
	"mall-census-go/internal/types"
)

const (
	// maxEvents bounds the event log; the oldest events are dropped first.
	maxEvents = 500

	eventsKey = "census.events.v1"
)

// Clock supplies wall-clock time. All window and cooldown logic runs against
// it so tests can pin time.
type Clock func() time.Time

// Store is the demand aggregation engine. All methods are safe for
// concurrent use. Persistence is best effort: a failing or absent KV never
// fails an operation.
type Store struct {
	mu     sync.RWMutex
	events []types.DetectionEvent
	kv     storage.KV
	now    Clock
	log    *logrus.Entry
}

// NewStore restores the event log from kv when a readable blob is present
// and starts empty otherwise. kv may be nil for a purely in-memory store.
func NewStore(kv storage.KV, now Clock) *Store {
	if now == nil {
		now = time.Now
	}
	s := &Store{
		kv:  kv,
		now: now,
		log: logger.New().WithComponent("census.store"),
	}
	s.restore()
	return s
}

func (s *Store) restore() {
	if s.kv == nil {
		return
	}
	raw, ok, err := s.kv.Get(eventsKey)
	if err != nil || !ok {
		return
	}
	var events []types.DetectionEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		// Garbled blob: start empty rather than fail.
		s.log.WithError(err).Warn("discarding unreadable event log")
		return
	}
	s.events = events
}

// persist writes the log to the KV slot. Callers hold the write lock.
func (s *Store) persist() {
	if s.kv == nil {
		return
	}
	raw, err := json.Marshal(s.events)
	if err != nil {
		return
	}
	if err := s.kv.Set(eventsKey, raw); err != nil {
		s.log.WithError(err).Debug("event log persist failed")
	}
}

// AddEvent appends one detection. Zone and entity are stored as given; the
// engine does not validate them. When the log grows past the bound, the
// oldest events are truncated away.
func (s *Store) AddEvent(zone types.Zone, obs types.Observation, dayKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, types.DetectionEvent{
		Intent:    obs.Intent,
		Entity:    obs.Entity,
		Timestamp: obs.Timestamp,
		Zone:      zone,
		DayKey:    dayKey,
	})
	if len(s.events) > maxEvents {
		s.events = append([]types.DetectionEvent(nil), s.events[len(s.events)-maxEvents:]...)
	}
	s.persist()
}

func isInDay(ev types.DetectionEvent, dayKey string) bool {
	if dayKey == types.DayAll {
		return true
	}
	return ev.DayKey == dayKey
}

// isInWindow evaluates the window predicate against now. Noon-5pm is scoped
// to today's calendar date at evaluation time regardless of any day filter;
// that asymmetry is intentional.
func isInWindow(timestamp int64, window types.TimeWindow, now time.Time) bool {
	switch window {
	case types.Window10m:
		return timestamp >= now.UnixMilli()-10*60*1000
	case types.Window1h:
		return timestamp >= now.UnixMilli()-60*60*1000
	case types.WindowToday:
		return timestamp >= startOfDay(now).UnixMilli()
	default: // Noon-5pm
		if timestamp < startOfDay(now).UnixMilli() {
			return false
		}
		et := time.UnixMilli(timestamp).In(now.Location())
		hour := float64(et.Hour()) + float64(et.Minute())/60
		return hour >= 12 && hour < 17
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func (s *Store) filtered(match func(types.DetectionEvent) bool) []types.DetectionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.DetectionEvent
	for _, ev := range s.events {
		if match(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// rank groups events by entity, accumulating count and the latest timestamp,
// then orders by count descending with most-recently-seen breaking ties.
func rank(events []types.DetectionEvent, topN int) []types.TrendEntry {
	byEntity := make(map[string]int)
	var entries []types.TrendEntry
	for _, ev := range events {
		idx, ok := byEntity[ev.Entity]
		if !ok {
			byEntity[ev.Entity] = len(entries)
			entries = append(entries, types.TrendEntry{Entity: ev.Entity, LastSeen: ev.Timestamp})
			idx = len(entries) - 1
		}
		entries[idx].Count++
		if ev.Timestamp > entries[idx].LastSeen {
			entries[idx].LastSeen = ev.Timestamp
		}
	}
	// Stable so equal (count, lastSeen) pairs keep first-seen order.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].LastSeen > entries[j].LastSeen
	})
	if len(entries) > topN {
		entries = entries[:topN]
	}
	return entries
}

// TopTrends returns the ranked entities for one zone. topN <= 0 defaults
// to 3.
func (s *Store) TopTrends(zone types.Zone, window types.TimeWindow, dayKey string, topN int) []types.TrendEntry {
	if topN <= 0 {
		topN = 3
	}
	now := s.now()
	events := s.filtered(func(ev types.DetectionEvent) bool {
		return ev.Zone == zone && isInWindow(ev.Timestamp, window, now) && isInDay(ev, dayKey)
	})
	return rank(events, topN)
}

// AllZoneTrends ranks entities across every zone. topN <= 0 defaults to 5.
func (s *Store) AllZoneTrends(window types.TimeWindow, dayKey string, topN int) []types.TrendEntry {
	if topN <= 0 {
		topN = 5
	}
	now := s.now()
	events := s.filtered(func(ev types.DetectionEvent) bool {
		return isInWindow(ev.Timestamp, window, now) && isInDay(ev, dayKey)
	})
	return rank(events, topN)
}

// ZoneEventCount returns the raw sample size backing a zone query. Callers
// should treat very low counts as low-confidence trends.
func (s *Store) ZoneEventCount(zone types.Zone, window types.TimeWindow, dayKey string) int {
	now := s.now()
	return len(s.filtered(func(ev types.DetectionEvent) bool {
		return ev.Zone == zone && isInWindow(ev.Timestamp, window, now) && isInDay(ev, dayKey)
	}))
}

// EventCountForWindow returns the raw sample size across all zones.
func (s *Store) EventCountForWindow(window types.TimeWindow, dayKey string) int {
	now := s.now()
	return len(s.filtered(func(ev types.DetectionEvent) bool {
		return isInWindow(ev.Timestamp, window, now) && isInDay(ev, dayKey)
	}))
}

// EventCount returns the total log length.
func (s *Store) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Events returns a snapshot copy of the full log, oldest first.
func (s *Store) Events() []types.DetectionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.DetectionEvent(nil), s.events...)
}

// Clear empties the log and the persisted slot. The dedup gate is separate
// state; a full reset clears both.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	if s.kv != nil {
		if err := s.kv.Delete(eventsKey); err != nil {
			s.log.WithError(err).Debug("event log clear failed")
		}
	}
}
