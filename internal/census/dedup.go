package census

import (
	"sync"
	"time"
)

// DefaultDedupWindow suppresses repeat detections of the same entity. The
// upstream transcription pipeline re-hears the same utterance across
// overlapping audio chunks, so this is aggressive on purpose.
const DefaultDedupWindow = 30 * time.Second

// DedupGate rejects an entity that was accepted within the cooldown window.
// Entities are checked independently; state is per recording session and is
// never persisted.
type DedupGate struct {
	mu     sync.Mutex
	last   map[string]int64 // entity -> last accepted, unix ms
	window time.Duration
	now    Clock
}

// NewDedupGate builds a gate. window <= 0 falls back to DefaultDedupWindow;
// now == nil falls back to time.Now.
func NewDedupGate(window time.Duration, now Clock) *DedupGate {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	if now == nil {
		now = time.Now
	}
	return &DedupGate{
		last:   make(map[string]int64),
		window: window,
		now:    now,
	}
}

// ShouldAccept reports whether the entity is outside its cooldown window.
func (g *DedupGate) ShouldAccept(entity string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	lastAccepted, ok := g.last[entity]
	if !ok {
		return true
	}
	return g.now().UnixMilli()-lastAccepted >= g.window.Milliseconds()
}

// MarkAccepted (re)starts the entity's cooldown at now.
func (g *DedupGate) MarkAccepted(entity string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last[entity] = g.now().UnixMilli()
}

// Reset drops all cooldown state. Callers pair this with Store.Clear on a
// full session reset.
func (g *DedupGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = make(map[string]int64)
}
