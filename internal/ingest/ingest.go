// Package ingest runs the transcript pipeline: quality gates on the raw
// speech-to-text output, intent/entity extraction, the dedup gate, and
// finally the demand store, ad board, webhook fan-out and display push.
package ingest

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mall-census-go/internal/census"
	"mall-census-go/internal/extractor"
	"mall-census-go/internal/logger"
	"mall-census-go/internal/types"
	"mall-census-go/internal/webhook"
)

const (
	minTranscriptChars = 4
	confidenceFloor    = 0.5
	fireCooldown       = 10 * time.Second
	maxRecent          = 20
)

// Rejection reasons reported back to the caller.
const (
	ReasonEmpty         = "empty_transcript"
	ReasonTooShort      = "too_short"
	ReasonFiller        = "filler_word"
	ReasonLowContent    = "mostly_stopwords"
	ReasonLowConfidence = "low_confidence"
	ReasonNoise         = "generic_noise"
	ReasonNoEntities    = "no_entities"
	ReasonDuplicate     = "all_entities_in_cooldown"
)

// stopWords are too common to count as content when judging transcript
// quality.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "i": true,
	"you": true, "it": true, "that": true, "this": true,
}

// fillerWords rejected when they make up the entire transcript.
var fillerWords = map[string]bool{
	"um": true, "uh": true, "hmm": true, "ah": true, "oh": true, "uhm": true,
	"mm": true, "the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "yeah": true, "yes": true, "no": true, "okay": true,
	"ok": true, "thank you": true, "thanks": true,
}

// genericEntities that alone do not justify accepting a long transcript;
// background chatter matches them constantly.
var genericEntities = map[string]bool{"Burger": true, "Pizza": true, "Coffee": true}

var fireRe = regexp.MustCompile(`\bfire\b`)

// ScreenPublisher pushes the full ad-screen map to connected displays. The
// pipeline tolerates a nil publisher.
type ScreenPublisher interface {
	PublishScreens(screens map[types.Zone]types.AdScreen)
}

// Input is one gated transcript from the transcription boundary.
type Input struct {
	Zone       types.Zone
	Text       string
	Confidence *float64
	Day        string
}

// Result reports what the pipeline did with a transcript.
type Result struct {
	Accepted  bool     `json:"accepted"`
	Reason    string   `json:"reason,omitempty"`
	Intent    string   `json:"intent,omitempty"`
	Entities  []string `json:"entities,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
	FireAlert bool     `json:"fire_alert,omitempty"`
}

// Pipeline wires the gates and stages together. Hooks and hub may be nil.
type Pipeline struct {
	store *census.Store
	gate  *census.DedupGate
	board *census.AdBoard
	hooks *webhook.Dispatcher
	hub   ScreenPublisher
	now   census.Clock
	log   *logrus.Entry

	// projectionWindow drives the TREND screen recomputation after each
	// accepted detection.
	projectionWindow types.TimeWindow

	mu         sync.Mutex
	recent     []types.Detection
	lastFireAt int64
}

func NewPipeline(store *census.Store, gate *census.DedupGate, board *census.AdBoard, hooks *webhook.Dispatcher, hub ScreenPublisher, now census.Clock) *Pipeline {
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		store:            store,
		gate:             gate,
		board:            board,
		hooks:            hooks,
		hub:              hub,
		now:              now,
		log:              logger.New().WithComponent("ingest"),
		projectionWindow: types.Window10m,
	}
}

// Process runs one transcript through the pipeline.
func (p *Pipeline) Process(in Input) Result {
	text := strings.TrimSpace(in.Text)
	log := p.log.WithField("zone", string(in.Zone))

	if text == "" {
		return Result{Reason: ReasonEmpty}
	}
	if len(text) < minTranscriptChars {
		log.WithField("transcript", text).Debug("transcript too short")
		return Result{Reason: ReasonTooShort}
	}

	lower := strings.ToLower(text)
	words := strings.Fields(text)

	if fillerWords[lower] {
		log.WithField("transcript", text).Debug("filler word transcript")
		return Result{Reason: ReasonFiller}
	}
	if len(words) > 2 && contentWordCount(words) < 2 {
		log.WithField("transcript", text).Debug("mostly stopwords")
		return Result{Reason: ReasonLowContent}
	}
	if in.Confidence != nil && *in.Confidence < confidenceFloor {
		log.WithField("confidence", *in.Confidence).Debug("below confidence floor")
		return Result{Reason: ReasonLowConfidence}
	}

	fired := p.maybeFireAlert(lower, len(words))

	res := extractor.Extract(text)
	if len(res.Entities) == 0 {
		return Result{Reason: ReasonNoEntities, Intent: res.Intent, FireAlert: fired}
	}

	// A long transcript that only matched generic items is almost certainly
	// background chatter, not a real request.
	if len(words) > 10 && allGeneric(res.Entities) {
		log.WithField("transcript", text).Debug("generic entities in long transcript")
		return Result{Reason: ReasonNoise, Intent: res.Intent, FireAlert: fired}
	}

	// Each entity passes the cooldown gate independently. If every entity is
	// suppressed, nothing reaches the store at all.
	var accepted []string
	for _, entity := range res.Entities {
		if p.gate.ShouldAccept(entity) {
			accepted = append(accepted, entity)
		} else {
			log.WithField("entity", entity).Debug("suppressed duplicate detection")
		}
	}
	if len(accepted) == 0 {
		return Result{Reason: ReasonDuplicate, Intent: res.Intent, FireAlert: fired}
	}

	now := p.now()
	timestamp := now.UnixMilli()
	dayKey := census.ResolveDayKey(in.Day, now)

	for _, entity := range accepted {
		p.store.AddEvent(in.Zone, types.Observation{
			Intent:    res.Intent,
			Entity:    entity,
			Timestamp: timestamp,
		}, dayKey)
		p.gate.MarkAccepted(entity)
		p.addRecent(types.Detection{Zone: in.Zone, Intent: res.Intent, Entity: entity, Timestamp: timestamp})
	}

	log.WithFields(logrus.Fields{
		"intent":   res.Intent,
		"entities": strings.Join(accepted, ","),
	}).Info("detection recorded")

	p.refreshScreens(in.Zone, now)
	p.trigger(webhook.EventDetection, map[string]any{
		"zone":     in.Zone,
		"intent":   res.Intent,
		"entities": accepted,
	})

	return Result{
		Accepted:  true,
		Intent:    res.Intent,
		Entities:  accepted,
		Timestamp: timestamp,
		FireAlert: fired,
	}
}

// maybeFireAlert raises an all-zone ALERT on short fire utterances, at most
// once per cooldown.
func (p *Pipeline) maybeFireAlert(lower string, wordCount int) bool {
	if wordCount > 8 || !fireRe.MatchString(lower) {
		return false
	}
	now := p.now().UnixMilli()
	p.mu.Lock()
	if now-p.lastFireAt <= fireCooldown.Milliseconds() {
		p.mu.Unlock()
		return false
	}
	p.lastFireAt = now
	p.mu.Unlock()

	p.log.Warn("fire phrase detected in ambient audio")
	if p.board != nil {
		p.board.SetAlertAll("Fire Alert", "Evacuate to nearest exit")
		p.publishScreens()
	}
	p.trigger(webhook.EventAlert, map[string]any{"kind": "fire"})
	return true
}

// refreshScreens recomputes the zone's TREND screen from current demand and
// pushes the board when it changed.
func (p *Pipeline) refreshScreens(zone types.Zone, now time.Time) {
	if p.board == nil {
		return
	}
	dayKey := census.ResolveDayKey(census.DayToday, now)
	zoneTrends := p.store.TopTrends(zone, p.projectionWindow, dayKey, 0)
	globalTrends := p.store.AllZoneTrends(p.projectionWindow, dayKey, 0)
	if p.board.ApplyTrend(zone, zoneTrends, globalTrends) {
		p.publishScreens()
		p.trigger(webhook.EventTrendChange, map[string]any{
			"zone":   zone,
			"trends": zoneTrends,
		})
	}
}

func (p *Pipeline) publishScreens() {
	if p.hub != nil && p.board != nil {
		p.hub.PublishScreens(p.board.Screens())
	}
}

func (p *Pipeline) trigger(event webhook.Event, data map[string]any) {
	if p.hooks != nil {
		p.hooks.Trigger(event, data)
	}
}

func (p *Pipeline) addRecent(d types.Detection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recent = append([]types.Detection{d}, p.recent...)
	if len(p.recent) > maxRecent {
		p.recent = p.recent[:maxRecent]
	}
}

// Recent returns the newest-first detection feed, at most 20 entries.
func (p *Pipeline) Recent() []types.Detection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.Detection(nil), p.recent...)
}

// Reset clears the session: event log, cooldown map and detections feed
// together, then the ad board back to defaults.
func (p *Pipeline) Reset() {
	p.store.Clear()
	p.gate.Reset()
	p.mu.Lock()
	p.recent = nil
	p.mu.Unlock()
	if p.board != nil {
		p.board.Reset()
		p.publishScreens()
	}
}

func contentWordCount(words []string) int {
	n := 0
	for _, w := range words {
		if !stopWords[strings.ToLower(w)] {
			n++
		}
	}
	return n
}

func allGeneric(entities []string) bool {
	for _, e := range entities {
		if !genericEntities[e] {
			return false
		}
	}
	return true
}
