// Package webhook fans census events out to registered HTTP endpoints.
// Delivery is best effort: retries with backoff, then a failure log entry;
// nothing propagates back into the engine.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mall-census-go/internal/logger"
	"mall-census-go/internal/storage"
)

const (
	endpointsKey = "census.webhooks.v1"
	maxLogs      = 1000
)

// Event names an occurrence endpoints can subscribe to.
type Event string

const (
	EventDetection   Event = "detection"
	EventTrendChange Event = "trend_change"
	EventAnomaly     Event = "anomaly"
	EventAlert       Event = "alert"
	EventInsight     Event = "insight"
	EventZoneStatus  Event = "zone_status"
)

// Endpoint is a registered webhook target. RetryDelayMs is the fixed wait
// between attempts; RetryCount bounds total attempts.
type Endpoint struct {
	ID           string            `json:"id"`
	URL          string            `json:"url"`
	Events       []Event           `json:"events"`
	Active       bool              `json:"active"`
	Headers      map[string]string `json:"headers,omitempty"`
	RetryCount   int               `json:"retry_count"`
	RetryDelayMs int64             `json:"retry_delay_ms"`
	TimeoutMs    int64             `json:"timeout_ms"`
}

func (e Endpoint) subscribes(event Event) bool {
	for _, ev := range e.Events {
		if ev == event {
			return true
		}
	}
	return false
}

// Payload is the JSON body POSTed to endpoints.
type Payload struct {
	Event     Event          `json:"event"`
	Timestamp int64          `json:"timestamp"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data"`
}

// DeliveryLog records the final outcome of one delivery.
type DeliveryLog struct {
	ID         string `json:"id"`
	EndpointID string `json:"endpoint_id"`
	Event      Event  `json:"event"`
	Status     string `json:"status"` // success | failed
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	DurationMs int64  `json:"duration_ms"`
}

// Stats summarizes delivery history for one endpoint.
type Stats struct {
	Total         int     `json:"total"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	LastAttempt   int64   `json:"last_attempt,omitempty"`
}

// Dispatcher owns the endpoint registry and the delivery log ring. The
// registry persists to the KV store; logs are in-memory only.
type Dispatcher struct {
	mu        sync.Mutex
	endpoints map[string]Endpoint
	logs      []DeliveryLog
	kv        storage.KV
	secret    []byte
	now       func() time.Time
	log       *logrus.Entry
}

// NewDispatcher loads persisted endpoints. secret signs payloads; empty
// disables signing. kv may be nil.
func NewDispatcher(kv storage.KV, secret string, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	d := &Dispatcher{
		endpoints: make(map[string]Endpoint),
		kv:        kv,
		secret:    []byte(secret),
		now:       now,
		log:       logger.New().WithComponent("webhook"),
	}
	d.load()
	return d
}

func (d *Dispatcher) load() {
	if d.kv == nil {
		return
	}
	raw, ok, err := d.kv.Get(endpointsKey)
	if err != nil || !ok {
		return
	}
	var eps []Endpoint
	if err := json.Unmarshal(raw, &eps); err != nil {
		d.log.WithError(err).Warn("discarding unreadable webhook registry")
		return
	}
	for _, ep := range eps {
		d.endpoints[ep.ID] = ep
	}
}

// persist runs with the lock held.
func (d *Dispatcher) persist() {
	if d.kv == nil {
		return
	}
	eps := make([]Endpoint, 0, len(d.endpoints))
	for _, ep := range d.endpoints {
		eps = append(eps, ep)
	}
	sort.Slice(eps, func(i, j int) bool { return eps[i].ID < eps[j].ID })
	raw, err := json.Marshal(eps)
	if err != nil {
		return
	}
	if err := d.kv.Set(endpointsKey, raw); err != nil {
		d.log.WithError(err).Debug("webhook registry persist failed")
	}
}

// Register stores a new endpoint and returns it with its assigned ID.
func (d *Dispatcher) Register(ep Endpoint) Endpoint {
	if ep.RetryCount <= 0 {
		ep.RetryCount = 3
	}
	if ep.RetryDelayMs <= 0 {
		ep.RetryDelayMs = 1000
	}
	if ep.TimeoutMs <= 0 {
		ep.TimeoutMs = 10000
	}
	ep.ID = uuid.NewString()
	d.mu.Lock()
	d.endpoints[ep.ID] = ep
	d.persist()
	d.mu.Unlock()
	return ep
}

// Unregister removes an endpoint. Unknown IDs are a no-op.
func (d *Dispatcher) Unregister(id string) {
	d.mu.Lock()
	delete(d.endpoints, id)
	d.persist()
	d.mu.Unlock()
}

// Endpoints lists the registry, ordered by ID.
func (d *Dispatcher) Endpoints() []Endpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Endpoint, 0, len(d.endpoints))
	for _, ep := range d.endpoints {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Trigger delivers the event to every active subscribed endpoint in
// parallel and waits for all deliveries to settle.
func (d *Dispatcher) Trigger(event Event, data map[string]any) {
	payload := Payload{
		Event:     event,
		Timestamp: d.now().UnixMilli(),
		Source:    "census",
		Data:      data,
	}

	d.mu.Lock()
	var targets []Endpoint
	for _, ep := range d.endpoints {
		if ep.Active && ep.subscribes(event) {
			targets = append(targets, ep)
		}
	}
	d.mu.Unlock()

	var wg sync.WaitGroup
	for _, ep := range targets {
		wg.Add(1)
		go func(ep Endpoint) {
			defer wg.Done()
			d.deliver(ep, payload)
		}(ep)
	}
	wg.Wait()
}

func (d *Dispatcher) deliver(ep Endpoint, payload Payload) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}

	start := d.now()
	var statusCode int

	op := func() error {
		req, err := http.NewRequest(http.MethodPost, ep.URL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if len(d.secret) > 0 {
			req.Header.Set("X-Census-Signature", d.sign(body))
		}
		for k, v := range ep.Headers {
			req.Header.Set(k, v)
		}

		client := &http.Client{Timeout: time.Duration(ep.TimeoutMs) * time.Millisecond}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		statusCode = resp.StatusCode
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		return fmt.Errorf("http %d", resp.StatusCode)
	}

	bo := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(time.Duration(ep.RetryDelayMs)*time.Millisecond),
		uint64(ep.RetryCount-1),
	)
	err = backoff.Retry(op, bo)

	entry := DeliveryLog{
		ID:         uuid.NewString(),
		EndpointID: ep.ID,
		Event:      payload.Event,
		Timestamp:  d.now().UnixMilli(),
		DurationMs: d.now().Sub(start).Milliseconds(),
		StatusCode: statusCode,
	}
	if err != nil {
		entry.Status = "failed"
		entry.Error = err.Error()
		d.log.WithFields(logrus.Fields{
			"endpoint": ep.ID,
			"event":    string(payload.Event),
			"error":    err.Error(),
		}).Warn("webhook delivery failed")
	} else {
		entry.Status = "success"
	}
	d.appendLog(entry)
}

func (d *Dispatcher) sign(body []byte) string {
	mac := hmac.New(sha256.New, d.secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (d *Dispatcher) appendLog(entry DeliveryLog) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logs = append([]DeliveryLog{entry}, d.logs...)
	if len(d.logs) > maxLogs {
		d.logs = d.logs[:maxLogs]
	}
}

// Logs returns newest-first delivery logs, optionally filtered by endpoint.
func (d *Dispatcher) Logs(endpointID string, limit int) []DeliveryLog {
	if limit <= 0 {
		limit = 50
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []DeliveryLog
	for _, l := range d.logs {
		if endpointID != "" && l.EndpointID != endpointID {
			continue
		}
		out = append(out, l)
		if len(out) == limit {
			break
		}
	}
	return out
}

// EndpointStats summarizes delivery history for one endpoint.
func (d *Dispatcher) EndpointStats(endpointID string) Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	var st Stats
	var totalDuration int64
	for _, l := range d.logs {
		if l.EndpointID != endpointID {
			continue
		}
		st.Total++
		totalDuration += l.DurationMs
		if l.Status == "success" {
			st.Successful++
		} else {
			st.Failed++
		}
		if l.Timestamp > st.LastAttempt {
			st.LastAttempt = l.Timestamp
		}
	}
	if st.Total > 0 {
		st.SuccessRate = float64(st.Successful) / float64(st.Total) * 100
		st.AvgDurationMs = float64(totalDuration) / float64(st.Total)
	}
	return st
}

// SlackTemplate pre-configures an endpoint for a Slack incoming webhook.
func SlackTemplate(url string) Endpoint {
	return Endpoint{
		URL:          url,
		Events:       []Event{EventAlert, EventInsight, EventAnomaly},
		Active:       true,
		Headers:      map[string]string{"X-Integration": "slack"},
		RetryCount:   3,
		RetryDelayMs: 1000,
		TimeoutMs:    10000,
	}
}

// DiscordTemplate pre-configures an endpoint for a Discord webhook.
func DiscordTemplate(url string) Endpoint {
	return Endpoint{
		URL:          url,
		Events:       []Event{EventAlert, EventInsight},
		Active:       true,
		Headers:      map[string]string{"X-Integration": "discord"},
		RetryCount:   3,
		RetryDelayMs: 1000,
		TimeoutMs:    10000,
	}
}

// GenericTemplate subscribes a plain REST endpoint to the common events.
func GenericTemplate(url string) Endpoint {
	return Endpoint{
		URL:          url,
		Events:       []Event{EventDetection, EventTrendChange, EventAlert, EventInsight},
		Active:       true,
		RetryCount:   3,
		RetryDelayMs: 1000,
		TimeoutMs:    10000,
	}
}
