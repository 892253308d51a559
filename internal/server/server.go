// Package server exposes the census engine over HTTP.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"mall-census-go/internal/analytics"
	"mall-census-go/internal/census"
	"mall-census-go/internal/display"
	"mall-census-go/internal/ingest"
	"mall-census-go/internal/logger"
	"mall-census-go/internal/report"
	"mall-census-go/internal/types"
	"mall-census-go/internal/webhook"
)

type Server struct {
	store    *census.Store
	pipeline *ingest.Pipeline
	board    *census.AdBoard
	hooks    *webhook.Dispatcher
	hub      *display.Hub
	now      census.Clock
	router   *mux.Router
}

func New(store *census.Store, pipeline *ingest.Pipeline, board *census.AdBoard, hooks *webhook.Dispatcher, hub *display.Hub, now census.Clock) *Server {
	if now == nil {
		now = time.Now
	}
	s := &Server{
		store:    store,
		pipeline: pipeline,
		board:    board,
		hooks:    hooks,
		hub:      hub,
		now:      now,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/transcripts", s.handleTranscript).Methods(http.MethodPost)
	v1.HandleFunc("/trends", s.handleTrends).Methods(http.MethodGet)
	v1.HandleFunc("/trends/global", s.handleGlobalTrends).Methods(http.MethodGet)
	v1.HandleFunc("/detections", s.handleDetections).Methods(http.MethodGet)
	v1.HandleFunc("/ads", s.handleAds).Methods(http.MethodGet)
	v1.HandleFunc("/ads/{zone}", s.handleSetAd).Methods(http.MethodPost)
	v1.HandleFunc("/ads/{zone}/reset", s.handleResetAd).Methods(http.MethodPost)
	v1.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)
	v1.HandleFunc("/insights", s.handleInsights).Methods(http.MethodGet)
	v1.HandleFunc("/staffing", s.handleStaffing).Methods(http.MethodGet)
	v1.HandleFunc("/predictions", s.handlePredictions).Methods(http.MethodGet)
	v1.HandleFunc("/export", s.handleExport).Methods(http.MethodGet)
	v1.HandleFunc("/webhooks", s.handleRegisterWebhook).Methods(http.MethodPost)
	v1.HandleFunc("/webhooks", s.handleListWebhooks).Methods(http.MethodGet)
	v1.HandleFunc("/webhooks/{id}", s.handleDeleteWebhook).Methods(http.MethodDelete)
	v1.HandleFunc("/webhooks/{id}/logs", s.handleWebhookLogs).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.hub.Handle)
}

// Handler wraps the router with CORS for the dashboard origin.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return handlers.CORS(
		handlers.AllowedOrigins(allowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-Request-ID"}),
	)(s.router)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryFilters validates the window/day query params. The store itself is
// permissive; the API boundary is where bad enum values become a 400.
func (s *Server) queryFilters(r *http.Request) (types.TimeWindow, string, error) {
	windowParam := r.URL.Query().Get("window")
	if windowParam == "" {
		windowParam = string(types.Window10m)
	}
	window, ok := types.ParseWindow(windowParam)
	if !ok {
		return "", "", fmt.Errorf("unknown window %q", windowParam)
	}
	day := r.URL.Query().Get("day")
	if day == types.DayAll {
		return window, types.DayAll, nil
	}
	return window, census.ResolveDayKey(day, s.now()), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, "ok")
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	reqLog := logger.New().WithRequest(r).WithField("handler", "transcripts")

	var req types.TranscriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		reqLog.WithError(err).Warn("bad transcript payload")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	zone, ok := types.ParseZone(req.Zone)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown zone %q", req.Zone))
		return
	}

	start := time.Now()
	res := s.pipeline.Process(ingest.Input{
		Zone:       zone,
		Text:       req.Text,
		Confidence: req.Confidence,
		Day:        req.Day,
	})
	reqLog.WithField("duration_ms", time.Since(start).Milliseconds()).
		WithField("accepted", res.Accepted).Info("transcript processed")
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	zone, ok := types.ParseZone(r.URL.Query().Get("zone"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown or missing zone")
		return
	}
	window, dayKey, err := s.queryFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"zone":                zone,
		"window":              window,
		"day_key":             dayKey,
		"trends":              s.store.TopTrends(zone, window, dayKey, 0),
		"sample_count":        s.store.ZoneEventCount(zone, window, dayKey),
		"global_sample_count": s.store.EventCountForWindow(window, dayKey),
	})
}

func (s *Server) handleGlobalTrends(w http.ResponseWriter, r *http.Request) {
	window, dayKey, err := s.queryFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"window":       window,
		"day_key":      dayKey,
		"trends":       s.store.AllZoneTrends(window, dayKey, 0),
		"sample_count": s.store.EventCountForWindow(window, dayKey),
	})
}

func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"detections": s.pipeline.Recent()})
}

func (s *Server) handleAds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"screens": s.board.Screens()})
}

type adRequest struct {
	Type    string `json:"type"` // PROMOTION | ALERT
	Title   string `json:"title"`
	Message string `json:"message"`
	Entity  string `json:"entity,omitempty"`
}

func (s *Server) handleSetAd(w http.ResponseWriter, r *http.Request) {
	zone, ok := types.ParseZone(mux.Vars(r)["zone"])
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown zone")
		return
	}
	var req adRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	switch types.AdType(req.Type) {
	case types.AdPromotion:
		s.board.SetPromotion(zone, req.Title, req.Message, req.Entity)
	case types.AdAlert:
		s.board.SetAlert(zone, req.Title, req.Message)
	default:
		writeError(w, http.StatusBadRequest, "type must be PROMOTION or ALERT")
		return
	}
	s.hub.PublishScreens(s.board.Screens())
	s.hooks.Trigger(webhook.EventZoneStatus, map[string]any{
		"zone": zone,
		"type": req.Type,
	})
	screen, _ := s.board.Screen(zone)
	writeJSON(w, http.StatusOK, map[string]any{"zone": zone, "screen": screen})
}

func (s *Server) handleResetAd(w http.ResponseWriter, r *http.Request) {
	zone, ok := types.ParseZone(mux.Vars(r)["zone"])
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown zone")
		return
	}
	s.board.ResetZone(zone)
	s.hub.PublishScreens(s.board.Screens())
	screen, _ := s.board.Screen(zone)
	writeJSON(w, http.StatusOK, map[string]any{"zone": zone, "screen": screen})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	logger.New().WithRequest(r).Info("session reset")
	s.pipeline.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// zoneTrendMap collects per-zone rankings for the analytics consumers.
func (s *Server) zoneTrendMap(window types.TimeWindow, dayKey string) map[types.Zone][]types.TrendEntry {
	out := make(map[types.Zone][]types.TrendEntry, len(types.Zones()))
	for _, z := range types.Zones() {
		out[z] = s.store.TopTrends(z, window, dayKey, 0)
	}
	return out
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	window, dayKey, err := s.queryFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	zoneTrends := s.zoneTrendMap(window, dayKey)
	global := s.store.AllZoneTrends(window, dayKey, 0)
	insights := analytics.GenerateInsights(zoneTrends, global, nil, s.now())
	writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}

func (s *Server) handleStaffing(w http.ResponseWriter, r *http.Request) {
	window, dayKey, err := s.queryFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs := analytics.RecommendStaffing(s.zoneTrendMap(window, dayKey), nil)
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": recs})
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	entity := r.URL.Query().Get("entity")
	if entity == "" {
		writeError(w, http.StatusBadRequest, "missing entity")
		return
	}
	window, dayKey, err := s.queryFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := s.now()
	current := 0
	for _, t := range s.store.AllZoneTrends(window, dayKey, 100) {
		if t.Entity == entity {
			current = t.Count
			break
		}
	}
	pred := analytics.PredictNextHour(entity, current, s.entityBuckets(entity, now), now)
	writeJSON(w, http.StatusOK, pred)
}

// entityBuckets counts the entity's events in six 10-minute bins over the
// last hour, newest bin first, as the prediction baseline.
func (s *Server) entityBuckets(entity string, now time.Time) []int {
	buckets := make([]int, 6)
	nowMs := now.UnixMilli()
	for _, ev := range s.store.Events() {
		if ev.Entity != entity {
			continue
		}
		age := nowMs - ev.Timestamp
		if age < 0 || age >= 60*60*1000 {
			continue
		}
		buckets[age/(10*60*1000)]++
	}
	return buckets
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	reqLog := logger.New().WithRequest(r).WithField("handler", "export")
	window, dayKey, err := s.queryFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	trends := s.store.AllZoneTrends(window, dayKey, 50)

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="census-export.xlsx"`)
	if err := report.Write(w, s.store.Events(), trends); err != nil {
		reqLog.WithError(err).Error("export failed")
	}
}

func (s *Server) handleRegisterWebhook(w http.ResponseWriter, r *http.Request) {
	var ep webhook.Endpoint
	if err := json.NewDecoder(r.Body).Decode(&ep); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if ep.URL == "" {
		writeError(w, http.StatusBadRequest, "missing url")
		return
	}
	registered := s.hooks.Register(ep)
	writeJSON(w, http.StatusCreated, registered)
}

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"endpoints": s.hooks.Endpoints()})
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	s.hooks.Unregister(mux.Vars(r)["id"])
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleWebhookLogs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  s.hooks.Logs(id, 50),
		"stats": s.hooks.EndpointStats(id),
	})
}
