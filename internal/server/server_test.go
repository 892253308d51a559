package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mall-census-go/internal/census"
	"mall-census-go/internal/display"
	"mall-census-go/internal/ingest"
	"mall-census-go/internal/types"
	"mall-census-go/internal/webhook"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := census.NewStore(nil, time.Now)
	gate := census.NewDedupGate(census.DefaultDedupWindow, time.Now)
	board := census.NewAdBoard(nil, time.Now)
	hooks := webhook.NewDispatcher(nil, "", time.Now)
	hub := display.NewHub()
	pipeline := ingest.NewPipeline(store, gate, board, hooks, hub, time.Now)

	srv := httptest.NewServer(New(store, pipeline, board, hooks, hub, time.Now).Handler(nil))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestTranscriptToTrends(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/transcripts", types.TranscriptRequest{
		Zone: "Atrium",
		Text: "where is nike",
	})
	var result ingest.Result
	decode(t, resp, &result)
	if !result.Accepted || result.Intent != "FIND_STORE" {
		t.Fatalf("result = %+v", result)
	}

	var trends struct {
		Trends      []types.TrendEntry `json:"trends"`
		SampleCount int                `json:"sample_count"`
	}
	resp, err := http.Get(srv.URL + "/v1/trends?zone=Atrium&window=10m")
	if err != nil {
		t.Fatalf("get trends: %v", err)
	}
	decode(t, resp, &trends)
	if len(trends.Trends) != 1 || trends.Trends[0].Entity != "Nike" {
		t.Fatalf("trends = %+v", trends)
	}
	if trends.SampleCount != 1 {
		t.Fatalf("sample_count = %d", trends.SampleCount)
	}

	// The detections feed shows the same event.
	var feed struct {
		Detections []types.Detection `json:"detections"`
	}
	resp, err = http.Get(srv.URL + "/v1/detections")
	if err != nil {
		t.Fatalf("get detections: %v", err)
	}
	decode(t, resp, &feed)
	if len(feed.Detections) != 1 || feed.Detections[0].Entity != "Nike" {
		t.Fatalf("detections = %+v", feed.Detections)
	}
}

func TestValidationErrors(t *testing.T) {
	srv := newTestServer(t)
	cases := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"bad zone in transcript", http.MethodPost, "/v1/transcripts", types.TranscriptRequest{Zone: "Roof", Text: "where is nike"}},
		{"missing zone in trends", http.MethodGet, "/v1/trends?window=10m", nil},
		{"bad window", http.MethodGet, "/v1/trends?zone=Atrium&window=5m", nil},
		{"bad window global", http.MethodGet, "/v1/trends/global?window=never", nil},
		{"missing prediction entity", http.MethodGet, "/v1/predictions", nil},
		{"bad ad zone", http.MethodPost, "/v1/ads/Roof", map[string]string{"type": "ALERT"}},
		{"bad ad type", http.MethodPost, "/v1/ads/Atrium", map[string]string{"type": "TREND"}},
	}
	for _, c := range cases {
		var resp *http.Response
		var err error
		if c.method == http.MethodGet {
			resp, err = http.Get(srv.URL + c.path)
			if err != nil {
				t.Fatalf("%s: %v", c.name, err)
			}
		} else {
			resp = postJSON(t, srv.URL+c.path, c.body)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", c.name, resp.StatusCode)
		}
	}
}

func TestAdOverrideLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/ads/Atrium", map[string]string{
		"type":    "PROMOTION",
		"title":   "Sale",
		"message": "20% off",
	})
	var set struct {
		Screen types.AdScreen `json:"screen"`
	}
	decode(t, resp, &set)
	if set.Screen.Type != types.AdPromotion || set.Screen.Title != "Sale" {
		t.Fatalf("screen = %+v", set.Screen)
	}

	var all struct {
		Screens map[types.Zone]types.AdScreen `json:"screens"`
	}
	resp, err := http.Get(srv.URL + "/v1/ads")
	if err != nil {
		t.Fatalf("get ads: %v", err)
	}
	decode(t, resp, &all)
	if all.Screens[types.ZoneAtrium].Type != types.AdPromotion {
		t.Fatalf("screens = %+v", all.Screens)
	}

	resp = postJSON(t, srv.URL+"/v1/ads/Atrium/reset", nil)
	decode(t, resp, &set)
	if set.Screen.Type != types.AdTrend {
		t.Fatalf("reset screen = %+v", set.Screen)
	}
}

func TestResetEndpoint(t *testing.T) {
	srv := newTestServer(t)
	postJSON(t, srv.URL+"/v1/transcripts", types.TranscriptRequest{Zone: "Atrium", Text: "where is nike"}).Body.Close()

	postJSON(t, srv.URL+"/v1/reset", nil).Body.Close()

	var trends struct {
		Trends []types.TrendEntry `json:"trends"`
	}
	resp, err := http.Get(srv.URL + "/v1/trends?zone=Atrium&window=Today")
	if err != nil {
		t.Fatalf("get trends: %v", err)
	}
	decode(t, resp, &trends)
	if len(trends.Trends) != 0 {
		t.Fatalf("trends survived reset: %+v", trends.Trends)
	}
}

func TestPredictionsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	postJSON(t, srv.URL+"/v1/transcripts", types.TranscriptRequest{Zone: "Atrium", Text: "where is nike"}).Body.Close()

	resp, err := http.Get(srv.URL + "/v1/predictions?entity=Nike")
	if err != nil {
		t.Fatalf("get predictions: %v", err)
	}
	var pred struct {
		Entity       string `json:"entity"`
		CurrentTrend int    `json:"current_trend"`
	}
	decode(t, resp, &pred)
	if pred.Entity != "Nike" || pred.CurrentTrend != 1 {
		t.Fatalf("prediction = %+v", pred)
	}
}

func TestWebhookCRUD(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/webhooks", map[string]any{
		"url":    "http://example.invalid/hook",
		"events": []string{"detection"},
		"active": true,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	var ep webhook.Endpoint
	decode(t, resp, &ep)
	if ep.ID == "" || ep.RetryCount != 3 {
		t.Fatalf("endpoint = %+v", ep)
	}

	var list struct {
		Endpoints []webhook.Endpoint `json:"endpoints"`
	}
	resp, err := http.Get(srv.URL + "/v1/webhooks")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	decode(t, resp, &list)
	if len(list.Endpoints) != 1 || list.Endpoints[0].ID != ep.ID {
		t.Fatalf("endpoints = %+v", list.Endpoints)
	}

	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/v1/webhooks/%s", srv.URL, ep.ID), nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	delResp.Body.Close()

	resp, err = http.Get(srv.URL + "/v1/webhooks")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	decode(t, resp, &list)
	if len(list.Endpoints) != 0 {
		t.Fatalf("endpoint survived delete: %+v", list.Endpoints)
	}

	// Missing URL is rejected.
	resp = postJSON(t, srv.URL+"/v1/webhooks", map[string]any{"events": []string{"alert"}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("register without url: status = %d", resp.StatusCode)
	}
}

func TestExportEndpoint(t *testing.T) {
	srv := newTestServer(t)
	postJSON(t, srv.URL+"/v1/transcripts", types.TranscriptRequest{Zone: "Atrium", Text: "where is nike"}).Body.Close()

	resp, err := http.Get(srv.URL + "/v1/export")
	if err != nil {
		t.Fatalf("get export: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestInsightsAndStaffing(t *testing.T) {
	srv := newTestServer(t)
	postJSON(t, srv.URL+"/v1/transcripts", types.TranscriptRequest{Zone: "Atrium", Text: "where is lululemon"}).Body.Close()

	var staffing struct {
		Recommendations []json.RawMessage `json:"recommendations"`
	}
	resp, err := http.Get(srv.URL + "/v1/staffing")
	if err != nil {
		t.Fatalf("get staffing: %v", err)
	}
	decode(t, resp, &staffing)
	if len(staffing.Recommendations) != len(types.Zones()) {
		t.Fatalf("expected one recommendation per zone, got %d", len(staffing.Recommendations))
	}

	resp, err = http.Get(srv.URL + "/v1/insights")
	if err != nil {
		t.Fatalf("get insights: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("insights status = %d", resp.StatusCode)
	}
}
