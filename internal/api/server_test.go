package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sitmon/internal/broadcast"
	"sitmon/internal/cache"
	"sitmon/internal/config"
	"sitmon/internal/gdelt"
	"sitmon/internal/ingest"
	"sitmon/internal/models"
	"sitmon/internal/poller"
	"sitmon/internal/storage"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	server   *Server
	store    storage.Storage
	hub      *broadcast.Hub
	ingestor *ingest.Ingestor
}

// newTestServer wires a full server against a fake upstream. Rate limiting
// is off so tests can hammer the router.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := storage.NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	err = store.SeedProfiles([]models.QueryProfile{
		{Name: "World Breaking", QueryString: "war OR flood", Timespan: "24h"},
		{Name: "Cyber", QueryString: "ransomware", Timespan: "7d"},
	})
	if err != nil {
		t.Fatalf("Failed to seed profiles: %v", err)
	}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/doc":
			w.Write([]byte(`{"articles": [{"title": "Story", "url": "https://example.com/story", "language": "English", "seendate": "20240131T120000Z"}]}`))
		case "/geo":
			w.Write([]byte(`{"features": [{"geometry": {"coordinates": [-122.419416, 37.774929]}, "properties": {"name": "San Francisco", "count": 4, "url": "https://example.com/story"}}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)

	client := gdelt.NewClient(cache.NewManager(time.Minute), gdelt.Options{
		DocURL:         upstream.URL + "/doc",
		GeoURL:         upstream.URL + "/geo",
		RetryAttempts:  1,
		RetryBaseDelay: time.Millisecond,
	})

	hub := broadcast.NewHub()
	ingestor := ingest.New(store, client, hub)
	backgroundPoller := poller.New(ingestor, time.Hour)

	cfg := &config.Config{
		Port:              8080,
		HeartbeatInterval: 50 * time.Millisecond,
		EnableSwagger:     false,
		Security: config.SecurityConfig{
			EnableRateLimit:       false,
			EnableCORS:            true,
			AllowedOrigins:        []string{"*"},
			EnableSecurityHeaders: true,
			MaxRequestSize:        1 << 20,
			EnableRequestID:       true,
		},
	}

	server := NewServer(store, ingestor, hub, backgroundPoller, cfg)
	return &testServer{server: server, store: store, hub: hub, ingestor: ingestor}
}

func (ts *testServer) request(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.server.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", body["status"])
	}
	if body["service"] != "situation-monitor" {
		t.Errorf("Expected service 'situation-monitor', got %v", body["service"])
	}
	if body["poller_active"] != false {
		t.Errorf("Expected poller_active false, got %v", body["poller_active"])
	}
}

func TestGetProfiles(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, "GET", "/api/v1/profiles", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["count"] != float64(2) {
		t.Errorf("Expected count 2, got %v", body["count"])
	}

	profiles, ok := body["profiles"].([]interface{})
	if !ok || len(profiles) != 2 {
		t.Fatalf("Expected 2 profiles, got %v", body["profiles"])
	}

	first := profiles[0].(map[string]interface{})
	if first["name"] != "World Breaking" {
		t.Errorf("Expected oldest profile first, got %v", first["name"])
	}
}

func TestTriggerRefresh(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, "POST", "/api/v1/refresh", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["ok"] != true {
		t.Errorf("Expected ok true, got %v", body["ok"])
	}
	if body["skipped"] != false {
		t.Errorf("Expected skipped false, got %v", body["skipped"])
	}
	if body["refreshedAt"] == "" || body["refreshedAt"] == nil {
		t.Error("Expected refreshedAt to be set")
	}
}

func TestTriggerRefreshSingleProfile(t *testing.T) {
	ts := newTestServer(t)

	profiles, err := ts.store.ListProfiles()
	if err != nil {
		t.Fatalf("Failed to list profiles: %v", err)
	}

	w := ts.request(t, "POST", "/api/v1/refresh", `{"profileId": "`+profiles[1].ID+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	// Only the requested profile got a run
	if _, err := ts.store.LatestRun(profiles[1].ID); err != nil {
		t.Errorf("Expected a run for the requested profile: %v", err)
	}
	if _, err := ts.store.LatestRun(profiles[0].ID); err != storage.ErrNotFound {
		t.Errorf("Expected no run for the other profile, got %v", err)
	}
}

func TestGetMapData(t *testing.T) {
	ts := newTestServer(t)

	if _, err := ts.ingestor.Refresh(""); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	w := ts.request(t, "GET", "/api/v1/map-data", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)

	profile, ok := body["profile"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected default profile in response, got %v", body["profile"])
	}
	if profile["name"] != "World Breaking" {
		t.Errorf("Expected oldest profile as default, got %v", profile["name"])
	}

	clusters, ok := body["clusters"].([]interface{})
	if !ok || len(clusters) != 1 {
		t.Fatalf("Expected 1 cluster, got %v", body["clusters"])
	}

	byLocation, ok := body["articlesByLocation"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected articlesByLocation map, got %v", body["articlesByLocation"])
	}
	key := gdelt.LocationKey(37.774929, -122.419416)
	if _, ok := byLocation[key]; !ok {
		t.Errorf("Expected articles grouped under '%s', got keys %v", key, byLocation)
	}

	health, ok := body["health"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected run health in response, got %v", body["health"])
	}
	if health["status"] != models.RunSuccess {
		t.Errorf("Expected health status 'success', got %v", health["status"])
	}
}

func TestGetMapData_UnknownProfileReturnsEmptyEnvelope(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, "GET", "/api/v1/map-data?profileId=no-such-id", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["profile"] != nil {
		t.Errorf("Expected nil profile, got %v", body["profile"])
	}
	clusters, ok := body["clusters"].([]interface{})
	if !ok || len(clusters) != 0 {
		t.Errorf("Expected empty clusters array, got %v", body["clusters"])
	}
	if body["health"] != nil {
		t.Errorf("Expected nil health, got %v", body["health"])
	}
}

func TestGetMapData_RejectsMalformedTopN(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, "GET", "/api/v1/map-data?topN=abc", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for non-numeric topN, got %d", w.Code)
	}
}

func TestPollerStatus(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, "GET", "/api/v1/poller/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["is_polling"] != false {
		t.Errorf("Expected is_polling false, got %v", body["is_polling"])
	}
	if body["last_refresh_at"] != "" {
		t.Errorf("Expected empty last_refresh_at before any refresh, got %v", body["last_refresh_at"])
	}

	if _, err := ts.ingestor.Refresh(""); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	body = decodeBody(t, ts.request(t, "GET", "/api/v1/poller/status", ""))
	if body["last_refresh_at"] == "" {
		t.Error("Expected last_refresh_at after a refresh")
	}
}

func TestForceRefresh(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, "POST", "/api/v1/poller/force-refresh", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["ok"] != true || body["skipped"] != false {
		t.Errorf("Expected completed refresh result, got %v", body)
	}
}

func TestStreamDeliversEvents(t *testing.T) {
	ts := newTestServer(t)

	server := httptest.NewServer(ts.server.router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", server.URL+"/api/v1/stream", nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Expected content type 'text/event-stream', got '%s'", got)
	}

	events := make(chan models.StreamEvent, 8)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var event models.StreamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &event); err != nil {
				continue
			}
			events <- event
		}
	}()

	waitFor := func(eventType string) models.StreamEvent {
		t.Helper()
		for {
			select {
			case event := <-events:
				if event.Type == eventType {
					return event
				}
			case <-ctx.Done():
				t.Fatalf("Timed out waiting for '%s' event", eventType)
			}
		}
	}

	connected := waitFor(models.EventConnected)
	if connected.RefreshedAt == "" {
		t.Error("Expected connected event to carry a timestamp")
	}

	// Published events reach the subscriber
	ts.hub.Publish(models.StreamEvent{Type: models.EventUpdate, ProfileID: "p-1"})
	update := waitFor(models.EventUpdate)
	if update.ProfileID != "p-1" {
		t.Errorf("Expected profile id 'p-1', got '%s'", update.ProfileID)
	}

	// Heartbeats keep flowing on the configured interval
	waitFor(models.EventHeartbeat)
}
