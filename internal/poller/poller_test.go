package poller

import (
	"testing"
	"time"

	"sitmon/internal/broadcast"
	"sitmon/internal/ingest"
	"sitmon/internal/models"
	"sitmon/internal/storage"
)

type stubClient struct{}

func (stubClient) FetchArticles(query, timespan string) ([]models.Article, error) {
	return []models.Article{{Title: "Stub", URL: "https://example.com/stub"}}, nil
}

func (stubClient) FetchGeoMentions(query, timespan string) ([]models.GeoPoint, error) {
	return nil, nil
}

func newTestPoller(t *testing.T, interval time.Duration) (*Poller, storage.Storage) {
	t.Helper()

	store, err := storage.NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	err = store.SeedProfiles([]models.QueryProfile{
		{Name: "polled", QueryString: "flood", Timespan: "24h"},
	})
	if err != nil {
		t.Fatalf("Failed to seed profile: %v", err)
	}

	ingestor := ingest.New(store, stubClient{}, broadcast.NewHub())
	return New(ingestor, interval), store
}

func TestPollerStartStop(t *testing.T) {
	poller, _ := newTestPoller(t, time.Hour)

	if poller.IsPolling() {
		t.Error("Expected poller to be idle before Start")
	}

	poller.Start()
	if !poller.IsPolling() {
		t.Error("Expected poller to be running after Start")
	}

	// Double start is a no-op
	poller.Start()

	poller.Stop()
	if poller.IsPolling() {
		t.Error("Expected poller to be stopped after Stop")
	}

	// Double stop is a no-op
	poller.Stop()
}

func TestPollerRunsScheduledCycles(t *testing.T) {
	poller, store := newTestPoller(t, 20*time.Millisecond)

	poller.Start()
	defer poller.Stop()

	deadline := time.After(2 * time.Second)
	for {
		profiles, err := store.ListProfiles()
		if err != nil {
			t.Fatalf("Failed to list profiles: %v", err)
		}
		run, err := store.LatestRun(profiles[0].ID)
		if err == nil && run.Status == models.RunSuccess {
			break
		}

		select {
		case <-deadline:
			t.Fatal("Timed out waiting for a scheduled cycle")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if poller.LastRun().IsZero() {
		t.Error("Expected LastRun to be recorded after a cycle")
	}
}

func TestPollerForceRefresh(t *testing.T) {
	poller, store := newTestPoller(t, time.Hour)

	result, err := poller.ForceRefresh()
	if err != nil {
		t.Fatalf("ForceRefresh failed: %v", err)
	}
	if !result.OK || result.Skipped {
		t.Errorf("Expected completed refresh, got %+v", result)
	}
	if poller.LastRun().IsZero() {
		t.Error("Expected LastRun to be recorded after force refresh")
	}

	profiles, err := store.ListProfiles()
	if err != nil {
		t.Fatalf("Failed to list profiles: %v", err)
	}
	articles, err := store.ListArticles(profiles[0].ID, models.FilterState{}, 10)
	if err != nil {
		t.Fatalf("Failed to list articles: %v", err)
	}
	if len(articles) != 1 {
		t.Errorf("Expected 1 ingested article, got %d", len(articles))
	}
}
