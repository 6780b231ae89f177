package ingest

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"sitmon/internal/broadcast"
	"sitmon/internal/models"
	"sitmon/internal/storage"
)

// Only the most recent geo points are indexed and persisted per profile.
const maxGeoPerProfile = 300

// FeedClient is the upstream view the ingestor consumes.
type FeedClient interface {
	FetchArticles(query, timespan string) ([]models.Article, error)
	FetchGeoMentions(query, timespan string) ([]models.GeoPoint, error)
}

// Ingestor drives refresh cycles: fetch, merge, persist, broadcast. A single
// process-wide flag serializes cycles; an overlapping refresh request is
// skipped rather than queued, whichever profile it targets.
type Ingestor struct {
	store  storage.Storage
	client FeedClient
	hub    *broadcast.Hub

	mu            sync.Mutex
	refreshing    bool
	lastRefreshAt string
}

func New(store storage.Storage, client FeedClient, hub *broadcast.Hub) *Ingestor {
	return &Ingestor{
		store:  store,
		client: client,
		hub:    hub,
	}
}

// LastRefreshAt returns the completion timestamp of the most recent full
// refresh cycle, or an empty string if none has completed yet.
func (ing *Ingestor) LastRefreshAt() string {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	return ing.lastRefreshAt
}

// Refreshing reports whether a refresh cycle is currently in flight.
func (ing *Ingestor) Refreshing() bool {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	return ing.refreshing
}

// Refresh runs one ingestion cycle. An empty profileID selects every
// profile, in creation order; an unknown profileID selects nothing and
// completes successfully. If another cycle is already in flight the call
// returns immediately with Skipped set, having written nothing.
func (ing *Ingestor) Refresh(profileID string) (*models.RefreshResult, error) {
	ing.mu.Lock()
	if ing.refreshing {
		last := ing.lastRefreshAt
		ing.mu.Unlock()
		return &models.RefreshResult{OK: true, Skipped: true, RefreshedAt: last}, nil
	}
	ing.refreshing = true
	ing.mu.Unlock()

	// The flag must clear on every exit path, including a panic inside a
	// profile loop iteration.
	defer func() {
		ing.mu.Lock()
		ing.refreshing = false
		ing.mu.Unlock()
	}()

	profiles, err := ing.selectProfiles(profileID)
	if err != nil {
		return nil, err
	}

	for _, profile := range profiles {
		ing.refreshProfile(profile)
	}

	refreshedAt := time.Now().UTC().Format(time.RFC3339)
	ing.mu.Lock()
	ing.lastRefreshAt = refreshedAt
	ing.mu.Unlock()

	return &models.RefreshResult{OK: true, Skipped: false, RefreshedAt: refreshedAt}, nil
}

func (ing *Ingestor) selectProfiles(profileID string) ([]models.QueryProfile, error) {
	if profileID == "" {
		return ing.store.ListProfiles()
	}

	profile, err := ing.store.GetProfile(profileID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return []models.QueryProfile{*profile}, nil
}

// refreshProfile runs the fetch/merge/persist sequence for one profile. A
// failure is recorded on the profile's run and broadcast, never propagated:
// the cycle moves on to the next profile.
func (ing *Ingestor) refreshProfile(profile models.QueryProfile) {
	run, err := ing.store.CreateRun(profile.ID)
	if err != nil {
		log.Printf("Failed to create ingest run for profile '%s': %v", profile.Name, err)
		ing.hub.Publish(models.StreamEvent{
			Type:      models.EventError,
			ProfileID: profile.ID,
			Message:   err.Error(),
		})
		return
	}

	if err := ing.ingestProfile(profile); err != nil {
		log.Printf("Ingest failed for profile '%s': %v", profile.Name, err)
		if finishErr := ing.store.FinishRun(run.ID, models.RunFailed, err.Error()); finishErr != nil {
			log.Printf("Failed to finalize ingest run %s: %v", run.ID, finishErr)
		}
		ing.hub.Publish(models.StreamEvent{
			Type:      models.EventError,
			ProfileID: profile.ID,
			Message:   err.Error(),
		})
		return
	}

	if err := ing.store.FinishRun(run.ID, models.RunSuccess, ""); err != nil {
		log.Printf("Failed to finalize ingest run %s: %v", run.ID, err)
	}
	ing.hub.Publish(models.StreamEvent{
		Type:        models.EventUpdate,
		ProfileID:   profile.ID,
		RefreshedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (ing *Ingestor) ingestProfile(profile models.QueryProfile) error {
	articles, err := ing.client.FetchArticles(profile.QueryString, profile.Timespan)
	if err != nil {
		return err
	}
	geo, err := ing.client.FetchGeoMentions(profile.QueryString, profile.Timespan)
	if err != nil {
		return err
	}

	topGeo := geo
	if len(topGeo) > maxGeoPerProfile {
		topGeo = topGeo[:maxGeoPerProfile]
	}

	// Index geo points by normalized article URL; a later point for the
	// same URL wins, matching upstream most-recent-first ordering.
	geoByURL := make(map[string]string, len(topGeo))
	for _, point := range topGeo {
		if point.URL != "" {
			geoByURL[NormalizeURL(point.URL)] = point.LocationKey
		}
		if err := ing.store.UpsertGeoCluster(profile.ID, point); err != nil {
			return fmt.Errorf("failed to upsert geo cluster '%s': %v", point.LocationKey, err)
		}
	}

	// Articles without a direct URL match fall back to the most recent geo
	// point. With no geo data at all they persist with no location, which
	// is still a fully successful outcome.
	var fallback *string
	if len(topGeo) > 0 {
		fallback = &topGeo[0].LocationKey
	}

	for _, article := range articles {
		article.ProfileID = profile.ID
		if key, ok := geoByURL[NormalizeURL(article.URL)]; ok {
			locationKey := key
			article.LocationKey = &locationKey
		} else {
			article.LocationKey = fallback
		}
		if err := ing.store.UpsertArticle(article); err != nil {
			return fmt.Errorf("failed to upsert article '%s': %v", article.URL, err)
		}
	}

	return nil
}

// NormalizeURL strips the query string and fragment so URLs differing only
// in tracking parameters or anchors share one identity. Unparseable URLs
// pass through unchanged. Normalizing is idempotent.
func NormalizeURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	parsed.RawFragment = ""
	return parsed.String()
}
