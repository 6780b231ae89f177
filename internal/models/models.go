package models

import (
	"time"
)

// QueryProfile is a named monitoring configuration. Profiles are seeded at
// startup and are read-only while a refresh cycle runs.
type QueryProfile struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	QueryString string      `json:"queryString"`
	Timespan    string      `json:"timespan"`
	Filters     FilterState `json:"filtersJson"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// FilterState is the presentation filter configuration stored with a profile.
type FilterState struct {
	Language      string `json:"language,omitempty"`
	SourceCountry string `json:"sourceCountry,omitempty"`
	TopN          int    `json:"topN,omitempty"`
}

// Article represents a deduplicated upstream document. The URL is the unique
// key in storage; LocationKey ties the article to a geo cluster when known.
type Article struct {
	ProfileID     string     `json:"queryProfileId"`
	Title         string     `json:"title"`
	URL           string     `json:"url"`
	SourceCountry string     `json:"sourceCountry,omitempty"`
	Language      string     `json:"language,omitempty"`
	PublishedAt   *time.Time `json:"publishedAt,omitempty"`
	LocationKey   *string    `json:"locationKey,omitempty"`
}

// GeoPoint is one geo mention as returned by the feed client, before it is
// persisted as a cluster.
type GeoPoint struct {
	LocationKey string  `json:"locationKey"`
	Name        string  `json:"name"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Count       int     `json:"count"`
	URL         string  `json:"url,omitempty"`
}

// GeoCluster is a persisted aggregation point, unique per profile and
// location key. Count and name reflect the latest upstream snapshot.
type GeoCluster struct {
	ProfileID   string    `json:"queryProfileId"`
	LocationKey string    `json:"locationKey"`
	Name        string    `json:"name"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Count       int       `json:"count"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Ingest run statuses.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunFailed  = "failed"
)

// IngestRun is the audit record for one profile refresh cycle. Every run
// reaches a terminal status even when the cycle fails mid-way.
type IngestRun struct {
	ID         string     `json:"id"`
	ProfileID  string     `json:"queryProfileId"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	ErrorText  string     `json:"errorText,omitempty"`
}

// Stream event types.
const (
	EventConnected = "connected"
	EventHeartbeat = "heartbeat"
	EventUpdate    = "update"
	EventError     = "error"
)

// StreamEvent is the payload pushed to live observers.
type StreamEvent struct {
	Type        string `json:"type"`
	ProfileID   string `json:"profileId,omitempty"`
	Message     string `json:"message,omitempty"`
	RefreshedAt string `json:"refreshedAt,omitempty"`
}

// RefreshResult is returned by the refresh trigger. OK is true even when
// individual profiles failed; per-profile detail lives in the run history.
type RefreshResult struct {
	OK          bool   `json:"ok"`
	Skipped     bool   `json:"skipped"`
	RefreshedAt string `json:"refreshedAt,omitempty"`
}

// ValidTimespan reports whether ts is one of the supported query windows.
func ValidTimespan(ts string) bool {
	switch ts {
	case "1h", "6h", "24h", "7d":
		return true
	}
	return false
}
