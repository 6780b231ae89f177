package storage

import (
	"errors"
	"time"

	"sitmon/internal/models"
)

// ErrNotFound is returned by point lookups when no matching record exists.
var ErrNotFound = errors.New("record not found")

// Storage defines the persistence boundary for profiles, clusters, articles
// and ingest runs. All writes are idempotent upserts keyed by the schema's
// unique constraints: article URL, and (profile, location key) for clusters.
type Storage interface {
	SeedProfiles(profiles []models.QueryProfile) error
	ListProfiles() ([]models.QueryProfile, error)
	GetProfile(id string) (*models.QueryProfile, error)

	CreateRun(profileID string) (*models.IngestRun, error)
	FinishRun(runID, status, errorText string) error
	LatestRun(profileID string) (*models.IngestRun, error)

	UpsertGeoCluster(profileID string, point models.GeoPoint) error
	UpsertArticle(article models.Article) error
	ListClusters(profileID string, limit int) ([]models.GeoCluster, error)
	ListArticles(profileID string, filter models.FilterState, limit int) ([]models.Article, error)

	// Storage maintenance
	CleanupOldArticles(retention time.Duration) error
	Close() error
}
