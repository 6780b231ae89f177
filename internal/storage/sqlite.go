package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sitmon/internal/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dataDir string) (*SQLiteStorage, error) {
	// Ensure data directory exists with secure permissions (0750)
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	dbPath := filepath.Join(dataDir, "sitmon.db")
	log.Printf("Initializing database at: %s", dbPath)

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_synchronous=NORMAL&_busy_timeout=30000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_profiles (
		id TEXT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		query_string TEXT NOT NULL,
		timespan TEXT NOT NULL,
		filters_json TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS ingest_runs (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		error_text TEXT,
		FOREIGN KEY (profile_id) REFERENCES query_profiles(id)
	);

	CREATE TABLE IF NOT EXISTS geo_clusters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile_id TEXT NOT NULL,
		location_key TEXT NOT NULL,
		name TEXT NOT NULL,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL,
		UNIQUE(profile_id, location_key),
		FOREIGN KEY (profile_id) REFERENCES query_profiles(id)
	);

	CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT UNIQUE NOT NULL,
		profile_id TEXT NOT NULL,
		title TEXT NOT NULL,
		source_country TEXT,
		language TEXT,
		published_at DATETIME,
		location_key TEXT,
		FOREIGN KEY (profile_id) REFERENCES query_profiles(id)
	);

	CREATE INDEX IF NOT EXISTS idx_articles_profile_published ON articles(profile_id, published_at DESC);
	CREATE INDEX IF NOT EXISTS idx_clusters_profile_count ON geo_clusters(profile_id, count DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_profile_started ON ingest_runs(profile_id, started_at DESC);
	`

	_, err := db.Exec(schema)
	return err
}

// SeedProfiles upserts profiles by name: query, timespan and filters are
// refreshed, existing ids and created_at are preserved, nothing is ever
// duplicated.
func (s *SQLiteStorage) SeedProfiles(profiles []models.QueryProfile) error {
	for _, profile := range profiles {
		filters, err := json.Marshal(profile.Filters)
		if err != nil {
			return fmt.Errorf("failed to encode filters for profile '%s': %v", profile.Name, err)
		}

		id := profile.ID
		if id == "" {
			id = uuid.NewString()
		}

		_, err = s.db.Exec(`
			INSERT INTO query_profiles (id, name, query_string, timespan, filters_json, created_at)
			VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(name) DO UPDATE SET
				query_string = excluded.query_string,
				timespan = excluded.timespan,
				filters_json = excluded.filters_json`,
			id, profile.Name, profile.QueryString, profile.Timespan, string(filters))
		if err != nil {
			return fmt.Errorf("failed to seed profile '%s': %v", profile.Name, err)
		}
	}
	return nil
}

// ListProfiles returns every profile ordered by creation time.
func (s *SQLiteStorage) ListProfiles() ([]models.QueryProfile, error) {
	rows, err := s.db.Query(`
		SELECT id, name, query_string, timespan, filters_json, created_at
		FROM query_profiles
		ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %v", err)
	}
	defer rows.Close()

	var profiles []models.QueryProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *profile)
	}
	return profiles, rows.Err()
}

func (s *SQLiteStorage) GetProfile(id string) (*models.QueryProfile, error) {
	row := s.db.QueryRow(`
		SELECT id, name, query_string, timespan, filters_json, created_at
		FROM query_profiles
		WHERE id = ?`, id)

	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return profile, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*models.QueryProfile, error) {
	var profile models.QueryProfile
	var filters string
	if err := row.Scan(&profile.ID, &profile.Name, &profile.QueryString, &profile.Timespan, &filters, &profile.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan profile: %v", err)
	}
	if filters != "" {
		if err := json.Unmarshal([]byte(filters), &profile.Filters); err != nil {
			// A corrupt filter blob should not make the profile unreadable
			profile.Filters = models.FilterState{}
		}
	}
	return &profile, nil
}

// CreateRun records the start of one ingest cycle for a profile.
func (s *SQLiteStorage) CreateRun(profileID string) (*models.IngestRun, error) {
	run := &models.IngestRun{
		ID:        uuid.NewString(),
		ProfileID: profileID,
		Status:    models.RunRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO ingest_runs (id, profile_id, status, started_at)
		VALUES (?, ?, ?, ?)`,
		run.ID, run.ProfileID, run.Status, run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest run: %v", err)
	}
	return run, nil
}

// FinishRun moves a run to its terminal status with a finish timestamp.
func (s *SQLiteStorage) FinishRun(runID, status, errorText string) error {
	var errText interface{}
	if errorText != "" {
		errText = errorText
	}

	result, err := s.db.Exec(`
		UPDATE ingest_runs
		SET status = ?, finished_at = ?, error_text = ?
		WHERE id = ?`,
		status, time.Now().UTC(), errText, runID)
	if err != nil {
		return fmt.Errorf("failed to finish ingest run: %v", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestRun returns the most recently started run for a profile.
func (s *SQLiteStorage) LatestRun(profileID string) (*models.IngestRun, error) {
	row := s.db.QueryRow(`
		SELECT id, profile_id, status, started_at, finished_at, error_text
		FROM ingest_runs
		WHERE profile_id = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1`, profileID)

	var run models.IngestRun
	var finished sql.NullTime
	var errText sql.NullString
	if err := row.Scan(&run.ID, &run.ProfileID, &run.Status, &run.StartedAt, &finished, &errText); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan ingest run: %v", err)
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	run.ErrorText = errText.String
	return &run, nil
}

// UpsertGeoCluster writes the latest snapshot for one (profile, location
// key): name, coordinates and count are overwritten, never accumulated.
func (s *SQLiteStorage) UpsertGeoCluster(profileID string, point models.GeoPoint) error {
	_, err := s.db.Exec(`
		INSERT INTO geo_clusters (profile_id, location_key, name, lat, lon, count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_id, location_key) DO UPDATE SET
			name = excluded.name,
			lat = excluded.lat,
			lon = excluded.lon,
			count = excluded.count,
			updated_at = excluded.updated_at`,
		profileID, point.LocationKey, point.Name, point.Lat, point.Lon, point.Count, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert geo cluster '%s': %v", point.LocationKey, err)
	}
	return nil
}

// UpsertArticle inserts or updates an article keyed by its URL.
func (s *SQLiteStorage) UpsertArticle(article models.Article) error {
	_, err := s.db.Exec(`
		INSERT INTO articles (url, profile_id, title, source_country, language, published_at, location_key)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			profile_id = excluded.profile_id,
			title = excluded.title,
			source_country = excluded.source_country,
			language = excluded.language,
			published_at = excluded.published_at,
			location_key = excluded.location_key`,
		article.URL, article.ProfileID, article.Title,
		nullString(article.SourceCountry), nullString(article.Language),
		nullTime(article.PublishedAt), nullStringPtr(article.LocationKey))
	if err != nil {
		return fmt.Errorf("failed to upsert article '%s': %v", article.URL, err)
	}
	return nil
}

// ListClusters returns a profile's clusters ordered by mention count.
func (s *SQLiteStorage) ListClusters(profileID string, limit int) ([]models.GeoCluster, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT profile_id, location_key, name, lat, lon, count, updated_at
		FROM geo_clusters
		WHERE profile_id = ?
		ORDER BY count DESC, location_key ASC
		LIMIT ?`, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query geo clusters: %v", err)
	}
	defer rows.Close()

	var clusters []models.GeoCluster
	for rows.Next() {
		var cluster models.GeoCluster
		if err := rows.Scan(&cluster.ProfileID, &cluster.LocationKey, &cluster.Name,
			&cluster.Lat, &cluster.Lon, &cluster.Count, &cluster.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan geo cluster: %v", err)
		}
		clusters = append(clusters, cluster)
	}
	return clusters, rows.Err()
}

// ListArticles returns a profile's articles, newest first. Language and
// source country filters apply when set to something other than "all".
func (s *SQLiteStorage) ListArticles(profileID string, filter models.FilterState, limit int) ([]models.Article, error) {
	if limit <= 0 {
		limit = 300
	}

	conditions := []string{"profile_id = ?"}
	args := []interface{}{profileID}

	if filter.Language != "" && filter.Language != "all" {
		conditions = append(conditions, "language = ?")
		args = append(args, filter.Language)
	}
	if filter.SourceCountry != "" && filter.SourceCountry != "all" {
		conditions = append(conditions, "source_country = ?")
		args = append(args, filter.SourceCountry)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT url, profile_id, title, source_country, language, published_at, location_key
		FROM articles
		WHERE %s
		ORDER BY published_at DESC
		LIMIT ?`, strings.Join(conditions, " AND "))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %v", err)
	}
	defer rows.Close()

	var articles []models.Article
	for rows.Next() {
		var article models.Article
		var sourceCountry, language, locationKey sql.NullString
		var published sql.NullTime
		if err := rows.Scan(&article.URL, &article.ProfileID, &article.Title,
			&sourceCountry, &language, &published, &locationKey); err != nil {
			return nil, fmt.Errorf("failed to scan article: %v", err)
		}
		article.SourceCountry = sourceCountry.String
		article.Language = language.String
		if published.Valid {
			article.PublishedAt = &published.Time
		}
		if locationKey.Valid {
			key := locationKey.String
			article.LocationKey = &key
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

// CleanupOldArticles removes articles published before the retention window.
// Run history is deliberately kept forever; it is the audit trail.
func (s *SQLiteStorage) CleanupOldArticles(retention time.Duration) error {
	cutoff := time.Now().UTC().Add(-retention)

	result, err := s.db.Exec(`
		DELETE FROM articles
		WHERE published_at IS NOT NULL AND published_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup old articles: %v", err)
	}

	if removed, err := result.RowsAffected(); err == nil && removed > 0 {
		log.Printf("Removed %d articles older than %v", removed, retention)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func nullString(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullStringPtr(value *string) interface{} {
	if value == nil {
		return nil
	}
	return *value
}

func nullTime(value *time.Time) interface{} {
	if value == nil {
		return nil
	}
	return *value
}
