package gdelt

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"sitmon/internal/cache"
	"sitmon/internal/models"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Public GDELT 2.0 API endpoints.
const (
	DefaultDocURL = "https://api.gdeltproject.org/api/v2/doc/doc"
	DefaultGeoURL = "https://api.gdeltproject.org/api/v2/geo/geo"
)

// Layout of the DOC API seendate field, e.g. "20240131T120000Z".
const seenDateLayout = "20060102T150405Z"

// UpstreamError reports a feed request that failed after exhausting retries
// or returned an undecodable payload.
type UpstreamError struct {
	Endpoint string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("gdelt %s request failed: %v", e.Endpoint, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	DocURL         string
	GeoURL         string
	CacheTTL       time.Duration
	MaxArticles    int
	MaxGeoPoints   int
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// Client retrieves article and geo-mention views from the GDELT APIs,
// shielding callers from upstream latency and flakiness with retries and a
// per-request-signature TTL cache.
type Client struct {
	httpClient *http.Client
	cache      *cache.Manager
	opts       Options
}

func NewClient(cacheManager *cache.Manager, opts Options) *Client {
	if opts.DocURL == "" {
		opts.DocURL = DefaultDocURL
	}
	if opts.GeoURL == "" {
		opts.GeoURL = DefaultGeoURL
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 90 * time.Second
	}
	if opts.MaxArticles <= 0 {
		opts.MaxArticles = 75
	}
	if opts.MaxGeoPoints <= 0 {
		opts.MaxGeoPoints = 250
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 400 * time.Millisecond
	}

	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cacheManager,
		opts:       opts,
	}
}

// LocationKey derives the cluster key for a coordinate pair. The key is
// deterministic from the coordinates alone: fixed 3-decimal rounding,
// formatted "lat,lon".
func LocationKey(lat, lon float64) string {
	return fmt.Sprintf("%.3f,%.3f", lat, lon)
}

// FetchArticles returns up to MaxArticles most-recent-first documents for a
// query and timespan. Records without a URL are dropped.
func (c *Client) FetchArticles(query, timespan string) ([]models.Article, error) {
	key := cache.RequestKey("doc", query, timespan)
	if cached, found := c.cache.Get(key); found {
		if articles, ok := cached.([]models.Article); ok {
			return articles, nil
		}
	}

	body, err := c.fetchWithRetry("doc", buildRequestURL(c.opts.DocURL, query, timespan, "artlist", c.opts.MaxArticles))
	if err != nil {
		return nil, err
	}

	var payload docResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &UpstreamError{Endpoint: "doc", Err: err}
	}

	articles := make([]models.Article, 0, len(payload.Articles))
	for _, record := range payload.Articles {
		if record.URL == "" {
			continue
		}

		article := models.Article{
			Title:         record.Title,
			URL:           record.URL,
			SourceCountry: record.SourceCountry,
			Language:      record.Language,
		}
		if article.Title == "" {
			article.Title = "Untitled"
		}
		if record.SeenDate != "" {
			if published, err := time.Parse(seenDateLayout, record.SeenDate); err == nil {
				article.PublishedAt = &published
			}
		}

		articles = append(articles, article)
	}

	c.cache.Set(key, articles, c.opts.CacheTTL)
	return articles, nil
}

// FetchGeoMentions returns up to MaxGeoPoints most-recent-first geo mentions
// for a query and timespan. Points with non-finite coordinates, or sitting
// exactly at (0,0), carry no real location and are dropped.
func (c *Client) FetchGeoMentions(query, timespan string) ([]models.GeoPoint, error) {
	key := cache.RequestKey("geo", query, timespan)
	if cached, found := c.cache.Get(key); found {
		if points, ok := cached.([]models.GeoPoint); ok {
			return points, nil
		}
	}

	body, err := c.fetchWithRetry("geo", buildRequestURL(c.opts.GeoURL, query, timespan, "PointList", c.opts.MaxGeoPoints))
	if err != nil {
		return nil, err
	}

	var payload geoResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &UpstreamError{Endpoint: "geo", Err: err}
	}

	// The GEO API answers either a GeoJSON feature collection or a flat
	// article array depending on mode and query.
	records := payload.Features
	if len(records) == 0 {
		records = payload.Articles
	}

	points := make([]models.GeoPoint, 0, len(records))
	for _, raw := range records {
		point, ok := decodeGeoRecord(raw)
		if !ok {
			continue
		}
		points = append(points, point)
	}

	c.cache.Set(key, points, c.opts.CacheTTL)
	return points, nil
}

func (c *Client) fetchWithRetry(endpoint, requestURL string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.opts.RetryAttempts; attempt++ {
		body, err := c.fetch(requestURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if attempt < c.opts.RetryAttempts {
			time.Sleep(time.Duration(attempt) * c.opts.RetryBaseDelay)
		}
	}
	return nil, &UpstreamError{Endpoint: endpoint, Err: lastErr}
}

func (c *Client) fetch(requestURL string) ([]byte, error) {
	resp, err := c.httpClient.Get(requestURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func buildRequestURL(base, query, timespan, mode string, maxRecords int) string {
	params := url.Values{}
	params.Set("query", query)
	params.Set("mode", mode)
	params.Set("format", "json")
	params.Set("maxrecords", strconv.Itoa(maxRecords))
	params.Set("sort", "datedesc")
	params.Set("timespan", timespan)
	return base + "?" + params.Encode()
}

type docResponse struct {
	Articles []docArticle `json:"articles"`
}

type docArticle struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	SourceCountry string `json:"sourcecountry"`
	Language      string `json:"language"`
	SeenDate      string `json:"seendate"`
}

type geoResponse struct {
	Features []jsoniter.RawMessage `json:"features"`
	Articles []jsoniter.RawMessage `json:"articles"`
}

type geoFeature struct {
	Properties *geoProperties `json:"properties"`
	Geometry   *geoGeometry   `json:"geometry"`
}

type geoGeometry struct {
	// GeoJSON order: [lon, lat]
	Coordinates []float64 `json:"coordinates"`
}

type geoProperties struct {
	Name               string   `json:"name"`
	Location           string   `json:"location"`
	Admin1Name         string   `json:"admin1name"`
	Country            string   `json:"country"`
	Lat                *float64 `json:"lat"`
	Latitude           *float64 `json:"latitude"`
	Lon                *float64 `json:"lon"`
	Longitude          *float64 `json:"longitude"`
	Count              *float64 `json:"count"`
	NumArticles        *float64 `json:"numarticles"`
	URL                string   `json:"url"`
	DocumentIdentifier string   `json:"documentidentifier"`
}

// decodeGeoRecord tolerantly maps one upstream geo record onto a GeoPoint.
// Shape variance stays inside this package: callers always see the fixed
// internal record with defaults applied.
func decodeGeoRecord(raw jsoniter.RawMessage) (models.GeoPoint, bool) {
	var feature geoFeature
	if err := json.Unmarshal(raw, &feature); err != nil {
		return models.GeoPoint{}, false
	}

	props := feature.Properties
	if props == nil {
		props = &geoProperties{}
		if err := json.Unmarshal(raw, props); err != nil {
			return models.GeoPoint{}, false
		}
	}

	lat, lon := resolveCoordinates(feature.Geometry, props)
	if !isFinite(lat) || !isFinite(lon) {
		return models.GeoPoint{}, false
	}
	if lat == 0 && lon == 0 {
		return models.GeoPoint{}, false
	}

	return models.GeoPoint{
		LocationKey: LocationKey(lat, lon),
		Name:        resolveName(props),
		Lat:         lat,
		Lon:         lon,
		Count:       resolveCount(props),
		URL:         resolveURL(props),
	}, true
}

func resolveCoordinates(geometry *geoGeometry, props *geoProperties) (float64, float64) {
	if geometry != nil && len(geometry.Coordinates) >= 2 {
		return geometry.Coordinates[1], geometry.Coordinates[0]
	}

	lat := 0.0
	if props.Lat != nil {
		lat = *props.Lat
	} else if props.Latitude != nil {
		lat = *props.Latitude
	}

	lon := 0.0
	if props.Lon != nil {
		lon = *props.Lon
	} else if props.Longitude != nil {
		lon = *props.Longitude
	}

	return lat, lon
}

func resolveName(props *geoProperties) string {
	for _, candidate := range []string{props.Name, props.Location, props.Admin1Name, props.Country} {
		if candidate != "" {
			return candidate
		}
	}
	return "Unknown location"
}

func resolveCount(props *geoProperties) int {
	if props.Count != nil && isFinite(*props.Count) {
		return int(*props.Count)
	}
	if props.NumArticles != nil && isFinite(*props.NumArticles) {
		return int(*props.NumArticles)
	}
	return 1
}

func resolveURL(props *geoProperties) string {
	if props.URL != "" {
		return props.URL
	}
	return props.DocumentIdentifier
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
