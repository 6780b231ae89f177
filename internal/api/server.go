package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"sitmon/internal/broadcast"
	"sitmon/internal/config"
	"sitmon/internal/ingest"
	"sitmon/internal/models"
	"sitmon/internal/poller"
	"sitmon/internal/security"
	"sitmon/internal/storage"
	"sitmon/internal/web"

	"github.com/gin-gonic/gin"
)

type Server struct {
	router        *gin.Engine
	store         storage.Storage
	ingestor      *ingest.Ingestor
	hub           *broadcast.Hub
	poller        *poller.Poller
	cfg           *config.Config
	swaggerServer *web.SwaggerServer
}

func NewServer(store storage.Storage, ingestor *ingest.Ingestor, hub *broadcast.Hub, backgroundPoller *poller.Poller, cfg *config.Config) *Server {
	router := gin.Default()

	// Setup security middleware
	securityConfig := &security.SecurityConfig{
		EnableRateLimit:       cfg.Security.EnableRateLimit,
		RateLimitPerSecond:    cfg.Security.RateLimitPerSecond,
		RateLimitBurst:        cfg.Security.RateLimitBurst,
		EnableCORS:            cfg.Security.EnableCORS,
		AllowedOrigins:        cfg.Security.AllowedOrigins,
		EnableSecurityHeaders: cfg.Security.EnableSecurityHeaders,
		MaxRequestSize:        cfg.Security.MaxRequestSize,
		EnableRequestID:       cfg.Security.EnableRequestID,
	}
	security.SetupSecurityMiddleware(router, securityConfig)

	server := &Server{
		router:        router,
		store:         store,
		ingestor:      ingestor,
		hub:           hub,
		poller:        backgroundPoller,
		cfg:           cfg,
		swaggerServer: web.NewSwaggerServer(cfg.EnableSwagger),
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthCheck)

	// API routes
	api := s.router.Group("/api/v1")
	{
		api.GET("/profiles", s.getProfiles)
		api.GET("/map-data", s.getMapData)
		api.POST("/refresh", s.triggerRefresh)
		api.GET("/stream", s.streamEvents)

		// Poller control endpoints
		api.GET("/poller/status", s.getPollerStatus)
		api.POST("/poller/force-refresh", s.forceRefresh)
	}

	s.swaggerServer.RegisterRoutes(s.router)
}

func (s *Server) Start() error {
	return s.router.Run(":" + strconv.Itoa(s.cfg.Port))
}

// StartWithContext serves until ctx is cancelled, then shuts down
// gracefully. The returned error is ctx.Err() on a clean shutdown.
func (s *Server) StartWithContext(ctx context.Context) error {
	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(s.cfg.Port),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"service":       "situation-monitor",
		"poller_active": s.poller.IsPolling(),
	})
}

func (s *Server) getProfiles(c *gin.Context) {
	profiles, err := s.store.ListProfiles()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	if profiles == nil {
		profiles = []models.QueryProfile{}
	}
	c.JSON(http.StatusOK, gin.H{
		"profiles": profiles,
		"count":    len(profiles),
	})
}

func (s *Server) getMapData(c *gin.Context) {
	filter := models.FilterState{
		Language:      c.DefaultQuery("language", "all"),
		SourceCountry: c.DefaultQuery("sourceCountry", "all"),
		TopN:          100,
	}
	if topNStr := c.Query("topN"); topNStr != "" {
		if topN, err := strconv.Atoi(topNStr); err == nil && topN > 0 {
			filter.TopN = topN
		}
	}

	profile, err := s.resolveProfile(c.Query("profileId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	if profile == nil {
		c.JSON(http.StatusOK, gin.H{
			"profile":            nil,
			"clusters":           []models.GeoCluster{},
			"articlesByLocation": gin.H{},
			"health":             nil,
		})
		return
	}

	clusters, err := s.store.ListClusters(profile.ID, filter.TopN)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}
	if clusters == nil {
		clusters = []models.GeoCluster{}
	}

	articles, err := s.store.ListArticles(profile.ID, filter, 300)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	// Group articles by their cluster key; unlocated articles are not shown
	// on the map.
	articlesByLocation := make(map[string][]models.Article)
	for _, article := range articles {
		if article.LocationKey == nil {
			continue
		}
		articlesByLocation[*article.LocationKey] = append(articlesByLocation[*article.LocationKey], article)
	}

	c.JSON(http.StatusOK, gin.H{
		"profile":            profile,
		"clusters":           clusters,
		"articlesByLocation": articlesByLocation,
		"health":             s.profileHealth(profile.ID),
	})
}

// resolveProfile picks the requested profile, or the oldest one when no id
// is given. A missing profile is not an error; callers get nil.
func (s *Server) resolveProfile(profileID string) (*models.QueryProfile, error) {
	if profileID != "" {
		profile, err := s.store.GetProfile(profileID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return profile, err
	}

	profiles, err := s.store.ListProfiles()
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	return &profiles[0], nil
}

func (s *Server) profileHealth(profileID string) gin.H {
	latestRun, err := s.store.LatestRun(profileID)
	if err != nil {
		return nil
	}

	return gin.H{
		"status":     latestRun.Status,
		"startedAt":  latestRun.StartedAt,
		"finishedAt": latestRun.FinishedAt,
		"errorText":  latestRun.ErrorText,
	}
}

func (s *Server) triggerRefresh(c *gin.Context) {
	var body struct {
		ProfileID string `json:"profileId"`
	}
	// A missing or malformed body simply selects all profiles
	_ = c.ShouldBindJSON(&body)

	result, err := s.ingestor.Refresh(body.ProfileID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) streamEvents(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache, no-transform")
	c.Writer.Header().Set("Connection", "keep-alive")

	// Buffered so a burst of publishes never blocks the hub; a client too
	// slow to drain its buffer loses events rather than stalling ingestion.
	events := make(chan models.StreamEvent, 16)
	unregister := s.hub.Register(func(event models.StreamEvent) {
		select {
		case events <- event:
		default:
		}
	})
	defer unregister()

	c.SSEvent("message", models.StreamEvent{
		Type:        models.EventConnected,
		RefreshedAt: time.Now().UTC().Format(time.RFC3339),
	})
	c.Writer.Flush()

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case event := <-events:
			c.SSEvent("message", event)
			c.Writer.Flush()
		case <-heartbeat.C:
			c.SSEvent("message", models.StreamEvent{
				Type:        models.EventHeartbeat,
				RefreshedAt: time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		}
	}
}

func (s *Server) getPollerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"is_polling":      s.poller.IsPolling(),
		"last_run":        s.poller.LastRun(),
		"last_refresh_at": s.ingestor.LastRefreshAt(),
	})
}

func (s *Server) forceRefresh(c *gin.Context) {
	result, err := s.poller.ForceRefresh()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
