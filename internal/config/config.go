package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ProfileConfig represents one seeded query profile
type ProfileConfig struct {
	Name     string
	Query    string
	Timespan string
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	EnableRateLimit       bool
	RateLimitPerSecond    float64
	RateLimitBurst        int
	EnableCORS            bool
	AllowedOrigins        []string
	EnableSecurityHeaders bool
	MaxRequestSize        int64
	EnableRequestID       bool
}

type Config struct {
	Port              int
	DataDir           string
	CacheTTL          time.Duration
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	ArticleRetention  time.Duration
	GdeltDocURL       string
	GdeltGeoURL       string
	MaxArticles       int
	MaxGeoPoints      int
	RetryAttempts     int
	RetryBaseDelay    time.Duration
	LogLevel          string
	EnableSwagger     bool
	Security          SecurityConfig
	Profiles          []ProfileConfig
}

func Load() *Config {
	// Load query profiles from environment variables
	profiles := loadProfilesFromEnv()

	// If no profiles configured via env, use defaults
	if len(profiles) == 0 {
		profiles = getDefaultProfiles()
	}

	return &Config{
		Port:              getEnvAsInt("PORT", 8080),
		DataDir:           getEnv("DATA_DIR", "./data"),
		CacheTTL:          getEnvAsDuration("CACHE_TTL", 90*time.Second),
		PollInterval:      getEnvAsDuration("POLL_INTERVAL", 5*time.Minute),
		HeartbeatInterval: getEnvAsDuration("HEARTBEAT_INTERVAL", 20*time.Second),
		ArticleRetention:  getEnvAsDuration("ARTICLE_RETENTION", 7*24*time.Hour),
		GdeltDocURL:       getEnv("GDELT_DOC_URL", ""),
		GdeltGeoURL:       getEnv("GDELT_GEO_URL", ""),
		MaxArticles:       getEnvAsInt("MAX_ARTICLES", 75),
		MaxGeoPoints:      getEnvAsInt("MAX_GEO_POINTS", 250),
		RetryAttempts:     getEnvAsInt("RETRY_ATTEMPTS", 3),
		RetryBaseDelay:    getEnvAsDuration("RETRY_BASE_DELAY", 400*time.Millisecond),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		EnableSwagger:     getEnvAsBool("ENABLE_SWAGGER", true),
		Security:          loadSecurityConfig(),
		Profiles:          profiles,
	}
}

func loadSecurityConfig() SecurityConfig {
	return SecurityConfig{
		EnableRateLimit:       getEnvAsBool("ENABLE_RATE_LIMIT", true),
		RateLimitPerSecond:    getEnvAsFloat("RATE_LIMIT_PER_SECOND", 10.0),
		RateLimitBurst:        getEnvAsInt("RATE_LIMIT_BURST", 20),
		EnableCORS:            getEnvAsBool("ENABLE_CORS", true),
		AllowedOrigins:        getEnvAsStringSlice("ALLOWED_ORIGINS", []string{"*"}),
		EnableSecurityHeaders: getEnvAsBool("ENABLE_SECURITY_HEADERS", true),
		MaxRequestSize:        getEnvAsInt64("MAX_REQUEST_SIZE", 10<<20), // 10MB
		EnableRequestID:       getEnvAsBool("ENABLE_REQUEST_ID", true),
	}
}

func loadProfilesFromEnv() []ProfileConfig {
	var profiles []ProfileConfig

	// Look for PROFILE_* environment variables
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "PROFILE_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) != 2 {
				continue
			}

			// Parse profile name from PROFILE_<PROFILE_NAME>
			profileName := strings.TrimPrefix(parts[0], "PROFILE_")
			profileName = strings.ReplaceAll(strings.ToLower(profileName), "_", " ")

			query, timespan := parseProfileValue(parts[1])
			if query == "" {
				continue
			}

			profiles = append(profiles, ProfileConfig{
				Name:     profileName,
				Query:    query,
				Timespan: timespan,
			})
		}
	}

	return profiles
}

func parseProfileValue(value string) (string, string) {
	// Format: "query expression|timespan"
	// If no timespan specified, just the query: "query expression"

	parts := strings.Split(value, "|")
	query := strings.TrimSpace(parts[0])

	timespan := "24h"
	if len(parts) > 1 {
		candidate := strings.TrimSpace(parts[1])
		switch candidate {
		case "1h", "6h", "24h", "7d":
			timespan = candidate
		}
	}

	return query, timespan
}

func getDefaultProfiles() []ProfileConfig {
	return []ProfileConfig{
		{
			Name:     "World Breaking",
			Query:    "(war OR earthquake OR shooting OR flood OR protest)",
			Timespan: "24h",
		},
		{
			Name:     "Elections",
			Query:    "election OR vote OR campaign",
			Timespan: "24h",
		},
		{
			Name:     "Cyber",
			Query:    "(ransomware OR data breach OR malware)",
			Timespan: "7d",
		},
	}
}

func getEnv(key string, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		origins := strings.Split(val, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		return origins
	}
	return defaultVal
}
