// internal/config/config.go

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Aggregator  AggregatorConfig
	Trends      TrendsConfig
	Reddit      RedditConfig
	YouTube     YouTubeConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
	RecentLimit     int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	SSLMode      string
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// AggregatorConfig holds the periodic fetch cycle configuration
type AggregatorConfig struct {
	Interval    time.Duration
	EventsTopic string
}

// TrendsConfig holds the Google Trends retrieval configuration
type TrendsConfig struct {
	Region             string
	Timeframe          string
	StateDir           string
	MinRequestInterval time.Duration
	CacheMaxAge        time.Duration
	RelaxedCacheAge    time.Duration
	TrendingCacheAge   time.Duration
	MaxAttempts        int
	RateLimitBackoff   time.Duration
	SuggestionsPerSeed int
	MaxKeywords        int
	Seeds              []string
	DomainTerms        []string
}

// RedditConfig holds the Reddit fetcher configuration
type RedditConfig struct {
	Subreddits        []string
	PostsPerSubreddit int
	UserAgent         string
}

// YouTubeConfig holds the YouTube fetcher configuration. The fetcher is
// disabled when no API key is set.
type YouTubeConfig struct {
	APIKey     string
	Region     string
	MaxResults int
}

// Enabled reports whether the YouTube fetcher should run.
func (c YouTubeConfig) Enabled() bool {
	return c.APIKey != ""
}

var defaultSeeds = []string{
	"education", "exam", "online course", "study tips", "scholarship",
}

var defaultDomainTerms = []string{
	"exam", "result", "admission", "course", "university",
	"college", "school", "education", "student", "study",
	"test", "entrance", "scholarship", "degree", "learning",
	"jee", "neet", "upsc", "gate", "cat", "gre", "ielts",
}

var defaultSubreddits = []string{
	"education", "Teachers", "EdTech", "HigherEducation", "academia",
	"college", "university", "gradschool", "AskAcademia", "Scholarships",
	"students", "learnprogramming", "learnmachinelearning", "languagelearning",
	"UPSC", "JEE", "NEET", "GRE", "IELTS", "GetStudying",
}

// Load loads configuration from environment variables
func Load() (Config, error) {
	config := Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     getEnvAsSlice("SERVER_CORS_ORIGINS", []string{"*"}),
			RecentLimit:     getEnvAsInt("SERVER_RECENT_LIMIT", 50),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "trendagg"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
		},
		NATS: NATSConfig{
			URL:            getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnects:  getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:  getEnvAsDuration("NATS_RECONNECT_WAIT", 1*time.Second),
			ConnectTimeout: getEnvAsDuration("NATS_CONNECT_TIMEOUT", 2*time.Second),
		},
		Aggregator: AggregatorConfig{
			Interval:    getEnvAsDuration("AGGREGATOR_INTERVAL", 30*time.Second),
			EventsTopic: getEnv("AGGREGATOR_EVENTS_TOPIC", "trends.updated"),
		},
		Trends: TrendsConfig{
			Region:             getEnv("TRENDS_REGION", "IN"),
			Timeframe:          getEnv("TRENDS_TIMEFRAME", "now 1-d"),
			StateDir:           getEnv("TRENDS_STATE_DIR", "cache"),
			MinRequestInterval: getEnvAsDuration("TRENDS_MIN_REQUEST_INTERVAL", 60*time.Second),
			CacheMaxAge:        getEnvAsDuration("TRENDS_CACHE_MAX_AGE", 1*time.Hour),
			RelaxedCacheAge:    getEnvAsDuration("TRENDS_RELAXED_CACHE_AGE", 24*time.Hour),
			TrendingCacheAge:   getEnvAsDuration("TRENDS_TRENDING_CACHE_AGE", 30*time.Minute),
			MaxAttempts:        getEnvAsInt("TRENDS_MAX_ATTEMPTS", 3),
			RateLimitBackoff:   getEnvAsDuration("TRENDS_RATE_LIMIT_BACKOFF", 30*time.Second),
			SuggestionsPerSeed: getEnvAsInt("TRENDS_SUGGESTIONS_PER_SEED", 2),
			MaxKeywords:        getEnvAsInt("TRENDS_MAX_KEYWORDS", 10),
			Seeds:              getEnvAsSlice("TRENDS_SEEDS", defaultSeeds),
			DomainTerms:        getEnvAsSlice("TRENDS_DOMAIN_TERMS", defaultDomainTerms),
		},
		Reddit: RedditConfig{
			Subreddits:        getEnvAsSlice("REDDIT_SUBREDDITS", defaultSubreddits),
			PostsPerSubreddit: getEnvAsInt("REDDIT_POSTS_PER_SUBREDDIT", 8),
			UserAgent:         getEnv("REDDIT_USER_AGENT", "trendagg/1.0"),
		},
		YouTube: YouTubeConfig{
			APIKey:     getEnv("YOUTUBE_API_KEY", ""),
			Region:     getEnv("YOUTUBE_REGION", "IN"),
			MaxResults: getEnvAsInt("YOUTUBE_MAX_RESULTS", 20),
		},
	}

	return config, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
