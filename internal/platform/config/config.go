package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvFloat is GetEnvInt for floating point values.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	return fallback
}

// GetEnvDuration parses values such as "5s" or "250ms".
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d
		}
	}
	return fallback
}

// Media holds the defaults applied to every media server control client.
type Media struct {
	Application    string
	APIPort        int
	APIUser        string
	Auth           string
	Scheme         string
	StreamingPort  int
	RequestTimeout time.Duration
	RateLimit      float64
	RateBurst      int
}

// Fanout tunes push-publish configuration.
type Fanout struct {
	Timeout     time.Duration
	Concurrency int
}

// StaticServer describes the single server used when no database is
// configured.
type StaticServer struct {
	Host     string
	Password string
	Limit    int
}

// App is the process configuration assembled from the environment.
type App struct {
	Port      string
	LogLevel  string
	LogFormat string

	DatabaseURL string

	RedisURL        string
	RedisKeyPrefix  string
	RedisSessionTTL time.Duration

	Media         Media
	Fanout        Fanout
	LoadThreshold float64
	Server        StaticServer

	BindingCacheSize int
}

// FromEnv reads App from the environment, applying defaults.
func FromEnv() App {
	return App{
		Port:      GetEnv("PORT", "8080"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		DatabaseURL: GetEnv("DATABASE_URL", ""),

		RedisURL:        GetEnv("REDIS_URL", ""),
		RedisKeyPrefix:  GetEnv("REDIS_KEY_PREFIX", "restream"),
		RedisSessionTTL: GetEnvDuration("REDIS_SESSION_TTL", 0),

		Media: Media{
			Application:    GetEnv("MEDIA_APPLICATION", "live"),
			APIPort:        GetEnvInt("MEDIA_API_PORT", 8087),
			APIUser:        GetEnv("MEDIA_API_USER", "admin"),
			Auth:           strings.ToLower(GetEnv("MEDIA_API_AUTH", "digest")),
			Scheme:         GetEnv("MEDIA_API_SCHEME", "http"),
			StreamingPort:  GetEnvInt("MEDIA_STREAMING_PORT", 1935),
			RequestTimeout: GetEnvDuration("MEDIA_REQUEST_TIMEOUT", 10*time.Second),
			RateLimit:      GetEnvFloat("MEDIA_RATE_LIMIT", 20),
			RateBurst:      GetEnvInt("MEDIA_RATE_BURST", 10),
		},
		Fanout: Fanout{
			Timeout:     GetEnvDuration("FANOUT_TIMEOUT", 5*time.Second),
			Concurrency: GetEnvInt("FANOUT_CONCURRENCY", 4),
		},
		LoadThreshold: GetEnvFloat("LOAD_THRESHOLD", 90),
		Server: StaticServer{
			Host:     GetEnv("MEDIA_SERVER_HOST", ""),
			Password: GetEnv("MEDIA_SERVER_PASSWORD", ""),
			Limit:    GetEnvInt("MEDIA_SERVER_LIMIT", 10),
		},
		BindingCacheSize: GetEnvInt("BINDING_CACHE_SIZE", 10000),
	}
}

// Validate reports every invalid setting at once.
func (a App) Validate() error {
	var errs []error
	if a.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if a.Media.Auth != "digest" && a.Media.Auth != "basic" {
		errs = append(errs, fmt.Errorf("MEDIA_API_AUTH must be digest or basic, got %q", a.Media.Auth))
	}
	if a.Media.Scheme != "http" && a.Media.Scheme != "https" {
		errs = append(errs, fmt.Errorf("MEDIA_API_SCHEME must be http or https, got %q", a.Media.Scheme))
	}
	if a.Media.APIPort <= 0 || a.Media.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("MEDIA_API_PORT out of range: %d", a.Media.APIPort))
	}
	if a.Media.StreamingPort <= 0 || a.Media.StreamingPort > 65535 {
		errs = append(errs, fmt.Errorf("MEDIA_STREAMING_PORT out of range: %d", a.Media.StreamingPort))
	}
	if a.Media.RequestTimeout <= 0 {
		errs = append(errs, errors.New("MEDIA_REQUEST_TIMEOUT must be positive"))
	}
	if a.Media.RateLimit <= 0 || a.Media.RateBurst <= 0 {
		errs = append(errs, errors.New("MEDIA_RATE_LIMIT and MEDIA_RATE_BURST must be positive"))
	}
	if a.Fanout.Timeout <= 0 || a.Fanout.Concurrency <= 0 {
		errs = append(errs, errors.New("FANOUT_TIMEOUT and FANOUT_CONCURRENCY must be positive"))
	}
	if a.LoadThreshold <= 0 || a.LoadThreshold > 100 {
		errs = append(errs, fmt.Errorf("LOAD_THRESHOLD must be in (0, 100], got %v", a.LoadThreshold))
	}
	if a.BindingCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("BINDING_CACHE_SIZE must be positive, got %d", a.BindingCacheSize))
	}
	if a.DatabaseURL == "" && a.Server.Host == "" {
		errs = append(errs, errors.New("either DATABASE_URL or MEDIA_SERVER_HOST is required"))
	}
	if a.DatabaseURL == "" && a.Server.Limit <= 0 {
		errs = append(errs, errors.New("MEDIA_SERVER_LIMIT must be positive"))
	}
	return errors.Join(errs...)
}
