package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config carries the process-level settings of the CourseGate API.
type Config struct {
	AppName            string
	AppEnv             string
	AppPort            string
	DatabaseURL        string
	RedisURL           string
	NATSURL            string
	JWTSecret          string
	JWTRefreshSecret   string
	StructureCacheTTL  time.Duration
	ProgressCacheTTL   time.Duration
	UnlockChannel      string
	SSEKeepAlive       time.Duration
	SubmissionsURL     string
	SubmissionsTimeout time.Duration
	CORSAllowOrigins   string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("COURSEGATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "CourseGate API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("structure.cache_ttl", "5m")
	v.SetDefault("progress.cache_ttl", "2m")
	v.SetDefault("unlock.channel", "coursegate:events")
	v.SetDefault("sse.keepalive", "30s")
	v.SetDefault("submissions.timeout", "5s")
	v.SetDefault("cors.allow_origins", "*")

	structureTTL, err := parseDuration(v.GetString("structure.cache_ttl"), "structure cache ttl")
	if err != nil {
		return Config{}, err
	}
	progressTTL, err := parseDuration(v.GetString("progress.cache_ttl"), "progress cache ttl")
	if err != nil {
		return Config{}, err
	}
	keepAlive, err := parseDuration(v.GetString("sse.keepalive"), "sse keepalive")
	if err != nil {
		return Config{}, err
	}
	submissionsTimeout, err := parseDuration(v.GetString("submissions.timeout"), "submissions timeout")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:            v.GetString("app.name"),
		AppEnv:             v.GetString("app.env"),
		AppPort:            v.GetString("app.port"),
		DatabaseURL:        v.GetString("database.url"),
		RedisURL:           v.GetString("redis.url"),
		NATSURL:            v.GetString("nats.url"),
		JWTSecret:          v.GetString("jwt.secret"),
		JWTRefreshSecret:   v.GetString("jwt.refresh_secret"),
		StructureCacheTTL:  structureTTL,
		ProgressCacheTTL:   progressTTL,
		UnlockChannel:      v.GetString("unlock.channel"),
		SSEKeepAlive:       keepAlive,
		SubmissionsURL:     strings.TrimRight(v.GetString("submissions.url"), "/"),
		SubmissionsTimeout: submissionsTimeout,
		CORSAllowOrigins:   v.GetString("cors.allow_origins"),
	}

	if cfg.JWTSecret == "" || cfg.JWTRefreshSecret == "" {
		return Config{}, fmt.Errorf("jwt secrets must be provided")
	}

	return cfg, nil
}

func parseDuration(raw, name string) (time.Duration, error) {
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return parsed, nil
}
