package config

import (
	"os"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr    string
	BaseURL string

	AllowedDomain string
	TokenTTL      time.Duration

	Redis       Redis
	PostgresURL string

	GoogleClientID     string
	GoogleClientSecret string

	DiscordToken   string
	DiscordGuildID string
}

// Redis captures connection settings for the token store backend. An empty
// URL means Redis is not configured and the in-memory store is used.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("VERIFY_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	baseURL := os.Getenv("VERIFY_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	domain := os.Getenv("VERIFY_ALLOWED_DOMAIN")
	if domain == "" {
		domain = "iiitkota.ac.in"
	}
	ttl := 5 * time.Minute
	if raw := os.Getenv("VERIFY_TOKEN_TTL"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			ttl = parsed
		}
	}

	return Server{
		Addr:          addr,
		BaseURL:       baseURL,
		AllowedDomain: domain,
		TokenTTL:      ttl,
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		PostgresURL:        os.Getenv("POSTGRES_URL"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		DiscordToken:       os.Getenv("DISCORD_TOKEN"),
		DiscordGuildID:     os.Getenv("DISCORD_GUILD_ID"),
	}
}
