package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// IdP
	IDPDomain          string
	IDPClientID        string
	IDPClientSecret    string
	ManagementAudience string
	IDPHTTPTimeout     time.Duration
	IDPAllowInsecure   bool // ローカルのモックIdP向け。本番では無効にする

	// Bearer認証
	APIAudience  string
	JWKSCacheTTL time.Duration

	// Metadata
	MetadataNamespace string

	// Rate Limit
	RateLimitGeneral    int
	RateLimitOnboarding int

	// Pantry
	PantryPurgeInterval    time.Duration
	PantryExpiredRetention time.Duration

	// Server
	ServerPort  string
	MetricsPort string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.IDPDomain = os.Getenv("IDP_DOMAIN")
	if cfg.IDPDomain == "" {
		missing = append(missing, "IDP_DOMAIN")
	}

	cfg.IDPClientID = os.Getenv("IDP_CLIENT_ID")
	if cfg.IDPClientID == "" {
		missing = append(missing, "IDP_CLIENT_ID")
	}

	cfg.IDPClientSecret = os.Getenv("IDP_CLIENT_SECRET")
	if cfg.IDPClientSecret == "" {
		missing = append(missing, "IDP_CLIENT_SECRET")
	}

	cfg.APIAudience = os.Getenv("API_AUDIENCE")
	if cfg.APIAudience == "" {
		missing = append(missing, "API_AUDIENCE")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ManagementAudience = getEnvString("IDP_MANAGEMENT_AUDIENCE", defaultManagementAudience(cfg.IDPDomain))
	cfg.IDPHTTPTimeout = getEnvDuration("IDP_HTTP_TIMEOUT", 10*time.Second)
	cfg.IDPAllowInsecure = getEnvBool("IDP_ALLOW_INSECURE", false)
	cfg.JWKSCacheTTL = getEnvDuration("JWKS_CACHE_TTL", 6*time.Hour)
	cfg.MetadataNamespace = getEnvString("METADATA_NAMESPACE", "https://mealplanner.app/")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitOnboarding = getEnvInt("RATE_LIMIT_ONBOARDING", 10)
	cfg.PantryPurgeInterval = getEnvDuration("PANTRY_PURGE_INTERVAL", time.Hour)
	cfg.PantryExpiredRetention = getEnvDuration("PANTRY_EXPIRED_RETENTION", 7*24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "3000")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// defaultManagementAudience はIdPドメインから管理APIのaudienceを組み立てる。
func defaultManagementAudience(domain string) string {
	d := strings.TrimRight(strings.TrimSpace(domain), "/")
	if !strings.HasPrefix(d, "http://") && !strings.HasPrefix(d, "https://") {
		d = "https://" + d
	}
	return d + "/api/v2/"
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
