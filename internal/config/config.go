package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// データベースドライバ名
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// 同名参加者の作成ポリシー
const (
	// DuplicatePolicyReject は同名の参加者作成を重複エラーとして拒否する。
	DuplicatePolicyReject = "reject"
	// DuplicatePolicyLogin は既存の参加者をそのまま返す（ログインとして扱う）。
	DuplicatePolicyLogin = "login"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL    string
	DatabaseDriver string

	// Roster / Signup
	RosterLimit         int
	SignupCapacity      int
	SignupWindowWeeks   int
	DuplicatePolicy     string
	SignupRetentionDays int
	CleanupInterval     time.Duration

	// Rate Limit
	RateLimitPerMinute int

	// Logging
	LogFormat string
	LogLevel  string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DatabaseDriver = getEnvString("DATABASE_DRIVER", InferDriver(cfg.DatabaseURL))
	cfg.RosterLimit = getEnvInt("ROSTER_LIMIT", 50)
	cfg.SignupCapacity = getEnvInt("SIGNUP_CAPACITY", 8)
	cfg.SignupWindowWeeks = getEnvInt("SIGNUP_WINDOW_WEEKS", 4)
	cfg.DuplicatePolicy = strings.ToLower(getEnvString("PARTICIPANT_DUPLICATE_POLICY", DuplicatePolicyReject))
	cfg.SignupRetentionDays = getEnvInt("SIGNUP_RETENTION_DAYS", 90)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", 120)
	cfg.LogFormat = strings.ToLower(getEnvString("LOG_FORMAT", "json"))
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は値の組み合わせを検証する。
func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER: %q", c.DatabaseDriver)
	}
	switch c.DuplicatePolicy {
	case DuplicatePolicyReject, DuplicatePolicyLogin:
	default:
		return fmt.Errorf("unsupported PARTICIPANT_DUPLICATE_POLICY: %q", c.DuplicatePolicy)
	}
	if c.RosterLimit < 1 {
		return fmt.Errorf("ROSTER_LIMIT must be positive: %d", c.RosterLimit)
	}
	if c.SignupCapacity < 1 {
		return fmt.Errorf("SIGNUP_CAPACITY must be positive: %d", c.SignupCapacity)
	}
	return nil
}

// InferDriver は接続URLからドライバを推定する。
// file: スキームや .db 拡張子はSQLite、それ以外はPostgreSQLとみなす。
func InferDriver(databaseURL string) string {
	switch {
	case strings.HasPrefix(databaseURL, "file:"),
		strings.HasPrefix(databaseURL, "sqlite:"),
		strings.HasSuffix(databaseURL, ".db"),
		databaseURL == ":memory:":
		return DriverSQLite
	default:
		return DriverPostgres
	}
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
