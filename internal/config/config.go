package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	// AppTitle はページタイトルとログに使用するアプリケーション名。
	AppTitle = "Firebase Auth Demo"
	// AppVersion はアプリケーションのバージョン。
	AppVersion = "1.0.0"

	// minSecretKeyLength はセッション署名鍵の最小バイト数。
	minSecretKeyLength = 32
)

// Store drivers
const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
)

// FirebaseWebConfig はブラウザ側Firebase SDKに渡す公開設定。
// JSONタグはSDKのfirebaseConfigオブジェクトのキー名に合わせる。
type FirebaseWebConfig struct {
	APIKey            string `env:"FIREBASE_API_KEY" json:"apiKey"`
	AuthDomain        string `env:"FIREBASE_AUTH_DOMAIN" json:"authDomain"`
	ProjectID         string `env:"FIREBASE_PROJECT_ID" json:"projectId"`
	StorageBucket     string `env:"FIREBASE_STORAGE_BUCKET" json:"storageBucket"`
	MessagingSenderID string `env:"FIREBASE_MESSAGING_SENDER_ID" json:"messagingSenderId"`
	AppID             string `env:"FIREBASE_APP_ID" json:"appId"`
	MeasurementID     string `env:"FIREBASE_MEASUREMENT_ID" json:"measurementId,omitempty"`
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Firebase
	Firebase         FirebaseWebConfig
	FirebaseCertsURL string `env:"FIREBASE_CERTS_URL" envDefault:"https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"`

	// Session
	SecretKey     string `env:"SECRET_KEY"`
	SessionMaxAge int    `env:"SESSION_MAX_AGE" envDefault:"3600"`

	// Store
	StoreDriver     string `env:"STORE_DRIVER" envDefault:"sqlite"`
	DatabaseURL     string `env:"DATABASE_URL"`
	SQLitePath      string `env:"SQLITE_PATH" envDefault:"authdemo.db"`
	UsersCollection string `env:"USERS_COLLECTION" envDefault:"users"`

	// Timeouts
	VerifyTimeout time.Duration `env:"VERIFY_TIMEOUT" envDefault:"5s"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	// Rate Limit（req/min）
	RateLimitAuth    int `env:"RATE_LIMIT_AUTH" envDefault:"30"`
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8000"`
	BaseURL    string `env:"BASE_URL" envDefault:"http://localhost:8000"`
	Debug      bool   `env:"DEBUG" envDefault:"false"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN"`

	// Tracing
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// LoadDotEnv はカレントディレクトリの.envファイルを環境変数に読み込む。
// ファイルが存在しない場合は何もしない。既存の環境変数は上書きしない。
func LoadDotEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// Required fields
	var missing []string

	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "FIREBASE_PROJECT_ID")
	}
	if cfg.SecretKey == "" {
		missing = append(missing, "SECRET_KEY")
	}
	if cfg.StoreDriver == StoreDriverPostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if len(cfg.SecretKey) < minSecretKeyLength {
		return nil, fmt.Errorf("SECRET_KEY must be at least %d bytes", minSecretKeyLength)
	}

	switch cfg.StoreDriver {
	case StoreDriverSQLite, StoreDriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER: %q (allowed: %s, %s)",
			cfg.StoreDriver, StoreDriverSQLite, StoreDriverPostgres)
	}

	if cfg.SessionMaxAge <= 0 {
		return nil, fmt.Errorf("SESSION_MAX_AGE must be positive, got %d", cfg.SessionMaxAge)
	}

	// Derived fields
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	if cfg.CORSAllowedOrigin == "" {
		cfg.CORSAllowedOrigin = strings.TrimRight(cfg.BaseURL, "/")
	}

	return cfg, nil
}

// SessionTTL はセッションの有効期間をtime.Durationで返す。
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionMaxAge) * time.Second
}
