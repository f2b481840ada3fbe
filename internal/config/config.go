// Package config は環境変数からサービス設定を読み込む。
//
// 起動時に .env ファイルが存在すれば読み込み、既存の環境変数を優先する。
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

// Config はサービスの設定値。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// DBDriver はデータベースドライバ名（sqlite または pgx）。
	DBDriver string
	// DatabaseURL はデータベースの接続文字列。
	DatabaseURL string
	// JWTSecret は認証サービスが発行するJWTの署名鍵。
	JWTSecret string
	// AuthServiceURL は外部認証サービスのベースURL。空の場合はJWTをローカルで検証する。
	AuthServiceURL string
	// FrontendURL はCORSで許可するフロントエンドのオリジン。
	FrontendURL string
	// DevAuth が true の場合は開発用トークン発行エンドポイントを有効にする。
	DevAuth bool
	// StepTimeout はSagaの各ステップに与える時間。
	StepTimeout time.Duration
	// CompensationTimeout は補償アクションに与える時間。
	CompensationTimeout time.Duration
	// PreVerificationWindow はサインアップ直後に自己申告のユーザーIDを受け付ける期間。
	PreVerificationWindow time.Duration
	// NotifyOnAssignment が true の場合は割り当て完了時に双方へ通知する。
	NotifyOnAssignment bool
}

// Load は .env を読み込んだうえで環境変数から設定を組み立てる。
// defaultPort はサービスごとの既定ポート。
func Load(defaultPort string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf(".envの読み込みに失敗: %w", err)
	}
	return FromEnv(defaultPort)
}

// FromEnv は環境変数のみから設定を組み立てる。
func FromEnv(defaultPort string) (Config, error) {
	cfg := Config{
		Port:           getEnvOr("PORT", defaultPort),
		DBDriver:       getEnvOr("DB_DRIVER", "sqlite"),
		DatabaseURL:    getEnvOr("DATABASE_URL", "/data/agrimarket.db"),
		JWTSecret:      getEnvOr("JWT_SECRET", "dev-secret-key"),
		AuthServiceURL: strings.TrimRight(os.Getenv("AUTH_SERVICE_URL"), "/"),
		FrontendURL:    getEnvOr("FRONTEND_URL", "http://localhost:3000"),
	}

	var err error
	if cfg.DevAuth, err = getBool("DEV_AUTH", false); err != nil {
		return Config{}, err
	}
	if cfg.NotifyOnAssignment, err = getBool("NOTIFY_ON_ASSIGNMENT", true); err != nil {
		return Config{}, err
	}
	if cfg.StepTimeout, err = getDuration("SAGA_STEP_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.CompensationTimeout, err = getDuration("SAGA_COMPENSATION_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PreVerificationWindow, err = getDuration("PRE_VERIFICATION_WINDOW", time.Hour); err != nil {
		return Config{}, err
	}

	switch cfg.DBDriver {
	case "sqlite", "pgx":
	default:
		return Config{}, fmt.Errorf("DB_DRIVERが不正です: %q", cfg.DBDriver)
	}
	return cfg, nil
}

// getEnvOr は環境変数を取得し、未設定の場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func getBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%sが不正です: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%sが不正です: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%sは正の値である必要があります", key)
	}
	return d, nil
}
