// Package logger は全サービス共通のzapロガーを生成する。
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config はロガーの設定。
type Config struct {
	// Level はログレベル（debug, info, warn, error）。
	Level string
	// Dev が true の場合は開発用の人間向けフォーマットで出力する。
	Dev bool
}

// ConfigFromEnv は環境変数 LOG_LEVEL と LOG_DEV からロガー設定を読み込む。
func ConfigFromEnv() Config {
	dev := os.Getenv("LOG_DEV") == "1"
	lvl := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if lvl == "" {
		if dev {
			lvl = "debug"
		} else {
			lvl = "info"
		}
	}
	return Config{Level: lvl, Dev: dev}
}

func levelFromString(l string) zapcore.Level {
	switch l {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New は設定に従ってロガーを生成する。
// 本番モードではJSON形式で標準出力に書き出し、error以上でスタックトレースを付与する。
func New(cfg Config) (*zap.Logger, error) {
	lvl := levelFromString(cfg.Level)
	if cfg.Dev {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(lvl)
		// DPanicで落ちないようにする
		c.Development = false
		return c.Build()
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stdout), lvl)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
