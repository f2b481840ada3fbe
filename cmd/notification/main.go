// 通知サービスのエントリポイント。
// 受信者向けに通知の一覧と既読管理を提供し、
// 管理者向けにテンプレートからの通知送信を受け付ける。
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/juju/clock"
	"github.com/nao1215/agrimarket/internal/config"
	"github.com/nao1215/agrimarket/internal/identity"
	"github.com/nao1215/agrimarket/internal/notification"
	"github.com/nao1215/agrimarket/internal/store"
	"github.com/nao1215/agrimarket/pkg/logger"
	"github.com/nao1215/agrimarket/pkg/middleware"
	"go.uber.org/zap"
)

func main() {
	log, err := logger.New(logger.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "ロガーの初期化に失敗: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(log); err != nil {
		log.Fatal("通知サービスの起動に失敗", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	cfg, err := config.Load("8086")
	if err != nil {
		return err
	}

	db, err := store.Open(context.Background(), cfg.DBDriver, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer db.Close()

	queries := store.New(db)
	verifier := identity.NewTokenVerifier(cfg.AuthServiceURL, cfg.JWTSecret, cfg.StepTimeout)
	server := notification.NewServer(notification.Options{
		Port:           cfg.Port,
		AllowedOrigins: middleware.ParseOrigins(cfg.FrontendURL),
		Resolver:       identity.NewResolver(verifier, queries, clock.WallClock, 0, log),
		Queries:        queries,
		Clock:          clock.WallClock,
		Logger:         log,
	})

	log.Info("通知サービスを起動します", zap.String("port", cfg.Port))
	return server.Run()
}
