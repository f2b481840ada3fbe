// マーケットプレイスサービスのエントリポイント。
// コンサルタントによる農家の割り当てと、コンサルタントの登録完了を担当する。
// どちらも複数レコードにまたがる更新をSagaとして実行する。
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/juju/clock"
	"github.com/nao1215/agrimarket/internal/config"
	"github.com/nao1215/agrimarket/internal/marketplace"
	"github.com/nao1215/agrimarket/internal/store"
	"github.com/nao1215/agrimarket/pkg/logger"
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
		log.Fatal("マーケットプレイスサービスの起動に失敗", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	cfg, err := config.Load("8080")
	if err != nil {
		return err
	}

	db, err := store.Open(context.Background(), cfg.DBDriver, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer db.Close()

	server := marketplace.NewServer(marketplace.Options{
		Config:  cfg,
		Queries: store.New(db),
		Clock:   clock.WallClock,
		Logger:  log,
	})

	log.Info("マーケットプレイスサービスを起動します",
		zap.String("port", cfg.Port),
		zap.String("db_driver", cfg.DBDriver),
		zap.Bool("dev_auth", cfg.DevAuth),
	)
	return server.Run()
}
