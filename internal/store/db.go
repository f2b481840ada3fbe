package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/nao1215/agrimarket/pkg/migration"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	// DriverSQLite はmodernc.org/sqliteのドライバ名。
	DriverSQLite = "sqlite"
	// DriverPostgres はpgxのdatabase/sqlドライバ名。
	DriverPostgres = "pgx"
)

// ErrNotFound は対象の行が存在しないことを表す。
var ErrNotFound = errors.New("store: 行が見つかりません")

// ErrInvalidRole はプロフィールのロールが既知の値でないことを表す。
var ErrInvalidRole = errors.New("store: 不明なロールです")

//go:embed migrations
var migrationsFS embed.FS

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Open はデータベースに接続し、マイグレーションを適用する。
func Open(ctx context.Context, driver, dsn string, log *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	switch driver {
	case DriverSQLite:
		// SQLiteは書き込みが直列化されるため接続を1本に固定してSQLITE_BUSYを避ける
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	default:
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースへのpingに失敗: %w", err)
	}

	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("外部キー制約の有効化に失敗: %w", err)
		}
	}

	if err := migration.Run(ctx, db, migrationsFS, "migrations/"+migrationDir(driver), log); err != nil {
		db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return db, nil
}

func migrationDir(driver string) string {
	if driver == DriverPostgres {
		return "postgres"
	}
	return "sqlite"
}
