// Package storetest はテスト用のデータベースとシードデータを提供する。
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/nao1215/agrimarket/internal/store"
	"go.uber.org/zap/zaptest"
)

// Epoch はシードデータの作成日時。
var Epoch = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// Open は一時ディレクトリのSQLiteにマイグレーションを適用して返す。
func Open(t *testing.T) (*sqlx.DB, *store.Queries) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(context.Background(), store.DriverSQLite, dsn, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("テスト用DBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, store.New(db)
}

// SeedProfile は指定ロールのプロフィールを作成する。
func SeedProfile(t *testing.T, q *store.Queries, role store.Role, status store.ProfileStatus) store.Profile {
	t.Helper()

	p := store.Profile{
		ID:          uuid.NewString(),
		UserID:      uuid.NewString(),
		DisplayName: string(role) + "-user",
		Email:       string(role) + "@example.com",
		Role:        role,
		Status:      status,
		CreatedAt:   Epoch,
		UpdatedAt:   Epoch,
	}
	if err := q.CreateProfile(context.Background(), p); err != nil {
		t.Fatalf("テスト用プロフィールの作成に失敗: %v", err)
	}
	return p
}

// SeedFarmer は未割り当ての農家とそのプロフィールを作成する。
func SeedFarmer(t *testing.T, q *store.Queries) (store.Farmer, store.Profile) {
	t.Helper()

	p := SeedProfile(t, q, store.RoleFarmer, store.ProfileStatusPending)
	f := store.Farmer{
		ID:            uuid.NewString(),
		ProfileID:     p.ID,
		FarmName:      "テスト農園",
		FarmSizeAcres: 4.5,
		State:         "Punjab",
		District:      "Ludhiana",
		Crops:         store.StringList{"wheat", "rice"},
		CreatedAt:     Epoch,
		UpdatedAt:     Epoch,
	}
	if err := q.CreateFarmer(context.Background(), f); err != nil {
		t.Fatalf("テスト用農家の作成に失敗: %v", err)
	}
	return f, p
}

// SeedConsultant はコンサルタントとそのプロフィールを作成する。
func SeedConsultant(t *testing.T, q *store.Queries) (store.Consultant, store.Profile) {
	t.Helper()

	p := SeedProfile(t, q, store.RoleConsultant, store.ProfileStatusActive)
	c := store.Consultant{
		ID:              uuid.NewString(),
		ProfileID:       p.ID,
		Qualification:   "M.Sc. Agronomy",
		Specializations: store.StringList{"soil"},
		ExperienceYears: 6,
		CreatedAt:       Epoch,
		UpdatedAt:       Epoch,
	}
	if err := q.CreateConsultant(context.Background(), c); err != nil {
		t.Fatalf("テスト用コンサルタントの作成に失敗: %v", err)
	}
	return c, p
}
