package identity

import (
	"context"
	"errors"
	"time"

	"github.com/juju/clock"
	"github.com/nao1215/agrimarket/internal/apperr"
	"github.com/nao1215/agrimarket/internal/store"
	"go.uber.org/zap"
)

// ProfileReader は呼び出し元スコープでプロフィールを読み取る。
type ProfileReader interface {
	GetProfileByUserID(ctx context.Context, userID string) (store.Profile, error)
}

// Credentials はリクエストが提示した認証情報。
type Credentials struct {
	// Token はBearerトークン。
	Token string
	// AssertedUserID は事前検証期間中に限り受け付ける自己申告のユーザーID。
	AssertedUserID string
}

// Resolver は認証情報からユーザーとプロフィールを解決する。
type Resolver struct {
	verifier TokenVerifier
	profiles ProfileReader
	clock    clock.Clock
	// window は自己申告を受け付ける、プロフィール作成からの期間。0 の場合は受け付けない。
	window time.Duration
	log    *zap.Logger
}

// NewResolver は新しい Resolver を生成する。
func NewResolver(verifier TokenVerifier, profiles ProfileReader, clk clock.Clock, window time.Duration, log *zap.Logger) *Resolver {
	return &Resolver{
		verifier: verifier,
		profiles: profiles,
		clock:    clk,
		window:   window,
		log:      log,
	}
}

// ResolveToken はBearerトークンを検証してユーザーを返す。
func (r *Resolver) ResolveToken(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, apperr.Unauthorized("認証が必要です")
	}
	id, err := r.verifier.Verify(ctx, token)
	if errors.Is(err, ErrInvalidToken) {
		return Identity{}, apperr.Unauthorized("トークンが無効です")
	}
	if err != nil {
		return Identity{}, apperr.Internal("", "認証サービスに接続できません", err)
	}
	return id, nil
}

// ResolveCaller はユーザーと本人のプロフィールを解決する。
// トークンが無い場合、自己申告のユーザーIDは作成から window 以内で
// 未検証かつ pending のプロフィールに対してのみ受け付ける。
func (r *Resolver) ResolveCaller(ctx context.Context, creds Credentials) (Identity, store.Profile, error) {
	if creds.Token != "" {
		id, err := r.ResolveToken(ctx, creds.Token)
		if err != nil {
			return Identity{}, store.Profile{}, err
		}
		profile, err := r.profile(ctx, id.UserID)
		if err != nil {
			return Identity{}, store.Profile{}, err
		}
		return id, profile, nil
	}

	if creds.AssertedUserID == "" || r.window <= 0 {
		return Identity{}, store.Profile{}, apperr.Unauthorized("認証が必要です")
	}

	profile, err := r.profile(ctx, creds.AssertedUserID)
	if err != nil {
		return Identity{}, store.Profile{}, err
	}
	age := r.clock.Now().Sub(profile.CreatedAt)
	if profile.Status != store.ProfileStatusPending || profile.IsVerified || age < 0 || age > r.window {
		r.log.Warn("事前検証期間外の自己申告を拒否",
			zap.String("user_id", creds.AssertedUserID),
			zap.String("status", string(profile.Status)),
			zap.Duration("age", age),
		)
		return Identity{}, store.Profile{}, apperr.Unauthorized("認証が必要です")
	}
	return Identity{UserID: creds.AssertedUserID, Asserted: true}, profile, nil
}

func (r *Resolver) profile(ctx context.Context, userID string) (store.Profile, error) {
	p, err := r.profiles.GetProfileByUserID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Profile{}, apperr.Unauthorized("プロフィールが見つかりません")
	}
	if err != nil {
		return store.Profile{}, apperr.Internal("", "プロフィールの取得に失敗しました", err)
	}
	return p, nil
}

// RequireRole はプロフィールのロールが role であることを要求する。
func RequireRole(profile store.Profile, role store.Role) error {
	if profile.Role != role {
		return apperr.Forbidden("この操作を行う権限がありません")
	}
	return nil
}
