package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nao1215/agrimarket/pkg/httpclient"
	"github.com/nao1215/agrimarket/pkg/middleware"
)

// ErrInvalidToken はトークンが無効であることを表す。
var ErrInvalidToken = errors.New("identity: トークンが無効です")

// Identity は認証サービス上のユーザー。
type Identity struct {
	// UserID は認証サービスのユーザーID。
	UserID string
	// Email はユーザーのメールアドレス。自己申告の場合は空。
	Email string
	// Asserted は事前検証期間中の自己申告で解決されたかどうか。
	Asserted bool
}

// TokenVerifier はBearerトークンを検証してユーザーを返す。
// 無効なトークンには ErrInvalidToken を返す。
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// JWTVerifier は認証サービスと共有するシークレットでトークンをローカル検証する。
type JWTVerifier struct {
	secret string
}

// NewJWTVerifier は新しい JWTVerifier を生成する。
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify は TokenVerifier の実装。
func (v *JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	claims, err := middleware.ParseJWT(v.secret, token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return Identity{UserID: claims.UserID, Email: claims.Email}, nil
}

// authUser は認証サービスの GET /auth/v1/user のレスポンス。
type authUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// RemoteVerifier は外部認証サービスにトークンを照会する。
type RemoteVerifier struct {
	client *httpclient.Client
}

// NewRemoteVerifier は新しい RemoteVerifier を生成する。
func NewRemoteVerifier(client *httpclient.Client) *RemoteVerifier {
	return &RemoteVerifier{client: client}
}

// Verify は TokenVerifier の実装。
// 認証サービスが401/403を返した場合のみ ErrInvalidToken とし、それ以外の失敗はそのまま返す。
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	var u authUser
	err := v.client.GetJSON(httpclient.WithBearerToken(ctx, token), "/auth/v1/user", &u)
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, fmt.Errorf("認証サービスへの照会に失敗: %w", err)
	}
	if u.ID == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: u.ID, Email: u.Email}, nil
}

// NewTokenVerifier は認証サービスのURLが指定されていれば照会、なければ共有シークレットによる
// ローカル検証を使う TokenVerifier を返す。同じデプロイの全サービスで同じ選択をする。
func NewTokenVerifier(authServiceURL, jwtSecret string, timeout time.Duration) TokenVerifier {
	if authServiceURL != "" {
		return NewRemoteVerifier(httpclient.New(authServiceURL, httpclient.WithTimeout(timeout)))
	}
	return NewJWTVerifier(jwtSecret)
}
