package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Issuer は認証サービスが発行するトークンの発行者名。
const Issuer = "agrimarket-auth"

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証サービス上のユーザーID。プロフィールの user_id に対応する。
	UserID string `json:"user_id"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
}

// ErrNoBearer はAuthorizationヘッダーが無いかBearer形式でないことを表す。
var ErrNoBearer = errors.New("Bearerトークンがありません")

// contextKeyUserID はGinコンテキストのキー。
const contextKeyUserID = "user_id"

// GenerateJWT はユーザー情報から有効期限 ttl のJWTトークンを生成する。
// 開発用のトークン発行エンドポイントとテストで使用する。
func GenerateJWT(secret, userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
		UserID: userID,
		Email:  email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// ParseJWT はHS256で署名されたトークンを検証し、クレームを返す。
// 署名・有効期限・発行者のいずれかが不正な場合はエラーを返す。
func ParseJWT(secret, tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("トークンの検証に失敗: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("トークンが無効です")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, errors.New("トークンにユーザーIDがありません")
	}
	return claims, nil
}

// BearerToken はAuthorizationヘッダーの値からトークン部分を取り出す。
func BearerToken(header string) (string, error) {
	token, found := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !found || token == "" {
		return "", ErrNoBearer
	}
	return token, nil
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// SetUserID で設定されていない場合は空文字列を返す。
func GetUserID(c *gin.Context) string {
	return c.GetString(contextKeyUserID)
}

// SetUserID はアクセスログ等が参照するユーザーIDをコンテキストに設定する。
func SetUserID(c *gin.Context, userID string) {
	c.Set(contextKeyUserID, userID)
}
