package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/agrimarket/internal/store"
	"github.com/nao1215/agrimarket/pkg/middleware"
	"github.com/nao1215/agrimarket/pkg/response"
)

// HeaderAssertedUserID は自己申告のユーザーIDを受け取るヘッダー。
const HeaderAssertedUserID = "X-User-ID"

const (
	contextKeyIdentity = "identity"
	contextKeyProfile  = "profile"
)

// CredentialsFromRequest はリクエストから認証情報を取り出す。
func CredentialsFromRequest(r *http.Request, allowAsserted bool) Credentials {
	var creds Credentials
	if token, err := middleware.BearerToken(r.Header.Get("Authorization")); err == nil {
		creds.Token = token
	}
	if allowAsserted {
		creds.AssertedUserID = strings.TrimSpace(r.Header.Get(HeaderAssertedUserID))
	}
	return creds
}

// Authenticate は呼び出し元を解決し、ユーザーとプロフィールをコンテキストに設定するGinミドルウェアを返す。
// allowAsserted が true のルートでは事前検証期間中の自己申告も受け付ける。
func Authenticate(r *Resolver, allowAsserted bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, profile, err := r.ResolveCaller(c.Request.Context(), CredentialsFromRequest(c.Request, allowAsserted))
		if err != nil {
			response.Abort(c, err)
			return
		}
		SetCaller(c, id, profile)
		c.Next()
	}
}

// Role は呼び出し元のプロフィールのロールを要求するGinミドルウェアを返す。
// Authenticate の後に適用する。
func Role(role store.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := RequireRole(Caller(c), role); err != nil {
			response.Abort(c, err)
			return
		}
		c.Next()
	}
}

// Caller は Authenticate が設定したプロフィールを返す。
func Caller(c *gin.Context) store.Profile {
	p, _ := c.Get(contextKeyProfile)
	profile, _ := p.(store.Profile)
	return profile
}

// CallerIdentity は Authenticate が設定したユーザーを返す。
func CallerIdentity(c *gin.Context) Identity {
	v, _ := c.Get(contextKeyIdentity)
	id, _ := v.(Identity)
	return id
}

// SetCaller は解決済みの呼び出し元をコンテキストに設定する。
// Authenticate 以外の方法で呼び出し元を解決したルートで Role や Caller を使うために呼ぶ。
func SetCaller(c *gin.Context, id Identity, profile store.Profile) {
	c.Set(contextKeyIdentity, id)
	c.Set(contextKeyProfile, profile)
	middleware.SetUserID(c, id.UserID)
}
