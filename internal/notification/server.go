package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/clock"
	"github.com/nao1215/agrimarket/internal/apperr"
	"github.com/nao1215/agrimarket/internal/identity"
	"github.com/nao1215/agrimarket/internal/store"
	"github.com/nao1215/agrimarket/pkg/middleware"
	"github.com/nao1215/agrimarket/pkg/response"
	"go.uber.org/zap"
)

// Queries は通知サービスが使うストア操作。*store.Queries が実装する。
type Queries interface {
	Store
	GetNotification(ctx context.Context, id string) (store.Notification, error)
	ListNotificationsByRecipient(ctx context.Context, recipientID string) ([]store.Notification, error)
	ListUnreadNotifications(ctx context.Context, recipientID string) ([]store.Notification, error)
	MarkNotificationRead(ctx context.Context, id string, now time.Time) error
	MarkAllNotificationsRead(ctx context.Context, recipientID string, now time.Time) (int64, error)
}

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// resolver は呼び出し元と本人のプロフィールを解決する。
	resolver   *identity.Resolver
	queries    Queries
	dispatcher *Dispatcher
	clock      clock.Clock
	log        *zap.Logger
}

// Options は Server の依存関係。
type Options struct {
	Port           string
	AllowedOrigins []string
	// Resolver はマーケットプレイスと同じ検証方式で構成する。
	Resolver *identity.Resolver
	Queries  Queries
	Registry Registry
	Clock    clock.Clock
	Logger   *zap.Logger
}

// NewServer は新しい通知サーバーを生成する。
func NewServer(opts Options) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(opts.Logger))
	router.Use(middleware.RequestLogger(opts.Logger))
	router.Use(middleware.CORS(opts.AllowedOrigins))

	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}

	s := &Server{
		router:     router,
		port:       opts.Port,
		resolver:   opts.Resolver,
		queries:    opts.Queries,
		dispatcher: NewDispatcher(registry, opts.Queries, opts.Clock),
		clock:      opts.Clock,
		log:        opts.Logger,
	}
	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	// 通知の受信者はプロフィールIDで表す
	api.Use(identity.Authenticate(s.resolver, false))
	{
		notifications := api.Group("/notifications")
		{
			// 通知一覧取得
			notifications.GET("", s.handleList())
			// 未読通知一覧取得
			notifications.GET("/unread", s.handleListUnread())
			// 通知を既読にする
			notifications.PUT("/:id/read", s.handleMarkAsRead())
			// 全通知を既読にする
			notifications.PUT("/read-all", s.handleMarkAllAsRead())
		}

		// 通知送信（管理者のみ）
		internal := api.Group("/internal")
		internal.Use(identity.Role(store.RoleAdmin))
		{
			internal.POST("/dispatch", s.handleDispatch())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notification"})
	})
}

// notificationList は空でも配列としてJSONに出力する。
func notificationList(ns []store.Notification) []store.Notification {
	if ns == nil {
		return []store.Notification{}
	}
	return ns
}

// handleList は認証済みユーザーの通知一覧を返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		ns, err := s.queries.ListNotificationsByRecipient(c.Request.Context(), identity.Caller(c).ID)
		if err != nil {
			s.fail(c, apperr.Internal("", "通知一覧の取得に失敗しました", err))
			return
		}
		response.OK(c, notificationList(ns))
	}
}

// handleListUnread は認証済みユーザーの未読通知一覧を返すハンドラ。
func (s *Server) handleListUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		ns, err := s.queries.ListUnreadNotifications(c.Request.Context(), identity.Caller(c).ID)
		if err != nil {
			s.fail(c, apperr.Internal("", "未読通知一覧の取得に失敗しました", err))
			return
		}
		response.OK(c, notificationList(ns))
	}
}

// handleMarkAsRead は指定された通知を既読にするハンドラ。
func (s *Server) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		// 通知の存在確認と所有者チェック
		n, err := s.queries.GetNotification(ctx, c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			s.fail(c, apperr.NotFound("通知が見つかりません"))
			return
		}
		if err != nil {
			s.fail(c, apperr.Internal("", "通知の取得に失敗しました", err))
			return
		}
		if n.RecipientID != identity.Caller(c).ID {
			s.fail(c, apperr.Forbidden("この通知を操作する権限がありません"))
			return
		}

		if err := s.queries.MarkNotificationRead(ctx, n.ID, s.clock.Now()); err != nil {
			s.fail(c, apperr.Internal("", "通知の既読処理に失敗しました", err))
			return
		}
		response.OK(c, gin.H{"id": n.ID, "is_read": true})
	}
}

// handleMarkAllAsRead は認証済みユーザーの全通知を既読にするハンドラ。
func (s *Server) handleMarkAllAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := s.queries.MarkAllNotificationsRead(c.Request.Context(), identity.Caller(c).ID, s.clock.Now())
		if err != nil {
			s.fail(c, apperr.Internal("", "全通知の既読処理に失敗しました", err))
			return
		}
		response.OK(c, gin.H{"updated": count})
	}
}

// dispatchRequest は通知送信リクエストのJSON構造。
type dispatchRequest struct {
	Notifications []Request `json:"notifications" binding:"required,min=1,max=100,dive"`
}

// handleDispatch は通知をまとめて送信するハンドラ。
// 全件が1回の挿入で保存されるため、1件でも不正なら何も保存しない。
func (s *Server) handleDispatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dispatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, apperr.FromBinding(err))
			return
		}

		err := s.dispatcher.DispatchMany(c.Request.Context(), req.Notifications)
		switch {
		case errors.Is(err, ErrUnknownKind), errors.Is(err, ErrMissingContext):
			s.fail(c, apperr.BadRequest(apperr.CodeValidation, err.Error()))
			return
		case err != nil:
			s.fail(c, apperr.Internal("", "通知の送信に失敗しました", err))
			return
		}
		response.Created(c, gin.H{"dispatched": len(req.Notifications)})
	}
}

// fail はエラーレスポンスを返す。内部エラーは原因を含めてErrorで記録する。
func (s *Server) fail(c *gin.Context, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		s.log.Error("リクエストの処理に失敗",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	response.Fail(c, err)
}
