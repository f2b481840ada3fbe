package marketplace

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/clock"
	"github.com/nao1215/agrimarket/internal/apperr"
	"github.com/nao1215/agrimarket/internal/assignment"
	"github.com/nao1215/agrimarket/internal/config"
	"github.com/nao1215/agrimarket/internal/identity"
	"github.com/nao1215/agrimarket/internal/notification"
	"github.com/nao1215/agrimarket/internal/registration"
	"github.com/nao1215/agrimarket/internal/saga"
	"github.com/nao1215/agrimarket/internal/store"
	"github.com/nao1215/agrimarket/pkg/middleware"
	"github.com/nao1215/agrimarket/pkg/response"
	"go.uber.org/zap"
)

// devTokenTTL は開発用トークンの有効期間。
const devTokenTTL = 24 * time.Hour

// Server はマーケットプレイスサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	cfg  config.Config

	queries      *store.Queries
	resolver     *identity.Resolver
	assignment   *assignment.Service
	registration *registration.Service
	log          *zap.Logger
}

// Options は Server の依存関係。
type Options struct {
	Config  config.Config
	Queries *store.Queries
	Clock   clock.Clock
	Logger  *zap.Logger
	// Verifier を指定しない場合は設定に従って選ぶ。
	Verifier identity.TokenVerifier
}

// NewServer は新しいマーケットプレイスサーバーを生成する。
func NewServer(opts Options) *Server {
	cfg := opts.Config

	router := gin.New()
	router.Use(middleware.Recovery(opts.Logger))
	router.Use(middleware.RequestLogger(opts.Logger))
	router.Use(middleware.CORS(middleware.ParseOrigins(cfg.FrontendURL)))

	verifier := opts.Verifier
	if verifier == nil {
		verifier = identity.NewTokenVerifier(cfg.AuthServiceURL, cfg.JWTSecret, cfg.StepTimeout)
	}

	runner := saga.NewRunner(opts.Queries, opts.Clock, opts.Logger, saga.Config{
		StepTimeout:         cfg.StepTimeout,
		CompensationTimeout: cfg.CompensationTimeout,
	})
	dispatcher := notification.NewDispatcher(notification.DefaultRegistry(), opts.Queries, opts.Clock)
	var assignmentNotifier assignment.Notifier
	if cfg.NotifyOnAssignment {
		assignmentNotifier = dispatcher
	}

	s := &Server{
		router:       router,
		port:         cfg.Port,
		cfg:          cfg,
		queries:      opts.Queries,
		resolver:     identity.NewResolver(verifier, opts.Queries, opts.Clock, cfg.PreVerificationWindow, opts.Logger),
		assignment:   assignment.NewService(opts.Queries, runner, assignmentNotifier, opts.Clock, opts.Logger),
		registration: registration.NewService(opts.Queries, runner, dispatcher, opts.Clock, opts.Logger),
		log:          opts.Logger,
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
	if s.cfg.DevAuth {
		// 開発用トークン発行
		s.router.POST("/auth/dev-token", s.handleDevToken())
	}

	api := s.router.Group("/api/v1")
	{
		// 農家の割り当て（コンサルタントのみ）
		api.POST("/assignments",
			identity.Authenticate(s.resolver, false),
			identity.Role(store.RoleConsultant),
			s.handleAssign())

		// 登録完了（サインアップ直後の自己申告も受け付ける）
		api.POST("/consultants/registration",
			identity.Authenticate(s.resolver, true),
			identity.Role(store.RoleConsultant),
			s.handleCompleteRegistration())

		// Sagaの実行記録（管理者のみ）
		admin := api.Group("/admin")
		admin.Use(identity.Authenticate(s.resolver, false), identity.Role(store.RoleAdmin))
		saga.NewAdminHandler(s.queries).Register(admin)
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "marketplace"})
	})
}

// handleAssign は認証済みコンサルタントを農家に割り当てるハンドラ。
func (s *Server) handleAssign() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req assignment.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, apperr.FromBinding(err))
			return
		}

		caller := identity.Caller(c)
		consultant, err := s.queries.GetConsultantByProfileID(c.Request.Context(), caller.ID)
		if errors.Is(err, store.ErrNotFound) {
			s.fail(c, apperr.NotFound("コンサルタント情報が見つかりません"))
			return
		}
		if err != nil {
			s.fail(c, apperr.Internal("", "コンサルタントの取得に失敗しました", err))
			return
		}
		req.ConsultantProfileID = caller.ID
		req.ConsultantID = consultant.ID

		res, err := s.assignment.Assign(c.Request.Context(), req)
		if err != nil {
			s.fail(c, err)
			return
		}
		response.OK(c, res)
	}
}

// handleCompleteRegistration はコンサルタントの登録を完了するハンドラ。
// 入力の検証はSagaの前に行い、不正な入力では何も書き込まない。
func (s *Server) handleCompleteRegistration() gin.HandlerFunc {
	return func(c *gin.Context) {
		var raw registration.RawInput
		if err := c.ShouldBindJSON(&raw); err != nil {
			s.fail(c, apperr.FromBinding(err))
			return
		}
		in, err := registration.ParseInput(raw)
		if err != nil {
			s.fail(c, err)
			return
		}

		profile := identity.Caller(c)
		if err := s.registration.Complete(c.Request.Context(), profile, in); err != nil {
			s.fail(c, err)
			return
		}
		s.log.Info("コンサルタント登録を完了",
			zap.String("profile_id", profile.ID),
			zap.Bool("asserted", identity.CallerIdentity(c).Asserted),
		)
		response.OK(c, gin.H{"profile_id": profile.ID, "completed": true})
	}
}

// devTokenRequest は開発用トークン発行リクエスト。
type devTokenRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Email  string `json:"email" binding:"omitempty,email"`
}

// handleDevToken は開発用JWTトークンを発行するハンドラ。
// DEV_AUTH が有効な場合のみ登録される。
func (s *Server) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req devTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, apperr.FromBinding(err))
			return
		}

		token, err := middleware.GenerateJWT(s.cfg.JWTSecret, req.UserID, req.Email, devTokenTTL)
		if err != nil {
			s.fail(c, apperr.Internal("", "トークンの生成に失敗しました", err))
			return
		}
		response.OK(c, gin.H{"token": token, "user_id": req.UserID})
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
