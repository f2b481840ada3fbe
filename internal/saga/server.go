package saga

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/agrimarket/internal/apperr"
	"github.com/nao1215/agrimarket/internal/store"
	"github.com/nao1215/agrimarket/pkg/response"
)

// Inspector はSagaの実行記録を読み取る。*store.Queries が実装する。
type Inspector interface {
	ListSagaRuns(ctx context.Context, status string, limit int) ([]store.SagaRun, error)
	GetSagaRun(ctx context.Context, id string) (store.SagaRun, error)
	ListSagaSteps(ctx context.Context, sagaID string) ([]store.SagaStep, error)
	ListOpenRepairTasks(ctx context.Context) ([]store.RepairTask, error)
}

// AdminHandler は管理者向けにSagaの実行記録と修復タスクを公開する。
type AdminHandler struct {
	inspector Inspector
}

// NewAdminHandler は新しい AdminHandler を生成する。
func NewAdminHandler(inspector Inspector) *AdminHandler {
	return &AdminHandler{inspector: inspector}
}

// Register はルートを登録する。呼び出し側で管理者ロールの検証を済ませておくこと。
func (h *AdminHandler) Register(g *gin.RouterGroup) {
	// Saga一覧取得
	g.GET("/sagas", h.handleList())
	// Saga詳細取得（ステップ履歴含む）
	g.GET("/sagas/:id", h.handleGetByID())
	// 未解決の修復タスク一覧
	g.GET("/repairs", h.handleListRepairs())
}

// listQuery はSaga一覧のクエリパラメータ。
type listQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=running completed failed rolled_back compensation_failed"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=200"`
}

func (h *AdminHandler) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q listQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			response.Fail(c, apperr.FromBinding(err))
			return
		}
		if q.Limit == 0 {
			q.Limit = 50
		}

		runs, err := h.inspector.ListSagaRuns(c.Request.Context(), q.Status, q.Limit)
		if err != nil {
			response.Fail(c, apperr.Internal("", "Saga一覧の取得に失敗しました", err))
			return
		}
		if runs == nil {
			runs = []store.SagaRun{}
		}
		response.OK(c, runs)
	}
}

// runDetail はSagaとそのステップ履歴。
type runDetail struct {
	store.SagaRun
	Steps []store.SagaStep `json:"steps"`
}

func (h *AdminHandler) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		r, err := h.inspector.GetSagaRun(ctx, c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			response.Fail(c, apperr.NotFound("Sagaが見つかりません"))
			return
		}
		if err != nil {
			response.Fail(c, apperr.Internal("", "Sagaの取得に失敗しました", err))
			return
		}

		steps, err := h.inspector.ListSagaSteps(ctx, r.ID)
		if err != nil {
			response.Fail(c, apperr.Internal("", "ステップ履歴の取得に失敗しました", err))
			return
		}
		if steps == nil {
			steps = []store.SagaStep{}
		}
		response.OK(c, runDetail{SagaRun: r, Steps: steps})
	}
}

func (h *AdminHandler) handleListRepairs() gin.HandlerFunc {
	return func(c *gin.Context) {
		tasks, err := h.inspector.ListOpenRepairTasks(c.Request.Context())
		if err != nil {
			response.Fail(c, apperr.Internal("", "修復タスクの取得に失敗しました", err))
			return
		}
		if tasks == nil {
			tasks = []store.RepairTask{}
		}
		response.OK(c, tasks)
	}
}
