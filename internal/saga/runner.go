package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/nao1215/agrimarket/internal/apperr"
	"github.com/nao1215/agrimarket/internal/store"
	"go.uber.org/zap"
)

// Sagaの状態。
const (
	StatusRunning            = "running"
	StatusCompleted          = "completed"
	StatusFailed             = "failed"
	StatusRolledBack         = "rolled_back"
	StatusCompensationFailed = "compensation_failed"
)

// ステップの状態。補償も "compensate:" を前置したステップとして記録する。
const (
	StepExecuting = "executing"
	StepCompleted = "completed"
	StepFailed    = "failed"
)

// Step はSagaの1ステップ。
type Step struct {
	// Name はログと実行記録に使うステップ名。
	Name string
	// Critical が true の場合、失敗でSagaを中断する。
	Critical bool
	// Do はステップ本体。
	Do func(ctx context.Context) error
	// Compensate は後続の重要ステップが失敗したときに Do の結果を取り消す。nil なら取り消し不要。
	Compensate func(ctx context.Context) error
}

// Journal はSagaの実行記録を書き込む。*store.Queries が実装する。
type Journal interface {
	CreateSagaRun(ctx context.Context, r store.SagaRun) error
	FinishSagaRun(ctx context.Context, id, status, errMsg string, now time.Time) error
	CreateSagaStep(ctx context.Context, s store.SagaStep) error
	FinishSagaStep(ctx context.Context, id, status, errMsg string, now time.Time) error
	CreateRepairTask(ctx context.Context, t store.RepairTask) error
}

// Config はステップと補償の時間上限。
type Config struct {
	StepTimeout         time.Duration
	CompensationTimeout time.Duration
}

// Runner はSagaを実行する。状態を持たないため並行に使用できる。
type Runner struct {
	journal Journal
	clock   clock.Clock
	log     *zap.Logger
	cfg     Config
}

// NewRunner は新しい Runner を生成する。
func NewRunner(journal Journal, clk clock.Clock, log *zap.Logger, cfg Config) *Runner {
	return &Runner{journal: journal, clock: clk, log: log, cfg: cfg}
}

// run は1回の実行中の状態。
type run struct {
	id        string
	sagaType  string
	subjectID string
	seq       int
	log       *zap.Logger
}

// Run はステップを順に実行する。
//
// 重要ステップが失敗した場合、補償が1つも実行されなければそのステップのエラーをそのまま返し、
// 補償がすべて成功すれば CodeRolledBack、補償が1つでも失敗すれば CodeCompensationFailed の
// 内部エラーを返す。ベストエフォートのステップの失敗は返さない。
func (r *Runner) Run(ctx context.Context, sagaType, subjectID string, steps []Step) error {
	rn := &run{
		id:        uuid.NewString(),
		sagaType:  sagaType,
		subjectID: subjectID,
	}
	rn.log = r.log.With(
		zap.String("saga_type", sagaType),
		zap.String("saga_id", rn.id),
		zap.String("subject_id", subjectID),
	)

	r.record(ctx, rn, "Saga記録の作成に失敗", func(jctx context.Context) error {
		return r.journal.CreateSagaRun(jctx, store.SagaRun{
			ID:        rn.id,
			SagaType:  sagaType,
			SubjectID: subjectID,
			Status:    StatusRunning,
			StartedAt: r.clock.Now(),
		})
	})

	var completed []Step
	for _, step := range steps {
		err := r.execute(ctx, rn, step.Name, step.Critical, step.Do)
		if err == nil {
			completed = append(completed, step)
			continue
		}

		if !step.Critical {
			rn.log.Warn("ベストエフォートのステップが失敗",
				zap.String("step", step.Name),
				zap.Error(err),
			)
			continue
		}

		// 競合は同時実行で負けただけなので障害としては扱わない
		logf := rn.log.Error
		if apperr.KindOf(err) == apperr.KindConflict {
			logf = rn.log.Warn
		}
		logf("重要ステップが失敗",
			zap.String("step", step.Name),
			zap.Error(err),
		)
		return r.abort(ctx, rn, step.Name, err, completed)
	}

	r.finish(ctx, rn, StatusCompleted, "")
	return nil
}

// execute はステップ1回分を時間上限付きで実行し、実行記録を残す。
func (r *Runner) execute(ctx context.Context, rn *run, name string, critical bool, fn func(context.Context) error) error {
	rn.seq++
	stepID := uuid.NewString()
	r.record(ctx, rn, "ステップ記録の作成に失敗", func(jctx context.Context) error {
		return r.journal.CreateSagaStep(jctx, store.SagaStep{
			ID:        stepID,
			SagaID:    rn.id,
			Seq:       rn.seq,
			StepName:  name,
			Critical:  critical,
			Status:    StepExecuting,
			StartedAt: r.clock.Now(),
		})
	})

	sctx, cancel := context.WithTimeout(ctx, r.cfg.StepTimeout)
	err := call(sctx, fn)
	cancel()

	status, msg := StepCompleted, ""
	if err != nil {
		status, msg = StepFailed, err.Error()
	}
	r.record(ctx, rn, "ステップ記録の更新に失敗", func(jctx context.Context) error {
		return r.journal.FinishSagaStep(jctx, stepID, status, msg, r.clock.Now())
	})
	return err
}

// abort は完了済みステップを逆順に補償し、呼び出し元に返すエラーを組み立てる。
func (r *Runner) abort(ctx context.Context, rn *run, failedStep string, stepErr error, completed []Step) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.CompensationTimeout)
	defer cancel()

	compensated := 0
	var compErrs []error
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensate == nil {
			continue
		}
		compensated++

		name := "compensate:" + step.Name
		err := r.execute(cctx, rn, name, true, step.Compensate)
		if err == nil {
			rn.log.Info("補償を実行", zap.String("step", step.Name))
			continue
		}

		compErrs = append(compErrs, fmt.Errorf("%s: %w", step.Name, err))
		// 補償の失敗はデータが不整合のまま残ることを意味する
		rn.log.Error("補償に失敗、手動修復が必要",
			zap.String("severity", "critical"),
			zap.String("failed_step", failedStep),
			zap.String("compensation_step", step.Name),
			zap.NamedError("step_error", stepErr),
			zap.Error(err),
		)
		r.record(cctx, rn, "修復タスクの記録に失敗", func(jctx context.Context) error {
			return r.journal.CreateRepairTask(jctx, store.RepairTask{
				ID:        uuid.NewString(),
				SagaID:    rn.id,
				SagaType:  rn.sagaType,
				StepName:  step.Name,
				SubjectID: rn.subjectID,
				Error:     fmt.Sprintf("step %s failed: %v; compensation failed: %v", failedStep, stepErr, err),
				CreatedAt: r.clock.Now(),
			})
		})
	}

	switch {
	case len(compErrs) > 0:
		r.finish(cctx, rn, StatusCompensationFailed, stepErr.Error())
		return apperr.Internal(apperr.CodeCompensationFailed,
			"処理に失敗し、取り消しも完了できませんでした",
			errors.Join(append([]error{stepErr}, compErrs...)...))
	case compensated > 0:
		r.finish(cctx, rn, StatusRolledBack, stepErr.Error())
		return apperr.Internal(apperr.CodeRolledBack, "処理に失敗したため変更を取り消しました", stepErr)
	default:
		r.finish(cctx, rn, StatusFailed, stepErr.Error())
		return stepErr
	}
}

func (r *Runner) finish(ctx context.Context, rn *run, status, errMsg string) {
	r.record(ctx, rn, "Saga記録の更新に失敗", func(jctx context.Context) error {
		return r.journal.FinishSagaRun(jctx, rn.id, status, errMsg, r.clock.Now())
	})
}

// record は実行記録を書き込む。失敗はログに残すだけで呼び出し元には返さない。
func (r *Runner) record(ctx context.Context, rn *run, msg string, fn func(context.Context) error) {
	if r.journal == nil {
		return
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.StepTimeout)
	defer cancel()
	if err := fn(jctx); err != nil {
		rn.log.Warn(msg, zap.Error(err))
	}
}

// call は fn を実行し、パニックをエラーに変換する。
func call(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("ステップでパニック: %v", p)
		}
	}()
	return fn(ctx)
}
