package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/nao1215/agrimarket/internal/apperr"
	"github.com/nao1215/agrimarket/internal/notification"
	"github.com/nao1215/agrimarket/internal/saga"
	"github.com/nao1215/agrimarket/internal/store"
	"go.uber.org/zap"
)

// SagaType は実行記録に残すSagaの種類。
const SagaType = "consultant_registration"

// RequestTypeConsultantVerification は登録完了時に作成する審査リクエストの種類。
const RequestTypeConsultantVerification = "consultant_verification"

// ステップ名。
const (
	StepAvatar        = "update_avatar"
	StepConsultant    = "update_consultant"
	StepReviewRequest = "create_review_request"
	StepWelcome       = "send_welcome"
)

// Store は登録完了に使うストア操作。*store.Queries が実装する。
type Store interface {
	GetConsultantByProfileID(ctx context.Context, profileID string) (store.Consultant, error)
	UpdateProfileAvatar(ctx context.Context, id, avatarURL string, now time.Time) error
	UpdateConsultantRegistration(ctx context.Context, arg store.UpdateConsultantRegistrationParams) error
	CreateReviewRequest(ctx context.Context, r store.ReviewRequest) error
}

// Notifier は歓迎通知を送る。*notification.Dispatcher が実装する。
type Notifier interface {
	Dispatch(ctx context.Context, kind notification.Kind, recipientID string, c notification.Context) error
}

// Service は登録完了Sagaを実行する。
type Service struct {
	store    Store
	runner   *saga.Runner
	notifier Notifier
	clock    clock.Clock
	log      *zap.Logger
}

// NewService は新しい Service を生成する。notifier が nil の場合は通知を送らない。
func NewService(s Store, runner *saga.Runner, notifier Notifier, clk clock.Clock, log *zap.Logger) *Service {
	return &Service{store: s, runner: runner, notifier: notifier, clock: clk, log: log}
}

// Complete はコンサルタントの登録を完了する。profile は認証済みの呼び出し元のもの。
// 同じ入力で再実行しても同じ値が書き込まれる。
func (s *Service) Complete(ctx context.Context, profile store.Profile, in Input) error {
	consultant, err := s.store.GetConsultantByProfileID(ctx, profile.ID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("コンサルタント情報が見つかりません")
	}
	if err != nil {
		return apperr.Internal("", "コンサルタントの取得に失敗しました", err)
	}

	var steps []saga.Step
	if in.AvatarURL != "" {
		steps = append(steps, saga.Step{
			Name: StepAvatar,
			Do: func(ctx context.Context) error {
				return s.store.UpdateProfileAvatar(ctx, profile.ID, in.AvatarURL, s.clock.Now())
			},
		})
	}
	steps = append(steps, saga.Step{
		Name:     StepConsultant,
		Critical: true,
		Do: func(ctx context.Context) error {
			return s.store.UpdateConsultantRegistration(ctx, store.UpdateConsultantRegistrationParams{
				ID:              consultant.ID,
				State:           optional(in.State),
				District:        optional(in.District),
				ServiceState:    optional(in.ServiceState),
				ServiceDistrict: optional(in.ServiceDistrict),
				Documents:       store.StringList(in.Documents),
				UpdatedAt:       s.clock.Now(),
			})
		},
	})
	if len(in.Documents) > 0 {
		steps = append(steps, saga.Step{
			Name: StepReviewRequest,
			Do: func(ctx context.Context) error {
				return s.fileReview(ctx, profile.ID, in.Documents)
			},
		})
	}
	if s.notifier != nil {
		steps = append(steps, saga.Step{
			Name: StepWelcome,
			Do: func(ctx context.Context) error {
				return s.notifier.Dispatch(ctx, notification.KindWelcome, profile.ID, notification.Context{
					RecipientName: notification.DisplayName(profile),
					Role:          string(profile.Role),
				})
			},
		})
	}

	if err := s.runner.Run(ctx, SagaType, profile.ID, steps); err != nil {
		if _, ok := apperr.As(err); ok {
			return err
		}
		return apperr.Internal("", "登録情報の保存に失敗しました", err)
	}
	s.log.Info("コンサルタントの登録を完了",
		zap.String("profile_id", profile.ID),
		zap.Int("documents", len(in.Documents)),
	)
	return nil
}

// fileReview は書類を分類して審査リクエストを作成する。
func (s *Service) fileReview(ctx context.Context, profileID string, documents []string) error {
	now := s.clock.Now()
	metadata, err := json.Marshal(newReviewMetadata(documents, now))
	if err != nil {
		return fmt.Errorf("審査メタデータのシリアライズに失敗: %w", err)
	}
	return s.store.CreateReviewRequest(ctx, store.ReviewRequest{
		ID:          uuid.NewString(),
		ProfileID:   profileID,
		RequestType: RequestTypeConsultantVerification,
		Status:      store.ReviewStatusPending,
		Metadata:    store.JSONText(metadata),
		CreatedAt:   now,
	})
}
