package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/nao1215/agrimarket/internal/apperr"
	"github.com/nao1215/agrimarket/internal/notification"
	"github.com/nao1215/agrimarket/internal/saga"
	"github.com/nao1215/agrimarket/internal/store"
	"go.uber.org/zap"
)

// SagaType は実行記録に残すSagaの種類。
const SagaType = "consultant_assignment"

// ステップ名。
const (
	StepLinkConsultant   = "link_consultant"
	StepActivateFarmer   = "activate_farmer_profile"
	StepIncrementCounter = "increment_assigned_farmers"
	StepNotify           = "notify_assignment"
)

// Store は割り当てに使うストア操作。*store.Queries が実装する。
type Store interface {
	GetFarmer(ctx context.Context, id string) (store.Farmer, error)
	GetProfile(ctx context.Context, id string) (store.Profile, error)
	AssignConsultantIfUnassigned(ctx context.Context, farmerID, consultantProfileID string, now time.Time) (int64, error)
	ClearConsultant(ctx context.Context, farmerID string, now time.Time) error
	UpdateProfileStatus(ctx context.Context, id string, status store.ProfileStatus, now time.Time) error
	IncrementAssignedFarmers(ctx context.Context, consultantID string, now time.Time) error
}

// Notifier は割り当ての通知を送る。*notification.Dispatcher が実装する。
type Notifier interface {
	DispatchMany(ctx context.Context, reqs []notification.Request) error
}

// Request は割り当てリクエスト。
type Request struct {
	FarmerID        string `json:"farmer_id" binding:"required"`
	FarmerProfileID string `json:"farmer_profile_id" binding:"required"`
	// ConsultantProfileID と ConsultantID は認証済みの呼び出し元から設定する。
	ConsultantProfileID string `json:"-"`
	ConsultantID        string `json:"-"`
}

// Result は割り当て結果。
type Result struct {
	FarmerID     string `json:"farmer_id"`
	ConsultantID string `json:"consultant_id"`
}

// Service は割り当てSagaを実行する。
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

// Assign は農家にコンサルタントを割り当てる。呼び出し元のロール検証は済んでいること。
func (s *Service) Assign(ctx context.Context, req Request) (Result, error) {
	farmer, err := s.store.GetFarmer(ctx, req.FarmerID)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, apperr.NotFound("農家が見つかりません")
	}
	if err != nil {
		return Result{}, apperr.Internal("", "農家の取得に失敗しました", err)
	}
	if farmer.ConsultantID != nil {
		return Result{}, apperr.Conflict(apperr.CodeAlreadyAssigned, "この農家には既にコンサルタントが割り当てられています")
	}
	if farmer.ProfileID != req.FarmerProfileID {
		return Result{}, apperr.BadRequest(apperr.CodeProfileMismatch, "農家のプロフィールIDが一致しません")
	}

	steps := []saga.Step{
		{
			Name:     StepLinkConsultant,
			Critical: true,
			Do: func(ctx context.Context) error {
				n, err := s.store.AssignConsultantIfUnassigned(ctx, farmer.ID, req.ConsultantProfileID, s.clock.Now())
				if err != nil {
					return err
				}
				if n == 0 {
					// 事前確認の後に別の割り当てが先に確定した
					return apperr.Conflict(apperr.CodeAssignmentConflict, "他のコンサルタントが先に割り当てられました")
				}
				return nil
			},
			Compensate: func(ctx context.Context) error {
				return s.store.ClearConsultant(ctx, farmer.ID, s.clock.Now())
			},
		},
		{
			Name:     StepActivateFarmer,
			Critical: true,
			Do: func(ctx context.Context) error {
				return s.store.UpdateProfileStatus(ctx, farmer.ProfileID, store.ProfileStatusActive, s.clock.Now())
			},
		},
		{
			Name: StepIncrementCounter,
			Do: func(ctx context.Context) error {
				return s.store.IncrementAssignedFarmers(ctx, req.ConsultantID, s.clock.Now())
			},
		},
	}
	if s.notifier != nil {
		steps = append(steps, saga.Step{
			Name: StepNotify,
			Do: func(ctx context.Context) error {
				return s.notify(ctx, farmer, req.ConsultantProfileID)
			},
		})
	}

	if err := s.runner.Run(ctx, SagaType, farmer.ID, steps); err != nil {
		return Result{}, err
	}
	s.log.Info("コンサルタントを割り当て",
		zap.String("farmer_id", farmer.ID),
		zap.String("consultant_profile_id", req.ConsultantProfileID),
	)
	return Result{FarmerID: farmer.ID, ConsultantID: req.ConsultantProfileID}, nil
}

// notify は双方に割り当てを知らせる。2件は1回の挿入で保存する。
func (s *Service) notify(ctx context.Context, farmer store.Farmer, consultantProfileID string) error {
	farmerProfile, err := s.store.GetProfile(ctx, farmer.ProfileID)
	if err != nil {
		return fmt.Errorf("農家プロフィールの取得に失敗: %w", err)
	}
	consultantProfile, err := s.store.GetProfile(ctx, consultantProfileID)
	if err != nil {
		return fmt.Errorf("コンサルタントプロフィールの取得に失敗: %w", err)
	}

	return s.notifier.DispatchMany(ctx, []notification.Request{
		{
			Kind:        notification.KindFarmerAssigned,
			RecipientID: consultantProfile.ID,
			Context: notification.Context{
				RecipientName: notification.DisplayName(consultantProfile),
				FarmerID:      farmer.ID,
				FarmerName:    notification.DisplayName(farmerProfile),
			},
		},
		{
			Kind:        notification.KindConsultantAssigned,
			RecipientID: farmerProfile.ID,
			Context: notification.Context{
				RecipientName:  notification.DisplayName(farmerProfile),
				ConsultantID:   consultantProfile.ID,
				ConsultantName: notification.DisplayName(consultantProfile),
			},
		},
	})
}
