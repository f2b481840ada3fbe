package registration

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock/testclock"
	"github.com/nao1215/agrimarket/internal/apperr"
	"github.com/nao1215/agrimarket/internal/notification"
	"github.com/nao1215/agrimarket/internal/saga"
	"github.com/nao1215/agrimarket/internal/store"
	"github.com/nao1215/agrimarket/internal/store/storetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// faultyStore は指定した操作だけを失敗させる。
type faultyStore struct {
	*store.Queries
	avatarErr     error
	consultantErr error
	reviewErr     error
	lookupErr     error
}

func (f *faultyStore) GetConsultantByProfileID(ctx context.Context, profileID string) (store.Consultant, error) {
	if f.lookupErr != nil {
		return store.Consultant{}, f.lookupErr
	}
	return f.Queries.GetConsultantByProfileID(ctx, profileID)
}

func (f *faultyStore) UpdateProfileAvatar(ctx context.Context, id, avatarURL string, now time.Time) error {
	if f.avatarErr != nil {
		return f.avatarErr
	}
	return f.Queries.UpdateProfileAvatar(ctx, id, avatarURL, now)
}

func (f *faultyStore) UpdateConsultantRegistration(ctx context.Context, arg store.UpdateConsultantRegistrationParams) error {
	if f.consultantErr != nil {
		return f.consultantErr
	}
	return f.Queries.UpdateConsultantRegistration(ctx, arg)
}

func (f *faultyStore) CreateReviewRequest(ctx context.Context, r store.ReviewRequest) error {
	if f.reviewErr != nil {
		return f.reviewErr
	}
	return f.Queries.CreateReviewRequest(ctx, r)
}

// failingNotifier は常に失敗する。
type failingNotifier struct{}

func (failingNotifier) Dispatch(context.Context, notification.Kind, string, notification.Context) error {
	return errors.New("notifications unavailable")
}

type fixture struct {
	q          *store.Queries
	store      *faultyStore
	svc        *Service
	logs       *observer.ObservedLogs
	consultant store.Consultant
	profile    store.Profile
}

func newFixture(t *testing.T, notifier Notifier) *fixture {
	t.Helper()

	_, q := storetest.Open(t)
	clk := testclock.NewClock(storetest.Epoch)
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)
	fs := &faultyStore{Queries: q}
	runner := saga.NewRunner(q, clk, log, saga.Config{StepTimeout: 5 * time.Second, CompensationTimeout: 5 * time.Second})
	if notifier == nil {
		notifier = notification.NewDispatcher(notification.DefaultRegistry(), q, clk)
	}

	c, p := storetest.SeedConsultant(t, q)
	return &fixture{
		q:          q,
		store:      fs,
		svc:        NewService(fs, runner, notifier, clk, log),
		logs:       logs,
		consultant: c,
		profile:    p,
	}
}

func fullInput() Input {
	return Input{
		AvatarURL:       "https://cdn.example.com/avatar.png",
		State:           "Punjab",
		District:        "Ludhiana",
		ServiceState:    "Punjab",
		ServiceDistrict: "Patiala",
		Documents: []string{
			"https://docs.example.com/aadhaar.pdf",
			"https://docs.example.com/professional-license.pdf",
			"https://docs.example.com/photo.jpg",
		},
	}
}

func (fx *fixture) current(t *testing.T) store.Consultant {
	t.Helper()
	c, err := fx.q.GetConsultant(context.Background(), fx.consultant.ID)
	if err != nil {
		t.Fatalf("GetConsultant()でエラーが発生: %v", err)
	}
	return c
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

// TestComplete は登録完了Sagaを検証する。
func TestComplete(t *testing.T) {
	t.Parallel()

	t.Run("全ステップの結果が保存されること", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t, nil)
		ctx := context.Background()
		if err := fx.svc.Complete(ctx, fx.profile, fullInput()); err != nil {
			t.Fatalf("Complete()でエラーが発生: %v", err)
		}

		c := fx.current(t)
		if deref(c.State) != "Punjab" || deref(c.ServiceDistrict) != "Patiala" || len(c.Documents) != 3 {
			t.Errorf("consultant = %+v", c)
		}
		p, _ := fx.q.GetProfile(ctx, fx.profile.ID)
		if deref(p.AvatarURL) != "https://cdn.example.com/avatar.png" {
			t.Errorf("avatar_url = %s", deref(p.AvatarURL))
		}

		reviews, _ := fx.q.ListReviewRequestsByProfile(ctx, fx.profile.ID)
		if len(reviews) != 1 {
			t.Fatalf("審査リクエスト = %d件, want 1", len(reviews))
		}
		if reviews[0].RequestType != RequestTypeConsultantVerification || reviews[0].Status != store.ReviewStatusPending {
			t.Errorf("review = %+v", reviews[0])
		}
		var meta ReviewMetadata
		if err := reviews[0].Metadata.Decode(&meta); err != nil {
			t.Fatalf("メタデータのデコードに失敗: %v", err)
		}
		if len(meta.Documents) != 1 || meta.Documents[CategoryProfessional] != "https://docs.example.com/professional-license.pdf" {
			t.Errorf("documents = %v", meta.Documents)
		}
		if meta.SubmittedAt != storetest.Epoch.Format(time.RFC3339) {
			t.Errorf("submitted_at = %q", meta.SubmittedAt)
		}

		ns, _ := fx.q.ListNotificationsByRecipient(ctx, fx.profile.ID)
		if len(ns) != 1 || ns[0].Kind != string(notification.KindWelcome) {
			t.Errorf("notifications = %+v", ns)
		}
	})

	t.Run("同じ入力の再送信で同じ値になりエラーにならないこと", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t, nil)
		ctx := context.Background()
		if err := fx.svc.Complete(ctx, fx.profile, fullInput()); err != nil {
			t.Fatalf("1回目のComplete()でエラーが発生: %v", err)
		}
		first := fx.current(t)
		if err := fx.svc.Complete(ctx, fx.profile, fullInput()); err != nil {
			t.Fatalf("2回目のComplete()でエラーが発生: %v", err)
		}
		second := fx.current(t)

		if deref(first.State) != deref(second.State) || deref(first.District) != deref(second.District) ||
			deref(first.ServiceState) != deref(second.ServiceState) || deref(first.ServiceDistrict) != deref(second.ServiceDistrict) {
			t.Errorf("1回目 = %+v, 2回目 = %+v", first, second)
		}
		if len(first.Documents) != len(second.Documents) {
			t.Errorf("documents: 1回目 = %v, 2回目 = %v", first.Documents, second.Documents)
		}
	})

	t.Run("未指定の項目は既存の値を維持すること", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t, nil)
		ctx := context.Background()
		if err := fx.svc.Complete(ctx, fx.profile, fullInput()); err != nil {
			t.Fatalf("Complete()でエラーが発生: %v", err)
		}
		if err := fx.svc.Complete(ctx, fx.profile, Input{District: "Amritsar"}); err != nil {
			t.Fatalf("Complete()でエラーが発生: %v", err)
		}
		c := fx.current(t)
		if deref(c.State) != "Punjab" || deref(c.District) != "Amritsar" || len(c.Documents) != 3 {
			t.Errorf("consultant = %+v", c)
		}
		reviews, _ := fx.q.ListReviewRequestsByProfile(ctx, fx.profile.ID)
		if len(reviews) != 1 {
			t.Errorf("書類なしの再送信で審査リクエストが作成された: %d件", len(reviews))
		}
	})

	t.Run("コンサルタント更新の失敗は内部エラーになること", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t, nil)
		fx.store.consultantErr = errors.New("consultants unavailable")
		err := fx.svc.Complete(context.Background(), fx.profile, fullInput())
		if apperr.KindOf(err) != apperr.KindInternal {
			t.Fatalf("err = %v, want internal", err)
		}
		reviews, _ := fx.q.ListReviewRequestsByProfile(context.Background(), fx.profile.ID)
		if len(reviews) != 0 {
			t.Errorf("審査リクエスト = %d件, want 0", len(reviews))
		}
	})

	t.Run("ベストエフォートのステップの失敗では成功すること", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t, failingNotifier{})
		fx.store.avatarErr = errors.New("profiles unavailable")
		fx.store.reviewErr = errors.New("review_requests unavailable")
		if err := fx.svc.Complete(context.Background(), fx.profile, fullInput()); err != nil {
			t.Fatalf("Complete()でエラーが発生: %v", err)
		}
		if c := fx.current(t); deref(c.State) != "Punjab" {
			t.Errorf("state = %s, want Punjab", deref(c.State))
		}
		warns := fx.logs.FilterMessage("ベストエフォートのステップが失敗")
		if warns.Len() != 3 {
			t.Errorf("警告ログ = %d件, want 3", warns.Len())
		}
	})

	t.Run("コンサルタントの取得失敗は原因を保持した内部エラーになること", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t, nil)
		cause := errors.New("consultants unavailable")
		fx.store.lookupErr = cause
		err := fx.svc.Complete(context.Background(), fx.profile, fullInput())
		if apperr.KindOf(err) != apperr.KindInternal || !errors.Is(err, cause) {
			t.Errorf("err = %v, want internal wrapping cause", err)
		}
	})

	t.Run("表示名が未設定でも歓迎通知が送られること", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t, nil)
		ctx := context.Background()
		p := store.Profile{
			ID:        uuid.NewString(),
			UserID:    uuid.NewString(),
			Email:     "new-consultant@example.com",
			Role:      store.RoleConsultant,
			Status:    store.ProfileStatusPending,
			CreatedAt: storetest.Epoch,
			UpdatedAt: storetest.Epoch,
		}
		if err := fx.q.CreateProfile(ctx, p); err != nil {
			t.Fatalf("CreateProfile()でエラーが発生: %v", err)
		}
		c := store.Consultant{ID: uuid.NewString(), ProfileID: p.ID, CreatedAt: storetest.Epoch, UpdatedAt: storetest.Epoch}
		if err := fx.q.CreateConsultant(ctx, c); err != nil {
			t.Fatalf("CreateConsultant()でエラーが発生: %v", err)
		}

		if err := fx.svc.Complete(ctx, p, Input{State: "Punjab"}); err != nil {
			t.Fatalf("Complete()でエラーが発生: %v", err)
		}
		ns, _ := fx.q.ListNotificationsByRecipient(ctx, p.ID)
		if len(ns) != 1 || ns[0].Kind != string(notification.KindWelcome) {
			t.Fatalf("notifications = %+v", ns)
		}
		if !strings.Contains(ns[0].Message, "new-consultant@example.com") {
			t.Errorf("message = %q", ns[0].Message)
		}
		if warns := fx.logs.FilterMessage("ベストエフォートのステップが失敗"); warns.Len() != 0 {
			t.Errorf("警告ログ = %d件, want 0", warns.Len())
		}
	})

	t.Run("コンサルタント情報が無い場合は404が返ること", func(t *testing.T) {
		t.Parallel()

		fx := newFixture(t, nil)
		other := storetest.SeedProfile(t, fx.q, store.RoleConsultant, store.ProfileStatusPending)
		err := fx.svc.Complete(context.Background(), other, fullInput())
		if apperr.KindOf(err) != apperr.KindNotFound {
			t.Errorf("err = %v, want not found", err)
		}
	})
}
