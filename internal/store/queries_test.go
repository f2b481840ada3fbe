package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/agrimarket/internal/store"
	"github.com/nao1215/agrimarket/internal/store/storetest"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// TestAssignConsultantIfUnassigned は条件付き更新の挙動を検証する。
func TestAssignConsultantIfUnassigned(t *testing.T) {
	t.Parallel()

	t.Run("未割り当ての場合は1行更新されること", func(t *testing.T) {
		t.Parallel()

		_, q := storetest.Open(t)
		ctx := context.Background()
		farmer, _ := storetest.SeedFarmer(t, q)
		_, consultantProfile := storetest.SeedConsultant(t, q)

		n, err := q.AssignConsultantIfUnassigned(ctx, farmer.ID, consultantProfile.ID, now)
		if err != nil {
			t.Fatalf("AssignConsultantIfUnassigned()でエラーが発生: %v", err)
		}
		if n != 1 {
			t.Errorf("affected = %d, want 1", n)
		}

		got, err := q.GetFarmer(ctx, farmer.ID)
		if err != nil {
			t.Fatalf("GetFarmer()でエラーが発生: %v", err)
		}
		if got.ConsultantID == nil || *got.ConsultantID != consultantProfile.ID {
			t.Errorf("ConsultantID = %v, want %q", got.ConsultantID, consultantProfile.ID)
		}
	})

	t.Run("割り当て済みの場合は0行で値が変わらないこと", func(t *testing.T) {
		t.Parallel()

		_, q := storetest.Open(t)
		ctx := context.Background()
		farmer, _ := storetest.SeedFarmer(t, q)
		_, first := storetest.SeedConsultant(t, q)
		_, second := storetest.SeedConsultant(t, q)

		if _, err := q.AssignConsultantIfUnassigned(ctx, farmer.ID, first.ID, now); err != nil {
			t.Fatalf("1回目の割り当てに失敗: %v", err)
		}
		n, err := q.AssignConsultantIfUnassigned(ctx, farmer.ID, second.ID, now)
		if err != nil {
			t.Fatalf("2回目の割り当てでエラーが発生: %v", err)
		}
		if n != 0 {
			t.Errorf("affected = %d, want 0", n)
		}

		got, _ := q.GetFarmer(ctx, farmer.ID)
		if got.ConsultantID == nil || *got.ConsultantID != first.ID {
			t.Errorf("ConsultantID = %v, want %q", got.ConsultantID, first.ID)
		}
	})

	t.Run("並行実行でも1件だけが成功すること", func(t *testing.T) {
		t.Parallel()

		_, q := storetest.Open(t)
		ctx := context.Background()
		farmer, _ := storetest.SeedFarmer(t, q)

		const workers = 8
		profiles := make([]store.Profile, workers)
		for i := range profiles {
			_, profiles[i] = storetest.SeedConsultant(t, q)
		}

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int64
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(p store.Profile) {
				defer wg.Done()
				n, err := q.AssignConsultantIfUnassigned(ctx, farmer.ID, p.ID, now)
				if err != nil {
					t.Errorf("AssignConsultantIfUnassigned()でエラーが発生: %v", err)
					return
				}
				mu.Lock()
				wins += n
				mu.Unlock()
			}(profiles[i])
		}
		wg.Wait()

		if wins != 1 {
			t.Errorf("成功件数 = %d, want 1", wins)
		}
	})
}

// TestClearConsultant は割り当て解除を検証する。
func TestClearConsultant(t *testing.T) {
	t.Parallel()

	_, q := storetest.Open(t)
	ctx := context.Background()
	farmer, _ := storetest.SeedFarmer(t, q)
	_, consultantProfile := storetest.SeedConsultant(t, q)

	if _, err := q.AssignConsultantIfUnassigned(ctx, farmer.ID, consultantProfile.ID, now); err != nil {
		t.Fatalf("割り当てに失敗: %v", err)
	}
	if err := q.ClearConsultant(ctx, farmer.ID, now); err != nil {
		t.Fatalf("ClearConsultant()でエラーが発生: %v", err)
	}

	got, _ := q.GetFarmer(ctx, farmer.ID)
	if got.ConsultantID != nil {
		t.Errorf("ConsultantID = %q, want nil", *got.ConsultantID)
	}

	if err := q.ClearConsultant(ctx, "missing", now); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("存在しない農家: err = %v, want ErrNotFound", err)
	}
}

// TestIncrementAssignedFarmers はアトミックなインクリメントを検証する。
func TestIncrementAssignedFarmers(t *testing.T) {
	t.Parallel()

	_, q := storetest.Open(t)
	ctx := context.Background()
	consultant, _ := storetest.SeedConsultant(t, q)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := q.IncrementAssignedFarmers(ctx, consultant.ID, now); err != nil {
				t.Errorf("IncrementAssignedFarmers()でエラーが発生: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := q.GetConsultant(ctx, consultant.ID)
	if err != nil {
		t.Fatalf("GetConsultant()でエラーが発生: %v", err)
	}
	if got.AssignedFarmers != 5 {
		t.Errorf("AssignedFarmers = %d, want 5", got.AssignedFarmers)
	}

	if err := q.IncrementAssignedFarmers(ctx, "missing", now); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("存在しないコンサルタント: err = %v, want ErrNotFound", err)
	}
}

// TestUpdateConsultantRegistration は登録フィールドの書き込みを検証する。
func TestUpdateConsultantRegistration(t *testing.T) {
	t.Parallel()

	_, q := storetest.Open(t)
	ctx := context.Background()
	consultant, _ := storetest.SeedConsultant(t, q)

	state := "Punjab"
	if err := q.UpdateConsultantRegistration(ctx, store.UpdateConsultantRegistrationParams{
		ID:        consultant.ID,
		State:     &state,
		Documents: store.StringList{"https://files.example.com/degree.pdf"},
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("UpdateConsultantRegistration()でエラーが発生: %v", err)
	}

	// nilのフィールドは既存値を維持する
	if err := q.UpdateConsultantRegistration(ctx, store.UpdateConsultantRegistrationParams{
		ID:        consultant.ID,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("2回目のUpdateConsultantRegistration()でエラーが発生: %v", err)
	}

	got, err := q.GetConsultant(ctx, consultant.ID)
	if err != nil {
		t.Fatalf("GetConsultant()でエラーが発生: %v", err)
	}
	if got.State == nil || *got.State != "Punjab" {
		t.Errorf("State = %v, want Punjab", got.State)
	}
	if got.District != nil {
		t.Errorf("District = %q, want nil", *got.District)
	}
	if len(got.Documents) != 1 || got.Documents[0] != "https://files.example.com/degree.pdf" {
		t.Errorf("Documents = %v", got.Documents)
	}
	if len(got.Specializations) != 1 || got.Specializations[0] != "soil" {
		t.Errorf("Specializations = %v, want [soil]", got.Specializations)
	}
}

// TestCreateNotifications は一括挿入を検証する。
func TestCreateNotifications(t *testing.T) {
	t.Parallel()

	newNotification := func(id, recipient string) store.Notification {
		return store.Notification{
			ID:          id,
			RecipientID: recipient,
			Kind:        "welcome",
			Category:    "system",
			Priority:    "normal",
			Title:       "ようこそ",
			Message:     "登録ありがとうございます",
			Metadata:    store.JSONText(`{"role":"consultant"}`),
			CreatedAt:   now,
		}
	}

	t.Run("複数行を一度に挿入できること", func(t *testing.T) {
		t.Parallel()

		_, q := storetest.Open(t)
		ctx := context.Background()
		err := q.CreateNotifications(ctx, []store.Notification{
			newNotification(uuid.NewString(), "r-1"),
			newNotification(uuid.NewString(), "r-1"),
			newNotification(uuid.NewString(), "r-2"),
		})
		if err != nil {
			t.Fatalf("CreateNotifications()でエラーが発生: %v", err)
		}

		rows, err := q.ListNotificationsByRecipient(ctx, "r-1")
		if err != nil {
			t.Fatalf("ListNotificationsByRecipient()でエラーが発生: %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("件数 = %d, want 2", len(rows))
		}
		var meta map[string]string
		if err := rows[0].Metadata.Decode(&meta); err != nil {
			t.Fatalf("Metadataのデコードに失敗: %v", err)
		}
		if meta["role"] != "consultant" {
			t.Errorf("metadata.role = %q, want consultant", meta["role"])
		}
		if rows[0].ActionURL != nil {
			t.Errorf("ActionURL = %q, want nil", *rows[0].ActionURL)
		}
	})

	t.Run("1行でも失敗した場合は全行が挿入されないこと", func(t *testing.T) {
		t.Parallel()

		_, q := storetest.Open(t)
		ctx := context.Background()
		dup := uuid.NewString()
		err := q.CreateNotifications(ctx, []store.Notification{
			newNotification(uuid.NewString(), "r-1"),
			newNotification(dup, "r-1"),
			newNotification(dup, "r-1"),
		})
		if err == nil {
			t.Fatal("主キー重複でエラーにならない")
		}

		rows, err := q.ListNotificationsByRecipient(ctx, "r-1")
		if err != nil {
			t.Fatalf("ListNotificationsByRecipient()でエラーが発生: %v", err)
		}
		if len(rows) != 0 {
			t.Errorf("件数 = %d, want 0", len(rows))
		}
	})

	t.Run("既読処理でread_atが設定されること", func(t *testing.T) {
		t.Parallel()

		_, q := storetest.Open(t)
		ctx := context.Background()
		id := uuid.NewString()
		if err := q.CreateNotification(ctx, newNotification(id, "r-1")); err != nil {
			t.Fatalf("CreateNotification()でエラーが発生: %v", err)
		}
		if err := q.MarkNotificationRead(ctx, id, now.Add(time.Minute)); err != nil {
			t.Fatalf("MarkNotificationRead()でエラーが発生: %v", err)
		}

		got, err := q.GetNotification(ctx, id)
		if err != nil {
			t.Fatalf("GetNotification()でエラーが発生: %v", err)
		}
		if !got.IsRead {
			t.Error("IsRead = false, want true")
		}
		if got.ReadAt == nil || !got.ReadAt.Equal(now.Add(time.Minute)) {
			t.Errorf("ReadAt = %v, want %v", got.ReadAt, now.Add(time.Minute))
		}

		unread, _ := q.ListUnreadNotifications(ctx, "r-1")
		if len(unread) != 0 {
			t.Errorf("未読件数 = %d, want 0", len(unread))
		}
	})
}

// TestGetProfileByUserID は呼び出し元スコープの読み取りを検証する。
func TestGetProfileByUserID(t *testing.T) {
	t.Parallel()

	_, q := storetest.Open(t)
	ctx := context.Background()
	p := storetest.SeedProfile(t, q, store.RoleBuyer, store.ProfileStatusActive)

	got, err := q.GetProfileByUserID(ctx, p.UserID)
	if err != nil {
		t.Fatalf("GetProfileByUserID()でエラーが発生: %v", err)
	}
	if got.ID != p.ID || got.Role != store.RoleBuyer {
		t.Errorf("got = %+v", got)
	}
	if !got.CreatedAt.Equal(storetest.Epoch) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, storetest.Epoch)
	}

	if _, err := q.GetProfileByUserID(ctx, "unknown"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// TestCreateProfile はプロフィール作成時のロール検証を検証する。
func TestCreateProfile(t *testing.T) {
	t.Parallel()

	t.Run("不明なロールは保存されないこと", func(t *testing.T) {
		t.Parallel()

		_, q := storetest.Open(t)
		ctx := context.Background()
		p := store.Profile{
			ID:        uuid.NewString(),
			UserID:    uuid.NewString(),
			Role:      store.Role("owner"),
			Status:    store.ProfileStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := q.CreateProfile(ctx, p); !errors.Is(err, store.ErrInvalidRole) {
			t.Fatalf("err = %v, want ErrInvalidRole", err)
		}
		if _, err := q.GetProfileByUserID(ctx, p.UserID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}
