package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Queries はストアに対するクエリ群。
type Queries struct {
	db *sqlx.DB
}

// New は新しい Queries を生成する。
func New(db *sqlx.DB) *Queries {
	return &Queries{db: db}
}

func (q *Queries) get(ctx context.Context, dest any, query string, args ...any) error {
	err := q.db.GetContext(ctx, dest, q.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (q *Queries) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return q.db.SelectContext(ctx, dest, q.db.Rebind(query), args...)
}

// exec はクエリを実行し、影響を受けた行数を返す。
func (q *Queries) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.db.ExecContext(ctx, q.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// execOne は1行以上更新されたことを要求する。0行の場合は ErrNotFound。
func (q *Queries) execOne(ctx context.Context, query string, args ...any) error {
	n, err := q.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- profiles ----

const profileColumns = `id, user_id, display_name, email, phone, avatar_url, role, status, is_verified, created_at, updated_at`

// CreateProfile はプロフィールを作成する。
func (q *Queries) CreateProfile(ctx context.Context, p Profile) error {
	if !p.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, p.Role)
	}
	_, err := q.exec(ctx, `INSERT INTO profiles (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.DisplayName, p.Email, p.Phone, p.AvatarURL, p.Role, p.Status, p.IsVerified, p.CreatedAt, p.UpdatedAt)
	return err
}

// GetProfileByUserID は認証サービスのユーザーIDに紐づくプロフィールを取得する。
// 呼び出し元スコープの読み取りで、本人以外の行は返さない。
func (q *Queries) GetProfileByUserID(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	err := q.get(ctx, &p, `SELECT `+profileColumns+` FROM profiles WHERE user_id = ?`, userID)
	return p, err
}

// GetProfile はIDでプロフィールを取得する。
func (q *Queries) GetProfile(ctx context.Context, id string) (Profile, error) {
	var p Profile
	err := q.get(ctx, &p, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	return p, err
}

// UpdateProfileStatus はプロフィールのライフサイクル状態を更新する。
func (q *Queries) UpdateProfileStatus(ctx context.Context, id string, status ProfileStatus, now time.Time) error {
	return q.execOne(ctx, `UPDATE profiles SET status = ?, updated_at = ? WHERE id = ?`, status, now, id)
}

// UpdateProfileAvatar はプロフィールのアバターURLを更新する。
func (q *Queries) UpdateProfileAvatar(ctx context.Context, id, avatarURL string, now time.Time) error {
	return q.execOne(ctx, `UPDATE profiles SET avatar_url = ?, updated_at = ? WHERE id = ?`, avatarURL, now, id)
}

// ---- farmers ----

const farmerColumns = `id, profile_id, consultant_id, farm_name, farm_size_acres, state, district, village, crops, created_at, updated_at`

// CreateFarmer は農家レコードを作成する。
func (q *Queries) CreateFarmer(ctx context.Context, f Farmer) error {
	_, err := q.exec(ctx, `INSERT INTO farmers (`+farmerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.ProfileID, f.ConsultantID, f.FarmName, f.FarmSizeAcres, f.State, f.District, f.Village, f.Crops, f.CreatedAt, f.UpdatedAt)
	return err
}

// GetFarmer はIDで農家レコードを取得する。
func (q *Queries) GetFarmer(ctx context.Context, id string) (Farmer, error) {
	var f Farmer
	err := q.get(ctx, &f, `SELECT `+farmerColumns+` FROM farmers WHERE id = ?`, id)
	return f, err
}

// AssignConsultantIfUnassigned は consultant_id が NULL の場合に限りコンサルタントを設定する。
// 条件付き更新であり、影響を受けた行数（0 または 1）を返す。
func (q *Queries) AssignConsultantIfUnassigned(ctx context.Context, farmerID, consultantProfileID string, now time.Time) (int64, error) {
	return q.exec(ctx, `UPDATE farmers SET consultant_id = ?, updated_at = ?
		WHERE id = ? AND consultant_id IS NULL`, consultantProfileID, now, farmerID)
}

// ClearConsultant は農家のコンサルタント参照を無条件にNULLへ戻す。
func (q *Queries) ClearConsultant(ctx context.Context, farmerID string, now time.Time) error {
	return q.execOne(ctx, `UPDATE farmers SET consultant_id = NULL, updated_at = ? WHERE id = ?`, now, farmerID)
}

// ---- consultants ----

const consultantColumns = `id, profile_id, qualification, specializations, experience_years, state, district,
	service_state, service_district, documents, assigned_farmers, created_at, updated_at`

// CreateConsultant はコンサルタントレコードを作成する。
func (q *Queries) CreateConsultant(ctx context.Context, c Consultant) error {
	_, err := q.exec(ctx, `INSERT INTO consultants (`+consultantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProfileID, c.Qualification, c.Specializations, c.ExperienceYears, c.State, c.District,
		c.ServiceState, c.ServiceDistrict, c.Documents, c.AssignedFarmers, c.CreatedAt, c.UpdatedAt)
	return err
}

// GetConsultant はIDでコンサルタントレコードを取得する。
func (q *Queries) GetConsultant(ctx context.Context, id string) (Consultant, error) {
	var c Consultant
	err := q.get(ctx, &c, `SELECT `+consultantColumns+` FROM consultants WHERE id = ?`, id)
	return c, err
}

// GetConsultantByProfileID はプロフィールIDでコンサルタントレコードを取得する。
func (q *Queries) GetConsultantByProfileID(ctx context.Context, profileID string) (Consultant, error) {
	var c Consultant
	err := q.get(ctx, &c, `SELECT `+consultantColumns+` FROM consultants WHERE profile_id = ?`, profileID)
	return c, err
}

// UpdateConsultantRegistrationParams は登録完了時に書き込むフィールド。
// nil のフィールドは既存の値を維持する。
type UpdateConsultantRegistrationParams struct {
	ID              string
	State           *string
	District        *string
	ServiceState    *string
	ServiceDistrict *string
	Documents       StringList
	UpdatedAt       time.Time
}

// UpdateConsultantRegistration は所在地・サービス地域・書類をコンサルタントレコードに書き込む。
func (q *Queries) UpdateConsultantRegistration(ctx context.Context, arg UpdateConsultantRegistrationParams) error {
	var documents any
	if arg.Documents != nil {
		documents = arg.Documents
	}
	return q.execOne(ctx, `UPDATE consultants SET
		state = COALESCE(?, state),
		district = COALESCE(?, district),
		service_state = COALESCE(?, service_state),
		service_district = COALESCE(?, service_district),
		documents = COALESCE(?, documents),
		updated_at = ?
		WHERE id = ?`,
		arg.State, arg.District, arg.ServiceState, arg.ServiceDistrict, documents, arg.UpdatedAt, arg.ID)
}

// IncrementAssignedFarmers は担当農家数をストア側で1増やす。
// 読み取ってから書き込むのではなく単一の更新文で行う。
func (q *Queries) IncrementAssignedFarmers(ctx context.Context, consultantID string, now time.Time) error {
	return q.execOne(ctx, `UPDATE consultants SET assigned_farmers = assigned_farmers + 1, updated_at = ?
		WHERE id = ?`, now, consultantID)
}

// ---- review_requests ----

// CreateReviewRequest は審査リクエストを作成する。
func (q *Queries) CreateReviewRequest(ctx context.Context, r ReviewRequest) error {
	metadata := r.Metadata
	if len(metadata) == 0 {
		metadata = JSONText("{}")
	}
	_, err := q.exec(ctx, `INSERT INTO review_requests (id, profile_id, request_type, status, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProfileID, r.RequestType, r.Status, metadata, r.CreatedAt)
	return err
}

// ListReviewRequestsByProfile はプロフィールの審査リクエストを新しい順に取得する。
func (q *Queries) ListReviewRequestsByProfile(ctx context.Context, profileID string) ([]ReviewRequest, error) {
	var rows []ReviewRequest
	err := q.selectAll(ctx, &rows, `SELECT id, profile_id, request_type, status, metadata, created_at
		FROM review_requests WHERE profile_id = ? ORDER BY created_at DESC`, profileID)
	return rows, err
}

// ---- notifications ----

const notificationColumns = `id, recipient_id, kind, category, priority, title, message, action_url, metadata, is_read, read_at, created_at`

func notificationArgs(n Notification) []any {
	return []any{n.ID, n.RecipientID, n.Kind, n.Category, n.Priority, n.Title, n.Message,
		n.ActionURL, n.Metadata, n.IsRead, n.ReadAt, n.CreatedAt}
}

// CreateNotification は通知を1件作成する。
func (q *Queries) CreateNotification(ctx context.Context, n Notification) error {
	return q.CreateNotifications(ctx, []Notification{n})
}

// CreateNotifications は複数の通知を単一のINSERT文で作成する。
// 全件成功するか全件失敗するかのどちらかになる。
func (q *Queries) CreateNotifications(ctx context.Context, ns []Notification) error {
	if len(ns) == 0 {
		return nil
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", 12), ", ") + ")"
	values := make([]string, 0, len(ns))
	args := make([]any, 0, len(ns)*12)
	for _, n := range ns {
		values = append(values, placeholder)
		args = append(args, notificationArgs(n)...)
	}
	query := `INSERT INTO notifications (` + notificationColumns + `) VALUES ` + strings.Join(values, ", ")
	if _, err := q.exec(ctx, query, args...); err != nil {
		return fmt.Errorf("通知の挿入に失敗: %w", err)
	}
	return nil
}

// GetNotification はIDで通知を取得する。
func (q *Queries) GetNotification(ctx context.Context, id string) (Notification, error) {
	var n Notification
	err := q.get(ctx, &n, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	return n, err
}

// ListNotificationsByRecipient は受信者の通知を新しい順に取得する。
func (q *Queries) ListNotificationsByRecipient(ctx context.Context, recipientID string) ([]Notification, error) {
	var rows []Notification
	err := q.selectAll(ctx, &rows, `SELECT `+notificationColumns+` FROM notifications
		WHERE recipient_id = ? ORDER BY created_at DESC`, recipientID)
	return rows, err
}

// ListUnreadNotifications は受信者の未読通知を新しい順に取得する。
func (q *Queries) ListUnreadNotifications(ctx context.Context, recipientID string) ([]Notification, error) {
	var rows []Notification
	err := q.selectAll(ctx, &rows, `SELECT `+notificationColumns+` FROM notifications
		WHERE recipient_id = ? AND is_read = ? ORDER BY created_at DESC`, recipientID, false)
	return rows, err
}

// MarkNotificationRead は通知を既読にする。既読済みの場合は read_at を変更しない。
func (q *Queries) MarkNotificationRead(ctx context.Context, id string, now time.Time) error {
	_, err := q.exec(ctx, `UPDATE notifications SET is_read = ?, read_at = ?
		WHERE id = ? AND is_read = ?`, true, now, id, false)
	return err
}

// MarkAllNotificationsRead は受信者の未読通知をすべて既読にし、更新件数を返す。
func (q *Queries) MarkAllNotificationsRead(ctx context.Context, recipientID string, now time.Time) (int64, error) {
	return q.exec(ctx, `UPDATE notifications SET is_read = ?, read_at = ?
		WHERE recipient_id = ? AND is_read = ?`, true, now, recipientID, false)
}

// ---- saga journal ----

// CreateSagaRun はSagaの実行記録を作成する。
func (q *Queries) CreateSagaRun(ctx context.Context, r SagaRun) error {
	_, err := q.exec(ctx, `INSERT INTO saga_runs (id, saga_type, subject_id, status, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`, r.ID, r.SagaType, r.SubjectID, r.Status, r.Error, r.StartedAt)
	return err
}

// FinishSagaRun はSagaの最終状態を記録する。
func (q *Queries) FinishSagaRun(ctx context.Context, id, status, errMsg string, now time.Time) error {
	return q.execOne(ctx, `UPDATE saga_runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		status, errMsg, now, id)
}

// GetSagaRun はIDでSagaの実行記録を取得する。
func (q *Queries) GetSagaRun(ctx context.Context, id string) (SagaRun, error) {
	var r SagaRun
	err := q.get(ctx, &r, `SELECT id, saga_type, subject_id, status, error, started_at, completed_at
		FROM saga_runs WHERE id = ?`, id)
	return r, err
}

// ListSagaRuns はSagaの実行記録を新しい順に最大 limit 件取得する。
// status が空でない場合はその状態のものに絞り込む。
func (q *Queries) ListSagaRuns(ctx context.Context, status string, limit int) ([]SagaRun, error) {
	var rows []SagaRun
	query := `SELECT id, saga_type, subject_id, status, error, started_at, completed_at FROM saga_runs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)
	err := q.selectAll(ctx, &rows, query, args...)
	return rows, err
}

// CreateSagaStep はステップの実行記録を作成する。
func (q *Queries) CreateSagaStep(ctx context.Context, s SagaStep) error {
	_, err := q.exec(ctx, `INSERT INTO saga_steps (id, saga_id, seq, step_name, critical, status, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.ID, s.SagaID, s.Seq, s.StepName, s.Critical, s.Status, s.Error, s.StartedAt)
	return err
}

// FinishSagaStep はステップの結果を記録する。
func (q *Queries) FinishSagaStep(ctx context.Context, id, status, errMsg string, now time.Time) error {
	return q.execOne(ctx, `UPDATE saga_steps SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		status, errMsg, now, id)
}

// ListSagaSteps はSagaのステップ記録を開始順に取得する。
func (q *Queries) ListSagaSteps(ctx context.Context, sagaID string) ([]SagaStep, error) {
	var rows []SagaStep
	err := q.selectAll(ctx, &rows, `SELECT id, saga_id, seq, step_name, critical, status, error, started_at, completed_at
		FROM saga_steps WHERE saga_id = ? ORDER BY seq ASC`, sagaID)
	return rows, err
}

// CreateRepairTask は手動修復タスクを作成する。
func (q *Queries) CreateRepairTask(ctx context.Context, t RepairTask) error {
	_, err := q.exec(ctx, `INSERT INTO repair_tasks (id, saga_id, saga_type, step_name, subject_id, error, resolved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, t.ID, t.SagaID, t.SagaType, t.StepName, t.SubjectID, t.Error, t.Resolved, t.CreatedAt)
	return err
}

// ListOpenRepairTasks は未解決の手動修復タスクを古い順に取得する。
func (q *Queries) ListOpenRepairTasks(ctx context.Context) ([]RepairTask, error) {
	var rows []RepairTask
	err := q.selectAll(ctx, &rows, `SELECT id, saga_id, saga_type, step_name, subject_id, error, resolved, created_at
		FROM repair_tasks WHERE resolved = ? ORDER BY created_at ASC`, false)
	return rows, err
}
