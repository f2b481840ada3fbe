package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Role はプロフィールのロール。
type Role string

const (
	RoleFarmer     Role = "farmer"
	RoleConsultant Role = "consultant"
	RoleExpert     Role = "expert"
	RoleBuyer      Role = "buyer"
	RoleAdmin      Role = "admin"
)

// Valid はロールが定義済みの値か判定する。
func (r Role) Valid() bool {
	switch r {
	case RoleFarmer, RoleConsultant, RoleExpert, RoleBuyer, RoleAdmin:
		return true
	}
	return false
}

// ProfileStatus はプロフィールのライフサイクル状態。
type ProfileStatus string

const (
	ProfileStatusPending   ProfileStatus = "pending"
	ProfileStatusActive    ProfileStatus = "active"
	ProfileStatusSuspended ProfileStatus = "suspended"
	ProfileStatusRejected  ProfileStatus = "rejected"
)

// ReviewStatus は審査リクエストの状態。
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// Profile はユーザーのプロフィール。
type Profile struct {
	ID          string        `db:"id" json:"id"`
	UserID      string        `db:"user_id" json:"user_id"`
	DisplayName string        `db:"display_name" json:"display_name"`
	Email       string        `db:"email" json:"email"`
	Phone       string        `db:"phone" json:"phone"`
	AvatarURL   *string       `db:"avatar_url" json:"avatar_url"`
	Role        Role          `db:"role" json:"role"`
	Status      ProfileStatus `db:"status" json:"status"`
	IsVerified  bool          `db:"is_verified" json:"is_verified"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// Farmer は農家のレコード。ConsultantID が nil の場合は未割り当て。
type Farmer struct {
	ID            string     `db:"id" json:"id"`
	ProfileID     string     `db:"profile_id" json:"profile_id"`
	ConsultantID  *string    `db:"consultant_id" json:"consultant_id"`
	FarmName      string     `db:"farm_name" json:"farm_name"`
	FarmSizeAcres float64    `db:"farm_size_acres" json:"farm_size_acres"`
	State         string     `db:"state" json:"state"`
	District      string     `db:"district" json:"district"`
	Village       string     `db:"village" json:"village"`
	Crops         StringList `db:"crops" json:"crops"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Consultant はコンサルタントのレコード。
type Consultant struct {
	ID              string     `db:"id" json:"id"`
	ProfileID       string     `db:"profile_id" json:"profile_id"`
	Qualification   string     `db:"qualification" json:"qualification"`
	Specializations StringList `db:"specializations" json:"specializations"`
	ExperienceYears int        `db:"experience_years" json:"experience_years"`
	State           *string    `db:"state" json:"state"`
	District        *string    `db:"district" json:"district"`
	ServiceState    *string    `db:"service_state" json:"service_state"`
	ServiceDistrict *string    `db:"service_district" json:"service_district"`
	Documents       StringList `db:"documents" json:"documents"`
	AssignedFarmers int        `db:"assigned_farmers" json:"assigned_farmers"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// ReviewRequest は審査リクエスト。
type ReviewRequest struct {
	ID          string       `db:"id" json:"id"`
	ProfileID   string       `db:"profile_id" json:"profile_id"`
	RequestType string       `db:"request_type" json:"request_type"`
	Status      ReviewStatus `db:"status" json:"status"`
	Metadata    JSONText     `db:"metadata" json:"metadata"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// Notification は通知。IsRead と ReadAt 以外は作成後に変更しない。
type Notification struct {
	ID          string     `db:"id" json:"id"`
	RecipientID string     `db:"recipient_id" json:"recipient_id"`
	Kind        string     `db:"kind" json:"kind"`
	Category    string     `db:"category" json:"category"`
	Priority    string     `db:"priority" json:"priority"`
	Title       string     `db:"title" json:"title"`
	Message     string     `db:"message" json:"message"`
	ActionURL   *string    `db:"action_url" json:"action_url"`
	Metadata    JSONText   `db:"metadata" json:"metadata"`
	IsRead      bool       `db:"is_read" json:"is_read"`
	ReadAt      *time.Time `db:"read_at" json:"read_at"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// SagaRun はSaga1回分の実行記録。
type SagaRun struct {
	ID          string     `db:"id" json:"id"`
	SagaType    string     `db:"saga_type" json:"saga_type"`
	SubjectID   string     `db:"subject_id" json:"subject_id"`
	Status      string     `db:"status" json:"status"`
	Error       string     `db:"error" json:"error"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at"`
}

// SagaStep はSagaのステップ1回分の実行記録。
type SagaStep struct {
	ID          string     `db:"id" json:"id"`
	SagaID      string     `db:"saga_id" json:"saga_id"`
	Seq         int        `db:"seq" json:"seq"`
	StepName    string     `db:"step_name" json:"step_name"`
	Critical    bool       `db:"critical" json:"critical"`
	Status      string     `db:"status" json:"status"`
	Error       string     `db:"error" json:"error"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at"`
}

// RepairTask は補償に失敗したSagaの手動修復タスク。
type RepairTask struct {
	ID        string    `db:"id" json:"id"`
	SagaID    string    `db:"saga_id" json:"saga_id"`
	SagaType  string    `db:"saga_type" json:"saga_type"`
	StepName  string    `db:"step_name" json:"step_name"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	Error     string    `db:"error" json:"error"`
	Resolved  bool      `db:"resolved" json:"resolved"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StringList はJSON配列としてテキスト列に保存する文字列リスト。
type StringList []string

// Value は driver.Valuer の実装。nil は空配列として保存する。
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan は sql.Scanner の実装。
func (l *StringList) Scan(src any) error {
	raw, err := rawBytes(src)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("StringListのデコードに失敗: %w", err)
	}
	*l = out
	return nil
}

// JSONText はJSONオブジェクトをそのまま保存する列。空の場合はNULLとして保存する。
type JSONText []byte

// Value は driver.Valuer の実装。
func (j JSONText) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	if !json.Valid(j) {
		return nil, fmt.Errorf("JSONTextが不正なJSONです")
	}
	return string(j), nil
}

// Scan は sql.Scanner の実装。
func (j *JSONText) Scan(src any) error {
	raw, err := rawBytes(src)
	if err != nil {
		return err
	}
	if raw == nil {
		*j = nil
		return nil
	}
	*j = append((*j)[:0], raw...)
	return nil
}

// MarshalJSON はJSONとしてそのまま埋め込む。
func (j JSONText) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// Decode はJSONTextを v にデコードする。
func (j JSONText) Decode(v any) error {
	return json.Unmarshal(j, v)
}

func rawBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("JSON列として読み取れない型です: %T", src)
	}
}
