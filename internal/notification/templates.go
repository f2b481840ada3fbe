package notification

import (
	"errors"
	"fmt"
	"strings"
)

// Kind は通知の種類。
type Kind string

const (
	KindWelcome              Kind = "welcome"
	KindFarmerAssigned       Kind = "farmer_assigned"
	KindConsultantAssigned   Kind = "consultant_assigned"
	KindVerificationApproved Kind = "verification_approved"
	KindVerificationRejected Kind = "verification_rejected"
)

// Kinds は定義済みの通知の種類を返す。
func Kinds() []Kind {
	return []Kind{
		KindWelcome,
		KindFarmerAssigned,
		KindConsultantAssigned,
		KindVerificationApproved,
		KindVerificationRejected,
	}
}

// Category は通知の分類。
type Category string

const (
	CategorySystem       Category = "system"
	CategoryAssignment   Category = "assignment"
	CategoryVerification Category = "verification"
)

// Priority は通知の優先度。
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Contextのフィールド名。テンプレートの必須項目の指定に使う。
const (
	FieldRecipientName  = "recipient_name"
	FieldRole           = "role"
	FieldFarmerID       = "farmer_id"
	FieldFarmerName     = "farmer_name"
	FieldConsultantID   = "consultant_id"
	FieldConsultantName = "consultant_name"
	FieldReason         = "reason"
)

// Context はテンプレートに渡す値。どの項目が必要かはテンプレートが宣言する。
type Context struct {
	RecipientName  string `json:"recipient_name,omitempty"`
	Role           string `json:"role,omitempty"`
	FarmerID       string `json:"farmer_id,omitempty"`
	FarmerName     string `json:"farmer_name,omitempty"`
	ConsultantID   string `json:"consultant_id,omitempty"`
	ConsultantName string `json:"consultant_name,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

func (c Context) value(field string) string {
	switch field {
	case FieldRecipientName:
		return c.RecipientName
	case FieldRole:
		return c.Role
	case FieldFarmerID:
		return c.FarmerID
	case FieldFarmerName:
		return c.FarmerName
	case FieldConsultantID:
		return c.ConsultantID
	case FieldConsultantName:
		return c.ConsultantName
	case FieldReason:
		return c.Reason
	}
	return ""
}

var (
	// ErrUnknownKind はレジストリに該当する種類のテンプレートが無いことを表す。
	ErrUnknownKind = errors.New("notification: 未知の通知種類です")
	// ErrMissingContext はテンプレートの必須項目が Context に無いことを表す。
	ErrMissingContext = errors.New("notification: 必須のコンテキストがありません")
)

// Template は通知の種類ごとの生成関数群。
// このパッケージの外では Custom 以外の実装を作れない。
type Template interface {
	Kind() Kind
	Category() Category
	Priority() Priority
	// Required は Context の必須項目を返す。
	Required() []string
	Title(c Context) string
	Message(c Context) string
	// ActionURL は遷移先を返す。無い場合は false。
	ActionURL(c Context) (string, bool)
	// Metadata は通知に付けるメタデータを返す。無い場合は false。
	Metadata(c Context) (map[string]any, bool)

	sealed()
}

// Rendered はテンプレートを適用した結果。
type Rendered struct {
	Kind      Kind
	Category  Category
	Priority  Priority
	Title     string
	Message   string
	ActionURL string
	HasAction bool
	Metadata  map[string]any
}

// Render は必須項目を検証してからテンプレートを適用する。
func Render(t Template, c Context) (Rendered, error) {
	var missing []string
	for _, f := range t.Required() {
		if strings.TrimSpace(c.value(f)) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return Rendered{}, fmt.Errorf("%w: kind=%s, fields=%s", ErrMissingContext, t.Kind(), strings.Join(missing, ","))
	}

	r := Rendered{
		Kind:     t.Kind(),
		Category: t.Category(),
		Priority: t.Priority(),
		Title:    t.Title(c),
		Message:  t.Message(c),
	}
	r.ActionURL, r.HasAction = t.ActionURL(c)
	if md, ok := t.Metadata(c); ok {
		r.Metadata = md
	}
	return r, nil
}

// templateFor は定義済みの種類に対応するテンプレートを返す。
func templateFor(kind Kind) (Template, bool) {
	switch kind {
	case KindWelcome:
		return welcomeTemplate{}, true
	case KindFarmerAssigned:
		return farmerAssignedTemplate{}, true
	case KindConsultantAssigned:
		return consultantAssignedTemplate{}, true
	case KindVerificationApproved:
		return verificationApprovedTemplate{}, true
	case KindVerificationRejected:
		return verificationRejectedTemplate{}, true
	}
	return nil, false
}

// welcomeTemplate は登録完了時の歓迎通知。
type welcomeTemplate struct{}

func (welcomeTemplate) sealed()              {}
func (welcomeTemplate) Kind() Kind           { return KindWelcome }
func (welcomeTemplate) Category() Category   { return CategorySystem }
func (welcomeTemplate) Priority() Priority   { return PriorityNormal }
func (welcomeTemplate) Required() []string   { return []string{FieldRecipientName, FieldRole} }
func (welcomeTemplate) Title(Context) string { return "ご登録ありがとうございます" }

func (welcomeTemplate) Message(c Context) string {
	return fmt.Sprintf("%sさん、登録が完了しました。プロフィールは審査後に公開されます。", c.RecipientName)
}

func (welcomeTemplate) ActionURL(c Context) (string, bool) {
	return "/" + c.Role + "/dashboard", true
}

func (welcomeTemplate) Metadata(c Context) (map[string]any, bool) {
	return map[string]any{"role": c.Role}, true
}

// farmerAssignedTemplate はコンサルタントに新しい担当農家を知らせる。
type farmerAssignedTemplate struct{}

func (farmerAssignedTemplate) sealed()              {}
func (farmerAssignedTemplate) Kind() Kind           { return KindFarmerAssigned }
func (farmerAssignedTemplate) Category() Category   { return CategoryAssignment }
func (farmerAssignedTemplate) Priority() Priority   { return PriorityHigh }
func (farmerAssignedTemplate) Required() []string   { return []string{FieldFarmerID, FieldFarmerName} }
func (farmerAssignedTemplate) Title(Context) string { return "新しい担当農家" }

func (farmerAssignedTemplate) Message(c Context) string {
	return fmt.Sprintf("%sさんの担当になりました。", c.FarmerName)
}

func (farmerAssignedTemplate) ActionURL(c Context) (string, bool) {
	return "/consultant/farmers/" + c.FarmerID, true
}

func (farmerAssignedTemplate) Metadata(c Context) (map[string]any, bool) {
	return map[string]any{"farmer_id": c.FarmerID}, true
}

// consultantAssignedTemplate は農家に担当コンサルタントを知らせる。
type consultantAssignedTemplate struct{}

func (consultantAssignedTemplate) sealed()            {}
func (consultantAssignedTemplate) Kind() Kind         { return KindConsultantAssigned }
func (consultantAssignedTemplate) Category() Category { return CategoryAssignment }
func (consultantAssignedTemplate) Priority() Priority { return PriorityHigh }
func (consultantAssignedTemplate) Required() []string {
	return []string{FieldConsultantID, FieldConsultantName}
}
func (consultantAssignedTemplate) Title(Context) string {
	return "担当コンサルタントが決まりました"
}

func (consultantAssignedTemplate) Message(c Context) string {
	return fmt.Sprintf("%sさんがあなたの担当コンサルタントになりました。", c.ConsultantName)
}

func (consultantAssignedTemplate) ActionURL(Context) (string, bool) {
	return "/farmer/consultant", true
}

func (consultantAssignedTemplate) Metadata(c Context) (map[string]any, bool) {
	return map[string]any{"consultant_id": c.ConsultantID}, true
}

// verificationApprovedTemplate は審査の承認を知らせる。
type verificationApprovedTemplate struct{}

func (verificationApprovedTemplate) sealed()              {}
func (verificationApprovedTemplate) Kind() Kind           { return KindVerificationApproved }
func (verificationApprovedTemplate) Category() Category   { return CategoryVerification }
func (verificationApprovedTemplate) Priority() Priority   { return PriorityHigh }
func (verificationApprovedTemplate) Required() []string   { return []string{FieldRecipientName} }
func (verificationApprovedTemplate) Title(Context) string { return "審査が承認されました" }

func (verificationApprovedTemplate) Message(c Context) string {
	return fmt.Sprintf("%sさんのプロフィールが承認され、公開されました。", c.RecipientName)
}

func (verificationApprovedTemplate) ActionURL(Context) (string, bool) {
	return "/consultant/dashboard", true
}

func (verificationApprovedTemplate) Metadata(Context) (map[string]any, bool) {
	return nil, false
}

// verificationRejectedTemplate は審査の却下と理由を知らせる。
type verificationRejectedTemplate struct{}

func (verificationRejectedTemplate) sealed()            {}
func (verificationRejectedTemplate) Kind() Kind         { return KindVerificationRejected }
func (verificationRejectedTemplate) Category() Category { return CategoryVerification }
func (verificationRejectedTemplate) Priority() Priority { return PriorityHigh }
func (verificationRejectedTemplate) Required() []string {
	return []string{FieldRecipientName, FieldReason}
}
func (verificationRejectedTemplate) Title(Context) string { return "審査結果のお知らせ" }

func (verificationRejectedTemplate) Message(c Context) string {
	return fmt.Sprintf("%sさんの登録は承認されませんでした。理由: %s", c.RecipientName, c.Reason)
}

func (verificationRejectedTemplate) ActionURL(Context) (string, bool) {
	return "/consultant/registration", true
}

func (verificationRejectedTemplate) Metadata(c Context) (map[string]any, bool) {
	return map[string]any{"reason": c.Reason}, true
}

// Custom は関数で構成するテンプレート。WithOverrides で定義済みのテンプレートを
// 差し替えたり、新しい種類を追加したりするために使う。
type Custom struct {
	KindValue      Kind
	CategoryValue  Category
	PriorityValue  Priority
	RequiredFields []string
	TitleFunc      func(Context) string
	MessageFunc    func(Context) string
	ActionURLFunc  func(Context) (string, bool)
	MetadataFunc   func(Context) (map[string]any, bool)
}

func (t Custom) sealed()                  {}
func (t Custom) Kind() Kind               { return t.KindValue }
func (t Custom) Category() Category       { return t.CategoryValue }
func (t Custom) Priority() Priority       { return t.PriorityValue }
func (t Custom) Required() []string       { return t.RequiredFields }
func (t Custom) Title(c Context) string   { return t.TitleFunc(c) }
func (t Custom) Message(c Context) string { return t.MessageFunc(c) }

func (t Custom) ActionURL(c Context) (string, bool) {
	if t.ActionURLFunc == nil {
		return "", false
	}
	return t.ActionURLFunc(c)
}

func (t Custom) Metadata(c Context) (map[string]any, bool) {
	if t.MetadataFunc == nil {
		return nil, false
	}
	return t.MetadataFunc(c)
}
