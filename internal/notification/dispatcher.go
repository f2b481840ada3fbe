package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/nao1215/agrimarket/internal/store"
)

// Store は通知行を保存する。*store.Queries が実装する。
type Store interface {
	CreateNotifications(ctx context.Context, ns []store.Notification) error
}

// Request は送信する通知1件。
type Request struct {
	Kind        Kind    `json:"kind" binding:"required"`
	RecipientID string  `json:"recipient_id" binding:"required"`
	Context     Context `json:"context"`
}

// Dispatcher はテンプレートを解決して通知を保存する。
type Dispatcher struct {
	registry Registry
	store    Store
	clock    clock.Clock
}

// NewDispatcher は新しい Dispatcher を生成する。
func NewDispatcher(registry Registry, s Store, clk clock.Clock) *Dispatcher {
	return &Dispatcher{registry: registry, store: s, clock: clk}
}

// Dispatch は通知を1件保存する。
func (d *Dispatcher) Dispatch(ctx context.Context, kind Kind, recipientID string, c Context) error {
	return d.DispatchMany(ctx, []Request{{Kind: kind, RecipientID: recipientID, Context: c}})
}

// DispatchMany は全件の通知行を組み立ててから、1回の挿入でまとめて保存する。
// 1件でも組み立てに失敗した場合は何も保存しない。
func (d *Dispatcher) DispatchMany(ctx context.Context, reqs []Request) error {
	if len(reqs) == 0 {
		return nil
	}
	rows := make([]store.Notification, 0, len(reqs))
	now := d.clock.Now()
	for _, req := range reqs {
		row, err := d.build(req)
		if err != nil {
			return err
		}
		row.CreatedAt = now
		rows = append(rows, row)
	}
	return d.store.CreateNotifications(ctx, rows)
}

func (d *Dispatcher) build(req Request) (store.Notification, error) {
	t, ok := d.registry.Lookup(req.Kind)
	if !ok {
		return store.Notification{}, fmt.Errorf("%w: %s", ErrUnknownKind, req.Kind)
	}
	r, err := Render(t, req.Context)
	if err != nil {
		return store.Notification{}, err
	}

	n := store.Notification{
		ID:          uuid.NewString(),
		RecipientID: req.RecipientID,
		Kind:        string(req.Kind),
		Category:    string(r.Category),
		Priority:    string(r.Priority),
		Title:       r.Title,
		Message:     r.Message,
	}
	if r.HasAction {
		url := r.ActionURL
		n.ActionURL = &url
	}
	if r.Metadata != nil {
		b, err := json.Marshal(r.Metadata)
		if err != nil {
			return store.Notification{}, fmt.Errorf("メタデータのシリアライズに失敗: %w", err)
		}
		n.Metadata = store.JSONText(b)
	}
	return n, nil
}

// defaultRecipientName は表示名もメールアドレスも無いプロフィールの呼び名。
const defaultRecipientName = "ユーザー"

// DisplayName は通知の本文に使うプロフィールの呼び名を返す。
// 表示名が未設定の場合はメールアドレスを使う。
func DisplayName(p store.Profile) string {
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	if email := strings.TrimSpace(p.Email); email != "" {
		return email
	}
	return defaultRecipientName
}
