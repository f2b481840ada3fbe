package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

// TestKindHTTPStatus は種類とHTTPステータスの対応を検証する。
func TestKindHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		want int
	}{
		{KindUnauthorized, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindBadRequest, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			t.Parallel()
			if got := tt.kind.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestAs はラップされたエラーから *Error を取り出せることを検証する。
func TestAs(t *testing.T) {
	t.Parallel()

	t.Run("ラップされたエラーから取り出せること", func(t *testing.T) {
		t.Parallel()

		base := Conflict(CodeAlreadyAssigned, "既に割り当て済みです")
		wrapped := fmt.Errorf("assign: %w", base)

		got, ok := As(wrapped)
		if !ok {
			t.Fatal("As() = false, want true")
		}
		if got.Code != CodeAlreadyAssigned {
			t.Errorf("Code = %q, want %q", got.Code, CodeAlreadyAssigned)
		}
		if KindOf(wrapped) != KindConflict {
			t.Errorf("KindOf() = %v, want %v", KindOf(wrapped), KindConflict)
		}
	})

	t.Run("通常のエラーはKindInternal", func(t *testing.T) {
		t.Parallel()

		if KindOf(errors.New("boom")) != KindInternal {
			t.Error("KindOf() != KindInternal")
		}
	})
}

// TestHasCode は入れ子になったコードの判定を検証する。
func TestHasCode(t *testing.T) {
	t.Parallel()

	inner := Internal(CodeCompensationFailed, "補償に失敗しました", errors.New("db down"))
	outer := Internal(CodeRolledBack, "ロールバックしました", inner)

	if !HasCode(outer, CodeRolledBack) {
		t.Error("外側のコードが見つからない")
	}
	if !HasCode(outer, CodeCompensationFailed) {
		t.Error("内側のコードが見つからない")
	}
	if HasCode(outer, CodeAlreadyAssigned) {
		t.Error("存在しないコードが見つかった")
	}
	if !errors.Is(outer, inner) {
		t.Error("errors.Is で内側のエラーに到達できない")
	}
}

// TestValidation はフィールドマップ付きエラーを検証する。
func TestValidation(t *testing.T) {
	t.Parallel()

	err := Validation(map[string]string{"state": "100文字以内で入力してください"})
	if err.Kind != KindBadRequest {
		t.Errorf("Kind = %v, want %v", err.Kind, KindBadRequest)
	}
	if err.Fields["state"] == "" {
		t.Error("Fieldsにstateが含まれていない")
	}
}
