// Package apperr はサービス共通のエラー分類を提供する。
//
// ハンドラはこのパッケージのエラーを pkg/response でHTTPステータスに変換する。
// Sagaの重要ステップの失敗はここで定義した種類に分類して呼び出し元へ返す。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind はエラーの種類。
type Kind int

const (
	// KindInternal はストア障害などの内部エラー。
	KindInternal Kind = iota
	// KindUnauthorized は認証情報が無い、または無効であることを表す。
	KindUnauthorized
	// KindForbidden はロール不一致を表す。
	KindForbidden
	// KindNotFound は参照先のエンティティが存在しないことを表す。
	KindNotFound
	// KindBadRequest は入力不正を表す。フィールド単位のエラーを含むことがある。
	KindBadRequest
	// KindConflict は競合（既に割り当て済み、競争に負けた等）を表す。
	KindConflict
)

// String はログ出力用の名前を返す。
func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// HTTPStatus は種類に対応するHTTPステータスコードを返す。
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// エラーコード。Kind の下位分類としてレスポンスに含める。
const (
	CodeValidation         = "validation"
	CodeAlreadyAssigned    = "already_assigned"
	CodeAssignmentConflict = "assignment_conflict"
	CodeProfileMismatch    = "profile_mismatch"
	CodeRolledBack         = "rolled_back"
	CodeCompensationFailed = "compensation_failed"
)

// Error はアプリケーションエラー。
type Error struct {
	// Kind はエラーの種類。
	Kind Kind
	// Code は Kind の下位分類。空の場合もある。
	Code string
	// Message は呼び出し元に返すメッセージ。
	Message string
	// Fields はフィールド単位のバリデーションエラー。
	Fields map[string]string
	// Err は原因となったエラー。
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New は新しいアプリケーションエラーを生成する。
func New(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Unauthorized は認証エラーを生成する。
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, "", message, nil)
}

// Forbidden は権限エラーを生成する。
func Forbidden(message string) *Error {
	return New(KindForbidden, "", message, nil)
}

// NotFound はエンティティ不在エラーを生成する。
func NotFound(message string) *Error {
	return New(KindNotFound, "", message, nil)
}

// BadRequest は入力不正エラーを生成する。
func BadRequest(code, message string) *Error {
	return New(KindBadRequest, code, message, nil)
}

// Validation はフィールド単位のバリデーションエラーを生成する。
func Validation(fields map[string]string) *Error {
	e := New(KindBadRequest, CodeValidation, "入力内容に誤りがあります", nil)
	e.Fields = fields
	return e
}

// Conflict は競合エラーを生成する。
func Conflict(code, message string) *Error {
	return New(KindConflict, code, message, nil)
}

// Internal は内部エラーを生成する。
func Internal(code, message string, err error) *Error {
	return New(KindInternal, code, message, err)
}

// As は err の連鎖から *Error を取り出す。
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf は err の種類を返す。*Error を含まないエラーは KindInternal。
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// HasCode は err の連鎖に指定コードの *Error が含まれるか判定する。
func HasCode(err error, code string) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}
