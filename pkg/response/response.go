// Package response はAPIレスポンスの共通エンベロープを提供する。
//
// すべてのAPIは {success, data} または {success, error, code, errors} の形式で応答する。
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/agrimarket/internal/apperr"
)

// Envelope はAPIレスポンスの共通構造。
type Envelope struct {
	// Success は処理が成功したかどうか。
	Success bool `json:"success"`
	// Data は成功時のペイロード。
	Data any `json:"data,omitempty"`
	// Error は失敗時のメッセージ。
	Error string `json:"error,omitempty"`
	// Code は失敗時のエラーコード。
	Code string `json:"code,omitempty"`
	// Errors はフィールド単位のバリデーションエラー。
	Errors map[string]string `json:"errors,omitempty"`
}

// OK は200で成功レスポンスを返す。
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created は201で成功レスポンスを返す。
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// Fail はエラーの種類に応じたステータスで失敗レスポンスを返す。
// apperr.Error 以外のエラーは内部エラーとして扱い、詳細は返さない。
func Fail(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, Envelope{
			Error: "内部サーバーエラーが発生しました",
		})
		return
	}

	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Kind.HTTPStatus())
	}
	c.JSON(e.Kind.HTTPStatus(), Envelope{
		Error:  msg,
		Code:   e.Code,
		Errors: e.Fields,
	})
}

// Abort は Fail と同じレスポンスを返し、後続のハンドラを中断する。
func Abort(c *gin.Context, err error) {
	Fail(c, err)
	c.Abort()
}
