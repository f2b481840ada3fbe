// Package httpclient は外部サービスを呼び出すJSON用HTTPクライアントを提供する。
//
// 認証サービスへのトークン照会など、Bearerトークンを伝播して
// JSONを受け取る呼び出しの形を統一する。
package httpclient
