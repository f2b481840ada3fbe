// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// JWTの発行と検証、zapによるアクセスログ、パニックリカバリ、
// CORS設定を含む。エラー応答はすべて response パッケージのエンベロープ形式で返す。
package middleware
