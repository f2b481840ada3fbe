// Package marketplace はマーケットプレイスサービスのHTTPサーバーを提供する。
//
// コンサルタントによる農家の割り当てと、コンサルタントの登録完了を公開する。
// どちらもロールの検証を済ませてからSagaを実行する。
package marketplace
