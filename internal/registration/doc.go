// Package registration はコンサルタントの登録完了処理を行う。
//
// 登録完了とは、送信された所在地と書類がコンサルタントレコードに反映されたことを指す。
// アバターの設定、審査リクエストの作成、歓迎通知の送信はベストエフォートで行い、
// それらの失敗は呼び出し元に返さない。
package registration
