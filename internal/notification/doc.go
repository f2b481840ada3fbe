// Package notification は通知テンプレートの解決と通知の保存を提供する。
//
// 通知の種類（Kind）ごとに1つのテンプレート型があり、タイトル・本文は必須、
// アクションURL・メタデータは任意で生成する。テンプレートは純粋関数で I/O を行わない。
// Dispatcher はテンプレートから通知行を組み立て、1回の呼び出しにつき
// ストアへの挿入を1回だけ行う。再試行はしない。
//
// 受信者向けAPI（一覧・未読一覧・既読化）と、管理者向けの送信APIを Server が提供する。
package notification
