// Package saga は複数リソースにまたがる更新をステップ列として実行する。
//
// 各ステップは重要（失敗でSagaを中断し、完了済みステップを逆順に補償する）か
// ベストエフォート（失敗はログに残すだけで結果に影響しない）のどちらかを宣言する。
// ステップごとに実行時間の上限を設け、補償は呼び出し元のキャンセルから切り離した
// コンテキストで別の上限のもとに実行する。補償自体が失敗した場合は
// 手動修復タスクを記録し、最も高い重要度でログに出力する。
//
// 実行記録（saga_runs / saga_steps）はベストエフォートで書き込み、
// 記録の失敗がSagaの結果を変えることはない。
package saga
