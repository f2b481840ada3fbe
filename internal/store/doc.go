// Package store はマーケットプレイスのリレーショナルデータストアへのアクセスを提供する。
//
// SagaはこのパッケージのQueriesを通じて、条件付き更新・更新・挿入・一括挿入・
// 単一行取得・アトミックなインクリメントを実行する。複数テーブルにまたがる
// トランザクションは提供しない。整合性はSaga側の補償で担保する。
//
// 呼び出し元スコープの読み取り（本人のプロフィールのみ）は GetProfileByUserID で行い、
// それ以外のメソッドは特権資格情報での操作として扱う。
package store
