// Package identity は呼び出し元の認証情報からユーザーとプロフィールを解決する。
//
// Bearerトークンは共有シークレットによるローカル検証か、外部認証サービスへの
// 照会のどちらかで検証する。プロフィールは呼び出し元スコープのクエリ
// （user_id が本人のもの）でのみ読み取る。ロールの検証はSagaの手前で一度だけ行い、
// Saga自身は再検証しない。
package identity
