// Package assignment は農家へのコンサルタント割り当てを行う。
//
// 割り当ては農家の consultant_id が NULL の場合に限り設定する条件付き更新で行い、
// 同じ農家への並行した割り当てのうち成功するのは1件だけになる。
// 後続のプロフィール有効化に失敗した場合は割り当てを取り消す。
package assignment
