// Package history は利用者ごとの画像解析・画像生成の履歴を管理する。
//
// 履歴はSQLiteのeventsテーブルに不変のイベントとして保存される。
// 記録はリクエスト処理の成功後にベストエフォートで行い、失敗しても元のレスポンスには影響しない。
// 参照と削除は本人の履歴に限られる。
package history
