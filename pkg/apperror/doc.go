// Package apperror はAPI全体で共通して使用するエラー分類を提供する。
//
// 各エンドポイントはクライアント入力の検証失敗、認証失敗、
// 外部プロバイダの失敗などをこのパッケージのKindに分類し、
// HTTPステータスコードへの変換を一箇所に集約する。
// 外部プロバイダのエラーはClassifierのルールテーブルで分類する。
package apperror
