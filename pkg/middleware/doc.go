// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// CORSとプリフライトの即時応答、トークン検証結果に基づく認証ポリシー、
// リクエストログ、パニックリカバリ、IPごとのレート制限を含む。
package middleware
