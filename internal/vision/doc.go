// Package vision は画像解析エンドポイント（POST /api/AnalyzeImage）を提供する。
//
// アップロードされた画像を検証し、画像解析バックエンドに渡して
// 説明文とタグを返す。認証は任意で、検証済みユーザーがいる場合は
// レスポンスにメールアドレスを含め、履歴に記録する。
package vision
