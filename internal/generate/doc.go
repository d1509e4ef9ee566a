// Package generate は画像生成エンドポイント（POST /api/GenerateImage）を提供する。
//
// 認証必須。プロンプトとサイズを検証し、画像生成バックエンド（Azure OpenAI DALL-E 3）に
// 渡して生成された画像のURLを返す。
package generate
