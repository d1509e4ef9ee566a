package vision

import "context"

// Image は画像解析バックエンドに渡す画像。
type Image struct {
	// Data は画像の内容。
	Data []byte
	// ContentType は画像のMIMEタイプ。
	ContentType string
}

// Result は画像解析の結果。
type Result struct {
	// Captions は信頼度の高い順の説明文。
	Captions []string
	// Tags は画像に付与されたタグ名。
	Tags []string
}

// Backend は画像を解析する外部サービス。
// 失敗時はプロバイダのエラーコードを持つ*apperror.ProviderErrorを返すことが望ましい。
type Backend interface {
	Analyze(ctx context.Context, img Image) (*Result, error)
}
