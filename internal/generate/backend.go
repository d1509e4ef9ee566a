package generate

import "context"

// Image は生成された画像。
type Image struct {
	// URL は生成された画像のURL。
	URL string
	// RevisedPrompt はバックエンドが書き換えたプロンプト。無い場合は空文字列。
	RevisedPrompt string
}

// Backend は画像を生成する外部サービス。
// 失敗時はプロバイダのエラーコードを持つ*apperror.ProviderErrorを返すことが望ましい。
type Backend interface {
	Generate(ctx context.Context, p Params) (*Image, error)
}
