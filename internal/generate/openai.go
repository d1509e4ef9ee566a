package generate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nao1215/imagegate/pkg/apperror"
	openai "github.com/sashabaranov/go-openai"
)

// AzureConfig はAzure OpenAIの接続設定。
type AzureConfig struct {
	// Endpoint はAzure OpenAIリソースのURL。
	Endpoint string
	// Key はAPIキー。
	Key string
	// Deployment はDALL-E 3のデプロイメント名。
	Deployment string
	// APIVersion はAzure OpenAIのAPIバージョン。
	APIVersion string
	// Timeout は1回の生成呼び出しのタイムアウト。
	Timeout time.Duration
	// HTTPClient はテストで差し替えるHTTPクライアント。nilの場合はTimeoutから生成する。
	HTTPClient *http.Client
}

// AzureOpenAIClient はAzure OpenAIのDALL-E 3で画像を生成するBackend。
type AzureOpenAIClient struct {
	client *openai.Client
}

// NewAzureOpenAIClient は新しいAzureOpenAIClientを生成する。
func NewAzureOpenAIClient(cfg AzureConfig) *AzureOpenAIClient {
	clientConfig := openai.DefaultAzureConfig(cfg.Key, cfg.Endpoint)
	if cfg.APIVersion != "" {
		clientConfig.APIVersion = cfg.APIVersion
	}
	deployment := cfg.Deployment
	if deployment == "" {
		deployment = openai.CreateImageModelDallE3
	}
	// リクエストのモデル名に関わらず、設定されたデプロイメントに送る。
	clientConfig.AzureModelMapperFunc = func(string) string {
		return deployment
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	} else {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &AzureOpenAIClient{client: openai.NewClientWithConfig(clientConfig)}
}

// Generate は1枚の画像を生成し、そのURLを返す。
func (a *AzureOpenAIClient) Generate(ctx context.Context, p Params) (*Image, error) {
	resp, err := a.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         p.Prompt,
		Model:          openai.CreateImageModelDallE3,
		N:              1,
		Size:           p.Size,
		Quality:        p.Quality,
		Style:          p.Style,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return nil, providerError(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return nil, errors.New("画像生成APIが画像URLを返しませんでした")
	}

	return &Image{
		URL:           resp.Data[0].URL,
		RevisedPrompt: resp.Data[0].RevisedPrompt,
	}, nil
}

// providerError はgo-openaiのエラーを*apperror.ProviderErrorに変換する。
// HTTPレスポンスを伴わない失敗（タイムアウトなど）はそのまま返す。
func providerError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if apiErr.Code != nil {
			code = fmt.Sprint(apiErr.Code)
		}
		if apiErr.InnerError != nil && apiErr.InnerError.Code != "" && code == "" {
			code = apiErr.InnerError.Code
		}
		if code == "" {
			code = apiErr.Type
		}
		return &apperror.ProviderError{
			Code:       code,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		message := reqErr.HTTPStatus
		if reqErr.Err != nil {
			message = reqErr.Err.Error()
		}
		return &apperror.ProviderError{
			StatusCode: reqErr.HTTPStatusCode,
			Message:    message,
		}
	}

	return fmt.Errorf("画像生成APIの呼び出しに失敗: %w", err)
}
