package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/imagegate/pkg/apperror"
	"github.com/nao1215/imagegate/pkg/httpclient"
)

// analyzePath はAzure Computer Vision v3.2の解析APIのパス。
const analyzePath = "/vision/v3.2/analyze?visualFeatures=Tags,Description"

// AzureClient はAzure Computer Vision REST APIのクライアント。
type AzureClient struct {
	client *httpclient.Client
}

// NewAzureClient は新しいAzureClientを生成する。endpointは末尾のスラッシュを含まないリソースURL。
func NewAzureClient(endpoint, key string, timeout time.Duration) *AzureClient {
	return &AzureClient{
		client: httpclient.New(strings.TrimRight(endpoint, "/"),
			httpclient.WithTimeout(timeout),
			httpclient.WithHeader("Ocp-Apim-Subscription-Key", key),
		),
	}
}

// azureAnalyzeResponse は解析APIのレスポンス。
type azureAnalyzeResponse struct {
	Tags []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"tags"`
	Description struct {
		Captions []struct {
			Text       string  `json:"text"`
			Confidence float64 `json:"confidence"`
		} `json:"captions"`
	} `json:"description"`
}

// azureErrorResponse は解析APIのエラーレスポンス。
// v3.2は {"error": {...}} 形式だが、古い形式のトップレベルのcode/messageも受け付ける。
type azureErrorResponse struct {
	Error struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		Innererror struct {
			Code string `json:"code"`
		} `json:"innererror"`
	} `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Analyze は画像の説明文とタグを取得する。
// 画像データはアプリケーション側で検証済みのため、そのままoctet-streamで送信する。
func (a *AzureClient) Analyze(ctx context.Context, img Image) (*Result, error) {
	var resp azureAnalyzeResponse
	if err := a.client.PostBinary(ctx, analyzePath, "application/octet-stream", img.Data, &resp); err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			return nil, parseAzureError(statusErr)
		}
		return nil, fmt.Errorf("画像解析APIの呼び出しに失敗: %w", err)
	}

	result := &Result{
		Captions: make([]string, 0, len(resp.Description.Captions)),
		Tags:     make([]string, 0, len(resp.Tags)),
	}
	for _, c := range resp.Description.Captions {
		result.Captions = append(result.Captions, c.Text)
	}
	for _, t := range resp.Tags {
		result.Tags = append(result.Tags, t.Name)
	}
	return result, nil
}

// parseAzureError はエラーレスポンスを*apperror.ProviderErrorに変換する。
func parseAzureError(statusErr *httpclient.StatusError) *apperror.ProviderError {
	pe := &apperror.ProviderError{StatusCode: statusErr.StatusCode}

	var body azureErrorResponse
	if err := json.Unmarshal(statusErr.Body, &body); err != nil {
		pe.Message = "unparseable error response"
		return pe
	}
	switch {
	case body.Error.Innererror.Code != "":
		pe.Code = body.Error.Innererror.Code
	case body.Error.Code != "":
		pe.Code = body.Error.Code
	default:
		pe.Code = body.Code
	}
	pe.Message = body.Error.Message
	if pe.Message == "" {
		pe.Message = body.Message
	}
	return pe
}
