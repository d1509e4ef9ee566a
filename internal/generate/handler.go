package generate

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/imagegate/pkg/apperror"
	"github.com/nao1215/imagegate/pkg/event"
	"github.com/nao1215/imagegate/pkg/middleware"
	"github.com/nao1215/imagegate/pkg/response"
)

// クライアント向けのエラーメッセージ。
const (
	MessageNotConfigured   = "Server error: Azure OpenAI keys not configured."
	MessageGenerationError = "Error during image generation. Please try again."
)

// unknownEmail はメールアドレスが不明な利用者の表示値。
const unknownEmail = "Unknown"

// maxBodySize はリクエストボディの最大バイト数。
const maxBodySize int64 = 1 << 20

// Recorder は成功した生成を履歴として記録する。
type Recorder interface {
	Record(ctx context.Context, e *event.Event) error
}

// Handler は画像生成エンドポイントのハンドラ。
type Handler struct {
	backend         Backend
	classifier      *apperror.Classifier
	recorder        Recorder
	maxPromptLength int
}

// Option はHandlerの設定を変更する関数。
type Option func(*Handler)

// WithRecorder は履歴の記録先を設定する。
func WithRecorder(r Recorder) Option {
	return func(h *Handler) {
		h.recorder = r
	}
}

// WithMaxPromptLength はプロンプトの最大文字数を変更する。
func WithMaxPromptLength(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxPromptLength = n
		}
	}
}

// NewHandler は新しいHandlerを生成する。backendがnilの場合、生成要求は設定エラーになる。
func NewHandler(backend Backend, classifier *apperror.Classifier, opts ...Option) *Handler {
	h := &Handler{
		backend:         backend,
		classifier:      classifier,
		maxPromptLength: DefaultMaxPromptLength,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.classifier == nil {
		h.classifier = apperror.NewClassifier(apperror.DefaultProviderRules()...)
	}
	return h
}

// generateResponse は生成成功時のレスポンス。
type generateResponse struct {
	Success       bool   `json:"success"`
	ImageURL      string `json:"image_url"`
	Prompt        string `json:"prompt"`
	RevisedPrompt string `json:"revised_prompt"`
	Size          string `json:"size"`
	Quality       string `json:"quality"`
	Style         string `json:"style"`
	UserEmail     string `json:"user_email"`
}

// RegisterRoutes はルーティングを設定する。authは必須認証のミドルウェア。
// extraは認証後に実行するミドルウェア（レート制限など）。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc, extra ...gin.HandlerFunc) {
	handlers := make([]gin.HandlerFunc, 0, len(extra)+2)
	handlers = append(handlers, auth)
	handlers = append(handlers, extra...)
	handlers = append(handlers, h.handleGenerate())
	rg.POST("/GenerateImage", handlers...)
}

// handleGenerate は画像生成を処理するハンドラを返す。
func (h *Handler) handleGenerate() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if h.backend == nil {
			response.Error(c, apperror.Configuration(MessageNotConfigured, nil))
			return
		}

		var req Request
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, apperror.Wrap(apperror.KindValidation, MessageInvalidJSON, err))
			return
		}

		params, err := req.Validate(h.maxPromptLength)
		if err != nil {
			response.Error(c, err)
			return
		}

		user, _ := middleware.IdentityFrom(c)
		slog.InfoContext(ctx, "画像を生成します",
			"user_id", user.ID,
			"prompt_length", len([]rune(params.Prompt)),
			"size", params.Size,
			"quality", params.Quality,
			"style", params.Style,
		)

		img, err := h.backend.Generate(ctx, params)
		if err != nil {
			response.Error(c, h.classifier.Classify(err, MessageGenerationError))
			return
		}

		revised := img.RevisedPrompt
		if revised == "" {
			revised = params.Prompt
		}
		email := user.Email
		if email == "" {
			email = unknownEmail
		}

		if user.ID != "" {
			h.record(ctx, user.ID, event.ImageGeneratedData{
				Prompt:        params.Prompt,
				RevisedPrompt: revised,
				ImageURL:      img.URL,
				Size:          params.Size,
				Quality:       params.Quality,
				Style:         params.Style,
			})
		}

		response.JSON(c, http.StatusOK, generateResponse{
			Success:       true,
			ImageURL:      img.URL,
			Prompt:        params.Prompt,
			RevisedPrompt: revised,
			Size:          params.Size,
			Quality:       params.Quality,
			Style:         params.Style,
			UserEmail:     email,
		})
	}
}

// record は生成結果を履歴に記録する。失敗してもレスポンスには影響させない。
func (h *Handler) record(ctx context.Context, userID string, data event.ImageGeneratedData) {
	if h.recorder == nil {
		return
	}
	ev, err := event.New(userID, event.TypeImageGenerated, data)
	if err == nil {
		err = h.recorder.Record(ctx, ev)
	}
	if err != nil {
		slog.WarnContext(ctx, "生成履歴の記録に失敗", "user_id", userID, "error", err)
	}
}
