package vision

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
	MessageNotConfigured = "Server error: AI Vision keys not configured."
	MessageAnalysisError = "Error during image analysis. Please try again."
)

// noCaption はバックエンドが説明文を返さなかった場合の値。
const noCaption = "No description"

// multipartOverhead はマルチパートの境界やヘッダーのために許容する追加バイト数。
const multipartOverhead int64 = 1 << 20

// Recorder は成功した解析を履歴として記録する。
type Recorder interface {
	Record(ctx context.Context, e *event.Event) error
}

// Handler は画像解析エンドポイントのハンドラ。
type Handler struct {
	// backend は画像解析バックエンド。nilの場合は未設定として扱う。
	backend Backend
	// classifier はバックエンドのエラーを分類する。
	classifier *apperror.Classifier
	// recorder は履歴の記録先。nilの場合は記録しない。
	recorder Recorder
	// maxSize はアップロード可能な最大バイト数。
	maxSize int64
}

// Option はHandlerの設定を変更する関数。
type Option func(*Handler)

// WithRecorder は履歴の記録先を設定する。
func WithRecorder(r Recorder) Option {
	return func(h *Handler) {
		h.recorder = r
	}
}

// WithMaxSize はアップロード可能な最大バイト数を変更する。
func WithMaxSize(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxSize = n
		}
	}
}

// NewHandler は新しいHandlerを生成する。
func NewHandler(backend Backend, classifier *apperror.Classifier, opts ...Option) *Handler {
	h := &Handler{
		backend:    backend,
		classifier: classifier,
		maxSize:    MaxUploadSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.classifier == nil {
		h.classifier = apperror.NewClassifier(apperror.DefaultProviderRules()...)
	}
	return h
}

// analyzeResponse は解析成功時のレスポンス。
type analyzeResponse struct {
	Filename    string   `json:"filename"`
	ContentType string   `json:"content_type"`
	Caption     string   `json:"caption"`
	Tags        []string `json:"tags"`
	TagsCount   int      `json:"tags_count"`
	UserEmail   string   `json:"user_email,omitempty"`
}

// RegisterRoutes はルーティングを設定する。authは任意認証のミドルウェア。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	rg.POST("/AnalyzeImage", auth, h.handleAnalyze())
}

// handleAnalyze は画像解析を処理するハンドラを返す。
// マルチパートフォームの画像を検証し、バックエンドに渡して結果を返す。
func (h *Handler) handleAnalyze() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if h.backend == nil {
			response.Error(c, apperror.Configuration(MessageNotConfigured, nil))
			return
		}

		// 実際に読む量を制限し、巨大なボディでメモリを使い切らないようにする。
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSize+multipartOverhead)
		fh, err := FormFile(c.Request, h.maxSize)
		if err != nil {
			response.Error(c, err)
			return
		}
		upload, err := ReadUpload(fh, h.maxSize)
		if err != nil {
			response.Error(c, err)
			return
		}

		user, authenticated := middleware.IdentityFrom(c)
		slog.InfoContext(ctx, "画像を解析します",
			"filename", upload.Filename,
			"content_type", upload.ContentType,
			"size", len(upload.Data),
			"authenticated", authenticated,
		)

		result, err := h.backend.Analyze(ctx, Image{Data: upload.Data, ContentType: upload.ContentType})
		if err != nil {
			response.Error(c, h.classifier.Classify(err, MessageAnalysisError))
			return
		}

		caption := noCaption
		if len(result.Captions) > 0 && result.Captions[0] != "" {
			caption = result.Captions[0]
		}
		tags := result.Tags
		if tags == nil {
			tags = []string{}
		}

		resp := analyzeResponse{
			Filename:    upload.Filename,
			ContentType: upload.ContentType,
			Caption:     caption,
			Tags:        tags,
			TagsCount:   len(tags),
		}
		if authenticated {
			resp.UserEmail = user.Email
			h.record(ctx, user.ID, event.AnalysisCompletedData{
				Filename:    upload.Filename,
				ContentType: upload.ContentType,
				Size:        int64(len(upload.Data)),
				Caption:     caption,
				Tags:        tags,
			})
		}

		response.JSON(c, http.StatusOK, resp)
	}
}

// record は解析結果を履歴に記録する。失敗してもレスポンスには影響させない。
func (h *Handler) record(ctx context.Context, userID string, data event.AnalysisCompletedData) {
	if h.recorder == nil {
		return
	}
	ev, err := event.New(userID, event.TypeAnalysisCompleted, data)
	if err == nil {
		err = h.recorder.Record(ctx, ev)
	}
	if err != nil {
		slog.WarnContext(ctx, "解析履歴の記録に失敗", "user_id", userID, "error", err)
	}
}
