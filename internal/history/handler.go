package history

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/imagegate/pkg/apperror"
	"github.com/nao1215/imagegate/pkg/event"
	"github.com/nao1215/imagegate/pkg/middleware"
	"github.com/nao1215/imagegate/pkg/response"
)

// クライアント向けのエラーメッセージ。
const (
	MessageInvalidLimit = "Invalid limit. Please specify a positive integer."
	MessageInvalidType  = "Invalid type. Allowed types: AnalysisCompleted, ImageGenerated"
	MessageNotFound     = "History entry not found."
	MessageStoreError   = "Error while accessing history. Please try again."
)

// Repository は履歴の保存先。*Storeがこれを満たす。
type Repository interface {
	List(ctx context.Context, userID string, opts ListOptions) ([]*event.Event, error)
	Get(ctx context.Context, userID, id string) (*event.Event, error)
	Delete(ctx context.Context, userID, id string) error
}

var _ Repository = (*Store)(nil)

// Handler は履歴エンドポイントのハンドラ。
type Handler struct {
	repo Repository
}

// NewHandler は新しいHandlerを生成する。
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// listResponse は一覧取得のレスポンス。
type listResponse struct {
	Events []*event.Event `json:"events"`
	Count  int            `json:"count"`
}

// RegisterRoutes はルーティングを設定する。authは必須認証のミドルウェア。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	history := rg.Group("/history", auth)
	{
		// 一覧取得（クエリパラメータ: limit, type）
		history.GET("", h.handleList())
		history.GET("/:id", h.handleGet())
		history.DELETE("/:id", h.handleDelete())
	}
}

func (h *Handler) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		opts := ListOptions{Limit: DefaultLimit}
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				response.Error(c, apperror.Validation(MessageInvalidLimit))
				return
			}
			opts.Limit = min(n, MaxLimit)
		}
		if v := c.Query("type"); v != "" {
			t, err := event.ParseType(v)
			if err != nil {
				response.Error(c, apperror.Wrap(apperror.KindValidation, MessageInvalidType, err))
				return
			}
			opts.Type = t
		}

		events, err := h.repo.List(c.Request.Context(), middleware.GetUserID(c), opts)
		if err != nil {
			response.Error(c, apperror.Internal(MessageStoreError, err))
			return
		}
		response.JSON(c, http.StatusOK, listResponse{Events: events, Count: len(events)})
	}
}

func (h *Handler) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := h.repo.Get(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
		if err != nil {
			response.Error(c, storeError(err))
			return
		}
		response.JSON(c, http.StatusOK, e)
	}
}

func (h *Handler) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.repo.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
			response.Error(c, storeError(err))
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// storeError は保存先のエラーをクライアント向けのエラーに変換する。
func storeError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperror.Wrap(apperror.KindNotFound, MessageNotFound, err)
	}
	return apperror.Internal(MessageStoreError, err)
}
