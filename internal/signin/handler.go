package signin

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/imagegate/pkg/apperror"
	"github.com/nao1215/imagegate/pkg/identity"
	"github.com/nao1215/imagegate/pkg/middleware"
	"github.com/nao1215/imagegate/pkg/response"
)

// maxBodySize はリクエストボディの最大バイト数。
const maxBodySize int64 = 64 << 10

// Handler はサインインエンドポイントのハンドラ。
type Handler struct {
	// backend は認証サービス。nilの場合は未設定として扱う。
	backend    Backend
	classifier *apperror.Classifier
}

// NewHandler は新しいHandlerを生成する。
func NewHandler(backend Backend) *Handler {
	return &Handler{
		backend:    backend,
		classifier: apperror.NewClassifier(DefaultRules()...),
	}
}

// sessionResponse はサインイン成功時のレスポンス。
type sessionResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
}

// RegisterRoutes はルーティングを設定する。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	auth.POST("/login", h.handleLogin())
	auth.POST("/register", h.handleRegister())
	auth.POST("/google", h.handleGoogle())
}

// handleLogin はメールアドレスとパスワードによるサインインを処理する。
func (h *Handler) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Credentials
		if !h.bind(c, &req) {
			return
		}
		h.respond(c, "login", func(ctx context.Context) (*identity.Session, error) {
			return h.backend.SignInWithPassword(ctx, req.Email, req.Password)
		})
	}
}

// handleRegister はユーザー登録を処理する。
func (h *Handler) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if !h.bind(c, &req) {
			return
		}
		h.respond(c, "register", func(ctx context.Context) (*identity.Session, error) {
			return h.backend.SignUp(ctx, req.Email, req.Password)
		})
	}
}

// handleGoogle はGoogleのIDトークンによるサインインを処理する。
func (h *Handler) handleGoogle() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GoogleRequest
		if !h.bind(c, &req) {
			return
		}
		// requiredは空白のみのトークンを通すため、取り除いた後にもう一度確認する。
		idToken := strings.TrimSpace(req.IDToken)
		if idToken == "" {
			response.Error(c, apperror.Validation(MessageNoGoogleToken))
			return
		}
		h.respond(c, "google", func(ctx context.Context) (*identity.Session, error) {
			return h.backend.SignInWithIDP(ctx, GoogleProviderID, idToken)
		})
	}
}

// bind は設定を確認し、ボディをvにバインドして検証する。失敗時はレスポンスを書き出してfalseを返す。
func (h *Handler) bind(c *gin.Context, v any) bool {
	if h.backend == nil {
		response.Error(c, apperror.Configuration(middleware.MessageAuthNotConfigured, nil))
		return false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
	if err := c.ShouldBindJSON(v); err != nil {
		response.Error(c, bindError(err))
		return false
	}
	return true
}

// respond は認証サービスを呼び出し、結果をレスポンスとして書き出す。
func (h *Handler) respond(c *gin.Context, method string, call func(ctx context.Context) (*identity.Session, error)) {
	ctx := c.Request.Context()

	session, err := call(ctx)
	if err != nil {
		response.Error(c, h.classifier.Classify(err, MessageSignInFailed))
		return
	}

	// Firebaseは有効期間を文字列で返す。数値でなければ0とする。
	expiresIn, _ := strconv.Atoi(session.ExpiresIn)
	slog.InfoContext(ctx, "サインインしました", "method", method, "user_id", session.LocalID)

	response.JSON(c, http.StatusOK, sessionResponse{
		IDToken:      session.IDToken,
		RefreshToken: session.RefreshToken,
		ExpiresIn:    expiresIn,
		UserID:       session.LocalID,
		Email:        session.Email,
	})
}
