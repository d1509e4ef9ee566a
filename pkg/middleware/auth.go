package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/imagegate/pkg/apperror"
	"github.com/nao1215/imagegate/pkg/identity"
	"github.com/nao1215/imagegate/pkg/response"
)

// Policy はトークンが無い、または無効な場合のエンドポイントの扱い。
type Policy int

const (
	// PolicyOptional はトークンが無い、または無効な場合も匿名として処理を続ける。
	PolicyOptional Policy = iota
	// PolicyRequired はトークンが無い、または無効な場合に401を返して処理を中断する。
	PolicyRequired
)

// String はPolicyの名前を返す。
func (p Policy) String() string {
	if p == PolicyRequired {
		return "required"
	}
	return "optional"
}

// 認証失敗時のクライアント向けメッセージ。
const (
	MessageUnauthorized      = "Unauthorized: Invalid or expired token. Please log in."
	MessageAuthUnavailable   = "Authentication service unavailable. Please try again later."
	MessageAuthNotConfigured = "Server error: authentication is not configured."
)

// Ginコンテキストのキー。
const (
	contextKeyIdentity = "identity"
	contextKeyStatus   = "auth_status"
)

// TestIdentity はSkipAuthが有効な場合に使う合成ユーザー。テスト専用。
var TestIdentity = identity.Identity{ID: "test123", Email: "test@test.com"}

// AuthConfig はAuthenticateの動作を指定する。
type AuthConfig struct {
	// Policy はトークンが無い、または無効な場合の扱い。
	Policy Policy
	// SkipAuth がtrueの場合、認証できなかったリクエストにTestIdentityを使う。
	// テスト専用であり、本番環境で有効にしてはならない。
	SkipAuth bool
	// BodyTokenFallback はJSONボディのidTokenをトークンとして使うかどうか。
	BodyTokenFallback bool
}

// Authenticate はトークンを検証し、cfg.Policyに従って処理を続けるか中断するかを決めるGinミドルウェアを返す。
// 検証済みユーザーはIdentityFromで取得できる。
// 認証サービスの障害は、PolicyRequiredでは503、PolicyOptionalでは匿名として扱う。
func Authenticate(gate *identity.Gate, cfg AuthConfig) gin.HandlerFunc {
	opts := identity.ExtractOptions{BodyTokenFallback: cfg.BodyTokenFallback}

	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if !gate.Configured() {
			switch {
			case cfg.SkipAuth:
				slog.WarnContext(ctx, "認証サービス未設定のためテスト用ユーザーを使います")
				setIdentity(c, TestIdentity, identity.StatusAuthenticated)
			case cfg.Policy == PolicyRequired:
				response.Error(c, apperror.Configuration(MessageAuthNotConfigured, nil))
				return
			default:
				c.Set(contextKeyStatus, identity.StatusNoCredential)
			}
			c.Next()
			return
		}

		credential, _ := identity.FromRequest(c.Request, opts)
		outcome := gate.Verify(ctx, credential)

		switch outcome.Status() {
		case identity.StatusAuthenticated:
			id, _ := outcome.Identity()
			setIdentity(c, id, identity.StatusAuthenticated)
		case identity.StatusServiceUnavailable:
			if cfg.Policy == PolicyRequired {
				response.Error(c, apperror.New(apperror.KindAuthorizationService, MessageAuthUnavailable))
				return
			}
			slog.WarnContext(ctx, "認証サービスに到達できないため匿名として処理します", "reason", outcome.Reason())
			c.Set(contextKeyStatus, outcome.Status())
		default:
			if cfg.SkipAuth {
				slog.WarnContext(ctx, "SKIP_AUTH_FOR_TESTSによりテスト用ユーザーを使います", "status", outcome.Status().String())
				setIdentity(c, TestIdentity, identity.StatusAuthenticated)
				break
			}
			if cfg.Policy == PolicyRequired {
				response.Error(c, apperror.Authentication(MessageUnauthorized))
				return
			}
			c.Set(contextKeyStatus, outcome.Status())
		}

		c.Next()
	}
}

// setIdentity はコンテキストに検証済みユーザーを設定する。
func setIdentity(c *gin.Context, id identity.Identity, status identity.Status) {
	c.Set(contextKeyIdentity, id)
	c.Set(contextKeyStatus, status)
}

// IdentityFrom はGinコンテキストから検証済みユーザーを取得する。
// Authenticateが事前に適用されていない場合や匿名の場合はfalseを返す。
func IdentityFrom(c *gin.Context) (identity.Identity, bool) {
	v, ok := c.Get(contextKeyIdentity)
	if !ok {
		return identity.Identity{}, false
	}
	id, ok := v.(identity.Identity)
	return id, ok
}

// AuthStatus はGinコンテキストからトークン検証結果の種類を取得する。
func AuthStatus(c *gin.Context) identity.Status {
	v, ok := c.Get(contextKeyStatus)
	if !ok {
		return identity.StatusNoCredential
	}
	s, _ := v.(identity.Status)
	return s
}

// GetUserID はGinコンテキストからユーザーIDを取得する。匿名の場合は空文字列を返す。
func GetUserID(c *gin.Context) string {
	id, ok := IdentityFrom(c)
	if !ok {
		return ""
	}
	return id.ID
}
