package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/imagegate/internal/generate"
	"github.com/nao1215/imagegate/internal/history"
	"github.com/nao1215/imagegate/internal/signin"
	"github.com/nao1215/imagegate/internal/vision"
	"github.com/nao1215/imagegate/pkg/apperror"
	"github.com/nao1215/imagegate/pkg/config"
	"github.com/nao1215/imagegate/pkg/identity"
	"github.com/nao1215/imagegate/pkg/middleware"
	"github.com/nao1215/imagegate/pkg/response"
)

// 開発用トークンの発行条件。
const (
	devTokenTTL    = 24 * time.Hour
	devTokenUserID = "dev-user"
	devTokenEmail  = "dev@localhost"
)

// readHeaderTimeout はリクエストヘッダーの読み込みタイムアウト。
const readHeaderTimeout = 10 * time.Second

// Server はimagegateのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// httpServer はrouterを公開するHTTPサーバー。
	httpServer *http.Server
	// cfg は起動時に読み込んだ設定。
	cfg *config.Config
	// deps はリクエスト処理に使う外部サービス。
	deps dependencies
}

// dependencies は各エンドポイントが使う外部サービス。nilのものは未設定として扱う。
type dependencies struct {
	verifier   identity.Verifier
	vision     vision.Backend
	generation generate.Backend
	signIn     signin.Backend
	history    *history.Store
}

// Option はServerの依存を差し替える関数。主にテストで使う。
type Option func(*dependencies)

// WithVerifier はトークン検証に使うVerifierを差し替える。
func WithVerifier(v identity.Verifier) Option {
	return func(d *dependencies) {
		d.verifier = v
	}
}

// WithVisionBackend は画像解析バックエンドを差し替える。
func WithVisionBackend(b vision.Backend) Option {
	return func(d *dependencies) {
		d.vision = b
	}
}

// WithGenerationBackend は画像生成バックエンドを差し替える。
func WithGenerationBackend(b generate.Backend) Option {
	return func(d *dependencies) {
		d.generation = b
	}
}

// WithSignInBackend はサインインに使う認証サービスを差し替える。
func WithSignInBackend(b signin.Backend) Option {
	return func(d *dependencies) {
		d.signIn = b
	}
}

// NewServer は設定からサーバーを生成する。
// ctxはレート制限の掃除など、サーバーと同じ寿命のバックグラウンド処理に使う。
func NewServer(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	classifier, err := newClassifier(cfg.ProviderErrors)
	if err != nil {
		return nil, err
	}

	deps, err := newDependencies(ctx, cfg)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(&deps)
	}

	router := gin.New()
	// 信頼するプロキシが無い場合、ClientIPはX-Forwarded-Forを無視して接続元のIPを返す。
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("信頼するプロキシの設定に失敗: %w", err)
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.Server.CORSAllowOrigin))

	s := &Server{
		router: router,
		cfg:    cfg,
		deps:   deps,
		httpServer: &http.Server{
			Addr:              ":" + cfg.Server.Port,
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
	s.setupRoutes(ctx, classifier)

	return s, nil
}

// Handler はルーティング済みのhttp.Handlerを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動する。Shutdownで停止した場合はhttp.ErrServerClosedを返す。
func (s *Server) Run() error {
	slog.Info("imagegateを起動します", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown は処理中のリクエストの完了を待ってサーバーを停止し、履歴ストアを閉じる。
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.deps.history != nil {
		if cerr := s.deps.history.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("履歴ストアのクローズに失敗: %w", cerr))
		}
	}
	return err
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(ctx context.Context, classifier *apperror.Classifier) {
	gate := identity.NewGate(s.deps.verifier, s.cfg.Identity.Timeout)
	authConfig := middleware.AuthConfig{
		SkipAuth:          s.cfg.Identity.SkipAuthForTests,
		BodyTokenFallback: s.cfg.Identity.BodyTokenFallback,
	}
	optionalAuth := authConfig
	optionalAuth.Policy = middleware.PolicyOptional
	requiredAuth := authConfig
	requiredAuth.Policy = middleware.PolicyRequired
	optional := middleware.Authenticate(gate, optionalAuth)
	required := middleware.Authenticate(gate, requiredAuth)

	api := s.router.Group("/api")
	{
		// 画像解析（任意認証）
		visionOpts := []vision.Option{vision.WithMaxSize(s.cfg.Vision.MaxUploadBytes)}
		if s.deps.history != nil {
			visionOpts = append(visionOpts, vision.WithRecorder(s.deps.history))
		}
		vision.NewHandler(s.deps.vision, classifier, visionOpts...).RegisterRoutes(api, optional)

		// 画像生成（必須認証）
		generateOpts := []generate.Option{generate.WithMaxPromptLength(s.cfg.Generation.MaxPromptLength)}
		if s.deps.history != nil {
			generateOpts = append(generateOpts, generate.WithRecorder(s.deps.history))
		}
		var limits []gin.HandlerFunc
		if s.cfg.Generation.RateLimitRPS > 0 {
			limiter := middleware.NewRateLimiter(ctx, s.cfg.Generation.RateLimitRPS, s.cfg.Generation.RateLimitBurst)
			limits = append(limits, limiter.Middleware())
		}
		generate.NewHandler(s.deps.generation, classifier, generateOpts...).RegisterRoutes(api, required, limits...)

		// サインイン（認証不要）
		signin.NewHandler(s.deps.signIn).RegisterRoutes(api)

		// ユーザー情報
		api.GET("/me", required, s.handleGetCurrentUser())

		// 履歴（有効な場合のみ）
		if s.deps.history != nil {
			history.NewHandler(s.deps.history).RegisterRoutes(api, required)
		}
	}

	// 開発用トークン発行（DEV_JWT_SECRETが設定されている場合のみ）
	if s.cfg.Identity.DevJWTSecret != "" {
		s.router.POST("/auth/dev-token", s.handleDevToken())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		response.JSON(c, http.StatusOK, gin.H{"status": "ok", "service": "imagegate"})
	})
}

// handleGetCurrentUser は検証済みユーザーの情報を返すハンドラを返す。
func (s *Server) handleGetCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.IdentityFrom(c)
		if !ok {
			response.Error(c, apperror.Authentication(middleware.MessageUnauthorized))
			return
		}
		response.JSON(c, http.StatusOK, gin.H{
			"user_id": user.ID,
			"email":   user.Email,
		})
	}
}

// handleDevToken は開発用トークンを発行するハンドラを返す。
// 発行したトークンはDEV_JWT_SECRETによるトークン検証でのみ有効。
func (s *Server) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := identity.IssueLocalToken(s.cfg.Identity.DevJWTSecret, devTokenUserID, devTokenEmail, devTokenTTL)
		if err != nil {
			response.Error(c, apperror.Internal("Failed to issue development token.", err))
			return
		}
		slog.InfoContext(c.Request.Context(), "開発用トークンを発行しました", "user_id", devTokenUserID)

		response.JSON(c, http.StatusOK, gin.H{
			"token":      token,
			"user_id":    devTokenUserID,
			"email":      devTokenEmail,
			"expires_in": int(devTokenTTL.Seconds()),
		})
	}
}
