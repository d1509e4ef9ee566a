package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/imagegate/internal/generate"
	"github.com/nao1215/imagegate/internal/history"
	"github.com/nao1215/imagegate/internal/vision"
	"github.com/nao1215/imagegate/pkg/apperror"
	"github.com/nao1215/imagegate/pkg/config"
	"github.com/nao1215/imagegate/pkg/identity"
)

// newDependencies は設定から外部サービスのクライアントを生成する。
// 認証情報が無いバックエンドはnilのままとし、該当エンドポイントが設定エラーを返す。
func newDependencies(ctx context.Context, cfg *config.Config) (dependencies, error) {
	var deps dependencies

	if cfg.Identity.FirebaseAPIKey != "" {
		firebase := identity.NewFirebaseClient(cfg.Identity.FirebaseAPIKey, identity.WithFirebaseTimeout(cfg.Identity.Timeout))
		deps.verifier = firebase
		deps.signIn = firebase
	}
	if cfg.Identity.DevJWTSecret != "" {
		slog.Warn("開発用トークンでの認証が有効です。本番環境では DEV_JWT_SECRET を設定しないでください")
		deps.verifier = identity.NewLocalVerifier(cfg.Identity.DevJWTSecret)
	}
	if !cfg.IdentityConfigured() {
		slog.Warn("認証サービスが設定されていません", "env", "FIREBASE_API_KEY")
	}

	if cfg.VisionConfigured() {
		deps.vision = vision.NewAzureClient(cfg.Vision.Endpoint, cfg.Vision.Key, cfg.Vision.Timeout)
	} else {
		slog.Warn("画像解析バックエンドが設定されていません", "env", "AI_VISION_KEY, AI_VISION_ENDPOINT")
	}

	if cfg.GenerationConfigured() {
		deps.generation = generate.NewAzureOpenAIClient(generate.AzureConfig{
			Endpoint:   cfg.Generation.Endpoint,
			Key:        cfg.Generation.Key,
			Deployment: cfg.Generation.Deployment,
			APIVersion: cfg.Generation.APIVersion,
			Timeout:    cfg.Generation.Timeout,
		})
	} else {
		slog.Warn("画像生成バックエンドが設定されていません", "env", "AZURE_OPENAI_KEY, AZURE_OPENAI_ENDPOINT")
	}

	if cfg.History.DBPath != "" {
		store, err := history.Open(ctx, cfg.History.DBPath)
		if err != nil {
			return dependencies{}, fmt.Errorf("履歴ストアの初期化に失敗: %w", err)
		}
		deps.history = store
		slog.Info("履歴ストアを有効にしました", "path", cfg.History.DBPath)
	}

	return deps, nil
}

// newClassifier は設定ファイルのルールを既定のルールより優先するClassifierを生成する。
func newClassifier(rules []config.ProviderErrorRule) (*apperror.Classifier, error) {
	extra := make([]apperror.Rule, 0, len(rules))
	for i, r := range rules {
		kind, err := apperror.ParseKind(r.Kind)
		if err != nil {
			return nil, fmt.Errorf("provider_errors[%d]: %w", i, err)
		}
		extra = append(extra, apperror.Rule{
			Code:    r.Code,
			Marker:  r.Marker,
			Status:  r.Status,
			Kind:    kind,
			Message: r.Message,
		})
	}
	return apperror.NewClassifier(apperror.DefaultProviderRules()...).With(extra...), nil
}
