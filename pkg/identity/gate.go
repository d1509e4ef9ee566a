package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nao1215/imagegate/pkg/httpclient"
)

// DefaultTimeout は認証サービス呼び出しの既定タイムアウト。
const DefaultTimeout = 10 * time.Second

// Gate はトークンを検証し、結果を分類する。
// 状態を持たないため、複数のリクエストから同時に使用できる。
type Gate struct {
	// verifier はトークンを問い合わせる認証サービス。nilの場合は未設定。
	verifier Verifier
	// timeout は認証サービス呼び出しのタイムアウト。
	timeout time.Duration
}

// NewGate は新しいGateを生成する。timeoutが0以下の場合はDefaultTimeoutを使う。
func NewGate(verifier Verifier, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gate{verifier: verifier, timeout: timeout}
}

// Configured は認証サービスが設定されているかどうかを返す。
func (g *Gate) Configured() bool {
	return g != nil && g.verifier != nil
}

// Verify はcredentialを認証サービスに問い合わせ、結果を分類する。
// タイムアウトや通信障害はServiceUnavailableとなり、Invalidとは区別される。
// 認証はリクエストのレイテンシ内で再試行しない。
func (g *Gate) Verify(ctx context.Context, credential string) Outcome {
	if credential == "" {
		return NoCredential()
	}
	if !g.Configured() {
		slog.ErrorContext(ctx, "認証サービスが設定されていません")
		return ServiceUnavailable("identity verifier not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	slog.DebugContext(ctx, "トークンを検証します", "token_length", len(credential))
	users, err := g.verifier.Lookup(ctx, credential)
	if err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			slog.WarnContext(ctx, "トークンが拒否されました", "reason", rejected.Reason)
			return Invalid(rejected.Reason)
		}
		if httpclient.IsTimeout(err) {
			slog.ErrorContext(ctx, "認証サービスがタイムアウトしました", "timeout", g.timeout, "error", err)
			return ServiceUnavailable("authentication service timeout")
		}
		slog.ErrorContext(ctx, "認証サービスの呼び出しに失敗", "error", err)
		return ServiceUnavailable("authentication service unavailable")
	}

	if len(users) == 0 {
		slog.WarnContext(ctx, "トークンに一致するユーザーがいません")
		return Invalid("no matching user")
	}

	user := users[0]
	slog.InfoContext(ctx, "トークンを検証しました", "user_id", user.ID)
	return Authenticated(user)
}
