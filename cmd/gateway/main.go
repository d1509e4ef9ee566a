// imagegateのエントリポイント。
// 画像解析・画像生成のAPIを公開し、外部サービスの認証情報をクライアントから隠す。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nao1215/imagegate/internal/gateway"
	"github.com/nao1215/imagegate/pkg/config"
	"github.com/nao1215/imagegate/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout は停止時に処理中のリクエストを待つ最大時間。
const shutdownTimeout = 10 * time.Second

func main() {
	// distrolessイメージのDockerヘルスチェック用
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		if err := runHealthcheck(); err != nil {
			fmt.Fprintf(os.Stderr, "ヘルスチェックに失敗: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("imagegateが異常終了しました", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf(".envの読み込みに失敗: %w", err)
	}

	cfg, err := config.Load(os.Getenv("IMAGEGATE_CONFIG"))
	if err != nil {
		return err
	}
	logger.Init(cfg.Server.LogLevel)
	if cfg.Identity.SkipAuthForTests {
		slog.Warn("SKIP_AUTH_FOR_TESTS が有効です。認証できないリクエストにテスト用ユーザーを使います。本番環境では無効にしてください")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	server, err := gateway.NewServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("サーバーの初期化に失敗: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("imagegateを停止します")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("imagegateを停止しました")
	return nil
}

// runHealthcheck はローカルで動作中のサーバーのヘルスチェックを行う。
func runHealthcheck() error {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%s/health", port))
	if err != nil {
		return fmt.Errorf("リクエストに失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ヘルスチェックのステータスが異常です: %d", resp.StatusCode)
	}
	return nil
}
