package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/imagegate/internal/generate"
	"github.com/nao1215/imagegate/internal/vision"
	"github.com/nao1215/imagegate/pkg/apperror"
	"github.com/nao1215/imagegate/pkg/config"
	"github.com/nao1215/imagegate/pkg/identity"
	"github.com/nao1215/imagegate/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testDevSecret はテスト用の開発用トークン署名鍵。
const testDevSecret = "test-dev-secret"

// testConfig はバックエンド未設定のテスト用設定を返す。
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: "0", LogLevel: "info", CORSAllowOrigin: "*"},
		Identity: config.IdentityConfig{
			Timeout: time.Second,
		},
		Vision: config.VisionConfig{Timeout: time.Second, MaxUploadBytes: 4 << 20},
		Generation: config.GenerationConfig{
			Timeout:         time.Second,
			MaxPromptLength: 1000,
		},
	}
}

// fakeGeneration はテスト用の画像生成バックエンド。
type fakeGeneration struct {
	err error
}

func (f fakeGeneration) Generate(_ context.Context, p generate.Params) (*generate.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &generate.Image{URL: "https://img/" + strings.ReplaceAll(p.Prompt, " ", "-") + ".png"}, nil
}

// fakeVision はテスト用の画像解析バックエンド。
type fakeVision struct{}

func (fakeVision) Analyze(context.Context, vision.Image) (*vision.Result, error) {
	return &vision.Result{Captions: []string{"a dog"}, Tags: []string{"dog"}}, nil
}

// newTestServer はテスト用のサーバーを生成する。
func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) *Server {
	t.Helper()
	s, err := NewServer(t.Context(), cfg, opts...)
	if err != nil {
		t.Fatalf("サーバーの生成に失敗: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

// devToken は開発用トークン発行エンドポイントからトークンを取得する。
func devToken(t *testing.T, s *Server) string {
	t.Helper()
	w := serve(s, httptest.NewRequest(http.MethodPost, "/auth/dev-token", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("開発用トークンの発行に失敗: status=%d body=%s", w.Code, w.Body.String())
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	return body.Token
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func generateRequest(body, token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/GenerateImage", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("エラーレスポンスのデコードに失敗: %v (%s)", err, w.Body.String())
	}
	return body["error"]
}

// TestHealth はヘルスチェックを検証する。
func TestHealth(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, testConfig())

	w := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"service":"imagegate","status":"ok"}` {
		t.Errorf("body = %s", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-IDが設定されていない")
	}
}

// TestPreflight はCORSのプリフライトが認証より先に処理されることを検証する。
func TestPreflight(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, testConfig())

	for _, path := range []string{"/api/GenerateImage", "/api/AnalyzeImage", "/api/me", "/api/unknown"} {
		w := serve(s, httptest.NewRequest(http.MethodOptions, path, nil))
		if w.Code != http.StatusNoContent {
			t.Errorf("%s: status = %d, want 204", path, w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("%s: Access-Control-Allow-Origin = %q", path, got)
		}
	}
}

// TestBackendsNotConfigured はバックエンド未設定時の応答を検証する。
func TestBackendsNotConfigured(t *testing.T) {
	t.Parallel()

	t.Run("認証サービスが無ければ生成は500", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, testConfig())

		w := serve(s, generateRequest(`{"prompt":"a red fox"}`, "any-token"))
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
		if got := errorMessage(t, w); got != middleware.MessageAuthNotConfigured {
			t.Errorf("message = %q", got)
		}
	})

	t.Run("画像生成バックエンドが無ければ500", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Identity.DevJWTSecret = testDevSecret
		s := newTestServer(t, cfg)

		w := serve(s, generateRequest(`{"prompt":"a red fox"}`, devToken(t, s)))
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
		if got := errorMessage(t, w); got != generate.MessageNotConfigured {
			t.Errorf("message = %q", got)
		}
	})

	t.Run("画像解析バックエンドが無ければ500", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, testConfig())

		req := httptest.NewRequest(http.MethodPost, "/api/AnalyzeImage", strings.NewReader(""))
		w := serve(s, req)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
		if got := errorMessage(t, w); got != vision.MessageNotConfigured {
			t.Errorf("message = %q", got)
		}
	})

	t.Run("サインインの認証サービスが無ければ500", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, testConfig())

		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@example.com","password":"x"}`))
		w := serve(s, req)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})
}

// TestGenerateFlow は開発用トークンによる画像生成の流れを検証する。
func TestGenerateFlow(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Identity.DevJWTSecret = testDevSecret
	s := newTestServer(t, cfg, WithGenerationBackend(fakeGeneration{}))

	t.Run("トークンが無ければ401", func(t *testing.T) {
		t.Parallel()
		w := serve(s, generateRequest(`{"prompt":"a red fox"}`, ""))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("別の鍵で署名されたトークンは401", func(t *testing.T) {
		t.Parallel()
		token, err := identity.IssueLocalToken("other-secret", "u", "u@example.com", time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		w := serve(s, generateRequest(`{"prompt":"a red fox"}`, token))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("開発用トークンで画像を生成できる", func(t *testing.T) {
		t.Parallel()
		w := serve(s, generateRequest(`{"prompt":"a red fox"}`, devToken(t, s)))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body["image_url"] != "https://img/a-red-fox.png" || body["user_email"] != devTokenEmail {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("meは検証済みユーザーを返す", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer "+devToken(t, s))
		w := serve(s, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if got := strings.TrimSpace(w.Body.String()); got != `{"email":"dev@localhost","user_id":"dev-user"}` {
			t.Errorf("body = %s", got)
		}
	})
}

// TestDevTokenDisabled は署名鍵が無い場合に開発用トークンを発行しないことを検証する。
func TestDevTokenDisabled(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, testConfig())

	w := serve(s, httptest.NewRequest(http.MethodPost, "/auth/dev-token", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// TestSkipAuthForTests はテスト用の合成ユーザーが使われることを検証する。
func TestSkipAuthForTests(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Identity.SkipAuthForTests = true
	s := newTestServer(t, cfg, WithVerifier(identity.NewLocalVerifier(testDevSecret)), WithGenerationBackend(fakeGeneration{}))

	w := serve(s, generateRequest(`{"prompt":"a red fox"}`, ""))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["user_email"] != middleware.TestIdentity.Email {
		t.Errorf("user_email = %v", body["user_email"])
	}
}

// TestProviderErrorRules は設定ファイルの分類ルールが適用されることを検証する。
func TestProviderErrorRules(t *testing.T) {
	t.Parallel()

	t.Run("追加したルールが既定より優先される", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Identity.DevJWTSecret = testDevSecret
		cfg.ProviderErrors = []config.ProviderErrorRule{
			{Code: "moderation_blocked", Kind: "validation", Message: "Prompt blocked by moderation."},
		}
		backend := fakeGeneration{err: &apperror.ProviderError{Code: "moderation_blocked", StatusCode: 400}}
		s := newTestServer(t, cfg, WithGenerationBackend(backend))

		w := serve(s, generateRequest(`{"prompt":"a red fox"}`, devToken(t, s)))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
		if got := errorMessage(t, w); got != "Prompt blocked by moderation." {
			t.Errorf("message = %q", got)
		}
	})

	t.Run("既定のコンテンツポリシー判定は残る", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Identity.DevJWTSecret = testDevSecret
		backend := fakeGeneration{err: &apperror.ProviderError{Code: "content_policy_violation", StatusCode: 400}}
		s := newTestServer(t, cfg, WithGenerationBackend(backend))

		w := serve(s, generateRequest(`{"prompt":"a red fox"}`, devToken(t, s)))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
		if got := errorMessage(t, w); !strings.Contains(strings.ToLower(got), "content policy") {
			t.Errorf("message = %q", got)
		}
	})

	t.Run("未知の種類はサーバー生成時にエラー", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.ProviderErrors = []config.ProviderErrorRule{{Code: "x", Kind: "teapot"}}
		if _, err := NewServer(t.Context(), cfg); err == nil {
			t.Error("エラーが返されなかった")
		}
	})
}

// TestGenerateRateLimit は画像生成のレート制限を検証する。
func TestGenerateRateLimit(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Identity.DevJWTSecret = testDevSecret
	cfg.Generation.RateLimitRPS = 0.01
	cfg.Generation.RateLimitBurst = 1
	s := newTestServer(t, cfg, WithGenerationBackend(fakeGeneration{}))
	token := devToken(t, s)

	if w := serve(s, generateRequest(`{"prompt":"a red fox"}`, token)); w.Code != http.StatusOK {
		t.Fatalf("1回目: status = %d", w.Code)
	}
	w := serve(s, generateRequest(`{"prompt":"a red fox"}`, token))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("2回目: status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-Afterが設定されていない")
	}
}

// TestRateLimitClientIP はレート制限のキーとなるクライアントIPの決め方を検証する。
func TestRateLimitClientIP(t *testing.T) {
	t.Parallel()

	forwardedRequest := func(token, forwardedFor string) *http.Request {
		req := generateRequest(`{"prompt":"a red fox"}`, token)
		req.RemoteAddr = "192.0.2.10:40000"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		return req
	}
	newLimitedServer := func(t *testing.T, trusted []string) (*Server, string) {
		t.Helper()
		cfg := testConfig()
		cfg.Server.TrustedProxies = trusted
		cfg.Identity.DevJWTSecret = testDevSecret
		cfg.Generation.RateLimitRPS = 0.01
		cfg.Generation.RateLimitBurst = 1
		s := newTestServer(t, cfg, WithGenerationBackend(fakeGeneration{}))
		return s, devToken(t, s)
	}

	t.Run("信頼するプロキシが無い場合はX-Forwarded-Forを変えても制限されること", func(t *testing.T) {
		t.Parallel()
		s, token := newLimitedServer(t, nil)

		if w := serve(s, forwardedRequest(token, "198.51.100.1")); w.Code != http.StatusOK {
			t.Fatalf("1回目: status = %d", w.Code)
		}
		if w := serve(s, forwardedRequest(token, "198.51.100.2")); w.Code != http.StatusTooManyRequests {
			t.Errorf("2回目: status = %d, want 429", w.Code)
		}
	})

	t.Run("信頼するプロキシ経由の場合はX-Forwarded-Forのクライアントごとに制限されること", func(t *testing.T) {
		t.Parallel()
		s, token := newLimitedServer(t, []string{"192.0.2.10"})

		if w := serve(s, forwardedRequest(token, "198.51.100.1")); w.Code != http.StatusOK {
			t.Fatalf("1回目: status = %d", w.Code)
		}
		if w := serve(s, forwardedRequest(token, "198.51.100.2")); w.Code != http.StatusOK {
			t.Errorf("別クライアント: status = %d, want 200", w.Code)
		}
		if w := serve(s, forwardedRequest(token, "198.51.100.1")); w.Code != http.StatusTooManyRequests {
			t.Errorf("同じクライアントの2回目: status = %d, want 429", w.Code)
		}
	})

	t.Run("不正なプロキシ指定ではサーバーを生成できないこと", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Server.TrustedProxies = []string{"proxy.local"}
		if _, err := NewServer(t.Context(), cfg); err == nil {
			t.Fatal("エラーが返されなかった")
		}
	})
}

// TestUploadLimitFromConfig はアップロード上限が設定から反映されることを検証する。
func TestUploadLimitFromConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Vision.MaxUploadBytes = 1 << 10
	s := newTestServer(t, cfg, WithVisionBackend(fakeVision{}))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="big.png"`)
	h.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(bytes.Repeat([]byte{1}, 2<<10))
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/AnalyzeImage", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w := serve(s, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if got, want := errorMessage(t, w), "file too large: maximum size is 1 KB"; got != want {
		t.Errorf("error = %q, want %q", got, want)
	}
}

// TestHistoryRecording は成功した処理が履歴に記録されることを検証する。
func TestHistoryRecording(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Identity.DevJWTSecret = testDevSecret
	cfg.History.DBPath = filepath.Join(t.TempDir(), "history.db")
	s := newTestServer(t, cfg, WithGenerationBackend(fakeGeneration{}), WithVisionBackend(fakeVision{}))
	token := devToken(t, s)

	if w := serve(s, generateRequest(`{"prompt":"a red fox"}`, token)); w.Code != http.StatusOK {
		t.Fatalf("生成: status = %d", w.Code)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="dog.png"`)
	h.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write([]byte("\x89PNG fake image"))
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/AnalyzeImage", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	if w := serve(s, req); w.Code != http.StatusOK {
		t.Fatalf("解析: status = %d, body = %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := serve(s, req)
	if w.Code != http.StatusOK {
		t.Fatalf("履歴: status = %d", w.Code)
	}
	var body struct {
		Count  int `json:"count"`
		Events []struct {
			EventType string `json:"event_type"`
			UserID    string `json:"user_id"`
		} `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 {
		t.Fatalf("count = %d, want 2", body.Count)
	}
	types := map[string]bool{}
	for _, e := range body.Events {
		types[e.EventType] = true
		if e.UserID != devTokenUserID {
			t.Errorf("user_id = %s", e.UserID)
		}
	}
	if !types["ImageGenerated"] || !types["AnalysisCompleted"] {
		t.Errorf("types = %v", types)
	}
}

// TestHistoryDisabled は履歴が無効な場合にルートが登録されないことを検証する。
func TestHistoryDisabled(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Identity.DevJWTSecret = testDevSecret
	s := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("Authorization", "Bearer "+devToken(t, s))
	if w := serve(s, req); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
