// Package config はプロセス全体で共有する読み取り専用の設定を提供する。
//
// 設定はYAMLファイル（任意）、環境変数、既定値の順に優先度が高い。
// プロセス起動時に一度だけ読み込み、以後は依存として各コンポーネントに渡す。
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config はimagegateの設定全体。
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Vision     VisionConfig     `mapstructure:"vision"`
	Generation GenerationConfig `mapstructure:"generation"`
	History    HistoryConfig    `mapstructure:"history"`
	// ProviderErrors はプロバイダエラーの分類表に追加するルール。既定のルールより優先される。
	ProviderErrors []ProviderErrorRule `mapstructure:"provider_errors"`
}

// ServerConfig はHTTPサーバーの設定。
type ServerConfig struct {
	Port            string `mapstructure:"port"`
	LogLevel        string `mapstructure:"log_level"`
	CORSAllowOrigin string `mapstructure:"cors_allow_origin"`
	// TrustedProxies はX-Forwarded-Forを信頼するプロキシのIPまたはCIDR。空の場合は接続元のIPのみを使う。
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// IdentityConfig はトークン検証とサインインの設定。
type IdentityConfig struct {
	FirebaseAPIKey string        `mapstructure:"firebase_api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	// SkipAuthForTests はテスト専用。有効な場合、認証できなかったリクエストに合成ユーザーを使う。
	SkipAuthForTests bool `mapstructure:"skip_auth_for_tests"`
	// BodyTokenFallback はJSONボディのidTokenをトークンとして使うかどうか。
	BodyTokenFallback bool `mapstructure:"body_token_fallback"`
	// DevJWTSecret が設定されている場合、Firebaseの代わりに開発用トークンを検証する。
	DevJWTSecret string `mapstructure:"dev_jwt_secret"`
}

// VisionConfig は画像解析バックエンドの設定。
type VisionConfig struct {
	Key      string        `mapstructure:"key"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// MaxUploadBytes はアップロード可能な画像の最大バイト数。
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// GenerationConfig は画像生成バックエンドの設定。
type GenerationConfig struct {
	Key             string        `mapstructure:"key"`
	Endpoint        string        `mapstructure:"endpoint"`
	Deployment      string        `mapstructure:"deployment"`
	APIVersion      string        `mapstructure:"api_version"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxPromptLength int           `mapstructure:"max_prompt_length"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
}

// HistoryConfig は履歴ストアの設定。
type HistoryConfig struct {
	// DBPath はSQLiteファイルのパス。空の場合は履歴を無効にする。
	DBPath string `mapstructure:"db_path"`
}

// ProviderErrorRule は設定ファイルで追加するプロバイダエラーの分類ルール。
type ProviderErrorRule struct {
	Code    string `mapstructure:"code"`
	Marker  string `mapstructure:"marker"`
	Status  int    `mapstructure:"status"`
	Kind    string `mapstructure:"kind"`
	Message string `mapstructure:"message"`
}

// envBindings は設定キーと環境変数名の対応表。
var envBindings = map[string]string{
	"server.port":                  "PORT",
	"server.log_level":             "LOG_LEVEL",
	"server.cors_allow_origin":     "CORS_ALLOW_ORIGIN",
	"server.trusted_proxies":       "TRUSTED_PROXIES",
	"identity.firebase_api_key":    "FIREBASE_API_KEY",
	"identity.timeout":             "IDENTITY_TIMEOUT",
	"identity.skip_auth_for_tests": "SKIP_AUTH_FOR_TESTS",
	"identity.body_token_fallback": "AUTH_BODY_TOKEN_FALLBACK",
	"identity.dev_jwt_secret":      "DEV_JWT_SECRET",
	"vision.key":                   "AI_VISION_KEY",
	"vision.endpoint":              "AI_VISION_ENDPOINT",
	"vision.timeout":               "VISION_TIMEOUT",
	"vision.max_upload_bytes":      "UPLOAD_MAX_BYTES",
	"generation.key":               "AZURE_OPENAI_KEY",
	"generation.endpoint":          "AZURE_OPENAI_ENDPOINT",
	"generation.deployment":        "AZURE_OPENAI_DALLE_DEPLOYMENT",
	"generation.api_version":       "AZURE_OPENAI_API_VERSION",
	"generation.timeout":           "GENERATION_TIMEOUT",
	"generation.max_prompt_length": "MAX_PROMPT_LENGTH",
	"generation.rate_limit_rps":    "GENERATE_RATE_LIMIT_RPS",
	"generation.rate_limit_burst":  "GENERATE_RATE_LIMIT_BURST",
	"history.db_path":              "HISTORY_DB_PATH",
}

// secretEnvs は "<名前>_FILE" でファイルから読み込める秘密情報の環境変数。
var secretEnvs = []string{
	"FIREBASE_API_KEY",
	"AI_VISION_KEY",
	"AZURE_OPENAI_KEY",
	"DEV_JWT_SECRET",
}

// Load は設定を読み込んで検証する。
// pathが空の場合はカレントディレクトリのimagegate.yamlを探し、無ければ環境変数と既定値のみを使う。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("imagegate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("環境変数 %s のバインドに失敗: %w", env, err)
		}
	}
	for _, env := range secretEnvs {
		if err := bindSecretFile(v, env); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定のデコードに失敗: %w", err)
	}
	cfg.Identity.FirebaseAPIKey = strings.TrimSpace(cfg.Identity.FirebaseAPIKey)
	cfg.Generation.Endpoint = strings.TrimRight(cfg.Generation.Endpoint, "/")
	cfg.Vision.Endpoint = strings.TrimRight(cfg.Vision.Endpoint, "/")
	for i, p := range cfg.Server.TrustedProxies {
		cfg.Server.TrustedProxies[i] = strings.TrimSpace(p)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}
	return &cfg, nil
}

// setDefaults は既定値を設定する。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.cors_allow_origin", "*")

	v.SetDefault("identity.timeout", 10*time.Second)
	v.SetDefault("identity.skip_auth_for_tests", false)
	v.SetDefault("identity.body_token_fallback", false)

	v.SetDefault("vision.timeout", 30*time.Second)
	v.SetDefault("vision.max_upload_bytes", 4<<20)

	v.SetDefault("generation.deployment", "dall-e-3")
	v.SetDefault("generation.api_version", "2024-02-01")
	v.SetDefault("generation.timeout", 60*time.Second)
	v.SetDefault("generation.max_prompt_length", 1000)
	v.SetDefault("generation.rate_limit_rps", 0)
	v.SetDefault("generation.rate_limit_burst", 5)
}

// bindSecretFile は "<env>_FILE" が設定されていればファイルの内容を秘密情報として使う。
func bindSecretFile(v *viper.Viper, env string) error {
	file := os.Getenv(env + "_FILE")
	if file == "" {
		return nil
	}
	content, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("%s_FILE の読み込みに失敗: %w", env, err)
	}
	for key, bound := range envBindings {
		if bound == env {
			v.Set(key, strings.TrimSpace(string(content)))
		}
	}
	return nil
}

// validLogLevels は指定可能なログレベル。
var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate は設定値の範囲を検証する。
// バックエンドの認証情報が無いことはエラーにせず、該当エンドポイントが応答時に報告する。
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if !validLogLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be debug, info, warn, or error)", c.Server.LogLevel)
	}
	for _, p := range c.Server.TrustedProxies {
		if !validProxy(p) {
			return fmt.Errorf("invalid TRUSTED_PROXIES entry: %q (must be an IP address or CIDR)", p)
		}
	}
	if c.Identity.Timeout <= 0 {
		return errors.New("IDENTITY_TIMEOUT must be positive")
	}
	if c.Vision.Timeout <= 0 {
		return errors.New("VISION_TIMEOUT must be positive")
	}
	if c.Vision.MaxUploadBytes <= 0 {
		return errors.New("UPLOAD_MAX_BYTES must be positive")
	}
	if c.Generation.Timeout <= 0 {
		return errors.New("GENERATION_TIMEOUT must be positive")
	}
	if c.Generation.MaxPromptLength <= 0 {
		return errors.New("MAX_PROMPT_LENGTH must be positive")
	}
	if c.Generation.RateLimitRPS < 0 {
		return errors.New("GENERATE_RATE_LIMIT_RPS must not be negative")
	}
	if c.Generation.RateLimitRPS > 0 && c.Generation.RateLimitBurst <= 0 {
		return errors.New("GENERATE_RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}
	for i, r := range c.ProviderErrors {
		if r.Code == "" && r.Marker == "" && r.Status == 0 {
			return fmt.Errorf("provider_errors[%d]: one of code, marker, or status is required", i)
		}
		if r.Kind == "" {
			return fmt.Errorf("provider_errors[%d]: kind is required", i)
		}
	}
	return nil
}

// validProxy はIPアドレスまたはCIDRとして解釈できるかどうかを返す。
func validProxy(s string) bool {
	if _, err := netip.ParseAddr(s); err == nil {
		return true
	}
	_, err := netip.ParsePrefix(s)
	return err == nil
}

// VisionConfigured は画像解析バックエンドの認証情報が揃っているかどうかを返す。
func (c *Config) VisionConfigured() bool {
	return c.Vision.Key != "" && c.Vision.Endpoint != ""
}

// GenerationConfigured は画像生成バックエンドの認証情報が揃っているかどうかを返す。
func (c *Config) GenerationConfigured() bool {
	return c.Generation.Key != "" && c.Generation.Endpoint != ""
}

// IdentityConfigured はトークン検証に使う認証サービスが設定されているかどうかを返す。
func (c *Config) IdentityConfigured() bool {
	return c.Identity.FirebaseAPIKey != "" || c.Identity.DevJWTSecret != ""
}
