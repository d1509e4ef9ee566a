package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/imagegate/pkg/apperror"
	"github.com/nao1215/imagegate/pkg/httpclient"
)

// firebaseBaseURL はFirebase Identity Toolkit REST APIのベースURL。
const firebaseBaseURL = "https://identitytoolkit.googleapis.com/v1"

// FirebaseClient はFirebase Identity Toolkit REST APIのクライアント。
// トークン検証（accounts:lookup）とサインイン系のAPIを提供する。
type FirebaseClient struct {
	// client は内部で使用するHTTPクライアント。
	client *httpclient.Client
	// apiKey はFirebase Web APIキー。
	apiKey string
}

// FirebaseOption はFirebaseClientの設定を変更する関数。
type FirebaseOption func(*firebaseOptions)

type firebaseOptions struct {
	baseURL string
	timeout time.Duration
}

// WithFirebaseBaseURL は接続先のベースURLを変更する。テストで使用する。
func WithFirebaseBaseURL(baseURL string) FirebaseOption {
	return func(o *firebaseOptions) {
		o.baseURL = baseURL
	}
}

// WithFirebaseTimeout はHTTP呼び出しのタイムアウトを設定する。
func WithFirebaseTimeout(d time.Duration) FirebaseOption {
	return func(o *firebaseOptions) {
		o.timeout = d
	}
}

// NewFirebaseClient は新しいFirebaseClientを生成する。
func NewFirebaseClient(apiKey string, opts ...FirebaseOption) *FirebaseClient {
	o := firebaseOptions{baseURL: firebaseBaseURL, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return &FirebaseClient{
		client: httpclient.New(o.baseURL, httpclient.WithTimeout(o.timeout)),
		apiKey: apiKey,
	}
}

// Session はサインイン成功時にFirebaseが返す認証情報。
type Session struct {
	// IDToken はAPI呼び出しに使用するIDトークン。
	IDToken string `json:"idToken"`
	// RefreshToken はIDトークンの再発行に使用するトークン。
	RefreshToken string `json:"refreshToken"`
	// ExpiresIn はIDトークンの有効期間（秒）。
	ExpiresIn string `json:"expiresIn"`
	// LocalID はユーザーの一意識別子。
	LocalID string `json:"localId"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
}

// firebaseErrorResponse はFirebaseのエラーレスポンス。
type firebaseErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// lookupReasons は accounts:lookup のエラーコードと拒否理由の対応表。
var lookupReasons = map[string]string{
	"INVALID_ID_TOKEN":               "invalid or expired authentication token",
	"TOKEN_EXPIRED":                  "invalid or expired authentication token",
	"USER_NOT_FOUND":                 "user account not found",
	"USER_DISABLED":                  "user account disabled",
	"CREDENTIAL_TOO_OLD_LOGIN_AGAIN": "credential too old, please log in again",
}

// Lookup はIDトークンに一致するユーザーを返す。
// Firebaseが4xxを返した場合は*RejectedErrorを返す。
func (f *FirebaseClient) Lookup(ctx context.Context, credential string) ([]Identity, error) {
	var resp struct {
		Users []Identity `json:"users"`
	}
	err := f.client.PostJSON(ctx, f.path("accounts:lookup"), map[string]string{"idToken": credential}, &resp)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
			code := errorCode(statusErr.Body)
			reason, ok := lookupReasons[code]
			if !ok {
				reason = "authentication failed: " + code
			}
			return nil, &RejectedError{Reason: reason}
		}
		return nil, fmt.Errorf("accounts:lookupの呼び出しに失敗: %w", err)
	}
	return resp.Users, nil
}

// SignInWithPassword はメールアドレスとパスワードでサインインする。
func (f *FirebaseClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	return f.session(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
}

// SignUp はメールアドレスとパスワードで新しいユーザーを登録する。
func (f *FirebaseClient) SignUp(ctx context.Context, email, password string) (*Session, error) {
	return f.session(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
}

// SignInWithIDP は外部プロバイダ（例: "google.com"）のIDトークンでサインインする。
func (f *FirebaseClient) SignInWithIDP(ctx context.Context, providerID, idToken string) (*Session, error) {
	postBody := url.Values{}
	postBody.Set("id_token", idToken)
	postBody.Set("providerId", providerID)
	return f.session(ctx, "accounts:signInWithIdp", map[string]any{
		"postBody":            postBody.Encode(),
		"requestUri":          "http://localhost",
		"returnIdpCredential": true,
		"returnSecureToken":   true,
	})
}

// session はサインイン系APIを呼び出す共通処理。
// Firebaseのエラーは*apperror.ProviderErrorとして返す。
func (f *FirebaseClient) session(ctx context.Context, method string, body any) (*Session, error) {
	var s Session
	if err := f.client.PostJSON(ctx, f.path(method), body, &s); err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			return nil, &apperror.ProviderError{
				Code:       errorCode(statusErr.Body),
				StatusCode: statusErr.StatusCode,
				Message:    method + " failed",
			}
		}
		return nil, fmt.Errorf("%sの呼び出しに失敗: %w", method, err)
	}
	return &s, nil
}

// path はAPIキー付きのリクエストパスを返す。
func (f *FirebaseClient) path(method string) string {
	return "/" + method + "?key=" + url.QueryEscape(f.apiKey)
}

// errorCode はFirebaseのエラーレスポンスからエラーコードを取り出す。
// "WEAK_PASSWORD : Password should be at least 6 characters" のような
// 詳細付きメッセージは先頭のコード部分のみを返す。
func errorCode(body []byte) string {
	var resp firebaseErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error.Message == "" {
		return http.StatusText(resp.Error.Code)
	}
	code, _, _ := strings.Cut(resp.Error.Message, " ")
	return code
}
