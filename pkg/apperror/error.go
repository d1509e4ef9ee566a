package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind はエラーの分類を表す。
type Kind int

const (
	// KindInternal は想定外のエラーを表す。
	KindInternal Kind = iota
	// KindConfiguration は必須の設定値が不足していることを表す。
	KindConfiguration
	// KindValidation はクライアント入力が不正であることを表す。
	KindValidation
	// KindAuthentication は認証情報が無い、または無効であることを表す。
	KindAuthentication
	// KindAuthorizationService は認証サービスに到達できないことを表す。
	KindAuthorizationService
	// KindUpstreamProvider は外部プロバイダが処理に失敗したことを表す。
	KindUpstreamProvider
	// KindRateLimited はレート制限に達したことを表す。
	KindRateLimited
	// KindNotFound は要求されたリソースが存在しないことを表す。
	KindNotFound
)

// kindNames はKindと設定ファイル上の名前の対応表。
var kindNames = map[Kind]string{
	KindInternal:             "internal",
	KindConfiguration:        "configuration",
	KindValidation:           "validation",
	KindAuthentication:       "authentication",
	KindAuthorizationService: "authorization_service",
	KindUpstreamProvider:     "upstream_provider",
	KindRateLimited:          "rate_limited",
	KindNotFound:             "not_found",
}

// String はKindの名前を返す。
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Status はKindに対応するHTTPステータスコードを返す。
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorizationService:
		return http.StatusServiceUnavailable
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ParseKind は設定ファイル上の名前からKindを取得する。
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for k, v := range kindNames {
		if v == n {
			return k, nil
		}
	}
	return KindInternal, fmt.Errorf("不明なエラー種別です: %q", name)
}

// Error はHTTPレスポンスに変換可能なアプリケーションエラー。
// Messageは呼び出し元に返してよい文言のみを持ち、詳細はErrに保持する。
type Error struct {
	// Kind はエラーの分類。
	Kind Kind
	// Message はクライアントに返すメッセージ。
	Message string
	// Err は原因となったエラー。ログにのみ出力する。
	Err error
}

// Error はエラー文字列を返す。
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap は原因となったエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// Status はHTTPステータスコードを返す。
func (e *Error) Status() int {
	return e.Kind.Status()
}

// New は原因を持たないErrorを生成する。
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap は原因となるエラーを持つErrorを生成する。
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation はクライアント入力の検証エラーを生成する。
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Configuration は設定不足のエラーを生成する。
func Configuration(message string, err error) *Error {
	return Wrap(KindConfiguration, message, err)
}

// Authentication は認証エラーを生成する。
func Authentication(message string) *Error {
	return New(KindAuthentication, message)
}

// Internal は想定外のエラーを生成する。
func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

// From はerrを*Errorに変換する。
// *Errorを含まないエラーは汎用メッセージのKindInternalとして扱う。
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("Internal server error.", err)
}
