package signin

import (
	"net/http"

	"github.com/nao1215/imagegate/pkg/apperror"
)

// MessageSignInFailed は分類できないサインイン失敗時のメッセージ。
const MessageSignInFailed = "Sign-in failed. Please try again."

// 認証サービスのエラーコードに対応するメッセージ。
const (
	MessageInvalidCredentials = "Invalid email or password."
	MessageUserDisabled       = "This account has been disabled."
	MessageEmailExists        = "This email address is already in use."
	MessageWeakPassword       = "The password is too weak. Please use at least 6 characters."
	MessageEmailRejected      = "The email address is invalid."
	MessageTooManyAttempts    = "Too many attempts. Please try again later."
	MessageGoogleRejected     = "Google sign-in failed. Please try again."
)

// DefaultRules は認証サービスのエラーコードの分類表を返す。
func DefaultRules() []apperror.Rule {
	return []apperror.Rule{
		{Code: "EMAIL_NOT_FOUND", Kind: apperror.KindAuthentication, Message: MessageInvalidCredentials},
		{Code: "INVALID_PASSWORD", Kind: apperror.KindAuthentication, Message: MessageInvalidCredentials},
		{Code: "INVALID_LOGIN_CREDENTIALS", Kind: apperror.KindAuthentication, Message: MessageInvalidCredentials},
		{Code: "USER_DISABLED", Kind: apperror.KindAuthentication, Message: MessageUserDisabled},
		{Code: "EMAIL_EXISTS", Kind: apperror.KindValidation, Message: MessageEmailExists},
		{Code: "WEAK_PASSWORD", Kind: apperror.KindValidation, Message: MessageWeakPassword},
		{Code: "INVALID_EMAIL", Kind: apperror.KindValidation, Message: MessageEmailRejected},
		{Code: "TOO_MANY_ATTEMPTS_TRY_LATER", Kind: apperror.KindRateLimited, Message: MessageTooManyAttempts},
		{Status: http.StatusTooManyRequests, Kind: apperror.KindRateLimited, Message: MessageTooManyAttempts},
		{Code: "INVALID_IDP_RESPONSE", Kind: apperror.KindAuthentication, Message: MessageGoogleRejected},
	}
}
