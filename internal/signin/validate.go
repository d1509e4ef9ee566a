package signin

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/nao1215/imagegate/pkg/apperror"
)

// MinPasswordLength は登録時のパスワードの最小文字数。RegisterRequestのmin=6と一致させる。
const MinPasswordLength = 6

// 検証エラーのメッセージ。
const (
	MessageInvalidJSON   = "Invalid JSON in request body."
	MessageInvalidEmail  = "Please enter a valid email address."
	MessageNoPassword    = "Please enter a password."
	MessageNoGoogleToken = "No id_token provided. Please provide an 'id_token' field."
)

// MessagePasswordTooShort は登録時のパスワードが短すぎる場合のメッセージ。
var MessagePasswordTooShort = fmt.Sprintf("Password must be at least %d characters.", MinPasswordLength)

// Credentials はメールアドレスとパスワードによるサインインのボディ。
type Credentials struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest はユーザー登録のボディ。
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// GoogleRequest はGoogleサインインのボディ。
type GoogleRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

// fieldMessages は "フィールド名.タグ" ごとのクライアント向けメッセージ。
var fieldMessages = map[string]string{
	"Email.required":    MessageInvalidEmail,
	"Email.email":       MessageInvalidEmail,
	"Password.required": MessageNoPassword,
	"Password.min":      MessagePasswordTooShort,
	"IDToken.required":  MessageNoGoogleToken,
}

// bindError はShouldBindJSONのエラーを検証エラーに変換する。
// 複数のフィールドが不正な場合は、構造体で先に定義されたフィールドのメッセージを使う。
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.Wrap(apperror.KindValidation, MessageInvalidJSON, err)
	}
	fe := verrs[0]
	msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]
	if !ok {
		msg = fmt.Sprintf("Invalid value for '%s'.", fe.Field())
	}
	return apperror.Wrap(apperror.KindValidation, msg, err)
}
