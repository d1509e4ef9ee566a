package identity

import (
	"context"
	"fmt"
)

// Identity は認証サービスが返した検証済みユーザー。
// リクエスト単位で生成され、キャッシュや永続化はしない。
type Identity struct {
	// ID はユーザーの一意識別子（FirebaseのlocalId）。
	ID string `json:"localId"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
}

// Verifier はトークンを検証済みユーザーに交換する外部サービス。
type Verifier interface {
	// Lookup はcredentialに一致するユーザーを返す。
	// トークンが拒否された場合は*RejectedErrorを返し、
	// 通信障害などそれ以外の失敗は任意のエラーを返す。
	Lookup(ctx context.Context, credential string) ([]Identity, error)
}

// RejectedError は認証サービスがトークンを拒否したことを表す。
type RejectedError struct {
	// Reason は拒否理由。
	Reason string
}

// Error はエラー文字列を返す。
func (e *RejectedError) Error() string {
	return fmt.Sprintf("トークンが拒否されました: %s", e.Reason)
}
