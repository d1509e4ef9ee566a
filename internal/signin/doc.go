// Package signin はメールアドレスとパスワード、またはGoogleのIDトークンによる
// サインインとユーザー登録のエンドポイントを提供する。
//
// 発行されたIDトークンは他のエンドポイントのAuthorizationヘッダーにそのまま使える。
package signin
