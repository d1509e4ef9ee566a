// Package identity はBearerトークンの抽出と検証を行うTokenゲートを提供する。
//
// Gateは受け取ったトークンを外部の認証サービス（Verifier）に問い合わせ、
// 結果をAuthenticated / NoCredential / Invalid / ServiceUnavailable の
// いずれかに分類する。エンドポイントごとの認証ポリシー（必須か任意か）は
// Gateでは判断せず、呼び出し側のミドルウェアが決定する。
//
// Verifierの実装として、Firebase Identity Toolkit REST APIを使う
// FirebaseClientと、開発環境向けにHS256署名のJWTを検証するLocalVerifierを持つ。
package identity
