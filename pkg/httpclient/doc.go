// Package httpclient は外部サービスへのHTTP通信を行うクライアントを提供する。
//
// 認証サービスや画像解析サービスなど、外部のREST APIを呼び出す際に使用する。
// すべての呼び出しはタイムアウト付きで実行され、2xx以外のレスポンスは
// ステータスコードとボディを保持したStatusErrorとして返す。
package httpclient
