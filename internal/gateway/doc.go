// Package gateway はimagegateのHTTPサーバーを組み立てる。
//
// 設定から各バックエンド（画像解析、画像生成、認証サービス、履歴ストア）を一度だけ生成し、
// ミドルウェアチェーンと各エンドポイントのルーティングを構成する。
// 外部からアクセスされる唯一の境界であり、バックエンドの認証情報はここから外に出ない。
package gateway
