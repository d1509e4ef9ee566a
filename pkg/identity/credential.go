package identity

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
)

// bearerPrefix はAuthorizationヘッダーのプレフィックス。大文字小文字を区別する。
const bearerPrefix = "Bearer "

// shortTokenLength はこれより短いヘッダートークンを切り詰められたものとみなす長さ。
// ボディフォールバックが有効な場合のみ使用する。
const shortTokenLength = 100

// maxBodyPeekSize はボディフォールバック時に読み取るボディの最大サイズ。
const maxBodyPeekSize = 1 << 20

// ExtractBearer はAuthorizationヘッダーの値からトークンを取り出す。
// "Bearer " で始まらない値や、プレフィックス以降が空白のみの値ではfalseを返す。
// トークンの内部構造は検証しない。
func ExtractBearer(header string) (string, bool) {
	rest, found := strings.CutPrefix(header, bearerPrefix)
	if !found {
		return "", false
	}
	token := strings.TrimSpace(rest)
	if token == "" {
		return "", false
	}
	return token, true
}

// ExtractOptions はリクエストからのトークン抽出方法を指定する。
type ExtractOptions struct {
	// BodyTokenFallback がtrueの場合、ヘッダーのトークンが無いか短すぎるときに
	// JSONボディのidTokenフィールドを使用する。既定では無効。
	BodyTokenFallback bool
}

// FromRequest はリクエストからトークンを取り出す。
// ヘッダー名の大文字小文字は区別しない。ボディを読み取った場合は
// 後続の処理のためにボディを元に戻す。
func FromRequest(r *http.Request, opts ExtractOptions) (string, bool) {
	token, ok := ExtractBearer(r.Header.Get("Authorization"))
	if !opts.BodyTokenFallback || (ok && len(token) >= shortTokenLength) {
		return token, ok
	}

	if bodyToken, found := tokenFromBody(r); found {
		return bodyToken, true
	}
	return token, ok
}

// tokenFromBody はJSONボディのidTokenフィールドを読み取る。
func tokenFromBody(r *http.Request) (string, bool) {
	if r.Body == nil {
		return "", false
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return "", false
	}

	peeked, err := io.ReadAll(io.LimitReader(r.Body, maxBodyPeekSize))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(peeked), r.Body), r.Body}
	if err != nil {
		return "", false
	}

	var body struct {
		IDToken string `json:"idToken"`
	}
	if err := json.Unmarshal(peeked, &body); err != nil {
		return "", false
	}
	token := strings.TrimSpace(body.IDToken)
	return token, token != ""
}
