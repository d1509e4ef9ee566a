package generate

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/nao1215/imagegate/pkg/apperror"
)

// 省略時の既定値。
const (
	DefaultSize    = "1024x1024"
	DefaultQuality = "standard"
	DefaultStyle   = "vivid"
)

// DefaultMaxPromptLength はプロンプトの既定の最大文字数。
const DefaultMaxPromptLength = 1000

// AllowedSizes は指定可能な画像サイズ。
var AllowedSizes = []string{"1024x1024", "1792x1024", "1024x1792"}

// 検証エラーのメッセージ。
const (
	MessageInvalidJSON = "Invalid JSON in request body."
	MessageNoPrompt    = "No prompt provided. Please provide a 'prompt' field."
)

// Request は画像生成リクエストのボディ。
// Size、Quality、Styleは省略された場合のみ既定値を使うため、空文字列と区別できるようポインタで受ける。
type Request struct {
	Prompt  string  `json:"prompt"`
	Size    *string `json:"size"`
	Quality *string `json:"quality"`
	Style   *string `json:"style"`
}

// Params は検証済みの画像生成パラメータ。Request.Validateでのみ生成する。
type Params struct {
	Prompt  string
	Size    string
	Quality string
	Style   string
}

// Validate はリクエストを検証し、既定値を補ったパラメータを返す。
// プロンプトは前後の空白を除いた後のUnicodeコードポイント数で長さを判定する。
func (r Request) Validate(maxPromptLength int) (Params, error) {
	if maxPromptLength <= 0 {
		maxPromptLength = DefaultMaxPromptLength
	}

	prompt := strings.TrimSpace(r.Prompt)
	if prompt == "" {
		return Params{}, apperror.Validation(MessageNoPrompt)
	}
	if utf8.RuneCountInString(prompt) > maxPromptLength {
		return Params{}, apperror.Validation(fmt.Sprintf("Prompt too long. Maximum length: %d characters.", maxPromptLength))
	}

	size := valueOr(r.Size, DefaultSize)
	if !slices.Contains(AllowedSizes, size) {
		return Params{}, apperror.Validation("Invalid size. Allowed sizes: " + strings.Join(AllowedSizes, ", "))
	}

	return Params{
		Prompt:  prompt,
		Size:    size,
		Quality: valueOr(r.Quality, DefaultQuality),
		Style:   valueOr(r.Style, DefaultStyle),
	}, nil
}

// valueOr はpがnilの場合にdefを返す。空文字列は指定された値として扱う。
func valueOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
