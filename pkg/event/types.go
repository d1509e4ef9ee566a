// Package event は利用履歴として記録するイベントの型とシリアライズを提供する。
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeAnalysisCompleted は画像解析が完了したことを表す。
	TypeAnalysisCompleted Type = "AnalysisCompleted"
	// TypeImageGenerated は画像生成が完了したことを表す。
	TypeImageGenerated Type = "ImageGenerated"
)

// ParseType は文字列をTypeに変換する。未知の種類はエラーを返す。
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeAnalysisCompleted, TypeImageGenerated:
		return t, nil
	default:
		return "", fmt.Errorf("未知のイベント種類です: %q", s)
	}
}

// Event はユーザーごとの不変の履歴レコードを表す。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// UserID はイベントを発生させたユーザーのID。
	UserID string `json:"user_id"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// AnalysisCompletedData はAnalysisCompletedイベントのデータ。
type AnalysisCompletedData struct {
	// Filename はアップロードされたファイル名。
	Filename string `json:"filename"`
	// ContentType はファイルのMIMEタイプ。
	ContentType string `json:"content_type"`
	// Size はファイルサイズ（バイト）。
	Size int64 `json:"size"`
	// Caption は画像の説明文。
	Caption string `json:"caption"`
	// Tags は画像に付与されたタグ。
	Tags []string `json:"tags"`
}

// ImageGeneratedData はImageGeneratedイベントのデータ。
type ImageGeneratedData struct {
	// Prompt はユーザーが入力したプロンプト。
	Prompt string `json:"prompt"`
	// RevisedPrompt はバックエンドが書き換えたプロンプト。
	RevisedPrompt string `json:"revised_prompt"`
	// ImageURL は生成された画像のURL。
	ImageURL string `json:"image_url"`
	// Size は画像サイズ。
	Size string `json:"size"`
	// Quality は画質。
	Quality string `json:"quality"`
	// Style は画風。
	Style string `json:"style"`
}
