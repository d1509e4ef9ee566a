package apperror

import (
	"errors"
	"fmt"
	"strings"
)

// ProviderError は外部プロバイダから返されたエラーを表す。
type ProviderError struct {
	// Code はプロバイダ固有のエラーコード（例: content_policy_violation）。
	Code string
	// StatusCode はプロバイダが返したHTTPステータスコード。不明な場合は0。
	StatusCode int
	// Message はプロバイダが返したエラーメッセージ。
	Message string
}

// Error はエラー文字列を返す。
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error: status=%d, code=%s, message=%s", e.StatusCode, e.Code, e.Message)
}

// Rule はプロバイダエラーを分類するルール。
// Code, Marker, Statusのいずれかが一致したときに適用される。
type Rule struct {
	// Code はProviderError.Codeとの完全一致（大文字小文字を区別しない）。
	Code string
	// Marker はエラー文字列に含まれる部分文字列（大文字小文字を区別しない）。
	Marker string
	// Status はProviderError.StatusCodeとの一致。
	Status int
	// Kind は一致したときのエラー分類。
	Kind Kind
	// Message は一致したときのクライアント向けメッセージ。空の場合はフォールバック文言を使う。
	Message string
}

func (r Rule) matches(err error, pe *ProviderError) bool {
	if pe != nil {
		if r.Code != "" && strings.EqualFold(pe.Code, r.Code) {
			return true
		}
		if r.Status != 0 && pe.StatusCode == r.Status {
			return true
		}
	}
	if r.Marker != "" && strings.Contains(strings.ToLower(err.Error()), strings.ToLower(r.Marker)) {
		return true
	}
	return false
}

// Classifier はルールテーブルに従ってプロバイダエラーを*Errorに変換する。
// ルールは先頭から順に評価し、最初に一致したものを採用する。
type Classifier struct {
	rules []Rule
}

// NewClassifier はルールテーブルからClassifierを生成する。
func NewClassifier(rules ...Rule) *Classifier {
	return &Classifier{rules: append([]Rule(nil), rules...)}
}

// With はrulesを既存ルールより優先して評価するClassifierを返す。
// 元のClassifierは変更しない。
func (c *Classifier) With(rules ...Rule) *Classifier {
	merged := make([]Rule, 0, len(rules)+len(c.rules))
	merged = append(merged, rules...)
	merged = append(merged, c.rules...)
	return &Classifier{rules: merged}
}

// Classify はerrを分類する。どのルールにも一致しない場合は
// fallbackを文言とするKindUpstreamProviderのエラーを返す。
// 既に*Errorであるエラーはそのまま返す。
func (c *Classifier) Classify(err error, fallback string) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		pe = nil
	}

	for _, r := range c.rules {
		if !r.matches(err, pe) {
			continue
		}
		msg := r.Message
		if msg == "" {
			msg = fallback
		}
		return Wrap(r.Kind, msg, err)
	}
	return Wrap(KindUpstreamProvider, fallback, err)
}

const (
	// MessageContentPolicy はコンテンツポリシー違反時のメッセージ。
	MessageContentPolicy = "Content policy violation: Your request was rejected by the safety system."
	// MessageRateLimited はプロバイダのレート制限時のメッセージ。
	MessageRateLimited = "Rate limit exceeded. Please try again later."
)

// DefaultProviderRules は画像生成・画像解析プロバイダ共通の既定ルールを返す。
func DefaultProviderRules() []Rule {
	return []Rule{
		{Code: "content_policy_violation", Kind: KindValidation, Message: MessageContentPolicy},
		{Code: "content_filter", Kind: KindValidation, Message: MessageContentPolicy},
		{Code: "ResponsibleAIPolicyViolation", Kind: KindValidation, Message: MessageContentPolicy},
		{Marker: "content_policy_violation", Kind: KindValidation, Message: MessageContentPolicy},
		{Code: "rate_limit_exceeded", Kind: KindRateLimited, Message: MessageRateLimited},
		{Status: 429, Kind: KindRateLimited, Message: MessageRateLimited},
		{Marker: "too many requests", Kind: KindRateLimited, Message: MessageRateLimited},
	}
}
