// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は参加者の連絡先などの自由入力テキストからHTMLを取り除き、
// 表示側でのXSSを防ぐ。bluemondayのStrictPolicyで全タグを除去したうえで、
// エスケープされた文字を元に戻したプレーンテキストを返す。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は自由入力テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize はHTMLタグを除去し、空白を正規化したプレーンテキストを返す。
	// maxRunesが正の場合はその文字数で切り詰める。
	Sanitize(raw string, maxRunes int) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのPolicyはスレッドセーフなので共有して使う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLタグを除去し、空白を正規化したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(raw string, maxRunes int) string {
	if raw == "" {
		return ""
	}

	stripped := html.UnescapeString(s.policy.Sanitize(raw))
	text := strings.Join(strings.Fields(stripped), " ")

	if maxRunes > 0 && utf8.RuneCountInString(text) > maxRunes {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return text
}
