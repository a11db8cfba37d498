// Package security はアプリケーションのセキュリティ機能を提供する。
//
// LabelSanitizer はプロフィールの自由入力ラベルからマークアップを除去する。
// OutboundGuard はIdPへの外向き通信の宛先を検証する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/mealplanner/internal/model"
	"github.com/microcosm-cc/bluemonday"
)

// MaxLabelLength はラベル1件あたりの最大文字数。
const MaxLabelLength = 100

// LabelSanitizer は自由入力ラベルのサニタイザー。
// bluemondayのStrictPolicyで全てのタグを除去し、プレーンテキストとして保存する。
// スレッドセーフ。
type LabelSanitizer struct {
	policy *bluemonday.Policy
}

// NewLabelSanitizer はLabelSanitizerの新しいインスタンスを生成する。
func NewLabelSanitizer() *LabelSanitizer {
	return &LabelSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はラベルからタグを除去し、前後の空白を取り除く。
// StrictPolicyがエスケープした文字実体は元に戻す（保存値はHTMLではなくプレーンテキスト）。
// 最大文字数を超える部分は切り捨てる。
func (s *LabelSanitizer) Sanitize(label string) string {
	clean := html.UnescapeString(s.policy.Sanitize(label))
	clean = strings.TrimSpace(clean)
	if utf8.RuneCountInString(clean) > MaxLabelLength {
		clean = string([]rune(clean)[:MaxLabelLength])
	}
	return clean
}

// SanitizeSet はラベル集合の各要素をサニタイズする。空になった要素と重複は取り除く。
func (s *LabelSanitizer) SanitizeSet(labels model.LabelSet) model.LabelSet {
	out := model.LabelSet{}
	for _, l := range labels {
		out = out.Add(s.Sanitize(l))
	}
	return out
}

// SanitizeProfile はプロフィールの自由入力フィールドをサニタイズしたコピーを返す。
func (s *LabelSanitizer) SanitizeProfile(p model.UserProfile) model.UserProfile {
	out := p.Clone()
	out.Goals = s.SanitizeSet(p.Goals)
	out.FavoriteIngredients = s.SanitizeSet(p.FavoriteIngredients)
	out.FavoriteMeals = s.SanitizeSet(p.FavoriteMeals)
	out.FavoriteStores = s.SanitizeSet(p.FavoriteStores)
	out.FoodExclusions = s.SanitizeSet(p.FoodExclusions)
	out.PreferredCookingDays = s.SanitizeSet(p.PreferredCookingDays)
	out.MealLayout = s.Sanitize(p.MealLayout)
	return out
}
