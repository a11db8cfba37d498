package wizard

import (
	"strings"

	"github.com/hitoshi/mealplanner/internal/model"
)

// VibeOptions は週のテーマの選択肢。
var VibeOptions = []model.Vibe{
	model.VibeLightHealthy,
	model.VibeComfortFood,
	model.VibeQuickEasy,
	model.VibeTryNewThings,
	model.VibeMealPrepHeavy,
}

const (
	defaultCookingDays = 5
	defaultTimePerDay  = 30
)

// WeekPlan は週プラン設定ウィザード。
// テーマ、必ず使う食材と避ける食材、調理日数とスタイルの3ステップで構成される。
// どのステップも任意入力で、ゲートは常に満たされる。
type WeekPlan struct {
	*Machine[model.WeekPreferences]
	anchors     []model.RecipeRef
	hasExpiring bool
}

// NewWeekPlan は新しい週プラン設定ウィザードを生成する。
// 必ず使う食材は期限切れ間近の在庫名で初期化される。
// anchorsは表示専用で、ウィザード内では変更できない。
func NewWeekPlan(expiringNames []string, anchors []model.RecipeRef, onComplete func(model.WeekPreferences)) *WeekPlan {
	a := make([]model.RecipeRef, len(anchors))
	copy(a, anchors)

	mustUse := model.NewLabelSet(expiringNames...)
	initial := model.WeekPreferences{
		MustUseIngredients: mustUse,
		AvoidIngredients:   model.LabelSet{},
		CookingDays:        defaultCookingDays,
		PrepStyle:          model.PrepStyleDailyCooking,
		TimePerDay:         defaultTimePerDay,
		AnchorRecipes:      a,
	}
	steps := []Step[model.WeekPreferences]{
		{Name: "vibe"},
		{Name: "ingredients"},
		{Name: "schedule"},
	}
	m, _ := NewMachine(steps, initial, func(p model.WeekPreferences) {
		if onComplete == nil {
			return
		}
		p.AnchorRecipes = append([]model.RecipeRef(nil), a...)
		onComplete(p)
	})
	return &WeekPlan{Machine: m, anchors: a, hasExpiring: len(mustUse) > 0}
}

// AnchorRecipes は軸となるレシピのコピーを返す。
func (w *WeekPlan) AnchorRecipes() []model.RecipeRef {
	out := make([]model.RecipeRef, len(w.anchors))
	copy(out, w.anchors)
	return out
}

// HasExpiringSuggestions は期限切れ間近の在庫から初期値が入ったかを返す。
func (w *WeekPlan) HasExpiringSuggestions() bool { return w.hasExpiring }

// SetVibe は週のテーマを設定する。空文字は選択解除、未定義のテーマは拒否する。
func (w *WeekPlan) SetVibe(vibe model.Vibe) bool {
	vibe = model.Vibe(strings.TrimSpace(string(vibe)))
	if vibe != "" && !vibe.Valid() {
		return false
	}
	return w.Update(func(p *model.WeekPreferences) { p.Vibe = vibe })
}

// AddMustUse は必ず使う食材を追加する。トリム後に空なら無視する。
func (w *WeekPlan) AddMustUse(name string) {
	w.Update(func(p *model.WeekPreferences) { p.MustUseIngredients = p.MustUseIngredients.Add(name) })
}

// RemoveMustUse は必ず使う食材を取り除く。
func (w *WeekPlan) RemoveMustUse(name string) {
	w.Update(func(p *model.WeekPreferences) { p.MustUseIngredients = p.MustUseIngredients.Remove(name) })
}

// SetAvoidText はカンマ区切りの入力から避ける食材を設定する。
func (w *WeekPlan) SetAvoidText(text string) {
	w.Update(func(p *model.WeekPreferences) { p.AvoidIngredients = ParseLabelList(text) })
}

// AvoidText は避ける食材をカンマ区切りの文字列で返す。
func (w *WeekPlan) AvoidText() string {
	return strings.Join(w.Result().AvoidIngredients, ", ")
}

// SetCookingDays は週の調理日数を設定する。3〜7日の範囲外は拒否する。
func (w *WeekPlan) SetCookingDays(days int) bool {
	if days < model.MinCookingDays || days > model.MaxCookingDays {
		return false
	}
	return w.Update(func(p *model.WeekPreferences) { p.CookingDays = days })
}

// SetPrepStyle は調理スタイルを設定する。
func (w *WeekPlan) SetPrepStyle(style model.PrepStyle) bool {
	if !style.Valid() {
		return false
	}
	return w.Update(func(p *model.WeekPreferences) { p.PrepStyle = style })
}

// SetTimePerDay は1日あたりの調理時間（分）を設定する。負の値は0として扱う。
func (w *WeekPlan) SetTimePerDay(minutes int) {
	if minutes < 0 {
		minutes = 0
	}
	w.Update(func(p *model.WeekPreferences) { p.TimePerDay = minutes })
}

// ParseLabelList はカンマ区切りの文字列をラベル集合に変換する。
// 各要素はトリムされ、空要素と重複は取り除かれる。
func ParseLabelList(text string) model.LabelSet {
	return model.NewLabelSet(strings.Split(text, ",")...)
}
