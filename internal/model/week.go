package model

// PrepStyle は週の調理スタイルを表す。
type PrepStyle string

const (
	PrepStyleOneBigPrep   PrepStyle = "one-big-prep"
	PrepStyleDailyCooking PrepStyle = "daily-cooking"
)

// Valid は定義済みのスタイルかどうかを返す。
func (s PrepStyle) Valid() bool {
	return s == PrepStyleOneBigPrep || s == PrepStyleDailyCooking
}

// Vibe は週のテーマ。
type Vibe string

const (
	VibeLightHealthy  Vibe = "Light & Healthy"
	VibeComfortFood   Vibe = "Comfort Food"
	VibeQuickEasy     Vibe = "Quick & Easy"
	VibeTryNewThings  Vibe = "Try New Things"
	VibeMealPrepHeavy Vibe = "Meal Prep Heavy"
)

// Valid は定義済みのテーマかどうかを返す。
func (v Vibe) Valid() bool {
	switch v {
	case VibeLightHealthy, VibeComfortFood, VibeQuickEasy, VibeTryNewThings, VibeMealPrepHeavy:
		return true
	}
	return false
}

const (
	// MinCookingDays は週あたりの最小調理日数。
	MinCookingDays = 3
	// MaxCookingDays は週あたりの最大調理日数。
	MaxCookingDays = 7
)

// RecipeRef はレシピへの参照。レシピ本体は扱わない。
type RecipeRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WeekPreferences は週プラン作成ウィザードの結果を表す。
// プラン生成の呼び出し1回で消費され、永続化はしない。
type WeekPreferences struct {
	Vibe               Vibe        `json:"vibe"`
	MustUseIngredients LabelSet    `json:"mustUseIngredients"`
	AvoidIngredients   LabelSet    `json:"avoidIngredients"`
	CookingDays        int         `json:"cookingDays"`
	PrepStyle          PrepStyle   `json:"prepStyle"`
	TimePerDay         int         `json:"timePerDay"`
	AnchorRecipes      []RecipeRef `json:"anchorRecipes,omitempty"`
}
