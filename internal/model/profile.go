// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ActivityLevel は運動量の区分を表す。
type ActivityLevel string

const (
	ActivitySedentary  ActivityLevel = "sedentary"
	ActivityLight      ActivityLevel = "light"
	ActivityModerate   ActivityLevel = "moderate"
	ActivityVeryActive ActivityLevel = "very-active"
	ActivityAthlete    ActivityLevel = "athlete"
)

// Valid は定義済みの区分かどうかを返す。
func (a ActivityLevel) Valid() bool {
	switch a {
	case ActivitySedentary, ActivityLight, ActivityModerate, ActivityVeryActive, ActivityAthlete:
		return true
	}
	return false
}

const (
	// DefaultMealLayout は新規プロフィールの食事構成。
	DefaultMealLayout = "breakfast-lunch-dinner"
	// DefaultTypicalPrepTime は新規プロフィールの調理時間（分）。
	DefaultTypicalPrepTime = 30
)

// UserProfile は認証済みアイデンティティごとの嗜好プロフィールを表す。
// JSONフィールド名はIdPメタデータに保存される形式と一致させている。
type UserProfile struct {
	UserID                 string        `json:"userId,omitempty"`
	HasCompletedOnboarding bool          `json:"hasCompletedOnboarding"`
	Goals                  LabelSet      `json:"goals"`
	ActivityLevel          ActivityLevel `json:"activityLevel"`
	FavoriteIngredients    LabelSet      `json:"favoriteIngredients"`
	FavoriteMeals          LabelSet      `json:"favoriteMeals"`
	FavoriteStores         LabelSet      `json:"favoriteStores"`
	FoodExclusions         LabelSet      `json:"foodExclusions"`
	MealLayout             string        `json:"mealLayout,omitempty"`
	PreferredCookingDays   LabelSet      `json:"preferredCookingDays,omitempty"`
	TypicalPrepTime        *int          `json:"typicalPrepTime,omitempty"`
	BodyWeight             *int          `json:"bodyWeight,omitempty"`
}

// DefaultProfile は初回セッションで使用する既定のプロフィールを返す。
func DefaultProfile() UserProfile {
	prep := DefaultTypicalPrepTime
	return UserProfile{
		Goals:                LabelSet{},
		ActivityLevel:        ActivityModerate,
		FavoriteIngredients:  LabelSet{},
		FavoriteMeals:        LabelSet{},
		FavoriteStores:       LabelSet{},
		FoodExclusions:       LabelSet{},
		MealLayout:           DefaultMealLayout,
		PreferredCookingDays: LabelSet{},
		TypicalPrepTime:      &prep,
	}
}

// Clone はスライスとポインタを共有しないコピーを返す。
func (p UserProfile) Clone() UserProfile {
	out := p
	out.Goals = p.Goals.Clone()
	out.FavoriteIngredients = p.FavoriteIngredients.Clone()
	out.FavoriteMeals = p.FavoriteMeals.Clone()
	out.FavoriteStores = p.FavoriteStores.Clone()
	out.FoodExclusions = p.FoodExclusions.Clone()
	out.PreferredCookingDays = p.PreferredCookingDays.Clone()
	out.TypicalPrepTime = cloneInt(p.TypicalPrepTime)
	out.BodyWeight = cloneInt(p.BodyWeight)
	return out
}

// OnboardingResult はオンボーディングウィザードが所有するフィールドの集合。
type OnboardingResult struct {
	Goals               LabelSet      `json:"goals"`
	ActivityLevel       ActivityLevel `json:"activityLevel"`
	BodyWeight          *int          `json:"bodyWeight,omitempty"`
	FavoriteIngredients LabelSet      `json:"favoriteIngredients"`
	FavoriteMeals       LabelSet      `json:"favoriteMeals"`
	FavoriteStores      LabelSet      `json:"favoriteStores"`
}

// ApplyOnboarding はウィザード結果をマージしたプロフィールを返す。
// ウィザード所有のフィールドは全置換し、完了フラグを立ててuserIDを刻印する。
// レシーバは変更しない。
func (p UserProfile) ApplyOnboarding(r OnboardingResult, userID string) UserProfile {
	out := p.Clone()
	out.UserID = userID
	out.HasCompletedOnboarding = true
	out.Goals = r.Goals.Normalize()
	if r.ActivityLevel != "" {
		out.ActivityLevel = r.ActivityLevel
	}
	out.BodyWeight = cloneInt(r.BodyWeight)
	out.FavoriteIngredients = r.FavoriteIngredients.Normalize()
	out.FavoriteMeals = r.FavoriteMeals.Normalize()
	out.FavoriteStores = r.FavoriteStores.Normalize()
	return out
}

// ProfilePatch はプロフィールの部分更新を表す。nilのフィールドは変更しない。
// userIDと完了フラグはここからは変更できない。
type ProfilePatch struct {
	Goals                *LabelSet      `json:"goals,omitempty"`
	ActivityLevel        *ActivityLevel `json:"activityLevel,omitempty"`
	FavoriteIngredients  *LabelSet      `json:"favoriteIngredients,omitempty"`
	FavoriteMeals        *LabelSet      `json:"favoriteMeals,omitempty"`
	FavoriteStores       *LabelSet      `json:"favoriteStores,omitempty"`
	FoodExclusions       *LabelSet      `json:"foodExclusions,omitempty"`
	MealLayout           *string        `json:"mealLayout,omitempty"`
	PreferredCookingDays *LabelSet      `json:"preferredCookingDays,omitempty"`
	TypicalPrepTime      *int           `json:"typicalPrepTime,omitempty"`
	BodyWeight           *int           `json:"bodyWeight,omitempty"`
}

// ApplyPatch は部分更新をマージしたプロフィールを返す。
func (p UserProfile) ApplyPatch(patch ProfilePatch) UserProfile {
	out := p.Clone()
	if patch.Goals != nil {
		out.Goals = patch.Goals.Normalize()
	}
	if patch.ActivityLevel != nil {
		out.ActivityLevel = *patch.ActivityLevel
	}
	if patch.FavoriteIngredients != nil {
		out.FavoriteIngredients = patch.FavoriteIngredients.Normalize()
	}
	if patch.FavoriteMeals != nil {
		out.FavoriteMeals = patch.FavoriteMeals.Normalize()
	}
	if patch.FavoriteStores != nil {
		out.FavoriteStores = patch.FavoriteStores.Normalize()
	}
	if patch.FoodExclusions != nil {
		out.FoodExclusions = patch.FoodExclusions.Normalize()
	}
	if patch.MealLayout != nil {
		out.MealLayout = *patch.MealLayout
	}
	if patch.PreferredCookingDays != nil {
		out.PreferredCookingDays = patch.PreferredCookingDays.Normalize()
	}
	if patch.TypicalPrepTime != nil {
		out.TypicalPrepTime = cloneInt(patch.TypicalPrepTime)
	}
	if patch.BodyWeight != nil {
		out.BodyWeight = cloneInt(patch.BodyWeight)
	}
	return out
}

var (
	// ErrMissingGoals は完了済みプロフィールに目標が無い場合のエラー。
	ErrMissingGoals = errors.New("completed profile requires at least one goal")
	// ErrMissingIngredients は完了済みプロフィールに好きな食材が無い場合のエラー。
	ErrMissingIngredients = errors.New("completed profile requires at least one favorite ingredient")
)

// Validate はプロフィールの不変条件を検証する。
// 完了済みプロフィールは目標と好きな食材を1つ以上持たなければならない。
func (p UserProfile) Validate() error {
	if err := p.validateFields(); err != nil {
		return err
	}
	if p.HasCompletedOnboarding {
		if len(p.Goals) == 0 {
			return ErrMissingGoals
		}
		if len(p.FavoriteIngredients) == 0 {
			return ErrMissingIngredients
		}
	}
	return nil
}

// ValidateEdit は直接編集後のプロフィールを検証する。
// 完了済みプロフィールの目標と好きな食材は、編集前に持っていたものを空にする場合のみ拒否する。
// 旧形式の完了フラグから復元した空のプロフィールでも部分編集できる。
func (p UserProfile) ValidateEdit(before UserProfile) error {
	if err := p.validateFields(); err != nil {
		return err
	}
	if !p.HasCompletedOnboarding {
		return nil
	}
	if len(p.Goals) == 0 && len(before.Goals) > 0 {
		return ErrMissingGoals
	}
	if len(p.FavoriteIngredients) == 0 && len(before.FavoriteIngredients) > 0 {
		return ErrMissingIngredients
	}
	return nil
}

func (p UserProfile) validateFields() error {
	if p.ActivityLevel != "" && !p.ActivityLevel.Valid() {
		return fmt.Errorf("invalid activity level: %q", p.ActivityLevel)
	}
	if p.TypicalPrepTime != nil && *p.TypicalPrepTime < 0 {
		return fmt.Errorf("typical prep time must not be negative")
	}
	if p.BodyWeight != nil && *p.BodyWeight <= 0 {
		return fmt.Errorf("body weight must be positive")
	}
	return nil
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
