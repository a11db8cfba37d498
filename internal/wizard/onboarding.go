package wizard

import "github.com/hitoshi/mealplanner/internal/model"

// Option は選択肢の1項目。
type Option struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// GoalOptions はオンボーディングで選択できる目標。
var GoalOptions = []Option{
	{ID: "lose-weight", Label: "Lose Weight"},
	{ID: "gain-muscle", Label: "Build Muscle"},
	{ID: "maintain", Label: "Maintain Health"},
	{ID: "eat-healthy", Label: "Eat Healthier"},
	{ID: "save-time", Label: "Save Time"},
	{ID: "reduce-waste", Label: "Reduce Waste"},
}

// ActivityOptions は活動量の選択肢。
var ActivityOptions = []Option{
	{ID: string(model.ActivitySedentary), Label: "Sedentary", Description: "Little to no exercise"},
	{ID: string(model.ActivityLight), Label: "Light", Description: "Exercise 1-3 days/week"},
	{ID: string(model.ActivityModerate), Label: "Moderate", Description: "Exercise 3-5 days/week"},
	{ID: string(model.ActivityVeryActive), Label: "Very Active", Description: "Exercise 6-7 days/week"},
	{ID: string(model.ActivityAthlete), Label: "Athlete", Description: "Intense training"},
}

// PopularIngredients はよく選ばれる食材。
var PopularIngredients = []string{
	"Chicken", "Beef", "Fish", "Tofu", "Eggs",
	"Rice", "Pasta", "Quinoa", "Bread",
	"Broccoli", "Spinach", "Tomatoes", "Peppers", "Onions",
	"Cheese", "Yogurt", "Milk",
}

// PopularMeals はよく選ばれる料理。
var PopularMeals = []string{
	"Pasta Dishes", "Stir-fries", "Tacos", "Salads", "Soups",
	"Sandwiches", "Bowls", "Casseroles", "Grilled Meats",
}

// PopularStores はよく選ばれる店舗。
var PopularStores = []string{
	"Walmart", "Target", "Whole Foods", "Trader Joe's",
	"Kroger", "Safeway", "Costco", "Aldi", "Local Market",
}

// オンボーディングのステップ番号
const (
	OnboardingStepGoals = iota + 1
	OnboardingStepIngredients
	OnboardingStepMeals
	OnboardingStepStores
)

func onboardingSteps() []Step[model.OnboardingResult] {
	return []Step[model.OnboardingResult]{
		{Name: "goals", Gate: func(r model.OnboardingResult) bool { return len(r.Goals) > 0 }},
		{Name: "ingredients", Gate: func(r model.OnboardingResult) bool { return len(r.FavoriteIngredients) > 0 }},
		{Name: "meals", Gate: func(r model.OnboardingResult) bool { return len(r.FavoriteMeals) > 0 }},
		// 店舗の選択は任意
		{Name: "stores"},
	}
}

// Onboarding はオンボーディングウィザード。
// 目標と活動量、好きな食材、好きな料理、よく行く店舗の4ステップで構成される。
type Onboarding struct {
	*Machine[model.OnboardingResult]
}

// NewOnboarding は新しいオンボーディングウィザードを生成する。
// onCompleteは最終ステップでのAdvanceで1回だけ呼ばれる。
func NewOnboarding(onComplete func(model.OnboardingResult)) *Onboarding {
	initial := model.OnboardingResult{
		Goals:               model.LabelSet{},
		ActivityLevel:       model.ActivityModerate,
		FavoriteIngredients: model.LabelSet{},
		FavoriteMeals:       model.LabelSet{},
		FavoriteStores:      model.LabelSet{},
	}
	// ステップは固定で空にならない
	m, _ := NewMachine(onboardingSteps(), initial, onComplete)
	return &Onboarding{Machine: m}
}

// ToggleGoal は目標の選択を切り替える。
func (o *Onboarding) ToggleGoal(id string) {
	o.Update(func(r *model.OnboardingResult) { r.Goals = r.Goals.Toggle(id) })
}

// SetActivityLevel は活動量を設定する。未定義の値は無視する。
func (o *Onboarding) SetActivityLevel(level model.ActivityLevel) bool {
	if !level.Valid() {
		return false
	}
	return o.Update(func(r *model.OnboardingResult) { r.ActivityLevel = level })
}

// SetBodyWeight は体重を設定する。0以下を渡すと未設定に戻す。
func (o *Onboarding) SetBodyWeight(weight int) {
	o.Update(func(r *model.OnboardingResult) {
		if weight <= 0 {
			r.BodyWeight = nil
			return
		}
		w := weight
		r.BodyWeight = &w
	})
}

// ToggleIngredient は好きな食材の選択を切り替える。
func (o *Onboarding) ToggleIngredient(name string) {
	o.Update(func(r *model.OnboardingResult) { r.FavoriteIngredients = r.FavoriteIngredients.Toggle(name) })
}

// AddIngredient は自由入力の食材を追加する。トリム後に空なら無視する。
func (o *Onboarding) AddIngredient(name string) {
	o.Update(func(r *model.OnboardingResult) { r.FavoriteIngredients = r.FavoriteIngredients.Add(name) })
}

// ToggleMeal は好きな料理の選択を切り替える。
func (o *Onboarding) ToggleMeal(name string) {
	o.Update(func(r *model.OnboardingResult) { r.FavoriteMeals = r.FavoriteMeals.Toggle(name) })
}

// AddMeal は自由入力の料理を追加する。
func (o *Onboarding) AddMeal(name string) {
	o.Update(func(r *model.OnboardingResult) { r.FavoriteMeals = r.FavoriteMeals.Add(name) })
}

// ToggleStore は店舗の選択を切り替える。
func (o *Onboarding) ToggleStore(name string) {
	o.Update(func(r *model.OnboardingResult) { r.FavoriteStores = r.FavoriteStores.Toggle(name) })
}

// AddStore は自由入力の店舗を追加する。
func (o *Onboarding) AddStore(name string) {
	o.Update(func(r *model.OnboardingResult) { r.FavoriteStores = r.FavoriteStores.Add(name) })
}
