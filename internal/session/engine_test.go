package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/mealplanner/internal/model"
	"github.com/hitoshi/mealplanner/internal/wizard"
)

// --- モック ---

type mockAccessTokens struct {
	tokenFn func(ctx context.Context) (string, error)
	calls   int
}

func (m *mockAccessTokens) AccessToken(ctx context.Context) (string, error) {
	m.calls++
	if m.tokenFn == nil {
		return "relay-token", nil
	}
	return m.tokenFn(ctx)
}

type mockRelay struct {
	completeFn func(ctx context.Context, accessToken string, profile *model.UserProfile) error
	stored     *model.UserProfile
	calls      int
	last       *model.UserProfile
}

func (m *mockRelay) CompleteOnboarding(ctx context.Context, accessToken string, profile *model.UserProfile) (*model.UserProfile, error) {
	m.calls++
	if profile != nil {
		p := profile.Clone()
		m.last = &p
	}
	if m.completeFn != nil {
		if err := m.completeFn(ctx, accessToken, profile); err != nil {
			return nil, err
		}
	}
	return m.stored, nil
}

type memoryCache struct {
	mu       sync.Mutex
	profiles map[string]model.UserProfile
	saves    int
	loadErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{profiles: map[string]model.UserProfile{}}
}

func (c *memoryCache) Load(_ context.Context, userID string) (*model.UserProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	p, ok := c.profiles[userID]
	if !ok {
		return nil, nil
	}
	out := p.Clone()
	return &out, nil
}

func (c *memoryCache) Save(_ context.Context, p model.UserProfile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	c.profiles[p.UserID] = p.Clone()
	return nil
}

func newTestEngine(tokens AccessTokenSource, relay Relay, cache ProfileCache) (*Engine, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	return NewEngine("", tokens, relay, cache, logger), buf
}

func validResult() model.OnboardingResult {
	return model.OnboardingResult{
		Goals:               model.NewLabelSet("eat-healthy"),
		ActivityLevel:       model.ActivityLight,
		FavoriteIngredients: model.NewLabelSet("Chicken"),
		FavoriteMeals:       model.NewLabelSet("Curry"),
		FavoriteStores:      model.LabelSet{},
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("JSONエンコードに失敗しました: %v", err)
	}
	return b
}

// --- 状態遷移 ---

func TestEngine_InitialState(t *testing.T) {
	e, _ := newTestEngine(&mockAccessTokens{}, &mockRelay{}, nil)
	if got := e.State(); got != StateCheckingSession {
		t.Errorf("State() = %v, want %v", got, StateCheckingSession)
	}

	e.SessionChanged(context.Background(), nil)
	if got := e.State(); got != StateUnauthenticated {
		t.Errorf("State() = %v, want %v", got, StateUnauthenticated)
	}
}

func TestEngine_SessionChanged_NewIdentity(t *testing.T) {
	cache := newMemoryCache()
	e, _ := newTestEngine(&mockAccessTokens{}, &mockRelay{}, cache)

	e.SessionChanged(context.Background(), &Identity{Subject: "user-1"})

	if got := e.State(); got != StateNeedsOnboarding {
		t.Errorf("State() = %v, want %v", got, StateNeedsOnboarding)
	}
	if p := e.Profile(); p.UserID != "user-1" || p.HasCompletedOnboarding {
		t.Errorf("Profile() = %+v", p)
	}
	if cache.saves != 0 {
		t.Errorf("新規アイデンティティはキャッシュに保存しないべきです: saves=%d", cache.saves)
	}
}

func TestEngine_SessionChanged_LegacyUsesCachedBase(t *testing.T) {
	cache := newMemoryCache()
	cached := model.DefaultProfile()
	cached.UserID = "user-1"
	cached.FavoriteIngredients = model.NewLabelSet("Salmon")
	cache.profiles["user-1"] = cached

	e, _ := newTestEngine(&mockAccessTokens{}, &mockRelay{}, cache)
	e.SessionChanged(context.Background(), &Identity{
		Subject: "user-1",
		Claims: map[string]interface{}{
			DefaultNamespace + "app_metadata": map[string]interface{}{"hasCompletedOnboarding": true},
		},
	})

	if got := e.State(); got != StateReady {
		t.Errorf("State() = %v, want %v", got, StateReady)
	}
	if p := e.Profile(); !p.FavoriteIngredients.Contains("Salmon") {
		t.Errorf("キャッシュ済みプロフィールが基準として使われていません: %+v", p)
	}
	if cache.saves != 1 {
		t.Errorf("saves = %d, want 1", cache.saves)
	}
}

func TestEngine_SessionChanged_MalformedMetadataLogged(t *testing.T) {
	e, buf := newTestEngine(&mockAccessTokens{}, &mockRelay{}, nil)

	e.SessionChanged(context.Background(), &Identity{
		Subject: "user-1",
		Claims: map[string]interface{}{
			DefaultNamespace + "app_metadata": map[string]interface{}{"hasCompletedOnboarding": true, "profile": 12},
		},
	})

	if got := e.State(); got != StateNeedsOnboarding {
		t.Errorf("State() = %v, want %v", got, StateNeedsOnboarding)
	}
	if !strings.Contains(buf.String(), `"level":"WARN"`) {
		t.Errorf("不正なメタデータがWARNでログ出力されていません: %s", buf.String())
	}
}

func TestEngine_SessionChanged_CacheLoadFailureFallsBack(t *testing.T) {
	cache := newMemoryCache()
	cache.loadErr = errors.New("disk error")
	e, _ := newTestEngine(&mockAccessTokens{}, &mockRelay{}, cache)

	e.SessionChanged(context.Background(), &Identity{
		Subject: "user-1",
		Claims: map[string]interface{}{
			DefaultNamespace + "app_metadata": map[string]interface{}{"hasCompletedOnboarding": true},
		},
	})

	p := e.Profile()
	if !p.HasCompletedOnboarding || p.ActivityLevel != model.ActivityModerate {
		t.Errorf("既定のプロフィールを基準にするべきです: %+v", p)
	}
}

func TestEngine_SignOutResetsProfile(t *testing.T) {
	e, _ := newTestEngine(&mockAccessTokens{}, &mockRelay{}, nil)
	e.SessionChanged(context.Background(), &Identity{Subject: "user-1"})
	e.SessionChanged(context.Background(), nil)

	if got := e.State(); got != StateUnauthenticated {
		t.Errorf("State() = %v, want %v", got, StateUnauthenticated)
	}
	if p := e.Profile(); p.UserID != "" {
		t.Errorf("サインアウト後にユーザーIDが残っています: %q", p.UserID)
	}
}

// --- コミット ---

func TestEngine_CompleteOnboarding_Success(t *testing.T) {
	tokens := &mockAccessTokens{}
	relay := &mockRelay{}
	cache := newMemoryCache()
	e, _ := newTestEngine(tokens, relay, cache)
	e.SessionChanged(context.Background(), &Identity{Subject: "user-1"})

	got, err := e.CompleteOnboarding(context.Background(), validResult())
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if !got.HasCompletedOnboarding || got.UserID != "user-1" {
		t.Errorf("返されたプロフィール = %+v", got)
	}
	if relay.last == nil || !relay.last.HasCompletedOnboarding || relay.last.UserID != "user-1" {
		t.Errorf("リレーに送信されたプロフィール = %+v", relay.last)
	}
	if e.State() != StateReady {
		t.Errorf("State() = %v, want %v", e.State(), StateReady)
	}
	if _, ok := cache.profiles["user-1"]; !ok {
		t.Error("コミット成功後にキャッシュへ保存されていません")
	}
}

func TestEngine_CompleteOnboarding_AdoptsStoredProfile(t *testing.T) {
	stored := model.DefaultProfile()
	stored.Goals = model.NewLabelSet("eat-healthy")
	stored.ActivityLevel = model.ActivityLight
	stored.FavoriteIngredients = model.NewLabelSet("Chicken")
	stored.FavoriteMeals = model.NewLabelSet("Curry")
	stored.FavoriteStores = model.NewLabelSet("Aldi")
	relay := &mockRelay{stored: &stored}
	cache := newMemoryCache()
	e, _ := newTestEngine(&mockAccessTokens{}, relay, cache)
	e.SessionChanged(context.Background(), &Identity{Subject: "user-1"})

	result := validResult()
	result.FavoriteStores = model.NewLabelSet("<b>Aldi</b>")
	got, err := e.CompleteOnboarding(context.Background(), result)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if relay.last == nil || !relay.last.FavoriteStores.Contains("<b>Aldi</b>") {
		t.Errorf("リレーには入力どおりのラベルを送るべきです: %+v", relay.last)
	}
	if !got.FavoriteStores.Contains("Aldi") || got.FavoriteStores.Contains("<b>Aldi</b>") {
		t.Errorf("FavoriteStores = %v, want [Aldi]", got.FavoriteStores)
	}
	if got.UserID != "user-1" || !got.HasCompletedOnboarding {
		t.Errorf("userIDと完了フラグが保持されていません: %+v", got)
	}
	if local := e.Profile(); !local.FavoriteStores.Contains("Aldi") {
		t.Errorf("ローカルのプロフィールが保存内容と一致しません: %v", local.FavoriteStores)
	}
	if cached := cache.profiles["user-1"]; !cached.FavoriteStores.Contains("Aldi") {
		t.Errorf("キャッシュが保存内容と一致しません: %v", cached.FavoriteStores)
	}
}

func TestEngine_CompleteOnboarding_RelayFailureLeavesStateUnchanged(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError, http.StatusBadGateway} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				w.Write([]byte(`{"message":"failed"}`))
			}))
			defer srv.Close()

			cache := newMemoryCache()
			e, _ := newTestEngine(&mockAccessTokens{}, NewRelayClient(srv.URL, srv.Client(), nil), cache)
			e.SessionChanged(context.Background(), &Identity{Subject: "user-1"})
			before := mustJSON(t, e.Profile())
			stateBefore := e.State()

			_, err := e.CompleteOnboarding(context.Background(), validResult())
			var ce *CommitError
			if !errors.As(err, &ce) {
				t.Fatalf("CommitErrorが返されるべきです: %v", err)
			}
			if ce.Kind != KindRelay || ce.StatusCode != status {
				t.Errorf("CommitError = %+v", ce)
			}
			if after := mustJSON(t, e.Profile()); !bytes.Equal(before, after) {
				t.Errorf("失敗時にプロフィールが変更されています:\nbefore=%s\nafter=%s", before, after)
			}
			if e.State() != stateBefore {
				t.Errorf("State() = %v, want %v", e.State(), stateBefore)
			}
			if cache.saves != 0 {
				t.Errorf("失敗時にキャッシュへ保存されています: saves=%d", cache.saves)
			}
		})
	}
}

func TestEngine_CompleteOnboarding_ValidationNeverReachesNetwork(t *testing.T) {
	tokens := &mockAccessTokens{}
	relay := &mockRelay{}
	e, _ := newTestEngine(tokens, relay, nil)
	e.SessionChanged(context.Background(), &Identity{Subject: "user-1"})

	r := validResult()
	r.Goals = model.LabelSet{}
	_, err := e.CompleteOnboarding(context.Background(), r)

	var ce *CommitError
	if !errors.As(err, &ce) || ce.Kind != KindValidation {
		t.Fatalf("KindValidationが返されるべきです: %v", err)
	}
	if !errors.Is(err, model.ErrMissingGoals) {
		t.Errorf("ErrMissingGoalsがラップされるべきです: %v", err)
	}
	if ce.Retryable() {
		t.Error("検証エラーは再試行可能ではありません")
	}
	if tokens.calls != 0 || relay.calls != 0 {
		t.Errorf("ネットワークに到達しています: tokens=%d relay=%d", tokens.calls, relay.calls)
	}
}

func TestEngine_CompleteOnboarding_CredentialFailure(t *testing.T) {
	tokens := &mockAccessTokens{tokenFn: func(ctx context.Context) (string, error) {
		return "", ErrNoAccessToken
	}}
	relay := &mockRelay{}
	e, _ := newTestEngine(tokens, relay, nil)
	e.SessionChanged(context.Background(), &Identity{Subject: "user-1"})
	before := mustJSON(t, e.Profile())

	_, err := e.CompleteOnboarding(context.Background(), validResult())
	var ce *CommitError
	if !errors.As(err, &ce) || ce.Kind != KindCredential {
		t.Fatalf("KindCredentialが返されるべきです: %v", err)
	}
	if relay.calls != 0 {
		t.Errorf("トークン取得失敗時にリレーが呼ばれています: %d", relay.calls)
	}
	if after := mustJSON(t, e.Profile()); !bytes.Equal(before, after) {
		t.Error("失敗時にプロフィールが変更されています")
	}
}

func TestEngine_CompleteOnboarding_NonCommitErrorIsNetwork(t *testing.T) {
	relay := &mockRelay{completeFn: func(ctx context.Context, accessToken string, profile *model.UserProfile) error {
		return errors.New("connection reset")
	}}
	e, _ := newTestEngine(&mockAccessTokens{}, relay, nil)
	e.SessionChanged(context.Background(), &Identity{Subject: "user-1"})

	_, err := e.CompleteOnboarding(context.Background(), validResult())
	var ce *CommitError
	if !errors.As(err, &ce) || ce.Kind != KindNetwork {
		t.Fatalf("KindNetworkが返されるべきです: %v", err)
	}
}

func TestEngine_CompleteOnboarding_Unauthenticated(t *testing.T) {
	relay := &mockRelay{}
	e, _ := newTestEngine(&mockAccessTokens{}, relay, nil)
	e.SessionChanged(context.Background(), nil)

	_, err := e.CompleteOnboarding(context.Background(), validResult())
	var ce *CommitError
	if !errors.As(err, &ce) || ce.Kind != KindUnauthenticated {
		t.Fatalf("KindUnauthenticatedが返されるべきです: %v", err)
	}
	if relay.calls != 0 {
		t.Error("未認証でリレーが呼ばれています")
	}
}

func TestEngine_CompleteOnboarding_SessionChangedDuringCommit(t *testing.T) {
	var e *Engine
	relay := &mockRelay{completeFn: func(ctx context.Context, accessToken string, profile *model.UserProfile) error {
		e.SessionChanged(ctx, &Identity{Subject: "user-2"})
		return nil
	}}
	e, _ = newTestEngine(&mockAccessTokens{}, relay, nil)
	e.SessionChanged(context.Background(), &Identity{Subject: "user-1"})

	_, err := e.CompleteOnboarding(context.Background(), validResult())
	var ce *CommitError
	if !errors.As(err, &ce) || ce.Kind != KindUnauthenticated {
		t.Fatalf("KindUnauthenticatedが返されるべきです: %v", err)
	}
	if p := e.Profile(); p.UserID != "user-2" || p.HasCompletedOnboarding {
		t.Errorf("別セッションのプロフィールが書き換えられています: %+v", p)
	}
}

// --- ローカル編集 ---

func TestEngine_UpdateProfile(t *testing.T) {
	cache := newMemoryCache()
	e, _ := newTestEngine(&mockAccessTokens{}, &mockRelay{}, cache)
	e.SessionChanged(context.Background(), &Identity{Subject: "user-1"})

	layout := "lunch-dinner"
	exclusions := model.NewLabelSet("Peanuts")
	got, err := e.UpdateProfile(context.Background(), model.ProfilePatch{MealLayout: &layout, FoodExclusions: &exclusions})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if got.MealLayout != "lunch-dinner" || !got.FoodExclusions.Contains("Peanuts") {
		t.Errorf("UpdateProfile() = %+v", got)
	}
	if cache.saves != 1 {
		t.Errorf("saves = %d, want 1", cache.saves)
	}

	invalid := model.ActivityLevel("couch")
	if _, err := e.UpdateProfile(context.Background(), model.ProfilePatch{ActivityLevel: &invalid}); err == nil {
		t.Error("不正な活動量はエラーになるべきです")
	}
	if e.Profile().ActivityLevel != model.ActivityModerate {
		t.Error("検証エラー時にプロフィールが変更されています")
	}
}

func TestEngine_UpdateProfile_LegacyIdentityPartialEdit(t *testing.T) {
	e, _ := newTestEngine(&mockAccessTokens{}, &mockRelay{}, nil)
	e.SessionChanged(context.Background(), &Identity{
		Subject: "user-1",
		Claims: map[string]interface{}{
			DefaultNamespace + "app_metadata": map[string]interface{}{"hasCompletedOnboarding": true},
		},
	})
	if p := e.Profile(); !p.HasCompletedOnboarding || len(p.Goals) != 0 {
		t.Fatalf("旧形式の前提が成り立っていません: %+v", p)
	}

	level := model.ActivityAthlete
	got, err := e.UpdateProfile(context.Background(), model.ProfilePatch{ActivityLevel: &level})
	if err != nil {
		t.Fatalf("活動量だけの編集が拒否されました: %v", err)
	}
	if got.ActivityLevel != model.ActivityAthlete || !got.HasCompletedOnboarding {
		t.Errorf("UpdateProfile() = %+v", got)
	}
	if e.State() != StateReady {
		t.Errorf("State() = %v, want %v", e.State(), StateReady)
	}
}

func TestEngine_UpdateProfile_CannotClearCompletedGoals(t *testing.T) {
	e, _ := newTestEngine(&mockAccessTokens{}, &mockRelay{}, nil)
	e.SessionChanged(context.Background(), &Identity{Subject: "user-1"})
	if _, err := e.CompleteOnboarding(context.Background(), validResult()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	empty := model.LabelSet{}
	_, err := e.UpdateProfile(context.Background(), model.ProfilePatch{Goals: &empty})
	var ce *CommitError
	if !errors.As(err, &ce) || ce.Kind != KindValidation || !errors.Is(err, model.ErrMissingGoals) {
		t.Fatalf("目標を空にする編集は検証エラーになるべきです: %v", err)
	}
	if !e.Profile().Goals.Contains("eat-healthy") {
		t.Error("検証エラー時にプロフィールが変更されています")
	}
}

func TestEngine_ResetOnboarding(t *testing.T) {
	relay := &mockRelay{}
	e, _ := newTestEngine(&mockAccessTokens{}, relay, nil)
	e.SessionChanged(context.Background(), &Identity{Subject: "user-1"})
	if _, err := e.CompleteOnboarding(context.Background(), validResult()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	relayCalls := relay.calls

	if err := e.ResetOnboarding(context.Background()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	p := e.Profile()
	if p.HasCompletedOnboarding || len(p.Goals) != 0 || p.UserID != "user-1" {
		t.Errorf("リセット後のプロフィール = %+v", p)
	}
	if e.State() != StateNeedsOnboarding {
		t.Errorf("State() = %v, want %v", e.State(), StateNeedsOnboarding)
	}
	if relay.calls != relayCalls {
		t.Error("リセットはリモートに書き込まないべきです")
	}
}

// --- エンドツーエンド ---

func TestEngine_EndToEnd_OnboardingThroughRelay(t *testing.T) {
	var received completeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer relay-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "profile": received.Profile})
	}))
	defer srv.Close()

	e, _ := newTestEngine(&mockAccessTokens{}, NewRelayClient(srv.URL, srv.Client(), nil), newMemoryCache())
	e.SessionChanged(context.Background(), &Identity{Subject: "user-1"})
	if p := e.Profile(); p.HasCompletedOnboarding {
		t.Fatal("新規アイデンティティは未完了であるべきです")
	}

	var result *model.OnboardingResult
	w := wizard.NewOnboarding(func(r model.OnboardingResult) { result = &r })
	w.ToggleGoal("eat-healthy")
	w.Advance()
	w.ToggleIngredient("Chicken")
	w.Advance()
	w.ToggleMeal("Tacos")
	w.Advance()
	w.Advance()
	if result == nil {
		t.Fatal("ウィザードが完了していません")
	}

	if _, err := e.CompleteOnboarding(context.Background(), *result); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	p := e.Profile()
	if !p.HasCompletedOnboarding {
		t.Error("完了フラグが立っていません")
	}
	if len(p.Goals) != 1 || !p.Goals.Contains("eat-healthy") {
		t.Errorf("Goals = %v", p.Goals)
	}
	if e.State() != StateReady {
		t.Errorf("State() = %v, want %v", e.State(), StateReady)
	}
	if received.Profile == nil || !received.Profile.FavoriteIngredients.Contains("Chicken") {
		t.Errorf("リレーが受信したプロフィール = %+v", received.Profile)
	}
}
