package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/mealplanner/internal/model"
)

// Identity は認証済みセッションのアイデンティティ。
// ClaimsはIDトークンのクレーム（名前空間付きのapp_metadataを含む）。
type Identity struct {
	Subject string
	Claims  map[string]interface{}
}

// Relay はバックエンドリレーへの書き込み。RelayClient が満たす。
// 戻り値はリレーが正規化して保存したプロフィールで、応答に含まれない場合はnil。
type Relay interface {
	CompleteOnboarding(ctx context.Context, accessToken string, profile *model.UserProfile) (*model.UserProfile, error)
}

// ProfileCache は最後に確定したプロフィールのローカルキャッシュ。
// 旧形式レコードの基準プロフィールとして使用し、コミット成功後とローカル編集後に書き込む。
// localstore.ProfileStore が満たす。
type ProfileCache interface {
	Load(ctx context.Context, userID string) (*model.UserProfile, error)
	Save(ctx context.Context, profile model.UserProfile) error
}

// DefaultNamespace はapp_metadataクレームの既定の名前空間。
const DefaultNamespace = "https://mealplanner.app/"

// Engine はセッション状態と正となるプロフィールを保持する。
// UIからの操作は逐次的に行われる前提だが、状態の読み取りは任意のゴルーチンから行える。
// ネットワーク呼び出し中はロックを保持しない。
type Engine struct {
	namespace string
	tokens    AccessTokenSource
	relay     Relay
	cache     ProfileCache
	logger    *slog.Logger

	mu       sync.RWMutex
	checked  bool
	identity *Identity
	settled  bool
	profile  model.UserProfile
}

// NewEngine はEngineの新しいインスタンスを生成する。
// cacheとloggerはnilでもよい。namespaceが空の場合はDefaultNamespaceを使う。
func NewEngine(namespace string, tokens AccessTokenSource, relay Relay, cache ProfileCache, logger *slog.Logger) *Engine {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if cache == nil {
		cache = nopCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		namespace: namespace,
		tokens:    tokens,
		relay:     relay,
		cache:     cache,
		logger:    logger,
		profile:   model.DefaultProfile(),
	}
}

// State は現在のセッション状態を返す。
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return DeriveState(e.checked, e.identity != nil, e.settled, e.profile.HasCompletedOnboarding)
}

// Profile は正となるプロフィールのコピーを返す。
func (e *Engine) Profile() model.UserProfile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.profile.Clone()
}

// SessionChanged は認証状態の変化を反映する。idがnilなら未認証。
// 認証済みの場合はメタデータからプロフィールを確定する。
// 確定までの間、StateはStateLoadingProfileを返す。
func (e *Engine) SessionChanged(ctx context.Context, id *Identity) {
	e.mu.Lock()
	e.checked = true
	if id == nil || id.Subject == "" {
		e.identity = nil
		e.settled = false
		e.profile = model.DefaultProfile()
		e.mu.Unlock()
		return
	}
	e.identity = id
	e.settled = false
	e.mu.Unlock()

	base := model.DefaultProfile()
	cached, err := e.cache.Load(ctx, id.Subject)
	if err != nil {
		e.logger.Warn("ローカルプロフィールの読み込みに失敗しました",
			slog.String("user_id", id.Subject),
			slog.String("error", err.Error()),
		)
	} else if cached != nil {
		base = cached.Clone()
	}

	meta := MetadataFromClaims(id.Claims, e.namespace)
	profile, c, err := Reconcile(meta, base, id.Subject)
	if err != nil {
		e.logger.Warn("IdPメタデータが不正なため新規ユーザーとして扱います",
			slog.String("user_id", id.Subject),
			slog.String("error", err.Error()),
		)
	}

	e.mu.Lock()
	if e.identity != id {
		// 確定前に別のセッションに切り替わった
		e.mu.Unlock()
		return
	}
	e.profile = profile
	e.settled = true
	e.mu.Unlock()

	e.logger.Info("プロフィールを確定しました",
		slog.String("user_id", id.Subject),
		slog.String("case", c.String()),
		slog.Bool("has_completed_onboarding", profile.HasCompletedOnboarding),
	)

	if c != CaseNewIdentity {
		e.saveCache(ctx, profile)
	}
}

// CompleteOnboarding はウィザード結果をマージしたプロフィールをリレー経由で保存する。
// リレーが成功を返した場合のみローカルの状態を更新し、更新後のプロフィールを返す。
// リレーが保存内容を返した場合はそれを採用し、ローカルとIdP側のラベルを一致させる。
// 失敗時はローカルの状態を一切変更せず*CommitErrorを返す。自動リトライはしない。
func (e *Engine) CompleteOnboarding(ctx context.Context, result model.OnboardingResult) (model.UserProfile, error) {
	e.mu.RLock()
	id := e.identity
	current := e.profile.Clone()
	e.mu.RUnlock()

	if id == nil {
		return model.UserProfile{}, &CommitError{Kind: KindUnauthenticated, Message: "no active session"}
	}

	merged := current.ApplyOnboarding(result, id.Subject)
	if err := merged.Validate(); err != nil {
		return model.UserProfile{}, &CommitError{Kind: KindValidation, Err: err}
	}

	token, err := e.tokens.AccessToken(ctx)
	if err != nil {
		e.logger.Warn("リレー用アクセストークンの取得に失敗しました",
			slog.String("user_id", id.Subject),
			slog.String("error", err.Error()),
		)
		return model.UserProfile{}, &CommitError{Kind: KindCredential, Err: err}
	}

	stored, err := e.relay.CompleteOnboarding(ctx, token, &merged)
	if err != nil {
		var ce *CommitError
		if !errors.As(err, &ce) {
			ce = &CommitError{Kind: KindNetwork, Err: err}
		}
		e.logger.Warn("オンボーディングのコミットに失敗しました",
			slog.String("user_id", id.Subject),
			slog.String("kind", string(ce.Kind)),
			slog.Int("http_status", ce.StatusCode),
		)
		return model.UserProfile{}, ce
	}
	if stored != nil {
		merged = stored.Clone()
		merged.UserID = id.Subject
		merged.HasCompletedOnboarding = true
	}

	e.mu.Lock()
	if e.identity != id {
		e.mu.Unlock()
		return model.UserProfile{}, &CommitError{Kind: KindUnauthenticated, Message: "session changed during commit"}
	}
	e.profile = merged.Clone()
	e.settled = true
	e.mu.Unlock()

	e.saveCache(ctx, merged)
	return merged, nil
}

// UpdateProfile はプロフィールを部分更新する（ローカルのみ）。
// 完了済みでも目標や食材が未設定のプロフィールは、その項目に触れない編集なら受け付ける。
func (e *Engine) UpdateProfile(ctx context.Context, patch model.ProfilePatch) (model.UserProfile, error) {
	e.mu.Lock()
	if e.identity == nil {
		e.mu.Unlock()
		return model.UserProfile{}, &CommitError{Kind: KindUnauthenticated, Message: "no active session"}
	}
	updated := e.profile.ApplyPatch(patch)
	if err := updated.ValidateEdit(e.profile); err != nil {
		e.mu.Unlock()
		return model.UserProfile{}, &CommitError{Kind: KindValidation, Err: err}
	}
	e.profile = updated
	e.mu.Unlock()

	e.saveCache(ctx, updated)
	return updated.Clone(), nil
}

// ResetOnboarding はプロフィールを既定値に戻し、オンボーディングを再開させる（ローカルのみ）。
// リモートの完了フラグは変更しない。ローカルが未完了でリモートが完了の不一致は許容される。
func (e *Engine) ResetOnboarding(ctx context.Context) error {
	e.mu.Lock()
	if e.identity == nil {
		e.mu.Unlock()
		return &CommitError{Kind: KindUnauthenticated, Message: "no active session"}
	}
	reset := model.DefaultProfile()
	reset.UserID = e.identity.Subject
	e.profile = reset
	e.mu.Unlock()

	e.saveCache(ctx, reset)
	return nil
}

func (e *Engine) saveCache(ctx context.Context, p model.UserProfile) {
	if err := e.cache.Save(ctx, p); err != nil {
		e.logger.Warn("ローカルプロフィールの保存に失敗しました",
			slog.String("user_id", p.UserID),
			slog.String("error", err.Error()),
		)
	}
}

type nopCache struct{}

func (nopCache) Load(context.Context, string) (*model.UserProfile, error) { return nil, nil }
func (nopCache) Save(context.Context, model.UserProfile) error           { return nil }
