// Package session はクライアント側のセッション状態とプロフィールの整合を管理する。
//
// セッション開始時にIdPメタデータからプロフィールを確定し（Reconcile）、
// オンボーディング完了時はリレー経由でIdPに書き込み、成功が確認できた場合のみ
// ローカルの状態を更新する（Engine.CompleteOnboarding）。
package session

// State はセッションの状態。画面の分岐はこの列挙値だけで決める。
type State int

const (
	// StateCheckingSession は認証状態を確認中。
	StateCheckingSession State = iota
	// StateUnauthenticated は未認証。
	StateUnauthenticated
	// StateLoadingProfile は認証済みでプロフィールを確定中。
	StateLoadingProfile
	// StateNeedsOnboarding はプロフィールが確定し、オンボーディングが未完了。
	StateNeedsOnboarding
	// StateReady はオンボーディング済み。
	StateReady
)

// String は状態名を返す。
func (s State) String() string {
	switch s {
	case StateCheckingSession:
		return "checking-session"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateLoadingProfile:
		return "loading-profile"
	case StateNeedsOnboarding:
		return "needs-onboarding"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// DeriveState はセッションの事実から状態を1つに決める。
func DeriveState(sessionChecked, authenticated, profileSettled, completed bool) State {
	switch {
	case !sessionChecked:
		return StateCheckingSession
	case !authenticated:
		return StateUnauthenticated
	case !profileSettled:
		return StateLoadingProfile
	case !completed:
		return StateNeedsOnboarding
	default:
		return StateReady
	}
}
