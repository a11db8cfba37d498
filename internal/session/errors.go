package session

import "fmt"

// ErrorKind はコミット失敗の種類。呼び出し元はこれでユーザー向けの表示を分ける。
type ErrorKind string

const (
	// KindValidation はウィザード結果が不変条件を満たさない（ネットワークには到達しない）。
	KindValidation ErrorKind = "validation"
	// KindUnauthenticated はセッションが無い、またはコミット中にセッションが変わった。
	KindUnauthenticated ErrorKind = "unauthenticated"
	// KindCredential はリレー用アクセストークンの取得に失敗した。
	KindCredential ErrorKind = "credential"
	// KindNetwork はリレーへの通信自体が失敗した（タイムアウト、キャンセルを含む）。
	KindNetwork ErrorKind = "network"
	// KindRelay はリレーが成功以外のステータスを返した。
	KindRelay ErrorKind = "relay"
	// KindMalformedResponse はリレーの成功応答が解釈できない。
	KindMalformedResponse ErrorKind = "malformed-response"
)

// CommitError はプロフィールのコミット失敗を表す。
// この型のエラーが返った場合、ローカルの状態は試行前から変わっていない。
// 自動リトライはしないので、再試行はユーザー操作で行う。
type CommitError struct {
	Kind       ErrorKind
	StatusCode int    // KindRelayの場合のHTTPステータス
	Message    string // リレーが返したメッセージなど
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *CommitError) Error() string {
	msg := fmt.Sprintf("profile commit failed (%s)", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap は原因のエラーを返す。
func (e *CommitError) Unwrap() error { return e.Err }

// Retryable はユーザーに再試行を促すべき失敗かどうかを返す。
func (e *CommitError) Retryable() bool {
	switch e.Kind {
	case KindCredential, KindNetwork, KindRelay, KindMalformedResponse:
		return true
	}
	return false
}
