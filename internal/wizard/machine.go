// Package wizard は複数ステップの入力ウィザードを有限状態機械として提供する。
// オンボーディングと週プラン設定の2種類のウィザードがこの機械の上に構築される。
package wizard

import "errors"

// ErrNoSteps はステップが1つもない機械を生成しようとした場合のエラー。
var ErrNoSteps = errors.New("wizard requires at least one step")

// Step はウィザードの1ステップを表す。
// Gateが満たされない間はAdvanceが拒否される。Gateがnilなら常に満たされる。
type Step[T any] struct {
	Name string
	Gate func(T) bool
}

// Machine は蓄積中の結果Tを持つステップ機械。
// 現在のステップは1始まりで [1, Total()] の範囲にある。
// 最終ステップでのAdvanceは完了コールバックを1回だけ呼び出し、機械を終端状態にする。
// 単一の呼び出し元から逐次操作される前提で、ロックは持たない。
type Machine[T any] struct {
	steps      []Step[T]
	current    int
	result     T
	onComplete func(T)
	done       bool
}

// NewMachine は新しいMachineを生成する。onCompleteはnilでもよい。
func NewMachine[T any](steps []Step[T], initial T, onComplete func(T)) (*Machine[T], error) {
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}
	s := make([]Step[T], len(steps))
	copy(s, steps)
	return &Machine[T]{
		steps:      s,
		current:    1,
		result:     initial,
		onComplete: onComplete,
	}, nil
}

// Current は現在のステップ番号（1始まり）を返す。
func (m *Machine[T]) Current() int { return m.current }

// Total は総ステップ数を返す。
func (m *Machine[T]) Total() int { return len(m.steps) }

// StepName は現在のステップ名を返す。
func (m *Machine[T]) StepName() string { return m.steps[m.current-1].Name }

// Progress は進捗率（0〜100）を返す。
func (m *Machine[T]) Progress() int {
	return (m.current*100 + m.Total()/2) / m.Total()
}

// Done は完了コールバックが呼ばれ終端状態になったかを返す。
func (m *Machine[T]) Done() bool { return m.done }

// Result は蓄積中の結果を返す。
func (m *Machine[T]) Result() T { return m.result }

// CanAdvance は現在のステップのゲートが満たされているかを返す。
// 最終ステップのゲートは常に満たされる。終端状態ではfalse。
// 呼び出し側はこれを使って「次へ」操作を無効化する。
func (m *Machine[T]) CanAdvance() bool {
	if m.done {
		return false
	}
	if m.current == m.Total() {
		return true
	}
	gate := m.steps[m.current-1].Gate
	return gate == nil || gate(m.result)
}

// Advance は次のステップへ進む。最終ステップでは完了コールバックを呼び出して終端状態になる。
// ゲートが満たされない場合や終端状態では何もせずfalseを返す。
func (m *Machine[T]) Advance() bool {
	if !m.CanAdvance() {
		return false
	}
	if m.current < m.Total() {
		m.current++
		return true
	}
	m.done = true
	if m.onComplete != nil {
		m.onComplete(m.result)
	}
	return true
}

// Retreat は前のステップへ戻る。ステップ1では何もしない。完了コールバックは呼ばない。
func (m *Machine[T]) Retreat() bool {
	if m.done || m.current <= 1 {
		return false
	}
	m.current--
	return true
}

// Update は蓄積中の結果を変更する。終端状態では変更せずfalseを返す。
func (m *Machine[T]) Update(fn func(*T)) bool {
	if m.done {
		return false
	}
	fn(&m.result)
	return true
}
