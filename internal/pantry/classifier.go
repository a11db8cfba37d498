// Package pantry は在庫の期限判定と在庫管理を提供する。
package pantry

import (
	"math"
	"time"

	"github.com/hitoshi/mealplanner/internal/model"
)

// Status は在庫の期限に基づく緊急度の分類。
type Status int

const (
	// StatusNotUrgent は期限が未設定、冷凍保存、または期限まで余裕がある状態。
	StatusNotUrgent Status = iota
	// StatusExpiringSoon は期限まで0〜3日（切り上げ）の状態。
	StatusExpiringSoon
)

// String は分類名を返す。
func (s Status) String() string {
	switch s {
	case StatusExpiringSoon:
		return "expiring-soon"
	default:
		return "not-urgent"
	}
}

// ExpiringWindowDays は期限切れ間近とみなす日数の上限。
const ExpiringWindowDays = 3

const day = 24 * time.Hour

// DaysUntilExpiration は期限までの日数を日単位で切り上げて返す。
// 期限を1日未満過ぎた場合は0、それ以上過ぎた場合は負の値になる。
func DaysUntilExpiration(expiresAt, now time.Time) int {
	d := expiresAt.Sub(now)
	days := math.Ceil(float64(d) / float64(day))
	if days == 0 {
		// -0 を 0 に揃える
		return 0
	}
	return int(days)
}

// Classify は在庫を期限切れ間近かどうかに分類する。
// 期限が設定され、冷凍保存でなく、切り上げ日数が[0, 3]の場合のみStatusExpiringSoonを返す。
// 完全に期限を過ぎた在庫はStatusNotUrgentとなる（IsExpiredで別途判定する）。
func Classify(item model.PantryItem, now time.Time) Status {
	if item.ExpiresAt == nil || item.StorageLocation == model.StorageFreezer {
		return StatusNotUrgent
	}
	days := DaysUntilExpiration(*item.ExpiresAt, now)
	if days >= 0 && days <= ExpiringWindowDays {
		return StatusExpiringSoon
	}
	return StatusNotUrgent
}

// IsExpiringSoon はClassifyがStatusExpiringSoonを返すかどうかを返す。
func IsExpiringSoon(item model.PantryItem, now time.Time) bool {
	return Classify(item, now) == StatusExpiringSoon
}

// IsExpired は冷凍保存でない在庫が切り上げの許容範囲を超えて期限を過ぎているかを返す。
func IsExpired(item model.PantryItem, now time.Time) bool {
	if item.ExpiresAt == nil || item.StorageLocation == model.StorageFreezer {
		return false
	}
	return DaysUntilExpiration(*item.ExpiresAt, now) < 0
}

// ExpiringItems は期限切れ間近の在庫を元の順序で返す。
func ExpiringItems(items []model.PantryItem, now time.Time) []model.PantryItem {
	out := make([]model.PantryItem, 0)
	for _, it := range items {
		if IsExpiringSoon(it, now) {
			out = append(out, it)
		}
	}
	return out
}

// ExpiringNames は期限切れ間近の在庫名を重複なしで返す。
// 週プランウィザードの「必ず使う食材」の初期値として使用する。
func ExpiringNames(items []model.PantryItem, now time.Time) []string {
	names := model.LabelSet{}
	for _, it := range ExpiringItems(items, now) {
		names = names.Add(it.Name)
	}
	return []string(names)
}

// ShouldPurge は利用者が明示的に「期限切れ間近を片付ける」操作をしたときの削除対象かどうかを返す。
// 期限切れ間近に加え、すでに期限を過ぎた在庫も対象とする。
func ShouldPurge(item model.PantryItem, now time.Time) bool {
	return IsExpiringSoon(item, now) || IsExpired(item, now)
}

// PurgeCandidates は明示的な一括削除の対象となる在庫IDを返す。
func PurgeCandidates(items []model.PantryItem, now time.Time) []string {
	var ids []string
	for _, it := range items {
		if ShouldPurge(it, now) {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

// IsStale は期限切れ（IsExpired）のうえ、期限からretention以上経過した在庫かどうかを返す。
// 期限切れ間近の在庫は対象にならない。
func IsStale(item model.PantryItem, now time.Time, retention time.Duration) bool {
	if !IsExpired(item, now) {
		return false
	}
	return now.Sub(*item.ExpiresAt) >= retention
}

// StaleCandidates はIsStaleに該当する在庫IDを返す。ワーカーの自動削除で使用する。
func StaleCandidates(items []model.PantryItem, now time.Time, retention time.Duration) []string {
	var ids []string
	for _, it := range items {
		if IsStale(it, now, retention) {
			ids = append(ids, it.ID)
		}
	}
	return ids
}
