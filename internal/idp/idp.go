// Package idp はIdP（認証基盤）の管理APIとトークンエンドポイントのクライアントを提供する。
// 管理用クレデンシャルのキャッシュと、ユーザーメタデータの書き込みを含む。
package idp

import (
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/mealplanner/internal/model"
)

// AppMetadata はIdPのユーザーメタデータ（app_metadata）に保存する内容。
// Profileがnilの場合は完了フラグのみを書き込む（旧形式のレコード）。
type AppMetadata struct {
	HasCompletedOnboarding bool               `json:"hasCompletedOnboarding"`
	Profile                *model.UserProfile `json:"profile,omitempty"`
}

// StatusError はIdPが成功以外のステータスを返した場合のエラー。
type StatusError struct {
	Op         string // 呼び出した操作（"token", "metadata_write"）
	StatusCode int
	Body       string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("idp %s: ステータス %d を返しました: %s", e.Op, e.StatusCode, e.Body)
}

// Recorder はIdP呼び出しのメトリクスを記録する抽象。
// metrics.Collector が満たす。
type Recorder interface {
	RecordTokenFetch(success bool)
	RecordTokenCacheHit()
	RecordTokenCoalesced()
	RecordMetadataWrite(success bool)
	ObserveIdPLatency(operation string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordTokenFetch(bool) {}
func (nopRecorder) RecordTokenCacheHit() {}
func (nopRecorder) RecordTokenCoalesced() {}
func (nopRecorder) RecordMetadataWrite(bool) {}
func (nopRecorder) ObserveIdPLatency(string, time.Duration) {}

// BaseURL はIdPドメインからベースURLを組み立てる。
// スキームが省略されている場合はhttpsを補う。
func BaseURL(domain string) string {
	d := strings.TrimRight(strings.TrimSpace(domain), "/")
	if strings.HasPrefix(d, "http://") || strings.HasPrefix(d, "https://") {
		return d
	}
	return "https://" + d
}

// ManagementAudience は管理APIの既定のaudienceを返す。
func ManagementAudience(domain string) string {
	return BaseURL(domain) + "/api/v2/"
}

// maxErrorBody はエラー時にログへ残すレスポンスボディの上限。
const maxErrorBody = 512

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody])
	}
	return string(b)
}
