package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, idp, pantry, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
	ErrCodeCredentialAcquisition = "CREDENTIAL_ACQUISITION_FAILED"
	ErrCodeMetadataWriteFailed   = "METADATA_WRITE_FAILED"
	ErrCodePantryItemNotFound    = "PANTRY_ITEM_NOT_FOUND"
	ErrCodeInvalidPantryItem     = "INVALID_PANTRY_ITEM"
	ErrCodeRateLimited           = "RATE_LIMITED"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

// NewUnauthorizedError は認証失敗エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewValidationError はプロフィール検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("プロフィールの内容が不正です: %s", reason),
		Category: "validation",
		Action:   "オンボーディングの入力内容を確認してください。",
	}
}

// NewCredentialAcquisitionError は管理用クレデンシャルの取得失敗エラーを生成する。
func NewCredentialAcquisitionError() *APIError {
	return &APIError{
		Code:     ErrCodeCredentialAcquisition,
		Message:  "認証基盤への接続に失敗しました。",
		Category: "idp",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewMetadataWriteError はIdPメタデータの書き込み失敗エラーを生成する。
func NewMetadataWriteError() *APIError {
	return &APIError{
		Code:     ErrCodeMetadataWriteFailed,
		Message:  "プロフィールの保存に失敗しました。",
		Category: "idp",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewPantryItemNotFoundError は在庫未検出エラーを生成する。
func NewPantryItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodePantryItemNotFound,
		Message:  fmt.Sprintf("指定された在庫が見つかりません: %s", itemID),
		Category: "pantry",
		Action:   "在庫IDを確認してください。",
	}
}

// NewInvalidPantryItemError は在庫の入力値エラーを生成する。
func NewInvalidPantryItemError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPantryItem,
		Message:  fmt.Sprintf("在庫の内容が不正です: %s", reason),
		Category: "validation",
		Action:   "名前、数量、保管場所（pantry、fridge、freezer）を確認してください。",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
