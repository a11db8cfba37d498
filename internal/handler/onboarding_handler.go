package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/hitoshi/mealplanner/internal/model"
)

// OnboardingServiceInterface はオンボーディングハンドラーが必要とするサービスインターフェース。
// onboarding.Serviceが満たす。
type OnboardingServiceInterface interface {
	// Complete はIdPメタデータに完了フラグとプロフィールを書き込み、保存したプロフィールを返す。
	// profileがnilなら完了フラグのみを書き込み、nilを返す。
	Complete(ctx context.Context, subject string, profile *model.UserProfile) (*model.UserProfile, error)
}

// OnboardingHandler はオンボーディング完了のHTTPハンドラー。
type OnboardingHandler struct {
	service OnboardingServiceInterface
}

// NewOnboardingHandler はOnboardingHandlerを生成する。
func NewOnboardingHandler(service OnboardingServiceInterface) *OnboardingHandler {
	return &OnboardingHandler{service: service}
}

type completeOnboardingRequest struct {
	Profile *model.UserProfile `json:"profile"`
}

// completeOnboardingResponse はリレーの応答。profileはサニタイズ後に保存した内容で、
// クライアントはこれをローカルの正とする。
type completeOnboardingResponse struct {
	Success bool               `json:"success"`
	Profile *model.UserProfile `json:"profile,omitempty"`
}

// CompleteOnboarding はオンボーディング完了をIdPに記録する。
// ボディが空、またはprofileが無い場合は完了フラグのみを書き込む。
// POST /api/complete-onboarding
func (h *OnboardingHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req completeOnboardingRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeInvalidBody(w, model.NewValidationError("リクエストボディの解析に失敗しました"))
		return
	}

	stored, err := h.service.Complete(r.Context(), userID, req.Profile)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, completeOnboardingResponse{Success: true, Profile: stored})
}
