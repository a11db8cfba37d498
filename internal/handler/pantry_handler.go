package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/mealplanner/internal/model"
	"github.com/hitoshi/mealplanner/internal/pantry"
)

// PantryServiceInterface は在庫ハンドラーが必要とするサービスインターフェース。
// pantry.Serviceが満たす。
type PantryServiceInterface interface {
	List(ctx context.Context, userID string) ([]model.PantryItem, error)
	Create(ctx context.Context, userID string, in pantry.NewItemInput) (*model.PantryItem, error)
	Update(ctx context.Context, userID, itemID string, patch model.PantryItemPatch) (*model.PantryItem, error)
	Delete(ctx context.Context, userID, itemID string) error
	Expiring(ctx context.Context, userID string) ([]string, error)
	ClearExpiring(ctx context.Context, userID string) (int64, error)
}

// PantryHandler は在庫管理のHTTPハンドラー。
type PantryHandler struct {
	service PantryServiceInterface
	now     func() time.Time
}

// NewPantryHandler はPantryHandlerを生成する。
func NewPantryHandler(service PantryServiceInterface) *PantryHandler {
	return &PantryHandler{service: service, now: time.Now}
}

// pantryItemResponse は在庫のAPIレスポンス。期限の分類結果を含む。
type pantryItemResponse struct {
	model.PantryItem
	ExpiringSoon    bool `json:"expiringSoon"`
	DaysUntilExpiry *int `json:"daysUntilExpiry,omitempty"`
}

func (h *PantryHandler) toResponse(item model.PantryItem) pantryItemResponse {
	now := h.now()
	resp := pantryItemResponse{
		PantryItem:   item,
		ExpiringSoon: pantry.IsExpiringSoon(item, now),
	}
	if item.ExpiresAt != nil {
		days := pantry.DaysUntilExpiration(*item.ExpiresAt, now)
		resp.DaysUntilExpiry = &days
	}
	return resp
}

// ListItems は在庫一覧を取得する。
// GET /api/pantry
func (h *PantryHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	items, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]pantryItemResponse, len(items))
	for i, item := range items {
		resp[i] = h.toResponse(item)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateItem は在庫を登録する。
// POST /api/pantry
func (h *PantryHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var in pantry.NewItemInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&in); err != nil {
		writeInvalidBody(w, model.NewInvalidPantryItemError("リクエストボディの解析に失敗しました"))
		return
	}

	item, err := h.service.Create(r.Context(), userID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.toResponse(*item))
}

// UpdateItem は在庫の数量・保管場所などを更新する。
// PATCH /api/pantry/{id}
func (h *PantryHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var patch model.PantryItemPatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&patch); err != nil {
		writeInvalidBody(w, model.NewInvalidPantryItemError("リクエストボディの解析に失敗しました"))
		return
	}

	item, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), patch)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.toResponse(*item))
}

// DeleteItem は在庫を削除する。
// DELETE /api/pantry/{id}
func (h *PantryHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type expiringResponse struct {
	Names []string `json:"names"`
}

// ListExpiring は期限切れ間近の在庫名を返す。週間プランの使い切り食材の初期値に使う。
// GET /api/pantry/expiring
func (h *PantryHandler) ListExpiring(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	names, err := h.service.Expiring(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}

	writeJSON(w, http.StatusOK, expiringResponse{Names: names})
}

type clearExpiringResponse struct {
	Deleted int64 `json:"deleted"`
}

// ClearExpiring は期限切れ間近と期限切れの在庫を一括削除する。
// POST /api/pantry/clear-expiring
func (h *PantryHandler) ClearExpiring(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	deleted, err := h.service.ClearExpiring(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, clearExpiringResponse{Deleted: deleted})
}
