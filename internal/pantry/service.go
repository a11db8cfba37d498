package pantry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/mealplanner/internal/model"
	"github.com/hitoshi/mealplanner/internal/repository"
)

// NewItemInput は在庫の新規登録内容。
type NewItemInput struct {
	Name            string                `json:"name"`
	Quantity        float64               `json:"quantity"`
	Unit            string                `json:"unit"`
	StorageLocation model.StorageLocation `json:"storageLocation"`
	ExpiresAt       *time.Time            `json:"expiresAt,omitempty"`
}

// Service は在庫管理のサービス層。
// 一覧取得、登録、数量・保管場所の更新、削除、期限切れ間近の一括削除を提供する。
type Service struct {
	repo repository.PantryRepository
	now  func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.PantryRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List はユーザーの在庫一覧を返す。
func (s *Service) List(ctx context.Context, userID string) ([]model.PantryItem, error) {
	items, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("在庫一覧の取得に失敗しました: %w", err)
	}
	return derefItems(items), nil
}

// Create は在庫を登録する。
func (s *Service) Create(ctx context.Context, userID string, in NewItemInput) (*model.PantryItem, error) {
	now := s.now().UTC()
	item := &model.PantryItem{
		ID:              uuid.New().String(),
		UserID:          userID,
		Name:            strings.TrimSpace(in.Name),
		Quantity:        in.Quantity,
		Unit:            strings.TrimSpace(in.Unit),
		StorageLocation: in.StorageLocation,
		ExpiresAt:       in.ExpiresAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if item.StorageLocation == "" {
		item.StorageLocation = model.StoragePantry
	}
	if err := validateItem(item); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("在庫の登録に失敗しました: %w", err)
	}
	return item, nil
}

// Update は在庫の数量・保管場所などを部分更新する。
func (s *Service) Update(ctx context.Context, userID, itemID string, patch model.PantryItemPatch) (*model.PantryItem, error) {
	item, err := s.repo.FindByID(ctx, userID, itemID)
	if err != nil {
		return nil, fmt.Errorf("在庫の取得に失敗しました: %w", err)
	}
	if item == nil {
		return nil, model.NewPantryItemNotFoundError(itemID)
	}

	patch.Apply(item)
	item.Name = strings.TrimSpace(item.Name)
	item.UpdatedAt = s.now().UTC()
	if err := validateItem(item); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("在庫の更新に失敗しました: %w", err)
	}
	return item, nil
}

// Delete は在庫を削除する。
func (s *Service) Delete(ctx context.Context, userID, itemID string) error {
	deleted, err := s.repo.Delete(ctx, userID, itemID)
	if err != nil {
		return fmt.Errorf("在庫の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewPantryItemNotFoundError(itemID)
	}
	return nil
}

// Expiring はユーザーの期限切れ間近の在庫名を返す。
// 週プランウィザードの「必ず使う食材」の初期値になる。
func (s *Service) Expiring(ctx context.Context, userID string) ([]string, error) {
	items, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ExpiringNames(items, s.now()), nil
}

// ClearExpiring はユーザーの期限切れ間近および期限切れの在庫を削除し、削除件数を返す。
// 冷凍庫の在庫は対象外。
func (s *Service) ClearExpiring(ctx context.Context, userID string) (int64, error) {
	items, err := s.List(ctx, userID)
	if err != nil {
		return 0, err
	}

	n, err := s.repo.DeleteByIDs(ctx, PurgeCandidates(items, s.now()))
	if err != nil {
		return 0, fmt.Errorf("期限切れ間近の在庫削除に失敗しました: %w", err)
	}
	return n, nil
}

func validateItem(item *model.PantryItem) error {
	if item.Name == "" {
		return model.NewInvalidPantryItemError("name is required")
	}
	if item.Quantity < 0 {
		return model.NewInvalidPantryItemError("quantity must not be negative")
	}
	if !item.StorageLocation.Valid() {
		return model.NewInvalidPantryItemError(fmt.Sprintf("unknown storage location %q", item.StorageLocation))
	}
	return nil
}

func derefItems(items []*model.PantryItem) []model.PantryItem {
	out := make([]model.PantryItem, 0, len(items))
	for _, it := range items {
		if it != nil {
			out = append(out, *it)
		}
	}
	return out
}
