package model

import "time"

// StorageLocation は在庫の保管場所を表す。
type StorageLocation string

const (
	StoragePantry  StorageLocation = "pantry"
	StorageFridge  StorageLocation = "fridge"
	StorageFreezer StorageLocation = "freezer"
)

// Valid は定義済みの保管場所かどうかを返す。
func (l StorageLocation) Valid() bool {
	switch l {
	case StoragePantry, StorageFridge, StorageFreezer:
		return true
	}
	return false
}

// PantryItem は在庫1単位を表す。
// 冷凍庫の品目はExpiresAtに関わらず期限切れ間近の判定対象外となる。
type PantryItem struct {
	ID              string          `json:"id"`
	UserID          string          `json:"-"`
	Name            string          `json:"name"`
	Quantity        float64         `json:"quantity"`
	Unit            string          `json:"unit"`
	StorageLocation StorageLocation `json:"storageLocation"`
	ExpiresAt       *time.Time      `json:"expiresAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// PantryItemPatch は在庫の数量・保管場所などの部分更新を表す。
type PantryItemPatch struct {
	Name            *string          `json:"name,omitempty"`
	Quantity        *float64         `json:"quantity,omitempty"`
	Unit            *string          `json:"unit,omitempty"`
	StorageLocation *StorageLocation `json:"storageLocation,omitempty"`
	ExpiresAt       *time.Time       `json:"expiresAt,omitempty"`
	ClearExpiresAt  bool             `json:"clearExpiresAt,omitempty"`
}

// Apply は部分更新を在庫に適用する。
func (p PantryItemPatch) Apply(item *PantryItem) {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	if p.Unit != nil {
		item.Unit = *p.Unit
	}
	if p.StorageLocation != nil {
		item.StorageLocation = *p.StorageLocation
	}
	if p.ClearExpiresAt {
		item.ExpiresAt = nil
	} else if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		item.ExpiresAt = &t
	}
}
