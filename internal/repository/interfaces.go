// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/mealplanner/internal/model"
)

// PantryRepository は在庫データの永続化インターフェース。
// すべての操作はユーザー単位でスコープされる（一括削除ジョブ用のメソッドを除く）。
type PantryRepository interface {
	// ListByUserID はユーザーの在庫一覧を作成日時順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.PantryItem, error)

	// FindByID はユーザーの指定IDの在庫を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.PantryItem, error)

	// Create は在庫を作成する。
	Create(ctx context.Context, item *model.PantryItem) error

	// Update は在庫の名前、数量、単位、保管場所、期限を上書き更新する。
	Update(ctx context.Context, item *model.PantryItem) error

	// Delete はユーザーの指定IDの在庫を削除する。削除できた場合はtrueを返す。
	Delete(ctx context.Context, userID, id string) (bool, error)

	// DeleteByIDs は指定IDの在庫をまとめて削除し、削除件数を返す。
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)

	// ListWithExpiry は期限が設定された冷凍庫以外の在庫を全ユーザー分返す。
	// 期限切れ間近の一括削除ジョブで使用する。
	ListWithExpiry(ctx context.Context) ([]*model.PantryItem, error)
}
