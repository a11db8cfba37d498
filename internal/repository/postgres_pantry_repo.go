package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/mealplanner/internal/model"
	"github.com/lib/pq"
)

// PostgresPantryRepo はPostgreSQLを使用した在庫リポジトリ。
type PostgresPantryRepo struct {
	db *sql.DB
}

// NewPostgresPantryRepo はPostgresPantryRepoを生成する。
func NewPostgresPantryRepo(db *sql.DB) *PostgresPantryRepo {
	return &PostgresPantryRepo{db: db}
}

const pantryColumns = `id, user_id, name, quantity, unit, storage_location, expires_at, created_at, updated_at`

// ListByUserID はユーザーの在庫一覧を作成日時順で返す。
func (r *PostgresPantryRepo) ListByUserID(ctx context.Context, userID string) ([]*model.PantryItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+pantryColumns+`
		 FROM pantry_items
		 WHERE user_id = $1
		 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pantry items: %w", err)
	}
	defer rows.Close()

	return scanPantryItems(rows)
}

// FindByID はユーザーの指定IDの在庫を取得する。見つからない場合はnilを返す。
func (r *PostgresPantryRepo) FindByID(ctx context.Context, userID, id string) (*model.PantryItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+pantryColumns+`
		 FROM pantry_items
		 WHERE user_id = $1 AND id = $2`,
		userID, id,
	)

	item, err := scanPantryItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pantry item: %w", err)
	}
	return item, nil
}

// Create は在庫を作成する。
func (r *PostgresPantryRepo) Create(ctx context.Context, item *model.PantryItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pantry_items (`+pantryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.ID, item.UserID, item.Name, item.Quantity, item.Unit,
		string(item.StorageLocation), nullTime(item), item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create pantry item: %w", err)
	}
	return nil
}

// Update は在庫の名前、数量、単位、保管場所、期限を上書き更新する。
func (r *PostgresPantryRepo) Update(ctx context.Context, item *model.PantryItem) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE pantry_items
		 SET name = $3, quantity = $4, unit = $5, storage_location = $6, expires_at = $7, updated_at = $8
		 WHERE user_id = $1 AND id = $2`,
		item.UserID, item.ID, item.Name, item.Quantity, item.Unit,
		string(item.StorageLocation), nullTime(item), item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update pantry item: %w", err)
	}
	return nil
}

// Delete はユーザーの指定IDの在庫を削除する。削除できた場合はtrueを返す。
func (r *PostgresPantryRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM pantry_items WHERE user_id = $1 AND id = $2`,
		userID, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete pantry item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}

// DeleteByIDs は指定IDの在庫をまとめて削除し、削除件数を返す。
func (r *PostgresPantryRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM pantry_items WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete pantry items: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// ListWithExpiry は期限が設定された冷凍庫以外の在庫を全ユーザー分返す。
func (r *PostgresPantryRepo) ListWithExpiry(ctx context.Context) ([]*model.PantryItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+pantryColumns+`
		 FROM pantry_items
		 WHERE expires_at IS NOT NULL AND storage_location <> 'freezer'
		 ORDER BY expires_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pantry items with expiry: %w", err)
	}
	defer rows.Close()

	return scanPantryItems(rows)
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPantryItem(s rowScanner) (*model.PantryItem, error) {
	item := &model.PantryItem{}
	var location string
	var expiresAt sql.NullTime

	if err := s.Scan(
		&item.ID, &item.UserID, &item.Name, &item.Quantity, &item.Unit,
		&location, &expiresAt, &item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		return nil, err
	}

	item.StorageLocation = model.StorageLocation(location)
	if expiresAt.Valid {
		t := expiresAt.Time
		item.ExpiresAt = &t
	}
	return item, nil
}

func scanPantryItems(rows *sql.Rows) ([]*model.PantryItem, error) {
	var items []*model.PantryItem
	for rows.Next() {
		item, err := scanPantryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pantry item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pantry items: %w", err)
	}
	return items, nil
}

func nullTime(item *model.PantryItem) sql.NullTime {
	if item.ExpiresAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *item.ExpiresAt, Valid: true}
}

// compile-time interface check
var _ PantryRepository = (*PostgresPantryRepo)(nil)
