// Package localstore は最後に確定したプロフィールをSQLiteにキャッシュする。
package localstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/hitoshi/mealplanner/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ProfileStore はユーザーごとのプロフィールを保存するローカルキャッシュ。
type ProfileStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open はSQLiteデータベースを開き、マイグレーションを適用する。
// ディレクトリが存在しない場合は作成する。
func Open(path string) (*ProfileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("データベースディレクトリの作成に失敗しました: %w", err)
	}

	if err := runMigrations(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("データベースのオープンに失敗しました: %w", err)
	}
	// SQLiteは単一書き込みのため接続を1つに制限する
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースへの接続に失敗しました: %w", err)
	}

	return &ProfileStore{db: db, now: time.Now}, nil
}

func runMigrations(path string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("マイグレーションソースの作成に失敗しました: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite://"+path)
	if err != nil {
		return fmt.Errorf("マイグレーションの初期化に失敗しました: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("マイグレーションの適用に失敗しました: %w", err)
	}
	return nil
}

// Load はユーザーのプロフィールを返す。存在しない場合はnilを返す。
func (s *ProfileStore) Load(ctx context.Context, userID string) (*model.UserProfile, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT profile FROM profiles WHERE user_id = ?`, userID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}

	var p model.UserProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("保存済みプロフィールの解析に失敗しました: %w", err)
	}
	return &p, nil
}

// Save はプロフィールを保存する。同じユーザーの既存レコードは置き換える。
func (s *ProfileStore) Save(ctx context.Context, profile model.UserProfile) error {
	if profile.UserID == "" {
		return errors.New("user id is required")
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("プロフィールのシリアライズに失敗しました: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, profile, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET profile = excluded.profile, updated_at = excluded.updated_at`,
		profile.UserID, string(raw), s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("プロフィールの保存に失敗しました: %w", err)
	}
	return nil
}

// Delete はユーザーのプロフィールを削除する。
func (s *ProfileStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("プロフィールの削除に失敗しました: %w", err)
	}
	return nil
}

// Close はデータベース接続を閉じる。
func (s *ProfileStore) Close() error {
	return s.db.Close()
}
