package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/mealplanner/internal/model"
	"github.com/hitoshi/mealplanner/internal/pantry"
)

// mockStore はStoreのモック実装。
type mockStore struct {
	items      []*model.PantryItem
	listErr    error
	deleteErr  error
	deletedIDs []string
	calls      int
}

func (m *mockStore) ListWithExpiry(ctx context.Context) ([]*model.PantryItem, error) {
	return m.items, m.listErr
}

func (m *mockStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	m.calls++
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.deletedIDs = append(m.deletedIDs, ids...)
	return int64(len(ids)), nil
}

type mockRecorder struct {
	total int64
}

func (r *mockRecorder) RecordPantryPurged(count int64) { r.total += count }

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func expiresIn(d time.Duration) *time.Time {
	t := fixedNow.Add(d)
	return &t
}

const testRetention = 7 * 24 * time.Hour

func newJob(store *mockStore, rec PurgeRecorder, buf *bytes.Buffer) *PurgeJob {
	job := NewPurgeJob(store, testRetention, rec, newTestLogger(buf))
	job.now = func() time.Time { return fixedNow }
	return job
}

func TestNewPurgeJob_ReturnsNonNil(t *testing.T) {
	var buf bytes.Buffer
	job := NewPurgeJob(&mockStore{}, testRetention, nil, newTestLogger(&buf))
	if job == nil {
		t.Fatal("NewPurgeJob は nil を返してはならない")
	}
}

func TestNewPurgeJob_NegativeRetentionIsZero(t *testing.T) {
	var buf bytes.Buffer
	job := NewPurgeJob(&mockStore{}, -time.Hour, nil, newTestLogger(&buf))
	if job.retention != 0 {
		t.Errorf("retention = %v, want 0", job.retention)
	}
}

func TestPurgeJob_Run_DeletesOnlyStaleExpired(t *testing.T) {
	var buf bytes.Buffer
	store := &mockStore{
		items: []*model.PantryItem{
			{ID: "soon", StorageLocation: model.StorageFridge, ExpiresAt: expiresIn(2 * 24 * time.Hour)},
			{ID: "later", StorageLocation: model.StorageFridge, ExpiresAt: expiresIn(10 * 24 * time.Hour)},
			{ID: "recent", StorageLocation: model.StoragePantry, ExpiresAt: expiresIn(-3 * 24 * time.Hour)},
			{ID: "stale", StorageLocation: model.StoragePantry, ExpiresAt: expiresIn(-10 * 24 * time.Hour)},
			{ID: "frozen", StorageLocation: model.StorageFreezer, ExpiresAt: expiresIn(-30 * 24 * time.Hour)},
		},
	}
	rec := &mockRecorder{}
	job := newJob(store, rec, &buf)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	sort.Strings(store.deletedIDs)
	if strings.Join(store.deletedIDs, ",") != "stale" {
		t.Errorf("削除ID = %v, want [stale]", store.deletedIDs)
	}
	if rec.total != 1 {
		t.Errorf("記録された削除件数 = %d, want 1", rec.total)
	}
}

// 期限切れ間近の在庫は週プランの「必ず使う食材」になるため、ワーカーが消してはならない。
func TestPurgeJob_Run_KeepsExpiringSoonForWeekPlan(t *testing.T) {
	var buf bytes.Buffer
	milk := &model.PantryItem{ID: "milk", Name: "Milk", StorageLocation: model.StorageFridge, ExpiresAt: expiresIn(2 * 24 * time.Hour)}
	store := &mockStore{items: []*model.PantryItem{milk}}

	if names := pantry.ExpiringNames([]model.PantryItem{*milk}, fixedNow); len(names) != 1 || names[0] != "Milk" {
		t.Fatalf("ExpiringNames() = %v, want [Milk]", names)
	}

	job := NewPurgeJob(store, 0, nil, newTestLogger(&buf))
	job.now = func() time.Time { return fixedNow }
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}
	if len(store.deletedIDs) != 0 {
		t.Errorf("期限切れ間近の在庫が削除された: %v", store.deletedIDs)
	}
}

func TestPurgeJob_Run_LogsDeletedCount(t *testing.T) {
	var buf bytes.Buffer
	store := &mockStore{
		items: []*model.PantryItem{
			{ID: "a", StorageLocation: model.StorageFridge, ExpiresAt: expiresIn(-14 * 24 * time.Hour)},
		},
	}
	job := newJob(store, nil, &buf)

	_ = job.Run(context.Background())

	found := false
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if count, ok := entry["deleted_count"]; ok && count == float64(1) {
			if _, ok := entry["duration_ms"]; ok {
				found = true
				break
			}
		}
	}
	if !found {
		t.Errorf("ログに deleted_count=1 と duration_ms が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestPurgeJob_Run_ReturnsErrorOnListFailure(t *testing.T) {
	var buf bytes.Buffer
	store := &mockStore{listErr: sql.ErrConnDone}
	job := newJob(store, nil, &buf)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("取得エラー時に Run() は nil でないエラーを返すべき")
	}
	if store.calls != 0 {
		t.Error("取得失敗時に DeleteByIDs を呼び出してはならない")
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestPurgeJob_Run_ReturnsErrorOnDeleteFailure(t *testing.T) {
	var buf bytes.Buffer
	store := &mockStore{
		items: []*model.PantryItem{
			{ID: "a", StorageLocation: model.StorageFridge, ExpiresAt: expiresIn(-14 * 24 * time.Hour)},
		},
		deleteErr: sql.ErrConnDone,
	}
	rec := &mockRecorder{}
	job := newJob(store, rec, &buf)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("削除エラー時に Run() は nil でないエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "sql: connection is already closed") {
		t.Errorf("エラーメッセージが期待と異なる: %v", err)
	}
	if rec.total != 0 {
		t.Errorf("失敗時に削除件数を記録してはならない: %d", rec.total)
	}
}

func TestPurgeJob_Run_Idempotent_NoCandidates(t *testing.T) {
	var buf bytes.Buffer
	store := &mockStore{}
	job := newJob(store, nil, &buf)

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%d回目の Run() がエラーを返した: %v", i+1, err)
		}
	}
	if len(store.deletedIDs) != 0 {
		t.Errorf("削除対象なしで削除された: %v", store.deletedIDs)
	}
}

func TestPurgeJob_Loop_StopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	store := &mockStore{}
	job := newJob(store, nil, &buf)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Loop(ctx, time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("コンテキストキャンセル後に Loop が停止しなかった")
	}
	if store.calls < 1 {
		t.Error("Loop は起動直後に1回 Run を実行するべき")
	}
}
