// Package cleanup は在庫データの自動削除ジョブを提供する。
// 期限を過ぎてから保持期間を超えた在庫（冷凍庫を除く）だけを定期バッチで削除する。
// 期限切れ間近の在庫は利用者の明示的な操作でのみ削除される。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/mealplanner/internal/model"
	"github.com/hitoshi/mealplanner/internal/pantry"
)

// Store は一括削除ジョブが使用する在庫ストアの操作。
// repository.PantryRepository が満たす。
type Store interface {
	ListWithExpiry(ctx context.Context) ([]*model.PantryItem, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// PurgeRecorder は削除件数を記録するメトリクスの抽象。
type PurgeRecorder interface {
	RecordPantryPurged(count int64)
}

// PurgeJob は期限切れ在庫の自動削除ジョブ。
// 冪等な削除処理を保証する。
type PurgeJob struct {
	store     Store
	retention time.Duration
	logger    *slog.Logger
	recorder  PurgeRecorder
	now       func() time.Time
}

// NewPurgeJob は新しいPurgeJobを生成する。recorderはnilでもよい。
// retentionは期限を過ぎてから削除するまでの猶予で、負の値は0として扱う。
func NewPurgeJob(store Store, retention time.Duration, recorder PurgeRecorder, logger *slog.Logger) *PurgeJob {
	if retention < 0 {
		retention = 0
	}
	return &PurgeJob{
		store:     store,
		retention: retention,
		logger:    logger,
		recorder:  recorder,
		now:       time.Now,
	}
}

// Run は保持期間を超えた期限切れの在庫を削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *PurgeJob) Run(ctx context.Context) error {
	start := time.Now()

	items, err := j.store.ListWithExpiry(ctx)
	if err != nil {
		j.logger.Error("在庫削除対象の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("在庫削除対象の取得に失敗: %w", err)
	}

	candidates := make([]model.PantryItem, 0, len(items))
	for _, it := range items {
		if it != nil {
			candidates = append(candidates, *it)
		}
	}
	ids := pantry.StaleCandidates(candidates, j.now(), j.retention)

	deletedCount, err := j.store.DeleteByIDs(ctx, ids)
	if err != nil {
		j.logger.Error("在庫削除ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("candidate_count", len(ids)),
		)
		return fmt.Errorf("在庫削除の実行に失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordPantryPurged(deletedCount)
	}

	duration := time.Since(start)
	j.logger.Info("在庫削除ジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("scanned_count", len(items)),
		slog.Duration("retention", j.retention),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Loop はintervalごとにRunを実行する。ctxがキャンセルされると戻る。
// 起動直後に1回実行する。
func (j *PurgeJob) Loop(ctx context.Context, interval time.Duration) {
	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("在庫削除ジョブを停止します")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
