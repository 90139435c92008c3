// Package cleanup は過去の申込の自動削除ジョブを提供する。
// 保持期間（デフォルト90日）を超過した日付の申込を定期バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/teeup/internal/dates"
)

// Purger は指定日付より前の申込を削除する。*signup.Service が実装する。
type Purger interface {
	PurgeBefore(ctx context.Context, before string) (int64, error)
}

// PurgeRecorder は削除件数を記録する。nilの場合は記録しない。
type PurgeRecorder interface {
	RecordSignupsPurged(count int64)
}

// CleanupJob は保持期間を超過した申込の自動削除ジョブ。
// 冪等な削除処理のため、同じ日に何度実行しても結果は変わらない。
type CleanupJob struct {
	purger        Purger
	logger        *slog.Logger
	recorder      PurgeRecorder
	RetentionDays int // 申込の保持日数（デフォルト: 90）
	Now           func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は90日。
func NewCleanupJob(purger Purger, logger *slog.Logger, recorder PurgeRecorder) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		purger:        purger,
		logger:        logger,
		recorder:      recorder,
		RetentionDays: 90,
		Now:           time.Now,
	}
}

// Cutoff は削除境界の日付キーを返す。この日付より前の申込が削除対象になる。
func (j *CleanupJob) Cutoff() (string, error) {
	days := j.RetentionDays
	if days < 0 {
		days = 0
	}
	return dates.AddDays(dates.TodayKey(j.Now()), -days)
}

// Run は保持期間を超過した申込を削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	cutoff, err := j.Cutoff()
	if err != nil {
		return fmt.Errorf("削除境界の計算に失敗: %w", err)
	}

	deletedCount, err := j.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("申込クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
			slog.String("cutoff", cutoff),
		)
		return fmt.Errorf("申込クリーンアップの実行に失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordSignupsPurged(deletedCount)
	}

	duration := time.Since(start)
	j.logger.Info("申込クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.String("cutoff", cutoff),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
