package utils

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// staleSessionAge を過ぎても終わらないセッションはキャンセル扱いにする
const staleSessionAge = 24 * time.Hour

// LobbySweeper は空のロビーを削除する
type LobbySweeper interface {
	SweepEmptyLobbies() int
}

// StaleSessionCanceller は放置されたゲームセッションを閉じる
type StaleSessionCanceller interface {
	CancelStaleSessions(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CronCleaner は定期クリーンアップのジョブを登録して開始します。
// 戻り値のStopでジョブを止める。
func CronCleaner(sessions StaleSessionCanceller, lobbies LobbySweeper, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()

	// 空のロビーを削除するジョブ（毎分）
	if _, err := c.AddFunc("@every 1m", func() {
		if n := lobbies.SweepEmptyLobbies(); n > 0 {
			logger.Info("空のロビーを削除しました", zap.Int("lobbies_deleted", n))
		}
	}); err != nil {
		return nil, err
	}

	// 24時間以上終わらないセッションをcancelledにするジョブ（毎時）
	if _, err := c.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := sessions.CancelStaleSessions(ctx, staleSessionAge)
		if err != nil {
			logger.Error("放置セッションのキャンセルに失敗しました", zap.Error(err))
			return
		}
		logger.Info("放置セッションのキャンセル完了", zap.Int64("sessions_cancelled", n))
	}); err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
