// Package migrations はスキーマ変更を日付順に適用します。
package migrations

import (
	"fmt"

	"khawawish/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migration は1つのスキーマ変更
type Migration struct {
	ID      string
	Migrate func(tx *gorm.DB) error
}

// All は適用順に並んだマイグレーション
var All = []Migration{
	{
		ID: "202401242100_create_users",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.User{})
		},
	},
	{
		ID: "202401282217_create_game_sessions",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.GameSession{})
		},
	},
	{
		// cronの放置セッション検索用
		ID: "202402122216_index_game_sessions_status_created_at",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec("CREATE INDEX IF NOT EXISTS idx_game_sessions_status_created_at ON game_sessions (status, created_at)").Error
		},
	},
}

// Run はすべてのマイグレーションを順に適用します。どれも何度実行してもよい。
func Run(db *gorm.DB, logger *zap.Logger) error {
	for _, m := range All {
		if err := db.Transaction(m.Migrate); err != nil {
			logger.Error("Migration failed", zap.String("id", m.ID), zap.Error(err))
			return fmt.Errorf("migration %s: %w", m.ID, err)
		}
		logger.Info("Migration applied", zap.String("id", m.ID))
	}
	return nil
}
