package database

import (
	"context"
	"fmt"
	"time"

	"khawawish/models"

	"gorm.io/gorm"
)

// SessionRepository はゲームセッションの記録をPostgreSQLに保存します。
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateSession は開始されたゲームを in_progress として記録します。
func (r *SessionRepository) CreateSession(ctx context.Context, sessionID, lobbyID, creatorID string, maxPlayers int, config map[string]any) (*models.GameSession, error) {
	now := time.Now()
	session := &models.GameSession{
		SessionID:  sessionID,
		LobbyID:    lobbyID,
		CreatorID:  creatorID,
		MaxPlayers: maxPlayers,
		GameConfig: config,
		Status:     models.SessionInProgress,
		StartedAt:  &now,
	}
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("create game session: %w", err)
	}
	return session, nil
}

// CompleteSession は勝者を記録し、参加者の戦績を1つのトランザクションで更新します。
func (r *SessionRepository) CompleteSession(ctx context.Context, sessionID, winnerID string, playerIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := tx.Model(&models.GameSession{}).
			Where("session_id = ? AND status = ?", sessionID, models.SessionInProgress).
			Updates(map[string]any{
				"status":    models.SessionCompleted,
				"ended_at":  now,
				"winner_id": winnerID,
			})
		if result.Error != nil {
			return fmt.Errorf("complete game session: %w", result.Error)
		}
		// 既に終了済みのセッションでは戦績を二重に数えない
		if result.RowsAffected == 0 {
			return nil
		}

		if len(playerIDs) > 0 {
			if err := tx.Model(&models.User{}).
				Where("user_id IN ?", playerIDs).
				UpdateColumn("games_played", gorm.Expr("games_played + 1")).Error; err != nil {
				return fmt.Errorf("update games played: %w", err)
			}
		}
		if err := tx.Model(&models.User{}).
			Where("user_id = ?", winnerID).
			UpdateColumn("games_won", gorm.Expr("games_won + 1")).Error; err != nil {
			return fmt.Errorf("update games won: %w", err)
		}
		return nil
	})
}

// CancelStaleSessions は終了しないまま放置されたセッションを cancelled にします。
func (r *SessionRepository) CancelStaleSessions(ctx context.Context, olderThan time.Duration) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.GameSession{}).
		Where("status IN ? AND created_at <= ?",
			[]models.GameSessionStatus{models.SessionWaiting, models.SessionInProgress},
			time.Now().Add(-olderThan)).
		Updates(map[string]any{
			"status":   models.SessionCancelled,
			"ended_at": time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("cancel stale sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
