package models

import (
	"time"
)

// GameSessionStatus はゲームセッションの状態
type GameSessionStatus string

const (
	SessionWaiting    GameSessionStatus = "waiting"
	SessionInProgress GameSessionStatus = "in_progress"
	SessionCompleted  GameSessionStatus = "completed"
	SessionCancelled  GameSessionStatus = "cancelled"
)

// GameSession は開始されたゲーム（再戦を含む）ごとの記録です。
type GameSession struct {
	SessionID  string         `gorm:"primaryKey;size:50"`
	LobbyID    string         `gorm:"size:20;index;not null"`
	CreatorID  string         `gorm:"size:50;not null"`
	MaxPlayers int            `gorm:"not null;default:2"`
	GameConfig map[string]any `gorm:"serializer:json"` // max_images, seed など

	Status    GameSessionStatus `gorm:"size:20;index;not null;default:'waiting'"`
	StartedAt *time.Time
	EndedAt   *time.Time
	WinnerID  *string `gorm:"size:50"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
