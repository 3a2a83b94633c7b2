package models

import (
	"time"
)

// User は認証と戦績のためのユーザーモデルです。
type User struct {
	UserID       string `gorm:"primaryKey;size:50"`
	Username     string `gorm:"uniqueIndex;size:50;not null"`
	Email        string `gorm:"uniqueIndex;size:100;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	DisplayName  string `gorm:"size:100;not null"`
	AvatarURL    *string
	Bio          *string

	// 戦績
	GamesPlayed   int `gorm:"not null;default:0"`
	GamesWon      int `gorm:"not null;default:0"`
	CurrentStreak int `gorm:"not null;default:0"`
	BestStreak    int `gorm:"not null;default:0"`

	IsActive  bool `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
	LastLogin *time.Time
}

// Identity は接続の間ずっと信頼されるユーザーの身元情報です。
type Identity struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// Identity はUserから接続用の身元情報を取り出します。
func (u User) Identity() Identity {
	return Identity{UserID: u.UserID, Username: u.Username, DisplayName: u.DisplayName}
}

// UserProfile はAPIで返す公開プロフィールです。パスワードハッシュは含めない。
type UserProfile struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	GamesPlayed int       `json:"games_played"`
	GamesWon    int       `json:"games_won"`
	WinRate     float64   `json:"win_rate"`
	CreatedAt   time.Time `json:"created_at"`
}

// Profile はUserを公開プロフィールに変換します。includeEmail は本人の場合のみtrue。
func (u User) Profile(includeEmail bool) UserProfile {
	p := UserProfile{
		UserID:      u.UserID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		GamesPlayed: u.GamesPlayed,
		GamesWon:    u.GamesWon,
		CreatedAt:   u.CreatedAt,
	}
	if u.GamesPlayed > 0 {
		p.WinRate = float64(u.GamesWon) / float64(u.GamesPlayed) * 100
	}
	if includeEmail {
		p.Email = u.Email
	}
	return p
}
