package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"khawawish/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrUserNotFound はユーザーが存在しない場合
var ErrUserNotFound = errors.New("user not found")

// ErrUserExists はユーザー名またはメールアドレスが既に使われている場合
var ErrUserExists = errors.New("username or email already registered")

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create はUserIDを採番してユーザーを登録します。
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ? OR email = ?", user.Username, user.Email).
		Count(&count).Error; err != nil {
		return fmt.Errorf("check existing user: %w", err)
	}
	if count > 0 {
		return ErrUserExists
	}

	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	user.IsActive = true
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, "username = ?", username)
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (*models.User, error) {
	return r.findOne(ctx, "user_id = ?", userID)
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// TouchLogin は最終ログイン時刻を更新します。
func (r *UserRepository) TouchLogin(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("user_id = ?", userID).
		UpdateColumn("last_login", time.Now()).Error
}
