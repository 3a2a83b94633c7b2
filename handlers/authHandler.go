package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"khawawish/auth"
	"khawawish/database"
	"khawawish/middlewares"
	"khawawish/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserStore はユーザーの保存先
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, userID string) (*models.User, error)
	TouchLogin(ctx context.Context, userID string) error
}

// ユーザー登録リクエストの構造体
type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=50"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"display_name" binding:"max=100"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse はログインと登録の応答
type AuthResponse struct {
	AccessToken string             `json:"access_token"`
	TokenType   string             `json:"token_type"`
	User        models.UserProfile `json:"user"`
}

// AuthHandler はユーザー登録とログインを扱います。
type AuthHandler struct {
	Users    UserStore
	Secret   []byte
	TokenTTL time.Duration
	Logger   *zap.Logger
}

func (h *AuthHandler) respondWithToken(c *gin.Context, status int, user *models.User) {
	token, err := auth.GenerateToken(h.Secret, *user, h.TokenTTL)
	if err != nil {
		h.Logger.Error("Token generation error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	c.JSON(status, AuthResponse{AccessToken: token, TokenType: "bearer", User: user.Profile(true)})
}

// ユーザー登録ハンドラー
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.Logger.Error("Password hash error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}
	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}
	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		DisplayName:  displayName,
	}

	if err := h.Users.Create(c.Request.Context(), user); err != nil {
		if errors.Is(err, database.ErrUserExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Username or email already registered"})
			return
		}
		h.Logger.Error("User create error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	h.Logger.Info("User registered", zap.String("userID", user.UserID), zap.String("username", user.Username))
	h.respondWithToken(c, http.StatusCreated, user)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.Users.FindByUsername(c.Request.Context(), req.Username)
	if err != nil && !errors.Is(err, database.ErrUserNotFound) {
		h.Logger.Error("User lookup error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}
	if user == nil || !user.IsActive || !auth.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect username or password"})
		return
	}

	if err := h.Users.TouchLogin(c.Request.Context(), user.UserID); err != nil {
		h.Logger.Warn("Failed to update last login", zap.String("userID", user.UserID), zap.Error(err))
	}
	h.respondWithToken(c, http.StatusOK, user)
}

// Me はログイン中のユーザーのプロフィールを返します。
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middlewares.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	user, err := h.Users.FindByID(c.Request.Context(), claims.UserID)
	if err != nil {
		h.userLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, user.Profile(true))
}

// Profile は公開プロフィール。メールアドレスは含めない。
func (h *AuthHandler) Profile(c *gin.Context) {
	user, err := h.Users.FindByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.userLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, user.Profile(false))
}

func (h *AuthHandler) userLookupError(c *gin.Context, err error) {
	if errors.Is(err, database.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	h.Logger.Error("User lookup error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
}
