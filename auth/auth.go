package auth

import (
	"errors"
	"fmt"
	"time"

	"khawawish/models"

	jwt "github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthorized はトークンが無い、壊れている、期限切れのいずれか
var ErrUnauthorized = errors.New("unauthorized")

// GenerateToken はユーザーの身元情報を含むJWTトークンを生成します。
func GenerateToken(secret []byte, user models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &models.MyClaims{
		UserID:      user.UserID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		StandardClaims: jwt.StandardClaims{
			Subject:   user.UserID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tokenString, nil
}

// ParseToken はトークンを検証してクレームを返します。
func ParseToken(secret []byte, tokenString string) (*models.MyClaims, error) {
	if tokenString == "" {
		return nil, ErrUnauthorized
	}

	claims := &models.MyClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword はハッシュと平文が一致すればtrue
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
