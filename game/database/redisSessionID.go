package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"khawawish/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionTTL は再接続用セッションIDの有効期限
const SessionTTL = 24 * time.Hour

// ErrSessionNotFound はセッションIDが存在しないか期限切れの場合
var ErrSessionNotFound = errors.New("session not found")

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

// GenerateAndStoreSessionID は新しいセッションIDを発行し、身元情報と一緒にRedisに保存します。
func GenerateAndStoreSessionID(ctx context.Context, identity models.Identity, rdb *redis.Client, logger *zap.Logger) (string, error) {
	sessionID := uuid.New().String()

	sessionInfoJSON, err := json.Marshal(identity)
	if err != nil {
		logger.Error("Error encoding session info", zap.Error(err))
		return "", err
	}

	if err := rdb.Set(ctx, sessionKey(sessionID), sessionInfoJSON, SessionTTL).Err(); err != nil {
		logger.Error("Error storing session info in Redis", zap.Error(err))
		return "", err
	}
	return sessionID, nil
}

// ValidateSessionID はセッションIDから身元情報を復元します。
// 使ったセッションIDは削除されるので、呼び出し側は新しいIDを発行し直す。
func ValidateSessionID(ctx context.Context, rdb *redis.Client, sessionID string) (*models.Identity, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	sessionInfoJSON, err := rdb.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve session info: %w", err)
	}

	var identity models.Identity
	if err := json.Unmarshal([]byte(sessionInfoJSON), &identity); err != nil {
		return nil, fmt.Errorf("decode session info: %w", err)
	}
	if identity.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrSessionNotFound)
	}

	// 旧セッションの削除
	rdb.Del(ctx, sessionKey(sessionID))
	return &identity, nil
}
