package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"khawawish/auth"
	"khawawish/game/database"
	"khawawish/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ClientContext はアップグレード前に確定する接続の身元情報です。
type ClientContext struct {
	Identity models.Identity
	Claims   *models.MyClaims // トークンで認証した場合のみ
	Resumed  bool             // セッションIDで復元した場合true
}

// tokenFromRequest は ?token= またはAuthorizationヘッダーからトークンを取り出す
func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func sessionIDFromRequest(r *http.Request) string {
	if id := r.URL.Query().Get("session_id"); id != "" {
		return id
	}
	return r.Header.Get("SessionID")
}

// FetchClientContext はトークン、またはRedisに保存されたセッションIDから身元を確定します。
// どちらも無効ならauth.ErrUnauthorizedを返す。
func FetchClientContext(ctx context.Context, r *http.Request, secret []byte, rdb *redis.Client, logger *zap.Logger) (*ClientContext, error) {
	if token := tokenFromRequest(r); token != "" {
		claims, err := auth.ParseToken(secret, token)
		if err != nil {
			logger.Warn("Failed to validate token", zap.Error(err))
			return nil, err
		}
		return &ClientContext{Identity: claims.Identity(), Claims: claims}, nil
	}

	sessionID := sessionIDFromRequest(r)
	if sessionID == "" || rdb == nil {
		return nil, auth.ErrUnauthorized
	}
	identity, err := database.ValidateSessionID(ctx, rdb, sessionID)
	if err != nil {
		logger.Warn("Failed to restore session", zap.String("sessionID", sessionID), zap.Error(err))
		if errors.Is(err, database.ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: %v", auth.ErrUnauthorized, err)
		}
		return nil, err
	}
	return &ClientContext{Identity: *identity, Resumed: true}, nil
}
