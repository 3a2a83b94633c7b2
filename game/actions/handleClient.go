package actions

import (
	"context"
	"time"

	"khawawish/game/connection"
	"khawawish/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// maxMessageSize は受信メッセージの最大バイト数
const maxMessageSize = 8192

// HandleClient はクライアントからのメッセージを読み取り、Hubに渡します。
// 受信のたびに読み取りデッドラインを延長する。ctxがキャンセルされるか読み取りに失敗すると戻る。
func HandleClient(ctx context.Context, hub *Hub, c *connection.Client, readTimeout time.Duration, logger *zap.Logger) error {
	c.Conn.SetReadLimit(maxMessageSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.Conn.SetReadDeadline(time.Now().Add(readTimeout))
		// デッドライン設定後にキャンセルされた場合はAfterFuncのデッドラインが勝つ
		if err := ctx.Err(); err != nil {
			return err
		}

		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn("WebSocket error", zap.String("userID", c.UserID()), zap.Error(err))
			}
			return err
		}

		cmd, err := models.DecodeCommand(message)
		if err != nil {
			logger.Warn("Error decoding message", zap.String("userID", c.UserID()), zap.Error(err))
		}
		hub.Dispatch(ctx, c, cmd)
	}
}
