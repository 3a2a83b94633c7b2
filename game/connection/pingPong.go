package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"khawawish/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// writeWait はソケットへの1回の書き込みに許す時間
const writeWait = 10 * time.Second

var pingFrame, _ = json.Marshal(models.PingMessage{Type: models.OutPing})

// MaintainWebSocketConnection はハートビートを送りながら送信キューをソケットに書き出します。
// このゴルーチンが唯一の書き込み手。ctxがキャンセルされるか書き込みに失敗すると戻る。
func MaintainWebSocketConnection(ctx context.Context, c *Client, interval time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.Done():
			return ErrClientClosed
		case <-ticker.C:
			if err := c.write(pingFrame); err != nil {
				logger.Info("Heartbeat failed", zap.String("userID", c.UserID()), zap.Error(err))
				return fmt.Errorf("send ping: %w", err)
			}
		case message := <-c.send:
			if err := c.write(message); err != nil {
				logger.Info("Failed to write message", zap.String("userID", c.UserID()), zap.Error(err))
				return fmt.Errorf("write message: %w", err)
			}
		}
	}
}

func (c *Client) write(data []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}
