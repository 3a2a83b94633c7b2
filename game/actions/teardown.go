package actions

import (
	"khawawish/game/broadcast"
	"khawawish/game/connection"
	"khawawish/models"

	"go.uber.org/zap"
)

// Disconnect は接続終了時の後片付けを行います。
// ロビーから外し、空なら削除し、レジストリから外して公開ロビー一覧を配り直し、最後に接続を閉じる。
// 同じユーザーが既に再接続している場合は、席を新しい接続に引き継ぐ。新しい接続が別のロビーにいれば古い席は空ける。
func (h *Hub) Disconnect(c *connection.Client) {
	defer c.Close()

	h.mu.Lock()
	defer h.mu.Unlock()

	userID := c.UserID()
	lobbyID := c.LobbyID()

	if newer, ok := h.Clients.Get(userID); ok && newer != c {
		switch {
		case lobbyID == "" || newer.LobbyID() == lobbyID:
			c.SetLobbyID("")
		case newer.LobbyID() == "":
			newer.SetLobbyID(lobbyID)
			c.SetLobbyID("")
		default:
			// 新しい接続は別のロビーにいるので古い席は空ける
			h.leaveCurrentLobby(c, models.OutPlayerLeft)
			broadcast.PublicLobbies(h.Clients, h.Lobbies)
		}
		h.logger.Info("Superseded connection closed", zap.String("userID", userID), zap.String("lobbyID", lobbyID))
		return
	}

	h.leaveCurrentLobby(c, models.OutPlayerLeft)
	h.Clients.RemoveIf(userID, c)
	broadcast.PublicLobbies(h.Clients, h.Lobbies)

	h.logger.Info("Client removed", zap.String("userID", userID), zap.String("lobbyID", lobbyID))
}
