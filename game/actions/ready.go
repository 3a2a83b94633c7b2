package actions

import (
	"khawawish/game/connection"
	"khawawish/models"

	"go.uber.org/zap"
)

// handleReady は準備フラグを設定します。readyが省略された場合は反転する。
func (h *Hub) handleReady(c *connection.Client, cmd models.ReadyCommand) {
	h.mu.Lock()
	defer h.mu.Unlock()

	lobby, ok := h.currentLobby(c)
	if !ok {
		h.logger.Info("Ready ignored, not in a lobby", zap.String("userID", c.UserID()))
		return
	}
	player := lobby.Player(c.UserID())
	if player == nil {
		return
	}

	ready := !player.IsReady
	if cmd.Ready != nil {
		ready = *cmd.Ready
	}
	lobby.SetPlayerReady(c.UserID(), ready)

	view := lobby.Snapshot()
	h.Clients.BroadcastLobby(models.ReadyChangedMessage{
		Type:     models.OutPlayerReadyChanged,
		Lobby:    &view,
		UserID:   c.UserID(),
		IsReady:  ready,
		AllReady: lobby.AllPlayersReady(),
	}, lobby.LobbyID)
}
