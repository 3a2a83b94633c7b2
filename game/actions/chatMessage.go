package actions

import (
	"strings"
	"time"
	"unicode/utf8"

	"khawawish/game/connection"
	"khawawish/models"

	"go.uber.org/zap"
)

// maxChatLength はチャットメッセージの最大文字数
const maxChatLength = 500

// チャットメッセージを処理する関数
func (h *Hub) handleChatMessage(c *connection.Client, cmd models.ChatCommand) {
	message := strings.TrimSpace(cmd.Message)
	switch {
	case message == "":
		c.SendLogged(models.NewFailure(models.OutChatFailed, "Message is empty"))
		return
	case utf8.RuneCountInString(message) > maxChatLength:
		c.SendLogged(models.NewFailure(models.OutChatFailed, "Message is too long"))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	lobby, ok := h.currentLobby(c)
	if !ok {
		c.SendLogged(models.NewFailure(models.OutChatFailed, reasonNotInLobby))
		return
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	delivered := h.Clients.BroadcastLobby(models.ChatMessage{
		Type:        models.OutChatMessage,
		Message:     message,
		From:        c.UserID(),
		Username:    c.Identity.Username,
		DisplayName: c.Identity.DisplayName,
		Timestamp:   timestamp,
	}, lobby.LobbyID)

	h.logger.Info("Chat message sent",
		zap.String("lobbyID", lobby.LobbyID),
		zap.String("from", c.UserID()),
		zap.Int("recipients", delivered))
}
