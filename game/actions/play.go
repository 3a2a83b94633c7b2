package actions

import (
	"context"

	"khawawish/game/broadcast"
	"khawawish/game/connection"
	"khawawish/models"

	"go.uber.org/zap"
)

// 推測失敗の理由
const (
	reasonNotInLobby     = "Not in a lobby"
	reasonGameNotStarted = "Game has not started"
	reasonNotYourTurn    = "Not your turn"
)

// turnCheck は推測やターン終了ができるかを返します。できる場合は空文字。
func turnCheck(lobby *models.Lobby, userID string) string {
	switch {
	case !lobby.GameStarted || lobby.Starting:
		return reasonGameNotStarted
	case lobby.UserTurn != userID:
		return reasonNotYourTurn
	}
	return ""
}

func (h *Hub) handleSelectCharacter(c *connection.Client, cmd models.SelectCharacterCommand) {
	if cmd.Character == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	lobby, ok := h.currentLobby(c)
	if !ok {
		return
	}
	// 開始前の選択は受け付けない
	if !lobby.GameStarted || lobby.Starting {
		h.logger.Debug("Character selection before start ignored", zap.String("userID", c.UserID()))
		return
	}
	if !lobby.SetPlayerCharacter(c.UserID(), cmd.Character) {
		h.logger.Debug("Character selection ignored", zap.String("userID", c.UserID()))
		return
	}
	h.logger.Info("Character selected", zap.String("lobbyID", lobby.LobbyID), zap.String("userID", c.UserID()))

	if lobby.AnnounceSelection() {
		broadcast.LobbyState(h.Clients, lobby, models.OutSelectionComplete, "")
	}
}

// handleGuess は相手のキャラクターを当てます。手番のプレイヤーだけが推測でき、結果に関わらずターンは交代する。
func (h *Hub) handleGuess(ctx context.Context, c *connection.Client, cmd models.GuessCommand) {
	if cmd.Character == "" {
		return
	}

	h.mu.Lock()
	lobby, ok := h.currentLobby(c)
	if !ok {
		h.mu.Unlock()
		c.SendLogged(models.NewFailure(models.OutGuessFailed, reasonNotInLobby))
		return
	}
	if reason := turnCheck(lobby, c.UserID()); reason != "" {
		h.mu.Unlock()
		h.logger.Info("Guess rejected",
			zap.String("lobbyID", lobby.LobbyID), zap.String("userID", c.UserID()), zap.String("reason", reason))
		c.SendLogged(models.NewFailure(models.OutGuessFailed, reason))
		return
	}

	correct := lobby.GuessCharacter(c.UserID(), cmd.Character)
	lobby.SwitchTurn()
	view := lobby.Snapshot()

	var sessionID string
	var playerIDs []string
	if correct {
		// 同じセッションの勝者を二度記録しない
		sessionID, lobby.SessionID = lobby.SessionID, ""
		playerIDs = lobby.PlayerIDs()

		h.logger.Info("Correct guess", zap.String("lobbyID", lobby.LobbyID), zap.String("userID", c.UserID()))
		c.SendLogged(models.GuessResultMessage{
			Type:      models.OutCorrectGuess,
			Character: cmd.Character,
			UserID:    c.UserID(),
			Lobby:     &view,
		})
		h.Clients.BroadcastLobby(models.GuessResultMessage{
			Type:      models.OutPlayerScored,
			Character: cmd.Character,
			UserID:    c.UserID(),
			Lobby:     &view,
		}, lobby.LobbyID, c.UserID())
	} else {
		c.SendLogged(models.GuessResultMessage{Type: models.OutIncorrectGuess, Character: cmd.Character})
		broadcast.LobbyState(h.Clients, lobby, models.OutUpdateLobby, c.UserID())
	}
	h.mu.Unlock()

	if sessionID == "" {
		return
	}
	persistCtx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	if err := h.Sessions.CompleteSession(persistCtx, sessionID, c.UserID(), playerIDs); err != nil {
		h.logger.Error("Failed to record game result",
			zap.String("sessionID", sessionID), zap.String("winnerID", c.UserID()), zap.Error(err))
	}
}

func (h *Hub) handleEndTurn(c *connection.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	lobby, ok := h.currentLobby(c)
	if !ok {
		return
	}
	if reason := turnCheck(lobby, c.UserID()); reason != "" {
		h.logger.Debug("End turn ignored", zap.String("userID", c.UserID()), zap.String("reason", reason))
		return
	}
	lobby.SwitchTurn()
	broadcast.LobbyState(h.Clients, lobby, models.OutEndTurn, c.UserID())
}
