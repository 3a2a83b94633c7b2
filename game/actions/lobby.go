package actions

import (
	"khawawish/game/broadcast"
	"khawawish/game/connection"
	"khawawish/models"

	"go.uber.org/zap"
)

// 参加失敗の理由
const (
	reasonLobbyNotFound    = "Lobby not found"
	reasonGameStarted      = "Game already started"
	reasonIncorrectPass    = "Incorrect password"
	reasonLobbyFull        = "Lobby is full"
	reasonNotCreator       = "Only the lobby creator can do that"
	reasonCannotKickSelf   = "You cannot kick yourself"
	reasonPlayerNotInLobby = "Player is not in the lobby"
)

func (h *Hub) handleCreateLobby(c *connection.Client, cmd models.CreateLobbyCommand) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.register(c)
	h.leaveCurrentLobby(c, models.OutPlayerLeft)

	lobby := h.Lobbies.CreateLobby(models.LobbyConfig{
		Name:          cmd.LobbyName,
		MaxCharacters: cmd.MaxImages,
		Seed:          cmd.Seed,
		Password:      cmd.Password,
		IsPrivate:     cmd.IsPrivate,
	}, models.NewPlayer(c.Identity))
	c.SetLobbyID(lobby.LobbyID)

	h.logger.Info("Lobby created",
		zap.String("lobbyID", lobby.LobbyID),
		zap.String("userID", c.UserID()),
		zap.Int("maxImages", lobby.MaxCharacters),
		zap.Bool("private", lobby.IsPrivate))

	c.SendLogged(models.NewLobbyMessage(models.OutLobbyCreated, lobby, c.UserID()))
	broadcast.PublicLobbies(h.Clients, h.Lobbies)
}

func (h *Hub) handleJoinLobby(c *connection.Client, cmd models.JoinLobbyCommand) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.register(c)

	lobby, ok := h.Lobbies.Get(cmd.LobbyID)
	if !ok {
		c.SendLogged(models.NewFailure(models.OutJoinFailed, reasonLobbyNotFound))
		return
	}

	// 既に座っているロビーへの参加は現在の状態を返すだけ
	if lobby.HasPlayer(c.UserID()) {
		c.SetLobbyID(lobby.LobbyID)
		c.SendLogged(models.NewLobbyMessage(models.OutLobbyJoined, lobby, c.UserID()))
		return
	}

	var reason string
	switch {
	case lobby.GameStarted:
		reason = reasonGameStarted
	case !lobby.CheckPassword(cmd.Password):
		reason = reasonIncorrectPass
	case lobby.SecondPlayer != nil:
		reason = reasonLobbyFull
	}
	if reason != "" {
		h.logger.Info("Join rejected",
			zap.String("lobbyID", lobby.LobbyID), zap.String("userID", c.UserID()), zap.String("reason", reason))
		c.SendLogged(models.NewFailure(models.OutJoinFailed, reason))
		return
	}

	h.leaveCurrentLobby(c, models.OutPlayerLeft)
	if !lobby.AddSecondPlayer(c.Identity.UserID, c.Identity.Username, c.Identity.DisplayName) {
		c.SendLogged(models.NewFailure(models.OutJoinFailed, reasonLobbyFull))
		return
	}
	c.SetLobbyID(lobby.LobbyID)

	h.logger.Info("Player joined lobby", zap.String("lobbyID", lobby.LobbyID), zap.String("userID", c.UserID()))

	broadcast.LobbyState(h.Clients, lobby, models.OutPlayerJoined, c.UserID(), c.UserID())
	c.SendLogged(models.NewLobbyMessage(models.OutLobbyJoined, lobby, c.UserID()))
	broadcast.PublicLobbies(h.Clients, h.Lobbies)
}

func (h *Hub) handleLeaveLobby(c *connection.Client, cmd models.LeaveLobbyCommand) {
	h.mu.Lock()
	defer h.mu.Unlock()

	lobby, ok := h.currentLobby(c)
	if !ok || !lobby.HasPlayer(c.UserID()) {
		c.SetLobbyID("")
		h.logger.Info("Leave ignored, not in a lobby", zap.String("userID", c.UserID()))
		return
	}

	h.logger.Info("Player left lobby",
		zap.String("lobbyID", lobby.LobbyID), zap.String("userID", c.UserID()), zap.Bool("inResult", cmd.InResult))
	h.leaveCurrentLobby(c, models.OutPlayerLeftInResults)
	broadcast.PublicLobbies(h.Clients, h.Lobbies)
}

func (h *Hub) handleKickPlayer(c *connection.Client, cmd models.KickPlayerCommand) {
	h.mu.Lock()
	defer h.mu.Unlock()

	lobby, ok := h.currentLobby(c)
	if !ok {
		c.SendLogged(models.NewFailure(models.OutKickFailed, reasonLobbyNotFound))
		return
	}

	var reason string
	switch {
	case lobby.CreatorID != c.UserID():
		reason = reasonNotCreator
	case cmd.UserID == c.UserID():
		reason = reasonCannotKickSelf
	case lobby.SecondPlayer == nil || lobby.SecondPlayer.UserID != cmd.UserID:
		reason = reasonPlayerNotInLobby
	}
	if reason != "" {
		c.SendLogged(models.NewFailure(models.OutKickFailed, reason))
		return
	}

	lobby.RemovePlayer(cmd.UserID)
	h.abandonRound(lobby)
	h.logger.Info("Player kicked", zap.String("lobbyID", lobby.LobbyID), zap.String("userID", cmd.UserID))

	if target, ok := h.Clients.Get(cmd.UserID); ok && target.LobbyID() == lobby.LobbyID {
		target.SetLobbyID("")
		target.SendLogged(models.KickedMessage{Type: models.OutKicked, LobbyID: lobby.LobbyID})
	}
	broadcast.LobbyState(h.Clients, lobby, models.OutPlayerKicked, cmd.UserID)
	broadcast.PublicLobbies(h.Clients, h.Lobbies)
}

// leaveCurrentLobby は接続を現在のロビーから外し、残ったプレイヤーにnoticeを送ります。
// 空になったロビーは削除する。muを持って呼ぶこと。
func (h *Hub) leaveCurrentLobby(c *connection.Client, notice string) {
	lobby, ok := h.currentLobby(c)
	c.SetLobbyID("")
	if !ok {
		return
	}
	if !lobby.RemovePlayer(c.UserID()) {
		return
	}
	if h.Lobbies.DeleteIfEmpty(lobby.LobbyID) {
		h.logger.Info("Lobby deleted", zap.String("lobbyID", lobby.LobbyID))
		return
	}
	h.abandonRound(lobby)
	broadcast.LobbyState(h.Clients, lobby, notice, c.UserID(), c.UserID())
}

// abandonRound は相手がいなくなった進行中のゲームを開始前に戻す。
// 残ったプレイヤーのロビーは再び公開一覧に載り、参加を受け付ける。
func (h *Hub) abandonRound(lobby *models.Lobby) {
	if !lobby.GameStarted {
		return
	}
	h.logger.Info("Game abandoned", zap.String("lobbyID", lobby.LobbyID), zap.String("sessionID", lobby.SessionID))
	lobby.ResetRound()
}
