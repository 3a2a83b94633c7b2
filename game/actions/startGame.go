package actions

import (
	"context"

	"khawawish/game/broadcast"
	"khawawish/game/connection"
	"khawawish/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	reasonNotReady       = "Not all players are ready"
	reasonAlreadyStarted = "Game already started"
	reasonStarting       = "Game is already starting"
	reasonSessionFailed  = "Failed to create game session"
	reasonLobbyGone      = "Lobby no longer exists"
)

// startPlan はロックの外で永続化する間に持ち回る開始内容
type startPlan struct {
	lobby     *models.Lobby
	sessionID string
	seed      string
	images    []string
	firstTurn string
	isRematch bool
	config    map[string]any
}

// handleStartGame はゲーム(または再戦)を開始します。
// セッション記録の保存はロックを外して行い、成功した後にだけgame_startedを立てる。
func (h *Hub) handleStartGame(ctx context.Context, c *connection.Client, cmd models.StartGameCommand) {
	plan, ok := h.prepareStart(c, cmd.IsRematch)
	if !ok {
		return
	}

	persistCtx, cancel := context.WithTimeout(ctx, persistTimeout)
	_, err := h.Sessions.CreateSession(persistCtx, plan.sessionID, plan.lobby.LobbyID, plan.lobby.CreatorID, 2, plan.config)
	cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.commitStart(c, plan, err)
}

// prepareStart は前提条件を確認し、画像と先手を決めてStartingを立てます。
func (h *Hub) prepareStart(c *connection.Client, isRematch bool) (*startPlan, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fail := func(reason string) (*startPlan, bool) {
		h.logger.Info("Start rejected", zap.String("userID", c.UserID()), zap.String("reason", reason))
		c.SendLogged(models.NewFailure(models.OutStartFailed, reason))
		return nil, false
	}

	lobby, ok := h.currentLobby(c)
	if !ok {
		return fail(reasonLobbyNotFound)
	}
	// 開始前の再戦要求は通常の開始として扱う
	if !lobby.GameStarted {
		isRematch = false
	}
	switch {
	case lobby.CreatorID != c.UserID():
		return fail(reasonNotCreator)
	case lobby.Starting:
		return fail(reasonStarting)
	case lobby.GameStarted && !isRematch:
		return fail(reasonAlreadyStarted)
	case !lobby.AllPlayersReady():
		return fail(reasonNotReady)
	}

	draft := lobby.Clone()
	images := draft.GetImages(h.Catalog, isRematch)
	ids := draft.PlayerIDs()
	lobby.Starting = true

	return &startPlan{
		lobby:     lobby,
		sessionID: uuid.New().String(),
		seed:      draft.Seed,
		images:    images,
		firstTurn: ids[h.randGen.Intn(len(ids))],
		isRematch: isRematch,
		config: map[string]any{
			"lobby_name": lobby.Name,
			"max_images": lobby.MaxCharacters,
			"seed":       draft.Seed,
			"is_rematch": isRematch,
			"players":    ids,
		},
	}, true
}

// commitStart は永続化の結果を反映します。muを持って呼ぶこと。
func (h *Hub) commitStart(c *connection.Client, plan *startPlan, persistErr error) {
	lobby := plan.lobby
	lobby.Starting = false

	fail := func(reason string) {
		c.SendLogged(models.NewFailure(models.OutStartFailed, reason))
	}

	if current, ok := h.Lobbies.Get(lobby.LobbyID); !ok || current != lobby {
		h.logger.Info("Lobby vanished while starting", zap.String("lobbyID", lobby.LobbyID))
		fail(reasonLobbyGone)
		return
	}
	if persistErr != nil {
		h.logger.Error("Failed to create game session",
			zap.String("lobbyID", lobby.LobbyID), zap.String("sessionID", plan.sessionID), zap.Error(persistErr))
		fail(reasonSessionFailed)
		return
	}
	// 保存中に抜けたプレイヤーがいれば開始しない
	if !lobby.AllPlayersReady() {
		fail(reasonNotReady)
		return
	}

	lobby.Start(plan.seed, plan.sessionID, plan.firstTurn)

	msgType := models.OutGameStarted
	if plan.isRematch {
		msgType = models.OutRematchStarted
	}
	h.logger.Info("Game started",
		zap.String("lobbyID", lobby.LobbyID),
		zap.String("sessionID", plan.sessionID),
		zap.String("seed", plan.seed),
		zap.Int("images", len(plan.images)),
		zap.String("firstTurn", lobby.UserTurn),
		zap.Bool("rematch", plan.isRematch))

	view := lobby.Snapshot()
	h.Clients.BroadcastLobby(models.GameStartedMessage{
		Type:      msgType,
		Lobby:     &view,
		Images:    plan.images,
		SessionID: plan.sessionID,
		Seed:      plan.seed,
	}, lobby.LobbyID)

	if !plan.isRematch {
		broadcast.PublicLobbies(h.Clients, h.Lobbies)
	}
}
