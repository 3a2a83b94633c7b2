package actions

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"khawawish/game/broadcast"
	"khawawish/game/connection"
	"khawawish/game/registry"
	"khawawish/models"

	"go.uber.org/zap"
)

// persistTimeout はセッション記録の保存を待つ上限
const persistTimeout = 5 * time.Second

// SessionStore はゲームセッションを永続化する外部ストア
type SessionStore interface {
	CreateSession(ctx context.Context, sessionID, lobbyID, creatorID string, maxPlayers int, config map[string]any) (*models.GameSession, error)
	CompleteSession(ctx context.Context, sessionID, winnerID string, playerIDs []string) error
}

// Hub はロビーと接続のレジストリを持ち、受信したコマンドを実行します。
// ロビーとレジストリの変更はすべてmuの中で行う。
// ソケットへの書き込みはキューに積むだけなので、ロック中に送信してもブロックしない。
type Hub struct {
	mu       sync.Mutex
	Lobbies  *registry.LobbyRegistry
	Clients  *registry.ConnectionRegistry
	Sessions SessionStore
	Catalog  models.ImageSampler

	randGen *rand.Rand // 先手の決定に使う。muで保護
	logger  *zap.Logger
}

func NewHub(sessions SessionStore, catalog models.ImageSampler, logger *zap.Logger) *Hub {
	return &Hub{
		Lobbies:  registry.NewLobbyRegistry(),
		Clients:  registry.NewConnectionRegistry(logger),
		Sessions: sessions,
		Catalog:  catalog,
		randGen:  rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   logger,
	}
}

// Dispatch は1つのコマンドを実行します。どのコマンドも接続を終了させない。
func (h *Hub) Dispatch(ctx context.Context, c *connection.Client, cmd models.Command) {
	switch cmd := cmd.(type) {
	case models.SignCommand:
		h.handleSign(c)
	case models.CreateLobbyCommand:
		h.handleCreateLobby(c, cmd)
	case models.JoinLobbyCommand:
		h.handleJoinLobby(c, cmd)
	case models.ReadyCommand:
		h.handleReady(c, cmd)
	case models.StartGameCommand:
		h.handleStartGame(ctx, c, cmd)
	case models.SelectCharacterCommand:
		h.handleSelectCharacter(c, cmd)
	case models.GuessCommand:
		h.handleGuess(ctx, c, cmd)
	case models.EndTurnCommand:
		h.handleEndTurn(c)
	case models.KickPlayerCommand:
		h.handleKickPlayer(c, cmd)
	case models.ChatCommand:
		h.handleChatMessage(c, cmd)
	case models.LeaveLobbyCommand:
		h.handleLeaveLobby(c, cmd)
	case models.PongCommand:
		// ハートビートの応答。読み取りデッドラインは受信のたびに延長される
	default:
		h.logger.Info("Received unknown message type",
			zap.String("type", cmd.Kind()), zap.String("userID", c.UserID()))
	}
}

// PublicLobbies は公開ロビー一覧を返します。
func (h *Hub) PublicLobbies() []models.LobbyView {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Lobbies.PublicLobbies()
}

// Lobby はロビーのスナップショットを返します。
func (h *Hub) Lobby(lobbyID string) (models.LobbyView, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.Lobbies.Get(lobbyID)
	if !ok {
		return models.LobbyView{}, false
	}
	return l.Snapshot(), true
}

// SweepEmptyLobbies は空のロビーを削除し、削除した数を返します。
func (h *Hub) SweepEmptyLobbies() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := h.Lobbies.SweepEmpty()
	if len(removed) > 0 {
		h.logger.Info("Swept empty lobbies", zap.Strings("lobbyIDs", removed))
		broadcast.PublicLobbies(h.Clients, h.Lobbies)
	}
	return len(removed)
}

// register は接続がまだ登録されていなければ登録する。muを持って呼ぶこと。
func (h *Hub) register(c *connection.Client) {
	if current, ok := h.Clients.Get(c.UserID()); ok && current == c {
		return
	}
	h.Clients.Add(c.UserID(), c)
	c.SetSignedIn(true)
	h.logger.Info("Client registered", zap.String("userID", c.UserID()))
}

// currentLobby は接続が参加しているロビーを返す。muを持って呼ぶこと。
func (h *Hub) currentLobby(c *connection.Client) (*models.Lobby, bool) {
	lobbyID := c.LobbyID()
	if lobbyID == "" {
		return nil, false
	}
	return h.Lobbies.Get(lobbyID)
}

func (h *Hub) handleSign(c *connection.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.register(c)
}
