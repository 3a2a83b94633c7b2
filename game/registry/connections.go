package registry

import (
	"encoding/json"
	"sync"

	"khawawish/game/connection"

	"go.uber.org/zap"
)

// ConnectionRegistry はユーザーIDごとの接続を保持します。
// 同じユーザーが再接続した場合は後から来た接続で上書きする。
type ConnectionRegistry struct {
	mu      sync.RWMutex
	clients map[string]*connection.Client
	logger  *zap.Logger
}

func NewConnectionRegistry(logger *zap.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		clients: make(map[string]*connection.Client),
		logger:  logger,
	}
}

// Add は接続を登録します。古い接続は閉じない。
func (r *ConnectionRegistry) Add(userID string, c *connection.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[userID]; ok {
		r.logger.Info("Replacing existing connection", zap.String("userID", userID))
	}
	r.clients[userID] = c
}

func (r *ConnectionRegistry) Remove(userID string) {
	r.mu.Lock()
	delete(r.clients, userID)
	r.mu.Unlock()
}

// RemoveIf は登録されている接続がcの場合だけ削除します。
func (r *ConnectionRegistry) RemoveIf(userID string, c *connection.Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clients[userID] != c {
		return false
	}
	delete(r.clients, userID)
	return true
}

func (r *ConnectionRegistry) Get(userID string) (*connection.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[userID]
	return c, ok
}

func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Broadcast は全接続にメッセージを送ります。excludeのユーザーは除く。
// 届けられた数を返す。送信失敗はログに残して続行する。
func (r *ConnectionRegistry) Broadcast(msg any, exclude ...string) int {
	return r.deliver(msg, func(*connection.Client) bool { return true }, exclude)
}

// BroadcastLobby はlobbyIDに参加している接続にだけメッセージを送ります。
func (r *ConnectionRegistry) BroadcastLobby(msg any, lobbyID string, exclude ...string) int {
	if lobbyID == "" {
		return 0
	}
	return r.deliver(msg, func(c *connection.Client) bool { return c.LobbyID() == lobbyID }, exclude)
}

func (r *ConnectionRegistry) deliver(msg any, match func(*connection.Client) bool, exclude []string) int {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return 0
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	r.mu.RLock()
	targets := make([]*connection.Client, 0, len(r.clients))
	for userID, c := range r.clients {
		if _, ok := skip[userID]; ok {
			continue
		}
		if match(c) {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if err := c.SendRaw(data); err != nil {
			r.logger.Warn("Failed to broadcast message", zap.String("to", c.UserID()), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}
