package registry

import (
	"sort"
	"sync"
	"time"

	"khawawish/models"

	"github.com/google/uuid"
)

const lobbyIDLength = 8

// LobbyRegistry はロビーIDからロビーへの対応を保持します。
type LobbyRegistry struct {
	mu      sync.RWMutex
	lobbies map[string]*models.Lobby
	now     func() time.Time
}

func NewLobbyRegistry() *LobbyRegistry {
	return &LobbyRegistry{
		lobbies: make(map[string]*models.Lobby),
		now:     time.Now,
	}
}

// CreateLobby はownerを唯一の参加者とするロビーを作って登録します。
func (r *LobbyRegistry) CreateLobby(cfg models.LobbyConfig, owner models.Player) *models.Lobby {
	r.mu.Lock()
	defer r.mu.Unlock()

	lobbyID := r.newLobbyID()
	lobby := models.NewLobby(lobbyID, cfg, owner, r.now())
	r.lobbies[lobbyID] = lobby
	return lobby
}

// newLobbyID は使われていない8文字のIDを返す。呼び出し側でロックを持つこと。
func (r *LobbyRegistry) newLobbyID() string {
	for {
		id := uuid.New().String()[:lobbyIDLength]
		if _, exists := r.lobbies[id]; !exists {
			return id
		}
	}
}

func (r *LobbyRegistry) Get(lobbyID string) (*models.Lobby, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.lobbies[lobbyID]
	return l, ok
}

// DeleteIfEmpty は誰もいないロビーを削除します。削除した場合true。
func (r *LobbyRegistry) DeleteIfEmpty(lobbyID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lobbies[lobbyID]
	if !ok || !l.IsEmpty() {
		return false
	}
	delete(r.lobbies, lobbyID)
	return true
}

// PublicLobbies は非公開でも開始済みでもないロビーを作成順に返します。
func (r *LobbyRegistry) PublicLobbies() []models.LobbyView {
	r.mu.RLock()
	lobbies := make([]*models.Lobby, 0, len(r.lobbies))
	for _, l := range r.lobbies {
		if !l.IsPrivate && !l.GameStarted {
			lobbies = append(lobbies, l)
		}
	}
	r.mu.RUnlock()

	sort.Slice(lobbies, func(i, j int) bool {
		if lobbies[i].CreatedAt.Equal(lobbies[j].CreatedAt) {
			return lobbies[i].LobbyID < lobbies[j].LobbyID
		}
		return lobbies[i].CreatedAt.Before(lobbies[j].CreatedAt)
	})

	views := make([]models.LobbyView, 0, len(lobbies))
	for _, l := range lobbies {
		views = append(views, l.Snapshot())
	}
	return views
}

// SweepEmpty は空のロビーをまとめて削除し、削除したIDを返します。
func (r *LobbyRegistry) SweepEmpty() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, l := range r.lobbies {
		if l.IsEmpty() {
			delete(r.lobbies, id)
			removed = append(removed, id)
		}
	}
	return removed
}

func (r *LobbyRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lobbies)
}
