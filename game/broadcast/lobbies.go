package broadcast

import (
	"khawawish/game/registry"
	"khawawish/models"
)

// PublicLobbies は公開ロビー一覧(new_lobby)を全接続にブロードキャストします。
func PublicLobbies(clients *registry.ConnectionRegistry, lobbies *registry.LobbyRegistry, exclude ...string) int {
	views := lobbies.PublicLobbies()
	msg := models.PublicLobbiesMessage{
		Type:          models.OutNewLobby,
		PublicLobbies: views,
		Count:         len(views),
	}
	return clients.Broadcast(msg, exclude...)
}

// LobbyState はロビーのスナップショットをロビー内の接続にブロードキャストします。
// userIDはメッセージの対象となったユーザー（いなければ空文字）。
func LobbyState(clients *registry.ConnectionRegistry, l *models.Lobby, msgType, userID string, exclude ...string) int {
	return clients.BroadcastLobby(models.NewLobbyMessage(msgType, l, userID), l.LobbyID, exclude...)
}
