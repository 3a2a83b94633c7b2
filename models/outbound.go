package models

// クライアントへ送信するメッセージの種類
const (
	OutPing                = "ping"
	OutSession             = "session"
	OutLobbyCreated        = "lobby_created"
	OutNewLobby            = "new_lobby"
	OutJoinFailed          = "join_failed"
	OutPlayerJoined        = "player_joined"
	OutLobbyJoined         = "lobby_joined"
	OutPlayerReadyChanged  = "player_ready_changed"
	OutStartFailed         = "start_failed"
	OutGameStarted         = "game_started"
	OutRematchStarted      = "rematch_started"
	OutSelectionComplete   = "selection_complete"
	OutCorrectGuess        = "correct_guess"
	OutIncorrectGuess      = "incorrect_guess"
	OutPlayerScored        = "player_scored"
	OutUpdateLobby         = "update_lobby"
	OutEndTurn             = "end_turn"
	OutPlayerKicked        = "player_kicked"
	OutKicked              = "kicked"
	OutChatMessage         = "chat_message"
	OutPlayerLeft          = "player_left"
	OutPlayerLeftInResults = "player_left_in_results"
	OutKickFailed          = "kick_failed"
	OutChatFailed          = "chat_failed"
	OutGuessFailed         = "guess_failed"
)

// PingMessage はハートビート
type PingMessage struct {
	Type string `json:"type"`
}

// SessionMessage は再接続用のセッションIDを通知する
type SessionMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// LobbyMessage はロビーのスナップショットを伴う汎用メッセージ
type LobbyMessage struct {
	Type   string     `json:"type"`
	Lobby  *LobbyView `json:"lobby"`
	UserID string     `json:"user_id,omitempty"`
}

// FailureMessage は *_failed 応答
type FailureMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// PublicLobbiesMessage は公開ロビー一覧の更新
type PublicLobbiesMessage struct {
	Type          string      `json:"type"`
	PublicLobbies []LobbyView `json:"public_lobbies"`
	Count         int         `json:"count"`
}

type ReadyChangedMessage struct {
	Type     string     `json:"type"`
	Lobby    *LobbyView `json:"lobby"`
	UserID   string     `json:"user_id"`
	IsReady  bool       `json:"is_ready"`
	AllReady bool       `json:"all_ready"`
}

// GameStartedMessage は game_started と rematch_started に使う
type GameStartedMessage struct {
	Type      string     `json:"type"`
	Lobby     *LobbyView `json:"lobby"`
	Images    []string   `json:"images"`
	SessionID string     `json:"session_id"`
	Seed      string     `json:"seed"`
}

type GuessResultMessage struct {
	Type      string     `json:"type"`
	Character string     `json:"character"`
	UserID    string     `json:"user_id,omitempty"`
	Lobby     *LobbyView `json:"lobby,omitempty"`
}

type KickedMessage struct {
	Type    string `json:"type"`
	LobbyID string `json:"lobby_id"`
}

type ChatMessage struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	From        string `json:"from"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Timestamp   string `json:"timestamp"`
}

// NewLobbyMessage はスナップショットを取ってLobbyMessageを作る
func NewLobbyMessage(msgType string, l *Lobby, userID string) LobbyMessage {
	view := l.Snapshot()
	return LobbyMessage{Type: msgType, Lobby: &view, UserID: userID}
}

func NewFailure(msgType, reason string) FailureMessage {
	return FailureMessage{Type: msgType, Reason: reason}
}
