package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// クライアントから受信するメッセージの種類
const (
	MsgSign               = "sign"
	MsgCreateLobby        = "create_lobby"
	MsgJoinLobby          = "join_lobby"
	MsgReady              = "ready"
	MsgStartGame          = "start_game"
	MsgSelectOwnCharacter = "select_own_character"
	MsgGuess              = "guess"
	MsgEndTurn            = "end_turn"
	MsgKickPlayer         = "kick_player"
	MsgChatMessage        = "chat_message"
	MsgLeaveLobby         = "leave_lobby"
	MsgPong               = "pong"
)

// Command は受信メッセージ。typeごとに1つの構造体を持つ。
type Command interface {
	Kind() string
}

type SignCommand struct{}

type CreateLobbyCommand struct {
	LobbyName string
	MaxImages int
	Password  *string
	IsPrivate bool
	Seed      string
}

type JoinLobbyCommand struct {
	LobbyID  string  `json:"lobby_id"`
	Password *string `json:"password"`
}

// ReadyCommand のReadyがnilの場合は現在の状態を反転する
type ReadyCommand struct {
	Ready *bool `json:"ready"`
}

type StartGameCommand struct {
	IsRematch bool
}

type SelectCharacterCommand struct {
	Character string `json:"character"`
}

type GuessCommand struct {
	Character string `json:"character"`
}

type EndTurnCommand struct{}

type KickPlayerCommand struct {
	UserID string `json:"user_id"`
}

type ChatCommand struct {
	Message string `json:"message"`
}

type LeaveLobbyCommand struct {
	InResult bool `json:"in_result"`
}

type PongCommand struct{}

// UnknownCommand は解釈できなかったメッセージ
type UnknownCommand struct {
	Type string
}

func (SignCommand) Kind() string            { return MsgSign }
func (CreateLobbyCommand) Kind() string     { return MsgCreateLobby }
func (JoinLobbyCommand) Kind() string       { return MsgJoinLobby }
func (ReadyCommand) Kind() string           { return MsgReady }
func (StartGameCommand) Kind() string       { return MsgStartGame }
func (SelectCharacterCommand) Kind() string { return MsgSelectOwnCharacter }
func (GuessCommand) Kind() string           { return MsgGuess }
func (EndTurnCommand) Kind() string         { return MsgEndTurn }
func (KickPlayerCommand) Kind() string      { return MsgKickPlayer }
func (ChatCommand) Kind() string            { return MsgChatMessage }
func (LeaveLobbyCommand) Kind() string      { return MsgLeaveLobby }
func (PongCommand) Kind() string            { return MsgPong }
func (u UnknownCommand) Kind() string       { return u.Type }

// フロントエンドはcamelCase、APIドキュメントはsnake_caseなので両方受け付ける
type createLobbyWire struct {
	LobbyName      string          `json:"lobbyName"`
	LobbyNameSnake string          `json:"lobby_name"`
	MaxImages      *int            `json:"maxImages"`
	MaxImagesSnake *int            `json:"max_images"`
	Password       *string         `json:"password"`
	IsPrivate      *bool           `json:"isPrivate"`
	IsPrivateSnake *bool           `json:"is_private"`
	Seed           json.RawMessage `json:"seed"`
}

type startGameWire struct {
	IsRematch      *bool `json:"isRematch"`
	IsRematchSnake *bool `json:"is_rematch"`
}

// DecodeCommand は受信データをCommandに変換します。
// ペイロードが不正な場合はその種類のゼロ値とエラーを返す。JSONでなければUnknownCommand。
func DecodeCommand(data []byte) (Command, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return UnknownCommand{}, fmt.Errorf("invalid message envelope: %w", err)
	}

	switch envelope.Type {
	case MsgSign:
		return SignCommand{}, nil
	case MsgEndTurn:
		return EndTurnCommand{}, nil
	case MsgPong:
		return PongCommand{}, nil
	case MsgCreateLobby:
		var w createLobbyWire
		if err := json.Unmarshal(data, &w); err != nil {
			return CreateLobbyCommand{}, payloadError(envelope.Type, err)
		}
		cmd := CreateLobbyCommand{
			LobbyName: firstNonEmpty(w.LobbyName, w.LobbyNameSnake),
			Password:  w.Password,
			IsPrivate: boolOr(w.IsPrivate, w.IsPrivateSnake),
			Seed:      flexString(w.Seed),
		}
		if w.MaxImages != nil {
			cmd.MaxImages = *w.MaxImages
		} else if w.MaxImagesSnake != nil {
			cmd.MaxImages = *w.MaxImagesSnake
		}
		return cmd, nil
	case MsgStartGame:
		var w startGameWire
		if err := json.Unmarshal(data, &w); err != nil {
			return StartGameCommand{}, payloadError(envelope.Type, err)
		}
		return StartGameCommand{IsRematch: boolOr(w.IsRematch, w.IsRematchSnake)}, nil
	case MsgJoinLobby:
		var cmd JoinLobbyCommand
		return decodeInto(data, envelope.Type, &cmd)
	case MsgReady:
		var cmd ReadyCommand
		return decodeInto(data, envelope.Type, &cmd)
	case MsgSelectOwnCharacter:
		var cmd SelectCharacterCommand
		return decodeInto(data, envelope.Type, &cmd)
	case MsgGuess:
		var cmd GuessCommand
		return decodeInto(data, envelope.Type, &cmd)
	case MsgKickPlayer:
		var cmd KickPlayerCommand
		return decodeInto(data, envelope.Type, &cmd)
	case MsgChatMessage:
		var cmd ChatCommand
		return decodeInto(data, envelope.Type, &cmd)
	case MsgLeaveLobby:
		var cmd LeaveLobbyCommand
		return decodeInto(data, envelope.Type, &cmd)
	default:
		return UnknownCommand{Type: envelope.Type}, nil
	}
}

// decodeInto はcmdにデコードし、失敗した場合はゼロ値を返す
func decodeInto[T Command](data []byte, kind string, cmd *T) (Command, error) {
	if err := json.Unmarshal(data, cmd); err != nil {
		var zero T
		return zero, payloadError(kind, err)
	}
	return *cmd, nil
}

func payloadError(kind string, err error) error {
	return fmt.Errorf("invalid %s payload: %w", kind, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func boolOr(values ...*bool) bool {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return false
}

// flexString は文字列でも数値でも受け付ける
func flexString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}
