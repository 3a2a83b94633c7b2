package models

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// LobbyState はロビーのフラグから導出される状態
type LobbyState string

const (
	StateForming   LobbyState = "forming"   // 未開始、人数不足または未準備のプレイヤーあり
	StateReady     LobbyState = "ready"     // 未開始、全員準備完了
	StateSelecting LobbyState = "selecting" // 開始済み、キャラクター未選択のプレイヤーあり
	StatePlaying   LobbyState = "playing"   // 開始済み、全員選択済み
	StateEnded     LobbyState = "ended"     // 誰もいない。レジストリから削除される
)

const (
	DefaultMaxCharacters = 12
	MaxMaxCharacters     = 100
	seedLimit            = 1_000_000_000
)

// Player はロビー内のプレイヤーの状態
type Player struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	IsReady     bool   `json:"is_ready"`
	Character   string `json:"-"` // 秘密のキャラクター。他のプレイヤーには送らない
}

// NewPlayer は身元情報から未準備のプレイヤーを作ります。
func NewPlayer(id Identity) Player {
	return Player{UserID: id.UserID, Username: id.Username, DisplayName: id.DisplayName}
}

// ImageSampler はシードから決定的にキャラクター画像を選ぶカタログ
type ImageSampler interface {
	Sample(seed string, count int) []string
}

// LobbyConfig はロビー作成時の設定
type LobbyConfig struct {
	Name          string
	MaxCharacters int
	Seed          string
	Password      *string
	IsPrivate     bool
}

// Lobby は2人用のゲームルーム
type Lobby struct {
	LobbyID       string
	Name          string
	MaxCharacters int
	Seed          string
	Owner         *Player
	SecondPlayer  *Player
	Password      *string
	CreatorID     string // 作成時に固定。開始とキックの権限を持つ
	IsPrivate     bool
	GameStarted   bool
	UserTurn      string
	CreatedAt     time.Time

	// 一時的な状態
	SessionID          string
	Starting           bool
	selectionAnnounced bool
}

// NewLobby はownerを唯一の参加者としてロビーを作成します。
func NewLobby(lobbyID string, cfg LobbyConfig, owner Player, now time.Time) *Lobby {
	maxCharacters := cfg.MaxCharacters
	if maxCharacters <= 0 {
		maxCharacters = DefaultMaxCharacters
	}
	if maxCharacters > MaxMaxCharacters {
		maxCharacters = MaxMaxCharacters
	}
	seed := cfg.Seed
	if seed == "" {
		seed = NewSeed("")
	}
	name := cfg.Name
	if name == "" {
		name = owner.DisplayName + "'s lobby"
	}
	password := cfg.Password
	if password != nil && *password == "" {
		password = nil
	}
	owner.IsReady = false
	owner.Character = ""
	return &Lobby{
		LobbyID:       lobbyID,
		Name:          name,
		MaxCharacters: maxCharacters,
		Seed:          seed,
		Owner:         &owner,
		Password:      password,
		CreatorID:     owner.UserID,
		IsPrivate:     cfg.IsPrivate,
		CreatedAt:     now.UTC(),
	}
}

// AddSecondPlayer は2人目の席を埋めます。既に埋まっていれば何もしない。
func (l *Lobby) AddSecondPlayer(userID, username, displayName string) bool {
	if l.SecondPlayer != nil {
		return false
	}
	l.SecondPlayer = &Player{UserID: userID, Username: username, DisplayName: displayName}
	return true
}

// RemovePlayer はプレイヤーを席から外します。
// オーナーが抜けて2人目がいる場合は2人目をオーナーに昇格させる。CreatorIDは変更しない。
func (l *Lobby) RemovePlayer(userID string) bool {
	switch {
	case l.Owner != nil && l.Owner.UserID == userID:
		l.Owner = l.SecondPlayer
		l.SecondPlayer = nil
	case l.SecondPlayer != nil && l.SecondPlayer.UserID == userID:
		l.SecondPlayer = nil
	default:
		return false
	}

	// ターンは常に残っているプレイヤーを指す
	if l.UserTurn == userID {
		l.UserTurn = ""
		if l.GameStarted && l.Owner != nil {
			l.UserTurn = l.Owner.UserID
		}
	}
	return true
}

// Player は指定ユーザーが座っている席を返します。
func (l *Lobby) Player(userID string) *Player {
	if l.Owner != nil && l.Owner.UserID == userID {
		return l.Owner
	}
	if l.SecondPlayer != nil && l.SecondPlayer.UserID == userID {
		return l.SecondPlayer
	}
	return nil
}

// Opponent は指定ユーザーではない方の席を返します。
func (l *Lobby) Opponent(userID string) *Player {
	switch {
	case l.Owner != nil && l.Owner.UserID == userID:
		return l.SecondPlayer
	case l.SecondPlayer != nil && l.SecondPlayer.UserID == userID:
		return l.Owner
	}
	return nil
}

func (l *Lobby) HasPlayer(userID string) bool {
	return l.Player(userID) != nil
}

func (l *Lobby) players() []*Player {
	ps := make([]*Player, 0, 2)
	if l.Owner != nil {
		ps = append(ps, l.Owner)
	}
	if l.SecondPlayer != nil {
		ps = append(ps, l.SecondPlayer)
	}
	return ps
}

// PlayerIDs は参加中のユーザーIDを席順で返します。
func (l *Lobby) PlayerIDs() []string {
	ids := make([]string, 0, 2)
	for _, p := range l.players() {
		ids = append(ids, p.UserID)
	}
	return ids
}

func (l *Lobby) PlayerCount() int {
	return len(l.players())
}

func (l *Lobby) IsEmpty() bool {
	return l.Owner == nil && l.SecondPlayer == nil
}

// SetPlayerReady は該当する席の準備フラグを設定します。
func (l *Lobby) SetPlayerReady(userID string, ready bool) bool {
	p := l.Player(userID)
	if p == nil {
		return false
	}
	p.IsReady = ready
	return true
}

// AllPlayersReady は1人以上が座っていて全員準備完了ならtrue
func (l *Lobby) AllPlayersReady() bool {
	ps := l.players()
	if len(ps) == 0 {
		return false
	}
	for _, p := range ps {
		if !p.IsReady {
			return false
		}
	}
	return true
}

// SetPlayerCharacter は秘密のキャラクターを記録します。
// リセットされるまで一度しか書き込めない。
func (l *Lobby) SetPlayerCharacter(userID, character string) bool {
	p := l.Player(userID)
	if p == nil || character == "" || p.Character != "" {
		return false
	}
	p.Character = character
	return true
}

// AllPlayersSelected は1人以上が座っていて全員がキャラクターを選んでいればtrue
func (l *Lobby) AllPlayersSelected() bool {
	ps := l.players()
	if len(ps) == 0 {
		return false
	}
	for _, p := range ps {
		if p.Character == "" {
			return false
		}
	}
	return true
}

// AnnounceSelection は今のラウンドで初めて全員が選び終えた時だけtrueを返します。
func (l *Lobby) AnnounceSelection() bool {
	if l.selectionAnnounced || !l.AllPlayersSelected() {
		return false
	}
	l.selectionAnnounced = true
	return true
}

// GuessCharacter は相手の秘密のキャラクターと比較します。ターンは変更しない。
func (l *Lobby) GuessCharacter(userID, character string) bool {
	opponent := l.Opponent(userID)
	if opponent == nil || opponent.Character == "" {
		return false
	}
	return opponent.Character == character
}

// SwitchTurn はオーナーと2人目の間でターンを入れ替えます。
func (l *Lobby) SwitchTurn() {
	if l.Owner == nil || l.SecondPlayer == nil {
		return
	}
	if l.UserTurn == l.Owner.UserID {
		l.UserTurn = l.SecondPlayer.UserID
	} else {
		l.UserTurn = l.Owner.UserID
	}
}

// GetImages はシードを使ってカタログから決定的に画像を選びます。
// 再戦の場合は先にシードを作り直し、両プレイヤーの選択をクリアする。
func (l *Lobby) GetImages(catalog ImageSampler, isRematch bool) []string {
	if isRematch {
		l.Seed = NewSeed(l.Seed)
		l.clearSelections()
	}
	return catalog.Sample(l.Seed, l.MaxCharacters)
}

func (l *Lobby) clearSelections() {
	for _, p := range l.players() {
		p.Character = ""
	}
	l.selectionAnnounced = false
}

// Start は永続化が成功した後にゲーム開始を確定させます。
// seedはGetImagesで使ったもの、firstTurnは先手のユーザーID。
// 開始前の選択は持ち越さない。
func (l *Lobby) Start(seed, sessionID, firstTurn string) {
	l.clearSelections()
	l.Seed = seed
	l.SessionID = sessionID
	l.GameStarted = true
	l.Starting = false
	l.selectionAnnounced = false
	if l.HasPlayer(firstTurn) {
		l.UserTurn = firstTurn
	} else if l.Owner != nil {
		l.UserTurn = l.Owner.UserID
	}
}

// ResetRound は進行中のゲームを打ち切り、開始前の状態に戻します。
// 対戦相手がいなくなった時に使う。
func (l *Lobby) ResetRound() {
	l.clearSelections()
	l.GameStarted = false
	l.UserTurn = ""
	l.SessionID = ""
	for _, p := range l.players() {
		p.IsReady = false
	}
}

// State はフラグから現在の状態を導出します。
func (l *Lobby) State() LobbyState {
	switch {
	case l.IsEmpty():
		return StateEnded
	case !l.GameStarted && l.AllPlayersReady():
		return StateReady
	case !l.GameStarted:
		return StateForming
	case l.AllPlayersSelected():
		return StatePlaying
	default:
		return StateSelecting
	}
}

// CheckPassword はパスワード付きロビーへの参加を検証します。
func (l *Lobby) CheckPassword(password *string) bool {
	if l.Password == nil {
		return true
	}
	return password != nil && *password == *l.Password
}

// Clone は開始処理の下書き用に複製を作ります。
func (l *Lobby) Clone() *Lobby {
	cp := *l
	if l.Owner != nil {
		owner := *l.Owner
		cp.Owner = &owner
	}
	if l.SecondPlayer != nil {
		second := *l.SecondPlayer
		cp.SecondPlayer = &second
	}
	if l.Password != nil {
		pw := *l.Password
		cp.Password = &pw
	}
	return &cp
}

// PlayerView はクライアントに見せるプレイヤー情報（秘密のキャラクターは含めない）
type PlayerView struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	IsReady     bool   `json:"is_ready"`
}

// LobbyView はロビーのシリアライズ形式
type LobbyView struct {
	LobbyID      string      `json:"lobby_id"`
	LobbyName    string      `json:"lobby_name"`
	MaxImages    int         `json:"max_images"`
	Seed         string      `json:"seed"`
	Owner        *PlayerView `json:"owner"`
	SecondPlayer *PlayerView `json:"second_player"`
	HasPassword  bool        `json:"has_password"`
	IsPrivate    bool        `json:"is_private"`
	CreatorID    string      `json:"creator_id"`
	CreatedAt    string      `json:"created_at"`
	GameStarted  bool        `json:"game_started"`
	UserTurn     string      `json:"user_turn"`
	PlayerCount  int         `json:"player_count"`
}

func viewOf(p *Player) *PlayerView {
	if p == nil {
		return nil
	}
	return &PlayerView{UserID: p.UserID, Username: p.Username, DisplayName: p.DisplayName, IsReady: p.IsReady}
}

// Snapshot は現在のロビーを配信用に変換します。
func (l *Lobby) Snapshot() LobbyView {
	return LobbyView{
		LobbyID:      l.LobbyID,
		LobbyName:    l.Name,
		MaxImages:    l.MaxCharacters,
		Seed:         l.Seed,
		Owner:        viewOf(l.Owner),
		SecondPlayer: viewOf(l.SecondPlayer),
		HasPassword:  l.Password != nil,
		IsPrivate:    l.IsPrivate,
		CreatorID:    l.CreatorID,
		CreatedAt:    l.CreatedAt.Format(time.RFC3339),
		GameStarted:  l.GameStarted,
		UserTurn:     l.UserTurn,
		PlayerCount:  l.PlayerCount(),
	}
}

// NewSeed はprevと異なる新しいシードを生成します。
func NewSeed(prev string) string {
	for {
		id := uuid.New()
		seed := strconv.FormatUint(binary.BigEndian.Uint64(id[:8])%seedLimit, 10)
		if seed != prev {
			return seed
		}
	}
}
