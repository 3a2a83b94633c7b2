package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"khawawish/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrClientClosed は切断済みのクライアントへ送信しようとした場合
	ErrClientClosed = errors.New("client closed")
	// ErrSendBufferFull は送信キューが溢れた場合。相手が読んでいない
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client は1本のWebSocket接続と、その接続に紐づくセッション状態です。
// ソケットへの書き込みはハートビートのゴルーチンだけが行い、
// それ以外はSendで送信キューに積むだけ。
type Client struct {
	Conn     *websocket.Conn
	Identity models.Identity

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger

	mu       sync.Mutex
	lobbyID  string
	signedIn bool
}

// NewClient はクライアントを作成します。connはテストではnilでもよい。
func NewClient(conn *websocket.Conn, identity models.Identity, bufferSize int, logger *zap.Logger) *Client {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Client{
		Conn:     conn,
		Identity: identity,
		send:     make(chan []byte, bufferSize),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

func (c *Client) UserID() string {
	return c.Identity.UserID
}

// LobbyID は現在参加しているロビーのID。参加していなければ空文字。
func (c *Client) LobbyID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lobbyID
}

func (c *Client) SetLobbyID(lobbyID string) {
	c.mu.Lock()
	c.lobbyID = lobbyID
	c.mu.Unlock()
}

func (c *Client) SignedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signedIn
}

func (c *Client) SetSignedIn(signedIn bool) {
	c.mu.Lock()
	c.signedIn = signedIn
	c.mu.Unlock()
}

// Send はメッセージをJSONにして送信キューに積みます。
func (c *Client) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}
	return c.SendRaw(data)
}

// SendRaw はエンコード済みのメッセージを送信キューに積みます。ブロックしない。
func (c *Client) SendRaw(data []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SendLogged はSendの失敗をログに残して握りつぶします。
func (c *Client) SendLogged(v any) {
	if err := c.Send(v); err != nil && c.logger != nil {
		c.logger.Warn("Failed to deliver message", zap.String("userID", c.UserID()), zap.Error(err))
	}
}

// Outbound は送信待ちのメッセージ
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Done は Close の後に閉じられる
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close は接続を閉じます。何度呼んでもよい。
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}
