package game

import (
	"context"
	"errors"
	"net/http"
	"time"

	"khawawish/auth"
	"khawawish/game/actions"
	"khawawish/game/connection"
	"khawawish/game/database"
	"khawawish/models"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options は接続ごとの設定
type Options struct {
	JWTSecret         []byte
	HeartbeatInterval time.Duration
	ReadTimeout       time.Duration
	SendBufferSize    int
}

// OptionsFromConfig は設定ファイルの値から接続設定を作ります。
func OptionsFromConfig(config models.Config) Options {
	return Options{
		JWTSecret:         []byte(config.JWTSecret),
		HeartbeatInterval: time.Duration(config.HeartbeatIntervalSec) * time.Second,
		ReadTimeout:       time.Duration(config.ReadTimeoutSec) * time.Second,
		SendBufferSize:    config.SendBufferSize,
	}
}

// WebSocket接続へのアップグレードを行う関数
// ctxはサーバー全体のコンテキスト。接続が終わるまで戻らない。
func HandleConnections(ctx context.Context, w http.ResponseWriter, r *http.Request, hub *actions.Hub, rdb *redis.Client, opts Options, logger *zap.Logger, upgrader websocket.Upgrader) {
	// ユーザーコンテキストの取得
	clientContext, err := connection.FetchClientContext(ctx, r, opts.JWTSecret, rdb, logger)
	if err != nil {
		logger.Warn("Error fetching client context", zap.Error(err))
		if errors.Is(err, auth.ErrUnauthorized) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		} else {
			http.Error(w, "Failed to restore session", http.StatusInternalServerError)
		}
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeが失敗した場合は既にエラーレスポンスが書かれている
		logger.Error("Error upgrading WebSocket", zap.Error(err))
		return
	}

	client := connection.NewClient(conn, clientContext.Identity, opts.SendBufferSize, logger)
	logger.Info("New client connected",
		zap.String("userID", client.UserID()),
		zap.Bool("resumed", clientContext.Resumed))

	// 再接続用のセッションIDを発行して送る
	if rdb != nil {
		sessionID, err := database.GenerateAndStoreSessionID(ctx, client.Identity, rdb, logger)
		if err != nil {
			logger.Error("Failed to generate or store session ID", zap.Error(err))
		} else {
			client.SendLogged(models.SessionMessage{Type: models.OutSession, SessionID: sessionID, UserID: client.UserID()})
		}
	}

	Serve(ctx, hub, client, opts, logger)
}

// Serve はハートビートとメッセージ処理の2つのゴルーチンを動かします。
// 先に終わった方がもう一方をキャンセルし、両方の終了を待ってから後片付けをする。
func Serve(ctx context.Context, hub *actions.Hub, client *connection.Client, opts Options, logger *zap.Logger) {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 7 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}

	g, gctx := errgroup.WithContext(ctx)

	// 読み取り中のゴルーチンはデッドラインで起こす
	stop := context.AfterFunc(gctx, func() {
		client.Conn.SetReadDeadline(time.Now())
	})
	defer stop()

	g.Go(func() error {
		return connection.MaintainWebSocketConnection(gctx, client, opts.HeartbeatInterval, logger)
	})
	g.Go(func() error {
		return actions.HandleClient(gctx, hub, client, opts.ReadTimeout, logger)
	})

	err := g.Wait()
	logger.Info("Connection finished", zap.String("userID", client.UserID()), zap.NamedError("cause", err))

	hub.Disconnect(client)
}
