package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"khawawish/catalog"
	"khawawish/database"
	"khawawish/game"
	"khawawish/game/actions"
	"khawawish/handlers"
	"khawawish/middlewares"
	"khawawish/migrations"
	"khawawish/models"
	"khawawish/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func main() {
	// .envが無くてもよい
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "khawawish",
		Usage: "guess-the-character game server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config.json",
				Usage:   "path to the JSON config file",
				Sources: cli.EnvVars("CONFIG_FILE"),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable development logging",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP and WebSocket server",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "create or update the database tables",
				Action: migrate,
			},
		},
	}
}

// setup は設定とロガーを読み込む
func setup(cmd *cli.Command) (models.Config, *zap.Logger, error) {
	logger, err := utils.InitLogger(cmd.Bool("debug")) // ロガーの初期化
	if err != nil {
		return models.Config{}, nil, err
	}
	config, err := database.LoadConfig(cmd.String("config"))
	if err != nil {
		logger.Error("設定ファイルの読み込みに失敗しました", zap.Error(err))
		return models.Config{}, nil, err
	}
	return config, logger, nil
}

func migrate(ctx context.Context, cmd *cli.Command) error {
	config, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := database.InitPostgreSQL(config, logger)
	if err != nil {
		return err
	}
	return migrations.Run(db.WithContext(ctx), logger)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	config, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() // ロガーのクリーンアップ

	// PostgreSQLとRedisを並行して初期化
	var db *gorm.DB
	var rdb *redis.Client
	var g errgroup.Group
	g.Go(func() error {
		var err error
		db, err = database.InitPostgreSQL(config, logger)
		return err
	})
	g.Go(func() error {
		var err error
		rdb, err = database.InitRedis(ctx, config, logger)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("初期化に失敗しました", zap.Error(err))
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	cat, err := catalog.Load(config.ImagesDir)
	if err != nil {
		logger.Warn("Character catalog unavailable, games will have no images", zap.Error(err))
		cat = catalog.New(nil)
	}
	logger.Info("Character catalog loaded", zap.Int("characters", cat.Len()))

	sessions := database.NewSessionRepository(db)
	hub := actions.NewHub(sessions, cat, logger)

	// クーロンスケジューラのセットアップ
	cron, err := utils.CronCleaner(sessions, hub, logger)
	if err != nil {
		return err
	}
	defer cron.Stop()

	router := newRouter(ctx, config, hub, cat, db, rdb, logger)
	srv := &http.Server{
		Addr:    ":" + config.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(ctx context.Context, config models.Config, hub *actions.Hub, cat *catalog.Catalog, db *gorm.DB, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	//リクエストロガーを起動
	router.Use(gin.Recovery(), utils.RequestLogger(logger))

	//CORS（Cross-Origin Resource Sharing）ポリシーを設定
	allowAll := len(config.AllowedOrigins) == 0 || slices.Contains(config.AllowedOrigins, "*")
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !allowAll,
		MaxAge:           12 * time.Hour,
	}
	if allowAll {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = config.AllowedOrigins
	}
	router.Use(cors.New(corsConfig))

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || slices.Contains(config.AllowedOrigins, origin)
		},
	}
	opts := game.OptionsFromConfig(config)
	secret := []byte(config.JWTSecret)

	authHandler := &handlers.AuthHandler{
		Users:    database.NewUserRepository(db),
		Secret:   secret,
		TokenTTL: time.Duration(config.TokenTTLHours) * time.Hour,
		Logger:   logger,
	}
	lobbyHandler := &handlers.LobbyHandler{Hub: hub, Catalog: cat, PublicURL: config.PublicURL, Logger: logger}

	//各HTTPリクエストのルーティング
	api := router.Group("/api")
	api.GET("/ws/game", func(c *gin.Context) {
		game.HandleConnections(ctx, c.Writer, c.Request, hub, rdb, opts, logger, upgrader)
	})
	api.GET("/lobbies", lobbyHandler.ListLobbies)
	api.GET("/lobbies/:lobbyID/qr", lobbyHandler.LobbyQR)
	api.GET("/images", lobbyHandler.Images)
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/auth/me", middlewares.AuthMiddleware(secret, logger), authHandler.Me)
	api.GET("/user/:username", authHandler.Profile)

	router.Static("/static", config.StaticDir)
	return router
}
