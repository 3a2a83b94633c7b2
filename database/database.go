package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"khawawish/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// LoadConfig は既定値にconfig.jsonを重ね、最後に環境変数で上書きします。
// ファイルが存在しない場合は既定値と環境変数だけを使う。
func LoadConfig(filename string) (models.Config, error) {
	config := models.DefaultConfig()
	if filename != "" {
		configFile, err := os.Open(filename)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return config, fmt.Errorf("open config: %w", err)
		default:
			defer configFile.Close()
			if err := json.NewDecoder(configFile).Decode(&config); err != nil {
				return config, fmt.Errorf("decode config: %w", err)
			}
		}
	}

	applyEnv(&config)
	return config, nil
}

func applyEnv(config *models.Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("DB_HOST", &config.DBHost)
	setString("DB_USER", &config.DBUser)
	setString("DB_PASSWORD", &config.DBPassword)
	setString("DB_NAME", &config.DBName)
	setString("DB_SSLMODE", &config.DBSSLMode)
	setString("REDIS_ADDR", &config.RedisAddr)
	setString("REDIS_PASSWORD", &config.RedisPassword)
	setInt("REDIS_DB", &config.RedisDB)
	setString("JWT_SECRET", &config.JWTSecret)
	setString("PORT", &config.Port)
	setString("IMAGES_DIR", &config.ImagesDir)
	setString("STATIC_DIR", &config.StaticDir)
	setString("PUBLIC_URL", &config.PublicURL)
	setInt("HEARTBEAT_INTERVAL", &config.HeartbeatIntervalSec)
	setInt("READ_TIMEOUT", &config.ReadTimeoutSec)

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		config.AllowedOrigins = origins
	}
}

func InitPostgreSQL(config models.Config, logger *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s dbname=%s password=%s sslmode=%s",
		config.DBHost, config.DBUser, config.DBName, config.DBPassword, config.DBSSLMode)

	const maxRetries = 3
	const retryInterval = 5 * time.Second
	var err error
	for i := 0; i <= maxRetries; i++ {
		var gormDB *gorm.DB
		gormDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err == nil {
			return gormDB, nil
		}
		logger.Error("データベース接続のリトライ", zap.Int("retry", i), zap.Error(err))
		if i < maxRetries {
			time.Sleep(retryInterval)
		}
	}
	return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
}

// InitRedis はRedisに接続します。RedisAddrが空の場合は(nil, nil)を返す。
func InitRedis(ctx context.Context, config models.Config, logger *zap.Logger) (*redis.Client, error) {
	if config.RedisAddr == "" {
		logger.Info("Redis is not configured, reconnect sessions are disabled")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Error("Failed to connect to Redis", zap.Error(err))
		rdb.Close()
		return nil, err
	}

	logger.Info("Connected to Redis", zap.String("addr", config.RedisAddr))
	return rdb, nil
}
