package models

// Config はサーバー全体の設定情報を保持します。
// config.json から読み込んだ後、環境変数で上書きされます。
type Config struct {
	DBHost     string `json:"db_host"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`
	DBName     string `json:"db_name"`
	DBSSLMode  string `json:"db_sslmode"`

	RedisAddr     string `json:"redis_addr"` // 空の場合はRedisを使わない
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	JWTSecret      string   `json:"jwt_secret"`
	TokenTTLHours  int      `json:"token_ttl_hours"`
	Port           string   `json:"port"`
	StaticDir      string   `json:"static_dir"`
	ImagesDir      string   `json:"images_dir"`
	PublicURL      string   `json:"public_url"` // QRコードの招待URLに使う
	AllowedOrigins []string `json:"allowed_origins"`

	HeartbeatIntervalSec int `json:"heartbeat_interval_sec"`
	ReadTimeoutSec       int `json:"read_timeout_sec"`
	SendBufferSize       int `json:"send_buffer_size"`
}

// DefaultConfig はローカル開発用の既定値を返します。
func DefaultConfig() Config {
	return Config{
		DBHost:               "localhost",
		DBUser:               "postgres",
		DBName:               "khawawish",
		DBSSLMode:            "disable",
		JWTSecret:            "your_secret_key",
		TokenTTLHours:        24,
		Port:                 "8153",
		StaticDir:            "static",
		ImagesDir:            "static/images",
		PublicURL:            "http://localhost:3000",
		AllowedOrigins:       []string{"*"},
		HeartbeatIntervalSec: 7,
		ReadTimeoutSec:       60,
		SendBufferSize:       256,
	}
}
