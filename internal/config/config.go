package config

import (
	"fmt"
	"os"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置（步骤完成提醒通道，Broker 为空表示禁用）
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// Config 床位看板服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	Board struct {
		TotalBeds      int           // 物理床位数，ID 1..N
		TractionBedID  int           // 指定的牵引床
		TickInterval   time.Duration // 计时引擎步进间隔
		TrashWindow    time.Duration // 清床二次确认窗口
		HistoryDepth   int           // 撤销栈深度
		SnapshotDebounce time.Duration // 快照去抖窗口
		CacheKey       string        // 床位镜像缓存键
		RealtimeChannel string       // 床位变更推送频道
	}

	Notify struct {
		WebhookURL string // 为空表示禁用
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（环境变量覆盖默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "ptperfect")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "ptperfect-board")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "ptperfect/alerts/step-complete")
	cfg.MQTT.QoS = 1

	cfg.Board.TotalBeds = getEnvInt("BOARD_TOTAL_BEDS", 10)
	cfg.Board.TractionBedID = getEnvInt("BOARD_TRACTION_BED", 10)
	cfg.Board.TickInterval = time.Duration(getEnvInt("BOARD_TICK_MS", 1000)) * time.Millisecond
	cfg.Board.TrashWindow = time.Duration(getEnvInt("BOARD_TRASH_WINDOW_MS", 3000)) * time.Millisecond
	cfg.Board.HistoryDepth = getEnvInt("BOARD_HISTORY_DEPTH", 20)
	cfg.Board.SnapshotDebounce = time.Duration(getEnvInt("BOARD_SNAPSHOT_DEBOUNCE_MS", 1000)) * time.Millisecond
	cfg.Board.CacheKey = getEnv("BOARD_CACHE_KEY", "ptperfect:beds:v8")
	cfg.Board.RealtimeChannel = getEnv("BOARD_REALTIME_CHANNEL", "ptperfect:beds:changes")

	cfg.Notify.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if cfg.Board.TotalBeds <= 0 {
		return nil, fmt.Errorf("BOARD_TOTAL_BEDS must be positive, got %d", cfg.Board.TotalBeds)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var parsed int
		if _, err := fmt.Sscanf(value, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return defaultValue
}
