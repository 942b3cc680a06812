package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "ptperfect", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, 10, cfg.Board.TotalBeds)
	assert.Equal(t, 10, cfg.Board.TractionBedID)
	assert.Equal(t, time.Second, cfg.Board.TickInterval)
	assert.Equal(t, 3*time.Second, cfg.Board.TrashWindow)
	assert.Equal(t, 20, cfg.Board.HistoryDepth)
	assert.Equal(t, time.Second, cfg.Board.SnapshotDebounce)
	assert.Equal(t, "ptperfect:beds:v8", cfg.Board.CacheKey)
	assert.Equal(t, "ptperfect:beds:changes", cfg.Board.RealtimeChannel)

	assert.Equal(t, "", cfg.MQTT.Broker)
	assert.Equal(t, "ptperfect-board", cfg.MQTT.ClientID)
	assert.Equal(t, "ptperfect/alerts/step-complete", cfg.MQTT.Topic)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("BOARD_TOTAL_BEDS", "14")
	os.Setenv("BOARD_TRASH_WINDOW_MS", "5000")
	os.Setenv("MQTT_BROKER", "tcp://test-broker:1883")
	os.Setenv("LOG_LEVEL", "debug")
	defer os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 14, cfg.Board.TotalBeds)
	assert.Equal(t, 5*time.Second, cfg.Board.TrashWindow)
	assert.Equal(t, "tcp://test-broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidTotalBeds(t *testing.T) {
	os.Clearenv()
	os.Setenv("BOARD_TOTAL_BEDS", "-1")
	defer os.Clearenv()

	cfg, err := Load()
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db-host",
		Port:     5433,
		User:     "u",
		Password: "p",
		Database: "d",
		SSLMode:  "disable",
	}
	assert.Equal(t, "host=db-host port=5433 user=u password=p dbname=d sslmode=disable", cfg.GetDSN())
}
