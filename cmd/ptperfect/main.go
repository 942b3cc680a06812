package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hansonjs80-design/PTperfect/internal/config"
	"github.com/hansonjs80-design/PTperfect/internal/notify"
	"github.com/hansonjs80-design/PTperfect/internal/service"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	logger, err := initLogger(cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer logger.Sync()

	// 3. 连接数据库（失败进入离线模式，以本地镜像为准）
	var db *sql.DB
	db, err = sql.Open("postgres", cfg.Database.GetDSN())
	if err == nil {
		db.SetMaxOpenConns(cfg.Database.MaxConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdle)
		err = db.Ping()
	}
	if err != nil {
		logger.Warn("Database unreachable, running in offline mode",
			zap.Error(err),
		)
		db = nil
	} else {
		defer db.Close()
	}

	// 4. 连接 Redis（失败则关闭镜像与实时推送）
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("Redis unreachable, mirror and realtime disabled",
			zap.Error(err),
		)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	// 5. 组装通知桥
	notifier := buildNotifier(cfg, logger)

	// 6. 创建服务
	svc, err := service.NewBoardService(service.Options{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Redis:    redisClient,
		Notifier: notifier,
		// 无头模式下的确认门：记录并放行（接入 UI 后替换为真实弹窗）
		Confirm: func(message string) bool {
			logger.Info("Confirm prompt auto-accepted",
				zap.String("message", message),
			)
			return true
		},
	})
	if err != nil {
		logger.Fatal("Failed to create board service",
			zap.Error(err),
		)
	}
	defer svc.Stop()

	// 7. 启动（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		logger.Fatal("Failed to start board service",
			zap.Error(err),
		)
	}

	// 8. 等待信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal, shutting down",
		zap.String("signal", sig.String()),
	)
	cancel()
}

// initLogger 初始化日志
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch cfg.Log.Level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Log.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.TimeKey = "timestamp"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("service_name", "ptperfect-board"))
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		logger = logger.With(zap.String("hostname", hostname))
	}

	return logger, nil
}

// buildNotifier 按配置组装步骤完成提醒通道
func buildNotifier(cfg *config.Config, logger *zap.Logger) notify.Notifier {
	var notifiers notify.MultiNotifier

	if cfg.MQTT.Broker != "" {
		client, err := notify.NewMQTTClient(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Username, cfg.MQTT.Password)
		if err != nil {
			logger.Warn("MQTT broker unreachable, alert channel disabled",
				zap.Error(err),
			)
		} else {
			notifiers = append(notifiers, notify.NewMQTTNotifier(client, cfg.MQTT.Topic, cfg.MQTT.QoS, logger))
		}
	}

	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Notify.WebhookURL, logger))
	}

	if len(notifiers) == 0 {
		return notify.NopNotifier{}
	}
	return notifiers
}
