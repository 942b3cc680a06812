package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/hansonjs80-design/PTperfect/internal/models"
)

// BedCache 床位状态的本地持久镜像
// 远端存储不可达时作为启动播种/离线回退的事实来源
type BedCache struct {
	kv     KVStore
	key    string
	logger *zap.Logger
}

// NewBedCache 创建床位镜像缓存
func NewBedCache(kv KVStore, key string, logger *zap.Logger) *BedCache {
	return &BedCache{
		kv:     kv,
		key:    key,
		logger: logger,
	}
}

// SaveBeds 整体写入床位数组（无 TTL，镜像持续有效）
func (c *BedCache) SaveBeds(ctx context.Context, beds []models.Bed) error {
	data, err := json.Marshal(beds)
	if err != nil {
		return fmt.Errorf("failed to marshal beds: %w", err)
	}

	if err := c.kv.Set(ctx, c.key, string(data), 0); err != nil {
		return fmt.Errorf("failed to save bed mirror: %w", err)
	}

	return nil
}

// LoadBeds 读取镜像中的床位数组，缓存不存在时返回 ErrCacheMiss
func (c *BedCache) LoadBeds(ctx context.Context) ([]models.Bed, error) {
	val, err := c.kv.Get(ctx, c.key)
	if err != nil {
		if err == ErrCacheMiss {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to load bed mirror: %w", err)
	}

	var beds []models.Bed
	if err := json.Unmarshal([]byte(val), &beds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bed mirror: %w", err)
	}

	c.logger.Debug("Loaded beds from mirror cache",
		zap.Int("bed_count", len(beds)),
	)

	return beds, nil
}
