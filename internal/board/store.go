package board

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hansonjs80-design/PTperfect/internal/models"
)

const remoteWriteTimeout = 5 * time.Second

// RemoteWriter 远端持久化存储的写接口（可替换为同步确认实现以便测试）
type RemoteWriter interface {
	UpdateBed(ctx context.Context, bedID int, payload map[string]interface{}) error
	UpsertBeds(ctx context.Context, beds []models.Bed) error
}

// Mirror 本地持久镜像
type Mirror interface {
	SaveBeds(ctx context.Context, beds []models.Bed) error
}

// ChangePublisher 实时变更广播
type ChangePublisher interface {
	PublishBed(ctx context.Context, bed models.Bed) error
}

// BedStore 床位内存状态的唯一持有者
// 写入策略：内存与镜像同步更新（乐观），远端异步 fire-and-forget，失败仅记录不回滚
type BedStore struct {
	mu     sync.Mutex
	beds   []models.Bed
	remote RemoteWriter    // 可为 nil（离线模式）
	mirror Mirror          // 可为 nil
	pub    ChangePublisher // 可为 nil
	logger *zap.Logger
	now    func() time.Time
}

// NewBedStore 创建床位状态存储（beds 为启动播种结果）
func NewBedStore(beds []models.Bed, remote RemoteWriter, mirror Mirror, pub ChangePublisher, logger *zap.Logger) *BedStore {
	return &BedStore{
		beds:   models.CloneBeds(beds),
		remote: remote,
		mirror: mirror,
		pub:    pub,
		logger: logger,
		now:    time.Now,
	}
}

// Beds 当前床位数组快照
func (s *BedStore) Beds() []models.Bed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CloneBeds(s.beds)
}

// Bed 按 ID 查找床位
func (s *BedStore) Bed(bedID int) (models.Bed, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.beds {
		if s.beds[i].ID == bedID {
			return s.beds[i].Clone(), true
		}
	}
	return models.Bed{}, false
}

// UpdateBedState 合并部分更新并带上新的更新时间戳
// 无效床位 ID 为 no-op（床位集固定且小，非法 ID 属调用方缺陷）
func (s *BedStore) UpdateBedState(bedID int, u models.BedUpdate) {
	s.mu.Lock()
	idx := -1
	for i := range s.beds {
		if s.beds[i].ID == bedID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}

	ts := s.now().UnixMilli()
	s.beds[idx].Apply(u)
	s.beds[idx].LastUpdateTS = ts
	updated := s.beds[idx].Clone()
	snapshot := models.CloneBeds(s.beds)
	s.mu.Unlock()

	s.saveMirror(snapshot)

	if s.remote != nil {
		payload := u.DBPayload()
		payload["last_update_ts"] = ts
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), remoteWriteTimeout)
			defer cancel()
			if err := s.remote.UpdateBed(ctx, bedID, payload); err != nil {
				s.logger.Error("Bed remote update failed, keeping local state",
					zap.Int("bed_id", bedID),
					zap.Error(err),
				)
			}
		}()
	}

	s.publish(updated)
}

// RefreshRemaining 计时引擎的每秒刷新（仅内存，不写远端/不广播）
// 返回刷新后的剩余秒数与是否从正值跨越到 <=0
func (s *BedStore) RefreshRemaining(bedID int, remaining int) (crossed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.beds {
		if s.beds[i].ID != bedID {
			continue
		}
		crossed = s.beds[i].RemainingTime > 0 && remaining <= 0
		s.beds[i].RemainingTime = remaining
		return crossed
	}
	return false
}

// RestoreBeds 整体替换床位数组（仅撤销/重做使用）
// 远端批量 upsert 整行写入，显式清除快照中缺失的字段
func (s *BedStore) RestoreBeds(beds []models.Bed) {
	restored := models.CloneBeds(beds)

	s.mu.Lock()
	s.beds = restored
	snapshot := models.CloneBeds(s.beds)
	s.mu.Unlock()

	s.saveMirror(snapshot)

	if s.remote != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), remoteWriteTimeout)
			defer cancel()
			if err := s.remote.UpsertBeds(ctx, snapshot); err != nil {
				s.logger.Error("Bed restore remote upsert failed, keeping local state",
					zap.Error(err),
				)
			}
		}()
	}

	for _, bed := range snapshot {
		s.publish(bed)
	}
}

// MergeRemote 合并远端推送的床位变更
// 按更新时间戳做 last-writer-wins，防止慢网络回声覆盖更新的本地编辑
func (s *BedStore) MergeRemote(incoming models.Bed) bool {
	s.mu.Lock()
	idx := -1
	for i := range s.beds {
		if s.beds[i].ID == incoming.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}

	if incoming.LastUpdateTS <= s.beds[idx].LastUpdateTS {
		local := s.beds[idx].LastUpdateTS
		s.mu.Unlock()
		s.logger.Debug("Dropping stale remote bed change",
			zap.Int("bed_id", incoming.ID),
			zap.Int64("remote_ts", incoming.LastUpdateTS),
			zap.Int64("local_ts", local),
		)
		return false
	}

	s.beds[idx] = incoming.Clone()
	snapshot := models.CloneBeds(s.beds)
	s.mu.Unlock()

	s.saveMirror(snapshot)
	return true
}

func (s *BedStore) saveMirror(beds []models.Bed) {
	if s.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), remoteWriteTimeout)
	defer cancel()
	if err := s.mirror.SaveBeds(ctx, beds); err != nil {
		s.logger.Error("Bed mirror save failed",
			zap.Error(err),
		)
	}
}

func (s *BedStore) publish(bed models.Bed) {
	if s.pub == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), remoteWriteTimeout)
		defer cancel()
		if err := s.pub.PublishBed(ctx, bed); err != nil {
			s.logger.Warn("Bed change publish failed",
				zap.Int("bed_id", bed.ID),
				zap.Error(err),
			)
		}
	}()
}

// SeedBeds 生成全新的空床集合，ID 1..total
func SeedBeds(total int) []models.Bed {
	beds := make([]models.Bed, total)
	for i := 0; i < total; i++ {
		beds[i] = models.NewIdleBed(i + 1)
	}
	return beds
}
