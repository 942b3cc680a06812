package patientlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hansonjs80-design/PTperfect/internal/models"
)

const remoteWriteTimeout = 5 * time.Second

// Repo 就诊记录的远端持久化接口
type Repo interface {
	InsertVisit(ctx context.Context, v models.PatientVisit) error
	UpdateVisit(ctx context.Context, visitID string, payload map[string]interface{}) error
	DeleteVisit(ctx context.Context, visitID string) error
	UpsertVisits(ctx context.Context, visits []models.PatientVisit) error
}

// VisitStore 当日就诊日志的内存状态持有者
// 与床位存储相同的写入策略：本地乐观更新，远端异步写入失败仅记录
type VisitStore struct {
	mu     sync.Mutex
	visits []models.PatientVisit
	repo   Repo // 可为 nil（离线模式）
	logger *zap.Logger
	now    func() time.Time
}

// NewVisitStore 创建就诊日志存储（visits 为当日已有记录）
func NewVisitStore(visits []models.PatientVisit, repo Repo, logger *zap.Logger) *VisitStore {
	return &VisitStore{
		visits: models.CloneVisits(visits),
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Visits 当前日志快照
func (s *VisitStore) Visits() []models.PatientVisit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CloneVisits(s.visits)
}

// Visit 按 ID 查找
func (s *VisitStore) Visit(visitID string) (models.PatientVisit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.visits {
		if s.visits[i].ID == visitID {
			return s.visits[i].Clone(), true
		}
	}
	return models.PatientVisit{}, false
}

// ActiveVisitForBed 某床位的"活动就诊记录"：bed_id 匹配且 created_at 最新的一行
func (s *VisitStore) ActiveVisitForBed(bedID int) (models.PatientVisit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.PatientVisit
	for i := range s.visits {
		v := &s.visits[i]
		if v.BedID == nil || *v.BedID != bedID {
			continue
		}
		if latest == nil || v.CreatedAt.After(latest.CreatedAt) {
			latest = v
		}
	}
	if latest == nil {
		return models.PatientVisit{}, false
	}
	return latest.Clone(), true
}

// AddVisit 新建记录（草稿行在首次编辑时物化）
// ID/CreatedAt 为空时补齐，返回行 ID
func (s *VisitStore) AddVisit(v models.PatientVisit) (string, error) {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now()
	}

	s.mu.Lock()
	s.visits = append(s.visits, v.Clone())
	s.mu.Unlock()

	if s.repo != nil {
		row := v.Clone()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), remoteWriteTimeout)
			defer cancel()
			if err := s.repo.InsertVisit(ctx, row); err != nil {
				s.logger.Error("Visit remote insert failed, keeping local row",
					zap.String("visit_id", row.ID),
					zap.Error(err),
				)
			}
		}()
	}

	return v.ID, nil
}

// UpdateVisit 合并部分更新（日志侧的纯写入，不触发床位同步）
func (s *VisitStore) UpdateVisit(visitID string, u models.VisitUpdate) {
	s.mu.Lock()
	found := false
	for i := range s.visits {
		if s.visits[i].ID == visitID {
			s.visits[i].Apply(u)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return
	}

	if s.repo != nil {
		payload := u.DBPayload()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), remoteWriteTimeout)
			defer cancel()
			if err := s.repo.UpdateVisit(ctx, visitID, payload); err != nil {
				s.logger.Error("Visit remote update failed, keeping local row",
					zap.String("visit_id", visitID),
					zap.Error(err),
				)
			}
		}()
	}
}

// DeleteVisit 删除记录
func (s *VisitStore) DeleteVisit(visitID string) {
	s.mu.Lock()
	idx := -1
	for i := range s.visits {
		if s.visits[i].ID == visitID {
			idx = i
			break
		}
	}
	if idx >= 0 {
		s.visits = append(s.visits[:idx], s.visits[idx+1:]...)
	}
	s.mu.Unlock()

	if idx < 0 {
		return
	}

	if s.repo != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), remoteWriteTimeout)
			defer cancel()
			if err := s.repo.DeleteVisit(ctx, visitID); err != nil {
				s.logger.Error("Visit remote delete failed",
					zap.String("visit_id", visitID),
					zap.Error(err),
				)
			}
		}()
	}
}

// ReplaceAll 整体替换日志（仅撤销/重做使用），远端批量 upsert
func (s *VisitStore) ReplaceAll(visits []models.PatientVisit) {
	restored := models.CloneVisits(visits)

	s.mu.Lock()
	s.visits = restored
	snapshot := models.CloneVisits(s.visits)
	s.mu.Unlock()

	if s.repo != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), remoteWriteTimeout)
			defer cancel()
			if err := s.repo.UpsertVisits(ctx, snapshot); err != nil {
				s.logger.Error("Visit restore remote upsert failed, keeping local state",
					zap.Error(err),
				)
			}
		}()
	}
}
