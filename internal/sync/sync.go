package sync

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hansonjs80-design/PTperfect/internal/board"
	"github.com/hansonjs80-design/PTperfect/internal/models"
	"github.com/hansonjs80-design/PTperfect/internal/patientlog"
)

// ErrAborted 用户拒绝确认，整个更新中止（无任何部分写入）
var ErrAborted = errors.New("aborted by user")

// ConfirmFunc 同步确认门（UI 协作者）：返回 false 表示拒绝
type ConfirmFunc func(message string) bool

// Synchronizer 床↔日志一致性层
// 两个可独立编辑的集合（床位、日志）必须呈现一致的合并视图
type Synchronizer struct {
	store       *board.BedStore
	visits      *patientlog.VisitStore
	controls    *board.Controls
	integration *board.Integration
	confirm     ConfirmFunc
	logger      *zap.Logger
}

// NewSynchronizer 创建同步层（两阶段构造：床位/日志存储就绪后传入具体引用）
func NewSynchronizer(
	store *board.BedStore,
	visits *patientlog.VisitStore,
	controls *board.Controls,
	integration *board.Integration,
	confirm ConfirmFunc,
	logger *zap.Logger,
) *Synchronizer {
	return &Synchronizer{
		store:       store,
		visits:      visits,
		controls:    controls,
		integration: integration,
		confirm:     confirm,
		logger:      logger,
	}
}

func (s *Synchronizer) ask(message string) bool {
	if s.confirm == nil {
		return false
	}
	return s.confirm(message)
}

// HandleLogUpdate 床→日志传播：把床位侧的标记/备注变更推入该床的活动就诊记录
// 日志行尚不存在时不做任何事（就诊记录只在开床时创建，不追溯补建）
func (s *Synchronizer) HandleLogUpdate(bedID int, u models.VisitUpdate) {
	visit, ok := s.visits.ActiveVisitForBed(bedID)
	if !ok {
		return
	}
	s.visits.UpdateVisit(visit.ID, u)
}

// UpdateVisitWithBedSync 日志→床传播：日志行编辑回写床位状态
//
// 冲突规则：
//   - 换床到活动床位，或改写活动床位的治疗内容，需确认覆盖；拒绝即整体中止
//   - bed_id 清空 → 解除原床（清床）
//   - bed_id 从一张占用床改到另一张 → "腾空+重新收治"，非搬移
//   - 确认（或目标床非活动）后先写日志行，再按治疗字符串重建并强制重启目标床
func (s *Synchronizer) UpdateVisitWithBedSync(visitID string, u models.VisitUpdate, skipBedSync bool) error {
	oldVisit, ok := s.visits.Visit(visitID)
	if !ok {
		return fmt.Errorf("visit not found: %s", visitID)
	}

	forceRestart := false

	// 目标床位：更新中携带的值优先，否则沿用原值
	var targetBedID *int
	if u.BedIDSet {
		targetBedID = u.BedID
	} else {
		targetBedID = oldVisit.BedID
	}

	if !skipBedSync && targetBedID != nil {
		// 情况 A：换床/分配床位
		bedChanged := u.BedIDSet && !sameBedID(u.BedID, oldVisit.BedID)
		// 情况 B：同床改写治疗内容
		treatmentChanged := u.TreatmentName != nil && *u.TreatmentName != oldVisit.TreatmentName

		if bedChanged || treatmentChanged {
			if target, ok := s.store.Bed(*targetBedID); ok && target.Status == models.BedStatusActive {
				msg := fmt.Sprintf("%d번 배드는 비어있지 않습니다.\n배드카드를 비우고 입력할까요?", *targetBedID)
				if !s.ask(msg) {
					return ErrAborted
				}
				forceRestart = true
			}
		}
	}

	s.visits.UpdateVisit(visitID, u)

	if skipBedSync {
		return nil
	}

	merged := oldVisit.Clone()
	merged.Apply(u)

	// bed_id 清空：解除原床
	if oldVisit.BedID != nil && u.BedIDSet && u.BedID == nil {
		s.controls.ClearBed(*oldVisit.BedID)
		return nil
	}

	if merged.BedID != nil {
		// 占用床之间改派：腾空旧床后按日志重建新床
		if oldVisit.BedID != nil && u.BedIDSet && u.BedID != nil && *oldVisit.BedID != *u.BedID {
			s.controls.ClearBed(*oldVisit.BedID)
			forceRestart = true
		}
		s.integration.OverrideBedFromLog(*merged.BedID, merged, forceRestart)
	}

	return nil
}

// MovePatient 真实搬移：原样保留运行中的会话
// 目标床活动时需确认覆盖；关联就诊记录的 bed_id 跟随迁移
func (s *Synchronizer) MovePatient(fromBedID, toBedID int) error {
	if fromBedID == toBedID {
		return nil
	}

	if target, ok := s.store.Bed(toBedID); ok && target.Status == models.BedStatusActive {
		msg := fmt.Sprintf("%d번 배드는 현재 활성화 되어있습니다. 그래도 진행하시겠습니까?\n(기존 내용을 비우고 해당 항목으로 변경됩니다)", toBedID)
		if !s.ask(msg) {
			return ErrAborted
		}
	}

	source, ok := s.store.Bed(fromBedID)
	if !ok {
		return fmt.Errorf("bed not found: %d", fromBedID)
	}
	sourceActive := source.Status == models.BedStatusActive || source.Status == models.BedStatusCompleted

	latestVisit, hasVisit := s.visits.ActiveVisitForBed(fromBedID)

	if sourceActive {
		// 会话原样搬移，不经过治疗字符串重建
		s.integration.MoveBedState(fromBedID, toBedID)
		if hasVisit {
			s.visits.UpdateVisit(latestVisit.ID, models.VisitUpdate{
				BedID:    &toBedID,
				BedIDSet: true,
			})
		}
		return nil
	}

	if hasVisit {
		// 源床空闲但日志仍挂着：改派日志并按其内容重建目标床
		s.visits.UpdateVisit(latestVisit.ID, models.VisitUpdate{
			BedID:    &toBedID,
			BedIDSet: true,
		})
		moved := latestVisit.Clone()
		moved.BedID = &toBedID
		s.controls.ClearBed(fromBedID)
		s.integration.OverrideBedFromLog(toBedID, moved, true)
		return nil
	}

	s.logger.Warn("Move requested for empty bed",
		zap.Int("from_bed_id", fromBedID),
	)
	return fmt.Errorf("%d번 배드는 비어있어 이동할 데이터가 없습니다", fromBedID)
}

func sameBedID(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
