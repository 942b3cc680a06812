package board

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hansonjs80-design/PTperfect/internal/catalog"
	"github.com/hansonjs80-design/PTperfect/internal/models"
)

// FlagKind 临床标记种类
type FlagKind string

const (
	FlagInjection FlagKind = "injection"
	FlagFluid     FlagKind = "fluid"
	FlagTraction  FlagKind = "traction"
	FlagESWT      FlagKind = "eswt"
	FlagManual    FlagKind = "manual"
)

// TrashState 清床按钮的两阶段状态
type TrashState string

const (
	TrashIdle    TrashState = "idle"
	TrashConfirm TrashState = "confirm"
	TrashDeleted TrashState = "deleted"
)

// LogSink 床→日志传播回调（同步层构造完成后绑定）
type LogSink func(bedID int, u models.VisitUpdate)

// Controls 运行期控制动作（步进/暂停/标记/备注/清床）
type Controls struct {
	store   *BedStore
	presets PresetSource
	logger  *zap.Logger
	now     func() time.Time
	logSink LogSink

	mu          sync.Mutex
	trashArmed  map[int]time.Time // 床位 ID → 确认态武装时刻
	swapSource  map[int]int       // 床位 ID → 已选交换源索引
	trashWindow time.Duration
}

// NewControls 创建控制层
func NewControls(store *BedStore, presets PresetSource, trashWindow time.Duration, logger *zap.Logger) *Controls {
	return &Controls{
		store:       store,
		presets:     presets,
		logger:      logger,
		now:         time.Now,
		trashArmed:  map[int]time.Time{},
		swapSource:  map[int]int{},
		trashWindow: trashWindow,
	}
}

// BindLogSink 绑定床→日志传播回调
func (c *Controls) BindLogSink(sink LogSink) {
	c.logSink = sink
}

func (c *Controls) propagate(bedID int, u models.VisitUpdate) {
	if c.logSink != nil {
		c.logSink(bedID, u)
	}
}

// stepTimerUpdate 为指定步骤重置计时字段
func (c *Controls) stepTimerUpdate(step models.TreatmentStep) models.BedUpdate {
	duration := 0
	if step.EnableTimer {
		duration = step.Duration
	}
	return models.BedUpdate{
		RemainingTime: models.IntPtr(duration),
		TimerDuration: models.IntPtr(duration),
		StartTime:     models.Int64Ptr(c.now().UnixMilli()),
		IsPaused:      models.BoolPtr(false),
	}
}

// NextStep 推进到下一步；已是最后一步则转入 COMPLETED 并冻结剩余时间显示
func (c *Controls) NextStep(bedID int) {
	bed, ok := c.store.Bed(bedID)
	if !ok || bed.Status != models.BedStatusActive {
		return
	}
	steps := StepsFor(bed, c.presets.Presets())
	if len(steps) == 0 {
		return
	}

	if bed.CurrentStepIndex >= len(steps)-1 {
		// 最后一步完成：不再计时，显示层呈现 "완료"
		c.store.UpdateBedState(bedID, models.BedUpdate{
			Status:    models.StatusPtr(models.BedStatusCompleted),
			StartTime: models.Int64Ptr(0),
			IsPaused:  models.BoolPtr(false),
		})
		return
	}

	next := bed.CurrentStepIndex + 1
	u := c.stepTimerUpdate(steps[next])
	u.CurrentStepIndex = models.IntPtr(next)
	c.store.UpdateBedState(bedID, u)
}

// PrevStep 回退一步；COMPLETED 状态降回 ACTIVE 并重置当前步骤计时
func (c *Controls) PrevStep(bedID int) {
	bed, ok := c.store.Bed(bedID)
	if !ok {
		return
	}
	if bed.Status != models.BedStatusActive && bed.Status != models.BedStatusCompleted {
		return
	}
	steps := StepsFor(bed, c.presets.Presets())
	if len(steps) == 0 {
		return
	}

	if bed.Status == models.BedStatusCompleted {
		// 完成态回退：停留在末步并重新计时
		idx := bed.CurrentStepIndex
		if idx >= len(steps) {
			idx = len(steps) - 1
		}
		u := c.stepTimerUpdate(steps[idx])
		u.Status = models.StatusPtr(models.BedStatusActive)
		u.CurrentStepIndex = models.IntPtr(idx)
		c.store.UpdateBedState(bedID, u)
		return
	}

	if bed.CurrentStepIndex == 0 {
		return
	}

	prev := bed.CurrentStepIndex - 1
	u := c.stepTimerUpdate(steps[prev])
	u.CurrentStepIndex = models.IntPtr(prev)
	c.store.UpdateBedState(bedID, u)
}

// SwapSteps 原地交换两个步骤
// 交换是结构性编辑：若涉及当前步骤，计时重置为交换后该位置步骤的完整时长
func (c *Controls) SwapSteps(bedID, idx1, idx2 int) {
	bed, ok := c.store.Bed(bedID)
	if !ok || bed.Status == models.BedStatusIdle || idx1 == idx2 {
		return
	}

	base := ActivePreset(bed, c.presets.Presets())
	swapped := catalog.SwappedPreset(base, idx1, idx2)
	if swapped == nil {
		return
	}

	u := models.BedUpdate{
		CustomPreset:    swapped,
		CustomPresetSet: true,
	}
	if bed.Status == models.BedStatusActive && (idx1 == bed.CurrentStepIndex || idx2 == bed.CurrentStepIndex) {
		timer := c.stepTimerUpdate(swapped.Steps[bed.CurrentStepIndex])
		u.RemainingTime = timer.RemainingTime
		u.TimerDuration = timer.TimerDuration
		u.StartTime = timer.StartTime
		u.IsPaused = timer.IsPaused
	}
	c.store.UpdateBedState(bedID, u)

	c.propagate(bedID, models.VisitUpdate{
		TreatmentName: models.StrPtr(catalog.GenerateTreatmentString(swapped.Steps)),
	})
}

// PendingSwapSource 两次点击式交换中已选定的源索引（未选源时 ok=false）
func (c *Controls) PendingSwapSource(bedID int) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	source, ok := c.swapSource[bedID]
	return source, ok
}

// HandleSwapRequest 两次点击式交换：首次选源，再次执行（同索引为取消）
func (c *Controls) HandleSwapRequest(bedID, idx int) {
	c.mu.Lock()
	source, selected := c.swapSource[bedID]
	if !selected {
		c.swapSource[bedID] = idx
		c.mu.Unlock()
		return
	}
	delete(c.swapSource, bedID)
	c.mu.Unlock()

	if source != idx {
		c.SwapSteps(bedID, source, idx)
	}
}

// TogglePause 暂停/恢复
// 暂停期间的墙钟时间不计入：恢复时以冻结的剩余时间重排 startTime
func (c *Controls) TogglePause(bedID int) {
	bed, ok := c.store.Bed(bedID)
	if !ok || bed.Status != models.BedStatusActive {
		return
	}

	now := c.now()
	if !bed.IsPaused {
		// 冻结当前剩余时间
		remaining := bed.RemainingTime
		if bed.StartTime > 0 {
			elapsed := int((now.UnixMilli() - bed.StartTime) / 1000)
			remaining = bed.TimerDuration - elapsed
		}
		c.store.UpdateBedState(bedID, models.BedUpdate{
			IsPaused:      models.BoolPtr(true),
			RemainingTime: models.IntPtr(remaining),
		})
		return
	}

	// 恢复：startTime 前移使倒计时从冻结值继续
	rebased := now.UnixMilli() - int64(bed.TimerDuration-bed.RemainingTime)*1000
	c.store.UpdateBedState(bedID, models.BedUpdate{
		IsPaused:  models.BoolPtr(false),
		StartTime: models.Int64Ptr(rebased),
	})
}

// ToggleFlag 翻转临床标记并同步到活动就诊记录
// 与步骤状态机正交，非 IDLE 状态均合法
func (c *Controls) ToggleFlag(bedID int, kind FlagKind) {
	bed, ok := c.store.Bed(bedID)
	if !ok || bed.Status == models.BedStatusIdle {
		return
	}

	var u models.BedUpdate
	var vu models.VisitUpdate
	switch kind {
	case FlagInjection:
		v := !bed.IsInjection
		u.IsInjection, vu.IsInjection = models.BoolPtr(v), models.BoolPtr(v)
	case FlagFluid:
		v := !bed.IsFluid
		u.IsFluid, vu.IsFluid = models.BoolPtr(v), models.BoolPtr(v)
	case FlagTraction:
		v := !bed.IsTraction
		u.IsTraction, vu.IsTraction = models.BoolPtr(v), models.BoolPtr(v)
	case FlagESWT:
		v := !bed.IsESWT
		u.IsESWT, vu.IsESWT = models.BoolPtr(v), models.BoolPtr(v)
	case FlagManual:
		v := !bed.IsManual
		u.IsManual, vu.IsManual = models.BoolPtr(v), models.BoolPtr(v)
	default:
		return
	}

	c.store.UpdateBedState(bedID, u)
	c.propagate(bedID, vu)
}

// UpdateMemo 设置/清除步骤备注并同步到活动就诊记录
func (c *Controls) UpdateMemo(bedID, stepIndex int, memo string) {
	bed, ok := c.store.Bed(bedID)
	if !ok || bed.Status == models.BedStatusIdle {
		return
	}

	memos := make(map[int]string, len(bed.Memos)+1)
	for k, v := range bed.Memos {
		memos[k] = v
	}
	if memo == "" {
		delete(memos, stepIndex)
	} else {
		memos[stepIndex] = memo
	}

	c.store.UpdateBedState(bedID, models.BedUpdate{Memos: memos})
	c.propagate(bedID, models.VisitUpdate{Memo: models.StrPtr(memo)})
}

// UpdateBedDuration 临时改写剩余时间：新时长从现在开始倒数
func (c *Controls) UpdateBedDuration(bedID, seconds int) {
	bed, ok := c.store.Bed(bedID)
	if !ok || bed.Status != models.BedStatusActive {
		return
	}

	c.store.UpdateBedState(bedID, models.BedUpdate{
		RemainingTime: models.IntPtr(seconds),
		TimerDuration: models.IntPtr(seconds),
		StartTime:     models.Int64Ptr(c.now().UnixMilli()),
	})
}

// ClearBed 无条件复位为空床默认值（确认手势由 HandleTrashClick 负责）
// 是否删除对应就诊记录由调用方/日志协作者决定
func (c *Controls) ClearBed(bedID int) {
	c.mu.Lock()
	delete(c.trashArmed, bedID)
	delete(c.swapSource, bedID)
	c.mu.Unlock()

	c.store.UpdateBedState(bedID, models.BedUpdate{
		Status:           models.StatusPtr(models.BedStatusIdle),
		CurrentPresetID:  models.StrPtr(""),
		CustomPreset:     nil,
		CustomPresetSet:  true,
		CurrentStepIndex: models.IntPtr(0),
		RemainingTime:    models.IntPtr(0),
		TimerDuration:    models.IntPtr(0),
		StartTime:        models.Int64Ptr(0),
		IsPaused:         models.BoolPtr(false),
		IsInjection:      models.BoolPtr(false),
		IsFluid:          models.BoolPtr(false),
		IsTraction:       models.BoolPtr(false),
		IsESWT:           models.BoolPtr(false),
		IsManual:         models.BoolPtr(false),
		Memos:            map[int]string{},
	})
}

// HandleTrashClick 清床两阶段手势
// 首次点击武装确认态，窗口内（默认 3 秒）再次点击才真正清床，超时自动回落
func (c *Controls) HandleTrashClick(bedID int) TrashState {
	bed, ok := c.store.Bed(bedID)
	if !ok || bed.Status == models.BedStatusIdle {
		return TrashIdle
	}

	now := c.now()

	c.mu.Lock()
	armedAt, armed := c.trashArmed[bedID]
	if armed && now.Sub(armedAt) > c.trashWindow {
		// 确认态已过期，按未武装处理
		armed = false
	}
	if !armed {
		c.trashArmed[bedID] = now
		c.mu.Unlock()
		return TrashConfirm
	}
	delete(c.trashArmed, bedID)
	c.mu.Unlock()

	c.ClearBed(bedID)
	return TrashDeleted
}

// TrashStateOf 查询清床按钮当前状态（过期自动回落为 idle）
func (c *Controls) TrashStateOf(bedID int) TrashState {
	c.mu.Lock()
	defer c.mu.Unlock()
	armedAt, armed := c.trashArmed[bedID]
	if !armed || c.now().Sub(armedAt) > c.trashWindow {
		return TrashIdle
	}
	return TrashConfirm
}

// ResetAll 清空全部床位
func (c *Controls) ResetAll() {
	for _, bed := range c.store.Beds() {
		if bed.Status != models.BedStatusIdle {
			c.ClearBed(bed.ID)
		}
	}
}
