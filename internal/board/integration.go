package board

import (
	"time"

	"go.uber.org/zap"

	"github.com/hansonjs80-design/PTperfect/internal/catalog"
	"github.com/hansonjs80-design/PTperfect/internal/models"
)

// Integration 跨域编辑动作：步骤列表改写、日志驱动覆盖、整床搬移
type Integration struct {
	store    *BedStore
	presets  PresetSource
	controls *Controls
	logger   *zap.Logger
	now      func() time.Time
}

// NewIntegration 创建整合层
func NewIntegration(store *BedStore, presets PresetSource, controls *Controls, logger *zap.Logger) *Integration {
	return &Integration{
		store:    store,
		presets:  presets,
		controls: controls,
		logger:   logger,
		now:      time.Now,
	}
}

// UpdateBedSteps 整体替换步骤列表（编辑界面的增删改排）
// 当前索引越界时收敛到末步；当前步骤身份变化时按新步骤完整时长重新计时，
// 结构性编辑不保留已消耗时间
func (i *Integration) UpdateBedSteps(bedID int, steps []models.TreatmentStep) {
	bed, ok := i.store.Bed(bedID)
	if !ok || bed.Status == models.BedStatusIdle || len(steps) == 0 {
		return
	}

	oldSteps := StepsFor(bed, i.presets.Presets())
	name := "Custom"
	if p := ActivePreset(bed, i.presets.Presets()); p != nil {
		name = p.Name
	}
	preset := catalog.NewCustomPreset(name, steps)

	idx := bed.CurrentStepIndex
	if idx >= len(steps) {
		idx = len(steps) - 1
	}

	identityChanged := true
	if bed.CurrentStepIndex < len(oldSteps) && idx < len(steps) &&
		oldSteps[bed.CurrentStepIndex].ID == steps[idx].ID {
		identityChanged = false
	}

	u := models.BedUpdate{
		CustomPreset:     preset,
		CustomPresetSet:  true,
		CurrentStepIndex: models.IntPtr(idx),
	}
	if identityChanged && bed.Status == models.BedStatusActive {
		timer := i.controls.stepTimerUpdate(steps[idx])
		u.RemainingTime = timer.RemainingTime
		u.TimerDuration = timer.TimerDuration
		u.StartTime = timer.StartTime
	}
	i.store.UpdateBedState(bedID, u)

	i.controls.propagate(bedID, models.VisitUpdate{
		TreatmentName: models.StrPtr(catalog.GenerateTreatmentString(steps)),
	})
}

// OverrideBedFromLog 日志驱动的床位覆盖（强制重启）
// 从就诊记录的治疗字符串重建步骤并从第 0 步开始；与"搬移"不同，不保留原会话
func (i *Integration) OverrideBedFromLog(bedID int, visit models.PatientVisit, forceRestart bool) {
	bed, ok := i.store.Bed(bedID)
	if !ok {
		return
	}

	if visit.TreatmentName == "" {
		i.controls.ClearBed(bedID)
		return
	}

	// 非强制且治疗内容未变：仅同步临床标记，不打断当前会话
	if !forceRestart && bed.Status == models.BedStatusActive {
		current := StepsFor(bed, i.presets.Presets())
		if catalog.GenerateTreatmentString(current) == visit.TreatmentName {
			i.store.UpdateBedState(bedID, models.VisitFlagsOf(visit).BedUpdate())
			return
		}
	}

	preset := catalog.FindMatchingPreset(i.presets.Presets(), visit.TreatmentName, i.presets.QuickTreatments())
	if preset == nil || len(preset.Steps) == 0 {
		i.logger.Warn("Treatment string produced no steps, clearing bed",
			zap.Int("bed_id", bedID),
			zap.String("treatment_name", visit.TreatmentName),
		)
		i.controls.ClearBed(bedID)
		return
	}

	duration := 0
	if preset.Steps[0].EnableTimer {
		duration = preset.Steps[0].Duration
	}

	u := models.VisitFlagsOf(visit).BedUpdate()
	u.Status = models.StatusPtr(models.BedStatusActive)
	u.CurrentPresetID = models.StrPtr("")
	u.CustomPreset = preset
	u.CustomPresetSet = true
	u.CurrentStepIndex = models.IntPtr(0)
	u.RemainingTime = models.IntPtr(duration)
	u.TimerDuration = models.IntPtr(duration)
	u.StartTime = models.Int64Ptr(i.now().UnixMilli())
	u.IsPaused = models.BoolPtr(false)
	u.Memos = map[int]string{}
	i.store.UpdateBedState(bedID, u)

	i.logger.Info("Bed overridden from log",
		zap.Int("bed_id", bedID),
		zap.String("treatment_name", visit.TreatmentName),
	)
}

// MoveBedState 整床搬移：原样复制运行中的会话（当前步骤、剩余时间、暂停态）
// 到目标床并清空源床。与日志驱动的"腾空+重新收治"不同，会话不经字符串重建
func (i *Integration) MoveBedState(fromBedID, toBedID int) {
	source, ok := i.store.Bed(fromBedID)
	if !ok {
		return
	}
	if _, ok := i.store.Bed(toBedID); !ok {
		return
	}

	memos := source.Memos
	if memos == nil {
		memos = map[int]string{}
	}

	u := models.FlagsOf(source).BedUpdate()
	u.Status = models.StatusPtr(source.Status)
	u.CurrentPresetID = models.StrPtr(source.CurrentPresetID)
	u.CustomPreset = source.CustomPreset
	u.CustomPresetSet = true
	u.CurrentStepIndex = models.IntPtr(source.CurrentStepIndex)
	u.RemainingTime = models.IntPtr(source.RemainingTime)
	u.TimerDuration = models.IntPtr(source.TimerDuration)
	u.StartTime = models.Int64Ptr(source.StartTime)
	u.IsPaused = models.BoolPtr(source.IsPaused)
	u.Memos = memos
	i.store.UpdateBedState(toBedID, u)

	i.controls.ClearBed(fromBedID)

	i.logger.Info("Bed session moved",
		zap.Int("from_bed_id", fromBedID),
		zap.Int("to_bed_id", toBedID),
	)
}
