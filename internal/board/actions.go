package board

import (
	"time"

	"go.uber.org/zap"

	"github.com/hansonjs80-design/PTperfect/internal/catalog"
	"github.com/hansonjs80-design/PTperfect/internal/models"
)

// StartOptions 开始治疗时的附加选项
type StartOptions struct {
	Flags       models.ClinicalFlags
	PatientName string
	BodyPart    string
	Author      string
	SkipVisit   bool // 不创建日志行（日志驱动的覆盖/恢复场景）
}

// VisitCreator 外部日志协作者：开床时创建对应就诊记录行，返回行 ID
type VisitCreator func(v models.PatientVisit) (string, error)

// Actions 开始治疗动作（IDLE → ACTIVE 的各动词）
type Actions struct {
	store       *BedStore
	presets     PresetSource
	logger      *zap.Logger
	now         func() time.Time
	createVisit VisitCreator // 两阶段构造后绑定
}

// NewActions 创建开始动作层
func NewActions(store *BedStore, presets PresetSource, logger *zap.Logger) *Actions {
	return &Actions{
		store:   store,
		presets: presets,
		logger:  logger,
		now:     time.Now,
	}
}

// BindVisitCreator 绑定日志行创建回调（日志存储构造完成后调用）
func (a *Actions) BindVisitCreator(fn VisitCreator) {
	a.createVisit = fn
}

// SelectPreset 以命名模板开始治疗（引用模板 ID，不克隆步骤）
func (a *Actions) SelectPreset(bedID int, presetID string, opts StartOptions) {
	var preset *models.Preset
	for _, p := range a.presets.Presets() {
		if p.ID == presetID {
			preset = p.Clone()
			break
		}
	}
	if preset == nil {
		a.logger.Warn("Unknown preset id, ignoring start",
			zap.Int("bed_id", bedID),
			zap.String("preset_id", presetID),
		)
		return
	}
	a.start(bedID, presetID, nil, preset.Steps, opts)
}

// StartCustomPreset 以临时步骤列表开始治疗（步骤独立于模板可编辑）
func (a *Actions) StartCustomPreset(bedID int, name string, steps []models.TreatmentStep, opts StartOptions) {
	if len(steps) == 0 {
		return
	}
	preset := catalog.NewCustomPreset(name, steps)
	a.start(bedID, "", preset, preset.Steps, opts)
}

// StartQuickTreatment 以单项快速治疗开始
func (a *Actions) StartQuickTreatment(bedID int, t models.QuickTreatment, opts StartOptions) {
	step := catalog.NewQuickStep(t)
	preset := catalog.NewCustomPreset(t.Name, []models.TreatmentStep{step})
	a.start(bedID, "", preset, preset.Steps, opts)
}

// StartTraction 开始牵引治疗（强制牵引标记）
func (a *Actions) StartTraction(bedID int, durationMinutes int, opts StartOptions) {
	preset := catalog.NewTractionPreset(durationMinutes)
	opts.Flags.IsTraction = true
	a.start(bedID, "", preset, preset.Steps, opts)
}

func (a *Actions) start(bedID int, presetID string, custom *models.Preset, steps []models.TreatmentStep, opts StartOptions) {
	if _, ok := a.store.Bed(bedID); !ok {
		return
	}
	if len(steps) == 0 {
		return
	}

	duration := 0
	if steps[0].EnableTimer {
		duration = steps[0].Duration
	}

	now := a.now()
	u := opts.Flags.BedUpdate()
	u.Status = models.StatusPtr(models.BedStatusActive)
	u.CurrentPresetID = models.StrPtr(presetID)
	u.CustomPreset = custom
	u.CustomPresetSet = true
	u.CurrentStepIndex = models.IntPtr(0)
	u.RemainingTime = models.IntPtr(duration)
	u.TimerDuration = models.IntPtr(duration)
	u.StartTime = models.Int64Ptr(now.UnixMilli())
	u.IsPaused = models.BoolPtr(false)
	u.Memos = map[int]string{}
	a.store.UpdateBedState(bedID, u)

	a.logger.Info("Treatment started",
		zap.Int("bed_id", bedID),
		zap.Int("step_count", len(steps)),
	)

	if opts.SkipVisit || a.createVisit == nil {
		return
	}

	id := bedID
	visit := models.PatientVisit{
		BedID:         &id,
		PatientName:   opts.PatientName,
		BodyPart:      opts.BodyPart,
		TreatmentName: catalog.GenerateTreatmentString(steps),
		IsInjection:   opts.Flags.IsInjection,
		IsFluid:       opts.Flags.IsFluid,
		IsTraction:    opts.Flags.IsTraction,
		IsESWT:        opts.Flags.IsESWT,
		IsManual:      opts.Flags.IsManual,
		Author:        opts.Author,
		CreatedAt:     now,
	}
	if _, err := a.createVisit(visit); err != nil {
		a.logger.Error("Failed to create visit for started bed",
			zap.Int("bed_id", bedID),
			zap.Error(err),
		)
	}
}
