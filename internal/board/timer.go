package board

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hansonjs80-design/PTperfect/internal/models"
	"github.com/hansonjs80-design/PTperfect/internal/notify"
)

// TimerEngine 计时引擎
// 有活动未暂停床位时每秒步进一次，全部空闲后自行停止避免空转
// 剩余时间按墙钟重算（timerDuration - elapsed(startTime)），标签页挂起/漏拍不产生漂移
type TimerEngine struct {
	store    *BedStore
	presets  PresetSource
	notifier notify.Notifier
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	running bool
	done    chan struct{}
	stopped bool
}

// NewTimerEngine 创建计时引擎
func NewTimerEngine(store *BedStore, presets PresetSource, notifier notify.Notifier, interval time.Duration, logger *zap.Logger) *TimerEngine {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &TimerEngine{
		store:    store,
		presets:  presets,
		notifier: notifier,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// EnsureRunning 有可计时床位且循环未运行时启动步进循环
// 每次状态变更后调用
func (e *TimerEngine) EnsureRunning() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running || e.stopped || !e.hasRunnable() {
		return
	}
	e.running = true
	go e.loop()
}

// Stop 永久停止引擎（服务关闭）
func (e *TimerEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.stopped = true
	close(e.done)
}

func (e *TimerEngine) loop() {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Debug("Timer engine started")

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.Tick()
			if e.stopIfIdle() {
				e.logger.Debug("Timer engine idle, stopping ticks")
				return
			}
		}
	}
}

// stopIfIdle 持锁复查后决定循环是否退出
// 空闲检查与 running 清除必须在同一临界区内：否则 EnsureRunning 在两者之间
// 看到 running=true 而不启动新循环，刚开床的床位将无人步进
func (e *TimerEngine) stopIfIdle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hasRunnable() {
		return false
	}
	e.running = false
	return true
}

// hasRunnable 是否存在活动、未暂停且当前步骤启用计时的床位
func (e *TimerEngine) hasRunnable() bool {
	presets := e.presets.Presets()
	for _, bed := range e.store.Beds() {
		if runnableStep(bed, presets) != nil {
			return true
		}
	}
	return false
}

func runnableStep(bed models.Bed, presets []models.Preset) *models.TreatmentStep {
	if bed.Status != models.BedStatusActive || bed.IsPaused || bed.StartTime == 0 {
		return nil
	}
	steps := StepsFor(bed, presets)
	if bed.CurrentStepIndex < 0 || bed.CurrentStepIndex >= len(steps) {
		return nil
	}
	step := steps[bed.CurrentStepIndex]
	if !step.EnableTimer {
		return nil
	}
	return &step
}

// Tick 单次步进（测试可直接调用）
// 跨越零点时触发一次性的步骤完成提醒；超时持续期间不重复提醒
func (e *TimerEngine) Tick() {
	now := e.now()
	presets := e.presets.Presets()

	for _, bed := range e.store.Beds() {
		step := runnableStep(bed, presets)
		if step == nil {
			continue
		}

		elapsed := int((now.UnixMilli() - bed.StartTime) / 1000)
		remaining := bed.TimerDuration - elapsed
		if remaining == bed.RemainingTime {
			continue
		}

		if e.store.RefreshRemaining(bed.ID, remaining) {
			e.logger.Info("Step countdown expired",
				zap.Int("bed_id", bed.ID),
				zap.String("step_name", step.Name),
			)
			e.notifier.StepComplete(bed.ID, step.Name)
		}
	}
}
