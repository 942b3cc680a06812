package board

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hansonjs80-design/PTperfect/internal/models"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) StepComplete(bedID int, stepName string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, stepName)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func timerFixture(t *testing.T) (*BedStore, *Catalog, *recordingNotifier, *TimerEngine, *fakeNow) {
	t.Helper()

	presets := NewCatalog([]models.Preset{
		{ID: "p1", Name: "기본", Steps: []models.TreatmentStep{
			{ID: "s1", Name: "Hot Pack", Label: "HP", Duration: 600, EnableTimer: true},
			{ID: "s2", Name: "Manual", Label: "도수", Duration: 0, EnableTimer: false},
		}},
	}, nil)

	store := NewBedStore(SeedBeds(2), nil, nil, nil, zap.NewNop())
	notifier := &recordingNotifier{}
	engine := NewTimerEngine(store, presets, notifier, time.Second, zap.NewNop())

	clock := &fakeNow{t: time.UnixMilli(1000000)}
	store.now = clock.now
	engine.now = clock.now
	return store, presets, notifier, engine, clock
}

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func startBed(store *BedStore, clock *fakeNow, bedID, duration int) {
	store.UpdateBedState(bedID, models.BedUpdate{
		Status:           models.StatusPtr(models.BedStatusActive),
		CurrentPresetID:  models.StrPtr("p1"),
		CurrentStepIndex: models.IntPtr(0),
		RemainingTime:    models.IntPtr(duration),
		TimerDuration:    models.IntPtr(duration),
		StartTime:        models.Int64Ptr(clock.now().UnixMilli()),
	})
}

func TestTick_WallClockRecompute(t *testing.T) {
	store, _, _, engine, clock := timerFixture(t)
	startBed(store, clock, 1, 600)

	clock.advance(time.Second)
	engine.Tick()

	bed, _ := store.Bed(1)
	assert.Equal(t, 599, bed.RemainingTime)

	// 时钟跳跃 10 秒（挂起/漏拍）：单次 Tick 补齐，无漂移
	clock.advance(10 * time.Second)
	engine.Tick()

	bed, _ = store.Bed(1)
	assert.Equal(t, 589, bed.RemainingTime)
}

func TestTick_NotifiesExactlyOnceOnExpiry(t *testing.T) {
	store, _, notifier, engine, clock := timerFixture(t)
	startBed(store, clock, 1, 3)

	clock.advance(3 * time.Second)
	engine.Tick()
	assert.Equal(t, 1, notifier.count())

	// 继续超时倒数为负，不再重复提醒
	clock.advance(time.Second)
	engine.Tick()
	clock.advance(time.Second)
	engine.Tick()
	assert.Equal(t, 1, notifier.count())

	bed, _ := store.Bed(1)
	assert.Equal(t, -2, bed.RemainingTime)
	assert.Equal(t, models.BedStatusActive, bed.Status)
}

func TestTick_JumpPastZeroNotifiesOnce(t *testing.T) {
	store, _, notifier, engine, clock := timerFixture(t)
	startBed(store, clock, 1, 5)

	// 直接跳过零点
	clock.advance(20 * time.Second)
	engine.Tick()

	assert.Equal(t, 1, notifier.count())
	bed, _ := store.Bed(1)
	assert.Equal(t, -15, bed.RemainingTime)
}

func TestTick_SkipsPausedBed(t *testing.T) {
	store, _, notifier, engine, clock := timerFixture(t)
	startBed(store, clock, 1, 600)
	store.UpdateBedState(1, models.BedUpdate{IsPaused: models.BoolPtr(true)})

	clock.advance(30 * time.Second)
	engine.Tick()

	bed, _ := store.Bed(1)
	assert.Equal(t, 600, bed.RemainingTime)
	assert.Zero(t, notifier.count())
}

func TestTick_SkipsUntimedStep(t *testing.T) {
	store, _, notifier, engine, clock := timerFixture(t)
	// 第 2 步为无计时步骤
	store.UpdateBedState(1, models.BedUpdate{
		Status:           models.StatusPtr(models.BedStatusActive),
		CurrentPresetID:  models.StrPtr("p1"),
		CurrentStepIndex: models.IntPtr(1),
		StartTime:        models.Int64Ptr(clock.now().UnixMilli()),
	})

	clock.advance(30 * time.Second)
	engine.Tick()

	bed, _ := store.Bed(1)
	assert.Equal(t, 0, bed.RemainingTime)
	assert.Zero(t, notifier.count())
}

func TestTick_SkipsIdleAndCompleted(t *testing.T) {
	store, _, notifier, engine, clock := timerFixture(t)
	startBed(store, clock, 1, 600)
	store.UpdateBedState(1, models.BedUpdate{
		Status:    models.StatusPtr(models.BedStatusCompleted),
		StartTime: models.Int64Ptr(0),
	})

	clock.advance(30 * time.Second)
	engine.Tick()

	bed, _ := store.Bed(1)
	assert.Equal(t, 600, bed.RemainingTime)
	assert.Zero(t, notifier.count())
}

func TestEnsureRunning_IdleBoardDoesNotStart(t *testing.T) {
	_, _, _, engine, _ := timerFixture(t)

	engine.EnsureRunning()

	engine.mu.Lock()
	running := engine.running
	engine.mu.Unlock()
	assert.False(t, running)
}

func TestStopIfIdle_RechecksRunnableBeforeClearing(t *testing.T) {
	store, _, _, engine, clock := timerFixture(t)

	// 空板：循环退出并清除 running
	engine.mu.Lock()
	engine.running = true
	engine.mu.Unlock()
	assert.True(t, engine.stopIfIdle())

	engine.mu.Lock()
	running := engine.running
	engine.mu.Unlock()
	assert.False(t, running)

	// 复查时出现可跑床位（模拟退出判定与清除之间的开床）：循环继续
	startBed(store, clock, 1, 600)
	engine.mu.Lock()
	engine.running = true
	engine.mu.Unlock()
	assert.False(t, engine.stopIfIdle())

	engine.mu.Lock()
	running = engine.running
	engine.mu.Unlock()
	assert.True(t, running)
}

func TestEnsureRunning_StartsWithRunnableBed(t *testing.T) {
	store, _, _, engine, clock := timerFixture(t)
	startBed(store, clock, 1, 600)

	engine.EnsureRunning()
	defer engine.Stop()

	engine.mu.Lock()
	running := engine.running
	engine.mu.Unlock()
	require.True(t, running)
}
