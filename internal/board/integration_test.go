package board

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hansonjs80-design/PTperfect/internal/models"
)

func integrationFixture(t *testing.T) (*BedStore, *Integration, *Controls, *fakeNow) {
	t.Helper()

	presets := NewCatalog([]models.Preset{
		{ID: "p1", Name: "기본", Steps: []models.TreatmentStep{
			{ID: "s1", Name: "Hot Pack", Label: "HP", Duration: 600, EnableTimer: true},
			{ID: "s2", Name: "ICT", Label: "ICT", Duration: 900, EnableTimer: true},
		}},
	}, nil)

	store := NewBedStore(SeedBeds(3), nil, nil, nil, zap.NewNop())
	controls := NewControls(store, presets, 3*time.Second, zap.NewNop())
	integ := NewIntegration(store, presets, controls, zap.NewNop())

	clock := &fakeNow{t: time.UnixMilli(1000000)}
	store.now = clock.now
	controls.now = clock.now
	integ.now = clock.now
	return store, integ, controls, clock
}

func TestUpdateBedSteps_KeepsTimerWhenCurrentStepUnchanged(t *testing.T) {
	store, integ, _, clock := integrationFixture(t)
	activateBed(store, clock, 1)
	started := clock.now().UnixMilli()

	clock.advance(time.Minute)
	// 在末尾追加一步，当前步骤身份不变
	integ.UpdateBedSteps(1, []models.TreatmentStep{
		{ID: "s1", Name: "Hot Pack", Label: "HP", Duration: 600, EnableTimer: true},
		{ID: "s2", Name: "ICT", Label: "ICT", Duration: 900, EnableTimer: true},
		{ID: "s9", Name: "Laser", Label: "La", Duration: 300, EnableTimer: true},
	})

	bed, _ := store.Bed(1)
	require.NotNil(t, bed.CustomPreset)
	assert.Len(t, bed.CustomPreset.Steps, 3)
	// 计时锚点未被触碰
	assert.Equal(t, started, bed.StartTime)
	assert.Equal(t, 600, bed.TimerDuration)
}

func TestUpdateBedSteps_RestartsTimerWhenIdentityChanges(t *testing.T) {
	store, integ, _, clock := integrationFixture(t)
	activateBed(store, clock, 1)

	clock.advance(time.Minute)
	// 当前位置被替换为不同的步骤
	integ.UpdateBedSteps(1, []models.TreatmentStep{
		{ID: "s9", Name: "Laser", Label: "La", Duration: 300, EnableTimer: true},
		{ID: "s2", Name: "ICT", Label: "ICT", Duration: 900, EnableTimer: true},
	})

	bed, _ := store.Bed(1)
	assert.Equal(t, 300, bed.RemainingTime)
	assert.Equal(t, 300, bed.TimerDuration)
	assert.Equal(t, clock.now().UnixMilli(), bed.StartTime)
}

func TestUpdateBedSteps_ClampsIndexToLastStep(t *testing.T) {
	store, integ, _, clock := integrationFixture(t)
	activateBed(store, clock, 1)
	store.UpdateBedState(1, models.BedUpdate{CurrentStepIndex: models.IntPtr(1)})

	// 缩短为单步列表：索引收敛到末步
	integ.UpdateBedSteps(1, []models.TreatmentStep{
		{ID: "s9", Name: "Laser", Label: "La", Duration: 300, EnableTimer: true},
	})

	bed, _ := store.Bed(1)
	assert.Equal(t, 0, bed.CurrentStepIndex)
}

func TestUpdateBedSteps_IdleOrEmptyIsNoop(t *testing.T) {
	store, integ, _, clock := integrationFixture(t)

	integ.UpdateBedSteps(1, []models.TreatmentStep{{ID: "x"}})
	bed, _ := store.Bed(1)
	assert.Equal(t, models.BedStatusIdle, bed.Status)

	activateBed(store, clock, 1)
	integ.UpdateBedSteps(1, nil)
	bed, _ = store.Bed(1)
	assert.Nil(t, bed.CustomPreset)
}

func TestOverrideBedFromLog_EmptyTreatmentClearsBed(t *testing.T) {
	store, integ, _, clock := integrationFixture(t)
	activateBed(store, clock, 1)

	integ.OverrideBedFromLog(1, models.PatientVisit{TreatmentName: ""}, false)

	bed, _ := store.Bed(1)
	assert.Equal(t, models.BedStatusIdle, bed.Status)
}

func TestOverrideBedFromLog_ForceRestartsFromStepZero(t *testing.T) {
	store, integ, _, clock := integrationFixture(t)
	activateBed(store, clock, 1)
	store.UpdateBedState(1, models.BedUpdate{CurrentStepIndex: models.IntPtr(1)})

	integ.OverrideBedFromLog(1, models.PatientVisit{
		TreatmentName: "HP/ICT",
		IsInjection:   true,
	}, true)

	bed, _ := store.Bed(1)
	assert.Equal(t, models.BedStatusActive, bed.Status)
	assert.Equal(t, 0, bed.CurrentStepIndex)
	assert.True(t, bed.IsInjection)
	require.NotNil(t, bed.CustomPreset)
	assert.Equal(t, 600, bed.RemainingTime)
}

func TestOverrideBedFromLog_SameTreatmentSyncsFlagsOnly(t *testing.T) {
	store, integ, _, clock := integrationFixture(t)
	activateBed(store, clock, 1)
	store.UpdateBedState(1, models.BedUpdate{
		CurrentStepIndex: models.IntPtr(1),
		RemainingTime:    models.IntPtr(42),
	})

	integ.OverrideBedFromLog(1, models.PatientVisit{
		TreatmentName: "HP/ICT",
		IsFluid:       true,
	}, false)

	bed, _ := store.Bed(1)
	// 会话不被打断
	assert.Equal(t, 1, bed.CurrentStepIndex)
	assert.Equal(t, 42, bed.RemainingTime)
	assert.True(t, bed.IsFluid)
}

func TestMoveBedState_CopiesSessionAndClearsSource(t *testing.T) {
	store, integ, _, clock := integrationFixture(t)
	activateBed(store, clock, 1)
	store.UpdateBedState(1, models.BedUpdate{
		CurrentStepIndex: models.IntPtr(1),
		RemainingTime:    models.IntPtr(123),
		IsPaused:         models.BoolPtr(true),
		Memos:            map[int]string{1: "주의"},
	})

	integ.MoveBedState(1, 2)

	dest, _ := store.Bed(2)
	assert.Equal(t, models.BedStatusActive, dest.Status)
	assert.Equal(t, "p1", dest.CurrentPresetID)
	assert.Equal(t, 1, dest.CurrentStepIndex)
	assert.Equal(t, 123, dest.RemainingTime)
	assert.True(t, dest.IsPaused)
	assert.Equal(t, "주의", dest.Memos[1])

	src, _ := store.Bed(1)
	assert.Equal(t, models.BedStatusIdle, src.Status)
	assert.Empty(t, src.Memos)
}

func TestMoveBedState_UnknownBedsAreNoop(t *testing.T) {
	store, integ, _, clock := integrationFixture(t)
	activateBed(store, clock, 1)

	integ.MoveBedState(1, 99)
	integ.MoveBedState(99, 2)

	src, _ := store.Bed(1)
	assert.Equal(t, models.BedStatusActive, src.Status)
	dest, _ := store.Bed(2)
	assert.Equal(t, models.BedStatusIdle, dest.Status)
}
