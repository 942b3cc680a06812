package board

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hansonjs80-design/PTperfect/internal/models"
)

func actionsFixture(t *testing.T) (*BedStore, *Actions, *fakeNow, *[]models.PatientVisit) {
	t.Helper()

	presets := NewCatalog([]models.Preset{
		{ID: "p1", Name: "기본", Steps: []models.TreatmentStep{
			{ID: "s1", Name: "Hot Pack", Label: "HP", Duration: 600, EnableTimer: true},
			{ID: "s2", Name: "ICT", Label: "ICT", Duration: 900, EnableTimer: true},
		}},
	}, nil)

	store := NewBedStore(SeedBeds(3), nil, nil, nil, zap.NewNop())
	actions := NewActions(store, presets, zap.NewNop())

	clock := &fakeNow{t: time.UnixMilli(1000000)}
	store.now = clock.now
	actions.now = clock.now

	created := &[]models.PatientVisit{}
	actions.BindVisitCreator(func(v models.PatientVisit) (string, error) {
		*created = append(*created, v)
		return "visit-id", nil
	})
	return store, actions, clock, created
}

func TestSelectPreset_StartsFirstStep(t *testing.T) {
	store, actions, clock, created := actionsFixture(t)

	actions.SelectPreset(1, "p1", StartOptions{PatientName: "홍길동", Author: "PT"})

	bed, _ := store.Bed(1)
	assert.Equal(t, models.BedStatusActive, bed.Status)
	assert.Equal(t, "p1", bed.CurrentPresetID)
	assert.Nil(t, bed.CustomPreset)
	assert.Equal(t, 0, bed.CurrentStepIndex)
	assert.Equal(t, 600, bed.RemainingTime)
	assert.Equal(t, 600, bed.TimerDuration)
	assert.Equal(t, clock.now().UnixMilli(), bed.StartTime)

	// 对应就诊记录被创建
	require.Len(t, *created, 1)
	visit := (*created)[0]
	require.NotNil(t, visit.BedID)
	assert.Equal(t, 1, *visit.BedID)
	assert.Equal(t, "홍길동", visit.PatientName)
	assert.Equal(t, "HP/ICT", visit.TreatmentName)
	assert.Equal(t, "PT", visit.Author)
}

func TestSelectPreset_UnknownIDIsNoop(t *testing.T) {
	store, actions, _, created := actionsFixture(t)

	actions.SelectPreset(1, "nonexistent", StartOptions{})

	bed, _ := store.Bed(1)
	assert.Equal(t, models.BedStatusIdle, bed.Status)
	assert.Empty(t, *created)
}

func TestStartCustomPreset(t *testing.T) {
	store, actions, _, created := actionsFixture(t)

	actions.StartCustomPreset(2, "커스텀", []models.TreatmentStep{
		{ID: "x1", Name: "Laser", Label: "La", Duration: 300, EnableTimer: true},
	}, StartOptions{})

	bed, _ := store.Bed(2)
	assert.Equal(t, models.BedStatusActive, bed.Status)
	assert.Empty(t, bed.CurrentPresetID)
	require.NotNil(t, bed.CustomPreset)
	assert.Equal(t, "커스텀", bed.CustomPreset.Name)
	assert.Equal(t, 300, bed.RemainingTime)

	require.Len(t, *created, 1)
	assert.Equal(t, "La", (*created)[0].TreatmentName)
}

func TestStartCustomPreset_EmptyStepsIsNoop(t *testing.T) {
	store, actions, _, _ := actionsFixture(t)
	actions.StartCustomPreset(1, "빈", nil, StartOptions{})
	bed, _ := store.Bed(1)
	assert.Equal(t, models.BedStatusIdle, bed.Status)
}

func TestStartQuickTreatment(t *testing.T) {
	store, actions, _, created := actionsFixture(t)

	actions.StartQuickTreatment(1, models.QuickTreatment{
		ID: "q1", Name: "Ice Pack", Label: "Ice", Duration: 15, EnableTimer: true,
	}, StartOptions{})

	bed, _ := store.Bed(1)
	assert.Equal(t, models.BedStatusActive, bed.Status)
	require.NotNil(t, bed.CustomPreset)
	require.Len(t, bed.CustomPreset.Steps, 1)
	// 快速项时长以分钟配置，步骤以秒计
	assert.Equal(t, 900, bed.RemainingTime)
	require.Len(t, *created, 1)
}

func TestStartTraction_ForcesTractionFlag(t *testing.T) {
	store, actions, _, created := actionsFixture(t)

	actions.StartTraction(3, 10, StartOptions{PatientName: "이몽룡"})

	bed, _ := store.Bed(3)
	assert.Equal(t, models.BedStatusActive, bed.Status)
	assert.True(t, bed.IsTraction)
	assert.Equal(t, 600, bed.RemainingTime)
	require.NotNil(t, bed.CustomPreset)
	assert.Equal(t, "견인 치료", bed.CustomPreset.Name)

	require.Len(t, *created, 1)
	assert.True(t, (*created)[0].IsTraction)
}

func TestStart_SkipVisit(t *testing.T) {
	_, actions, _, created := actionsFixture(t)

	actions.SelectPreset(1, "p1", StartOptions{SkipVisit: true})

	assert.Empty(t, *created)
}

func TestStart_UnknownBedIsNoop(t *testing.T) {
	_, actions, _, created := actionsFixture(t)
	actions.SelectPreset(99, "p1", StartOptions{})
	assert.Empty(t, *created)
}

func TestStart_FlagsCopiedToBedAndVisit(t *testing.T) {
	store, actions, _, created := actionsFixture(t)

	actions.SelectPreset(1, "p1", StartOptions{
		Flags: models.ClinicalFlags{IsInjection: true, IsFluid: true},
	})

	bed, _ := store.Bed(1)
	assert.True(t, bed.IsInjection)
	assert.True(t, bed.IsFluid)
	assert.False(t, bed.IsManual)

	require.Len(t, *created, 1)
	assert.True(t, (*created)[0].IsInjection)
	assert.True(t, (*created)[0].IsFluid)
}
