package catalog

import (
	"github.com/google/uuid"

	"github.com/hansonjs80-design/PTperfect/internal/models"
)

// NewQuickStep 从快速开始模板构建一个治疗步骤
func NewQuickStep(t models.QuickTreatment) models.TreatmentStep {
	label := t.Label
	if label == "" {
		label = Abbreviation(t.Name)
	}
	return models.TreatmentStep{
		ID:          uuid.New().String(),
		Name:        t.Name,
		Label:       label,
		Duration:    t.Duration * 60,
		EnableTimer: t.EnableTimer,
		Color:       t.Color,
	}
}

// NewCustomPreset 构建临时自定义模板
func NewCustomPreset(name string, steps []models.TreatmentStep) *models.Preset {
	copied := make([]models.TreatmentStep, len(steps))
	copy(copied, steps)
	return &models.Preset{
		ID:    "custom-" + uuid.New().String(),
		Name:  name,
		Steps: copied,
	}
}

// NewTractionPreset 构建牵引治疗单步模板
func NewTractionPreset(durationMinutes int) *models.Preset {
	return &models.Preset{
		ID:   "traction-" + uuid.New().String(),
		Name: "견인 치료",
		Steps: []models.TreatmentStep{{
			ID:          "tr",
			Name:        "견인 (Traction)",
			Label:       "견인",
			Duration:    durationMinutes * 60,
			EnableTimer: true,
			Color:       "bg-orange-500",
		}},
	}
}

// SwappedPreset 交换两个步骤后构建自定义模板
// 索引越界或步骤为空时返回 nil（调用方按 no-op 处理）
func SwappedPreset(base *models.Preset, idx1, idx2 int) *models.Preset {
	if base == nil || len(base.Steps) == 0 {
		return nil
	}
	if idx1 < 0 || idx1 >= len(base.Steps) || idx2 < 0 || idx2 >= len(base.Steps) {
		return nil
	}

	out := base.Clone()
	out.Steps[idx1], out.Steps[idx2] = out.Steps[idx2], out.Steps[idx1]
	return out
}

// DefaultPresets 常用治疗组合模板
func DefaultPresets() []models.Preset {
	combo := func(id, name string, itemIDs ...string) models.Preset {
		var steps []models.TreatmentStep
		for _, itemID := range itemIDs {
			for _, t := range StandardTreatments {
				if t.ID == itemID {
					steps = append(steps, NewQuickStep(t))
					break
				}
			}
		}
		return models.Preset{ID: id, Name: name, Steps: steps}
	}

	return []models.Preset{
		combo("preset-basic", "기본 물리치료", "hp", "ict"),
		combo("preset-basic-laser", "기본+레이저", "hp", "ict", "laser"),
		combo("preset-traction", "견인 코스", "hp", "traction", "ict"),
		combo("preset-magnetic", "자기장 코스", "hp", "mg"),
		combo("preset-manual", "도수 코스", "hp", "manual"),
	}
}
