package board

import (
	"sync"

	"github.com/hansonjs80-design/PTperfect/internal/models"
)

// PresetSource 治疗模板目录（设置面板可在运行时替换）
type PresetSource interface {
	Presets() []models.Preset
	QuickTreatments() []models.QuickTreatment
}

// Catalog 线程安全的模板目录实现
type Catalog struct {
	mu     sync.RWMutex
	preset []models.Preset
	quick  []models.QuickTreatment
}

// NewCatalog 创建模板目录
func NewCatalog(presets []models.Preset, quick []models.QuickTreatment) *Catalog {
	return &Catalog{preset: presets, quick: quick}
}

func (c *Catalog) Presets() []models.Preset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Preset, len(c.preset))
	copy(out, c.preset)
	return out
}

func (c *Catalog) QuickTreatments() []models.QuickTreatment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.QuickTreatment, len(c.quick))
	copy(out, c.quick)
	return out
}

// UpdatePresets 整体替换模板列表
func (c *Catalog) UpdatePresets(presets []models.Preset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preset = presets
}

// UpdateQuickTreatments 整体替换快速开始列表
func (c *Catalog) UpdateQuickTreatments(quick []models.QuickTreatment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quick = quick
}

// StepsFor 解析床位当前生效的步骤列表
// CustomPreset 优先于 CurrentPresetID 引用
func StepsFor(bed models.Bed, presets []models.Preset) []models.TreatmentStep {
	if bed.CustomPreset != nil {
		return bed.CustomPreset.Steps
	}
	if bed.CurrentPresetID != "" {
		for i := range presets {
			if presets[i].ID == bed.CurrentPresetID {
				return presets[i].Steps
			}
		}
	}
	return nil
}

// ActivePreset 解析床位当前生效的模板
func ActivePreset(bed models.Bed, presets []models.Preset) *models.Preset {
	if bed.CustomPreset != nil {
		return bed.CustomPreset
	}
	if bed.CurrentPresetID != "" {
		for i := range presets {
			if presets[i].ID == bed.CurrentPresetID {
				p := presets[i]
				return &p
			}
		}
	}
	return nil
}
