package models

import (
	"encoding/json"
)

// BedStatus 床位状态
type BedStatus string

const (
	BedStatusIdle      BedStatus = "idle"      // 空床
	BedStatusActive    BedStatus = "active"    // 治疗中（含暂停）
	BedStatusCompleted BedStatus = "completed" // 最后一步已完成，等待清床
)

// TreatmentStep 治疗步骤（一次治疗会话中的一个阶段）
type TreatmentStep struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Label       string `json:"label"`       // 徽章短文本（如 "HP"、"견인"）
	Duration    int    `json:"duration"`    // 秒
	EnableTimer bool   `json:"enableTimer"` // false = 无倒计时步骤（如徒手治疗）
	Color       string `json:"color"`       // 仅用于显示分组
}

// Preset 命名的治疗模板（有序步骤列表，模板本身不可变）
type Preset struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Steps []TreatmentStep `json:"steps"`
}

// Clone 深拷贝
func (p *Preset) Clone() *Preset {
	if p == nil {
		return nil
	}
	steps := make([]TreatmentStep, len(p.Steps))
	copy(steps, p.Steps)
	return &Preset{ID: p.ID, Name: p.Name, Steps: steps}
}

// QuickTreatment 快速开始项（单步治疗模板）
type QuickTreatment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Label       string `json:"label"`
	Duration    int    `json:"duration"` // 分钟
	EnableTimer bool   `json:"enableTimer"`
	Color       string `json:"color"`
}

// Bed 床位记录（物理床位固定存在，仅状态流转）
// 内存/缓存使用 camelCase JSON，数据库列使用 snake_case（见 DBPayload）
type Bed struct {
	ID               int            `json:"id"`
	Status           BedStatus      `json:"status"`
	CurrentPresetID  string         `json:"currentPresetId,omitempty"`
	CustomPreset     *Preset        `json:"customPreset,omitempty"` // 存在时优先于 CurrentPresetID
	CurrentStepIndex int            `json:"currentStepIndex"`
	RemainingTime    int            `json:"remainingTime"` // 秒，可为负（超时）
	TimerDuration    int            `json:"timerDuration"` // 当前倒计时的完整长度（锚点）
	StartTime        int64          `json:"startTime"`     // Unix 毫秒，0 = 无计时
	IsPaused         bool           `json:"isPaused"`
	IsInjection      bool           `json:"isInjection"`
	IsFluid          bool           `json:"isFluid"`
	IsTraction       bool           `json:"isTraction"`
	IsESWT           bool           `json:"isESWT"`
	IsManual         bool           `json:"isManual"`
	Memos            map[int]string `json:"memos,omitempty"` // 步骤索引 → 备注
	LastUpdateTS     int64          `json:"lastUpdateTimestamp"`
}

// NewIdleBed 创建空床记录
func NewIdleBed(id int) Bed {
	return Bed{
		ID:     id,
		Status: BedStatusIdle,
		Memos:  map[int]string{},
	}
}

// Clone 深拷贝（快照/恢复使用）
func (b Bed) Clone() Bed {
	out := b
	out.CustomPreset = b.CustomPreset.Clone()
	if b.Memos != nil {
		out.Memos = make(map[int]string, len(b.Memos))
		for k, v := range b.Memos {
			out.Memos[k] = v
		}
	}
	return out
}

// CloneBeds 深拷贝床位数组
func CloneBeds(beds []Bed) []Bed {
	out := make([]Bed, len(beds))
	for i, b := range beds {
		out[i] = b.Clone()
	}
	return out
}

// BedUpdate 床位部分更新（nil 字段表示保持不变）
// CurrentPresetID 指向空字符串表示清除模板引用；
// CustomPreset 仅在 CustomPresetSet=true 时写入（可为 nil 以清除）。
type BedUpdate struct {
	Status           *BedStatus
	CurrentPresetID  *string
	CustomPreset     *Preset
	CustomPresetSet  bool
	CurrentStepIndex *int
	RemainingTime    *int
	TimerDuration    *int
	StartTime        *int64
	IsPaused         *bool
	IsInjection      *bool
	IsFluid          *bool
	IsTraction       *bool
	IsESWT           *bool
	IsManual         *bool
	Memos            map[int]string // 非 nil 时整体替换
}

// Apply 将部分更新合并进床位记录
func (b *Bed) Apply(u BedUpdate) {
	if u.Status != nil {
		b.Status = *u.Status
	}
	if u.CurrentPresetID != nil {
		b.CurrentPresetID = *u.CurrentPresetID
	}
	if u.CustomPresetSet {
		b.CustomPreset = u.CustomPreset.Clone()
	}
	if u.CurrentStepIndex != nil {
		b.CurrentStepIndex = *u.CurrentStepIndex
	}
	if u.RemainingTime != nil {
		b.RemainingTime = *u.RemainingTime
	}
	if u.TimerDuration != nil {
		b.TimerDuration = *u.TimerDuration
	}
	if u.StartTime != nil {
		b.StartTime = *u.StartTime
	}
	if u.IsPaused != nil {
		b.IsPaused = *u.IsPaused
	}
	if u.IsInjection != nil {
		b.IsInjection = *u.IsInjection
	}
	if u.IsFluid != nil {
		b.IsFluid = *u.IsFluid
	}
	if u.IsTraction != nil {
		b.IsTraction = *u.IsTraction
	}
	if u.IsESWT != nil {
		b.IsESWT = *u.IsESWT
	}
	if u.IsManual != nil {
		b.IsManual = *u.IsManual
	}
	if u.Memos != nil {
		m := make(map[int]string, len(u.Memos))
		for k, v := range u.Memos {
			m[k] = v
		}
		b.Memos = m
	}
}

// DBPayload 将部分更新映射为数据库列（snake_case），跳过未设置的字段
func (u BedUpdate) DBPayload() map[string]interface{} {
	payload := map[string]interface{}{}
	if u.Status != nil {
		payload["status"] = string(*u.Status)
	}
	if u.CurrentPresetID != nil {
		if *u.CurrentPresetID == "" {
			payload["current_preset_id"] = nil
		} else {
			payload["current_preset_id"] = *u.CurrentPresetID
		}
	}
	if u.CustomPresetSet {
		payload["custom_preset_json"] = marshalOrNil(u.CustomPreset)
	}
	if u.CurrentStepIndex != nil {
		payload["current_step_index"] = *u.CurrentStepIndex
	}
	if u.RemainingTime != nil {
		payload["remaining_time"] = *u.RemainingTime
	}
	if u.TimerDuration != nil {
		payload["timer_duration"] = *u.TimerDuration
	}
	if u.StartTime != nil {
		payload["start_time"] = *u.StartTime
	}
	if u.IsPaused != nil {
		payload["is_paused"] = *u.IsPaused
	}
	if u.IsInjection != nil {
		payload["is_injection"] = *u.IsInjection
	}
	if u.IsFluid != nil {
		payload["is_fluid"] = *u.IsFluid
	}
	if u.IsTraction != nil {
		payload["is_traction"] = *u.IsTraction
	}
	if u.IsESWT != nil {
		payload["is_eswt"] = *u.IsESWT
	}
	if u.IsManual != nil {
		payload["is_manual"] = *u.IsManual
	}
	if u.Memos != nil {
		data, _ := json.Marshal(u.Memos)
		payload["memos_json"] = string(data)
	}
	return payload
}

// FullDBPayload 整行映射（批量 upsert 使用）
// 恢复快照时必须显式写 NULL 清除缺失字段，部分更新无法区分"未变"与"已清除"
func (b Bed) FullDBPayload() map[string]interface{} {
	memos, _ := json.Marshal(b.Memos)
	payload := map[string]interface{}{
		"id":                 b.ID,
		"status":             string(b.Status),
		"current_preset_id":  nil,
		"custom_preset_json": marshalOrNil(b.CustomPreset),
		"current_step_index": b.CurrentStepIndex,
		"remaining_time":     b.RemainingTime,
		"timer_duration":     b.TimerDuration,
		"start_time":         b.StartTime,
		"is_paused":          b.IsPaused,
		"is_injection":       b.IsInjection,
		"is_fluid":           b.IsFluid,
		"is_traction":        b.IsTraction,
		"is_eswt":            b.IsESWT,
		"is_manual":          b.IsManual,
		"memos_json":         string(memos),
		"last_update_ts":     b.LastUpdateTS,
	}
	if b.CurrentPresetID != "" {
		payload["current_preset_id"] = b.CurrentPresetID
	}
	return payload
}

func marshalOrNil(p *Preset) interface{} {
	if p == nil {
		return nil
	}
	data, _ := json.Marshal(p)
	return string(data)
}

// 指针辅助函数（构造 BedUpdate/VisitUpdate 用）

func IntPtr(v int) *int             { return &v }
func Int64Ptr(v int64) *int64       { return &v }
func StrPtr(v string) *string       { return &v }
func BoolPtr(v bool) *bool          { return &v }
func StatusPtr(v BedStatus) *BedStatus { return &v }
