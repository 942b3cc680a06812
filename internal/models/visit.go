package models

import "time"

// PatientVisit 患者当日就诊记录（日志行），bed_id 为空表示未分配草稿行
// 字段命名与数据库列一致（snake_case），与床位侧的 camelCase 在边界处映射
type PatientVisit struct {
	ID            string    `json:"id"`
	BedID         *int      `json:"bed_id"`
	PatientName   string    `json:"patient_name"`
	BodyPart      string    `json:"body_part"`
	TreatmentName string    `json:"treatment_name"` // 步骤标签斜杠串（有损序列化边界）
	IsInjection   bool      `json:"is_injection"`
	IsFluid       bool      `json:"is_fluid"`
	IsTraction    bool      `json:"is_traction"`
	IsESWT        bool      `json:"is_eswt"`
	IsManual      bool      `json:"is_manual"`
	Memo          string    `json:"memo"`
	Author        string    `json:"author"`
	CreatedAt     time.Time `json:"created_at"`
}

// Clone 深拷贝
func (v PatientVisit) Clone() PatientVisit {
	out := v
	if v.BedID != nil {
		id := *v.BedID
		out.BedID = &id
	}
	return out
}

// CloneVisits 深拷贝就诊记录数组
func CloneVisits(visits []PatientVisit) []PatientVisit {
	out := make([]PatientVisit, len(visits))
	for i, v := range visits {
		out[i] = v.Clone()
	}
	return out
}

// VisitUpdate 就诊记录部分更新
// BedID 需配合 BedIDSet：BedIDSet=true 且 BedID=nil 表示解除床位分配
type VisitUpdate struct {
	BedID         *int
	BedIDSet      bool
	PatientName   *string
	BodyPart      *string
	TreatmentName *string
	IsInjection   *bool
	IsFluid       *bool
	IsTraction    *bool
	IsESWT        *bool
	IsManual      *bool
	Memo          *string
}

// Apply 将部分更新合并进就诊记录
func (v *PatientVisit) Apply(u VisitUpdate) {
	if u.BedIDSet {
		if u.BedID == nil {
			v.BedID = nil
		} else {
			id := *u.BedID
			v.BedID = &id
		}
	}
	if u.PatientName != nil {
		v.PatientName = *u.PatientName
	}
	if u.BodyPart != nil {
		v.BodyPart = *u.BodyPart
	}
	if u.TreatmentName != nil {
		v.TreatmentName = *u.TreatmentName
	}
	if u.IsInjection != nil {
		v.IsInjection = *u.IsInjection
	}
	if u.IsFluid != nil {
		v.IsFluid = *u.IsFluid
	}
	if u.IsTraction != nil {
		v.IsTraction = *u.IsTraction
	}
	if u.IsESWT != nil {
		v.IsESWT = *u.IsESWT
	}
	if u.IsManual != nil {
		v.IsManual = *u.IsManual
	}
	if u.Memo != nil {
		v.Memo = *u.Memo
	}
}

// DBPayload 将部分更新映射为数据库列，跳过未设置的字段
func (u VisitUpdate) DBPayload() map[string]interface{} {
	payload := map[string]interface{}{}
	if u.BedIDSet {
		if u.BedID == nil {
			payload["bed_id"] = nil
		} else {
			payload["bed_id"] = *u.BedID
		}
	}
	if u.PatientName != nil {
		payload["patient_name"] = *u.PatientName
	}
	if u.BodyPart != nil {
		payload["body_part"] = *u.BodyPart
	}
	if u.TreatmentName != nil {
		payload["treatment_name"] = *u.TreatmentName
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
	if u.Memo != nil {
		payload["memo"] = *u.Memo
	}
	return payload
}

// ClinicalFlags 床位与日志共享的临床标记（注射/输液/牵引/体外冲击波/徒手）
type ClinicalFlags struct {
	IsInjection bool
	IsFluid     bool
	IsTraction  bool
	IsESWT      bool
	IsManual    bool
}

// BedUpdate 将标记集展开为床位部分更新（整组显式写入）
func (f ClinicalFlags) BedUpdate() BedUpdate {
	return BedUpdate{
		IsInjection: BoolPtr(f.IsInjection),
		IsFluid:     BoolPtr(f.IsFluid),
		IsTraction:  BoolPtr(f.IsTraction),
		IsESWT:      BoolPtr(f.IsESWT),
		IsManual:    BoolPtr(f.IsManual),
	}
}

// FlagsOf 从床位记录提取临床标记
func FlagsOf(b Bed) ClinicalFlags {
	return ClinicalFlags{
		IsInjection: b.IsInjection,
		IsFluid:     b.IsFluid,
		IsTraction:  b.IsTraction,
		IsESWT:      b.IsESWT,
		IsManual:    b.IsManual,
	}
}

// VisitFlagsOf 从就诊记录提取临床标记
func VisitFlagsOf(v PatientVisit) ClinicalFlags {
	return ClinicalFlags{
		IsInjection: v.IsInjection,
		IsFluid:     v.IsFluid,
		IsTraction:  v.IsTraction,
		IsESWT:      v.IsESWT,
		IsManual:    v.IsManual,
	}
}
