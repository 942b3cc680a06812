package catalog

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hansonjs80-design/PTperfect/internal/models"
)

// DefaultStepDuration 日志字符串中无法识别的片段回退为 10 分钟通用步骤
const DefaultStepDuration = 600

// StandardTreatments 标准治疗项目表（快速开始与日志字符串解析的参照目录）
// Duration 单位为分钟
var StandardTreatments = []models.QuickTreatment{
	{ID: "hp", Name: "Hot Pack (핫팩)", Label: "HP", Duration: 10, EnableTimer: true, Color: "bg-red-500"},
	{ID: "ict", Name: "ICT (간섭파)", Label: "ICT", Duration: 15, EnableTimer: true, Color: "bg-blue-500"},
	{ID: "mg", Name: "Magnetic (자기장)", Label: "Mg", Duration: 15, EnableTimer: true, Color: "bg-purple-500"},
	{ID: "traction", Name: "Traction (견인)", Label: "견인", Duration: 15, EnableTimer: true, Color: "bg-orange-500"},
	{ID: "ir", Name: "IR (적외선)", Label: "IR", Duration: 10, EnableTimer: true, Color: "bg-amber-500"},
	{ID: "tens", Name: "TENS (경피신경자극)", Label: "TENS", Duration: 15, EnableTimer: true, Color: "bg-cyan-500"},
	{ID: "laser", Name: "Laser (레이저)", Label: "La", Duration: 10, EnableTimer: true, Color: "bg-rose-500"},
	{ID: "eswt", Name: "Shockwave (충격파)", Label: "ES", Duration: 10, EnableTimer: false, Color: "bg-indigo-500"},
	{ID: "exercise", Name: "Exercise (운동치료)", Label: "운동", Duration: 30, EnableTimer: false, Color: "bg-green-500"},
	{ID: "ion", Name: "ION (이온삼투)", Label: "ION", Duration: 15, EnableTimer: true, Color: "bg-teal-500"},
	{ID: "ice", Name: "Cold Pack (콜드팩)", Label: "Ice", Duration: 10, EnableTimer: true, Color: "bg-sky-500"},
	{ID: "mw", Name: "Microwave (마이크로웨이브)", Label: "MW", Duration: 10, EnableTimer: true, Color: "bg-yellow-500"},
	{ID: "cryo", Name: "Cryo (크라이오)", Label: "Cryo", Duration: 5, EnableTimer: true, Color: "bg-blue-300"},
	{ID: "manual", Name: "Manual (도수치료)", Label: "도수", Duration: 20, EnableTimer: false, Color: "bg-gray-500"},
}

// Abbreviation 从治疗名称推导徽章缩写
func Abbreviation(name string) string {
	upper := strings.ToUpper(name)
	switch {
	case strings.Contains(upper, "HOT PACK") || strings.Contains(name, "핫팩"):
		return "HP"
	case strings.Contains(upper, "ICT"):
		return "ICT"
	case strings.Contains(upper, "MAGNETIC") || strings.Contains(name, "자기장"):
		return "Mg"
	case strings.Contains(upper, "TRACTION") || strings.Contains(name, "견인"):
		return "견인"
	case strings.Contains(upper, "IR") || strings.Contains(name, "적외선"):
		return "IR"
	case strings.Contains(upper, "TENS"):
		return "TENS"
	case strings.Contains(upper, "LASER") || strings.Contains(name, "레이저"):
		return "La"
	case strings.Contains(upper, "SHOCKWAVE") || strings.Contains(name, "충격파"):
		return "ES"
	case strings.Contains(upper, "EXERCISE") || strings.Contains(name, "운동"):
		return "운동"
	case strings.Contains(upper, "ION") || strings.Contains(name, "이온"):
		return "ION"
	case strings.Contains(upper, "COLD") || strings.Contains(upper, "ICE") || strings.Contains(name, "콜드"):
		return "Ice"
	case strings.Contains(upper, "MICRO") || strings.Contains(upper, "MW") || strings.Contains(name, "마이크로"):
		return "MW"
	case strings.Contains(upper, "CRYO") || strings.Contains(name, "크라이오"):
		return "Cryo"
	case strings.Contains(upper, "MANUAL") || strings.Contains(name, "도수"):
		return "도수"
	}
	if idx := strings.Index(name, "("); idx >= 0 {
		return truncate(strings.TrimSpace(name[:idx]), 3)
	}
	return truncate(name, 3)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// StepLabel 步骤的显示标签（优先显式 label，回退自动缩写）
func StepLabel(step models.TreatmentStep) string {
	if step.Label != "" {
		return step.Label
	}
	return Abbreviation(step.Name)
}

// GenerateTreatmentString 将步骤列表序列化为日志用治疗字符串（仅标签，有损）
func GenerateTreatmentString(steps []models.TreatmentStep) string {
	labels := make([]string, 0, len(steps))
	for _, s := range steps {
		labels = append(labels, StepLabel(s))
	}
	return strings.Join(labels, "/")
}

// ParseTreatmentString 将治疗字符串还原为步骤列表
// 逐片段匹配参照目录；无法识别的片段降级为 10 分钟通用计时步骤而非整体失败
func ParseTreatmentString(treatmentName string, custom []models.QuickTreatment) []models.TreatmentStep {
	if treatmentName == "" {
		return nil
	}

	reference := StandardTreatments
	if len(custom) > 0 {
		reference = custom
	}

	var steps []models.TreatmentStep
	for _, part := range strings.Split(treatmentName, "/") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if match, ok := matchTreatment(reference, part); ok {
			steps = append(steps, models.TreatmentStep{
				ID:          uuid.New().String(),
				Name:        match.Name,
				Label:       match.Label,
				Duration:    match.Duration * 60,
				EnableTimer: match.EnableTimer,
				Color:       match.Color,
			})
			continue
		}

		steps = append(steps, models.TreatmentStep{
			ID:          uuid.New().String(),
			Name:        part,
			Label:       part,
			Duration:    DefaultStepDuration,
			EnableTimer: true,
			Color:       "bg-gray-500",
		})
	}
	return steps
}

func matchTreatment(reference []models.QuickTreatment, part string) (models.QuickTreatment, bool) {
	upper := strings.ToUpper(part)
	for _, t := range reference {
		if strings.ToUpper(t.Label) == upper ||
			strings.ToUpper(Abbreviation(t.Name)) == upper ||
			strings.Contains(strings.ToUpper(t.Name), upper) {
			return t, true
		}
	}
	return models.QuickTreatment{}, false
}

// FindMatchingPreset 按序列化结果精确匹配已知模板，失败则从字符串重建临时模板
func FindMatchingPreset(presets []models.Preset, treatmentName string, custom []models.QuickTreatment) *models.Preset {
	if treatmentName == "" {
		return nil
	}

	for i := range presets {
		if GenerateTreatmentString(presets[i].Steps) == treatmentName {
			p := presets[i].Clone()
			return p
		}
	}

	steps := ParseTreatmentString(treatmentName, custom)
	if len(steps) == 0 {
		return nil
	}
	return &models.Preset{
		ID:    "restored-" + uuid.New().String(),
		Name:  "치료 구성 (수정)",
		Steps: steps,
	}
}

// FormatTime 秒数格式化为 M:SS，超时以 +M:SS 表示
func FormatTime(seconds int) string {
	sign := ""
	if seconds < 0 {
		sign = "+"
		seconds = -seconds
	}
	return fmt.Sprintf("%s%d:%02d", sign, seconds/60, seconds%60)
}
