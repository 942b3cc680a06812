package history

import (
	"sync"
	"time"

	"github.com/hansonjs80-design/PTperfect/internal/models"
)

// Snapshot 变更前的 {床位, 日志} 深拷贝
type Snapshot struct {
	Beds   []models.Bed
	Visits []models.PatientVisit
}

func snapshotOf(beds []models.Bed, visits []models.PatientVisit) Snapshot {
	return Snapshot{
		Beds:   models.CloneBeds(beds),
		Visits: models.CloneVisits(visits),
	}
}

// Manager 撤销/重做管理器（双栈）
// 快照有界（超出深度淘汰最旧）且去抖：距上一条不足去抖窗口的快照被丢弃，
// 避免连续快速点按灌满历史
type Manager struct {
	mu        sync.Mutex
	past      []Snapshot // past[0] 为最新
	future    []Snapshot
	maxDepth  int
	debounce  time.Duration
	lastSaved time.Time
	now       func() time.Time
}

// NewManager 创建历史管理器
func NewManager(maxDepth int, debounce time.Duration) *Manager {
	return &Manager{
		maxDepth: maxDepth,
		debounce: debounce,
		now:      time.Now,
	}
}

// SaveSnapshot 在变更动作前保存当前状态
// 新动作产生新的时间线分支，重做栈随之清空；返回快照是否被记录
func (m *Manager) SaveSnapshot(beds []models.Bed, visits []models.PatientVisit) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.lastSaved.IsZero() && now.Sub(m.lastSaved) < m.debounce {
		return false
	}

	m.past = append([]Snapshot{snapshotOf(beds, visits)}, m.past...)
	if len(m.past) > m.maxDepth {
		m.past = m.past[:m.maxDepth]
	}
	m.future = nil
	m.lastSaved = now
	return true
}

// Undo 弹出最近快照；当前状态入重做栈
// 历史为空时返回 ok=false，调用方按 no-op 处理
func (m *Manager) Undo(currentBeds []models.Bed, currentVisits []models.PatientVisit) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.past) == 0 {
		return Snapshot{}, false
	}

	restored := m.past[0]
	m.past = m.past[1:]
	m.future = append([]Snapshot{snapshotOf(currentBeds, currentVisits)}, m.future...)
	return restored, true
}

// Redo 弹出重做栈顶；当前状态回到撤销栈
func (m *Manager) Redo(currentBeds []models.Bed, currentVisits []models.PatientVisit) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.future) == 0 {
		return Snapshot{}, false
	}

	restored := m.future[0]
	m.future = m.future[1:]
	m.past = append([]Snapshot{snapshotOf(currentBeds, currentVisits)}, m.past...)
	return restored, true
}

// CanUndo 撤销栈非空
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.past) > 0
}

// CanRedo 重做栈非空
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.future) > 0
}
