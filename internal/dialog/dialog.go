// dialog.go
package dialog

import (
	"sync"
	"time"

	"image-compressor/internal/models"

	"github.com/sirupsen/logrus"
)

// Stage 对话阶段
type Stage string

const (
	StageAwaitingKey  Stage = "awaiting_key"  // /setkey 后等待用户发送 Key
	StageAwaitingFile Stage = "awaiting_file" // /convert 选择格式后等待图片
)

// State 单个用户的对话状态
type State struct {
	UserID    int64
	ChatID    int64
	Stage     Stage
	Format    models.Format // StageAwaitingFile 时的目标格式
	StartedAt time.Time
	MessageID int // 提示消息ID，超时后可编辑
}

type entry struct {
	state State
	timer *time.Timer
}

// Manager 管理所有用户的对话状态，超时自动清除
type Manager struct {
	mu        sync.Mutex
	dialogs   map[int64]*entry
	timeout   time.Duration
	onTimeout func(State)
}

// NewManager timeout<=0 时不自动过期
func NewManager(timeout time.Duration) *Manager {
	return &Manager{dialogs: make(map[int64]*entry), timeout: timeout}
}

// OnTimeout 注册超时回调（在独立 goroutine 中调用）
func (m *Manager) OnTimeout(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTimeout = fn
}

// Start 开始或替换用户的对话
func (m *Manager) Start(state State) {
	if state.StartedAt.IsZero() {
		state.StartedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.dialogs[state.UserID]; ok && old.timer != nil {
		old.timer.Stop()
	}
	e := &entry{state: state}
	if m.timeout > 0 {
		e.timer = time.AfterFunc(m.timeout, func() { m.expire(state.UserID, e) })
	}
	m.dialogs[state.UserID] = e
	logrus.Debugf("用户 %d 开始对话: %s", state.UserID, state.Stage)
}

// Get 返回用户当前对话
func (m *Manager) Get(userID int64) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.dialogs[userID]
	if !ok {
		return State{}, false
	}
	return e.state, true
}

// Take 取出并结束用户对话
func (m *Manager) Take(userID int64) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.dialogs[userID]
	if !ok {
		return State{}, false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(m.dialogs, userID)
	return e.state, true
}

// Cancel 结束用户对话，返回是否存在
func (m *Manager) Cancel(userID int64) bool {
	_, ok := m.Take(userID)
	return ok
}

// Active 当前活跃对话数
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dialogs)
}

func (m *Manager) expire(userID int64, e *entry) {
	m.mu.Lock()
	current, ok := m.dialogs[userID]
	if !ok || current != e {
		m.mu.Unlock()
		return
	}
	delete(m.dialogs, userID)
	cb := m.onTimeout
	m.mu.Unlock()

	logrus.Debugf("用户 %d 对话超时: %s", userID, e.state.Stage)
	if cb != nil {
		cb(e.state)
	}
}
