package dialog

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// State 是会话状态机的状态。买卖两条流程形状相同、互相独立。
type State string

const (
	StateIdle State = "idle"

	StateBuyAwaitingToken   State = "buy_awaiting_token"
	StateBuyAwaitingAmount  State = "buy_awaiting_amount"
	StateBuyAwaitingConfirm State = "buy_awaiting_confirm"

	StateSellAwaitingToken   State = "sell_awaiting_token"
	StateSellAwaitingAmount  State = "sell_awaiting_amount"
	StateSellAwaitingConfirm State = "sell_awaiting_confirm"
)

// Session 是单个用户的会话。State 决定哪些字段有效：进入 Idle 或开启
// 新流程时所有流程字段都被清空，不存在跨流程残留。
type Session struct {
	State       State
	TokenMint   string
	SolAmount   decimal.Decimal
	SellPercent int
	QuotedOut   uint64
	QuotedDecim uint8
	CreatedAt   time.Time
}

// Reset 把会话清回 Idle，清空所有流程字段。
func (s *Session) Reset() {
	*s = Session{State: StateIdle}
}

// begin 开启一个新流程，覆盖任何进行中的旧流程。
func (s *Session) begin(state State) {
	s.Reset()
	s.State = state
	s.CreatedAt = time.Now()
}

// sessionEntry 串行化同一用户的轮次处理。
type sessionEntry struct {
	mu      sync.Mutex
	session Session
}

// Sessions 按用户标识持有会话，每个用户同一时刻只有一个会话。
type Sessions struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
}

// NewSessions 创建会话表。
func NewSessions() *Sessions {
	return &Sessions{entries: make(map[string]*sessionEntry)}
}

// with 在持有该用户互斥锁的情况下执行 fn。同一用户的轮次严格串行，
// 不同用户互不阻塞。
func (m *Sessions) with(userID string, fn func(*Session)) {
	m.mu.Lock()
	entry, ok := m.entries[userID]
	if !ok {
		entry = &sessionEntry{session: Session{State: StateIdle}}
		m.entries[userID] = entry
	}
	m.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	fn(&entry.session)
}

// Peek 返回会话快照，测试用。
func (m *Sessions) Peek(userID string) Session {
	var snapshot Session
	m.with(userID, func(s *Session) {
		snapshot = *s
	})
	return snapshot
}
