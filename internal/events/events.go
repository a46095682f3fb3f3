package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TradeEvent 记录一次交易执行的结果，供下游审计或通知系统消费。
// 对应原始实现中的交易流水记录。
type TradeEvent struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Direction  string `json:"direction"`
	Mint       string `json:"mint"`
	InAmount   uint64 `json:"in_amount"`
	OutAmount  uint64 `json:"out_amount"`
	Signature  string `json:"signature,omitempty"`
	Confirmed  bool   `json:"confirmed"`
	FailReason string `json:"fail_reason,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

// NewTradeEvent 生成带唯一 ID 和时间戳的事件。
func NewTradeEvent(userID, direction, mint string) TradeEvent {
	return TradeEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		Direction: direction,
		Mint:      mint,
		CreatedAt: time.Now().Unix(),
	}
}

// Publisher 抽象交易事件的发布方式。发布失败不影响交易结果本身。
type Publisher interface {
	Publish(ctx context.Context, event TradeEvent) error
}

// memoryRingSize 限制内存发布器保留的事件数量。
const memoryRingSize = 256

// MemoryPublisher 将事件保留在一个有界环中，供测试与单机部署使用。
type MemoryPublisher struct {
	mu     sync.Mutex
	events []TradeEvent
}

// NewMemoryPublisher 创建内存发布器。
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish 实现 Publisher。
func (p *MemoryPublisher) Publish(_ context.Context, event TradeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	if len(p.events) > memoryRingSize {
		p.events = p.events[len(p.events)-memoryRingSize:]
	}
	return nil
}

// Recent 返回最近发布的事件副本，最新的在最后。
func (p *MemoryPublisher) Recent() []TradeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TradeEvent, len(p.events))
	copy(out, p.events)
	return out
}
