package engine

import (
	"context"
	"log/slog"
	"time"

	"SolTradeBot/internal/solana"
	"SolTradeBot/pkg/logger"
)

// StatusReader 是轮询器依赖的交易状态查询能力。
type StatusReader interface {
	SignatureStatus(ctx context.Context, signature string) (solana.Commitment, bool, error)
}

// Poller 轮询交易状态直到 finalized 或超时。查询出错只记日志并继续，
// 终止条件只有两个：确认成功或到达截止时间。
type Poller struct {
	status   StatusReader
	timeout  time.Duration
	interval time.Duration
	log      *slog.Logger
}

// NewPoller 创建确认轮询器。
func NewPoller(status StatusReader, timeout, interval time.Duration) *Poller {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		status:   status,
		timeout:  timeout,
		interval: interval,
		log:      logger.Named("confirm"),
	}
}

// Confirm 阻塞等待交易到达 finalized 层级。返回 false 表示结果未知，
// 不代表交易失败。调用方必须在独立的 goroutine 中使用。
func (p *Poller) Confirm(ctx context.Context, signature string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	for {
		tier, seen, err := p.status.SignatureStatus(ctx, signature)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return false
			}
			p.log.Warn("查询交易状态失败，继续轮询", "signature", signature, "error", err)
		case seen && tier == solana.CommitmentFinalized:
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(p.interval):
		}
	}
}
