package balance

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"SolTradeBot/internal/tokens"
	"SolTradeBot/pkg/logger"
)

// ChainReader 是余额服务依赖的链上查询能力。
type ChainReader interface {
	SolBalance(ctx context.Context, owner string) (uint64, error)
	TokenBalance(ctx context.Context, owner, mint string) (uint64, error)
	TokenDecimals(ctx context.Context, mint string) (uint8, error)
}

// Cache 抽象余额与精度的缓存后端，可选内存或 Redis 实现。
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// decimalsTTL 远大于余额 TTL：mint 精度在链上不可变。
const decimalsTTL = 24 * time.Hour

// Service 是余额协作方：交易引擎读取实时余额，余额视图允许读缓存。
type Service struct {
	chain ChainReader
	cache Cache
	ttl   time.Duration
	log   *slog.Logger
}

// Entry 是余额视图中的一行。
type Entry struct {
	Ticker   string
	Mint     string
	Amount   uint64
	Decimals uint8
}

// NewService 创建余额服务。ttl 控制余额缓存的新鲜度。
func NewService(chain ChainReader, cache Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{
		chain: chain,
		cache: cache,
		ttl:   ttl,
		log:   logger.Named("balance"),
	}
}

// SolBalance 返回原生余额（lamports），总是实时查询。
func (s *Service) SolBalance(ctx context.Context, owner string) (uint64, error) {
	return s.chain.SolBalance(ctx, owner)
}

// TokenBalanceMinorUnits 返回代币最小单位余额。卖出路径依赖它，
// 因此总是实时查询链上数据，同时刷新缓存供余额视图使用。
func (s *Service) TokenBalanceMinorUnits(ctx context.Context, owner, mint string) (uint64, error) {
	amount, err := s.chain.TokenBalance(ctx, owner, mint)
	if err != nil {
		return 0, err
	}
	s.cacheSet(ctx, balanceKey(owner, mint), strconv.FormatUint(amount, 10), s.ttl)
	return amount, nil
}

// TokenDecimals 返回 mint 的精度，优先读缓存。
func (s *Service) TokenDecimals(ctx context.Context, mint string) (uint8, error) {
	key := decimalsKey(mint)
	if cached, ok := s.cacheGet(ctx, key); ok {
		if parsed, err := strconv.ParseUint(cached, 10, 8); err == nil {
			return uint8(parsed), nil
		}
	}
	decimals, err := s.chain.TokenDecimals(ctx, mint)
	if err != nil {
		return 0, err
	}
	s.cacheSet(ctx, key, strconv.FormatUint(uint64(decimals), 10), decimalsTTL)
	return decimals, nil
}

// Snapshot 汇总已知代币的余额，用于余额视图。允许命中缓存。
func (s *Service) Snapshot(ctx context.Context, owner string, registry tokens.Registry) ([]Entry, error) {
	entries := make([]Entry, 0, len(registry.Tokens))
	for _, tok := range registry.Tokens {
		entry := Entry{Ticker: tok.Ticker, Mint: tok.Mint, Decimals: tok.Decimals}
		if tok.Mint == tokens.WrappedSOL {
			amount, err := s.chain.SolBalance(ctx, owner)
			if err != nil {
				return nil, fmt.Errorf("查询 %s 余额失败: %w", tok.Ticker, err)
			}
			entry.Amount = amount
		} else {
			amount, err := s.cachedTokenBalance(ctx, owner, tok.Mint)
			if err != nil {
				return nil, fmt.Errorf("查询 %s 余额失败: %w", tok.Ticker, err)
			}
			entry.Amount = amount
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) cachedTokenBalance(ctx context.Context, owner, mint string) (uint64, error) {
	if cached, ok := s.cacheGet(ctx, balanceKey(owner, mint)); ok {
		if parsed, err := strconv.ParseUint(cached, 10, 64); err == nil {
			return parsed, nil
		}
	}
	return s.TokenBalanceMinorUnits(ctx, owner, mint)
}

// cacheGet 容忍缓存故障：读失败降级为未命中。
func (s *Service) cacheGet(ctx context.Context, key string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	value, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("缓存读取失败", "key", key, "error", err)
		return "", false
	}
	return value, ok
}

func (s *Service) cacheSet(ctx context.Context, key, value string, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.log.Warn("缓存写入失败", "key", key, "error", err)
	}
}

func balanceKey(owner, mint string) string {
	return "balance:" + owner + ":" + mint
}

func decimalsKey(mint string) string {
	return "decimals:" + mint
}
