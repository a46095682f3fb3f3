package balance

import (
	"context"
	"errors"
	"testing"
	"time"

	"SolTradeBot/internal/tokens"
)

type stubChain struct {
	solBalance    uint64
	tokenBalance  uint64
	decimals      uint8
	decimalsCalls int
	balanceCalls  int
	err           error
}

func (s *stubChain) SolBalance(ctx context.Context, owner string) (uint64, error) {
	return s.solBalance, s.err
}

func (s *stubChain) TokenBalance(ctx context.Context, owner, mint string) (uint64, error) {
	s.balanceCalls++
	return s.tokenBalance, s.err
}

func (s *stubChain) TokenDecimals(ctx context.Context, mint string) (uint8, error) {
	s.decimalsCalls++
	return s.decimals, s.err
}

func TestTokenDecimalsCached(t *testing.T) {
	chain := &stubChain{decimals: 6}
	svc := NewService(chain, NewMemoryCache(), time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decimals, err := svc.TokenDecimals(ctx, "mint")
		if err != nil || decimals != 6 {
			t.Fatalf("unexpected result: %d, %v", decimals, err)
		}
	}
	if chain.decimalsCalls != 1 {
		t.Fatalf("expected one chain lookup, got %d", chain.decimalsCalls)
	}
}

func TestTokenBalanceAlwaysFresh(t *testing.T) {
	chain := &stubChain{tokenBalance: 1000}
	svc := NewService(chain, NewMemoryCache(), time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		amount, err := svc.TokenBalanceMinorUnits(ctx, "owner", "mint")
		if err != nil || amount != 1000 {
			t.Fatalf("unexpected result: %d, %v", amount, err)
		}
	}
	if chain.balanceCalls != 2 {
		t.Fatalf("sell-path balance reads must not be served from cache, got %d calls", chain.balanceCalls)
	}
}

func TestSnapshotUsesCacheForTokens(t *testing.T) {
	chain := &stubChain{solBalance: 5, tokenBalance: 777}
	svc := NewService(chain, NewMemoryCache(), time.Minute)
	ctx := context.Background()
	registry := tokens.Registry{Tokens: []tokens.Token{
		{Ticker: "SOL", Mint: tokens.WrappedSOL, Decimals: 9},
		{Ticker: "USDC", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
	}}

	// Warm the cache, then snapshot twice.
	if _, err := svc.TokenBalanceMinorUnits(ctx, "owner", registry.Tokens[1].Mint); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	for i := 0; i < 2; i++ {
		entries, err := svc.Snapshot(ctx, "owner", registry)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if len(entries) != 2 || entries[0].Amount != 5 || entries[1].Amount != 777 {
			t.Fatalf("unexpected entries: %+v", entries)
		}
	}
	if chain.balanceCalls != 1 {
		t.Fatalf("snapshot should hit cache, got %d chain calls", chain.balanceCalls)
	}
}

func TestChainErrorPropagates(t *testing.T) {
	chain := &stubChain{err: errors.New("rpc down")}
	svc := NewService(chain, NewMemoryCache(), time.Minute)
	if _, err := svc.TokenBalanceMinorUnits(context.Background(), "owner", "mint"); err == nil {
		t.Fatalf("expected error from chain")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()
	if err := cache.Set(ctx, "k", "v", -time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "k"); ok {
		t.Fatalf("expired entry should be a miss")
	}
}
