package dialog

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"SolTradeBot/internal/balance"
	"SolTradeBot/internal/engine"
	xerrors "SolTradeBot/internal/errors"
	"SolTradeBot/internal/tokens"
	"SolTradeBot/internal/wallet"
)

const testMint = "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6A"

type stubMessenger struct {
	mu    sync.Mutex
	texts []string
}

func (m *stubMessenger) Send(_ context.Context, _ string, text string, _ Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

func (m *stubMessenger) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.texts) == 0 {
		return ""
	}
	return m.texts[len(m.texts)-1]
}

type stubTrader struct {
	mu          sync.Mutex
	estimate    *engine.Estimate
	estimateErr error
	result      *engine.Result
	execErr     error

	estimateCalls int
	buyCalls      int
	sellCalls     int
	lastMint      string
	lastSol       decimal.Decimal
	lastPercent   int
}

func (t *stubTrader) Buy(_ context.Context, _ string, mint string, solIn decimal.Decimal) (*engine.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buyCalls++
	t.lastMint = mint
	t.lastSol = solIn
	return t.result, t.execErr
}

func (t *stubTrader) Sell(_ context.Context, _ string, mint string, percent int) (*engine.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sellCalls++
	t.lastMint = mint
	t.lastPercent = percent
	return t.result, t.execErr
}

func (t *stubTrader) EstimateBuy(_ context.Context, _ string, mint string, solIn decimal.Decimal) (*engine.Estimate, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.estimateCalls++
	t.lastMint = mint
	t.lastSol = solIn
	return t.estimate, t.estimateErr
}

func (t *stubTrader) EstimateSell(_ context.Context, _ string, mint string, percent int) (*engine.Estimate, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.estimateCalls++
	t.lastMint = mint
	t.lastPercent = percent
	return t.estimate, t.estimateErr
}

type stubWallets struct {
	mu    sync.Mutex
	creds map[string]*wallet.Credential
	saves int
}

func newStubWallets(userIDs ...string) *stubWallets {
	s := &stubWallets{creds: make(map[string]*wallet.Credential)}
	for _, id := range userIDs {
		cred, err := wallet.Generate(id)
		if err != nil {
			panic(err)
		}
		s.creds[id] = cred
	}
	return s
}

func (s *stubWallets) GetCredential(_ context.Context, userID string) (*wallet.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[userID]
	if !ok {
		return nil, wallet.ErrNotFound
	}
	return cred, nil
}

func (s *stubWallets) GetAddress(ctx context.Context, userID string) (string, error) {
	cred, err := s.GetCredential(ctx, userID)
	if err != nil {
		return "", err
	}
	return cred.Address, nil
}

func (s *stubWallets) Save(_ context.Context, cred *wallet.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.creds[cred.UserID] = cred
	return nil
}

type stubBalances struct {
	entries []balance.Entry
	err     error
}

func (s *stubBalances) Snapshot(context.Context, string, tokens.Registry) ([]balance.Entry, error) {
	return s.entries, s.err
}

func newTestController(trader *stubTrader, wallets *stubWallets) (*Controller, *stubMessenger) {
	messenger := &stubMessenger{}
	balances := &stubBalances{entries: []balance.Entry{
		{Ticker: "SOL", Mint: tokens.WrappedSOL, Amount: 1500000000, Decimals: 9},
	}}
	return NewController(messenger, trader, wallets, balances, tokens.Registry{}), messenger
}

func TestBuyFlowHappyPath(t *testing.T) {
	trader := &stubTrader{
		estimate: &engine.Estimate{OutAmount: 123456, OutDecimals: 6},
		result:   &engine.Result{Confirmed: true, Signature: "sig-1", OutAmount: 123456},
	}
	ctrl, messenger := newTestController(trader, newStubWallets("u1"))
	ctx := context.Background()

	ctrl.HandleTurn(ctx, "u1", ButtonBuy)
	if got := ctrl.sessions.Peek("u1").State; got != StateBuyAwaitingToken {
		t.Fatalf("expected buy flow to start, state is %s", got)
	}

	ctrl.HandleTurn(ctx, "u1", testMint)
	if got := ctrl.sessions.Peek("u1").State; got != StateBuyAwaitingAmount {
		t.Fatalf("expected amount prompt, state is %s", got)
	}

	ctrl.HandleTurn(ctx, "u1", "1.5")
	session := ctrl.sessions.Peek("u1")
	if session.State != StateBuyAwaitingConfirm {
		t.Fatalf("expected confirmation prompt, state is %s", session.State)
	}
	if session.QuotedOut != 123456 {
		t.Fatalf("quoted amount not stored: %d", session.QuotedOut)
	}

	ctrl.HandleTurn(ctx, "u1", "confirm")
	ctrl.Wait()
	if trader.buyCalls != 1 {
		t.Fatalf("expected exactly one buy execution, got %d", trader.buyCalls)
	}
	if !trader.lastSol.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("amount lost on the way to the engine: %s", trader.lastSol)
	}
	if got := ctrl.sessions.Peek("u1").State; got != StateIdle {
		t.Fatalf("session must be idle after execution, state is %s", got)
	}
	if !strings.Contains(messenger.last(), "sig-1") {
		t.Fatalf("outcome message must carry the signature, got %q", messenger.last())
	}
}

func TestInvalidTokenAddressReprompts(t *testing.T) {
	trader := &stubTrader{}
	ctrl, messenger := newTestController(trader, newStubWallets("u1"))
	ctx := context.Background()

	ctrl.HandleTurn(ctx, "u1", ButtonBuy)
	ctrl.HandleTurn(ctx, "u1", "not-a-mint")

	if got := ctrl.sessions.Peek("u1").State; got != StateBuyAwaitingToken {
		t.Fatalf("invalid address must not advance the flow, state is %s", got)
	}
	if !strings.Contains(messenger.last(), "Invalid token address") {
		t.Fatalf("expected re-prompt, got %q", messenger.last())
	}
}

func TestBuyAmountOutOfRangeReprompts(t *testing.T) {
	trader := &stubTrader{}
	ctrl, messenger := newTestController(trader, newStubWallets("u1"))
	ctx := context.Background()

	ctrl.HandleTurn(ctx, "u1", ButtonBuy)
	ctrl.HandleTurn(ctx, "u1", testMint)
	// 负数、零、以及换算成 lamports 后超出 uint64 的金额都只重新提示。
	for _, raw := range []string{"-1", "0", "20000000000", "abc"} {
		ctrl.HandleTurn(ctx, "u1", raw)
		if got := ctrl.sessions.Peek("u1").State; got != StateBuyAwaitingAmount {
			t.Fatalf("%q must not advance the flow, state is %s", raw, got)
		}
	}
	if trader.estimateCalls != 0 {
		t.Fatalf("out-of-range amount must not reach the engine, got %d calls", trader.estimateCalls)
	}
	if !strings.Contains(messenger.last(), "SOL amount") {
		t.Fatalf("expected an amount re-prompt, got %q", messenger.last())
	}
}

func TestSellPercentOutOfRangeReprompts(t *testing.T) {
	trader := &stubTrader{}
	ctrl, _ := newTestController(trader, newStubWallets("u1"))
	ctx := context.Background()

	ctrl.HandleTurn(ctx, "u1", ButtonSell)
	ctrl.HandleTurn(ctx, "u1", testMint)
	for _, raw := range []string{"0", "101", "abc"} {
		ctrl.HandleTurn(ctx, "u1", raw)
		if got := ctrl.sessions.Peek("u1").State; got != StateSellAwaitingAmount {
			t.Fatalf("%q must not advance the flow, state is %s", raw, got)
		}
	}
	if trader.estimateCalls != 0 {
		t.Fatalf("out-of-range percent must not reach the engine, got %d calls", trader.estimateCalls)
	}
}

func TestSellFlowUsesPercent(t *testing.T) {
	trader := &stubTrader{
		estimate: &engine.Estimate{OutAmount: 750000000, OutDecimals: 9},
		result:   &engine.Result{Confirmed: true, Signature: "sig-2", OutAmount: 750000000},
	}
	ctrl, _ := newTestController(trader, newStubWallets("u1"))
	ctx := context.Background()

	ctrl.HandleTurn(ctx, "u1", ButtonSell)
	ctrl.HandleTurn(ctx, "u1", testMint)
	ctrl.HandleTurn(ctx, "u1", "50%")
	if got := ctrl.sessions.Peek("u1").State; got != StateSellAwaitingConfirm {
		t.Fatalf("expected confirmation prompt, state is %s", got)
	}
	ctrl.HandleTurn(ctx, "u1", "confirm")
	ctrl.Wait()

	if trader.sellCalls != 1 || trader.lastPercent != 50 {
		t.Fatalf("expected one sell at 50%%, got %d calls percent=%d", trader.sellCalls, trader.lastPercent)
	}
}

func TestBackCancelsFromAnyState(t *testing.T) {
	trader := &stubTrader{estimate: &engine.Estimate{OutAmount: 1, OutDecimals: 0}}
	ctrl, _ := newTestController(trader, newStubWallets("u1"))
	ctx := context.Background()

	ctrl.HandleTurn(ctx, "u1", ButtonBuy)
	ctrl.HandleTurn(ctx, "u1", testMint)
	ctrl.HandleTurn(ctx, "u1", "back")

	session := ctrl.sessions.Peek("u1")
	if session.State != StateIdle {
		t.Fatalf("back must reset to idle, state is %s", session.State)
	}
	if session.TokenMint != "" {
		t.Fatalf("back must clear flow fields, token is %q", session.TokenMint)
	}

	// back 在 Idle 下也安全。
	ctrl.HandleTurn(ctx, "u1", "back")
	if got := ctrl.sessions.Peek("u1").State; got != StateIdle {
		t.Fatalf("back in idle must stay idle, state is %s", got)
	}
	if trader.buyCalls != 0 {
		t.Fatalf("cancelled flow must not execute, got %d buys", trader.buyCalls)
	}
}

func TestEstimateFailureResetsToIdle(t *testing.T) {
	trader := &stubTrader{estimateErr: xerrors.New(xerrors.CodeQuoteUnavailable, "")}
	ctrl, messenger := newTestController(trader, newStubWallets("u1"))
	ctx := context.Background()

	ctrl.HandleTurn(ctx, "u1", ButtonBuy)
	ctrl.HandleTurn(ctx, "u1", testMint)
	ctrl.HandleTurn(ctx, "u1", "1")

	if got := ctrl.sessions.Peek("u1").State; got != StateIdle {
		t.Fatalf("estimate failure must reset the session, state is %s", got)
	}
	if !strings.Contains(messenger.last(), "quote") {
		t.Fatalf("expected a quote failure message, got %q", messenger.last())
	}
}

func TestFlowRefusedWithoutWallet(t *testing.T) {
	trader := &stubTrader{}
	ctrl, messenger := newTestController(trader, newStubWallets())
	ctx := context.Background()

	ctrl.HandleTurn(ctx, "u1", ButtonBuy)

	if got := ctrl.sessions.Peek("u1").State; got != StateIdle {
		t.Fatalf("missing wallet must keep the session idle, state is %s", got)
	}
	if !strings.Contains(messenger.last(), "wallet") {
		t.Fatalf("expected a wallet hint, got %q", messenger.last())
	}
}

func TestUnknownInputAtConfirmReprompts(t *testing.T) {
	trader := &stubTrader{estimate: &engine.Estimate{OutAmount: 9, OutDecimals: 0}}
	ctrl, messenger := newTestController(trader, newStubWallets("u1"))
	ctx := context.Background()

	ctrl.HandleTurn(ctx, "u1", ButtonBuy)
	ctrl.HandleTurn(ctx, "u1", testMint)
	ctrl.HandleTurn(ctx, "u1", "2")
	ctrl.HandleTurn(ctx, "u1", "maybe")

	if got := ctrl.sessions.Peek("u1").State; got != StateBuyAwaitingConfirm {
		t.Fatalf("unknown input must keep waiting for confirmation, state is %s", got)
	}
	if !strings.Contains(messenger.last(), "confirm") {
		t.Fatalf("expected a confirm re-prompt, got %q", messenger.last())
	}
	if trader.buyCalls != 0 {
		t.Fatalf("unknown input must not execute, got %d buys", trader.buyCalls)
	}
}

func TestConfirmationTimeoutMessageCarriesSignature(t *testing.T) {
	trader := &stubTrader{
		estimate: &engine.Estimate{OutAmount: 9, OutDecimals: 0},
		result:   &engine.Result{Signature: "sig-slow"},
		execErr:  xerrors.New(xerrors.CodeConfirmationTimeout, ""),
	}
	ctrl, messenger := newTestController(trader, newStubWallets("u1"))
	ctx := context.Background()

	ctrl.HandleTurn(ctx, "u1", ButtonBuy)
	ctrl.HandleTurn(ctx, "u1", testMint)
	ctrl.HandleTurn(ctx, "u1", "2")
	ctrl.HandleTurn(ctx, "u1", "confirm")
	ctrl.Wait()

	if !strings.Contains(messenger.last(), "sig-slow") {
		t.Fatalf("timeout message must carry the signature, got %q", messenger.last())
	}
}

func TestCreateKeyIsIdempotent(t *testing.T) {
	trader := &stubTrader{}
	wallets := newStubWallets()
	ctrl, messenger := newTestController(trader, wallets)
	ctx := context.Background()

	ctrl.HandleTurn(ctx, "u1", ButtonCreateKey)
	if wallets.saves != 1 {
		t.Fatalf("expected one saved wallet, got %d", wallets.saves)
	}
	first, err := wallets.GetAddress(ctx, "u1")
	if err != nil {
		t.Fatalf("wallet not created: %v", err)
	}

	ctrl.HandleTurn(ctx, "u1", ButtonCreateKey)
	if wallets.saves != 1 {
		t.Fatalf("second create must not overwrite the wallet, saves=%d", wallets.saves)
	}
	if !strings.Contains(messenger.last(), first) {
		t.Fatalf("repeat create must show the existing address, got %q", messenger.last())
	}
}

func TestBalanceView(t *testing.T) {
	trader := &stubTrader{}
	ctrl, messenger := newTestController(trader, newStubWallets("u1"))

	ctrl.HandleTurn(context.Background(), "u1", ButtonBalance)

	if !strings.Contains(messenger.last(), "SOL: 1.5") {
		t.Fatalf("expected formatted SOL balance, got %q", messenger.last())
	}
}
