package engine

import (
	"context"
	"log/slog"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	xerrors "SolTradeBot/internal/errors"
	"SolTradeBot/internal/events"
	"SolTradeBot/internal/jupiter"
	"SolTradeBot/internal/solana"
	"SolTradeBot/internal/tokens"
	"SolTradeBot/internal/wallet"
	"SolTradeBot/pkg/logger"
)

// Direction 表示兑换方向。
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// QuoteProvider 是引擎依赖的聚合器能力。
type QuoteProvider interface {
	GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int, traderAddress string) (*jupiter.Quote, error)
	BuildSwap(ctx context.Context, traderAddress string, quote *jupiter.Quote) (*jupiter.SwapTransaction, error)
}

// Broadcaster 是引擎依赖的交易广播能力。
type Broadcaster interface {
	Broadcast(ctx context.Context, signedTx []byte) (string, error)
}

// BalanceReader 是引擎依赖的余额协作方。
type BalanceReader interface {
	TokenBalanceMinorUnits(ctx context.Context, owner, mint string) (uint64, error)
	TokenDecimals(ctx context.Context, mint string) (uint8, error)
}

// Confirmer 抽象确认轮询，便于测试替换。
type Confirmer interface {
	Confirm(ctx context.Context, signature string) bool
}

// signFunc 把未签名交易变成可广播字节。默认实现委托给链 SDK。
type signFunc func(rawTx []byte, key solanago.PrivateKey) ([]byte, error)

// Result 是一次执行的结果。确认超时不等于失败：Signature 始终携带，
// 供用户自行查询最终状态。
type Result struct {
	AttemptID string
	Confirmed bool
	Signature string
	InAmount  uint64
	OutAmount uint64
}

// Estimate 是一次试算报价的结果，不签名也不广播。
type Estimate struct {
	InputMint   string
	OutputMint  string
	InAmount    uint64
	OutAmount   uint64
	OutDecimals uint8
}

// Engine 编排一次完整的兑换：解析凭证、报价、构建、签名、广播、确认。
// 任一步失败都终止本次尝试，绝不自动重试——重新签名同一笔交易可能
// 造成链上双花语义。
type Engine struct {
	quotes      QuoteProvider
	wallets     wallet.Store
	balances    BalanceReader
	broadcaster Broadcaster
	confirmer   Confirmer
	publisher   events.Publisher
	sign        signFunc
	slippageBps int
	inflight    *inflightSet
	log         *slog.Logger
}

// Option 定义可选的引擎配置。
type Option func(*Engine)

// WithSigner 替换签名实现，测试用。
func WithSigner(sign signFunc) Option {
	return func(e *Engine) {
		if sign != nil {
			e.sign = sign
		}
	}
}

// WithPublisher 配置交易事件发布器。
func WithPublisher(publisher events.Publisher) Option {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

// WithSlippageBps 覆盖默认滑点。
func WithSlippageBps(bps int) Option {
	return func(e *Engine) {
		if bps > 0 {
			e.slippageBps = bps
		}
	}
}

// New 创建交易执行引擎。
func New(quotes QuoteProvider, wallets wallet.Store, balances BalanceReader, broadcaster Broadcaster, confirmer Confirmer, opts ...Option) *Engine {
	e := &Engine{
		quotes:      quotes,
		wallets:     wallets,
		balances:    balances,
		broadcaster: broadcaster,
		confirmer:   confirmer,
		sign:        solana.SignTransaction,
		slippageBps: 500,
		inflight:    newInflightSet(),
		log:         logger.Named("engine"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Buy 用 SOL 买入指定代币。solIn 是主单位金额。
func (e *Engine) Buy(ctx context.Context, userID, mint string, solIn decimal.Decimal) (*Result, error) {
	lamports, err := SolToLamports(solIn)
	if err != nil {
		return nil, err
	}
	cred, err := e.wallets.GetCredential(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, cred, DirectionBuy, tokens.WrappedSOL, mint, lamports)
}

// Sell 按余额百分比卖出指定代币换回 SOL。
func (e *Engine) Sell(ctx context.Context, userID, mint string, percent int) (*Result, error) {
	if percent < 1 || percent > 100 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "卖出比例必须在 1 到 100 之间")
	}
	cred, err := e.wallets.GetCredential(ctx, userID)
	if err != nil {
		return nil, err
	}
	sellAmount, err := e.sellableAmount(ctx, cred.Address, mint, percent)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, cred, DirectionSell, mint, tokens.WrappedSOL, sellAmount)
}

// EstimateBuy 试算一次买入：凭证、报价、构建校验，不签名不广播。
func (e *Engine) EstimateBuy(ctx context.Context, userID, mint string, solIn decimal.Decimal) (*Estimate, error) {
	lamports, err := SolToLamports(solIn)
	if err != nil {
		return nil, err
	}
	cred, err := e.wallets.GetCredential(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.estimate(ctx, cred, tokens.WrappedSOL, mint, lamports)
}

// EstimateSell 试算一次卖出。
func (e *Engine) EstimateSell(ctx context.Context, userID, mint string, percent int) (*Estimate, error) {
	if percent < 1 || percent > 100 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "卖出比例必须在 1 到 100 之间")
	}
	cred, err := e.wallets.GetCredential(ctx, userID)
	if err != nil {
		return nil, err
	}
	sellAmount, err := e.sellableAmount(ctx, cred.Address, mint, percent)
	if err != nil {
		return nil, err
	}
	return e.estimate(ctx, cred, mint, tokens.WrappedSOL, sellAmount)
}

// sellableAmount 读取实时余额并换算百分比。零余额直接终止。
func (e *Engine) sellableAmount(ctx context.Context, owner, mint string, percent int) (uint64, error) {
	balance, err := e.balances.TokenBalanceMinorUnits(ctx, owner, mint)
	if err != nil {
		return 0, err
	}
	if balance == 0 {
		return 0, xerrors.New(xerrors.CodeNothingToSell, "", xerrors.WithMetadata("mint", mint))
	}
	sellAmount := percentOf(balance, percent)
	if sellAmount == 0 {
		return 0, xerrors.New(xerrors.CodeNothingToSell, "余额不足以按该比例卖出", xerrors.WithMetadata("mint", mint))
	}
	return sellAmount, nil
}

// estimate 执行试算路径：报价加构建校验，构建结果丢弃。
func (e *Engine) estimate(ctx context.Context, cred *wallet.Credential, inputMint, outputMint string, amount uint64) (*Estimate, error) {
	quote, err := e.quotes.GetQuote(ctx, inputMint, outputMint, amount, e.slippageBps, cred.Address)
	if err != nil {
		return nil, err
	}
	if _, err := e.quotes.BuildSwap(ctx, cred.Address, quote); err != nil {
		return nil, err
	}
	decimals, err := e.balances.TokenDecimals(ctx, outputMint)
	if err != nil {
		// 精度查询失败不应挡住试算，退回展示最小单位。
		e.log.Warn("查询代币精度失败", "mint", outputMint, "error", err)
		decimals = 0
	}
	return &Estimate{
		InputMint:   inputMint,
		OutputMint:  outputMint,
		InAmount:    quote.InAmount,
		OutAmount:   quote.OutAmount,
		OutDecimals: decimals,
	}, nil
}

// execute 是买卖共用的执行路径。
func (e *Engine) execute(ctx context.Context, cred *wallet.Credential, direction Direction, inputMint, outputMint string, amount uint64) (*Result, error) {
	// 同一用户同一时刻只允许一笔在途交易。
	userKey := "user:" + cred.UserID
	if !e.inflight.tryAcquire(userKey) {
		return nil, xerrors.New(xerrors.CodeAlreadyInProgress, "", xerrors.WithMetadata("user_id", cred.UserID))
	}
	defer e.inflight.release(userKey)

	attemptID := uuid.NewString()
	log := e.log.With("attempt_id", attemptID, "user_id", cred.UserID, "direction", string(direction))

	tradeMint := outputMint
	if direction == DirectionSell {
		tradeMint = inputMint
	}
	event := events.NewTradeEvent(cred.UserID, string(direction), tradeMint)

	quote, err := e.quotes.GetQuote(ctx, inputMint, outputMint, amount, e.slippageBps, cred.Address)
	if err != nil {
		e.finish(ctx, log, event, err)
		return nil, err
	}

	swapTx, err := e.quotes.BuildSwap(ctx, cred.Address, quote)
	if err != nil {
		e.finish(ctx, log, event, err)
		return nil, err
	}

	signedTx, err := e.sign(swapTx.Bytes, cred.PrivateKey)
	if err != nil {
		wrapped := xerrors.Wrap(xerrors.CodeSwapBuildFailed, err, "签名交易失败")
		e.finish(ctx, log, event, wrapped)
		return nil, wrapped
	}

	signature, err := e.broadcaster.Broadcast(ctx, signedTx)
	if err != nil {
		wrapped := xerrors.Wrap(xerrors.CodeBroadcastFailed, err, "")
		e.finish(ctx, log, event, wrapped)
		return nil, wrapped
	}
	log.Info("交易已广播", "signature", signature)

	result := &Result{
		AttemptID: attemptID,
		Signature: signature,
		InAmount:  quote.InAmount,
		OutAmount: quote.OutAmount,
	}
	event.Signature = signature
	event.InAmount = quote.InAmount
	event.OutAmount = quote.OutAmount

	// 确认轮询按签名互斥。同一笔交易绝不并行确认。
	sigKey := "sig:" + signature
	if !e.inflight.tryAcquire(sigKey) {
		err := xerrors.New(xerrors.CodeAlreadyInProgress, "", xerrors.WithMetadata("signature", signature))
		e.finish(ctx, log, event, err)
		return result, err
	}
	result.Confirmed = func() bool {
		defer e.inflight.release(sigKey)
		return e.confirmer.Confirm(ctx, signature)
	}()

	if !result.Confirmed {
		err := xerrors.New(xerrors.CodeConfirmationTimeout, "", xerrors.WithMetadata("signature", signature))
		e.finish(ctx, log, event, err)
		return result, err
	}

	event.Confirmed = true
	e.finish(ctx, log, event, nil)
	return result, nil
}

// finish 写交易审计日志并发布事件。发布失败只记日志，不影响结果。
func (e *Engine) finish(ctx context.Context, log *slog.Logger, event events.TradeEvent, execErr error) {
	attrs := []any{
		"event_id", event.ID,
		"user_id", event.UserID,
		"direction", event.Direction,
		"mint", event.Mint,
		"in_amount", event.InAmount,
		"out_amount", event.OutAmount,
		"signature", event.Signature,
		"confirmed", event.Confirmed,
	}
	if execErr != nil {
		event.FailReason = string(xerrors.CodeOf(execErr))
		attrs = append(attrs, "fail_reason", event.FailReason)
		if xerrors.ShouldAlert(execErr) {
			log.Error("交易执行失败", "error", execErr)
		} else {
			log.Warn("交易执行失败", "error", execErr)
		}
	} else {
		log.Info("交易执行完成", "signature", event.Signature)
	}
	logger.Trade().Info("trade", attrs...)

	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, event); err != nil {
			log.Warn("发布交易事件失败", "error", err)
		}
	}
}
