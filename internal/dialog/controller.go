package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"SolTradeBot/internal/balance"
	"SolTradeBot/internal/engine"
	xerrors "SolTradeBot/internal/errors"
	"SolTradeBot/internal/tokens"
	"SolTradeBot/internal/wallet"
	"SolTradeBot/pkg/logger"
)

// 主菜单按钮文案。传输层原样回传，控制器按文本匹配。
const (
	ButtonBuy       = "🟢 Buy"
	ButtonSell      = "🔴 Sell"
	ButtonBalance   = "💰 Balance"
	ButtonCreateKey = "🔑 Create private key"
)

// Keyboard 是回复键盘布局，外层是行。空布局表示不带键盘。
type Keyboard [][]string

// MainMenu 返回主菜单键盘布局。
func MainMenu() Keyboard {
	return Keyboard{
		{ButtonBuy, ButtonSell},
		{ButtonBalance, ButtonCreateKey},
	}
}

// Messenger 是控制器向用户回话的出口。keyboard 为 nil 时沿用当前键盘。
type Messenger interface {
	Send(ctx context.Context, userID, text string, keyboard Keyboard) error
}

// MessengerFunc 允许用函数充当 Messenger，装配阶段打破构造顺序依赖。
type MessengerFunc func(ctx context.Context, userID, text string, keyboard Keyboard) error

// Send 实现 Messenger。
func (f MessengerFunc) Send(ctx context.Context, userID, text string, keyboard Keyboard) error {
	return f(ctx, userID, text, keyboard)
}

// Trader 是控制器依赖的执行引擎能力。
type Trader interface {
	Buy(ctx context.Context, userID, mint string, solIn decimal.Decimal) (*engine.Result, error)
	Sell(ctx context.Context, userID, mint string, percent int) (*engine.Result, error)
	EstimateBuy(ctx context.Context, userID, mint string, solIn decimal.Decimal) (*engine.Estimate, error)
	EstimateSell(ctx context.Context, userID, mint string, percent int) (*engine.Estimate, error)
}

// BalanceViewer 提供余额总览。
type BalanceViewer interface {
	Snapshot(ctx context.Context, owner string, registry tokens.Registry) ([]balance.Entry, error)
}

// Controller 驱动每个用户的对话状态机。同一用户的轮次严格串行，
// 交易执行在确认后转入后台，不占用会话锁。
type Controller struct {
	messenger Messenger
	trader    Trader
	wallets   wallet.Store
	balances  BalanceViewer
	registry  tokens.Registry
	sessions  *Sessions
	log       *slog.Logger
	wg        sync.WaitGroup
}

// NewController 创建对话控制器。
func NewController(messenger Messenger, trader Trader, wallets wallet.Store, balances BalanceViewer, registry tokens.Registry) *Controller {
	return &Controller{
		messenger: messenger,
		trader:    trader,
		wallets:   wallets,
		balances:  balances,
		registry:  registry,
		sessions:  NewSessions(),
		log:       logger.Named("dialog"),
	}
}

// Wait 等待所有后台执行收尾，进程退出前调用。
func (c *Controller) Wait() {
	c.wg.Wait()
}

// HandleTurn 处理一条用户输入。全局命令在任何状态下生效，其余输入
// 按当前会话状态路由。
func (c *Controller) HandleTurn(ctx context.Context, userID, text string) {
	input := strings.TrimSpace(text)
	c.sessions.with(userID, func(s *Session) {
		if c.handleGlobal(ctx, userID, s, input) {
			return
		}
		switch s.State {
		case StateIdle:
			c.reply(ctx, userID, "Choose an action from the menu below.", MainMenu())
		case StateBuyAwaitingToken, StateSellAwaitingToken:
			c.handleToken(ctx, userID, s, input)
		case StateBuyAwaitingAmount:
			c.handleBuyAmount(ctx, userID, s, input)
		case StateSellAwaitingAmount:
			c.handleSellPercent(ctx, userID, s, input)
		case StateBuyAwaitingConfirm, StateSellAwaitingConfirm:
			c.handleConfirm(ctx, userID, s, input)
		default:
			s.Reset()
			c.reply(ctx, userID, "Choose an action from the menu below.", MainMenu())
		}
	})
}

// handleGlobal 处理任意状态下都生效的命令，返回是否已消费本轮输入。
func (c *Controller) handleGlobal(ctx context.Context, userID string, s *Session, input string) bool {
	switch normalize(input) {
	case "/start":
		s.Reset()
		c.sendWelcome(ctx, userID)
	case "back", "/back", "cancel", "/cancel":
		s.Reset()
		c.reply(ctx, userID, "Cancelled. Back to the main menu.", MainMenu())
	case normalize(ButtonBuy), "buy", "/buy":
		c.startFlow(ctx, userID, s, StateBuyAwaitingToken)
	case normalize(ButtonSell), "sell", "/sell":
		c.startFlow(ctx, userID, s, StateSellAwaitingToken)
	case normalize(ButtonBalance), "balance", "/balance":
		s.Reset()
		c.sendBalance(ctx, userID)
	case normalize(ButtonCreateKey), "create private key", "/create":
		s.Reset()
		c.createKey(ctx, userID)
	default:
		return false
	}
	return true
}

// startFlow 开启买或卖流程。没有钱包时直接拒绝，不进入流程。
func (c *Controller) startFlow(ctx context.Context, userID string, s *Session, state State) {
	if _, err := c.wallets.GetAddress(ctx, userID); err != nil {
		s.Reset()
		c.reply(ctx, userID, messageFor(err), MainMenu())
		return
	}
	s.begin(state)
	c.reply(ctx, userID, "Enter the token address.", nil)
}

// handleToken 校验代币地址输入。非法地址留在当前状态重新提示。
func (c *Controller) handleToken(ctx context.Context, userID string, s *Session, input string) {
	if !tokens.IsValidMint(input) {
		c.reply(ctx, userID, "Invalid token address. It must be 44 characters long. Try again or type 'back'.", nil)
		return
	}
	s.TokenMint = input
	if s.State == StateBuyAwaitingToken {
		s.State = StateBuyAwaitingAmount
		c.reply(ctx, userID, "How much SOL do you want to spend? For example: 0.5", nil)
		return
	}
	s.State = StateSellAwaitingAmount
	c.reply(ctx, userID, "What percentage of your balance do you want to sell? Enter a number from 1 to 100.", nil)
}

// handleBuyAmount 解析 SOL 金额并试算。试算失败回到 Idle。
func (c *Controller) handleBuyAmount(ctx context.Context, userID string, s *Session, input string) {
	amount, err := decimal.NewFromString(strings.ReplaceAll(input, ",", "."))
	if err != nil {
		c.reply(ctx, userID, "Enter a positive SOL amount, for example 0.5, or type 'back'.", nil)
		return
	}
	// 金额范围在本地校验，越界留在当前状态重新提示而不是终止流程。
	if _, convErr := engine.SolToLamports(amount); convErr != nil {
		c.reply(ctx, userID, "Enter a positive SOL amount, for example 0.5, or type 'back'.", nil)
		return
	}
	est, err := c.trader.EstimateBuy(ctx, userID, s.TokenMint, amount)
	if err != nil {
		s.Reset()
		c.reply(ctx, userID, messageFor(err), MainMenu())
		return
	}
	s.SolAmount = amount
	s.QuotedOut = est.OutAmount
	s.QuotedDecim = est.OutDecimals
	s.State = StateBuyAwaitingConfirm
	c.reply(ctx, userID, fmt.Sprintf(
		"You will spend %s SOL and receive approximately %s tokens.\nType 'confirm' to execute or 'back' to cancel.",
		amount.String(), engine.FormatMinorUnits(est.OutAmount, est.OutDecimals)), nil)
}

// handleSellPercent 解析卖出比例并试算。
func (c *Controller) handleSellPercent(ctx context.Context, userID string, s *Session, input string) {
	percent, err := strconv.Atoi(strings.TrimSuffix(input, "%"))
	if err != nil || percent < 1 || percent > 100 {
		c.reply(ctx, userID, "Enter a whole number between 1 and 100, or type 'back'.", nil)
		return
	}
	est, err := c.trader.EstimateSell(ctx, userID, s.TokenMint, percent)
	if err != nil {
		s.Reset()
		c.reply(ctx, userID, messageFor(err), MainMenu())
		return
	}
	s.SellPercent = percent
	s.QuotedOut = est.OutAmount
	s.QuotedDecim = est.OutDecimals
	s.State = StateSellAwaitingConfirm
	c.reply(ctx, userID, fmt.Sprintf(
		"You will sell %d%% of your balance and receive approximately %s SOL.\nType 'confirm' to execute or 'back' to cancel.",
		percent, engine.FormatMinorUnits(est.OutAmount, tokens.SOLDecimals)), nil)
}

// handleConfirm 处理确认输入。确认后会话立刻清回 Idle，执行转入后台，
// 引擎的在途互斥保证同一用户不会重复执行。
func (c *Controller) handleConfirm(ctx context.Context, userID string, s *Session, input string) {
	switch normalize(input) {
	case "confirm", "yes", "✅ confirm":
	default:
		c.reply(ctx, userID, "Type 'confirm' to execute or 'back' to cancel.", nil)
		return
	}

	mint := s.TokenMint
	solAmount := s.SolAmount
	percent := s.SellPercent
	decimals := s.QuotedDecim
	buy := s.State == StateBuyAwaitingConfirm
	s.Reset()

	c.reply(ctx, userID, "⏳ Executing the swap, this can take a couple of minutes...", MainMenu())

	execCtx := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		var (
			result *engine.Result
			err    error
		)
		if buy {
			result, err = c.trader.Buy(execCtx, userID, mint, solAmount)
		} else {
			result, err = c.trader.Sell(execCtx, userID, mint, percent)
		}
		c.reply(execCtx, userID, outcomeMessage(buy, result, err, decimals), nil)
	}()
}

// sendWelcome 发送欢迎语。已有钱包的用户顺带展示地址。
func (c *Controller) sendWelcome(ctx context.Context, userID string) {
	address, err := c.wallets.GetAddress(ctx, userID)
	if err != nil {
		c.reply(ctx, userID,
			"Welcome! This bot swaps tokens on Solana.\nTap '"+ButtonCreateKey+"' to generate a wallet first.",
			MainMenu())
		return
	}
	c.reply(ctx, userID, "Welcome back!\nYour wallet address:\n"+address, MainMenu())
}

// sendBalance 发送余额总览。
func (c *Controller) sendBalance(ctx context.Context, userID string) {
	address, err := c.wallets.GetAddress(ctx, userID)
	if err != nil {
		c.reply(ctx, userID, messageFor(err), MainMenu())
		return
	}
	entries, err := c.balances.Snapshot(ctx, address, c.registry)
	if err != nil {
		c.log.Warn("查询余额总览失败", "user_id", userID, "error", err)
		c.reply(ctx, userID, "Could not fetch balances right now. Try again later.", MainMenu())
		return
	}
	var b strings.Builder
	b.WriteString("Wallet: " + address + "\n\n")
	for _, entry := range entries {
		fmt.Fprintf(&b, "%s: %s\n", entry.Ticker, engine.FormatMinorUnits(entry.Amount, entry.Decimals))
	}
	c.reply(ctx, userID, b.String(), MainMenu())
}

// createKey 为用户生成钱包。已有钱包时只回显地址，绝不覆盖旧私钥。
func (c *Controller) createKey(ctx context.Context, userID string) {
	if address, err := c.wallets.GetAddress(ctx, userID); err == nil {
		c.reply(ctx, userID, "You already have a wallet:\n"+address, MainMenu())
		return
	}
	cred, err := wallet.Generate(userID)
	if err != nil {
		c.log.Error("生成钱包失败", "user_id", userID, "error", err)
		c.reply(ctx, userID, "Could not create a wallet right now. Try again later.", MainMenu())
		return
	}
	if err := c.wallets.Save(ctx, cred); err != nil {
		c.log.Error("保存钱包失败", "user_id", userID, "error", err)
		c.reply(ctx, userID, "Could not create a wallet right now. Try again later.", MainMenu())
		return
	}
	c.reply(ctx, userID, "Wallet created. Your address:\n"+cred.Address+"\nDeposit SOL to it before trading.", MainMenu())
}

// reply 发送回复，发送失败只记日志。
func (c *Controller) reply(ctx context.Context, userID, text string, keyboard Keyboard) {
	if err := c.messenger.Send(ctx, userID, text, keyboard); err != nil {
		c.log.Warn("发送消息失败", "user_id", userID, "error", err)
	}
}

// outcomeMessage 把执行结果翻译成用户可读文案。
func outcomeMessage(buy bool, result *engine.Result, err error, outDecimals uint8) string {
	if err == nil {
		received := engine.FormatMinorUnits(result.OutAmount, outDecimals)
		if !buy {
			received = engine.FormatMinorUnits(result.OutAmount, tokens.SOLDecimals)
		}
		return fmt.Sprintf("✅ Swap confirmed.\nReceived: %s\nSignature:\n%s", received, result.Signature)
	}
	if xerrors.IsCode(err, xerrors.CodeConfirmationTimeout) && result != nil {
		return fmt.Sprintf(
			"⌛ The transaction was sent but not confirmed in time.\nCheck it later by signature:\n%s",
			result.Signature)
	}
	return messageFor(err)
}

// messageFor 把错误码映射为用户文案，不暴露内部细节。
func messageFor(err error) string {
	switch xerrors.CodeOf(err) {
	case xerrors.CodeCredentialNotFound:
		return "You don't have a wallet yet. Tap '" + ButtonCreateKey + "' first."
	case xerrors.CodeNothingToSell:
		return "You have nothing to sell for this token."
	case xerrors.CodeQuoteUnavailable:
		return "Could not get a quote for this token. Try again later."
	case xerrors.CodeSwapBuildFailed:
		return "Could not build the swap transaction. Try again later."
	case xerrors.CodeBroadcastFailed:
		return "Could not send the transaction to the network. Try again later."
	case xerrors.CodeAlreadyInProgress:
		return "⏳ You already have a swap in progress. Wait for it to finish."
	case xerrors.CodeInvalidArgument:
		return "Invalid input. Try again."
	default:
		return "Something went wrong. Try again later."
	}
}

// normalize 统一大小写和首尾空白，按钮文案与纯文本命令等价。
func normalize(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}
