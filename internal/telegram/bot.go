package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"SolTradeBot/internal/dialog"
	xerrors "SolTradeBot/internal/errors"
	"SolTradeBot/pkg/logger"
)

// Config 是 Telegram 传输层配置。AllowedUsers 为空表示对所有人开放，
// WorkerSlots 限制同时处理的轮次数量。
type Config struct {
	Token        string
	AllowedUsers []int64
	PollTimeout  int
	WorkerSlots  int
}

// TurnHandler 消费一条用户输入。传输层不关心对话语义。
type TurnHandler interface {
	HandleTurn(ctx context.Context, userID, text string)
}

// Bot 是基于长轮询的 Telegram 传输层。每条消息在独立 goroutine 中
// 处理，同一用户的串行化由对话层负责。
type Bot struct {
	api         *tgbotapi.BotAPI
	handler     TurnHandler
	allowed     map[int64]struct{}
	pollTimeout int
	log         *slog.Logger

	// 用户标识到会话 chat 的映射。私聊场景两者相同，保留映射
	// 以免对 Telegram 的实现细节做假设。
	chats sync.Map

	// slots 是轮次处理的并发上限，拉取循环在槽位耗尽时施加背压。
	slots chan struct{}
	wg    sync.WaitGroup
}

// New 创建 Telegram 传输层并校验令牌。
func New(cfg Config, handler TurnHandler) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "初始化 Telegram 接口失败")
	}
	allowed := make(map[int64]struct{}, len(cfg.AllowedUsers))
	for _, id := range cfg.AllowedUsers {
		allowed[id] = struct{}{}
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30
	}
	if cfg.WorkerSlots <= 0 {
		cfg.WorkerSlots = 16
	}
	return &Bot{
		api:         api,
		handler:     handler,
		allowed:     allowed,
		pollTimeout: cfg.PollTimeout,
		slots:       make(chan struct{}, cfg.WorkerSlots),
		log:         logger.Named("telegram"),
	}, nil
}

// Run 拉取更新直到 ctx 取消，返回前等所有在处理的轮次结束。
func (b *Bot) Run(ctx context.Context) error {
	b.registerCommands()

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(updateCfg)

	b.log.Info("Telegram 长轮询已启动", "bot", b.api.Self.UserName)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return nil
			}
			b.dispatch(ctx, update)
		}
	}
}

// dispatch 过滤非文本更新和未授权用户，其余转交对话层。
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Text == "" {
		return
	}
	userID := strconv.FormatInt(msg.From.ID, 10)
	b.chats.Store(userID, msg.Chat.ID)

	if !b.isAllowed(msg.From.ID) {
		err := xerrors.New(xerrors.CodeUnauthorized, "", xerrors.WithMetadata("user_id", userID))
		b.log.Warn("拒绝未授权用户", "user_id", userID, "error", err)
		if sendErr := b.Send(ctx, userID, "You are not authorized to use this bot.", nil); sendErr != nil {
			b.log.Warn("发送拒绝消息失败", "user_id", userID, "error", sendErr)
		}
		return
	}

	text := msg.Text
	b.slots <- struct{}{}
	b.wg.Add(1)
	go func() {
		defer func() {
			<-b.slots
			b.wg.Done()
		}()
		b.handler.HandleTurn(ctx, userID, text)
	}()
}

func (b *Bot) isAllowed(id int64) bool {
	if len(b.allowed) == 0 {
		return true
	}
	_, ok := b.allowed[id]
	return ok
}

// Send 实现 dialog.Messenger。keyboard 非空时附带回复键盘。
func (b *Bot) Send(_ context.Context, userID, text string, keyboard dialog.Keyboard) error {
	chatID, err := b.chatFor(userID)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if len(keyboard) > 0 {
		msg.ReplyMarkup = buildKeyboard(keyboard)
	}
	if _, err := b.api.Send(msg); err != nil {
		return xerrors.Wrap(xerrors.CodeUnknown, err, "发送 Telegram 消息失败",
			xerrors.WithMetadata("user_id", userID))
	}
	return nil
}

// chatFor 解析用户对应的 chat。没见过的用户退回私聊约定 chatID==userID。
func (b *Bot) chatFor(userID string) (int64, error) {
	if stored, ok := b.chats.Load(userID); ok {
		return stored.(int64), nil
	}
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "无法解析用户标识",
			xerrors.WithMetadata("user_id", userID))
	}
	return chatID, nil
}

func (b *Bot) registerCommands() {
	commands := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Show the main menu"},
		tgbotapi.BotCommand{Command: "buy", Description: "Buy a token with SOL"},
		tgbotapi.BotCommand{Command: "sell", Description: "Sell a token back to SOL"},
		tgbotapi.BotCommand{Command: "balance", Description: "Show wallet balances"},
		tgbotapi.BotCommand{Command: "create", Description: "Create a wallet"},
		tgbotapi.BotCommand{Command: "back", Description: "Cancel the current flow"},
	)
	if _, err := b.api.Request(commands); err != nil {
		b.log.Warn("注册命令列表失败", "error", err)
	}
}

func buildKeyboard(keyboard dialog.Keyboard) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(keyboard))
	for _, labels := range keyboard {
		row := make([]tgbotapi.KeyboardButton, 0, len(labels))
		for _, label := range labels {
			row = append(row, tgbotapi.NewKeyboardButton(label))
		}
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(row...))
	}
	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.ResizeKeyboard = true
	return markup
}
