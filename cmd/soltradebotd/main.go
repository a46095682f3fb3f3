package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"SolTradeBot/internal/balance"
	"SolTradeBot/internal/config"
	"SolTradeBot/internal/dialog"
	"SolTradeBot/internal/engine"
	"SolTradeBot/internal/events"
	"SolTradeBot/internal/jupiter"
	"SolTradeBot/internal/solana"
	"SolTradeBot/internal/storage/mysql"
	"SolTradeBot/internal/telegram"
	"SolTradeBot/internal/tokens"
	"SolTradeBot/internal/wallet"
	"SolTradeBot/pkg/logger"
)

// main 是交易机器人守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("soltradebotd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("SOLTRADEBOT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "soltradebot.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Trade: logger.TradeLogConfig{
			Enabled: cfg.Logging.TradeLogEnabled,
			Path:    cfg.Logging.TradeLogPath,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	registry, err := tokens.Load(cfg.Runtime.TokenFile)
	if err != nil {
		return err
	}

	chain, err := solana.NewClient(solana.Config{
		RPCURL:     cfg.Solana.RPCURL,
		Commitment: cfg.Solana.Commitment,
	})
	if err != nil {
		return err
	}

	quotes := jupiter.NewClient(jupiter.Config{
		BaseURL: cfg.Jupiter.BaseURL,
		Timeout: time.Duration(cfg.Jupiter.TimeoutSeconds) * time.Second,
	})

	var walletStore wallet.Store
	switch cfg.Storage.Wallet.Driver {
	case "", "memory":
		store, err := wallet.NewMemoryStore(cfg.Runtime.DataDir)
		if err != nil {
			return err
		}
		walletStore = store
	case "mysql":
		store, err := mysql.NewWalletStore(ctx, mysql.Config{DSN: cfg.Storage.Wallet.DSN})
		if err != nil {
			return err
		}
		walletStore = store
	default:
		return fmt.Errorf("未知的钱包存储驱动: %s", cfg.Storage.Wallet.Driver)
	}
	if closer, ok := walletStore.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	var cache balance.Cache
	switch cfg.Storage.Cache.Driver {
	case "", "memory":
		cache = balance.NewMemoryCache()
	case "redis":
		redisCache, err := balance.NewRedisCache(balance.RedisCacheConfig{
			Address:  cfg.Storage.Cache.Address,
			Password: cfg.Storage.Cache.Password,
			DB:       cfg.Storage.Cache.DB,
		})
		if err != nil {
			return err
		}
		defer redisCache.Close()
		cache = redisCache
	default:
		return fmt.Errorf("未知的缓存驱动: %s", cfg.Storage.Cache.Driver)
	}

	balances := balance.NewService(chain, cache, time.Duration(cfg.Storage.Cache.TTLSeconds)*time.Second)

	var publisher events.Publisher
	switch cfg.Events.Driver {
	case "", "memory":
		publisher = events.NewMemoryPublisher()
	case "rabbitmq":
		mq, err := events.NewRabbitMQPublisher(events.RabbitMQConfig{
			URL:      cfg.Events.URL,
			Exchange: cfg.Events.Exchange,
		})
		if err != nil {
			return err
		}
		defer mq.Close()
		publisher = mq
	default:
		return fmt.Errorf("未知的事件驱动: %s", cfg.Events.Driver)
	}

	poller := engine.NewPoller(chain,
		time.Duration(cfg.Confirm.TimeoutSeconds)*time.Second,
		time.Duration(cfg.Confirm.IntervalSeconds)*time.Second,
	)
	eng := engine.New(quotes, walletStore, balances, chain, poller,
		engine.WithPublisher(publisher),
		engine.WithSlippageBps(cfg.Jupiter.SlippageBps),
	)

	// 机器人和控制器互相引用：控制器通过函数适配器延迟绑定发送端。
	var bot *telegram.Bot
	controller := dialog.NewController(
		dialog.MessengerFunc(func(ctx context.Context, userID, text string, keyboard dialog.Keyboard) error {
			return bot.Send(ctx, userID, text, keyboard)
		}),
		eng, walletStore, balances, registry,
	)

	bot, err = telegram.New(telegram.Config{
		Token:        cfg.Telegram.Token,
		AllowedUsers: cfg.Telegram.AllowedUsers,
		PollTimeout:  cfg.Telegram.PollTimeout,
		WorkerSlots:  cfg.Runtime.WorkerSlot,
	}, controller)
	if err != nil {
		return err
	}

	if err := bot.Run(ctx); err != nil {
		return err
	}
	// 退出前等在途交易的收尾消息发完。
	controller.Wait()
	return nil
}
