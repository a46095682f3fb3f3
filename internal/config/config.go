package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了 SolTradeBot 在启动阶段需要加载的核心配置。
type Config struct {
	Telegram Telegram `json:"telegram"`
	Solana   Solana   `json:"solana"`
	Jupiter  Jupiter  `json:"jupiter"`
	Storage  Storage  `json:"storage"`
	Events   Events   `json:"events"`
	Confirm  Confirm  `json:"confirm"`
	Logging  Logging  `json:"logging"`
	Runtime  Runtime  `json:"runtime"`
}

// Telegram 控制消息通道的接入参数与访问白名单。
type Telegram struct {
	Token        string  `json:"token"`
	AllowedUsers []int64 `json:"allowed_users"`
	PollTimeout  int     `json:"poll_timeout_seconds"`
}

// Solana 包含访问 RPC 节点所需的参数。
type Solana struct {
	RPCURL     string `json:"rpc_url"`
	Commitment string `json:"commitment"`
}

// Jupiter 描述聚合器报价服务的调用方式。
type Jupiter struct {
	BaseURL        string `json:"base_url"`
	SlippageBps    int    `json:"slippage_bps"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Storage 统一描述钱包存储与余额缓存后端。
type Storage struct {
	Wallet WalletStore  `json:"wallet"`
	Cache  BalanceCache `json:"balance_cache"`
}

// WalletStore 默认提供文件持久化的内存实现，可切换到 MySQL。
type WalletStore struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// BalanceCache 默认使用进程内缓存，可切换到 Redis。
type BalanceCache struct {
	Driver     string `json:"driver"`
	Address    string `json:"address"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// Events 描述交易事件的发布方式。
type Events struct {
	Driver   string `json:"driver"`
	URL      string `json:"url"`
	Exchange string `json:"exchange"`
}

// Confirm 控制交易确认轮询的节奏。
type Confirm struct {
	TimeoutSeconds  int `json:"timeout_seconds"`
	IntervalSeconds int `json:"interval_seconds"`
}

// Logging 控制日志输出与交易审计日志。
type Logging struct {
	Level           string   `json:"level"`
	Format          string   `json:"format"`
	OutputPaths     []string `json:"output_paths"`
	TradeLogEnabled bool     `json:"trade_log_enabled"`
	TradeLogPath    string   `json:"trade_log_path"`
}

// Runtime 用于放置运行时的通用参数。
type Runtime struct {
	DataDir    string `json:"data_dir"`
	TokenFile  string `json:"token_file"`
	WorkerSlot int    `json:"worker_slots"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Telegram.PollTimeout <= 0 {
		c.Telegram.PollTimeout = 30
	}

	if c.Solana.RPCURL == "" {
		c.Solana.RPCURL = "https://api.mainnet-beta.solana.com"
	}
	if c.Solana.Commitment == "" {
		c.Solana.Commitment = "finalized"
	}

	if c.Jupiter.BaseURL == "" {
		c.Jupiter.BaseURL = "https://quote-api.jup.ag/v6"
	}
	if c.Jupiter.SlippageBps <= 0 {
		c.Jupiter.SlippageBps = 500
	}
	if c.Jupiter.TimeoutSeconds <= 0 {
		c.Jupiter.TimeoutSeconds = 10
	}

	if c.Storage.Wallet.Driver == "" {
		c.Storage.Wallet.Driver = "memory"
	}
	if c.Storage.Cache.Driver == "" {
		c.Storage.Cache.Driver = "memory"
	}
	if c.Storage.Cache.TTLSeconds <= 0 {
		c.Storage.Cache.TTLSeconds = 30
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "memory"
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = "soltradebot.trades"
	}

	if c.Confirm.TimeoutSeconds <= 0 {
		c.Confirm.TimeoutSeconds = 90
	}
	if c.Confirm.IntervalSeconds <= 0 {
		c.Confirm.IntervalSeconds = 5
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.TradeLogEnabled && c.Logging.TradeLogPath == "" {
		c.Logging.TradeLogPath = filepath.Join(baseDir, "logs", "trades.log")
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
	if c.Runtime.TokenFile == "" {
		c.Runtime.TokenFile = filepath.Join(baseDir, "tokens.yaml")
	} else if !filepath.IsAbs(c.Runtime.TokenFile) {
		c.Runtime.TokenFile = filepath.Join(baseDir, c.Runtime.TokenFile)
	}
}
