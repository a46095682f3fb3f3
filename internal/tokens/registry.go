package tokens

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// WrappedSOL 是原生 SOL 在聚合器侧使用的 mint 地址。
const WrappedSOL = "So11111111111111111111111111111111111111112"

// SOLDecimals 是原生资产的最小单位精度（1 SOL = 10^9 lamports）。
const SOLDecimals = 9

// Registry models the structure of tokens.yaml.
type Registry struct {
	Tokens []Token `yaml:"tokens"`
}

// Token describes a single known token entry.
type Token struct {
	Ticker   string `yaml:"ticker"`
	Mint     string `yaml:"mint"`
	Decimals uint8  `yaml:"decimals"`
}

// Load parses the YAML file containing known token metadata. A missing path
// yields the built-in seed list so the balance view works out of the box.
func Load(path string) (Registry, error) {
	if strings.TrimSpace(path) == "" {
		return seedRegistry(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return seedRegistry(), nil
		}
		return Registry{}, fmt.Errorf("读取代币配置失败: %w", err)
	}

	var reg Registry
	if err := yaml.Unmarshal(content, &reg); err != nil {
		return Registry{}, fmt.Errorf("解析代币配置失败: %w", err)
	}
	if len(reg.Tokens) == 0 {
		return seedRegistry(), nil
	}
	return reg, nil
}

// seedRegistry 返回默认的代币清单。
func seedRegistry() Registry {
	return Registry{Tokens: []Token{
		{Ticker: "SOL", Mint: WrappedSOL, Decimals: SOLDecimals},
		{Ticker: "USDC", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
		{Ticker: "USDT", Mint: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Decimals: 6},
	}}
}

// ByMint 按 mint 地址查找代币。
func (r Registry) ByMint(mint string) (Token, bool) {
	for _, tok := range r.Tokens {
		if tok.Mint == mint {
			return tok, true
		}
	}
	return Token{}, false
}

// ByTicker 按代币符号查找（大小写不敏感）。
func (r Registry) ByTicker(ticker string) (Token, bool) {
	for _, tok := range r.Tokens {
		if strings.EqualFold(tok.Ticker, ticker) {
			return tok, true
		}
	}
	return Token{}, false
}

// IsValidMint 做最基本的语法校验：Solana 地址是 32 字节的 base58
// 字符串，长度固定为 44 个字符。
func IsValidMint(addr string) bool {
	return len(addr) == 44
}
