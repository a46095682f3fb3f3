package engine

import (
	"math/big"

	"github.com/shopspring/decimal"

	xerrors "SolTradeBot/internal/errors"
	"SolTradeBot/internal/tokens"
)

// SolToLamports 将主单位的 SOL 金额换算为 lamports（10^9 缩放）。
// 超出 lamport 精度的小数位被截断，与原始实现一致。
func SolToLamports(amount decimal.Decimal) (uint64, error) {
	if !amount.IsPositive() {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "金额必须为正数")
	}
	lamports := amount.Shift(tokens.SOLDecimals).Truncate(0)
	bigLamports := lamports.BigInt()
	if bigLamports.Sign() <= 0 || bigLamports.BitLen() > 64 {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "金额超出可表示范围")
	}
	return bigLamports.Uint64(), nil
}

// FormatMinorUnits 将最小单位金额按精度格式化为十进制字符串，用于展示。
func FormatMinorUnits(amount uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals)).String()
}

// percentOf 计算余额的百分比，用 big.Int 避免乘法溢出。
func percentOf(balance uint64, percent int) uint64 {
	result := new(big.Int).Mul(new(big.Int).SetUint64(balance), big.NewInt(int64(percent)))
	result.Div(result, big.NewInt(100))
	return result.Uint64()
}
