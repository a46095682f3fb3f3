package solana

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Commitment 是链上交易的确认层级。
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// Config describes how to construct a Solana RPC client.
type Config struct {
	RPCURL     string
	Commitment string
}

// Client wraps the subset of Solana JSON-RPC the engine and the balance
// collaborator need: broadcasting, signature status, balances and mint
// metadata. Transaction encoding itself is delegated to the SDK.
type Client struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置 Solana RPC 地址")
	}
	commitment := rpc.CommitmentFinalized
	switch strings.ToLower(strings.TrimSpace(cfg.Commitment)) {
	case "", "finalized":
	case "confirmed":
		commitment = rpc.CommitmentConfirmed
	case "processed":
		commitment = rpc.CommitmentProcessed
	default:
		return nil, fmt.Errorf("未知的确认层级: %s", cfg.Commitment)
	}
	return &Client{rpc: rpc.New(rpcURL), commitment: commitment}, nil
}

// Broadcast submits a signed transaction and returns its base58 signature.
// Preflight runs at processed commitment so obviously invalid transactions
// fail before hitting the leader.
func (c *Client) Broadcast(ctx context.Context, signedTx []byte) (string, error) {
	sig, err := c.rpc.SendRawTransactionWithOpts(ctx, signedTx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentProcessed,
	})
	if err != nil {
		return "", fmt.Errorf("广播交易失败: %w", err)
	}
	return sig.String(), nil
}

// SignatureStatus reports the confirmation tier of a submitted transaction.
// The second return value is false while the cluster has not seen the
// signature yet.
func (c *Client) SignatureStatus(ctx context.Context, signature string) (Commitment, bool, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return "", false, fmt.Errorf("非法的交易签名: %w", err)
	}
	out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return "", false, fmt.Errorf("查询交易状态失败: %w", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return "", false, nil
	}
	status := out.Value[0]
	if status.Err != nil {
		return "", false, fmt.Errorf("交易在链上执行失败: %v", status.Err)
	}
	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusFinalized:
		return CommitmentFinalized, true, nil
	case rpc.ConfirmationStatusConfirmed:
		return CommitmentConfirmed, true, nil
	default:
		return CommitmentProcessed, true, nil
	}
}

// SolBalance returns the owner's native balance in lamports.
func (c *Client) SolBalance(ctx context.Context, owner string) (uint64, error) {
	pubkey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return 0, fmt.Errorf("非法的账户地址: %w", err)
	}
	out, err := c.rpc.GetBalance(ctx, pubkey, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("查询 SOL 余额失败: %w", err)
	}
	return out.Value, nil
}

// TokenBalance returns the owner's SPL token balance in minor units,
// resolved through the associated token account. A missing account means a
// zero balance, not an error.
func (c *Client) TokenBalance(ctx context.Context, owner, mint string) (uint64, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return 0, fmt.Errorf("非法的账户地址: %w", err)
	}
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("非法的 mint 地址: %w", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(ownerKey, mintKey)
	if err != nil {
		return 0, fmt.Errorf("推导关联代币账户失败: %w", err)
	}
	out, err := c.rpc.GetTokenAccountBalance(ctx, ata, c.commitment)
	if err != nil {
		if strings.Contains(err.Error(), "could not find account") {
			return 0, nil
		}
		return 0, fmt.Errorf("查询代币余额失败: %w", err)
	}
	if out == nil || out.Value == nil {
		return 0, nil
	}
	amount, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("代币余额格式非法: %w", err)
	}
	return amount, nil
}

// TokenDecimals reads the decimals field out of the raw mint account data.
// SPL mint layout places it at byte offset 44.
func (c *Client) TokenDecimals(ctx context.Context, mint string) (uint8, error) {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("非法的 mint 地址: %w", err)
	}
	out, err := c.rpc.GetAccountInfo(ctx, mintKey)
	if err != nil {
		return 0, fmt.Errorf("查询 mint 账户失败: %w", err)
	}
	if out == nil || out.Value == nil {
		return 0, errors.New("mint 账户不存在")
	}
	data := out.Value.Data.GetBinary()
	if len(data) < 45 {
		return 0, errors.New("mint 账户数据过短，无法读取 decimals")
	}
	return data[44], nil
}
