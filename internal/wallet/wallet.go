package wallet

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	xerrors "SolTradeBot/internal/errors"
)

// ErrNotFound 表示用户尚未创建托管钱包。
var ErrNotFound = xerrors.New(xerrors.CodeCredentialNotFound, "")

// Credential is a user's custodial keypair. The private key is an opaque
// signing capability to every caller above this package; it must never be
// logged or echoed back to the user beyond the explicit create flow.
type Credential struct {
	UserID     string
	PrivateKey solana.PrivateKey
	Address    string
}

// Store persists custodial credentials keyed by user identity.
type Store interface {
	// GetCredential returns ErrNotFound when the user has no wallet yet.
	GetCredential(ctx context.Context, userID string) (*Credential, error)
	// GetAddress resolves only the public address.
	GetAddress(ctx context.Context, userID string) (string, error)
	// Save creates or replaces the user's credential.
	Save(ctx context.Context, cred *Credential) error
}

// Generate creates a fresh ed25519 keypair for the user.
func Generate(userID string) (*Credential, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("生成密钥失败: %w", err)
	}
	return &Credential{
		UserID:     userID,
		PrivateKey: key,
		Address:    key.PublicKey().String(),
	}, nil
}

// FromBase58 rebuilds a credential from stored private key material and
// re-derives the address, mirroring the recovery path of the create flow.
func FromBase58(userID, privateKey string) (*Credential, error) {
	key, err := solana.PrivateKeyFromBase58(privateKey)
	if err != nil {
		return nil, fmt.Errorf("解析私钥失败: %w", err)
	}
	return &Credential{
		UserID:     userID,
		PrivateKey: key,
		Address:    key.PublicKey().String(),
	}, nil
}
